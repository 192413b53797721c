package benchmark

import (
	"errors"
	"os"

	"github.com/mwiater/cgbench/internal/api"
	"github.com/mwiater/cgbench/internal/bencherr"
	"github.com/mwiater/cgbench/internal/callgrind"
	"github.com/mwiater/cgbench/internal/format"
	"github.com/mwiater/cgbench/internal/logging"
	"github.com/mwiater/cgbench/internal/tool"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Run runs every bench of g with strategy, sequentially. Errors of single
// benches are collected and the run continues. Regressions are reported
// once all groups ran unless a bench fails fast.
func (g *Groups) Run(strategy Benchmark, meta *Meta) error {
	if meta.Printer == nil {
		meta.Printer = format.NewPrinter(os.Stdout, format.OutputDefault)
	}
	runs := strategy.runsProcesses()

	if runs && g.HasSetup {
		if err := (Assistant{Kind: Setup, Module: meta.Module}).Run(meta.Driver, ""); err != nil {
			return err
		}
	}

	var errs error
	var regressed []string
	for _, group := range g.Groups {
		groupRegressed, err := group.run(strategy, meta)
		if err != nil {
			var abort *abortError
			if errors.As(err, &abort) {
				return multierr.Append(errs, err)
			}
			errs = multierr.Append(errs, err)
		}
		regressed = append(regressed, groupRegressed...)
	}

	if runs && g.HasTeardown {
		errs = multierr.Append(errs, (Assistant{Kind: Teardown, Module: meta.Module}).Run(meta.Driver, ""))
	}
	if len(regressed) > 0 {
		errs = multierr.Append(errs, &bencherr.RegressionError{Benches: regressed})
	}
	return errs
}

// run runs the benches of one group. It returns the benches which regressed
// without failing fast.
func (g *Group) run(strategy Benchmark, meta *Meta) ([]string, error) {
	log := logging.L().With(zap.String("group", g.ModulePath.String()))
	runs := strategy.runsProcesses()
	logging.LogEvent("running group %s with %d benches", g.ModulePath, len(g.Benches))

	if runs && g.HasSetup {
		a := Assistant{Kind: Setup, Group: g.ID, Module: g.ModulePath}
		if err := a.Run(meta.Driver, ""); err != nil {
			return nil, err
		}
	}

	var errs error
	var regressed []string
	type reference struct {
		bench   *Bench
		outcome *Outcome
	}
	first := map[string]reference{}
	for _, b := range g.Benches {
		outcome, err := strategy.Run(b, meta, benchScope(b, meta, runs))
		if err != nil {
			var abort *abortError
			if errors.As(err, &abort) {
				return regressed, multierr.Append(errs, err)
			}
			log.Error("bench failed", zap.String("bench", b.DisplayName()), zap.Error(err))
			errs = multierr.Append(errs, err)
			continue
		}

		s := outcome.Summary
		if err := meta.Printer.Bench(s, b.Config.TruncateDescription); err != nil {
			errs = multierr.Append(errs, err)
		}
		if g.CompareByID && b.ID != "" {
			if ref, ok := first[b.ID]; ok {
				meta.Printer.Comparison(ref.bench.Function, ref.bench.ID, ref.bench.Details,
					callgrind.NewCostsSummary(outcome.Costs, ref.outcome.Costs), b.Config.TruncateDescription)
			} else {
				first[b.ID] = reference{bench: b, outcome: outcome}
			}
		}
		if path, err := s.Save(meta.Fs, strategy.OutputPath(b, meta).Dir, meta.Summary); err != nil {
			errs = multierr.Append(errs, err)
		} else if path != "" {
			log.Debug("summary saved", zap.String("path", path))
		}

		if s.IsRegressed() {
			if b.Config.Regression != nil && b.Config.Regression.FailFast {
				errs = multierr.Append(errs, s.CheckRegression(true))
				log.Warn("regression with fail fast, skipping the remaining benches", zap.String("bench", b.DisplayName()))
				break
			}
			regressed = append(regressed, s.DisplayName())
		}
	}

	if runs && g.HasTeardown {
		a := Assistant{Kind: Teardown, Group: g.ID, Module: g.ModulePath}
		errs = multierr.Append(errs, a.Run(meta.Driver, ""))
	}
	return regressed, errs
}

// benchScope wraps the process runs of a binary bench in its sandbox and
// its setup and teardown.
func benchScope(b *Bench, meta *Meta, runs bool) tool.ScopedRun {
	if !runs || meta.Mode != api.ModeBinary {
		return nil
	}
	if !b.Config.Sandbox.Enabled && !b.HasSetup && !b.HasTeardown {
		return nil
	}
	return func(run func(tool.Scope) error) error {
		var scope tool.Scope
		if b.Config.Sandbox.Enabled {
			sb, err := newSandbox(meta.Fs, b.Config.Sandbox, meta.ProjectRoot)
			if err != nil {
				return err
			}
			defer sb.remove()
			scope.CurrentDir = sb.dir
		}
		dir := scope.CurrentDir
		if dir == "" {
			dir = b.Config.RunOptions.CurrentDir
		}

		if b.HasSetup {
			setup := b.assistant(Setup)
			stdin := b.Config.RunOptions.Stdin
			if stdin != nil && stdin.IsSetupPipe() {
				running, err := setup.Start(meta.Driver, dir)
				if err != nil {
					return err
				}
				scope.SetupStdout = running.Stdout
				scope.WaitSetup = running.Wait
				if err := run(scope); err != nil {
					running.Kill()
					return err
				}
				return b.teardown(meta, dir)
			}
			if err := setup.Run(meta.Driver, dir); err != nil {
				return err
			}
		}
		if err := run(scope); err != nil {
			return err
		}
		return b.teardown(meta, dir)
	}
}

func (b *Bench) assistant(kind AssistantKind) Assistant {
	return Assistant{
		Kind:       kind,
		Group:      b.Group,
		BenchIndex: b.BenchIndex,
		Index:      b.Index,
		HasIndices: true,
		Module:     b.assistantPath(),
	}
}

func (b *Bench) teardown(meta *Meta, dir string) error {
	if !b.HasTeardown {
		return nil
	}
	return b.assistant(Teardown).Run(meta.Driver, dir)
}
