package benchmark

import (
	"fmt"

	"github.com/mwiater/cgbench/internal/api"
	"github.com/mwiater/cgbench/internal/appconfig"
	"github.com/mwiater/cgbench/internal/callgrind"
	"github.com/mwiater/cgbench/internal/flamegraph"
	"github.com/mwiater/cgbench/internal/logging"
	"github.com/mwiater/cgbench/internal/summary"
	"github.com/mwiater/cgbench/internal/tool"
	"go.uber.org/zap"
)

// Benchmark is one of the three baseline strategies. The set is closed.
type Benchmark interface {
	// OutputPath is the callgrind output identity of b.
	OutputPath(b *Bench, meta *Meta) tool.OutputPath
	// Baselines are the names of the compared slots.
	Baselines() summary.Baselines
	// Run produces the summary of b. scoped wraps every process run.
	Run(b *Bench, meta *Meta, scoped tool.ScopedRun) (*Outcome, error)

	runsProcesses() bool
}

// Outcome is the result of one bench.
type Outcome struct {
	Summary *summary.BenchmarkSummary
	// Costs are the total costs of the new run.
	Costs *callgrind.Costs
}

// New selects the strategy of cfg.
func New(cfg appconfig.Config) Benchmark {
	switch cfg.Mode() {
	case appconfig.SaveBaselineMode:
		return &SaveBaselineBenchmark{Name: cfg.BaselineKind().Name()}
	case appconfig.LoadBaselineMode:
		return &LoadBaselineBenchmark{Loaded: cfg.LoadBaseline, Baseline: cfg.BaselineKind().Name()}
	default:
		return &BaselineBenchmark{Kind: cfg.BaselineKind()}
	}
}

// abortError stops the whole run instead of only the current bench.
type abortError struct {
	err error
}

func (e *abortError) Error() string { return e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

// BaselineBenchmark rotates the current run into the old slot, or clears
// the current run when comparing with a named baseline, and runs fresh.
type BaselineBenchmark struct {
	Kind tool.BaselineKind
}

func (bm *BaselineBenchmark) OutputPath(b *Bench, meta *Meta) tool.OutputPath {
	return b.outputPath(meta, tool.OutKind(), bm.Kind)
}

func (bm *BaselineBenchmark) Baselines() summary.Baselines {
	return summary.Baselines{Base: bm.Kind.Name()}
}

func (bm *BaselineBenchmark) runsProcesses() bool { return true }

func (bm *BaselineBenchmark) Run(b *Bench, meta *Meta, scoped tool.ScopedRun) (*Outcome, error) {
	out := bm.OutputPath(b, meta)
	if err := out.Init(); err != nil {
		return nil, &abortError{err: err}
	}
	paths := append([]tool.OutputPath{out}, b.Config.Tools.OutputPaths(out)...)
	for _, p := range paths {
		if err := p.Shift(); err != nil {
			return nil, err
		}
		if err := p.ToLogOutput().Shift(); err != nil {
			return nil, err
		}
	}

	sentinel, err := b.sentinel()
	if err != nil {
		return nil, err
	}
	parser := callgrind.Parser{Sentinel: sentinel}
	var oldTable *callgrind.CostTable
	if base := out.ToBasePath(); base.Exists() {
		if oldTable, err = parser.Parse(base); err != nil {
			return nil, err
		}
	}

	if err := runCallgrind(b, meta, out, scoped); err != nil {
		return nil, err
	}
	newTable, err := parser.Parse(out)
	if err != nil {
		return nil, err
	}

	outcome, err := finish(b, meta, out, newTable, oldTable, bm.Baselines(), flamegraph.BaselineGenerator{}, sentinel)
	if err != nil {
		return nil, err
	}
	exe, exeArgs := b.executable(meta)
	tools, err := b.Config.Tools.Run(meta.runEnv(), exe, exeArgs, b.Config.RunOptions, out, false, b.ModulePath, scoped)
	if err != nil {
		return nil, err
	}
	outcome.Summary.Tools = tools
	return outcome, nil
}

// SaveBaselineBenchmark runs fresh and stores the result in a named
// baseline, comparing with what the slot held before.
type SaveBaselineBenchmark struct {
	Name string
}

func (bm *SaveBaselineBenchmark) OutputPath(b *Bench, meta *Meta) tool.OutputPath {
	return b.outputPath(meta, tool.BaseOutKind(bm.Name), tool.NamedBaseline(bm.Name))
}

func (bm *SaveBaselineBenchmark) Baselines() summary.Baselines {
	return summary.Baselines{Current: bm.Name, Base: bm.Name}
}

func (bm *SaveBaselineBenchmark) runsProcesses() bool { return true }

func (bm *SaveBaselineBenchmark) Run(b *Bench, meta *Meta, scoped tool.ScopedRun) (*Outcome, error) {
	out := bm.OutputPath(b, meta)
	if err := out.Init(); err != nil {
		return nil, &abortError{err: err}
	}

	sentinel, err := b.sentinel()
	if err != nil {
		return nil, err
	}
	parser := callgrind.Parser{Sentinel: sentinel}
	var oldTable *callgrind.CostTable
	if out.Exists() {
		if oldTable, err = parser.Parse(out); err != nil {
			return nil, err
		}
		if err := out.Clear(); err != nil {
			return nil, err
		}
		if err := out.ToLogOutput().Clear(); err != nil {
			return nil, err
		}
	}

	if err := runCallgrind(b, meta, out, scoped); err != nil {
		return nil, err
	}
	newTable, err := parser.Parse(out)
	if err != nil {
		return nil, err
	}

	outcome, err := finish(b, meta, out, newTable, oldTable, bm.Baselines(), flamegraph.SaveBaselineGenerator{Baseline: bm.Name}, sentinel)
	if err != nil {
		return nil, err
	}
	exe, exeArgs := b.executable(meta)
	tools, err := b.Config.Tools.Run(meta.runEnv(), exe, exeArgs, b.Config.RunOptions, out, true, b.ModulePath, scoped)
	if err != nil {
		return nil, err
	}
	outcome.Summary.Tools = tools
	return outcome, nil
}

// LoadBaselineBenchmark compares two saved baselines without running
// anything.
type LoadBaselineBenchmark struct {
	Loaded   string
	Baseline string
}

func (bm *LoadBaselineBenchmark) OutputPath(b *Bench, meta *Meta) tool.OutputPath {
	return b.outputPath(meta, tool.BaseOutKind(bm.Loaded), tool.NamedBaseline(bm.Baseline))
}

func (bm *LoadBaselineBenchmark) Baselines() summary.Baselines {
	return summary.Baselines{Current: bm.Loaded, Base: bm.Baseline}
}

func (bm *LoadBaselineBenchmark) runsProcesses() bool { return false }

func (bm *LoadBaselineBenchmark) Run(b *Bench, meta *Meta, _ tool.ScopedRun) (*Outcome, error) {
	out := bm.OutputPath(b, meta)
	sentinel, err := b.sentinel()
	if err != nil {
		return nil, err
	}
	parser := callgrind.Parser{Sentinel: sentinel}
	newTable, err := parser.Parse(out)
	if err != nil {
		return nil, fmt.Errorf("loading baseline %q: %w", bm.Loaded, err)
	}
	oldTable, err := parser.Parse(out.ToBasePath())
	if err != nil {
		return nil, fmt.Errorf("loading baseline %q: %w", bm.Baseline, err)
	}

	outcome, err := finish(b, meta, out, newTable, oldTable, bm.Baselines(),
		flamegraph.LoadBaselineGenerator{Loaded: bm.Loaded, Baseline: bm.Baseline}, sentinel)
	if err != nil {
		return nil, err
	}
	tools, err := b.Config.Tools.RunLoadedVsBase(meta.runEnv(), out)
	if err != nil {
		return nil, err
	}
	outcome.Summary.Tools = tools
	return outcome, nil
}

// runCallgrind runs b once under callgrind writing into out.
func runCallgrind(b *Bench, meta *Meta, out tool.OutputPath, scoped tool.ScopedRun) error {
	if scoped == nil {
		scoped = func(run func(tool.Scope) error) error { return run(tool.Scope{}) }
	}
	logPath := out.ToLogOutput()
	args := b.Config.CallgrindArgs.Clone()
	args.SetOutputArg(out, "")
	args.SetLogArg(logPath, "")

	exe, exeArgs := b.executable(meta)
	cmd := tool.NewCommand(tool.Callgrind, meta.Valgrind, meta.NoCapture)
	var output *tool.Output
	err := scoped(func(scope tool.Scope) error {
		var runErr error
		output, runErr = cmd.Run(args, exe, exeArgs, b.Config.RunOptions, logPath, b.ModulePath, scope)
		return runErr
	})
	if err != nil {
		return err
	}
	if output != nil {
		logging.DumpOutput(tool.Callgrind.ID(), output.Stdout, output.Stderr)
	}
	return nil
}

// finish builds the summary shared by all strategies: the costs diff, the
// regression check and the flame graphs.
func finish(b *Bench, meta *Meta, out tool.OutputPath, newTable, oldTable *callgrind.CostTable, baselines summary.Baselines, gen flamegraph.Generator, sentinel *callgrind.Sentinel) (*Outcome, error) {
	var oldTotal *callgrind.Costs
	if oldTable != nil {
		oldTotal = oldTable.Total
	}
	cs := callgrind.NewCostsSummary(newTable.Total, oldTotal)

	cg := &summary.CallgrindSummary{Summary: cs}
	var err error
	if cg.LogPaths, err = out.ToLogOutput().RealPaths(); err != nil {
		return nil, err
	}
	if cg.OutPaths, err = out.RealPaths(); err != nil {
		return nil, err
	}
	if b.Config.Regression != nil {
		cg.Regressions = b.Config.Regression.Check(cs)
	}

	fgConfig := flamegraph.Config{Kind: flamegraph.KindNone}
	if b.Config.Flamegraph != nil {
		fgConfig = *b.Config.Flamegraph
	}
	graphs, err := gen.Create(flamegraph.New(b.heading(), fgConfig), out, sentinel)
	if err != nil {
		logging.L().Warn("creating flamegraphs failed", zap.String("bench", b.ModulePath.String()), zap.Error(err))
		cg.FlamegraphError = err.Error()
	}
	cg.Flamegraphs = graphs

	s := &summary.BenchmarkSummary{
		Version:      api.Version,
		Kind:         meta.Mode.String(),
		ProjectRoot:  meta.ProjectRoot,
		BenchmarkExe: meta.Driver,
		ModulePath:   b.ModulePath.String(),
		Function:     b.Function,
		ID:           b.ID,
		Details:      b.Details,
		Baselines:    baselines,
		Callgrind:    cg,
	}
	return &Outcome{Summary: s, Costs: newTable.Total}, nil
}
