package flamegraph

import (
	"bufio"
	"fmt"

	"github.com/mwiater/cgbench/internal/callgrind"
	"github.com/mwiater/cgbench/internal/logging"
	"github.com/mwiater/cgbench/internal/tool"
	"go.uber.org/zap"
)

// Summary lists the flame graphs rendered for one event.
type Summary struct {
	Event       callgrind.EventKind `json:"event_kind" yaml:"event_kind"`
	RegularPath string              `json:"regular_path,omitempty" yaml:"regular_path,omitempty"`
	BasePath    string              `json:"base_path,omitempty" yaml:"base_path,omitempty"`
	DiffPath    string              `json:"diff_path,omitempty" yaml:"diff_path,omitempty"`
}

// Generator renders the flame graphs of one benchmark run. Each benchmark
// strategy has its own generator.
type Generator interface {
	Create(fg *Flamegraph, out tool.OutputPath, sentinel *callgrind.Sentinel) ([]Summary, error)
}

// BaselineGenerator rotates the previous graphs and renders the regular and
// the differential graphs of a fresh run.
type BaselineGenerator struct{}

// SaveBaselineGenerator renders the regular graphs into a named baseline.
type SaveBaselineGenerator struct {
	Baseline string
}

// LoadBaselineGenerator renders the differential graphs between two named
// baselines without running anything.
type LoadBaselineGenerator struct {
	Loaded   string
	Baseline string
}

func (BaselineGenerator) Create(fg *Flamegraph, out tool.OutputPath, sentinel *callgrind.Sentinel) ([]Summary, error) {
	// The event of the identity is irrelevant for the bookkeeping below.
	path := NewOutputPath(out, callgrind.Ir)
	if err := path.Init(); err != nil {
		return nil, err
	}
	if err := path.ToDiffPath().Clear(true); err != nil {
		return nil, err
	}
	if err := path.Shift(true); err != nil {
		return nil, err
	}
	if fg.disabled() {
		return nil, nil
	}

	current, base, err := fg.parse(out, sentinel, false)
	if err != nil {
		return nil, err
	}

	var summaries []Summary
	for _, event := range fg.Config.EventKinds {
		path = path.WithEvent(event)
		summary := Summary{Event: event}
		lines, err := current.Lines(event)
		if err != nil {
			return nil, err
		}
		if fg.IsRegular() {
			if err := write(path, lines, false, fg.options(event)); err != nil {
				return nil, err
			}
			summary.RegularPath = path.Path()
		}
		if base != nil {
			if err := fg.writeDifferential(path, base, event, lines); err != nil {
				return nil, err
			}
			summary.BasePath = path.ToBasePath().Path()
			summary.DiffPath = path.ToDiffPath().Path()
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (g SaveBaselineGenerator) Create(fg *Flamegraph, out tool.OutputPath, sentinel *callgrind.Sentinel) ([]Summary, error) {
	path := NewOutputPath(out, callgrind.Ir)
	if err := path.Init(); err != nil {
		return nil, err
	}
	if err := path.Clear(true); err != nil {
		return nil, err
	}
	if err := path.ClearDiff(); err != nil {
		return nil, err
	}
	if fg.disabled() || !fg.IsRegular() {
		return nil, nil
	}

	current, _, err := fg.parse(out, sentinel, true)
	if err != nil {
		return nil, err
	}

	var summaries []Summary
	for _, event := range fg.Config.EventKinds {
		path = path.WithEvent(event)
		lines, err := current.Lines(event)
		if err != nil {
			return nil, err
		}
		if err := write(path, lines, false, fg.options(event)); err != nil {
			return nil, err
		}
		logging.L().Debug("flamegraph saved", zap.String("baseline", g.Baseline), zap.String("path", path.Path()))
		summaries = append(summaries, Summary{Event: event, RegularPath: path.Path()})
	}
	return summaries, nil
}

func (g LoadBaselineGenerator) Create(fg *Flamegraph, out tool.OutputPath, sentinel *callgrind.Sentinel) ([]Summary, error) {
	path := NewOutputPath(out, callgrind.Ir)
	if err := path.ToDiffPath().Clear(true); err != nil {
		return nil, err
	}
	if fg.disabled() || !fg.IsDifferential() {
		return nil, nil
	}

	current, base, err := fg.parse(out, sentinel, false)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, fmt.Errorf("unable to create a differential flamegraph: baseline %q not found", g.Baseline)
	}

	var summaries []Summary
	for _, event := range fg.Config.EventKinds {
		path = path.WithEvent(event)
		lines, err := current.Lines(event)
		if err != nil {
			return nil, err
		}
		if err := fg.writeDifferential(path, base, event, lines); err != nil {
			return nil, err
		}
		summaries = append(summaries, Summary{
			Event:       event,
			RegularPath: path.Path(),
			BasePath:    path.ToBasePath().Path(),
			DiffPath:    path.ToDiffPath().Path(),
		})
	}
	return summaries, nil
}

// parse folds the callgrind output of out and, when differential graphs are
// wanted and exist, of its baseline.
func (fg *Flamegraph) parse(out tool.OutputPath, sentinel *callgrind.Sentinel, noDifferential bool) (*Map, *Map, error) {
	parser := callgrind.Parser{Sentinel: sentinel}
	table, err := parser.Parse(out)
	if err != nil {
		return nil, nil, err
	}
	current := NewMap(table)
	if current.IsEmpty() {
		return nil, nil, fmt.Errorf("unable to create a flamegraph: %w", ErrNoStacks)
	}

	var base *Map
	if basePath := out.ToBasePath(); !noDifferential && fg.IsDifferential() && basePath.Exists() {
		baseTable, err := parser.Parse(basePath)
		if err != nil {
			return nil, nil, err
		}
		base = NewMap(baseTable)
	}

	if fg.hasDerivedEvents() {
		if err := current.MakeSummary(); err != nil {
			return nil, nil, err
		}
		if base != nil {
			if err := base.MakeSummary(); err != nil {
				return nil, nil, err
			}
		}
	}
	return current, base, nil
}

func (fg *Flamegraph) writeDifferential(path OutputPath, base *Map, event callgrind.EventKind, lines []string) error {
	baseLines, err := base.Lines(event)
	if err != nil {
		return err
	}
	diff, err := Differential(baseLines, lines, fg.Config.NormalizeDifferential)
	if err != nil {
		return err
	}
	return write(path.ToDiffPath(), diff, true, fg.options(event))
}

func write(path OutputPath, lines []string, differential bool, opts renderOptions) error {
	f, err := path.create()
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := render(w, lines, differential, opts); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed creating a flamegraph at %q: %w", path.Path(), err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed flushing flamegraph %q: %w", path.Path(), err)
	}
	return f.Close()
}
