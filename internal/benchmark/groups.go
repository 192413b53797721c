// Package benchmark runs the benchmark tree: groups and benches in order,
// each bench under callgrind and the enabled secondary tools, compared with
// the selected baseline.
package benchmark

import (
	"fmt"
	"strconv"

	"github.com/mwiater/cgbench/internal/api"
	"github.com/mwiater/cgbench/internal/callgrind"
	"github.com/mwiater/cgbench/internal/format"
	"github.com/mwiater/cgbench/internal/summary"
	"github.com/mwiater/cgbench/internal/tool"
	"github.com/spf13/afero"
)

// runFlag is the first argument of every re-invocation of the driver.
const runFlag = "--cgbench-run"

// Meta is the context shared by all benches of one invocation.
type Meta struct {
	Mode api.Mode
	// Driver is the benchmark executable that invoked cgbench.
	Driver      string
	Module      tool.ModulePath
	TargetDir   string
	ProjectRoot string
	Valgrind    string
	NoCapture   tool.NoCapture
	// CallgrindArgs are appended to the configured callgrind arguments.
	CallgrindArgs []string
	// Limits override the configured regression limits when not nil.
	Limits   []callgrind.Limit
	FailFast bool
	Summary  summary.Format
	Printer  *format.Printer
	Fs       afero.Fs
}

func (m *Meta) runEnv() tool.RunEnv {
	return tool.RunEnv{Valgrind: m.Valgrind, ProjectRoot: m.ProjectRoot}
}

// Bench is a bench with its configuration resolved.
type Bench struct {
	Group       string
	BenchIndex  int
	Index       int
	ID          string
	Function    string
	Details     string
	ModulePath  tool.ModulePath
	Config      *api.Resolved
	Command     *api.Command
	HasSetup    bool
	HasTeardown bool
}

// Name is the function name qualified with the id.
func (b *Bench) Name() string {
	if b.ID == "" {
		return b.Function
	}
	return b.Function + "." + b.ID
}

// DisplayName is the module path qualified with the id.
func (b *Bench) DisplayName() string {
	if b.ID == "" {
		return b.ModulePath.String()
	}
	return b.ModulePath.String() + " " + b.ID
}

// heading is the flame graph title "<module path> <id>:<details>".
func (b *Bench) heading() string {
	if b.ID == "" && b.Details == "" {
		return b.ModulePath.String()
	}
	return b.ModulePath.String() + " " + b.ID + ":" + b.Details
}

func (b *Bench) outputPath(meta *Meta, kind tool.PathKind, baseline tool.BaselineKind) tool.OutputPath {
	return tool.NewOutputPath(meta.Fs, kind, tool.Callgrind, baseline, meta.TargetDir, meta.Module.Join(b.Group), b.Name())
}

// executable returns what valgrind runs: the driver for library benches,
// the command for binary benches.
func (b *Bench) executable(meta *Meta) (string, []string) {
	if meta.Mode == api.ModeBinary && b.Command != nil {
		return b.Command.Path, append([]string(nil), b.Command.Args...)
	}
	return meta.Driver, []string{runFlag, b.Group, strconv.Itoa(b.BenchIndex), strconv.Itoa(b.Index), b.ModulePath.String()}
}

// sentinel restricts the costs to the entry point, if any.
func (b *Bench) sentinel() (*callgrind.Sentinel, error) {
	if b.Config.EntryPoint == "" {
		return nil, nil
	}
	s, err := callgrind.NewSentinel(b.Config.EntryPoint)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// assistantPath is the module path naming a bench level assistant.
func (b *Bench) assistantPath() tool.ModulePath {
	if b.ID == "" {
		return b.ModulePath
	}
	return b.ModulePath.Join(b.ID)
}

// Group is a group of benches run in order.
type Group struct {
	ID          string
	ModulePath  tool.ModulePath
	CompareByID bool
	HasSetup    bool
	HasTeardown bool
	Benches     []*Bench
}

// Groups is the resolved benchmark tree.
type Groups struct {
	HasSetup    bool
	HasTeardown bool
	Groups      []*Group
}

// NewGroups resolves the configuration cascade of every bench of tree.
func NewGroups(tree *api.BenchmarkGroups, meta *Meta) (*Groups, error) {
	groups := &Groups{HasSetup: tree.HasSetup, HasTeardown: tree.HasTeardown}
	for _, g := range tree.Groups {
		group := &Group{
			ID:          g.ID,
			ModulePath:  meta.Module.Join(g.ID),
			CompareByID: g.CompareByID,
			HasSetup:    g.HasSetup,
			HasTeardown: g.HasTeardown,
		}
		for i, list := range g.Benches {
			for j, bench := range list.Benches {
				cfg := tree.Config.Merge(g.Config, list.Config, bench.Config)
				resolved, err := cfg.Resolve(meta.Mode, meta.CallgrindArgs...)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", bench.ModulePath(meta.Module, g.ID), err)
				}
				applyRegressionOverrides(resolved, meta)
				group.Benches = append(group.Benches, &Bench{
					Group:       g.ID,
					BenchIndex:  i,
					Index:       j,
					ID:          bench.ID,
					Function:    bench.Function,
					Details:     bench.Args,
					ModulePath:  bench.ModulePath(meta.Module, g.ID),
					Config:      resolved,
					Command:     bench.Command,
					HasSetup:    bench.HasSetup,
					HasTeardown: bench.HasTeardown,
				})
			}
		}
		groups.Groups = append(groups.Groups, group)
	}
	return groups, nil
}

// applyRegressionOverrides lets the command line limits replace the
// configured ones. Fail fast on the command line only sharpens configured
// checks.
func applyRegressionOverrides(r *api.Resolved, meta *Meta) {
	if meta.Limits != nil {
		reg := callgrind.RegressionConfig{Limits: meta.Limits, FailFast: meta.FailFast}.WithDefaults()
		r.Regression = &reg
		return
	}
	if meta.FailFast && r.Regression != nil {
		r.Regression.FailFast = true
	}
}
