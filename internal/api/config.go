package api

import (
	"fmt"

	"github.com/mwiater/cgbench/internal/callgrind"
	"github.com/mwiater/cgbench/internal/flamegraph"
	"github.com/mwiater/cgbench/internal/tool"
)

// DefaultEntryPoint is the toggle-collect glob and sentinel of library benches.
const DefaultEntryPoint = "*cgbench_run*"

// DefaultTruncateDescription is the maximum length of the args shown in headers.
const DefaultTruncateDescription = 50

// Config can be attached to every level of the tree. Unset fields inherit
// from the level above, lists are appended.
type Config struct {
	EnvClear      *bool    `json:"env_clear,omitempty"`
	Envs          []string `json:"envs,omitempty"`
	CallgrindArgs []string `json:"callgrind_args,omitempty"`
	// EntryPoint is "none", "default" or a glob over function names.
	EntryPoint          *string           `json:"entry_point,omitempty"`
	Tools               []ToolConfig      `json:"tools,omitempty"`
	Flamegraph          *FlamegraphConfig `json:"flamegraph,omitempty"`
	Regression          *RegressionConfig `json:"regression,omitempty"`
	Sandbox             *Sandbox          `json:"sandbox,omitempty"`
	TruncateDescription *int              `json:"truncate_description,omitempty"`
	CurrentDir          *string           `json:"current_dir,omitempty"`
	ExitWith            *tool.ExitWith    `json:"exit_with,omitempty"`
	Stdin               *tool.Stdin       `json:"stdin,omitempty"`
	Stdout              *tool.Stdio       `json:"stdout,omitempty"`
	Stderr              *tool.Stdio       `json:"stderr,omitempty"`
}

// ToolConfig configures a secondary valgrind tool.
type ToolConfig struct {
	Tool            tool.ValgrindTool `json:"tool"`
	Enabled         *bool             `json:"enabled,omitempty"`
	Args            []string          `json:"args,omitempty"`
	OutfileModifier string            `json:"outfile_modifier,omitempty"`
}

// FlamegraphConfig enables flame graphs. Its presence alone renders the
// defaults.
type FlamegraphConfig struct {
	Kind                  *flamegraph.Kind      `json:"kind,omitempty"`
	EventKinds            []callgrind.EventKind `json:"event_kinds,omitempty"`
	Direction             *flamegraph.Direction `json:"direction,omitempty"`
	NegateDifferential    *bool                 `json:"negate_differential,omitempty"`
	NormalizeDifferential *bool                 `json:"normalize_differential,omitempty"`
	Title                 *string               `json:"title,omitempty"`
	Subtitle              *string               `json:"subtitle,omitempty"`
	MinWidth              *float64              `json:"min_width,omitempty"`
}

// RegressionConfig enables regression checks. Without limits the default
// limits apply.
type RegressionConfig struct {
	Limits   []callgrind.Limit `json:"limits,omitempty"`
	FailFast *bool             `json:"fail_fast,omitempty"`
}

// Sandbox runs binary benches in a temporary directory.
type Sandbox struct {
	Enabled bool `json:"enabled"`
	// Fixtures is a directory copied into the sandbox.
	Fixtures string `json:"fixtures,omitempty"`
}

// Merge returns c overridden by the non-nil configs in order.
func (c Config) Merge(others ...*Config) Config {
	out := c.clone()
	for _, o := range others {
		if o == nil {
			continue
		}
		if o.EnvClear != nil {
			out.EnvClear = o.EnvClear
		}
		out.Envs = append(out.Envs, o.Envs...)
		out.CallgrindArgs = append(out.CallgrindArgs, o.CallgrindArgs...)
		if o.EntryPoint != nil {
			out.EntryPoint = o.EntryPoint
		}
		out.Tools = append(out.Tools, o.Tools...)
		if o.Flamegraph != nil {
			out.Flamegraph = out.Flamegraph.merge(o.Flamegraph)
		}
		if o.Regression != nil {
			out.Regression = out.Regression.merge(o.Regression)
		}
		if o.Sandbox != nil {
			out.Sandbox = o.Sandbox
		}
		if o.TruncateDescription != nil {
			out.TruncateDescription = o.TruncateDescription
		}
		if o.CurrentDir != nil {
			out.CurrentDir = o.CurrentDir
		}
		if o.ExitWith != nil {
			out.ExitWith = o.ExitWith
		}
		if o.Stdin != nil {
			out.Stdin = o.Stdin
		}
		if o.Stdout != nil {
			out.Stdout = o.Stdout
		}
		if o.Stderr != nil {
			out.Stderr = o.Stderr
		}
	}
	return out
}

func (c Config) clone() Config {
	out := c
	out.Envs = append([]string(nil), c.Envs...)
	out.CallgrindArgs = append([]string(nil), c.CallgrindArgs...)
	out.Tools = append([]ToolConfig(nil), c.Tools...)
	return out
}

func (f *FlamegraphConfig) merge(o *FlamegraphConfig) *FlamegraphConfig {
	out := FlamegraphConfig{}
	if f != nil {
		out = *f
	}
	if o.Kind != nil {
		out.Kind = o.Kind
	}
	if len(o.EventKinds) > 0 {
		out.EventKinds = append([]callgrind.EventKind(nil), o.EventKinds...)
	}
	if o.Direction != nil {
		out.Direction = o.Direction
	}
	if o.NegateDifferential != nil {
		out.NegateDifferential = o.NegateDifferential
	}
	if o.NormalizeDifferential != nil {
		out.NormalizeDifferential = o.NormalizeDifferential
	}
	if o.Title != nil {
		out.Title = o.Title
	}
	if o.Subtitle != nil {
		out.Subtitle = o.Subtitle
	}
	if o.MinWidth != nil {
		out.MinWidth = o.MinWidth
	}
	return &out
}

func (r *RegressionConfig) merge(o *RegressionConfig) *RegressionConfig {
	out := RegressionConfig{}
	if r != nil {
		out = *r
	}
	if len(o.Limits) > 0 {
		out.Limits = append([]callgrind.Limit(nil), o.Limits...)
	}
	if o.FailFast != nil {
		out.FailFast = o.FailFast
	}
	return &out
}

// Resolved is a fully merged configuration with defaults applied.
type Resolved struct {
	EnvClear      bool
	Envs          []string
	CallgrindArgs tool.Args
	// EntryPoint is empty when costs are not restricted to an entry point.
	EntryPoint string
	Tools      tool.Configs
	// Flamegraph is nil when flame graphs are disabled.
	Flamegraph *flamegraph.Config
	// Regression is nil when regressions are not checked.
	Regression          *callgrind.RegressionConfig
	Sandbox             Sandbox
	TruncateDescription int
	RunOptions          tool.RunOptions
}

// Resolve applies the defaults of mode. extraArgs are raw callgrind
// arguments appended after the configured ones.
func (c Config) Resolve(mode Mode, extraArgs ...string) (*Resolved, error) {
	r := &Resolved{
		EnvClear:            true,
		Envs:                append([]string(nil), c.Envs...),
		TruncateDescription: DefaultTruncateDescription,
	}
	if c.EnvClear != nil {
		r.EnvClear = *c.EnvClear
	}
	if c.TruncateDescription != nil {
		r.TruncateDescription = *c.TruncateDescription
	}

	args, err := tool.NewArgs(tool.Callgrind, c.CallgrindArgs, extraArgs)
	if err != nil {
		return nil, fmt.Errorf("callgrind arguments: %w", err)
	}
	r.CallgrindArgs = args

	r.EntryPoint = resolveEntryPoint(mode, c.EntryPoint)
	if r.EntryPoint != "" {
		if _, err := callgrind.NewSentinel(r.EntryPoint); err != nil {
			return nil, err
		}
		r.CallgrindArgs.InsertToggleCollect(r.EntryPoint)
	}

	if r.Tools, err = resolveTools(c.Tools); err != nil {
		return nil, err
	}

	if c.Flamegraph != nil {
		fg := c.Flamegraph.resolve()
		r.Flamegraph = &fg
	}
	if c.Regression != nil {
		reg := callgrind.RegressionConfig{Limits: c.Regression.Limits}
		if c.Regression.FailFast != nil {
			reg.FailFast = *c.Regression.FailFast
		}
		reg = reg.WithDefaults()
		r.Regression = &reg
	}
	if c.Sandbox != nil {
		r.Sandbox = *c.Sandbox
	}

	r.RunOptions = tool.RunOptions{
		EnvClear: r.EnvClear,
		Envs:     r.Envs,
		Stdin:    c.Stdin,
		Stdout:   c.Stdout,
		Stderr:   c.Stderr,
	}
	if c.CurrentDir != nil {
		r.RunOptions.CurrentDir = *c.CurrentDir
	}
	if c.ExitWith != nil {
		r.RunOptions.ExitWith = *c.ExitWith
	}
	return r, nil
}

func resolveEntryPoint(mode Mode, entry *string) string {
	if entry == nil || *entry == "default" {
		if mode == ModeLibrary {
			return DefaultEntryPoint
		}
		return ""
	}
	if *entry == "none" {
		return ""
	}
	return *entry
}

// resolveTools folds the tool entries by tool in order of first appearance.
// The last enabled flag wins and arguments accumulate.
func resolveTools(entries []ToolConfig) (tool.Configs, error) {
	type folded struct {
		enabled  bool
		args     [][]string
		modifier string
	}
	var order []tool.ValgrindTool
	byTool := map[tool.ValgrindTool]*folded{}
	for _, e := range entries {
		if e.Tool == tool.Callgrind {
			return nil, fmt.Errorf("callgrind is the primary tool and cannot be configured as a secondary tool")
		}
		f, ok := byTool[e.Tool]
		if !ok {
			f = &folded{enabled: true}
			byTool[e.Tool] = f
			order = append(order, e.Tool)
		}
		if e.Enabled != nil {
			f.enabled = *e.Enabled
		}
		f.args = append(f.args, e.Args)
		if e.OutfileModifier != "" {
			f.modifier = e.OutfileModifier
		}
	}

	configs := make(tool.Configs, 0, len(order))
	for _, t := range order {
		f := byTool[t]
		args, err := tool.NewArgs(t, f.args...)
		if err != nil {
			return nil, fmt.Errorf("%s arguments: %w", t.ID(), err)
		}
		configs = append(configs, tool.Config{Tool: t, Enabled: f.enabled, Args: args, OutfileModifier: f.modifier})
	}
	return configs, nil
}

func (f *FlamegraphConfig) resolve() flamegraph.Config {
	cfg := flamegraph.DefaultConfig()
	if f.Kind != nil {
		cfg.Kind = *f.Kind
	}
	if len(f.EventKinds) > 0 {
		cfg.EventKinds = append([]callgrind.EventKind(nil), f.EventKinds...)
	}
	if f.Direction != nil {
		cfg.Direction = *f.Direction
	}
	if f.NegateDifferential != nil {
		cfg.NegateDifferential = *f.NegateDifferential
	}
	if f.NormalizeDifferential != nil {
		cfg.NormalizeDifferential = *f.NormalizeDifferential
	}
	if f.Title != nil {
		cfg.Title = *f.Title
	}
	if f.Subtitle != nil {
		cfg.Subtitle = *f.Subtitle
	}
	if f.MinWidth != nil {
		cfg.MinWidth = *f.MinWidth
	}
	return cfg
}
