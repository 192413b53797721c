// Package api is the contract between a benchmark driver and cgbench: the
// benchmark tree the driver materializes and the configuration attached to
// each of its levels.
package api

import (
	"fmt"

	"github.com/mwiater/cgbench/internal/tool"
)

// Version is the protocol version. A driver built against another version
// is rejected.
const Version = "0.1.0"

// Mode selects how a bench is executed.
type Mode int

const (
	// ModeLibrary re-invokes the driver which calls the bench function.
	ModeLibrary Mode = iota
	// ModeBinary runs a command of the bench.
	ModeBinary
)

func (m Mode) String() string {
	if m == ModeBinary {
		return "bin"
	}
	return "lib"
}

// ParseMode accepts the mode selector of the command line.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "--lib-bench", "lib":
		return ModeLibrary, nil
	case "--bin-bench", "bin":
		return ModeBinary, nil
	default:
		return ModeLibrary, fmt.Errorf("unknown benchmark mode %q: expected --lib-bench or --bin-bench", s)
	}
}

// BenchmarkGroups is the root of the tree.
type BenchmarkGroups struct {
	Config      Config  `json:"config"`
	HasSetup    bool    `json:"has_setup,omitempty"`
	HasTeardown bool    `json:"has_teardown,omitempty"`
	Groups      []Group `json:"groups"`
}

// Group is a named collection of bench lists.
type Group struct {
	ID          string      `json:"id"`
	Config      *Config     `json:"config,omitempty"`
	CompareByID bool        `json:"compare_by_id,omitempty"`
	HasSetup    bool        `json:"has_setup,omitempty"`
	HasTeardown bool        `json:"has_teardown,omitempty"`
	Benches     []BenchList `json:"benches"`
}

// BenchList is one bench function with all its parameterizations.
type BenchList struct {
	Config  *Config `json:"config,omitempty"`
	Benches []Bench `json:"benches"`
}

// Bench is a single benchmark.
type Bench struct {
	ID       string `json:"id,omitempty"`
	Function string `json:"function"`
	// Args is a display string of the arguments.
	Args        string   `json:"args,omitempty"`
	Config      *Config  `json:"config,omitempty"`
	Command     *Command `json:"command,omitempty"`
	HasSetup    bool     `json:"has_setup,omitempty"`
	HasTeardown bool     `json:"has_teardown,omitempty"`
}

// Command is the executable of a binary bench.
type Command struct {
	Path string   `json:"path"`
	Args []string `json:"args,omitempty"`
}

// Name is the function name, qualified with the id if there is one.
func (b Bench) Name() string {
	if b.ID == "" {
		return b.Function
	}
	return b.Function + "." + b.ID
}

// ModulePath returns <module>::<group>::<function>.
func (b Bench) ModulePath(module tool.ModulePath, group string) tool.ModulePath {
	return module.Join(group).Join(b.Function)
}

// Validate checks what the schema cannot express.
func (g *BenchmarkGroups) Validate(mode Mode) error {
	seen := map[string]bool{}
	for _, group := range g.Groups {
		if seen[group.ID] {
			return fmt.Errorf("duplicate group id %q", group.ID)
		}
		seen[group.ID] = true
		for i, list := range group.Benches {
			for j, bench := range list.Benches {
				if mode == ModeBinary && bench.Command == nil {
					return fmt.Errorf("group %q: bench %s (%d/%d) has no command", group.ID, bench.Name(), i, j)
				}
			}
		}
	}
	return nil
}
