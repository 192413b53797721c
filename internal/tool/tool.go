// Package tool covers everything between the engine and a Valgrind process:
// tool identities, deterministic output paths and baseline rotation, argument
// assembly, subprocess invocation and the parsing of Valgrind log files.
package tool

import (
	"fmt"
	"strings"
)

// ValgrindTool is the closed set of supported profilers. Callgrind is the
// primary, cost-producing tool; the others are secondary diagnostic tools.
type ValgrindTool int

const (
	Callgrind ValgrindTool = iota
	Memcheck
	Helgrind
	DRD
	Massif
	DHAT
	BBV
)

// AllTools lists every tool in display order.
var AllTools = []ValgrindTool{Callgrind, Memcheck, Helgrind, DRD, Massif, DHAT, BBV}

// ID returns the id used by valgrind's --tool option and as file name prefix.
func (t ValgrindTool) ID() string {
	switch t {
	case Callgrind:
		return "callgrind"
	case Memcheck:
		return "memcheck"
	case Helgrind:
		return "helgrind"
	case DRD:
		return "drd"
	case Massif:
		return "massif"
	case DHAT:
		return "dhat"
	case BBV:
		return "exp-bbv"
	default:
		return fmt.Sprintf("unknown-tool(%d)", int(t))
	}
}

func (t ValgrindTool) String() string { return t.ID() }

// HasOutputFile reports whether the tool writes an "out" artifact in addition
// to its log file.
func (t ValgrindTool) HasOutputFile() bool {
	switch t {
	case Callgrind, DHAT, BBV, Massif:
		return true
	default:
		return false
	}
}

// outFileOption is the valgrind option naming the tool's output file.
func (t ValgrindTool) outFileOption() string {
	switch t {
	case Callgrind:
		return "callgrind-out-file"
	case Massif:
		return "massif-out-file"
	case DHAT:
		return "dhat-out-file"
	case BBV:
		return "bb-out-file"
	default:
		return ""
	}
}

// ParseTool resolves a tool id. "bbv" is accepted as an alias of "exp-bbv".
func ParseTool(s string) (ValgrindTool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "callgrind":
		return Callgrind, nil
	case "memcheck":
		return Memcheck, nil
	case "helgrind":
		return Helgrind, nil
	case "drd":
		return DRD, nil
	case "massif":
		return Massif, nil
	case "dhat":
		return DHAT, nil
	case "exp-bbv", "bbv":
		return BBV, nil
	default:
		return 0, fmt.Errorf("unknown tool %q", s)
	}
}

func (t ValgrindTool) MarshalText() ([]byte, error) {
	return []byte(t.ID()), nil
}

func (t *ValgrindTool) UnmarshalText(text []byte) error {
	parsed, err := ParseTool(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
