// Package callgrind parses callgrind output into cost tables, derives the
// cache based summary events and compares runs against each other.
package callgrind

import (
	"fmt"
	"strings"
)

// EventKind is a callgrind cost event. Derived events are computed from
// measured ones by Costs.MakeSummary.
type EventKind int

const (
	Ir EventKind = iota
	Dr
	Dw
	I1mr
	D1mr
	D1mw
	ILmr
	DLmr
	DLmw
	Bc
	Bcm
	Bi
	Bim
	Ge
	SysCount
	SysTime
	SysCPUTime
	L1hits
	LLhits
	RamHits
	TotalRW
	EstimatedCycles
)

type eventInfo struct {
	name        string
	description string
	derived     bool
}

var events = [...]eventInfo{
	Ir:              {"Ir", "Instructions", false},
	Dr:              {"Dr", "Data reads", false},
	Dw:              {"Dw", "Data writes", false},
	I1mr:            {"I1mr", "L1 instr read misses", false},
	D1mr:            {"D1mr", "L1 data read misses", false},
	D1mw:            {"D1mw", "L1 data write misses", false},
	ILmr:            {"ILmr", "LL instr read misses", false},
	DLmr:            {"DLmr", "LL data read misses", false},
	DLmw:            {"DLmw", "LL data write misses", false},
	Bc:              {"Bc", "Conditional branches", false},
	Bcm:             {"Bcm", "Mispredicted cond. branches", false},
	Bi:              {"Bi", "Indirect branches", false},
	Bim:             {"Bim", "Mispredicted ind. branches", false},
	Ge:              {"Ge", "Global bus events", false},
	SysCount:        {"sysCount", "Syscall count", false},
	SysTime:         {"sysTime", "Syscall time", false},
	SysCPUTime:      {"sysCpuTime", "Syscall cpu time", false},
	L1hits:          {"L1hits", "L1 Hits", true},
	LLhits:          {"LLhits", "LL Hits", true},
	RamHits:         {"RamHits", "RAM Hits", true},
	TotalRW:         {"TotalRW", "Total read+write", true},
	EstimatedCycles: {"EstimatedCycles", "Estimated Cycles", true},
}

// SummaryEvents are shown instead of the raw cache events once derived.
var SummaryEvents = []EventKind{Ir, L1hits, LLhits, RamHits, TotalRW, EstimatedCycles}

// cacheEvents are the measured events the derived events depend on.
var cacheEvents = []EventKind{Ir, Dr, Dw, I1mr, D1mr, D1mw, ILmr, DLmr, DLmw}

func (e EventKind) valid() bool { return e >= 0 && int(e) < len(events) }

func (e EventKind) String() string {
	if !e.valid() {
		return fmt.Sprintf("EventKind(%d)", int(e))
	}
	return events[e].name
}

// Description is the human readable name used in terminal output.
func (e EventKind) Description() string {
	if !e.valid() {
		return e.String()
	}
	return events[e].description
}

// IsDerived reports whether the event is computed rather than measured.
func (e EventKind) IsDerived() bool {
	return e.valid() && events[e].derived
}

// isCacheEvent reports whether the event is hidden once the summary events
// are available.
func (e EventKind) isCacheEvent() bool {
	for _, c := range cacheEvents[1:] {
		if c == e {
			return true
		}
	}
	return false
}

// ParseEventKind resolves an event name as used in callgrind output and
// configuration. Matching is case-insensitive.
func ParseEventKind(s string) (EventKind, error) {
	s = strings.TrimSpace(s)
	for i, info := range events {
		if strings.EqualFold(info.name, s) {
			return EventKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

func (e EventKind) MarshalText() ([]byte, error) {
	if !e.valid() {
		return nil, fmt.Errorf("invalid event kind %d", int(e))
	}
	return []byte(e.String()), nil
}

func (e *EventKind) UnmarshalText(text []byte) error {
	k, err := ParseEventKind(string(text))
	if err != nil {
		return err
	}
	*e = k
	return nil
}
