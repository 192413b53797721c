package callgrind

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Percentage is a relative change in percent. Unbounded marks an increase
// from zero, which has no finite percentage.
type Percentage float64

// Unbounded is the percentage of a change from 0 to a positive count.
var Unbounded = Percentage(math.Inf(1))

const unboundedText = "+inf"

// IsUnbounded reports whether p is Unbounded.
func (p Percentage) IsUnbounded() bool { return math.IsInf(float64(p), 1) }

func (p Percentage) String() string {
	if p.IsUnbounded() {
		return unboundedText
	}
	return fmt.Sprintf("%+.5f%%", float64(p))
}

func (p Percentage) MarshalJSON() ([]byte, error) {
	if p.IsUnbounded() {
		return json.Marshal(unboundedText)
	}
	return json.Marshal(float64(p))
}

func (p *Percentage) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		if text != unboundedText {
			return fmt.Errorf("invalid percentage %q", text)
		}
		*p = Unbounded
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid percentage: %w", err)
	}
	*p = Percentage(f)
	return nil
}

func (p Percentage) MarshalYAML() (any, error) {
	if p.IsUnbounded() {
		return unboundedText, nil
	}
	return float64(p), nil
}

func (p *Percentage) UnmarshalYAML(node *yaml.Node) error {
	if node.Value == unboundedText {
		*p = Unbounded
		return nil
	}
	f, err := strconv.ParseFloat(node.Value, 64)
	if err != nil {
		return fmt.Errorf("invalid percentage %q", node.Value)
	}
	*p = Percentage(f)
	return nil
}

// PercentageDiff returns (new-old)/old*100. 0 -> 0 is no change and
// 0 -> n is Unbounded.
func PercentageDiff(newValue, oldValue uint64) Percentage {
	if oldValue == 0 {
		if newValue == 0 {
			return 0
		}
		return Unbounded
	}
	return Percentage((float64(newValue) - float64(oldValue)) / float64(oldValue) * 100)
}

// Diffs compares the two counts of an event.
type Diffs struct {
	// Absolute is old - new.
	Absolute   int64      `json:"absolute" yaml:"absolute"`
	Percentage Percentage `json:"percentage" yaml:"percentage"`
}

// EventDiff holds the counts of one event in the new and the old run. Diffs
// is only set when both counts exist.
type EventDiff struct {
	Kind  EventKind `json:"kind" yaml:"kind"`
	New   *uint64   `json:"new,omitempty" yaml:"new,omitempty"`
	Old   *uint64   `json:"old,omitempty" yaml:"old,omitempty"`
	Diffs *Diffs    `json:"diffs,omitempty" yaml:"diffs,omitempty"`
}

// CostsSummary compares the total costs of two runs event by event.
type CostsSummary struct {
	Events []EventDiff `json:"events" yaml:"events"`
}

// NewCostsSummary compares newCosts with oldCosts, which may be nil. Events
// are ordered as in newCosts, followed by events only present in oldCosts.
func NewCostsSummary(newCosts, oldCosts *Costs) CostsSummary {
	var kinds []EventKind
	seen := map[EventKind]bool{}
	for _, c := range []*Costs{newCosts, oldCosts} {
		if c == nil {
			continue
		}
		for _, k := range c.Kinds() {
			if !seen[k] {
				seen[k] = true
				kinds = append(kinds, k)
			}
		}
	}

	summary := CostsSummary{Events: make([]EventDiff, 0, len(kinds))}
	for _, k := range kinds {
		d := EventDiff{Kind: k, New: lookup(newCosts, k), Old: lookup(oldCosts, k)}
		if d.New != nil && d.Old != nil {
			d.Diffs = &Diffs{
				Absolute:   int64(*d.Old) - int64(*d.New),
				Percentage: PercentageDiff(*d.New, *d.Old),
			}
		}
		summary.Events = append(summary.Events, d)
	}
	return summary
}

func lookup(c *Costs, kind EventKind) *uint64 {
	if c == nil || !c.Has(kind) {
		return nil
	}
	v, _ := c.Get(kind)
	return &v
}

// Diff returns the comparison of kind.
func (s CostsSummary) Diff(kind EventKind) (EventDiff, bool) {
	for _, d := range s.Events {
		if d.Kind == kind {
			return d, true
		}
	}
	return EventDiff{}, false
}

// HasOld reports whether anything was compared.
func (s CostsSummary) HasOld() bool {
	for _, d := range s.Events {
		if d.Old != nil {
			return true
		}
	}
	return false
}

// IsUnchanged reports whether every compared event has the same counts.
func (s CostsSummary) IsUnchanged() bool {
	for _, d := range s.Events {
		if d.Diffs != nil && d.Diffs.Absolute != 0 {
			return false
		}
	}
	return true
}
