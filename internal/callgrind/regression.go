package callgrind

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mwiater/cgbench/internal/logging"
	"go.uber.org/zap"
)

// Limit is a percentage threshold of one event. A positive limit is exceeded
// by a larger increase, a negative limit by a smaller decrease.
type Limit struct {
	Kind       EventKind `json:"event" yaml:"event"`
	Percentage float64   `json:"percentage" yaml:"percentage"`
}

// RegressionConfig is evaluated once per bench run.
type RegressionConfig struct {
	Limits   []Limit `json:"limits" yaml:"limits"`
	FailFast bool    `json:"fail_fast" yaml:"fail_fast"`
}

// DefaultLimits apply when regression checks are enabled without limits.
var DefaultLimits = []Limit{{Kind: EstimatedCycles, Percentage: 10}}

// Regression is a violated limit.
type Regression struct {
	Kind       EventKind  `json:"event" yaml:"event"`
	New        uint64     `json:"new" yaml:"new"`
	Old        uint64     `json:"old" yaml:"old"`
	Percentage Percentage `json:"diff_pct" yaml:"diff_pct"`
	Limit      float64    `json:"limit" yaml:"limit"`
}

func (r Regression) String() string {
	return fmt.Sprintf("%s: %s exceeds limit of %+.5f%%", r.Kind, r.Percentage, r.Limit)
}

// WithDefaults returns c with DefaultLimits when no limit is set.
func (c RegressionConfig) WithDefaults() RegressionConfig {
	if len(c.Limits) == 0 {
		c.Limits = append([]Limit(nil), DefaultLimits...)
	}
	return c
}

// Check returns every violated limit. Events the summary does not contain
// are skipped with a warning; events without an old count are skipped.
func (c RegressionConfig) Check(summary CostsSummary) []Regression {
	var regressions []Regression
	for _, limit := range c.Limits {
		diff, ok := summary.Diff(limit.Kind)
		if !ok {
			logging.L().Warn("regression check: event not collected, skipping", zap.Stringer("event", limit.Kind))
			continue
		}
		if diff.Diffs == nil {
			continue
		}
		pct := diff.Diffs.Percentage
		var violated bool
		if limit.Percentage >= 0 {
			violated = float64(pct) > limit.Percentage
		} else {
			violated = float64(pct) < limit.Percentage
		}
		if violated {
			regressions = append(regressions, Regression{
				Kind:       limit.Kind,
				New:        *diff.New,
				Old:        *diff.Old,
				Percentage: pct,
				Limit:      limit.Percentage,
			})
		}
	}
	return regressions
}

// ParseLimits parses "Ir=5,EstimatedCycles=-2.5".
func ParseLimits(s string) ([]Limit, error) {
	var limits []Limit
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid regression limit %q: expected EVENT=PERCENTAGE", part)
		}
		kind, err := ParseEventKind(name)
		if err != nil {
			return nil, fmt.Errorf("invalid regression limit %q: %w", part, err)
		}
		pct, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(value), "%"), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid regression limit %q: %w", part, err)
		}
		limits = append(limits, Limit{Kind: kind, Percentage: pct})
	}
	return limits, nil
}
