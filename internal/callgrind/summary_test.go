package callgrind

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func costsOf(pairs map[EventKind]uint64) *Costs {
	c := &Costs{}
	for _, k := range []EventKind{Ir, Dr, Dw, I1mr, D1mr, D1mw, ILmr, DLmr, DLmw, Bc} {
		if v, ok := pairs[k]; ok {
			c.Add(k, v)
		}
	}
	return c
}

func TestDerivedEventBeforeSummaryPanics(t *testing.T) {
	c := costsOf(map[EventKind]uint64{Ir: 1})
	assert.Panics(t, func() { _, _ = c.Get(EstimatedCycles) })
	assert.NotPanics(t, func() { _ = c.Has(EstimatedCycles) })
	assert.Panics(t, func() { c.Add(L1hits, 1) })
}

func TestMakeSummaryMissingEvents(t *testing.T) {
	c := costsOf(map[EventKind]uint64{Ir: 10, Dr: 3})
	assert.ErrorIs(t, c.MakeSummary(), ErrMissingEvents)
	assert.ErrorIs(t, c.MakeSummary(), ErrMissingEvents)
	_, ok := c.Get(EstimatedCycles)
	assert.False(t, ok)
}

func TestMakeSummaryAndAdd(t *testing.T) {
	c := costsOf(map[EventKind]uint64{Ir: 100, Dr: 0, Dw: 0, I1mr: 0, D1mr: 0, D1mw: 0, ILmr: 0, DLmr: 0, DLmw: 0})
	require.NoError(t, c.MakeSummary())
	v, _ := c.Get(EstimatedCycles)
	assert.Equal(t, uint64(100), v)
	assert.Equal(t, SummaryEvents, c.DisplayKinds())

	// Adding measured costs invalidates the derived ones.
	c.Add(Ir, 10)
	assert.False(t, c.Derived())
	require.NoError(t, c.MakeSummary())
	v, _ = c.Get(EstimatedCycles)
	assert.Equal(t, uint64(110), v)
}

func TestPercentageDiff(t *testing.T) {
	assert.Equal(t, Percentage(5), PercentageDiff(1050, 1000))
	assert.Equal(t, Percentage(-50), PercentageDiff(50, 100))
	assert.Equal(t, Percentage(0), PercentageDiff(0, 0))
	assert.True(t, PercentageDiff(10, 0).IsUnbounded())
	assert.Equal(t, "+inf", PercentageDiff(10, 0).String())
	assert.Equal(t, "+5.00000%", PercentageDiff(1050, 1000).String())
}

func TestPercentageMarshalling(t *testing.T) {
	data, err := json.Marshal(Unbounded)
	require.NoError(t, err)
	assert.Equal(t, `"+inf"`, string(data))

	var p Percentage
	require.NoError(t, json.Unmarshal(data, &p))
	assert.True(t, math.IsInf(float64(p), 1))
	require.NoError(t, json.Unmarshal([]byte(`-2.5`), &p))
	assert.Equal(t, Percentage(-2.5), p)

	out, err := yaml.Marshal(map[string]Percentage{"a": Unbounded, "b": 1.5})
	require.NoError(t, err)
	var back map[string]Percentage
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.True(t, back["a"].IsUnbounded())
	assert.Equal(t, Percentage(1.5), back["b"])
}

func TestCostsSummary(t *testing.T) {
	newCosts := costsOf(map[EventKind]uint64{Ir: 1050, Bc: 7})
	oldCosts := costsOf(map[EventKind]uint64{Ir: 1000, Dr: 3})

	s := NewCostsSummary(newCosts, oldCosts)
	require.Len(t, s.Events, 3)
	assert.Equal(t, []EventKind{Ir, Bc, Dr}, []EventKind{s.Events[0].Kind, s.Events[1].Kind, s.Events[2].Kind})

	ir, ok := s.Diff(Ir)
	require.True(t, ok)
	require.NotNil(t, ir.Diffs)
	assert.Equal(t, int64(-50), ir.Diffs.Absolute)
	assert.Equal(t, Percentage(5), ir.Diffs.Percentage)

	bc, _ := s.Diff(Bc)
	assert.Nil(t, bc.Old)
	assert.Nil(t, bc.Diffs)
	dr, _ := s.Diff(Dr)
	assert.Nil(t, dr.New)

	assert.True(t, s.HasOld())
	assert.False(t, s.IsUnchanged())
}

func TestCostsSummaryWithoutOld(t *testing.T) {
	s := NewCostsSummary(costsOf(map[EventKind]uint64{Ir: 1000}), nil)
	assert.False(t, s.HasOld())
	assert.True(t, s.IsUnchanged())
	assert.Empty(t, RegressionConfig{Limits: []Limit{{Ir, 0}}}.Check(s))
}

func TestCostsSummaryAgainstItself(t *testing.T) {
	c := costsOf(map[EventKind]uint64{Ir: 10, Dr: 0, Dw: 0, I1mr: 0, D1mr: 0, D1mw: 0, ILmr: 0, DLmr: 0, DLmw: 0})
	require.NoError(t, c.MakeSummary())
	s := NewCostsSummary(c, c.Clone())
	assert.True(t, s.IsUnchanged())
	for _, d := range s.Events {
		require.NotNil(t, d.Diffs)
		assert.Equal(t, Percentage(0), d.Diffs.Percentage, "event %s", d.Kind)
	}
}

func TestRegressionCheck(t *testing.T) {
	cfg := RegressionConfig{Limits: []Limit{{Kind: Ir, Percentage: 5}}}

	regressions := cfg.Check(NewCostsSummary(costsOf(map[EventKind]uint64{Ir: 106}), costsOf(map[EventKind]uint64{Ir: 100})))
	require.Len(t, regressions, 1)
	assert.Equal(t, Ir, regressions[0].Kind)
	assert.Equal(t, uint64(106), regressions[0].New)
	assert.Equal(t, Percentage(6), regressions[0].Percentage)

	regressions = cfg.Check(NewCostsSummary(costsOf(map[EventKind]uint64{Ir: 104}), costsOf(map[EventKind]uint64{Ir: 100})))
	assert.Empty(t, regressions)

	regressions = cfg.Check(NewCostsSummary(costsOf(map[EventKind]uint64{Ir: 105}), costsOf(map[EventKind]uint64{Ir: 100})))
	assert.Empty(t, regressions, "reaching the limit is not a violation")
}

func TestRegressionCheckUnboundedAndNegative(t *testing.T) {
	fromZero := NewCostsSummary(costsOf(map[EventKind]uint64{Ir: 1}), costsOf(map[EventKind]uint64{Ir: 0}))
	assert.Len(t, RegressionConfig{Limits: []Limit{{Ir, 1000}}}.Check(fromZero), 1)
	assert.Empty(t, RegressionConfig{Limits: []Limit{{Ir, -10}}}.Check(fromZero))

	// -5%: within a -10% limit, beyond a -1% limit.
	improved := NewCostsSummary(costsOf(map[EventKind]uint64{Ir: 95}), costsOf(map[EventKind]uint64{Ir: 100}))
	assert.Empty(t, RegressionConfig{Limits: []Limit{{Ir, -10}}}.Check(improved))
	assert.Len(t, RegressionConfig{Limits: []Limit{{Ir, -1}}}.Check(improved), 1)
	assert.Empty(t, RegressionConfig{Limits: []Limit{{Ir, 1}}}.Check(improved))
}

func TestRegressionSkipsMissingEvent(t *testing.T) {
	s := NewCostsSummary(costsOf(map[EventKind]uint64{Ir: 200}), costsOf(map[EventKind]uint64{Ir: 100}))
	assert.Empty(t, RegressionConfig{}.WithDefaults().Check(s))
	assert.Equal(t, DefaultLimits, RegressionConfig{}.WithDefaults().Limits)
}

func TestParseLimits(t *testing.T) {
	limits, err := ParseLimits("Ir=5, EstimatedCycles=-2.5%")
	require.NoError(t, err)
	assert.Equal(t, []Limit{{Ir, 5}, {EstimatedCycles, -2.5}}, limits)

	_, err = ParseLimits("Ir")
	assert.Error(t, err)
	_, err = ParseLimits("Nope=1")
	assert.Error(t, err)
	_, err = ParseLimits("Ir=abc")
	assert.Error(t, err)

	limits, err = ParseLimits("")
	require.NoError(t, err)
	assert.Empty(t, limits)
}

func TestParseEventKind(t *testing.T) {
	k, err := ParseEventKind("syscount")
	require.NoError(t, err)
	assert.Equal(t, SysCount, k)
	assert.True(t, EstimatedCycles.IsDerived())
	assert.False(t, Ir.IsDerived())

	var e EventKind
	require.NoError(t, e.UnmarshalText([]byte("estimatedcycles")))
	assert.Equal(t, EstimatedCycles, e)
}
