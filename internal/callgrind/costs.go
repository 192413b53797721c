package callgrind

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingEvents is returned by MakeSummary when the cache simulation
// events needed for the derived events were not collected.
var ErrMissingEvents = errors.New("cannot derive summary events: cache simulation events are missing")

type deriveState int

const (
	notDerived deriveState = iota
	derived
	underivable
)

// Costs are the event counts of one call context. Event order is kept.
//
// Derived events do not exist until MakeSummary ran. Reading a derived event
// before that is a programming error and panics.
type Costs struct {
	kinds  []EventKind
	values []uint64
	state  deriveState
}

// NewCosts returns zero costs for kinds. Derived kinds are ignored.
func NewCosts(kinds ...EventKind) *Costs {
	c := &Costs{}
	for _, k := range kinds {
		if !k.IsDerived() {
			c.ensure(k)
		}
	}
	return c
}

func (c *Costs) index(kind EventKind) int {
	for i, k := range c.kinds {
		if k == kind {
			return i
		}
	}
	return -1
}

func (c *Costs) ensure(kind EventKind) int {
	if i := c.index(kind); i >= 0 {
		return i
	}
	c.kinds = append(c.kinds, kind)
	c.values = append(c.values, 0)
	return len(c.kinds) - 1
}

// Kinds returns the events present, in order.
func (c *Costs) Kinds() []EventKind {
	return append([]EventKind(nil), c.kinds...)
}

// DisplayKinds returns the events worth showing: once derived, the raw
// cache events are replaced by the summary events.
func (c *Costs) DisplayKinds() []EventKind {
	if c.state != derived {
		return c.Kinds()
	}
	out := append([]EventKind(nil), SummaryEvents...)
	for _, k := range c.kinds {
		if !k.IsDerived() && k != Ir && !k.isCacheEvent() {
			out = append(out, k)
		}
	}
	return out
}

// Has reports whether kind is present. It never panics.
func (c *Costs) Has(kind EventKind) bool {
	return c.index(kind) >= 0
}

// Get returns the count of kind.
func (c *Costs) Get(kind EventKind) (uint64, bool) {
	if kind.IsDerived() && c.state == notDerived {
		panic(fmt.Sprintf("callgrind: derived event %s read before MakeSummary", kind))
	}
	if i := c.index(kind); i >= 0 {
		return c.values[i], true
	}
	return 0, false
}

// Add adds n to the measured event kind, adding the event when missing.
// Derived events computed earlier are dropped.
func (c *Costs) Add(kind EventKind, n uint64) {
	if kind.IsDerived() {
		panic(fmt.Sprintf("callgrind: cannot add to derived event %s", kind))
	}
	if c.state != notDerived {
		c.dropDerived()
	}
	c.values[c.ensure(kind)] += n
}

func (c *Costs) dropDerived() {
	kinds, values := c.kinds[:0], c.values[:0]
	for i, k := range c.kinds {
		if !k.IsDerived() {
			kinds = append(kinds, k)
			values = append(values, c.values[i])
		}
	}
	c.kinds, c.values, c.state = kinds, values, notDerived
}

// AddCosts adds the measured events of other.
func (c *Costs) AddCosts(other *Costs) {
	if other == nil {
		return
	}
	for i, k := range other.kinds {
		if !k.IsDerived() {
			c.Add(k, other.values[i])
		}
	}
}

// IsZero reports whether every event count is zero.
func (c *Costs) IsZero() bool {
	for _, v := range c.values {
		if v != 0 {
			return false
		}
	}
	return true
}

// Derived reports whether the summary events are available.
func (c *Costs) Derived() bool { return c.state == derived }

// MakeSummary computes the derived events from the cache events. Running it
// again is a no-op. Without the cache events it returns ErrMissingEvents and
// derived events stay absent.
func (c *Costs) MakeSummary() error {
	switch c.state {
	case derived:
		return nil
	case underivable:
		return ErrMissingEvents
	}

	vals := make(map[EventKind]uint64, len(cacheEvents))
	for _, k := range cacheEvents {
		i := c.index(k)
		if i < 0 {
			c.state = underivable
			return ErrMissingEvents
		}
		vals[k] = c.values[i]
	}

	totalRW := vals[Ir] + vals[Dr] + vals[Dw]
	ramHits := vals[ILmr] + vals[DLmr] + vals[DLmw]
	l1Misses := vals[I1mr] + vals[D1mr] + vals[D1mw]
	llHits := saturatingSub(l1Misses, ramHits)
	l1Hits := saturatingSub(totalRW, l1Misses)
	cycles := l1Hits + 5*llHits + 35*ramHits

	for _, kv := range []struct {
		kind  EventKind
		value uint64
	}{
		{L1hits, l1Hits},
		{LLhits, llHits},
		{RamHits, ramHits},
		{TotalRW, totalRW},
		{EstimatedCycles, cycles},
	} {
		c.kinds = append(c.kinds, kv.kind)
		c.values = append(c.values, kv.value)
	}
	c.state = derived
	return nil
}

// Clone returns a deep copy.
func (c *Costs) Clone() *Costs {
	return &Costs{
		kinds:  append([]EventKind(nil), c.kinds...),
		values: append([]uint64(nil), c.values...),
		state:  c.state,
	}
}

func (c *Costs) String() string {
	parts := make([]string, 0, len(c.kinds))
	for i, k := range c.kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", k, c.values[i]))
	}
	return strings.Join(parts, " ")
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
