package flamegraph

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mwiater/cgbench/internal/callgrind"
)

// ErrNoStacks is returned when a cost table or a corpus yields no stacks.
var ErrNoStacks = errors.New("no stacks found")

// Stack is one folded call stack, root first, with the costs of its leaf.
type Stack struct {
	Frames []string
	Costs  *callgrind.Costs
}

// Folded returns the frames joined by ';'.
func (s Stack) Folded() string { return strings.Join(s.Frames, ";") }

// Map holds the folded stacks of one cost table in order of discovery.
type Map struct {
	stacks []Stack
	index  map[string]int
}

func newMap() *Map { return &Map{index: map[string]int{}} }

// maxStackDepth cuts call stacks deeper than this many frames.
const maxStackDepth = 1024

// NewMap folds the call graph of table into stacks. Folding starts at the
// table roots. The value of a stack is the self cost of its leaf scaled by
// the share of the leaf's inclusive cost reached through each edge on the
// path. Recursive calls back into a frame of the path are cut, as are
// subtrees whose scaled inclusive cost rounds to zero for every event.
// The scaled inclusive costs of all paths of one depth never exceed the
// cost of the roots, so the number of stacks is bounded by the total cost.
func NewMap(table *callgrind.CostTable) *Map {
	m := newMap()
	f := folder{graph: table.Graph, events: table.Events, inclusive: map[string]*callgrind.Costs{}, m: m}
	scale := make([]float64, len(table.Events))
	for i := range scale {
		scale[i] = 1
	}
	for _, root := range table.Roots {
		f.walk([]string{root}, scale)
	}
	return m
}

type folder struct {
	graph     *callgrind.CallGraph
	events    []callgrind.EventKind
	inclusive map[string]*callgrind.Costs
	m         *Map
}

func (f *folder) inclusiveOf(fn string) *callgrind.Costs {
	c, ok := f.inclusive[fn]
	if !ok {
		c = f.graph.Inclusive(fn)
		f.inclusive[fn] = c
	}
	return c
}

func (f *folder) walk(path []string, scale []float64) {
	fn := path[len(path)-1]
	if self, ok := f.graph.Self(fn); ok {
		costs := callgrind.NewCosts(f.events...)
		for i, k := range f.events {
			v, _ := self.Get(k)
			if scaled := math.Round(float64(v) * scale[i]); scaled > 0 {
				costs.Add(k, uint64(scaled))
			}
		}
		f.m.add(path, costs)
	}

	if len(path) >= maxStackDepth {
		return
	}
	for _, callee := range f.graph.Callees(fn) {
		if onPath(path, callee) {
			continue
		}
		call, _ := f.graph.Call(fn, callee)
		calleeIncl := f.inclusiveOf(callee)
		next := make([]float64, len(scale))
		visible := false
		for i, k := range f.events {
			edge, _ := call.Get(k)
			total, _ := calleeIncl.Get(k)
			if total == 0 {
				continue
			}
			next[i] = scale[i] * math.Min(1, float64(edge)/float64(total))
			if math.Round(float64(total)*next[i]) > 0 {
				visible = true
			}
		}
		if !visible {
			continue
		}
		f.walk(append(path[:len(path):len(path)], callee), next)
	}
}

func onPath(path []string, fn string) bool {
	for _, p := range path {
		if p == fn {
			return true
		}
	}
	return false
}

func (m *Map) add(path []string, costs *callgrind.Costs) {
	frames := make([]string, len(path))
	for i, p := range path {
		frames[i] = strings.ReplaceAll(p, ";", ":")
	}
	key := strings.Join(frames, ";")
	if i, ok := m.index[key]; ok {
		m.stacks[i].Costs.AddCosts(costs)
		return
	}
	m.index[key] = len(m.stacks)
	m.stacks = append(m.stacks, Stack{Frames: frames, Costs: costs})
}

// IsEmpty reports whether no stack was found.
func (m *Map) IsEmpty() bool { return len(m.stacks) == 0 }

// Stacks returns the folded stacks.
func (m *Map) Stacks() []Stack { return append([]Stack(nil), m.stacks...) }

// MakeSummary derives the summary events of every stack.
func (m *Map) MakeSummary() error {
	for _, s := range m.stacks {
		if err := s.Costs.MakeSummary(); err != nil {
			return fmt.Errorf("flamegraph stack %q: %w", s.Folded(), err)
		}
	}
	return nil
}

// Lines returns the corpus of event in the folded stack format
// "frame;frame;... count". Stacks with a zero count are omitted.
func (m *Map) Lines(event callgrind.EventKind) ([]string, error) {
	var lines []string
	for _, s := range m.stacks {
		if !s.Costs.Has(event) {
			return nil, fmt.Errorf("event %s is not available for flamegraphs", event)
		}
		v, _ := s.Costs.Get(event)
		if v == 0 {
			continue
		}
		lines = append(lines, s.Folded()+" "+strconv.FormatUint(v, 10))
	}
	return lines, nil
}

type foldedLine struct {
	stack string
	count uint64
}

func parseFolded(line string) (foldedLine, error) {
	i := strings.LastIndexByte(line, ' ')
	if i <= 0 {
		return foldedLine{}, fmt.Errorf("invalid folded stack line %q", line)
	}
	count, err := strconv.ParseUint(line[i+1:], 10, 64)
	if err != nil {
		return foldedLine{}, fmt.Errorf("invalid count in folded stack line %q", line)
	}
	return foldedLine{stack: line[:i], count: count}, nil
}

// Differential merges a base and a new corpus into lines of the form
// "stack base_count new_count". With normalize the base counts are scaled
// to the total of the new corpus. Either corpus being empty is an error.
func Differential(base, current []string, normalize bool) ([]string, error) {
	if len(base) == 0 || len(current) == 0 {
		return nil, fmt.Errorf("unable to create a differential flamegraph: %w", ErrNoStacks)
	}

	var order []string
	counts := map[string]*[2]uint64{}
	var totals [2]uint64
	for col, corpus := range [][]string{base, current} {
		for _, raw := range corpus {
			l, err := parseFolded(raw)
			if err != nil {
				return nil, err
			}
			c, ok := counts[l.stack]
			if !ok {
				c = &[2]uint64{}
				counts[l.stack] = c
				order = append(order, l.stack)
			}
			c[col] += l.count
			totals[col] += l.count
		}
	}

	factor := 1.0
	if normalize && totals[0] > 0 {
		factor = float64(totals[1]) / float64(totals[0])
	}
	lines := make([]string, 0, len(order))
	for _, stack := range order {
		c := counts[stack]
		baseCount := c[0]
		if normalize {
			baseCount = uint64(math.Round(float64(baseCount) * factor))
		}
		lines = append(lines, fmt.Sprintf("%s %d %d", stack, baseCount, c[1]))
	}
	return lines, nil
}
