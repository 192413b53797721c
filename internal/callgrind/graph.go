package callgrind

import "sort"

// Edge is a call from Caller to Callee.
type Edge struct {
	Caller string
	Callee string
}

// CallGraph holds the self costs of every function and the inclusive costs
// of every call edge.
type CallGraph struct {
	functions []string
	self      map[string]*Costs
	calls     map[Edge]*Costs
	counts    map[Edge]uint64
	callees   map[string][]string
	callers   map[string][]string
}

func newCallGraph() *CallGraph {
	return &CallGraph{
		self:    map[string]*Costs{},
		calls:   map[Edge]*Costs{},
		counts:  map[Edge]uint64{},
		callees: map[string][]string{},
		callers: map[string][]string{},
	}
}

func (g *CallGraph) addFunction(fn string) *Costs {
	c, ok := g.self[fn]
	if !ok {
		c = &Costs{}
		g.self[fn] = c
		g.functions = append(g.functions, fn)
	}
	return c
}

func (g *CallGraph) addCall(caller, callee string, count uint64) *Costs {
	g.addFunction(caller)
	g.addFunction(callee)
	e := Edge{Caller: caller, Callee: callee}
	c, ok := g.calls[e]
	if !ok {
		c = &Costs{}
		g.calls[e] = c
		g.callees[caller] = append(g.callees[caller], callee)
		g.callers[callee] = append(g.callers[callee], caller)
	}
	g.counts[e] += count
	return c
}

// merge adds other into g.
func (g *CallGraph) merge(other *CallGraph) {
	for _, fn := range other.functions {
		g.addFunction(fn).AddCosts(other.self[fn])
	}
	for _, caller := range other.functions {
		for _, callee := range other.callees[caller] {
			e := Edge{caller, callee}
			g.addCall(caller, callee, other.counts[e]).AddCosts(other.calls[e])
		}
	}
}

// Functions returns all functions in order of appearance.
func (g *CallGraph) Functions() []string {
	return append([]string(nil), g.functions...)
}

// Self returns the exclusive costs of fn.
func (g *CallGraph) Self(fn string) (*Costs, bool) {
	c, ok := g.self[fn]
	return c, ok
}

// Callees returns the functions called by fn in order of appearance.
func (g *CallGraph) Callees(fn string) []string {
	return append([]string(nil), g.callees[fn]...)
}

// Call returns the inclusive costs of the call edge caller -> callee.
func (g *CallGraph) Call(caller, callee string) (*Costs, bool) {
	c, ok := g.calls[Edge{caller, callee}]
	return c, ok
}

// CallCount returns how often caller called callee.
func (g *CallGraph) CallCount(caller, callee string) uint64 {
	return g.counts[Edge{caller, callee}]
}

// Inclusive returns the self costs of fn plus the inclusive costs of its
// calls to other functions. Recursive self calls are not added twice.
func (g *CallGraph) Inclusive(fn string) *Costs {
	total := &Costs{}
	total.AddCosts(g.self[fn])
	for _, callee := range g.callees[fn] {
		if callee == fn {
			continue
		}
		total.AddCosts(g.calls[Edge{fn, callee}])
	}
	return total
}

// Roots returns the functions nobody calls, or every function when the
// graph is fully cyclic.
func (g *CallGraph) Roots() []string {
	var roots []string
	for _, fn := range g.functions {
		callers := g.callers[fn]
		if len(callers) == 0 || (len(callers) == 1 && callers[0] == fn) {
			roots = append(roots, fn)
		}
	}
	if len(roots) == 0 {
		roots = g.Functions()
	}
	return roots
}

// Reachable returns every function reachable from roots, roots included,
// sorted by name.
func (g *CallGraph) Reachable(roots []string) []string {
	seen := map[string]bool{}
	stack := append([]string(nil), roots...)
	for len(stack) > 0 {
		fn := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[fn] {
			continue
		}
		seen[fn] = true
		stack = append(stack, g.callees[fn]...)
	}
	out := make([]string, 0, len(seen))
	for fn := range seen {
		out = append(out, fn)
	}
	sort.Strings(out)
	return out
}

// restrict returns the subgraph reachable from roots.
func (g *CallGraph) restrict(roots []string) *CallGraph {
	keep := map[string]bool{}
	for _, fn := range g.Reachable(roots) {
		keep[fn] = true
	}
	sub := newCallGraph()
	for _, fn := range g.functions {
		if keep[fn] {
			sub.addFunction(fn).AddCosts(g.self[fn])
		}
	}
	for _, caller := range g.functions {
		if !keep[caller] {
			continue
		}
		for _, callee := range g.callees[caller] {
			e := Edge{caller, callee}
			sub.addCall(caller, callee, g.counts[e]).AddCosts(g.calls[e])
		}
	}
	return sub
}
