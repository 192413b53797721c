package callgrind

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/mwiater/cgbench/internal/bencherr"
	"github.com/mwiater/cgbench/internal/logging"
	"github.com/mwiater/cgbench/internal/tool"
	"go.uber.org/zap"
)

// Sentinel is a glob over function names marking the benchmarked entry
// point. Costs outside the subtree rooted at matching functions are not
// attributed to the benchmark.
type Sentinel struct {
	pattern string
}

// NewSentinel validates glob. The syntax is that of path.Match.
func NewSentinel(glob string) (Sentinel, error) {
	if _, err := path.Match(glob, ""); err != nil {
		return Sentinel{}, fmt.Errorf("invalid sentinel %q: %w", glob, err)
	}
	return Sentinel{pattern: glob}, nil
}

// Matches reports whether fn matches the sentinel.
func (s Sentinel) Matches(fn string) bool {
	ok, _ := path.Match(s.pattern, fn)
	return ok
}

func (s Sentinel) String() string { return s.pattern }

// CostTable is the parsed result of one callgrind run.
type CostTable struct {
	Events []EventKind
	// Total is the cost attributed to the benchmark.
	Total *Costs
	Graph *CallGraph
	// Roots are the sentinel functions or, without a sentinel, the graph roots.
	Roots []string
	Files []string
}

// Context returns the self costs of the call context fn.
func (t *CostTable) Context(fn string) (*Costs, bool) {
	return t.Graph.Self(fn)
}

// MakeSummary derives the summary events of the total costs.
func (t *CostTable) MakeSummary() error {
	return t.Total.MakeSummary()
}

// Parser reads callgrind out files.
type Parser struct {
	Sentinel *Sentinel
}

// Parse reads and merges every file of out. The summary events of the
// total are derived when the cache events are present.
func (p Parser) Parse(out tool.OutputPath) (*CostTable, error) {
	paths, err := out.RealPaths()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, &bencherr.ParseError{Path: out.Path(), Msg: "no callgrind output files found"}
	}

	results := make([]*fileResult, 0, len(paths))
	for _, file := range paths {
		f, err := out.Open(file)
		if err != nil {
			return nil, err
		}
		res, err := parseFile(file, f)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	table, err := p.merge(paths, results)
	if err != nil {
		return nil, err
	}
	if err := table.MakeSummary(); err != nil {
		logging.L().Debug("summary events unavailable", zap.String("path", out.Path()), zap.Error(err))
	}
	return table, nil
}

func (p Parser) merge(paths []string, results []*fileResult) (*CostTable, error) {
	table := &CostTable{Graph: newCallGraph(), Files: paths}
	seen := map[EventKind]bool{}
	allTotals := true
	totals := &Costs{}
	for _, res := range results {
		for _, k := range res.events {
			if !seen[k] {
				seen[k] = true
				table.Events = append(table.Events, k)
			}
		}
		table.Graph.merge(res.graph)
		if res.totals == nil {
			allTotals = false
		} else {
			totals.AddCosts(res.totals)
		}
	}

	table.Total = NewCosts(table.Events...)
	if p.Sentinel != nil {
		var matched []string
		for _, fn := range table.Graph.Functions() {
			if p.Sentinel.Matches(fn) {
				matched = append(matched, fn)
			}
		}
		if len(matched) == 0 {
			return nil, &bencherr.ParseError{Path: paths[0], Msg: fmt.Sprintf("sentinel %q not found in any function", p.Sentinel)}
		}
		inSet := map[string]bool{}
		for _, fn := range matched {
			inSet[fn] = true
		}
		for _, fn := range matched {
			self, _ := table.Graph.Self(fn)
			table.Total.AddCosts(self)
			for _, callee := range table.Graph.Callees(fn) {
				if inSet[callee] {
					continue
				}
				call, _ := table.Graph.Call(fn, callee)
				table.Total.AddCosts(call)
			}
		}
		table.Graph = table.Graph.restrict(matched)
		table.Roots = matched
		return table, nil
	}

	if allTotals {
		table.Total.AddCosts(totals)
	} else {
		for _, fn := range table.Graph.Functions() {
			self, _ := table.Graph.Self(fn)
			table.Total.AddCosts(self)
		}
	}
	table.Roots = table.Graph.Roots()
	return table, nil
}

type fileResult struct {
	events []EventKind
	graph  *CallGraph
	totals *Costs
}

type pendingCall struct {
	callee string
	count  uint64
}

type fileParser struct {
	path   string
	lineNo int

	// columns maps cost columns to events; -1 marks events cgbench does not know.
	columns   []EventKind
	events    []EventKind
	positions int

	fnNames   map[string]string
	fileNames map[string]string
	objNames  map[string]string

	fn       string
	cfn      string
	call     *pendingCall
	skipNext bool

	graph   *CallGraph
	totals  *Costs
	summary *Costs
}

var specKeys = []string{"ob", "fl", "fi", "fe", "fn", "cob", "cfi", "cfl", "cfn", "calls", "jump", "jcnd"}

func parseFile(filePath string, r io.Reader) (*fileResult, error) {
	p := &fileParser{
		path:      filePath,
		positions: 1,
		fnNames:   map[string]string{},
		fileNames: map[string]string{},
		objNames:  map[string]string{},
		graph:     newCallGraph(),
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		p.lineNo++
		if err := p.line(strings.TrimRight(scanner.Text(), "\r")); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, bencherr.NewIOError("read callgrind output", filePath, err)
	}
	if p.columns == nil {
		return nil, p.errorf("missing 'events:' line")
	}
	totals := p.totals
	if totals == nil {
		totals = p.summary
	}
	return &fileResult{events: p.events, graph: p.graph, totals: totals}, nil
}

func (p *fileParser) errorf(format string, args ...any) error {
	return &bencherr.ParseError{Path: p.path, Line: p.lineNo, Msg: fmt.Sprintf(format, args...)}
}

func (p *fileParser) line(line string) error {
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	switch c := line[0]; {
	case c >= '0' && c <= '9', c == '+', c == '-', c == '*':
		return p.costLine(line)
	}
	for _, key := range specKeys {
		if value, ok := strings.CutPrefix(line, key+"="); ok {
			return p.specLine(key, strings.TrimSpace(value))
		}
	}
	key, value, ok := strings.Cut(line, ":")
	if !ok || !isHeaderKey(key) {
		return p.errorf("unexpected line %q", line)
	}
	return p.headerLine(key, strings.TrimSpace(value))
}

func isHeaderKey(key string) bool {
	if key == "" {
		return false
	}
	for i, r := range key {
		alpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !alpha && (i == 0 || !(r >= '0' && r <= '9' || r == '_' || r == '.')) {
			return false
		}
	}
	return true
}

func (p *fileParser) headerLine(key, value string) error {
	switch key {
	case "events":
		if p.columns != nil {
			return p.errorf("duplicate 'events:' line")
		}
		fields := strings.Fields(value)
		if len(fields) == 0 {
			return p.errorf("empty 'events:' line")
		}
		p.columns = make([]EventKind, len(fields))
		for i, name := range fields {
			kind, err := ParseEventKind(name)
			if err != nil || kind.IsDerived() {
				logging.L().Debug("ignoring unknown callgrind event", zap.String("event", name))
				p.columns[i] = -1
				continue
			}
			p.columns[i] = kind
			p.events = append(p.events, kind)
		}
	case "positions":
		n := len(strings.Fields(value))
		if n == 0 {
			return p.errorf("empty 'positions:' line")
		}
		p.positions = n
	case "summary", "totals":
		costs, err := p.parseCosts(strings.Fields(value))
		if err != nil {
			return err
		}
		if key == "totals" {
			p.totals = costs
		} else {
			p.summary = costs
		}
	}
	// version, creator, pid, cmd, part, thread, desc, event and unknown
	// header keys carry nothing the cost table needs.
	return nil
}

func (p *fileParser) specLine(key, value string) error {
	switch key {
	case "fn":
		name, err := p.resolve(p.fnNames, value)
		if err != nil {
			return err
		}
		p.fn = name
		p.call = nil
		p.graph.addFunction(name)
	case "cfn":
		name, err := p.resolve(p.fnNames, value)
		if err != nil {
			return err
		}
		p.cfn = name
	case "fl", "fi", "fe", "cfi", "cfl":
		if value == "" {
			return nil
		}
		if _, err := p.resolve(p.fileNames, value); err != nil {
			return err
		}
	case "ob", "cob":
		if value == "" {
			return nil
		}
		if _, err := p.resolve(p.objNames, value); err != nil {
			return err
		}
	case "calls":
		fields := strings.Fields(value)
		if len(fields) == 0 {
			return p.errorf("empty 'calls=' line")
		}
		count, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return p.errorf("invalid call count %q", fields[0])
		}
		if p.cfn == "" {
			return p.errorf("'calls=' without preceding 'cfn='")
		}
		p.call = &pendingCall{callee: p.cfn, count: count}
	case "jump", "jcnd":
		p.skipNext = true
	}
	return nil
}

// resolve expands the name compression "(id) name" / "(id)".
func (p *fileParser) resolve(names map[string]string, value string) (string, error) {
	if !strings.HasPrefix(value, "(") {
		if value == "" {
			return "", p.errorf("empty name")
		}
		return value, nil
	}
	end := strings.IndexByte(value, ')')
	if end < 0 {
		return "", p.errorf("unterminated name id in %q", value)
	}
	id := value[1:end]
	if rest := strings.TrimSpace(value[end+1:]); rest != "" {
		names[id] = rest
		return rest, nil
	}
	name, ok := names[id]
	if !ok {
		return "", p.errorf("undefined name id (%s)", id)
	}
	return name, nil
}

func (p *fileParser) costLine(line string) error {
	if p.columns == nil {
		return p.errorf("cost line before 'events:' line")
	}
	if p.fn == "" {
		return p.errorf("cost line before 'fn=' line")
	}
	fields := strings.Fields(line)
	if len(fields) < p.positions {
		return p.errorf("expected %d position(s), got %q", p.positions, line)
	}
	costs, err := p.parseCosts(fields[p.positions:])
	if err != nil {
		return err
	}

	switch {
	case p.call != nil:
		p.graph.addCall(p.fn, p.call.callee, p.call.count).AddCosts(costs)
		p.call = nil
	case p.skipNext:
		p.skipNext = false
	default:
		p.graph.addFunction(p.fn).AddCosts(costs)
	}
	return nil
}

// parseCosts reads one value per event column. Missing trailing values are zero.
func (p *fileParser) parseCosts(fields []string) (*Costs, error) {
	if p.columns == nil {
		return nil, p.errorf("costs before 'events:' line")
	}
	if len(fields) > len(p.columns) {
		return nil, p.errorf("%d cost values for %d events", len(fields), len(p.columns))
	}
	costs := NewCosts(p.events...)
	for i, field := range fields {
		v, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return nil, p.errorf("invalid cost value %q", field)
		}
		if kind := p.columns[i]; kind >= 0 {
			costs.Add(kind, v)
		}
	}
	return costs, nil
}
