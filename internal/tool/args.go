package tool

import (
	"fmt"
	"strings"

	"github.com/mwiater/cgbench/internal/logging"
	"go.uber.org/zap"
)

// Args is the ordered set of valgrind options of one tool run.
type Args struct {
	tool    ValgrindTool
	keys    []string
	values  map[string]string
	flags   []string
	toggles []string
	outFile string
	logFile string
}

type defaultOption struct{ key, value string }

var callgrindDefaults = []defaultOption{
	{"I1", "32768,8,64"},
	{"D1", "32768,8,64"},
	{"LL", "8388608,16,64"},
	{"cache-sim", "yes"},
	{"collect-atstart", "no"},
	{"compress-strings", "no"},
	{"compress-pos", "no"},
}

// NewArgs builds the arguments of tool from its defaults and raw user
// options. Later options override earlier ones with the same key, except
// --toggle-collect which accumulates.
func NewArgs(tool ValgrindTool, raw ...[]string) (Args, error) {
	a := Args{tool: tool, values: map[string]string{}}
	if tool == Callgrind {
		for _, d := range callgrindDefaults {
			a.set(d.key, d.value)
		}
	}
	for _, list := range raw {
		for _, arg := range list {
			if err := a.add(arg); err != nil {
				return Args{}, err
			}
		}
	}
	return a, nil
}

func (a *Args) add(arg string) error {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil
	}
	if arg == "-v" || arg == "-q" {
		a.flags = append(a.flags, arg)
		return nil
	}
	body, isLong := strings.CutPrefix(arg, "--")
	if !isLong && !strings.Contains(arg, "=") {
		return fmt.Errorf("invalid %s argument %q: expected '--key=value' or 'key=value'", a.tool.ID(), arg)
	}
	key, value, hasValue := strings.Cut(body, "=")
	if key == "" {
		return fmt.Errorf("invalid %s argument %q: empty option name", a.tool.ID(), arg)
	}
	switch key {
	case "tool", "log-file", "callgrind-out-file", "massif-out-file", "dhat-out-file", "bb-out-file":
		logging.L().Warn("ignoring valgrind argument controlled by cgbench", zap.String("tool", a.tool.ID()), zap.String("arg", arg))
		return nil
	case "toggle-collect":
		if hasValue {
			a.toggles = append(a.toggles, value)
		}
		return nil
	}
	if !hasValue {
		a.flags = append(a.flags, "--"+key)
		return nil
	}
	a.set(key, value)
	return nil
}

func (a *Args) set(key, value string) {
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

// Get returns the value of an option.
func (a Args) Get(key string) (string, bool) {
	v, ok := a.values[key]
	return v, ok
}

// Toggles returns the --toggle-collect globs.
func (a Args) Toggles() []string { return append([]string(nil), a.toggles...) }

// InsertToggleCollect adds a --toggle-collect glob. Duplicates are ignored.
func (a *Args) InsertToggleCollect(glob string) {
	for _, t := range a.toggles {
		if t == glob {
			return
		}
	}
	a.toggles = append(a.toggles, glob)
}

// SetOutputArg points the tool's output file option at out.
func (a *Args) SetOutputArg(out OutputPath, modifier string) {
	if !a.tool.HasOutputFile() {
		return
	}
	if modifier != "" {
		out = out.WithModifiers(modifier)
	}
	a.outFile = out.Path()
}

// SetLogArg points --log-file at log.
func (a *Args) SetLogArg(log OutputPath, modifier string) {
	if modifier != "" {
		log = log.WithModifiers(modifier)
	}
	a.logFile = log.Path()
}

// Slice renders the arguments in valgrind command line order.
func (a Args) Slice() []string {
	out := []string{"--tool=" + a.tool.ID()}
	for _, k := range a.keys {
		out = append(out, "--"+k+"="+a.values[k])
	}
	out = append(out, a.flags...)
	for _, t := range a.toggles {
		out = append(out, "--toggle-collect="+t)
	}
	if a.outFile != "" {
		out = append(out, "--"+a.tool.outFileOption()+"="+a.outFile)
	}
	if a.logFile != "" {
		out = append(out, "--log-file="+a.logFile)
	}
	return out
}

// Tool returns the tool the arguments belong to.
func (a Args) Tool() ValgrindTool { return a.tool }

// Clone returns a deep copy.
func (a Args) Clone() Args {
	c := a
	c.keys = append([]string(nil), a.keys...)
	c.values = make(map[string]string, len(a.values))
	for k, v := range a.values {
		c.values[k] = v
	}
	c.flags = append([]string(nil), a.flags...)
	c.toggles = append([]string(nil), a.toggles...)
	return c
}
