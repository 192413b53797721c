package flamegraph

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mwiater/cgbench/internal/bencherr"
	"github.com/mwiater/cgbench/internal/callgrind"
	"github.com/mwiater/cgbench/internal/tool"
	"github.com/spf13/afero"
)

type pathKind int

const (
	kindRegular pathKind = iota
	kindOld
	kindBase
	kindDiffOld
	kindDiffBase
	kindDiffBases
)

// OutputPath is the identity of one flame graph file:
// <dir>/callgrind.<name>.flamegraph.<event>.<role>.svg. The rotation of the
// files mirrors the tool artifacts but is tracked per event.
type OutputPath struct {
	kind     pathKind
	base     string
	other    string
	Event    callgrind.EventKind
	Baseline tool.BaselineKind
	Dir      string
	Name     string

	fs afero.Fs
}

// NewOutputPath derives the flame graph identity of a callgrind artifact.
func NewOutputPath(out tool.OutputPath, event callgrind.EventKind) OutputPath {
	p := OutputPath{Event: event, Baseline: out.Baseline, Dir: out.Dir, Name: out.Name, fs: out.Fs()}
	switch {
	case out.Kind.IsOld():
		p.kind = kindOld
	default:
		if name, ok := out.Kind.BaseName(); ok {
			p.kind, p.base = kindBase, name
		}
	}
	return p
}

// WithEvent returns the same identity for another event.
func (p OutputPath) WithEvent(event callgrind.EventKind) OutputPath {
	p.Event = event
	return p
}

// Init creates the directory.
func (p OutputPath) Init() error {
	if err := p.fs.MkdirAll(p.Dir, 0o755); err != nil {
		return bencherr.NewIOError("create flamegraph directory", p.Dir, err)
	}
	return nil
}

// ToBasePath projects onto the baseline slot.
func (p OutputPath) ToBasePath() OutputPath {
	out := p
	if p.Baseline.IsOld() {
		out.kind, out.base = kindOld, ""
	} else {
		out.kind, out.base = kindBase, p.Baseline.Name()
	}
	return out
}

// ToDiffPath projects onto the differential graph against the baseline. A
// named slot compared with another named baseline yields the diff between
// both baselines. Identities that have no differential form are returned
// unchanged.
func (p OutputPath) ToDiffPath() OutputPath {
	out := p
	switch {
	case p.kind == kindRegular && p.Baseline.IsOld():
		out.kind = kindDiffOld
	case p.kind == kindRegular:
		out.kind, out.base = kindDiffBase, p.Baseline.Name()
	case p.kind == kindBase && !p.Baseline.IsOld():
		out.kind, out.other = kindDiffBases, p.Baseline.Name()
	}
	return out
}

// role is the part of the extension after the event.
func (p OutputPath) role() string {
	switch p.kind {
	case kindOld:
		return "old.svg"
	case kindBase:
		return "base@" + p.base + ".svg"
	case kindDiffOld:
		return "diff.old.svg"
	case kindDiffBase:
		return "diff.base@" + p.base + ".svg"
	case kindDiffBases:
		return "base@" + p.base + ".diff.base@" + p.other + ".svg"
	default:
		return "svg"
	}
}

// Extension returns the extension below callgrind.<name>.
func (p OutputPath) Extension() string {
	return fmt.Sprintf("flamegraph.%s.%s", p.Event, p.role())
}

func (p OutputPath) prefix() string {
	return fmt.Sprintf("%s.%s.flamegraph.", tool.Callgrind.ID(), p.Name)
}

// Path is the physical file path.
func (p OutputPath) Path() string {
	return filepath.Join(p.Dir, p.prefix()+p.Event.String()+"."+p.role())
}

// RealPaths lists the existing files of this identity. With anyEvent the
// files of every event sharing the role match.
func (p OutputPath) RealPaths(anyEvent bool) ([]string, error) {
	entries, err := afero.ReadDir(p.fs, p.Dir)
	if err != nil {
		return nil, bencherr.NewIOError("read flamegraph directory", p.Dir, err)
	}
	var paths []string
	for _, entry := range entries {
		suffix, ok := strings.CutPrefix(entry.Name(), p.prefix())
		if entry.IsDir() || !ok {
			continue
		}
		event, rest, ok := strings.Cut(suffix, ".")
		if !ok || rest != p.role() {
			continue
		}
		if anyEvent || event == p.Event.String() {
			paths = append(paths, filepath.Join(p.Dir, entry.Name()))
		}
	}
	return paths, nil
}

// Clear removes the files of this identity.
func (p OutputPath) Clear(anyEvent bool) error {
	paths, err := p.RealPaths(anyEvent)
	if err != nil {
		return err
	}
	return p.remove(paths)
}

// ClearDiff removes every differential graph against the baseline,
// including the diffs between the named baseline and another one.
func (p OutputPath) ClearDiff() error {
	entries, err := afero.ReadDir(p.fs, p.Dir)
	if err != nil {
		return bencherr.NewIOError("read flamegraph directory", p.Dir, err)
	}
	suffix := "diff.old.svg"
	if !p.Baseline.IsOld() {
		suffix = "diff.base@" + p.Baseline.Name() + ".svg"
	}
	var paths []string
	for _, entry := range entries {
		rest, ok := strings.CutPrefix(entry.Name(), p.prefix())
		if entry.IsDir() || !ok {
			continue
		}
		_, role, _ := strings.Cut(rest, ".")
		switch {
		case strings.HasSuffix(rest, suffix):
			paths = append(paths, filepath.Join(p.Dir, entry.Name()))
		case !p.Baseline.IsOld() && strings.HasPrefix(role, "base@"+p.Baseline.Name()+".diff."):
			paths = append(paths, filepath.Join(p.Dir, entry.Name()))
		}
	}
	return p.remove(paths)
}

// Shift rotates the regular graphs into the old slot, or clears them for a
// named baseline.
func (p OutputPath) Shift(anyEvent bool) error {
	if !p.Baseline.IsOld() {
		return p.Clear(anyEvent)
	}
	if err := p.ToBasePath().Clear(anyEvent); err != nil {
		return err
	}
	paths, err := p.RealPaths(anyEvent)
	if err != nil {
		return err
	}
	for _, path := range paths {
		target := strings.TrimSuffix(path, ".svg") + ".old.svg"
		if err := p.fs.Rename(path, target); err != nil {
			return bencherr.NewIOError("move flamegraph", path+" -> "+target, err)
		}
	}
	return nil
}

func (p OutputPath) create() (afero.File, error) {
	f, err := p.fs.Create(p.Path())
	if err != nil {
		return nil, bencherr.NewIOError("create flamegraph", p.Path(), err)
	}
	return f, nil
}

func (p OutputPath) remove(paths []string) error {
	for _, path := range paths {
		if err := p.fs.Remove(path); err != nil {
			return bencherr.NewIOError("remove flamegraph", path, err)
		}
	}
	return nil
}
