package tool

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/mwiater/cgbench/internal/bencherr"
	"github.com/mwiater/cgbench/internal/logging"
	"github.com/mwiater/cgbench/internal/util"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// maxNameBytes bounds the sanitized benchmark name used in file names.
const maxNameBytes = 200

type pathKind int

const (
	kindOut pathKind = iota
	kindOldOut
	kindBaseOut
	kindLog
	kindOldLog
	kindBaseLog
)

// PathKind is the role of an artifact: current, old or named baseline, each
// for either the tool output or the log file.
type PathKind struct {
	kind pathKind
	base string
}

// OutKind is the tool output of the current run.
func OutKind() PathKind { return PathKind{kind: kindOut} }

// OldOutKind is the tool output of the previous run, suffixed ".old".
func OldOutKind() PathKind { return PathKind{kind: kindOldOut} }

// BaseOutKind is the tool output saved as the baseline name, suffixed
// ".base@<name>".
func BaseOutKind(name string) PathKind { return PathKind{kind: kindBaseOut, base: name} }

// LogKind is the log file of the current run.
func LogKind() PathKind { return PathKind{kind: kindLog} }

// OldLogKind is the log file of the previous run.
func OldLogKind() PathKind { return PathKind{kind: kindOldLog} }

// BaseLogKind is the log file saved as the baseline name.
func BaseLogKind(name string) PathKind { return PathKind{kind: kindBaseLog, base: name} }

// IsLog reports whether the kind addresses a log file.
func (k PathKind) IsLog() bool {
	return k.kind == kindLog || k.kind == kindOldLog || k.kind == kindBaseLog
}

// IsOld reports whether the kind addresses the old slot.
func (k PathKind) IsOld() bool { return k.kind == kindOldOut || k.kind == kindOldLog }

// BaseName returns the baseline name of a named slot.
func (k PathKind) BaseName() (string, bool) {
	if k.kind == kindBaseOut || k.kind == kindBaseLog {
		return k.base, true
	}
	return "", false
}

func (k PathKind) String() string {
	switch k.kind {
	case kindOut:
		return "out"
	case kindOldOut:
		return "out.old"
	case kindBaseOut:
		return "out.base@" + k.base
	case kindLog:
		return "log"
	case kindOldLog:
		return "log.old"
	case kindBaseLog:
		return "log.base@" + k.base
	default:
		return "unknown"
	}
}

// OutputPath is the identity of one family of artifacts of a benchmark:
// <dir>/<tool-id>.<name>.<extension>. A single identity may expand to
// several physical files when valgrind substitutes modifiers such as %p.
//
// All projection methods are pure and return a new value. Methods touching
// disk always rescan the directory.
type OutputPath struct {
	Kind      PathKind
	Tool      ValgrindTool
	Baseline  BaselineKind
	Dir       string
	Name      string
	Modifiers []string

	fs afero.Fs
}

// NewOutputPath computes the artifact identity of the benchmark name below
// baseDir/<module segments>/<name>.
func NewOutputPath(fs afero.Fs, kind PathKind, tool ValgrindTool, baseline BaselineKind, baseDir string, module ModulePath, name string) OutputPath {
	sanitized := util.TruncateUTF8(util.SanitizeFilename(name, "_"), maxNameBytes)
	parts := append([]string{baseDir}, module.Segments()...)
	parts = append(parts, sanitized)
	return OutputPath{
		Kind:     kind,
		Tool:     tool,
		Baseline: baseline,
		Dir:      filepath.Join(parts...),
		Name:     sanitized,
		fs:       fs,
	}
}

// Fs returns the filesystem the artifacts live on.
func (o OutputPath) Fs() afero.Fs { return o.fs }

// Init creates the output directory. It is idempotent.
func (o OutputPath) Init() error {
	if err := o.fs.MkdirAll(o.Dir, 0o755); err != nil {
		return bencherr.NewIOError("create benchmark directory", o.Dir, err)
	}
	return nil
}

// Clear removes every physical file of this identity.
func (o OutputPath) Clear() error {
	paths, err := o.RealPaths()
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := o.fs.Remove(p); err != nil {
			return bencherr.NewIOError("remove benchmark file", p, err)
		}
	}
	return nil
}

// Shift prepares the slot for a fresh run. With the old baseline the current
// files become the old files, replacing stale old files first. A named
// baseline is simply cleared.
func (o OutputPath) Shift() error {
	if !o.Baseline.IsOld() {
		return o.Clear()
	}
	if err := o.ToBasePath().Clear(); err != nil {
		return err
	}
	paths, err := o.RealPaths()
	if err != nil {
		return err
	}
	for _, p := range paths {
		target := p + ".old"
		if err := o.fs.Rename(p, target); err != nil {
			return bencherr.NewIOError("move benchmark file", p+" -> "+target, err)
		}
	}
	return nil
}

// Exists reports whether at least one physical file of this identity exists.
func (o OutputPath) Exists() bool {
	paths, err := o.RealPaths()
	return err == nil && len(paths) > 0
}

// IsMultiple reports whether the identity expanded to more than one file.
func (o OutputPath) IsMultiple() bool {
	paths, err := o.RealPaths()
	return err == nil && len(paths) > 1
}

// ToBasePath projects the current identity onto the baseline slot.
func (o OutputPath) ToBasePath() OutputPath {
	out := o.clone()
	switch o.Kind.kind {
	case kindOut, kindBaseOut:
		if o.Baseline.IsOld() {
			if o.Kind.kind == kindOut {
				out.Kind = OldOutKind()
			}
		} else {
			out.Kind = BaseOutKind(o.Baseline.Name())
		}
	case kindLog, kindBaseLog:
		if o.Baseline.IsOld() {
			if o.Kind.kind == kindLog {
				out.Kind = OldLogKind()
			}
		} else {
			out.Kind = BaseLogKind(o.Baseline.Name())
		}
	}
	return out
}

// ToToolOutput projects onto the same role of another tool.
func (o OutputPath) ToToolOutput(tool ValgrindTool) OutputPath {
	out := o.clone()
	out.Tool = tool
	return out
}

// ToLogOutput projects an output identity onto the matching log identity.
func (o OutputPath) ToLogOutput() OutputPath {
	out := o.clone()
	switch o.Kind.kind {
	case kindOut:
		out.Kind = LogKind()
	case kindOldOut:
		out.Kind = OldLogKind()
	case kindBaseOut:
		out.Kind = BaseLogKind(o.Kind.base)
	}
	return out
}

// WithModifiers returns the identity with valgrind file name modifiers.
func (o OutputPath) WithModifiers(modifiers ...string) OutputPath {
	out := o.clone()
	out.Modifiers = append([]string(nil), modifiers...)
	return out
}

// Extension returns the file extension encoding role and modifiers.
func (o OutputPath) Extension() string {
	stem := "out"
	if o.Kind.IsLog() {
		stem = "log"
	}
	if len(o.Modifiers) > 0 {
		stem += "." + strings.Join(o.Modifiers, ".")
	}
	switch o.Kind.kind {
	case kindOldOut, kindOldLog:
		return stem + ".old"
	case kindBaseOut, kindBaseLog:
		return stem + ".base@" + o.Kind.base
	default:
		return stem
	}
}

// Path is the physical path before valgrind expands any modifier.
func (o OutputPath) Path() string {
	return filepath.Join(o.Dir, fmt.Sprintf("%s.%s.%s", o.Tool.ID(), o.Name, o.Extension()))
}

// RealPaths scans the directory for every file belonging to this identity.
// Results are sorted by file name.
func (o OutputPath) RealPaths() ([]string, error) {
	entries, err := afero.ReadDir(o.fs, o.Dir)
	if err != nil {
		return nil, bencherr.NewIOError("read benchmark directory", o.Dir, err)
	}
	prefix := o.Tool.ID() + "." + o.Name + "."
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		suffix, ok := strings.CutPrefix(entry.Name(), prefix)
		if !ok {
			continue
		}
		if o.matchesSuffix(suffix) {
			paths = append(paths, filepath.Join(o.Dir, entry.Name()))
		}
	}
	return paths, nil
}

func (o OutputPath) matchesSuffix(suffix string) bool {
	stem := "out"
	if o.Kind.IsLog() {
		stem = "log"
	}
	if suffix != stem && !strings.HasPrefix(suffix, stem+".") {
		return false
	}
	isOld := strings.HasSuffix(suffix, ".old")
	last := suffix
	if i := strings.LastIndex(suffix, "."); i >= 0 {
		last = suffix[i+1:]
	}
	isBase := strings.HasPrefix(last, "base@")

	switch o.Kind.kind {
	case kindOut, kindLog:
		return !isOld && !isBase
	case kindOldOut, kindOldLog:
		return isOld
	case kindBaseOut, kindBaseLog:
		return strings.HasSuffix(suffix, ".base@"+o.Kind.base)
	default:
		return false
	}
}

// Open opens one of the physical files of this identity.
func (o OutputPath) Open(path string) (afero.File, error) {
	f, err := o.fs.Open(path)
	if err != nil {
		return nil, bencherr.NewIOError(fmt.Sprintf("open %s output file", o.Tool.ID()), path, err)
	}
	return f, nil
}

// DumpLog writes the content of all log files to w when info logging is on.
func (o OutputPath) DumpLog(w io.Writer) error {
	if !logging.Enabled(zap.InfoLevel) {
		return nil
	}
	paths, err := o.RealPaths()
	if err != nil {
		return err
	}
	for _, p := range paths {
		logging.L().Info("log output", zap.String("tool", o.Tool.ID()), zap.String("path", p))
		f, err := o.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, bufio.NewReader(f))
		_ = f.Close()
		if err != nil {
			return bencherr.NewIOError("dump log", p, err)
		}
	}
	return nil
}

func (o OutputPath) clone() OutputPath {
	out := o
	out.Modifiers = append([]string(nil), o.Modifiers...)
	return out
}
