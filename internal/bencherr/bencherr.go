// Package bencherr defines the error taxonomy shared by the benchmark engine.
//
// Every error carries enough context (tool, executable, path) to be acted upon
// without re-running with a higher log level. Use errors.As to inspect them.
package bencherr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRegression is matched by every *RegressionError through errors.Is.
var ErrRegression = errors.New("performance regression")

// LaunchError reports a subprocess that could not be spawned.
type LaunchError struct {
	Executable string
	Err        error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %q: %v", e.Executable, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ProcessError reports a subprocess that terminated with an unexpected status.
type ProcessError struct {
	// Source names what was run: a tool id or a module path like "bench::group::setup".
	Source  string
	Status  string
	Stdout  []byte
	Stderr  []byte
	LogPath string
}

func (e *ProcessError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "error in subprocess %s: %s", e.Source, e.Status)
	if e.LogPath != "" {
		fmt.Fprintf(&b, " (log: %s)", e.LogPath)
	}
	if tail := lastLines(e.Stderr, 10); tail != "" {
		fmt.Fprintf(&b, "\nstderr:\n%s", tail)
	} else if tail := lastLines(e.Stdout, 10); tail != "" {
		fmt.Fprintf(&b, "\nstdout:\n%s", tail)
	}
	return b.String()
}

// ParseError reports profiler output that does not match the expected grammar.
type ParseError struct {
	Path string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s:%d: %s", e.Path, e.Line, e.Msg)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Msg)
}

// RegressionError reports that at least one configured threshold was exceeded.
type RegressionError struct {
	// FailFast is true when the error stopped the remaining benches of a group.
	FailFast bool
	Benches  []string
}

func (e *RegressionError) Error() string {
	if e.FailFast {
		return fmt.Sprintf("performance regression (fail fast) in %s", strings.Join(e.Benches, ", "))
	}
	return fmt.Sprintf("performance regression in %d benchmark(s): %s", len(e.Benches), strings.Join(e.Benches, ", "))
}

func (e *RegressionError) Is(target error) bool { return target == ErrRegression }

// VersionMismatchError reports an incompatible caller/engine protocol version.
type VersionMismatchError struct {
	Engine string
	Caller string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("cgbench version mismatch: engine is %q but the benchmark driver requires %q; "+
		"install the matching cgbench version", e.Engine, e.Caller)
}

// IOError reports a failed filesystem operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s '%s': %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// NewIOError wraps err unless it is nil.
func NewIOError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}

func lastLines(data []byte, n int) string {
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
