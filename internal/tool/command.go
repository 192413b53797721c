package tool

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mwiater/cgbench/internal/bencherr"
	"github.com/mwiater/cgbench/internal/logging"
	"go.uber.org/zap"
)

// NoCapture controls whether the output of the callgrind run is shown on the
// terminal instead of being captured.
type NoCapture int

const (
	NoCaptureFalse NoCapture = iota
	NoCaptureTrue
	NoCaptureStdout
	NoCaptureStderr
)

// ParseNoCapture accepts "false", "true", "stdout" and "stderr". The empty
// string means false.
func ParseNoCapture(s string) (NoCapture, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false":
		return NoCaptureFalse, nil
	case "true":
		return NoCaptureTrue, nil
	case "stdout":
		return NoCaptureStdout, nil
	case "stderr":
		return NoCaptureStderr, nil
	default:
		return NoCaptureFalse, fmt.Errorf("invalid nocapture value %q", s)
	}
}

func (n NoCapture) String() string {
	switch n {
	case NoCaptureTrue:
		return "true"
	case NoCaptureStdout:
		return "stdout"
	case NoCaptureStderr:
		return "stderr"
	default:
		return "false"
	}
}

// RunOptions describe how the benchmarked executable is run.
type RunOptions struct {
	EnvClear   bool
	CurrentDir string
	ExitWith   ExitWith
	// Envs are KEY=VALUE pairs. A bare KEY passes the current value through.
	Envs   []string
	Stdin  *Stdin
	Stdout *Stdio
	Stderr *Stdio
}

// Scope is the per-bench process context a tool run happens in.
type Scope struct {
	// CurrentDir overrides RunOptions.CurrentDir, e.g. with a sandbox.
	CurrentDir string
	// SetupStdout is the stdout of a running setup process. Run closes it
	// once the benchmark has started when it is an io.Closer.
	SetupStdout io.Reader
	// WaitSetup waits for the running setup process, if any.
	WaitSetup func() error
}

// Output is the captured output of a tool run. It is empty when the output
// was not captured.
type Output struct {
	Stdout []byte
	Stderr []byte
}

// Command runs one valgrind tool.
type Command struct {
	Tool      ValgrindTool
	Valgrind  string
	NoCapture NoCapture
}

// NewCommand returns a command for tool using the valgrind binary at
// valgrind, or "valgrind" from PATH when empty.
func NewCommand(tool ValgrindTool, valgrind string, noCapture NoCapture) Command {
	if valgrind == "" {
		valgrind = "valgrind"
	}
	return Command{Tool: tool, Valgrind: valgrind, NoCapture: noCapture}
}

// Run executes executable under valgrind and checks the exit status. args
// must already point at the output and log files; logPath is reported in
// errors.
func (c Command) Run(args Args, executable string, exeArgs []string, opts RunOptions, logPath OutputPath, module ModulePath, scope Scope) (*Output, error) {
	log := logging.L().With(zap.String("tool", c.Tool.ID()))

	resolved, err := ResolveBinaryPath(executable)
	if err != nil {
		return nil, err
	}

	argv := append(args.Slice(), resolved)
	argv = append(argv, exeArgs...)
	log.Debug("running", zap.String("executable", resolved), zap.Strings("args", argv))

	cmd := exec.Command(c.Valgrind, argv...)
	cmd.Env = environment(c.Tool, opts, os.Environ())
	cmd.Dir = opts.CurrentDir
	if scope.CurrentDir != "" {
		cmd.Dir = scope.CurrentDir
	}

	var closers []io.Closer
	defer func() {
		for _, cl := range closers {
			_ = cl.Close()
		}
	}()

	stdin := InheritStdin()
	if opts.Stdin != nil {
		stdin = *opts.Stdin
	}
	if closer, err := stdin.apply(cmd, scope.SetupStdout); err != nil {
		return nil, fmt.Errorf("%s: %s: configure stdin: %w", c.Tool.ID(), module, err)
	} else if closer != nil {
		closers = append(closers, closer)
	}

	stdoutPolicy, stderrPolicy := c.stdioPolicy(opts)
	var stdoutBuf, stderrBuf bytes.Buffer
	w, closer, err := stdoutPolicy.writer(os.Stdout, &stdoutBuf)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: configure stdout: %w", c.Tool.ID(), module, err)
	}
	if closer != nil {
		closers = append(closers, closer)
	}
	cmd.Stdout = w
	w, closer, err = stderrPolicy.writer(os.Stderr, &stderrBuf)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: configure stderr: %w", c.Tool.ID(), module, err)
	}
	if closer != nil {
		closers = append(closers, closer)
	}
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		return nil, &bencherr.LaunchError{Executable: c.Valgrind, Err: err}
	}
	if stdin.IsSetupPipe() {
		// The benchmark owns the read end now. A setup writing more than the
		// benchmark reads gets EPIPE instead of blocking forever.
		if cl, ok := scope.SetupStdout.(io.Closer); ok {
			_ = cl.Close()
		}
	}
	waitErr := cmd.Wait()
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return nil, fmt.Errorf("%s: waiting for valgrind: %w", c.Tool.ID(), waitErr)
	}

	output := &Output{Stdout: stdoutBuf.Bytes(), Stderr: stderrBuf.Bytes()}
	if err := checkExit(c.Tool, resolved, cmd.ProcessState, opts.ExitWith, output, logPath); err != nil {
		return nil, err
	}

	if scope.WaitSetup != nil {
		log.Debug("waiting for setup process")
		if err := scope.WaitSetup(); err != nil {
			return nil, err
		}
	}
	return output, nil
}

func (c Command) stdioPolicy(opts RunOptions) (Stdio, Stdio) {
	if c.Tool == Callgrind {
		switch c.NoCapture {
		case NoCaptureTrue:
			return InheritStdio(), InheritStdio()
		case NoCaptureStdout:
			return InheritStdio(), NullStdio()
		case NoCaptureStderr:
			return NullStdio(), InheritStdio()
		}
	}
	stdout, stderr := PipeStdio(), PipeStdio()
	if opts.Stdout != nil {
		stdout = *opts.Stdout
	}
	if opts.Stderr != nil {
		stderr = *opts.Stderr
	}
	return stdout, stderr
}

// environment computes the process environment. With EnvClear only the loader
// variables survive, plus the variables memcheck needs for debuginfod and for
// spawning its own helpers.
func environment(tool ValgrindTool, opts RunOptions, current []string) []string {
	// Never nil: a nil Env makes exec inherit the whole environment.
	env := []string{}
	if opts.EnvClear {
		for _, kv := range current {
			key, _, _ := strings.Cut(kv, "=")
			if keepEnv(tool, key) {
				env = append(env, kv)
			}
		}
	} else {
		env = append(env, current...)
	}
	for _, kv := range opts.Envs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			v, found := lookupEnv(current, key)
			if !found {
				continue
			}
			value = v
		}
		env = setEnv(env, key, value)
	}
	return env
}

func keepEnv(tool ValgrindTool, key string) bool {
	switch key {
	case "LD_PRELOAD", "LD_LIBRARY_PATH":
		return true
	case "DEBUGINFOD_URLS", "PATH", "HOME":
		return tool == Memcheck
	default:
		return false
	}
}

func lookupEnv(env []string, key string) (string, bool) {
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v, true
		}
	}
	return "", false
}

func setEnv(env []string, key, value string) []string {
	for i, kv := range env {
		if k, _, _ := strings.Cut(kv, "="); k == key {
			env[i] = key + "=" + value
			return env
		}
	}
	return append(env, key+"="+value)
}

// exitStatus is the part of os.ProcessState the exit check needs.
type exitStatus interface {
	ExitCode() int
	String() string
}

func checkExit(tool ValgrindTool, executable string, state exitStatus, expected ExitWith, output *Output, logPath OutputPath) error {
	code := state.ExitCode()
	log := logging.L().With(zap.String("tool", tool.ID()), zap.String("executable", executable))
	fail := func() error {
		return &bencherr.ProcessError{
			Source:  tool.ID(),
			Status:  state.String(),
			Stdout:  output.Stdout,
			Stderr:  output.Stderr,
			LogPath: logPath.Path(),
		}
	}

	// -1: terminated by a signal.
	if code < 0 {
		return fail()
	}
	switch expected.kind {
	case exitSuccess:
		if code == 0 {
			return nil
		}
		log.Error("expected the executable to succeed", zap.Int("exit_code", code))
	case exitFailure:
		if code != 0 {
			return nil
		}
		log.Error("expected the executable to fail but it succeeded")
	case exitCode:
		if code == expected.code {
			return nil
		}
		log.Error("unexpected exit code", zap.Int("expected", expected.code), zap.Int("exit_code", code))
	}
	return fail()
}

// ResolveBinaryPath makes path absolute. A bare name is looked up in PATH.
func ResolveBinaryPath(path string) (string, error) {
	if !strings.ContainsRune(path, filepath.Separator) {
		resolved, err := exec.LookPath(path)
		if err != nil {
			return "", &bencherr.LaunchError{Executable: path, Err: err}
		}
		return resolved, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", bencherr.NewIOError("resolve executable", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", &bencherr.LaunchError{Executable: abs, Err: err}
	}
	return abs, nil
}
