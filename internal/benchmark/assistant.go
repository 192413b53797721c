package benchmark

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/mwiater/cgbench/internal/bencherr"
	"github.com/mwiater/cgbench/internal/logging"
	"github.com/mwiater/cgbench/internal/tool"
	"go.uber.org/zap"
)

// AssistantKind is either setup or teardown.
type AssistantKind int

const (
	Setup AssistantKind = iota
	Teardown
)

func (k AssistantKind) String() string {
	if k == Teardown {
		return "teardown"
	}
	return "setup"
}

// Assistant is a setup or teardown function run by re-invoking the driver
// outside of valgrind. Without a group it is the main assistant.
type Assistant struct {
	Kind  AssistantKind
	Group string
	// BenchIndex and Index address a bench level assistant when HasIndices
	// is set.
	BenchIndex int
	Index      int
	HasIndices bool
	Module     tool.ModulePath
}

// Args are the driver arguments selecting the assistant.
func (a Assistant) Args() []string {
	args := []string{runFlag}
	if a.Group != "" {
		args = append(args, a.Group)
	}
	args = append(args, a.Kind.String())
	if a.HasIndices {
		args = append(args, strconv.Itoa(a.BenchIndex), strconv.Itoa(a.Index))
	}
	return args
}

func (a Assistant) source() string {
	return a.Module.Join(a.Kind.String()).String()
}

func (a Assistant) command(driver, dir string) *exec.Cmd {
	cmd := exec.Command(driver, a.Args()...)
	cmd.Dir = dir
	return cmd
}

// Run runs the assistant to completion in dir. An empty dir is the current
// directory.
func (a Assistant) Run(driver, dir string) error {
	logging.L().Debug("running assistant", zap.String("assistant", a.source()), zap.Strings("args", a.Args()))
	cmd := a.command(driver, dir)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return &bencherr.LaunchError{Executable: driver, Err: err}
	}
	err := cmd.Wait()
	logging.DumpOutput(a.source(), stdout.Bytes(), stderr.Bytes())
	return a.checkExit(err, stdout.Bytes(), stderr.Bytes())
}

func (a Assistant) checkExit(err error, stdout, stderr []byte) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &bencherr.ProcessError{Source: a.source(), Status: exitErr.ProcessState.String(), Stdout: stdout, Stderr: stderr}
	}
	return fmt.Errorf("%s: %w", a.source(), err)
}

// Start starts the assistant with its stdout connected to a pipe. It is
// used when the stdin of the bench is the stdout of its setup.
func (a Assistant) Start(driver, dir string) (*RunningAssistant, error) {
	logging.L().Debug("starting assistant", zap.String("assistant", a.source()), zap.Strings("args", a.Args()))
	cmd := a.command(driver, dir)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.source(), err)
	}
	r := &RunningAssistant{assistant: a, cmd: cmd, Stdout: stdout}
	cmd.Stderr = &r.stderr
	if err := cmd.Start(); err != nil {
		return nil, &bencherr.LaunchError{Executable: driver, Err: err}
	}
	return r, nil
}

// RunningAssistant is a started assistant.
type RunningAssistant struct {
	// Stdout is read by the bench before Wait is called.
	Stdout io.Reader

	assistant Assistant
	cmd       *exec.Cmd
	stderr    bytes.Buffer
	once      sync.Once
	err       error
}

// Wait waits for the assistant and checks its exit status. It may be called
// more than once.
func (r *RunningAssistant) Wait() error {
	r.once.Do(func() {
		err := r.cmd.Wait()
		logging.DumpOutput(r.assistant.source(), nil, r.stderr.Bytes())
		r.err = r.assistant.checkExit(err, nil, r.stderr.Bytes())
	})
	return r.err
}

// Kill stops an assistant whose bench failed and reaps it.
func (r *RunningAssistant) Kill() {
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	_ = r.Wait()
}
