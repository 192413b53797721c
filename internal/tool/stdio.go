package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

type stdioKind int

const (
	stdioInherit stdioKind = iota
	stdioPipe
	stdioNull
	stdioFile
)

// Stdio is the policy of an output stream of the benchmarked process.
// JSON: "inherit", "pipe", "null" or {"file": "<path>"}.
type Stdio struct {
	kind stdioKind
	path string
}

func InheritStdio() Stdio         { return Stdio{kind: stdioInherit} }
func PipeStdio() Stdio            { return Stdio{kind: stdioPipe} }
func NullStdio() Stdio            { return Stdio{kind: stdioNull} }
func FileStdio(path string) Stdio { return Stdio{kind: stdioFile, path: path} }
func (s Stdio) IsPipe() bool      { return s.kind == stdioPipe }
func (s Stdio) IsInherit() bool   { return s.kind == stdioInherit }
func (s Stdio) FilePath() string  { return s.path }

func (s Stdio) String() string {
	switch s.kind {
	case stdioPipe:
		return "pipe"
	case stdioNull:
		return "null"
	case stdioFile:
		return "file(" + s.path + ")"
	default:
		return "inherit"
	}
}

// writer returns the destination of the stream. The returned closer must be
// called after the process exited; it may be nil. Pipe streams write to buf.
func (s Stdio) writer(std *os.File, buf *bytes.Buffer) (io.Writer, io.Closer, error) {
	switch s.kind {
	case stdioPipe:
		return buf, nil, nil
	case stdioNull:
		return nil, nil, nil
	case stdioFile:
		f, err := os.Create(s.path)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	default:
		return std, nil, nil
	}
}

func (s Stdio) MarshalJSON() ([]byte, error) {
	if s.kind == stdioFile {
		return json.Marshal(map[string]string{"file": s.path})
	}
	return json.Marshal(s.String())
}

func (s *Stdio) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		switch strings.ToLower(name) {
		case "inherit":
			*s = InheritStdio()
		case "pipe":
			*s = PipeStdio()
		case "null":
			*s = NullStdio()
		default:
			return fmt.Errorf("unknown stdio %q", name)
		}
		return nil
	}
	var obj struct {
		File *string `json:"file"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid stdio: %w", err)
	}
	if obj.File == nil || *obj.File == "" {
		return fmt.Errorf("invalid stdio %s: expected {\"file\": \"<path>\"}", data)
	}
	*s = FileStdio(*obj.File)
	return nil
}

type stdinKind int

const (
	stdinInherit stdinKind = iota
	stdinPipe
	stdinNull
	stdinFile
	stdinBytes
	stdinSetupPipe
)

// Stdin is the policy of the standard input of the benchmarked process.
// JSON: "inherit", "pipe", "null", "setup_pipe", {"file": "<path>"} or
// {"bytes": "<text>"}.
type Stdin struct {
	kind stdinKind
	path string
	data []byte
}

func InheritStdin() Stdin         { return Stdin{kind: stdinInherit} }
func NullStdin() Stdin            { return Stdin{kind: stdinNull} }
func PipeStdin() Stdin            { return Stdin{kind: stdinPipe} }
func FileStdin(path string) Stdin { return Stdin{kind: stdinFile, path: path} }
func BytesStdin(b []byte) Stdin   { return Stdin{kind: stdinBytes, data: append([]byte(nil), b...)} }

// SetupPipeStdin connects the stdout of the bench setup to the benchmark.
func SetupPipeStdin() Stdin { return Stdin{kind: stdinSetupPipe} }

// IsSetupPipe reports whether the setup's stdout is consumed.
func (s Stdin) IsSetupPipe() bool { return s.kind == stdinSetupPipe }

func (s Stdin) String() string {
	switch s.kind {
	case stdinPipe:
		return "pipe"
	case stdinNull:
		return "null"
	case stdinFile:
		return "file(" + s.path + ")"
	case stdinBytes:
		return fmt.Sprintf("bytes(%d)", len(s.data))
	case stdinSetupPipe:
		return "setup_pipe"
	default:
		return "inherit"
	}
}

// apply configures cmd.Stdin. The returned closer may be nil.
func (s Stdin) apply(cmd *exec.Cmd, setup io.Reader) (io.Closer, error) {
	switch s.kind {
	case stdinInherit:
		cmd.Stdin = os.Stdin
	case stdinNull, stdinPipe:
		// An empty pipe: nothing is ever written to it.
		cmd.Stdin = nil
	case stdinFile:
		f, err := os.Open(s.path)
		if err != nil {
			return nil, err
		}
		cmd.Stdin = f
		return f, nil
	case stdinBytes:
		cmd.Stdin = bytes.NewReader(s.data)
	case stdinSetupPipe:
		if setup == nil {
			return nil, fmt.Errorf("stdin is set to setup_pipe but no setup process is running")
		}
		cmd.Stdin = setup
	}
	return nil, nil
}

func (s Stdin) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case stdinFile:
		return json.Marshal(map[string]string{"file": s.path})
	case stdinBytes:
		return json.Marshal(map[string]string{"bytes": string(s.data)})
	default:
		return json.Marshal(s.String())
	}
}

func (s *Stdin) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		switch strings.ToLower(name) {
		case "inherit":
			*s = InheritStdin()
		case "pipe":
			*s = PipeStdin()
		case "null":
			*s = NullStdin()
		case "setup_pipe":
			*s = SetupPipeStdin()
		default:
			return fmt.Errorf("unknown stdin %q", name)
		}
		return nil
	}
	var obj struct {
		File  *string `json:"file"`
		Bytes *string `json:"bytes"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid stdin: %w", err)
	}
	switch {
	case obj.File != nil && *obj.File != "":
		*s = FileStdin(*obj.File)
	case obj.Bytes != nil:
		*s = BytesStdin([]byte(*obj.Bytes))
	default:
		return fmt.Errorf("invalid stdin %s", data)
	}
	return nil
}

type exitKind int

const (
	exitSuccess exitKind = iota
	exitFailure
	exitCode
)

// ExitWith is the expected exit status of the benchmarked process. The zero
// value expects success. JSON: "success", "failure" or a number.
type ExitWith struct {
	kind exitKind
	code int
}

func ExitSuccess() ExitWith      { return ExitWith{kind: exitSuccess} }
func ExitFailure() ExitWith      { return ExitWith{kind: exitFailure} }
func ExitCode(code int) ExitWith { return ExitWith{kind: exitCode, code: code} }

func (e ExitWith) String() string {
	switch e.kind {
	case exitFailure:
		return "failure"
	case exitCode:
		return fmt.Sprintf("code(%d)", e.code)
	default:
		return "success"
	}
}

func (e ExitWith) MarshalJSON() ([]byte, error) {
	switch e.kind {
	case exitFailure:
		return json.Marshal("failure")
	case exitCode:
		return json.Marshal(e.code)
	default:
		return json.Marshal("success")
	}
}

func (e *ExitWith) UnmarshalJSON(data []byte) error {
	var code int
	if err := json.Unmarshal(data, &code); err == nil {
		*e = ExitCode(code)
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("invalid exit_with: %w", err)
	}
	switch strings.ToLower(name) {
	case "success":
		*e = ExitSuccess()
	case "failure":
		*e = ExitFailure()
	default:
		return fmt.Errorf("invalid exit_with %q", name)
	}
	return nil
}
