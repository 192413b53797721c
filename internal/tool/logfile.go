package tool

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/mwiater/cgbench/internal/bencherr"
	"github.com/mwiater/cgbench/internal/util"
)

var (
	logLinePattern      = regexp.MustCompile(`^(?:==|--|\*\*)(\d+)(?:==|--|\*\*) ?(.*)$`)
	logFieldPattern     = regexp.MustCompile(`^\s{0,4}([A-Za-z][A-Za-z _()-]*?):\s+(\S.*)$`)
	errorSummaryPattern = regexp.MustCompile(`^ERROR SUMMARY:\s+([\d,]+) errors? from ([\d,]+) contexts?(?:\s+\(suppressed:\s+([\d,]+) from ([\d,]+)\))?`)
)

// Field is a "key: value" line of a valgrind log.
type Field struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// ErrorSummary is the ERROR SUMMARY line of error checking tools.
type ErrorSummary struct {
	Errors             uint64 `json:"errors" yaml:"errors"`
	Contexts           uint64 `json:"contexts" yaml:"contexts"`
	SuppressedErrors   uint64 `json:"suppressed_errors" yaml:"suppressed_errors"`
	SuppressedContexts uint64 `json:"suppressed_contexts" yaml:"suppressed_contexts"`
}

// LogfileSummary is what a valgrind log file tells about one process.
type LogfileSummary struct {
	Command      string          `json:"command" yaml:"command"`
	PID          int             `json:"pid" yaml:"pid"`
	ParentPID    int             `json:"parent_pid,omitempty" yaml:"parent_pid,omitempty"`
	Fields       []Field         `json:"fields,omitempty" yaml:"fields,omitempty"`
	ErrorSummary *ErrorSummary   `json:"error_summary,omitempty" yaml:"error_summary,omitempty"`
	Details      []string        `json:"details,omitempty" yaml:"details,omitempty"`
	LogPath      string          `json:"log_path" yaml:"log_path"`
	Old          *LogfileSummary `json:"old,omitempty" yaml:"old,omitempty"`
}

// HasErrors reports whether the error summary counts any error.
func (s LogfileSummary) HasErrors() bool {
	return s.ErrorSummary != nil && s.ErrorSummary.Errors > 0
}

// Summary collects the results of one secondary tool run.
type Summary struct {
	Tool      ValgrindTool     `json:"tool" yaml:"tool"`
	LogPaths  []string         `json:"log_paths" yaml:"log_paths"`
	OutPaths  []string         `json:"out_paths,omitempty" yaml:"out_paths,omitempty"`
	Summaries []LogfileSummary `json:"summaries" yaml:"summaries"`
}

// LogfileParser reads valgrind log files. Commands below ProjectRoot are
// shown relative to it.
type LogfileParser struct {
	ProjectRoot string
}

// Parse reads every log file of log. A missing directory or missing files
// yield no summaries.
func (p LogfileParser) Parse(log OutputPath) ([]LogfileSummary, error) {
	if ok, _ := existsDir(log); !ok {
		return nil, nil
	}
	paths, err := log.RealPaths()
	if err != nil {
		return nil, err
	}
	var out []LogfileSummary
	for _, path := range paths {
		summaries, err := p.parseFile(log, path)
		if err != nil {
			return nil, err
		}
		out = append(out, summaries...)
	}
	return out, nil
}

// ParseMerge parses log and attaches the old summaries position by position
// where the commands agree.
func (p LogfileParser) ParseMerge(log OutputPath, old []LogfileSummary) ([]LogfileSummary, error) {
	summaries, err := p.Parse(log)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		if i < len(old) && old[i].Command == summaries[i].Command {
			o := old[i]
			o.Old = nil
			summaries[i].Old = &o
		}
	}
	return summaries, nil
}

func (p LogfileParser) parseFile(log OutputPath, path string) ([]LogfileSummary, error) {
	f, err := log.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	type state struct {
		summary  *LogfileSummary
		inHeader bool
	}
	byPID := map[int]*state{}
	var order []int

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		m := logLinePattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			// Lines without the pid prefix are program output mixed into the log.
			continue
		}
		pid, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, &bencherr.ParseError{Path: path, Line: lineNo, Msg: "invalid pid " + m[1]}
		}
		st, ok := byPID[pid]
		if !ok {
			st = &state{summary: &LogfileSummary{PID: pid, LogPath: path}, inHeader: true}
			byPID[pid] = st
			order = append(order, pid)
		}
		text := m[2]

		if st.inHeader {
			switch {
			case strings.HasPrefix(text, "Command:"):
				st.summary.Command = p.command(strings.TrimSpace(strings.TrimPrefix(text, "Command:")))
			case strings.HasPrefix(text, "Parent PID:"):
				ppid, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(text, "Parent PID:")))
				if err != nil {
					return nil, &bencherr.ParseError{Path: path, Line: lineNo, Msg: "invalid parent pid"}
				}
				st.summary.ParentPID = ppid
			case strings.TrimSpace(text) == "" && st.summary.Command != "":
				st.inHeader = false
			}
			continue
		}

		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			continue
		}
		if es := errorSummaryPattern.FindStringSubmatch(trimmed); es != nil {
			st.summary.ErrorSummary = &ErrorSummary{
				Errors:             parseCount(es[1]),
				Contexts:           parseCount(es[2]),
				SuppressedErrors:   parseCount(es[3]),
				SuppressedContexts: parseCount(es[4]),
			}
			continue
		}
		if fm := logFieldPattern.FindStringSubmatch(text); fm != nil {
			st.summary.Fields = append(st.summary.Fields, Field{Key: strings.TrimSpace(fm[1]), Value: strings.TrimSpace(fm[2])})
			continue
		}
		st.summary.Details = append(st.summary.Details, strings.TrimRight(text, " "))
	}
	if err := scanner.Err(); err != nil {
		return nil, bencherr.NewIOError("read log file", path, err)
	}

	out := make([]LogfileSummary, 0, len(order))
	for _, pid := range order {
		out = append(out, *byPID[pid].summary)
	}
	return out, nil
}

func (p LogfileParser) command(cmd string) string {
	if p.ProjectRoot == "" {
		return cmd
	}
	exe, rest, _ := strings.Cut(cmd, " ")
	rel := util.MakeRelative(p.ProjectRoot, exe)
	if rest == "" {
		return rel
	}
	return rel + " " + rest
}

func parseCount(s string) uint64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseUint(strings.ReplaceAll(s, ",", ""), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func existsDir(o OutputPath) (bool, error) {
	info, err := o.fs.Stat(o.Dir)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
