// Package summary holds the machine readable result of a bench run and
// persists it next to the benchmark artifacts.
package summary

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mwiater/cgbench/internal/bencherr"
	"github.com/mwiater/cgbench/internal/callgrind"
	"github.com/mwiater/cgbench/internal/flamegraph"
	"github.com/mwiater/cgbench/internal/tool"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Format of a saved summary.
type Format int

const (
	FormatNone Format = iota
	FormatJSON
	FormatPrettyJSON
	FormatYAML
)

// ParseFormat accepts "", "none", "json", "pretty-json" and "yaml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return FormatNone, nil
	case "json":
		return FormatJSON, nil
	case "pretty-json", "pretty_json":
		return FormatPrettyJSON, nil
	case "yaml":
		return FormatYAML, nil
	default:
		return FormatNone, fmt.Errorf("invalid summary format %q: expected json, pretty-json or yaml", s)
	}
}

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatPrettyJSON:
		return "pretty-json"
	case FormatYAML:
		return "yaml"
	default:
		return "none"
	}
}

// FileName is the name of the summary file.
func (f Format) FileName() string {
	if f == FormatYAML {
		return "summary.yaml"
	}
	return "summary.json"
}

// Baselines are the display names of the compared slots. Empty means the
// current or the old run.
type Baselines struct {
	Current string `json:"current,omitempty" yaml:"current,omitempty"`
	Base    string `json:"base,omitempty" yaml:"base,omitempty"`
}

// CallgrindSummary is the result of the callgrind run.
type CallgrindSummary struct {
	LogPaths    []string               `json:"log_paths" yaml:"log_paths"`
	OutPaths    []string               `json:"out_paths" yaml:"out_paths"`
	Summary     callgrind.CostsSummary `json:"summary" yaml:"summary"`
	Regressions []callgrind.Regression `json:"regressions,omitempty" yaml:"regressions,omitempty"`
	Flamegraphs []flamegraph.Summary   `json:"flamegraphs,omitempty" yaml:"flamegraphs,omitempty"`
	// FlamegraphError is set when rendering failed. It never fails the run.
	FlamegraphError string `json:"flamegraph_error,omitempty" yaml:"flamegraph_error,omitempty"`
}

// BenchmarkSummary is everything known about one bench run.
type BenchmarkSummary struct {
	Version      string            `json:"version" yaml:"version"`
	Kind         string            `json:"kind" yaml:"kind"`
	ProjectRoot  string            `json:"project_root" yaml:"project_root"`
	BenchmarkExe string            `json:"benchmark_exe" yaml:"benchmark_exe"`
	ModulePath   string            `json:"module_path" yaml:"module_path"`
	Function     string            `json:"function_name" yaml:"function_name"`
	ID           string            `json:"id,omitempty" yaml:"id,omitempty"`
	Details      string            `json:"details,omitempty" yaml:"details,omitempty"`
	Baselines    Baselines         `json:"baselines" yaml:"baselines"`
	Callgrind    *CallgrindSummary `json:"callgrind_summary,omitempty" yaml:"callgrind_summary,omitempty"`
	Tools        []tool.Summary    `json:"tool_summaries,omitempty" yaml:"tool_summaries,omitempty"`
}

// IsRegressed reports whether any regression limit was exceeded.
func (s *BenchmarkSummary) IsRegressed() bool {
	return s.Callgrind != nil && len(s.Callgrind.Regressions) > 0
}

// CheckRegression fails with a fail fast RegressionError when the bench
// regressed and failFast is set.
func (s *BenchmarkSummary) CheckRegression(failFast bool) error {
	if failFast && s.IsRegressed() {
		return &bencherr.RegressionError{FailFast: true, Benches: []string{s.DisplayName()}}
	}
	return nil
}

// DisplayName is the module path qualified with the id.
func (s *BenchmarkSummary) DisplayName() string {
	if s.ID == "" {
		return s.ModulePath
	}
	return s.ModulePath + " " + s.ID
}

// Encode renders the summary in format. FormatNone encodes compact JSON.
func (s *BenchmarkSummary) Encode(format Format) ([]byte, error) {
	switch format {
	case FormatPrettyJSON:
		return json.MarshalIndent(s, "", "  ")
	case FormatYAML:
		return yaml.Marshal(s)
	default:
		return json.Marshal(s)
	}
}

// Save writes the summary into dir. It is a no-op for FormatNone.
func (s *BenchmarkSummary) Save(fs afero.Fs, dir string, format Format) (string, error) {
	if format == FormatNone {
		return "", nil
	}
	data, err := s.Encode(format)
	if err != nil {
		return "", fmt.Errorf("encode summary: %w", err)
	}
	if format != FormatYAML {
		data = append(data, '\n')
	}
	path := filepath.Join(dir, format.FileName())
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return "", bencherr.NewIOError("write summary", path, err)
	}
	return path, nil
}

// Load reads a saved summary.
func Load(fs afero.Fs, path string) (*BenchmarkSummary, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, bencherr.NewIOError("read summary", path, err)
	}
	var s BenchmarkSummary
	if strings.HasSuffix(path, ".yaml") {
		err = yaml.Unmarshal(data, &s)
	} else {
		err = json.Unmarshal(data, &s)
	}
	if err != nil {
		return nil, fmt.Errorf("decode summary %s: %w", path, err)
	}
	return &s, nil
}
