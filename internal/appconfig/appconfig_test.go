package appconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mwiater/cgbench/internal/callgrind"
	"github.com/mwiater/cgbench/internal/format"
	"github.com/mwiater/cgbench/internal/summary"
	"github.com/mwiater/cgbench/internal/tool"
	"github.com/spf13/viper"
)

// TestValidate checks that exclusive baseline options and malformed typed
// options are rejected while valid combinations pass.
func TestValidate(t *testing.T) {
	valid := []Config{
		{},
		{Baseline: "foo"},
		{SaveBaseline: "foo"},
		{LoadBaseline: "foo", Baseline: "bar"},
		{Regression: "Ir=5, EstimatedCycles=-2.5", OutputFormat: "json", SaveSummary: "yaml", NoCapture: "stdout"},
	}
	for _, cfg := range valid {
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate(%+v) failed: %v", cfg, err)
		}
	}

	invalid := []Config{
		{SaveBaseline: "foo", LoadBaseline: "bar"},
		{SaveBaseline: "foo", Baseline: "bar"},
		{LoadBaseline: "foo"},
		{Baseline: "no spaces"},
		{Regression: "Cycles=5"},
		{NoCapture: "maybe"},
		{OutputFormat: "xml"},
		{SaveSummary: "toml"},
	}
	for _, cfg := range invalid {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("Validate(%+v) should have failed", cfg)
		}
	}
}

func TestModeAndBaselineKind(t *testing.T) {
	cases := []struct {
		cfg  Config
		mode BaselineMode
		kind tool.BaselineKind
	}{
		{Config{}, CompareBaseline, tool.OldBaseline()},
		{Config{Baseline: "foo"}, CompareBaseline, tool.NamedBaseline("foo")},
		{Config{SaveBaseline: "foo"}, SaveBaselineMode, tool.NamedBaseline("foo")},
		{Config{LoadBaseline: "foo", Baseline: "bar"}, LoadBaselineMode, tool.NamedBaseline("bar")},
	}
	for _, c := range cases {
		if got := c.cfg.Mode(); got != c.mode {
			t.Fatalf("Mode(%+v) = %v, want %v", c.cfg, got, c.mode)
		}
		if got := c.cfg.BaselineKind(); got != c.kind {
			t.Fatalf("BaselineKind(%+v) = %v, want %v", c.cfg, got, c.kind)
		}
	}
}

func TestTypedAccessors(t *testing.T) {
	cfg := Config{
		Regression:    "Ir=5",
		OutputFormat:  "pretty-json",
		SaveSummary:   "json",
		NoCapture:     "true",
		CallgrindArgs: " --dump-instr=yes   --separate-threads=yes ",
	}
	limits, err := cfg.Limits()
	if err != nil || len(limits) != 1 || limits[0] != (callgrind.Limit{Kind: callgrind.Ir, Percentage: 5}) {
		t.Fatalf("unexpected limits %v (%v)", limits, err)
	}
	if out, _ := cfg.Output(); out != format.OutputPrettyJSON {
		t.Fatalf("unexpected output format %v", out)
	}
	if f, _ := cfg.SummaryFormat(); f != summary.FormatJSON {
		t.Fatalf("unexpected summary format %v", f)
	}
	if n, _ := cfg.NoCaptureMode(); n != tool.NoCaptureTrue {
		t.Fatalf("unexpected nocapture %v", n)
	}
	if args := cfg.ExtraCallgrindArgs(); len(args) != 2 || args[1] != "--separate-threads=yes" {
		t.Fatalf("unexpected callgrind args %v", args)
	}
	if limits, err := (Config{}).Limits(); err != nil || limits != nil {
		t.Fatalf("expected no limits, got %v (%v)", limits, err)
	}
}

func TestLogFilePath(t *testing.T) {
	if path := (Config{}).LogFilePath(); path != "" {
		t.Fatalf("expected no log file, got %q", path)
	}
	if path := (Config{Debug: true}).LogFilePath(); path != filepath.Join(DefaultTargetDir, "cgbench.log") {
		t.Fatalf("unexpected debug log file %q", path)
	}
	if path := (Config{Debug: true, LogFile: "x.log"}).LogFilePath(); path != "x.log" {
		t.Fatalf("unexpected log file %q", path)
	}
}

// TestLoadMergesFileAndEnvironment loads a YAML config file and checks that
// environment variables override it.
func TestLoadMergesFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cgbench.yaml")
	payload := "save-baseline: foo\nregression: Ir=5\ntarget-dir: /tmp/bench\n"
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CGBENCH_OUTPUT_FORMAT", "json")

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.SaveBaseline != "foo" || cfg.Regression != "Ir=5" || cfg.TargetDir != "/tmp/bench" {
		t.Fatalf("config file values missing: %+v", cfg)
	}
	if cfg.OutputFormat != "json" {
		t.Fatalf("expected environment override, got %q", cfg.OutputFormat)
	}
	if cfg.NoCapture != "false" || cfg.Valgrind != "valgrind" {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if cfg.ConfigPath != path {
		t.Fatalf("expected config path %s, got %s", path, cfg.ConfigPath)
	}
}

func TestLoadWithoutConfigFile(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigName(ConfigName)
	v.AddConfigPath(t.TempDir())

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.ConfigPath != "" || cfg.TargetDirOrDefault() != DefaultTargetDir {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cgbench.yaml")
	if err := os.WriteFile(path, []byte("save-baseline: foo\nload-baseline: bar\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	if _, err := Load(v); err == nil {
		t.Fatal("Load() with exclusive baselines should have failed")
	}
}

func TestShowConfig(t *testing.T) {
	var buf bytes.Buffer
	ShowConfig(&buf, Config{ConfigPath: "cgbench.yaml", Baseline: "foo", OutputFormat: "default", Valgrind: "valgrind"})
	out := buf.String()
	for _, want := range []string{"Config file: cgbench.yaml", "Baseline:        foo", "Target Dir:      " + DefaultTargetDir} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got %s", want, out)
		}
	}

	buf.Reset()
	ShowConfig(&buf, Config{SaveBaseline: "bar"})
	if !strings.Contains(buf.String(), "No config file loaded") || !strings.Contains(buf.String(), "Save Baseline:   bar") {
		t.Fatalf("unexpected output %s", buf.String())
	}
}
