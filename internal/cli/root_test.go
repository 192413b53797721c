package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/mwiater/cgbench/internal/api"
	"github.com/mwiater/cgbench/internal/appconfig"
	"github.com/mwiater/cgbench/internal/bencherr"
	"github.com/mwiater/cgbench/internal/logging"
	"github.com/spf13/viper"
)

func init() {
	color.NoColor = true
}

func resetFlag(cmdFlag string) {
	flag := rootCmd.PersistentFlags().Lookup(cmdFlag)
	if flag == nil {
		return
	}
	_ = flag.Value.Set(flag.DefValue)
	flag.Changed = false
}

func resetFlags() {
	for _, name := range append(append([]string(nil), boolFlags...), stringFlags...) {
		resetFlag(name)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cgbench.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func useConfig(t *testing.T, configPath string) {
	t.Helper()
	prevCfgFile := cfgFile
	cfgFile = configPath
	viper.SetConfigFile(configPath)
	resetFlags()
	t.Cleanup(func() {
		cfgFile = prevCfgFile
		viper.SetConfigFile(prevCfgFile)
		resetFlags()
	})
	t.Cleanup(func() { _ = logging.Close() })
}

func TestPersistentPreRunEUsesFlagValues(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "cgbench.log")
	configPath := writeTempConfig(t, "regression: Ir=5\ntarget-dir: /tmp/cgbench-target\noutput-format: pretty-json\n")
	useConfig(t, configPath)

	_ = rootCmd.PersistentFlags().Set("save-baseline", "foo")
	_ = rootCmd.PersistentFlags().Set("output-format", "json")
	_ = rootCmd.PersistentFlags().Set("regression-fail-fast", "true")
	_ = rootCmd.PersistentFlags().Set("log-file", logPath)

	if err := rootCmd.PersistentPreRunE(rootCmd, []string{}); err != nil {
		t.Fatalf("PersistentPreRunE error: %v", err)
	}

	if currentConfig == nil || currentConfig.ConfigPath != configPath {
		t.Fatalf("expected config loaded with path %s", configPath)
	}
	if currentConfig.SaveBaseline != "foo" || !currentConfig.RegressionFailFast {
		t.Fatalf("expected flag values to flow into config: %+v", currentConfig)
	}
	if currentConfig.OutputFormat != "json" {
		t.Fatalf("expected the flag to override the config file, got %s", currentConfig.OutputFormat)
	}
	if currentConfig.Regression != "Ir=5" || currentConfig.TargetDir != "/tmp/cgbench-target" {
		t.Fatalf("expected config file values, got %+v", currentConfig)
	}
	if currentConfig.Valgrind != "valgrind" {
		t.Fatalf("expected default valgrind, got %s", currentConfig.Valgrind)
	}
	if GetConfig() != currentConfig {
		t.Fatalf("GetConfig should return the loaded config")
	}
}

func TestPersistentPreRunEInvalidBaselines(t *testing.T) {
	useConfig(t, writeTempConfig(t, "{}\n"))

	_ = rootCmd.PersistentFlags().Set("save-baseline", "foo")
	_ = rootCmd.PersistentFlags().Set("load-baseline", "bar")

	if err := rootCmd.PersistentPreRunE(rootCmd, []string{}); err == nil {
		t.Fatalf("expected error for save-baseline combined with load-baseline")
	}
}

func TestConfigCommandOutput(t *testing.T) {
	configPath := writeTempConfig(t, "valgrind: /opt/valgrind/bin/valgrind\n")
	useConfig(t, configPath)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"--baseline=foo", "config"})
	t.Cleanup(func() { rootCmd.SetArgs([]string{}) })
	if _, err := rootCmd.ExecuteC(); err != nil {
		t.Fatalf("ExecuteC error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Config file: "+configPath) {
		t.Fatalf("expected config file path in output, got %s", out)
	}
	if !strings.Contains(out, "Baseline:        foo") {
		t.Fatalf("expected baseline in output, got %s", out)
	}
	if !strings.Contains(out, "Valgrind:        /opt/valgrind/bin/valgrind") {
		t.Fatalf("expected valgrind in output, got %s", out)
	}
}

func TestSchemaAndVersionCommands(t *testing.T) {
	useConfig(t, writeTempConfig(t, "{}\n"))

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	t.Cleanup(func() { rootCmd.SetArgs([]string{}) })

	rootCmd.SetArgs([]string{"schema"})
	if _, err := rootCmd.ExecuteC(); err != nil {
		t.Fatalf("schema error: %v", err)
	}
	if !strings.Contains(buf.String(), "json-schema.org") {
		t.Fatalf("expected the schema, got %s", buf.String())
	}

	buf.Reset()
	rootCmd.SetArgs([]string{"version"})
	if _, err := rootCmd.ExecuteC(); err != nil {
		t.Fatalf("version error: %v", err)
	}
	if !strings.Contains(buf.String(), "protocol version: "+api.Version) {
		t.Fatalf("expected the protocol version, got %s", buf.String())
	}
}

func TestCheckVersion(t *testing.T) {
	if err := checkVersion(api.Version); err != nil {
		t.Fatalf("matching version rejected: %v", err)
	}
	if err := checkVersion("v" + api.Version); err != nil {
		t.Fatalf("matching version with prefix rejected: %v", err)
	}

	var mismatch *bencherr.VersionMismatchError
	if err := checkVersion("99.0.0"); !errors.As(err, &mismatch) {
		t.Fatalf("expected a version mismatch, got %v", err)
	}
	if mismatch.Engine != api.Version || mismatch.Caller != "99.0.0" {
		t.Fatalf("unexpected mismatch %+v", mismatch)
	}
	if err := checkVersion("not a version"); err == nil || errors.As(err, &mismatch) {
		t.Fatalf("expected an invalid version error, got %v", err)
	}
}

const fakeValgrind = `#!/bin/sh
out=/dev/null
log=/dev/null
for arg in "$@"; do
  case "$arg" in
    --callgrind-out-file=*) out="${arg#--callgrind-out-file=}" ;;
    --log-file=*) log="${arg#--log-file=}" ;;
  esac
done
read -r ir < "COSTS"
printf 'events: Ir\nfn=bench::cgbench_run\n0 %s\n' "$ir" > "$out"
printf '==1== Callgrind\n' > "$log"
`

const fibTree = `{
  "groups": [
    {"id": "g", "benches": [{"benches": [{"id": "ten", "function": "fib", "args": "10"}]}]}
  ]
}`

type fixture struct {
	dir    string
	costs  string
	driver string
	cfg    appconfig.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{dir: dir, costs: filepath.Join(dir, "costs"), driver: filepath.Join(dir, "driver")}
	valgrind := filepath.Join(dir, "valgrind")
	if err := os.WriteFile(valgrind, []byte(strings.ReplaceAll(fakeValgrind, "COSTS", f.costs)), 0o755); err != nil {
		t.Fatalf("write valgrind: %v", err)
	}
	if err := os.WriteFile(f.driver, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write driver: %v", err)
	}
	f.setCosts(t, "1000")
	f.cfg = appconfig.Config{
		Valgrind:     valgrind,
		TargetDir:    "target/cgbench",
		ProjectRoot:  dir,
		OutputFormat: "default",
		NoCapture:    "false",
	}
	return f
}

func (f *fixture) setCosts(t *testing.T, ir string) {
	t.Helper()
	if err := os.WriteFile(f.costs, []byte(ir+"\n"), 0o644); err != nil {
		t.Fatalf("write costs: %v", err)
	}
}

func (f *fixture) run(cfg appconfig.Config, version, mode, tree string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	err := runBenchmarks(cfg, []string{f.driver, version, mode, "benches"}, strings.NewReader(tree), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

// TestRunBenchmarksDetectsRegression runs a library bench twice through the
// command line entry point.
func TestRunBenchmarksDetectsRegression(t *testing.T) {
	f := newFixture(t)

	out, _, err := f.run(f.cfg, api.Version, "--lib-bench", fibTree)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if !strings.Contains(out, "benches::g::fib") || !strings.Contains(out, "ten:10") {
		t.Fatalf("unexpected output %s", out)
	}
	if _, err := os.Stat(filepath.Join(f.dir, "target", "cgbench", "benches", "g", "fib.ten", "callgrind.fib.ten.out")); err != nil {
		t.Fatalf("expected the callgrind output below the project root: %v", err)
	}

	f.setCosts(t, "1100")
	cfg := f.cfg
	cfg.Regression = "Ir=5"
	out, _, err = f.run(cfg, api.Version, "--lib-bench", fibTree)
	if !errors.Is(err, bencherr.ErrRegression) {
		t.Fatalf("expected a regression, got %v", err)
	}
	if !strings.Contains(out, "(+10.00000%)") {
		t.Fatalf("expected the diff in the output, got %s", out)
	}
}

func TestRunBenchmarksFromInputFile(t *testing.T) {
	f := newFixture(t)
	input := filepath.Join(f.dir, "tree.json")
	if err := os.WriteFile(input, []byte(fibTree), 0o644); err != nil {
		t.Fatalf("write tree: %v", err)
	}
	cfg := f.cfg
	cfg.Input = input
	cfg.OutputFormat = "json"
	cfg.Debug = true

	out, debug, err := f.run(cfg, api.Version, "lib", "")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, `"module_path":"benches::g::fib"`) {
		t.Fatalf("expected a JSON summary, got %s", out)
	}
	if !strings.Contains(debug, "Groups") {
		t.Fatalf("expected the debug dump of the groups, got %s", debug)
	}
}

func TestRunBenchmarksRejectsBadInvocations(t *testing.T) {
	f := newFixture(t)

	var mismatch *bencherr.VersionMismatchError
	if _, _, err := f.run(f.cfg, "0.0.1", "--lib-bench", fibTree); !errors.As(err, &mismatch) {
		t.Fatalf("expected a version mismatch, got %v", err)
	}
	if _, _, err := f.run(f.cfg, api.Version, "--all-bench", fibTree); err == nil {
		t.Fatalf("expected an unknown mode error")
	}
	if _, _, err := f.run(f.cfg, api.Version, "--bin-bench", fibTree); err == nil {
		t.Fatalf("expected binary benches without a command to be rejected")
	}
	if _, _, err := f.run(f.cfg, api.Version, "--lib-bench", `{"groups": "nope"}`); err == nil {
		t.Fatalf("expected a schema error")
	}
}
