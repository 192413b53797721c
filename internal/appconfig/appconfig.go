// Package appconfig manages loading and interpreting the command line
// configuration of a cgbench run.
package appconfig

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mwiater/cgbench/internal/callgrind"
	"github.com/mwiater/cgbench/internal/format"
	"github.com/mwiater/cgbench/internal/summary"
	"github.com/mwiater/cgbench/internal/tool"
	"github.com/spf13/viper"
)

const (
	// ConfigName is the base name of the optional config file.
	ConfigName = "cgbench"
	// EnvPrefix prefixes the environment variables, e.g. CGBENCH_SAVE_BASELINE.
	EnvPrefix = "CGBENCH"
	// DefaultTargetDir is where benchmark artifacts are written.
	DefaultTargetDir = "target/cgbench"
	// defaultLogFile is used when debug logging is enabled without a log file.
	defaultLogFile = "cgbench.log"
)

// Config is the resolved configuration of one invocation. Flags override
// environment variables which override the config file.
type Config struct {
	Baseline           string `mapstructure:"baseline"`
	SaveBaseline       string `mapstructure:"save-baseline"`
	LoadBaseline       string `mapstructure:"load-baseline"`
	Regression         string `mapstructure:"regression"`
	RegressionFailFast bool   `mapstructure:"regression-fail-fast"`
	OutputFormat       string `mapstructure:"output-format"`
	SaveSummary        string `mapstructure:"save-summary"`
	NoCapture          string `mapstructure:"nocapture"`
	CallgrindArgs      string `mapstructure:"callgrind-args"`
	Valgrind           string `mapstructure:"valgrind"`
	TargetDir          string `mapstructure:"target-dir"`
	ProjectRoot        string `mapstructure:"project-root"`
	Input              string `mapstructure:"input"`
	Debug              bool   `mapstructure:"debug"`
	LogFile            string `mapstructure:"log-file"`
	ConfigPath         string `mapstructure:"-"`
}

// BaselineMode tells which of the three baseline strategies is selected.
type BaselineMode int

const (
	// CompareBaseline runs and compares with the old run or a named baseline.
	CompareBaseline BaselineMode = iota
	// SaveBaselineMode runs and stores the result as a named baseline.
	SaveBaselineMode
	// LoadBaselineMode compares two stored baselines without running.
	LoadBaselineMode
)

// SetDefaults registers the defaults and the environment binding on v.
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("target-dir", DefaultTargetDir)
	v.SetDefault("output-format", "default")
	v.SetDefault("nocapture", "false")
	v.SetDefault("valgrind", "valgrind")
}

// Validate checks the baseline flags and parses every typed option once.
func (c Config) Validate() error {
	if c.SaveBaseline != "" && c.LoadBaseline != "" {
		return errors.New("invalid configuration: only one of save-baseline or load-baseline can be set")
	}
	if c.SaveBaseline != "" && c.Baseline != "" {
		return errors.New("invalid configuration: save-baseline compares with the baseline it saves and cannot be combined with baseline")
	}
	if c.LoadBaseline != "" && c.Baseline == "" {
		return errors.New("invalid configuration: load-baseline requires baseline to compare with")
	}
	for _, name := range []string{c.Baseline, c.SaveBaseline, c.LoadBaseline} {
		if name == "" {
			continue
		}
		if _, err := tool.ParseBaselineName(name); err != nil {
			return err
		}
	}
	if _, err := c.Limits(); err != nil {
		return err
	}
	if _, err := c.NoCaptureMode(); err != nil {
		return err
	}
	if _, err := c.Output(); err != nil {
		return err
	}
	if _, err := c.SummaryFormat(); err != nil {
		return err
	}
	return nil
}

// Mode returns the selected baseline strategy.
func (c Config) Mode() BaselineMode {
	switch {
	case c.SaveBaseline != "":
		return SaveBaselineMode
	case c.LoadBaseline != "":
		return LoadBaselineMode
	default:
		return CompareBaseline
	}
}

// BaselineKind is the slot compared with.
func (c Config) BaselineKind() tool.BaselineKind {
	switch {
	case c.SaveBaseline != "":
		return tool.NamedBaseline(strings.TrimSpace(c.SaveBaseline))
	case c.Baseline != "":
		return tool.NamedBaseline(strings.TrimSpace(c.Baseline))
	default:
		return tool.OldBaseline()
	}
}

// Limits parses the regression limits. Nil means the limits of the
// benchmark tree apply.
func (c Config) Limits() ([]callgrind.Limit, error) {
	if strings.TrimSpace(c.Regression) == "" {
		return nil, nil
	}
	return callgrind.ParseLimits(c.Regression)
}

// NoCaptureMode parses the nocapture option.
func (c Config) NoCaptureMode() (tool.NoCapture, error) {
	return tool.ParseNoCapture(c.NoCapture)
}

// Output parses the terminal output format.
func (c Config) Output() (format.OutputFormat, error) {
	return format.ParseOutputFormat(c.OutputFormat)
}

// SummaryFormat parses the format of the saved summaries.
func (c Config) SummaryFormat() (summary.Format, error) {
	return summary.ParseFormat(c.SaveSummary)
}

// ExtraCallgrindArgs splits the raw callgrind arguments at white space.
func (c Config) ExtraCallgrindArgs() []string {
	return strings.Fields(c.CallgrindArgs)
}

// LogFilePath returns the log file, defaulting to cgbench.log below the
// target directory in debug mode. Empty disables file logging.
func (c Config) LogFilePath() string {
	if path := strings.TrimSpace(c.LogFile); path != "" {
		return path
	}
	if c.Debug {
		return filepath.Join(c.TargetDirOrDefault(), defaultLogFile)
	}
	return ""
}

// TargetDirOrDefault returns the artifact directory.
func (c Config) TargetDirOrDefault() string {
	if dir := strings.TrimSpace(c.TargetDir); dir != "" {
		return dir
	}
	return DefaultTargetDir
}

// Load reads the optional config file of v and unmarshals the merged
// configuration. A missing config file is not an error.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to load config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
