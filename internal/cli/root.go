// Package cli implements the cgbench command line. The benchmark driver
// invokes cgbench as
//
//	cgbench [flags] <driver> <version> --lib-bench|--bin-bench <module>
//
// and writes the benchmark tree to its stdin.
package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/mwiater/cgbench/internal/appconfig"
	"github.com/mwiater/cgbench/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	currentConfig *appconfig.Config
	appVersion    = "dev"
	appCommit     = "none"
	appDate       = "unknown"
)

var boolFlags = []string{"debug", "regression-fail-fast"}

var stringFlags = []string{
	"baseline", "save-baseline", "load-baseline", "regression", "output-format", "save-summary",
	"nocapture", "callgrind-args", "valgrind", "target-dir", "project-root", "input", "log-file",
}

// rootCmd runs the benchmarks of a driver.
var rootCmd = &cobra.Command{
	Use:          "cgbench [flags] <driver> <version> --lib-bench|--bin-bench <module>",
	Short:        "cgbench runs benchmarks under valgrind and reports regressions",
	Args:         cobra.ExactArgs(4),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureConfigLoaded(); err != nil {
			return err
		}

		for _, name := range boolFlags {
			if !cmd.Flags().Changed(name) {
				_ = cmd.Flags().Set(name, strconv.FormatBool(viper.GetBool(name)))
			}
		}
		for _, name := range stringFlags {
			if !cmd.Flags().Changed(name) {
				_ = cmd.Flags().Set(name, viper.GetString(name))
			}
		}

		cfg, err := appconfig.Load(viper.GetViper())
		if err != nil {
			return err
		}
		currentConfig = &cfg

		if err := logging.Init(currentConfig.LogFilePath(), currentConfig.Debug); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBenchmarks(*currentConfig, args, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, appCommit, appDate)

	defer logging.Close()
	if err := rootCmd.Execute(); err != nil {
		_ = logging.Close()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	appconfig.SetDefaults(viper.GetViper())

	// The protocol puts --lib-bench and --bin-bench after the positional
	// arguments.
	rootCmd.Flags().SetInterspersed(false)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default: ./cgbench.{json,yaml,toml} if present)")

	flags.String("baseline", "", "compare with this named baseline instead of the last run")
	flags.String("save-baseline", "", "run and save the results as this named baseline")
	flags.String("load-baseline", "", "compare this saved baseline with --baseline without running")
	flags.String("regression", "", "regression limits, e.g. 'Ir=5,EstimatedCycles=10' (overrides the benchmark limits)")
	flags.Bool("regression-fail-fast", false, "stop the benches of a group at the first regression")
	flags.String("output-format", "", "terminal output: default, json or pretty-json")
	flags.String("save-summary", "", "save a summary next to the artifacts: json, pretty-json or yaml")
	flags.String("nocapture", "", "show the output of the benchmarks: false, true, stdout or stderr")
	flags.String("callgrind-args", "", "additional callgrind arguments separated by white space")
	flags.String("valgrind", "", "path to the valgrind executable")
	flags.String("target-dir", "", "directory for the benchmark artifacts")
	flags.String("project-root", "", "root of the benchmarked project (default: current directory)")
	flags.String("input", "", "read the benchmark tree from this file instead of stdin")
	flags.Bool("debug", false, "enable debug logging and dump the resolved benchmark tree")
	flags.String("log-file", "", "path to the log file")

	for _, name := range append(append([]string(nil), boolFlags...), stringFlags...) {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

// initConfig points viper at the config file.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		return
	}
	viper.SetConfigName(appconfig.ConfigName)
	viper.AddConfigPath(".")
}

// ensureConfigLoaded reads the config file if there is one.
func ensureConfigLoaded() error {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

// GetConfig returns the loaded configuration.
func GetConfig() *appconfig.Config {
	return currentConfig
}

// SetVersionInfo allows the main package to inject build-time variables.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}
