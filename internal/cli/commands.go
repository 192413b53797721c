package cli

import (
	"fmt"

	"github.com/mwiater/cgbench/internal/api"
	"github.com/mwiater/cgbench/internal/appconfig"
	"github.com/spf13/cobra"
)

// schemaCmd prints the JSON schema of the benchmark tree.
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the benchmark tree",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := cmd.OutOrStdout().Write(api.Schema())
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the cgbench version and the protocol version drivers must match",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cgbench %s (commit: %s, built: %s)\n", appVersion, appCommit, appDate)
		fmt.Fprintf(cmd.OutOrStdout(), "protocol version: %s\n", api.Version)
	},
}

// configCmd shows the merged configuration of flags, environment and
// config file.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the config file is loaded properly and overridden by environment variables and flags accordingly.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		appconfig.ShowConfig(cmd.OutOrStdout(), *currentConfig)
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}
