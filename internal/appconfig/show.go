package appconfig

import (
	"fmt"
	"io"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, cfg Config) {
	if cfg.ConfigPath == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", cfg.ConfigPath)
	}

	fmt.Fprintln(out, "Current configuration:")
	switch cfg.Mode() {
	case SaveBaselineMode:
		fmt.Fprintf(out, "  Save Baseline:   %s\n", cfg.SaveBaseline)
	case LoadBaselineMode:
		fmt.Fprintf(out, "  Load Baseline:   %s\n", cfg.LoadBaseline)
		fmt.Fprintf(out, "  Baseline:        %s\n", cfg.Baseline)
	default:
		fmt.Fprintf(out, "  Baseline:        %s\n", cfg.BaselineKind())
	}
	if cfg.Regression != "" {
		fmt.Fprintf(out, "  Regression:      %s (fail fast: %v)\n", cfg.Regression, cfg.RegressionFailFast)
	}
	fmt.Fprintf(out, "  Output Format:   %s\n", cfg.OutputFormat)
	if cfg.SaveSummary != "" {
		fmt.Fprintf(out, "  Save Summary:    %s\n", cfg.SaveSummary)
	}
	fmt.Fprintf(out, "  No Capture:      %s\n", cfg.NoCapture)
	if cfg.CallgrindArgs != "" {
		fmt.Fprintf(out, "  Callgrind Args:  %s\n", cfg.CallgrindArgs)
	}
	fmt.Fprintf(out, "  Valgrind:        %s\n", cfg.Valgrind)
	fmt.Fprintf(out, "  Target Dir:      %s\n", cfg.TargetDirOrDefault())
	fmt.Fprintf(out, "  Debug:           %v\n", cfg.Debug)
	if path := cfg.LogFilePath(); path != "" {
		fmt.Fprintf(out, "  Log File:        %s\n", path)
	}
}
