package main

import (
	"github.com/spf13/cobra"

	"github.com/Bobbins228/codeflare/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var globalFlags struct {
	logLevel  string
	logFormat string
}

var rootCmd = &cobra.Command{
	Use:   "codeflare",
	Short: "Plan, render and run pipeline DAGs",
	Long: "codeflare builds pipelines of estimator and AND-merge nodes from YAML,\n" +
		"groups them into dependency levels and runs them level by level.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return logging.Setup(globalFlags.logLevel, globalFlags.logFormat, cmd.ErrOrStderr())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globalFlags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&globalFlags.logFormat, "log-format", logging.FormatText, "Log format: text or json")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}
