// Package commands implements the hyperspacectl CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	serverAddr   string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:           "hyperspacectl",
	Short:         "Operator CLI for a Hyperspace master",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "localhost:7778", "Hyperspace request-channel address (host:port)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, yaml")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
