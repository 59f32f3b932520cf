// Package cli implements the tenderline command line interface.
// The serve command runs the ingestion engine; the other commands are
// thin clients over a running engine's admin API.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/tenderline-labs/tenderline/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	verbose    bool
	serverAddr string
)

var rootCmd = &cobra.Command{
	Use:   "tenderline",
	Short: "Procurement opportunity ingestion engine",
	Long: `Tenderline polls procurement data providers on adaptive schedules,
normalises and enriches the opportunities they publish, and serves the
results through an admin API.

Run "tenderline serve" to start the engine. The source and status
commands administer a running engine over its API.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://127.0.0.1:8714", "Admin API address of a running engine")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
