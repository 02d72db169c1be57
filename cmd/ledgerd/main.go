// Ledgerd is an invoice ingestion and semantic search daemon.
//
// It accepts raw invoice documents over HTTP, extracts structured fields
// through a template-first pipeline with generative fallback, canonicalizes
// vendors, and serves similarity and natural-language search over the
// stored records.
//
// Configuration is loaded from a YAML file and LEDGERD_-prefixed
// environment variables.
//
// Usage:
//
//	# Start the daemon with defaults
//	ledgerd serve
//
//	# Configure via file and environment
//	LEDGERD_SERVER_PORT=8420 ledgerd serve --config /etc/ledgerd/config.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ledgerd",
	Short: "Invoice ingestion and semantic search daemon",
	Long: `ledgerd ingests raw invoice documents, extracts structured fields,
canonicalizes vendor names, and serves semantic search over the records.`,
	Version: version,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ledgerd\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
