package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/renwick/stepflow/internal/logging"
	"github.com/renwick/stepflow/internal/manager"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	cfg     Config
	dataDir string
)

var rootCmd = &cobra.Command{
	Use:   "stepflow",
	Short: "Stepflow - workflow orchestration engine",
	Long: `Stepflow runs workflows: named sequences of steps that share a context,
where each step's result becomes available to later steps as $<step-name>.

Workflows and templates are stored as flat JSON files. Workflows can be run
immediately, scheduled for later or recurring execution, or applied to a
list of items with bounded parallelism.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = loadConfig()
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "blueprint storage directory (default: ~/.stepflow)")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("stepflow {{.Version}}\n")
}

// newLogger builds the process logger per config. Logs go to stderr so
// stdout stays clean for command output and the MCP stdio transport.
func newLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.slogLevel()}

	var inner slog.Handler
	if cfg.LogFormat == "json" {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		inner = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(logging.NewCorrelationHandler(inner))
}

// newManager wires a manager rooted at the configured data directory.
func newManager() (*manager.Manager, error) {
	return manager.New(cfg.DataDir, newLogger())
}
