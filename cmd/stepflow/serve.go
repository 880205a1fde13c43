package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/renwick/stepflow/pkg/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve workflow tools over MCP on stdio",
	Long: `Start the scheduler and expose the workflow manager over the Model
Context Protocol on stdin/stdout. Runs until stdin closes or the process
receives SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := m.Start(ctx); err != nil {
			return err
		}
		defer m.Shutdown()

		srv := mcp.NewStepflowServer(m, newLogger())
		if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
