package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	batchSize    int
	batchWorkers int
)

var batchCmd = &cobra.Command{
	Use:   "batch <workflow> <items-file>",
	Short: "Run a stored workflow once per item with bounded parallelism",
	Long: `Read a JSON array of items and run the named workflow once per item.
Each item is available to steps as $item. Items are processed in batches
with a bounded number of concurrent workers; one item's failure never
stops the others.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		var items []any
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("decode %s: %w", args[1], err)
		}

		m, err := newManager()
		if err != nil {
			return err
		}

		bp, err := m.NewBatchProcessor(args[0], batchSize, batchWorkers)
		if err != nil {
			return err
		}

		result, err := bp.Process(cmd.Context(), items)
		if err != nil {
			return err
		}

		out := map[string]any{
			"workflow":    result.Workflow,
			"total_items": result.TotalItems,
			"succeeded":   len(result.Results),
			"failed":      len(result.Errors),
			"errors":      result.Errors,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
		if len(result.Errors) > 0 {
			return fmt.Errorf("%d of %d items failed", len(result.Errors), result.TotalItems)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchSize, "batch-size", 0, "items per batch (default 10)")
	batchCmd.Flags().IntVar(&batchWorkers, "max-workers", 0, "concurrent workers per batch (default 5)")
	rootCmd.AddCommand(batchCmd)
}
