package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/renwick/stepflow/internal/engine"
)

var (
	runTemplate bool
	runInputs   []string
)

var runCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Execute a stored workflow or template",
	Long: `Run a stored workflow to completion and print its final context.

With --template, the name refers to a stored template; --input key=value
pairs are resolved into the template's $<key> references before execution.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager()
		if err != nil {
			return err
		}

		var wf *engine.Workflow
		if runTemplate {
			inputs, err := parseInputs(runInputs)
			if err != nil {
				return err
			}
			wf, err = m.InstantiateTemplate(args[0], inputs)
			if err != nil {
				return err
			}
		} else {
			if len(runInputs) > 0 {
				return fmt.Errorf("--input requires --template")
			}
			wf, err = m.LoadWorkflow(args[0])
			if err != nil {
				return err
			}
		}

		runErr := wf.Execute(cmd.Context())

		out := map[string]any{
			"workflow": wf.Name,
			"status":   wf.Status,
			"context":  wf.Context,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
		return runErr
	},
}

func init() {
	runCmd.Flags().BoolVar(&runTemplate, "template", false, "treat the name as a stored template")
	runCmd.Flags().StringArrayVarP(&runInputs, "input", "i", nil, "template input as key=value (repeatable)")
	rootCmd.AddCommand(runCmd)
}

// parseInputs converts key=value pairs into a template input map.
func parseInputs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	inputs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input %q: expected key=value", pair)
		}
		inputs[key] = value
	}
	return inputs, nil
}
