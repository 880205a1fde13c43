package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:       "list [workflows|templates|actions|tasks]",
	Short:     "List stored workflows, templates, registered actions, or scheduled tasks",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"workflows", "templates", "actions", "tasks"},
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager()
		if err != nil {
			return err
		}

		resource := "workflows"
		if len(args) == 1 {
			resource = args[0]
		}

		switch resource {
		case "workflows":
			names, err := m.ListWorkflows()
			if err != nil {
				return err
			}
			printNames(names)
		case "templates":
			names, err := m.ListTemplates()
			if err != nil {
				return err
			}
			printNames(names)
		case "actions":
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, info := range m.ListActions() {
				fmt.Fprintf(w, "%s\t%s\n", info.Name, info.Description)
			}
			return w.Flush()
		case "tasks":
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, task := range m.ListScheduledTasks() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", task.ID, task.Workflow, task.Status)
			}
			return w.Flush()
		default:
			return fmt.Errorf("unknown resource %q", resource)
		}
		return nil
	},
}

func printNames(names []string) {
	for _, name := range names {
		fmt.Println(name)
	}
}

func init() {
	rootCmd.AddCommand(listCmd)
}
