package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/renwick/stepflow/pkg/schema"
)

var saveAsTemplate bool

var saveCmd = &cobra.Command{
	Use:   "save <file>",
	Short: "Validate and store a blueprint file",
	Long: `Read a blueprint from a JSON or YAML file, validate it, and store it
under the data directory. With --as-template it is stored as a template
instead of a workflow.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := readBlueprint(args[0])
		if err != nil {
			return err
		}

		m, err := newManager()
		if err != nil {
			return err
		}

		if saveAsTemplate {
			if err := m.SaveTemplate(file); err != nil {
				return err
			}
			fmt.Printf("template %q saved\n", file.Name)
			return nil
		}
		if err := m.SaveWorkflow(file); err != nil {
			return err
		}
		fmt.Printf("workflow %q saved\n", file.Name)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a blueprint file without storing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := readBlueprint(args[0])
		if err != nil {
			return err
		}

		m, err := newManager()
		if err != nil {
			return err
		}

		// Binding against the registry catches unknown actions too.
		if _, err := m.CreateWorkflow(file); err != nil {
			return err
		}
		fmt.Printf("blueprint %q is valid\n", file.Name)
		return nil
	},
}

// readBlueprint decodes a JSON or YAML blueprint file by extension.
func readBlueprint(path string) (*schema.WorkflowFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file schema.WorkflowFile
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	default:
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &file, nil
}

func init() {
	saveCmd.Flags().BoolVar(&saveAsTemplate, "as-template", false, "store the blueprint as a template")
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(validateCmd)
}
