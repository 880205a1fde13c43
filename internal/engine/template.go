package engine

import (
	"log/slog"

	"github.com/renwick/stepflow/internal/actions"
	"github.com/renwick/stepflow/pkg/schema"
)

// Template is a parameterized workflow blueprint. Given an action registry
// and a set of template inputs it materializes a concrete Workflow.
//
// Template inputs and step references share the "$<name>" syntax; the
// distinction is the stage at which they resolve. A reference whose name
// matches a supplied input is substituted eagerly at materialization, while
// everything else stays a lazy step reference resolved at execution time.
type Template struct {
	Name        string
	Description string
	Steps       []schema.StepDefinition
}

// NewTemplate creates a template from step blueprints.
func NewTemplate(name, description string, steps []schema.StepDefinition) *Template {
	return &Template{Name: name, Description: description, Steps: steps}
}

// TemplateFromFile builds a Template from a persisted blueprint.
func TemplateFromFile(file *schema.WorkflowFile) *Template {
	return NewTemplate(file.Name, file.Description, file.Steps)
}

// CreateWorkflow materializes a fresh Workflow bound to registry actions.
// Every blueprint action name is validated against the registry up front,
// failing fast instead of deferring the miss to execution time. Template
// input references are resolved here, once; step references stay lazy.
func (t *Template) CreateWorkflow(registry *actions.Registry, inputs map[string]any, logger *slog.Logger) (*Workflow, error) {
	wf := NewWorkflow(t.Name, t.Description, logger)

	for _, def := range t.Steps {
		actionName := def.ActionName()
		action, err := registry.Get(actionName)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeActionNotFound,
				"template %q: action %q not found in registry", t.Name, actionName).
				WithStep(def.Name)
		}

		params, err := ParseParams(def.Params)
		if err != nil {
			return nil, err
		}

		for key, p := range params {
			if p.Kind != ParamStepRef {
				continue
			}
			if val, ok := inputs[p.Ref]; ok {
				params[key] = Literal(val)
			}
		}

		wf.AddStep(NewStep(def.Name, def.Description, action, params))
	}

	return wf, nil
}

// WorkflowFromFile re-binds a persisted workflow blueprint against the
// current registry. Actions are looked up by name; a miss fails here, at
// load time.
func WorkflowFromFile(file *schema.WorkflowFile, registry *actions.Registry, logger *slog.Logger) (*Workflow, error) {
	return TemplateFromFile(file).CreateWorkflow(registry, nil, logger)
}

// File returns the persisted blueprint form of the template.
func (t *Template) File() *schema.WorkflowFile {
	return &schema.WorkflowFile{
		Name:        t.Name,
		Description: t.Description,
		Steps:       t.Steps,
	}
}
