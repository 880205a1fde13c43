package engine

import (
	"strings"

	"github.com/renwick/stepflow/pkg/schema"
)

// ParamKind tags the variant held by a Param.
type ParamKind int

const (
	// ParamLiteral is a plain value passed through unchanged.
	ParamLiteral ParamKind = iota
	// ParamStepRef references a prior step's result, resolved lazily at
	// execution time against the workflow context.
	ParamStepRef
	// ParamTemplateRef references a template input, resolved eagerly at
	// materialization time. Never survives past Template.CreateWorkflow.
	ParamTemplateRef
)

// Param is a tagged step parameter: a literal value or a named reference.
// References are parsed out of the blueprint at load time so malformed ones
// are rejected before execution instead of being string-sniffed at runtime.
type Param struct {
	Kind  ParamKind
	Value any    // ParamLiteral only
	Ref   string // ParamStepRef / ParamTemplateRef only
}

// Literal builds a literal Param.
func Literal(v any) Param {
	return Param{Kind: ParamLiteral, Value: v}
}

// StepRef builds a step reference Param.
func StepRef(name string) Param {
	return Param{Kind: ParamStepRef, Ref: name}
}

// TemplateRef builds a template input reference Param.
func TemplateRef(name string) Param {
	return Param{Kind: ParamTemplateRef, Ref: name}
}

// ParseParam converts a raw blueprint value into a Param.
// A string equal to "$<name>" becomes a step reference (templates re-tag
// matching refs as template refs at materialization). "$$" escapes a literal
// leading dollar sign. Any other string starting with "$" is malformed and
// rejected here, at load time.
func ParseParam(raw any) (Param, error) {
	s, ok := raw.(string)
	if !ok {
		return Literal(raw), nil
	}

	switch {
	case strings.HasPrefix(s, "$$"):
		return Literal(s[1:]), nil
	case strings.HasPrefix(s, "$"):
		name := s[1:]
		if !validRefName(name) {
			return Param{}, schema.NewErrorf(schema.ErrCodeValidation,
				"malformed parameter reference %q: expected $<name>", s).
				WithDetails(map[string]any{"value": s})
		}
		return StepRef(name), nil
	default:
		return Literal(s), nil
	}
}

// ParseParams converts a blueprint param mapping into tagged Params.
func ParseParams(raw map[string]any) (map[string]Param, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	params := make(map[string]Param, len(raw))
	for key, value := range raw {
		p, err := ParseParam(value)
		if err != nil {
			return nil, err
		}
		params[key] = p
	}
	return params, nil
}

// Resolve produces the concrete value for the param given the workflow
// context. Literals pass through. Step refs must resolve against an entry
// written by an earlier step; a missing key is a hard failure, never
// silently defaulted. Template refs must have been resolved at
// materialization and are rejected here.
func (p Param) Resolve(wfContext map[string]any) (any, error) {
	switch p.Kind {
	case ParamLiteral:
		return p.Value, nil
	case ParamStepRef:
		val, ok := wfContext[p.Ref]
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeMissingContextVar,
				"context variable %q not found", p.Ref).
				WithDetails(map[string]any{"reference": p.Ref, "available": contextKeys(wfContext)})
		}
		return val, nil
	case ParamTemplateRef:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unresolved template input %q at execution time", p.Ref)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown parameter kind %d", p.Kind)
	}
}

// Raw returns the blueprint wire representation of the param.
func (p Param) Raw() any {
	switch p.Kind {
	case ParamStepRef, ParamTemplateRef:
		return "$" + p.Ref
	default:
		if s, ok := p.Value.(string); ok && strings.HasPrefix(s, "$") {
			return "$" + s
		}
		return p.Value
	}
}

func validRefName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case i > 0 && (r >= '0' && r <= '9' || r == '.' || r == '-'):
		default:
			return false
		}
	}
	return true
}

func contextKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Simple insertion sort for small slices.
	for i := 1; i < len(keys); i++ {
		key := keys[i]
		j := i - 1
		for j >= 0 && keys[j] > key {
			keys[j+1] = keys[j]
			j--
		}
		keys[j+1] = key
	}
	return keys
}
