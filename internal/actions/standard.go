package actions

import "encoding/json"

// RegisterStandard registers the standard action library into the registry.
// The engine never invokes these on its own; they are an opt-in convenience
// for hosts that want expression evaluation, JSON reshaping, and HTTP calls
// without writing their own actions.
func RegisterStandard(r *Registry) error {
	std := []Action{
		newExprAction(),
		newJQAction(),
		newHTTPAction(),
	}
	for _, a := range std {
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}

// Param helpers shared by the standard actions.

func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func intParam(m map[string]any, key string, defaultVal int) int {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return defaultVal
		}
		return int(i)
	default:
		return defaultVal
	}
}

func mapParam(m map[string]any, key string) map[string]any {
	v, ok := m[key]
	if !ok {
		return nil
	}
	mv, _ := v.(map[string]any)
	return mv
}
