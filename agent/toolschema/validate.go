package toolschema

import "fmt"

// Validate reports whether every required parameter is present in inputs
// and every supplied key's value matches its declared JSON type. Extra keys
// not declared in the schema are ignored.
func Validate(schema Schema, inputs map[string]any) error {
	for _, name := range schema.RequiredNames() {
		if _, ok := inputs[name]; !ok {
			return fmt.Errorf("missing required parameter %q", name)
		}
	}
	for _, p := range schema.Parameters {
		v, ok := inputs[p.Name]
		if !ok {
			continue
		}
		if !matchesType(v, p.Type) {
			return fmt.Errorf("parameter %q: expected %s, got %T", p.Name, p.Type, v)
		}
	}
	return nil
}

func matchesType(v any, t ParamType) bool {
	if v == nil {
		return t == TypeNull
	}
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeInteger:
		switch v.(type) {
		case int, int32, int64:
			return true
		default:
			return false
		}
	case TypeNumber:
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return true
		default:
			return false
		}
	case TypeArray:
		_, ok := v.([]any)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case TypeNull:
		return v == nil
	default:
		return false
	}
}
