package tools

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Arguments is the validated argument map handed to a handler. Every key listed as
// required by the tool schema is present with the schema type.
type Arguments map[string]any

// Number returns a numeric argument.
func (a Arguments) Number(key string) (float64, error) {
	switch v := a[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case nil:
		return 0, fmt.Errorf("missing argument %q", key)
	default:
		return 0, fmt.Errorf("argument %q is %T, want number", key, v)
	}
}

// String returns a string argument.
func (a Arguments) String(key string) (string, error) {
	switch v := a[key].(type) {
	case string:
		return v, nil
	case nil:
		return "", fmt.Errorf("missing argument %q", key)
	default:
		return "", fmt.Errorf("argument %q is %T, want string", key, v)
	}
}

// coerce converts scalar values whose JSON type disagrees with the schema but whose
// meaning is unambiguous: numeric strings for number properties and numbers for string
// properties. Models frequently send "1001" for 1001 and the reverse.
func coerce(params map[string]any, args map[string]any) Arguments {
	out := make(Arguments, len(args))
	props, _ := params["properties"].(map[string]any)
	for key, value := range args {
		prop, _ := props[key].(map[string]any)
		switch prop["type"] {
		case "number", "integer":
			switch v := value.(type) {
			case int:
				value = float64(v)
			case int32:
				value = float64(v)
			case int64:
				value = float64(v)
			case float32:
				value = float64(v)
			}
			if s, ok := value.(string); ok {
				if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
					value = f
				}
			}
			if n, ok := value.(json.Number); ok {
				if f, err := n.Float64(); err == nil {
					value = f
				}
			}
		case "string":
			switch v := value.(type) {
			case float64:
				value = strconv.FormatFloat(v, 'f', -1, 64)
			case int:
				value = strconv.Itoa(v)
			case json.Number:
				value = v.String()
			}
		}
		out[key] = value
	}
	return out
}
