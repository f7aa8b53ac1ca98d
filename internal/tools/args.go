package tools

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Args wraps the loosely typed arguments decoded from a function call
type Args map[string]any

// String returns a non-empty trimmed string argument
func (a Args) String(key string) (string, bool) {
	v, ok := a[key].(string)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// OptionalString returns a string argument that may legitimately be empty
func (a Args) OptionalString(key string) (*string, bool) {
	v, ok := a[key].(string)
	if !ok {
		return nil, false
	}
	return &v, true
}

// Number returns a numeric argument. Numeric strings are accepted since
// models occasionally quote coordinates.
func (a Args) Number(key string) (float64, bool) {
	switch v := a[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Objects returns a list argument whose items are objects
func (a Args) Objects(key string) ([]Args, bool) {
	switch v := a[key].(type) {
	case []any:
		out := make([]Args, 0, len(v))
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, Args(obj))
		}
		return out, true
	case []map[string]any:
		out := make([]Args, 0, len(v))
		for _, obj := range v {
			out = append(out, Args(obj))
		}
		return out, true
	default:
		return nil, false
	}
}
