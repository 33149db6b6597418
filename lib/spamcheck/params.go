package spamcheck

import (
	"encoding/json"
	"maps"
	"strconv"
	"strings"
)

// Params is a free-form key/value bag passed to a check. Each check defines its own keys and defaults,
// unknown keys are ignored and missing or malformed keys fall back to the check's default.
// Values come from JSON (float64, string, bool, []any, map[string]any), YAML (int, ...) or Go callers.
type Params map[string]any

// Has returns true if the key is set, even to nil.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Int returns an integer value for the key or def if the key is missing or not a number.
func (p Params) Int(key string, def int) int {
	v, ok := p.FloatOK(key)
	if !ok {
		return def
	}
	return int(v)
}

// Float returns a float value for the key or def if the key is missing or not a number.
func (p Params) Float(key string, def float64) float64 {
	if v, ok := p.FloatOK(key); ok {
		return v
	}
	return def
}

// FloatOK returns a float value for the key and true if the key is set to something convertible to a number.
// Numeric strings are accepted.
func (p Params) FloatOK(key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

// Bool returns a boolean value for the key or def if the key is missing or can't be interpreted.
// Strings are parsed with strconv.ParseBool, numbers are true if non-zero.
func (p Params) Bool(key string, def bool) bool {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return def
		}
		return b
	}
	if f, ok := p.FloatOK(key); ok {
		return f != 0
	}
	return def
}

// String returns a string value for the key or def if the key is missing, empty or not a string.
func (p Params) String(key, def string) string {
	v, ok := p[key].(string)
	if !ok || v == "" {
		return def
	}
	return v
}

// Strings returns a list of strings for the key or def if the key is missing or not a list.
// Non-string elements of the list are skipped.
func (p Params) Strings(key string, def []string) []string {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch val := v.(type) {
	case []string:
		return append([]string{}, val...)
	case []any:
		res := make([]string, 0, len(val))
		for _, elem := range val {
			if s, ok := elem.(string); ok {
				res = append(res, s)
			}
		}
		return res
	}
	return def
}

// Map returns a nested map for the key, nil if the key is missing or not a map.
func (p Params) Map(key string) map[string]any {
	switch val := p[key].(type) {
	case map[string]any:
		return val
	case Params:
		return val
	}
	return nil
}

// Clone makes a deep copy of params, so a check can't modify the caller's data.
func (p Params) Clone() Params {
	res := make(Params, len(p))
	for k, v := range p {
		res[k] = cloneValue(v)
	}
	return res
}

// Merge returns a new Params with values of p overlaid by values of other, key by key.
// Neither p nor other is modified.
func (p Params) Merge(other Params) Params {
	res := p.Clone()
	maps.Copy(res, other.Clone())
	return res
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		res := make(map[string]any, len(val))
		for k, e := range val {
			res[k] = cloneValue(e)
		}
		return res
	case Params:
		return val.Clone()
	case []any:
		res := make([]any, len(val))
		for i, e := range val {
			res[i] = cloneValue(e)
		}
		return res
	case []string:
		return append([]string{}, val...)
	}
	return v
}
