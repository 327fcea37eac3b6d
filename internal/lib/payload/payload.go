// Package payload extracts typed fields from loosely structured job payloads.
//
// A field may be supplied under any of several aliases; the first alias present
// with a non-empty value wins. Values are coerced with one rule set:
//
//   - strings: any string, numbers and booleans are formatted
//   - ints: native numbers with an integral value, or their string form ("80", " 80 ")
//   - bools: native booleans, numbers (non-zero is true) and
//     "true/false/1/0/t/f/yes/no/on/off" in any case
//   - lists: a native array, or a comma-separated string ("80,443")
//
// Empty strings and nil values count as absent. Unknown keys are ignored.
package payload

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// Fields is a generic structured value as decoded from JSON.
type Fields map[string]any

// CoercionError reports a present field whose value could not be converted.
type CoercionError struct {
	Field string
	Want  string
	Value any
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("field %q: cannot use %v (%T) as %s", e.Field, e.Value, e.Value, e.Want)
}

// Lookup returns the raw value of the first present alias and the alias that matched.
func (f Fields) Lookup(aliases ...string) (any, string, bool) {
	for _, key := range aliases {
		v, ok := f[key]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v, key, true
	}
	return nil, "", false
}

// Has reports whether any alias is present.
func (f Fields) Has(aliases ...string) bool {
	_, _, ok := f.Lookup(aliases...)
	return ok
}

func (f Fields) String(aliases ...string) (string, bool, error) {
	v, key, ok := f.Lookup(aliases...)
	if !ok {
		return "", false, nil
	}
	s, err := ToString(v)
	if err != nil {
		return "", true, &CoercionError{Field: key, Want: "string", Value: v}
	}
	return s, true, nil
}

func (f Fields) Int(aliases ...string) (int, bool, error) {
	v, key, ok := f.Lookup(aliases...)
	if !ok {
		return 0, false, nil
	}
	n, err := ToInt(v)
	if err != nil {
		return 0, true, &CoercionError{Field: key, Want: "integer", Value: v}
	}
	return n, true, nil
}

func (f Fields) Bool(aliases ...string) (bool, bool, error) {
	v, key, ok := f.Lookup(aliases...)
	if !ok {
		return false, false, nil
	}
	b, err := ToBool(v)
	if err != nil {
		return false, true, &CoercionError{Field: key, Want: "boolean", Value: v}
	}
	return b, true, nil
}

// Flag is Bool with absent and malformed values treated as false.
func (f Fields) Flag(aliases ...string) bool {
	b, _, err := f.Bool(aliases...)
	return err == nil && b
}

func (f Fields) IntList(aliases ...string) ([]int, bool, error) {
	v, key, ok := f.Lookup(aliases...)
	if !ok {
		return nil, false, nil
	}
	items := splitList(v)
	out := make([]int, 0, len(items))
	for _, item := range items {
		n, err := ToInt(item)
		if err != nil {
			return nil, true, &CoercionError{Field: key, Want: "list of integers", Value: v}
		}
		out = append(out, n)
	}
	return out, true, nil
}

func (f Fields) StringList(aliases ...string) ([]string, bool, error) {
	v, key, ok := f.Lookup(aliases...)
	if !ok {
		return nil, false, nil
	}
	items := splitList(v)
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, err := ToString(item)
		if err != nil {
			return nil, true, &CoercionError{Field: key, Want: "list of strings", Value: v}
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, true, nil
}

// Object returns a nested structured value.
func (f Fields) Object(aliases ...string) (Fields, bool) {
	v, _, ok := f.Lookup(aliases...)
	if !ok {
		return nil, false
	}
	switch m := v.(type) {
	case map[string]any:
		return Fields(m), true
	case Fields:
		return m, true
	}
	return nil, false
}

func ToString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), nil
	case map[string]any, []any:
		return "", fmt.Errorf("unsupported type %T", v)
	}
	return cast.ToStringE(v)
}

func ToInt(v any) (int, error) {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	if _, ok := v.(bool); ok {
		return 0, fmt.Errorf("boolean is not an integer")
	}

	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not an integer", v)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("%v is out of range", v)
	}
	return int(f), nil
}

func ToBool(v any) (bool, error) {
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "y", "on":
			return true, nil
		case "no", "n", "off":
			return false, nil
		}
		v = strings.TrimSpace(s)
	}
	return cast.ToBoolE(v)
}

func splitList(v any) []any {
	switch list := v.(type) {
	case []any:
		return list
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out
	case []int:
		out := make([]any, len(list))
		for i, n := range list {
			out[i] = n
		}
		return out
	case string:
		parts := strings.Split(list, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return []any{v}
}
