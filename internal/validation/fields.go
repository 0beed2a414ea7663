package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf8"
)

// fields reads typed values out of a decoded JSON object, recording a
// violation for every field that is absent or malformed.
type fields struct {
	obj        map[string]any
	prefix     string
	violations Violations
}

func newFields(obj map[string]any, prefix string) *fields {
	return &fields{obj: obj, prefix: prefix}
}

func (f *fields) fail(field string, code Code, format string, args ...any) {
	f.violations = append(f.violations, Violation{
		Field:   join(f.prefix, field),
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

func (f *fields) present(name string) bool {
	v, ok := f.obj[name]
	return ok && v != nil
}

// str reads a required string bounded by min and max runes. A max of zero
// means unbounded.
func (f *fields) str(name string, min, max int) string {
	v, ok := f.obj[name]
	if !ok || v == nil {
		f.fail(name, CodeMissing, "required")
		return ""
	}
	s, ok := v.(string)
	if !ok {
		f.fail(name, CodeInvalidType, "expected string, got %s", kindOf(v))
		return ""
	}
	n := utf8.RuneCountInString(s)
	if n < min {
		f.fail(name, CodeTooShort, "must be at least %d characters", min)
	}
	if max > 0 && n > max {
		f.fail(name, CodeTooLong, "must be at most %d characters", max)
	}
	return s
}

// number reads a required number within [min, max].
func (f *fields) number(name string, min, max float64) float64 {
	v, ok := f.obj[name]
	if !ok || v == nil {
		f.fail(name, CodeMissing, "required")
		return 0
	}
	n, ok := toFloat(v)
	if !ok {
		f.fail(name, CodeInvalidType, "expected number, got %s", kindOf(v))
		return 0
	}
	if math.IsNaN(n) || n < min || n > max {
		f.fail(name, CodeOutOfRange, "must be between %g and %g", min, max)
	}
	return n
}

// enum reads a required string that must be one of allowed.
func (f *fields) enum(name string, allowed []string) string {
	v, ok := f.obj[name]
	if !ok || v == nil {
		f.fail(name, CodeMissing, "required")
		return ""
	}
	s, ok := v.(string)
	if !ok {
		f.fail(name, CodeInvalidType, "expected string, got %s", kindOf(v))
		return ""
	}
	if !slices.Contains(allowed, s) {
		f.fail(name, CodeEnumMismatch, "must be one of %s", strings.Join(allowed, ", "))
	}
	return s
}

// optionalBool reads an optional boolean.
func (f *fields) optionalBool(name string) *bool {
	if !f.present(name) {
		return nil
	}
	b, ok := f.obj[name].(bool)
	if !ok {
		f.fail(name, CodeInvalidType, "expected boolean, got %s", kindOf(f.obj[name]))
		return nil
	}
	return &b
}

// optionalObject reads an optional JSON object.
func (f *fields) optionalObject(name string) map[string]any {
	if !f.present(name) {
		return nil
	}
	m, ok := f.obj[name].(map[string]any)
	if !ok {
		f.fail(name, CodeInvalidType, "expected object, got %s", kindOf(f.obj[name]))
		return nil
	}
	return m
}

// strings reads a list of strings, each bounded by min and max runes. When
// required is set an absent or empty list is reported.
func (f *fields) strings(name string, required bool, min, max int) []string {
	if !f.present(name) {
		if required {
			f.fail(name, CodeMissing, "required")
		}
		return nil
	}
	list, ok := f.obj[name].([]any)
	if !ok {
		if typed, isStrings := f.obj[name].([]string); isStrings {
			list = make([]any, len(typed))
			for i, s := range typed {
				list[i] = s
			}
		} else {
			f.fail(name, CodeInvalidType, "expected array, got %s", kindOf(f.obj[name]))
			return nil
		}
	}
	if required && len(list) == 0 {
		f.fail(name, CodeTooShort, "must contain at least 1 item")
		return nil
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		field := fmt.Sprintf("%s[%d]", name, i)
		s, ok := item.(string)
		if !ok {
			f.fail(field, CodeInvalidType, "expected string, got %s", kindOf(item))
			continue
		}
		n := utf8.RuneCountInString(s)
		if n < min {
			f.fail(field, CodeTooShort, "must be at least %d characters", min)
		}
		if max > 0 && n > max {
			f.fail(field, CodeTooLong, "must be at most %d characters", max)
		}
		out = append(out, s)
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any, []string:
		return "array"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
