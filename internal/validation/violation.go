package validation

import (
	"fmt"
	"strings"
)

// Code classifies a violation so callers can react without parsing messages.
type Code string

const (
	CodeMissing      Code = "missing"
	CodeInvalidType  Code = "invalid_type"
	CodeOutOfRange   Code = "out_of_range"
	CodeEnumMismatch Code = "enum_mismatch"
	CodeTooShort     Code = "too_short"
	CodeTooLong      Code = "too_long"
	CodeSemanticRule Code = "semantic_rule"
	CodeUnknownType  Code = "unknown_type"
)

// Violation is a single failed check.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    Code   `json:"code"`
}

func (v Violation) String() string {
	if v.Field == "" {
		return fmt.Sprintf("%s (%s)", v.Message, v.Code)
	}
	return fmt.Sprintf("%s: %s (%s)", v.Field, v.Message, v.Code)
}

// Violations is the ordered list of failures for one validation pass. A
// non-empty Violations is usable as an error.
type Violations []Violation

func (vs Violations) Error() string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasCode reports whether any violation carries code.
func (vs Violations) HasCode(code Code) bool {
	for _, v := range vs {
		if v.Code == code {
			return true
		}
	}
	return false
}

// On returns the violations reported for field.
func (vs Violations) On(field string) Violations {
	var out Violations
	for _, v := range vs {
		if v.Field == field {
			out = append(out, v)
		}
	}
	return out
}

// merge appends other, skipping entries whose field and code are already
// reported.
func (vs Violations) merge(other Violations) Violations {
	for _, o := range other {
		dup := false
		for _, v := range vs {
			if v.Field == o.Field && v.Code == o.Code {
				dup = true
				break
			}
		}
		if !dup {
			vs = append(vs, o)
		}
	}
	return vs
}

func join(prefix, field string) string {
	switch {
	case prefix == "":
		return field
	case field == "":
		return prefix
	case strings.HasPrefix(field, "["):
		return prefix + field
	}
	return prefix + "." + field
}
