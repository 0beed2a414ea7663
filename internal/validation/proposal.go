package validation

import (
	"fmt"
	"unicode/utf8"

	"github.com/fyrsmithlabs/helmd/internal/intent"
)

// Result is the outcome of validating a whole proposal.
type Result struct {
	Valid      bool             `json:"valid"`
	Data       *intent.Proposal `json:"data,omitempty"`
	Violations Violations       `json:"violations,omitempty"`
}

// Err returns the violations as an error, or nil for a valid result.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return r.Violations
}

// IntentResult is the outcome of validating a single intent in isolation.
type IntentResult struct {
	Valid      bool          `json:"valid"`
	Data       intent.Intent `json:"data,omitempty"`
	Violations Violations    `json:"violations,omitempty"`
}

// ValidateProposal checks the envelope, every intent, and the proposal-wide
// rules. It never stops at the first failing intent.
func ValidateProposal(raw any) Result {
	obj, vs := asObject(raw, "")
	if len(vs) > 0 {
		return Result{Violations: vs}
	}

	f := newFields(obj, "")
	speech := f.str("speech", 0, intent.MaxSpeechLength)
	violations := f.violations

	var items []any
	if v, ok := obj["intents"]; ok && v != nil {
		list, isList := v.([]any)
		if !isList {
			violations = append(violations, Violation{
				Field:   "intents",
				Message: fmt.Sprintf("expected array, got %s", kindOf(v)),
				Code:    CodeInvalidType,
			})
		}
		items = list
	}
	if len(items) > intent.MaxIntentsPerProposal {
		violations = append(violations, Violation{
			Field:   "intents",
			Message: fmt.Sprintf("must contain at most %d intents", intent.MaxIntentsPerProposal),
			Code:    CodeTooLong,
		})
	}

	intents := make([]intent.Intent, 0, len(items))
	for i, item := range items {
		prefix := fmt.Sprintf("intents[%d]", i)
		in, ivs, structural := validateIntentAt(item, prefix)
		violations = violations.merge(ivs)
		if !structural {
			continue
		}
		violations = violations.merge(refineInProposal(in, prefix))
		intents = append(intents, in)
	}

	if len(violations) > 0 {
		return Result{Violations: violations}
	}
	return Result{Valid: true, Data: &intent.Proposal{Speech: speech, Intents: intents}}
}

// ValidateProposalJSON decodes data and validates it as a proposal.
func ValidateProposalJSON(data []byte) Result {
	return ValidateProposal(data)
}

// refineInProposal applies the rules every intent must satisfy when it is
// part of a proposal.
func refineInProposal(in intent.Intent, prefix string) Violations {
	var vs Violations
	h := in.Header()
	if intent.IsWriteClass(in.Kind()) && h.Confidence < intent.WriteClassMinConfidence {
		vs = append(vs, Violation{
			Field:   join(prefix, "confidence"),
			Message: fmt.Sprintf("write intents require confidence >= %g", intent.WriteClassMinConfidence),
			Code:    CodeSemanticRule,
		})
	}
	if utf8.RuneCountInString(h.Justification) < intent.MinJustificationLength {
		vs = append(vs, Violation{
			Field:   join(prefix, "justification"),
			Message: fmt.Sprintf("justification must be at least %d characters", intent.MinJustificationLength),
			Code:    CodeSemanticRule,
		})
	}
	if m, ok := in.(intent.MemoryProposal); ok {
		if v, bad := anonymityViolation(m, prefix); bad {
			vs = append(vs, v)
		}
	}
	return vs
}

// ValidateSingleIntent validates one intent with the same rules it would face
// inside a proposal.
func ValidateSingleIntent(raw any) IntentResult {
	return validateSingle(raw, "")
}

// ValidateMemoryProposal validates raw as a memory proposal. A missing type
// defaults to memory_proposal.
func ValidateMemoryProposal(raw any) IntentResult {
	return validateSingle(raw, intent.TypeMemoryProposal)
}

// ValidateTrustSignal validates raw as a trust signal. A missing type
// defaults to trust_signal.
func ValidateTrustSignal(raw any) IntentResult {
	return validateSingle(raw, intent.TypeTrustSignal)
}

func validateSingle(raw any, want intent.Type) IntentResult {
	obj, vs := asObject(raw, "")
	if len(vs) > 0 {
		return IntentResult{Violations: vs}
	}
	if want != "" {
		got, hasType := obj["type"]
		if !hasType || got == nil {
			withType := make(map[string]any, len(obj)+1)
			for k, v := range obj {
				withType[k] = v
			}
			withType["type"] = string(want)
			obj = withType
		} else if s, _ := got.(string); intent.Type(s) != want {
			return IntentResult{Violations: Violations{{
				Field:   "type",
				Message: fmt.Sprintf("expected %s", want),
				Code:    CodeEnumMismatch,
			}}}
		}
	}

	in, violations, structural := validateIntentAt(obj, "")
	if structural {
		violations = violations.merge(refineInProposal(in, ""))
	}
	if len(violations) > 0 {
		return IntentResult{Violations: violations}
	}
	return IntentResult{Valid: true, Data: in}
}
