package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/helmd/internal/intent"
)

// forbiddenGlobalTerms may not appear in a globally scoped memory summary.
var forbiddenGlobalTerms = []string{"user", "player"}

// schema is the rule set for one intent type. build performs the structural
// checks and assembles the typed value; refine runs the cross-field rules and
// is only consulted once build reported nothing.
type schema struct {
	build  func(f *fields, base intent.Base) intent.Intent
	refine func(in intent.Intent, prefix string) Violations
}

var schemas = map[intent.Type]schema{
	intent.TypeMemoryProposal: {
		build: func(f *fields, base intent.Base) intent.Intent {
			return intent.MemoryProposal{
				Base:    base,
				Scope:   intent.MemoryScope(f.enum("scope", intent.MemoryScopes)),
				Summary: f.str("summary", 0, intent.MaxMemorySummaryLength),
			}
		},
		refine: func(in intent.Intent, prefix string) Violations {
			m := in.(intent.MemoryProposal)
			var vs Violations
			if m.Scope != intent.ScopeEvent && m.Confidence < intent.MemoryMinConfidence {
				vs = append(vs, Violation{
					Field:   join(prefix, "confidence"),
					Message: fmt.Sprintf("memory outside event scope requires confidence >= %g", intent.MemoryMinConfidence),
					Code:    CodeSemanticRule,
				})
			}
			if v, bad := anonymityViolation(m, prefix); bad {
				vs = append(vs, v)
			}
			return vs
		},
	},
	intent.TypeTrustSignal: {
		build: func(f *fields, base intent.Base) intent.Intent {
			ts := intent.TrustSignal{
				Base:     base,
				UserID:   f.str("userId", 1, 0),
				Delta:    f.number("delta", -1, 1),
				Category: intent.TrustCategory(f.enum("category", intent.TrustCategories)),
				Source:   intent.TrustSource(f.enum("source", intent.TrustSources)),
			}
			switch {
			case base.Reversible == nil:
				if !f.present("reversible") {
					f.fail("reversible", CodeMissing, "required")
				}
			case !*base.Reversible:
				f.fail("reversible", CodeEnumMismatch, "must be true")
			}
			return ts
		},
		refine: func(in intent.Intent, prefix string) Violations {
			ts := in.(intent.TrustSignal)
			if math.Abs(ts.Delta) > intent.MaxTrustDelta {
				return Violations{{
					Field:   join(prefix, "delta"),
					Message: fmt.Sprintf("trust delta magnitude must not exceed %g", intent.MaxTrustDelta),
					Code:    CodeSemanticRule,
				}}
			}
			return nil
		},
	},
	intent.TypePersonaMode: {
		build: func(f *fields, base intent.Base) intent.Intent {
			return intent.PersonaModeProposal{
				Base: base,
				Mode: intent.PersonaMode(f.enum("mode", intent.PersonaModes)),
			}
		},
		refine: minConfidence(intent.PersonaMinConfidence, "persona change"),
	},
	intent.TypeModerationSuggestion: {
		build: func(f *fields, base intent.Base) intent.Intent {
			if j, ok := f.obj["justification"].(string); ok && utf8.RuneCountInString(j) < intent.MinModerationJustLength {
				f.fail("justification", CodeTooShort, "must be at least %d characters", intent.MinModerationJustLength)
			}
			return intent.ModerationSuggestion{
				Base:     base,
				UserID:   f.str("userId", 1, 0),
				Severity: intent.Severity(f.enum("severity", intent.Severities)),
				Action:   intent.ModerationAction(f.enum("action", intent.ModerationActions)),
				Evidence: f.strings("evidence", false, 0, 0),
			}
		},
		refine: func(in intent.Intent, prefix string) Violations {
			ms := in.(intent.ModerationSuggestion)
			if ms.Severity == intent.SeverityHigh && len(ms.Evidence) == 0 {
				return Violations{{
					Field:   join(prefix, "evidence"),
					Message: "high severity moderation requires evidence",
					Code:    CodeSemanticRule,
				}}
			}
			return nil
		},
	},
	intent.TypeGameEvent: {
		build: func(f *fields, base intent.Base) intent.Intent {
			return intent.GameEventIntent{
				Base:       base,
				GameAction: intent.GameAction(f.enum("gameAction", intent.GameActions)),
				Intensity:  intent.Intensity(f.enum("intensity", intent.Intensities)),
				Timing:     intent.Timing(f.enum("timing", intent.Timings)),
			}
		},
		refine: minConfidence(intent.GameEventMinConfidence, "game event"),
	},
	intent.TypeSelfEvaluation: {
		build: func(f *fields, base intent.Base) intent.Intent {
			return intent.SelfEvaluationIntent{
				Base:           base,
				EvaluationType: intent.EvaluationType(f.enum("evaluationType", intent.EvaluationTypes)),
				Questions:      f.strings("questions", true, intent.MinQuestionLength, intent.MaxQuestionLength),
				Frequency:      intent.Frequency(f.enum("frequency", intent.Frequencies)),
			}
		},
		refine: func(intent.Intent, string) Violations { return nil },
	},
}

func minConfidence(floor float64, what string) func(intent.Intent, string) Violations {
	return func(in intent.Intent, prefix string) Violations {
		if in.Header().Confidence < floor {
			return Violations{{
				Field:   join(prefix, "confidence"),
				Message: fmt.Sprintf("%s requires confidence >= %g", what, floor),
				Code:    CodeSemanticRule,
			}}
		}
		return nil
	}
}

func anonymityViolation(m intent.MemoryProposal, prefix string) (Violation, bool) {
	if m.Scope != intent.ScopeGlobal {
		return Violation{}, false
	}
	lower := strings.ToLower(m.Summary)
	for _, term := range forbiddenGlobalTerms {
		if strings.Contains(lower, term) {
			return Violation{
				Field:   join(prefix, "summary"),
				Message: fmt.Sprintf("global memory must not reference a specific %s", term),
				Code:    CodeSemanticRule,
			}, true
		}
	}
	return Violation{}, false
}

// ValidateIntent checks one intent against the rules for its type. raw may be
// a decoded JSON object, raw JSON bytes, or an already typed intent. The
// returned intent is nil whenever violations are reported.
func ValidateIntent(raw any) (intent.Intent, Violations) {
	in, vs, _ := validateIntentAt(raw, "")
	if len(vs) > 0 {
		return nil, vs
	}
	return in, nil
}

// validateIntentAt reports the typed intent whenever the structural checks
// passed, even if refinements failed, so proposal rules can still run.
func validateIntentAt(raw any, prefix string) (intent.Intent, Violations, bool) {
	obj, vs := asObject(raw, prefix)
	if len(vs) > 0 {
		return nil, vs, false
	}
	typ, _ := obj["type"].(string)
	s, ok := schemas[intent.Type(typ)]
	if !ok {
		return nil, Violations{{
			Field:   join(prefix, "type"),
			Message: fmt.Sprintf("unknown intent type %q", typ),
			Code:    CodeUnknownType,
		}}, false
	}

	f := newFields(obj, prefix)
	base := intent.Base{
		Type:          intent.Type(typ),
		Confidence:    f.number("confidence", 0, 1),
		Justification: f.str("justification", 0, 0),
		Reversible:    f.optionalBool("reversible"),
		Metadata:      f.optionalObject("metadata"),
	}
	in := s.build(f, base)
	if len(f.violations) > 0 {
		return nil, f.violations, false
	}
	return in, s.refine(in, prefix), true
}

// asObject normalizes the accepted input shapes into a JSON object.
func asObject(raw any, prefix string) (map[string]any, Violations) {
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case nil:
		return nil, Violations{{Field: prefix, Message: "required", Code: CodeMissing}}
	case []byte:
		return decodeObject(v, prefix)
	case json.RawMessage:
		return decodeObject(v, prefix)
	case intent.Intent, intent.Proposal, *intent.Proposal:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, Violations{{Field: prefix, Message: err.Error(), Code: CodeInvalidType}}
		}
		return decodeObject(data, prefix)
	}
	return nil, Violations{{
		Field:   prefix,
		Message: fmt.Sprintf("expected object, got %s", kindOf(raw)),
		Code:    CodeInvalidType,
	}}
}

func decodeObject(data []byte, prefix string) (map[string]any, Violations) {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, Violations{{Field: prefix, Message: "malformed JSON: " + err.Error(), Code: CodeInvalidType}}
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, Violations{{
			Field:   prefix,
			Message: fmt.Sprintf("expected object, got %s", kindOf(decoded)),
			Code:    CodeInvalidType,
		}}
	}
	return obj, nil
}
