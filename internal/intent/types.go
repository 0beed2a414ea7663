// Package intent defines the proposals an agent submits for governance and
// the closed set of intent variants they may carry.
package intent

// Type is the discriminant carried by every intent.
type Type string

const (
	TypeMemoryProposal       Type = "memory_proposal"
	TypeTrustSignal          Type = "trust_signal"
	TypePersonaMode          Type = "persona_mode"
	TypeModerationSuggestion Type = "shadow_ban_suggestion"
	TypeGameEvent            Type = "game_event"
	TypeSelfEvaluation       Type = "self_evaluation"
)

// AllTypes returns every known intent type in declaration order.
func AllTypes() []Type {
	return []Type{
		TypeMemoryProposal,
		TypeTrustSignal,
		TypePersonaMode,
		TypeModerationSuggestion,
		TypeGameEvent,
		TypeSelfEvaluation,
	}
}

// Known reports whether t is one of the declared intent types.
func (t Type) Known() bool {
	for _, known := range AllTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// IsWriteClass reports whether executing an intent of this type mutates
// durable cross-session state (memory, trust, moderation).
func IsWriteClass(t Type) bool {
	switch t {
	case TypeMemoryProposal, TypeTrustSignal, TypeModerationSuggestion:
		return true
	}
	return false
}

// Limits shared by the validator and the data model.
const (
	MaxSpeechLength         = 500
	MaxIntentsPerProposal   = 5
	MinJustificationLength  = 10
	MinModerationJustLength = 20
	MaxMemorySummaryLength  = 200
	MaxTrustDelta           = 0.2
	MinQuestionLength       = 10
	MaxQuestionLength       = 200

	WriteClassMinConfidence = 0.7
	PersonaMinConfidence    = 0.6
	GameEventMinConfidence  = 0.5
	MemoryMinConfidence     = 0.7
)

// Intent is a single governed action proposal. The set of implementations is
// closed: only the variants in this package satisfy it.
type Intent interface {
	// Kind returns the intent discriminant.
	Kind() Type
	// Header returns the fields common to every variant.
	Header() Base

	sealed()
}

// Base holds the fields every intent variant carries.
type Base struct {
	Type          Type           `json:"type"`
	Confidence    float64        `json:"confidence"`
	Justification string         `json:"justification"`
	Reversible    *bool          `json:"reversible,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func (b Base) Header() Base { return b }
func (b Base) sealed()      {}

// Proposal is the envelope the agent emits: free-text speech plus up to
// MaxIntentsPerProposal intents.
type Proposal struct {
	Speech  string   `json:"speech"`
	Intents []Intent `json:"intents"`
}

// Types returns the distinct intent types present in the proposal.
func (p Proposal) Types() map[Type]bool {
	present := make(map[Type]bool, len(p.Intents))
	for _, in := range p.Intents {
		present[in.Kind()] = true
	}
	return present
}

// Has reports whether the proposal contains at least one intent of any of the
// given types.
func (p Proposal) Has(types ...Type) bool {
	for _, in := range p.Intents {
		for _, t := range types {
			if in.Kind() == t {
				return true
			}
		}
	}
	return false
}

// Bool returns a pointer to b, for populating Base.Reversible.
func Bool(b bool) *bool {
	return &b
}
