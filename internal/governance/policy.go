package governance

import (
	"time"

	"github.com/fyrsmithlabs/helmd/internal/intent"
)

// classify assigns priority and TTL once, at intake.
func classify(p intent.Proposal, cfg Config) (Priority, time.Duration) {
	var priority Priority
	switch {
	case p.Has(intent.TypeModerationSuggestion, intent.TypeSelfEvaluation):
		priority = PriorityCritical
	case p.Has(intent.TypeMemoryProposal, intent.TypePersonaMode):
		priority = PriorityHigh
	default:
		priority = PriorityMedium
	}

	var ttl time.Duration
	switch {
	case p.Has(intent.TypeModerationSuggestion):
		ttl = cfg.ModerationTTL
	case p.Has(intent.TypeMemoryProposal, intent.TypePersonaMode):
		ttl = cfg.WriteTTL
	default:
		ttl = cfg.DefaultTTL
	}
	if ttl <= 0 {
		ttl = cfg.IntentTimeout
	}
	return priority, ttl
}

// autoApprovable reports whether p may be approved without a human.
func autoApprovable(p intent.Proposal, cfg Config) bool {
	if cfg.MemoryLocked && p.Has(intent.TypeMemoryProposal) {
		return false
	}
	if cfg.PersonaLocked && p.Has(intent.TypePersonaMode) {
		return false
	}
	if p.Has(intent.TypeModerationSuggestion, intent.TypeSelfEvaluation) {
		return false
	}
	for _, in := range p.Intents {
		if in.Header().Confidence < cfg.AutoApproveThreshold {
			return false
		}
	}
	return true
}
