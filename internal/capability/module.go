// Package capability holds the side-effecting modules that approved intents
// are executed against, and the router that picks a module per intent type.
package capability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/helmd/internal/intent"
	"github.com/fyrsmithlabs/helmd/internal/privacy"
)

// ActionType names the kind of side effect an execution produced.
type ActionType string

const (
	ActionMemoryWrite     ActionType = "memory_write"
	ActionTrustUpdate     ActionType = "trust_update"
	ActionPersonaChange   ActionType = "persona_change"
	ActionModeration      ActionType = "moderation_action"
	ActionEngagementEvent ActionType = "engagement_event"
	ActionSelfAudit       ActionType = "self_audit"
)

// ActionFor maps an intent type to the action its execution produces.
func ActionFor(t intent.Type) ActionType {
	switch t {
	case intent.TypeMemoryProposal:
		return ActionMemoryWrite
	case intent.TypeTrustSignal:
		return ActionTrustUpdate
	case intent.TypePersonaMode:
		return ActionPersonaChange
	case intent.TypeModerationSuggestion:
		return ActionModeration
	case intent.TypeGameEvent:
		return ActionEngagementEvent
	case intent.TypeSelfEvaluation:
		return ActionSelfAudit
	}
	return ""
}

// TargetOf returns what an intent acts upon: a user, a scope, a mode.
func TargetOf(in intent.Intent) string {
	switch v := in.(type) {
	case intent.MemoryProposal:
		return string(v.Scope)
	case intent.TrustSignal:
		return v.UserID
	case intent.PersonaModeProposal:
		return string(v.Mode)
	case intent.ModerationSuggestion:
		return v.UserID
	case intent.GameEventIntent:
		return string(v.GameAction)
	case intent.SelfEvaluationIntent:
		return string(v.EvaluationType)
	}
	return ""
}

// Outcome is what a module reports after one successful execution.
type Outcome struct {
	ActionType ActionType `json:"actionType"`
	Target     string     `json:"target"`
	Result     any        `json:"result,omitempty"`
	// Deduplicated reports that no write happened because an equivalent
	// record already existed; Result holds that record.
	Deduplicated bool `json:"deduplicated,omitempty"`
}

// Module executes intents of the types routed to it. Execute performs one
// authoritative mutation per call; Snapshot is a read-only diagnostic view.
type Module interface {
	Name() string
	Execute(ctx context.Context, in intent.Intent) (Outcome, error)
	Snapshot() any
}

// Locks exposes the lock flags owned by governance configuration.
type Locks interface {
	MemoryLocked() bool
	PersonaLocked() bool
}

// StaticLocks is a fixed Locks value.
type StaticLocks struct {
	Memory  bool
	Persona bool
}

func (l StaticLocks) MemoryLocked() bool  { return l.Memory }
func (l StaticLocks) PersonaLocked() bool { return l.Persona }

// lockRef lets the lock source be bound after a module is built, since the
// pipeline that owns the flags is constructed from the modules' router.
type lockRef struct {
	mu    sync.RWMutex
	locks Locks
}

func (r *lockRef) get() Locks {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locks
}

func (r *lockRef) set(l Locks) {
	if l == nil {
		l = StaticLocks{}
	}
	r.mu.Lock()
	r.locks = l
	r.mu.Unlock()
}

type options struct {
	logger         *zap.Logger
	now            func() time.Time
	newID          func() string
	locks          Locks
	redactor       privacy.Redactor
	historyLimit   int
	embedder       *HashEmbedder
	dedupThreshold float32
}

// Option configures modules.
type Option func(*options)

// WithLogger sets the logger modules name themselves under.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithIDGenerator overrides how record IDs are minted.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) {
		o.newID = newID
	}
}

// WithLocks supplies the lock flags consulted before memory and persona
// writes.
func WithLocks(locks Locks) Option {
	return func(o *options) {
		o.locks = locks
	}
}

// WithRedactor sets the redactor memory summaries pass through.
func WithRedactor(r privacy.Redactor) Option {
	return func(o *options) {
		o.redactor = r
	}
}

// WithHistoryLimit bounds the per-module history rings.
func WithHistoryLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

// WithEmbedder sets the embedder used for memory documents.
func WithEmbedder(e *HashEmbedder) Option {
	return func(o *options) {
		o.embedder = e
	}
}

// DefaultDedupThreshold is the cosine similarity at which a new memory
// counts as a duplicate of a stored one.
const DefaultDedupThreshold = 0.95

// WithDedupThreshold sets the similarity at which memory writes are
// deduplicated. A value outside (0, 1] disables deduplication.
func WithDedupThreshold(threshold float32) Option {
	return func(o *options) {
		if threshold <= 0 || threshold > 1 {
			threshold = 0
		}
		o.dedupThreshold = threshold
	}
}

func buildOptions(opts []Option) *options {
	o := &options{
		logger:         zap.NewNop(),
		now:            time.Now,
		newID:          uuid.NewString,
		locks:          StaticLocks{},
		redactor:       privacy.Noop{},
		historyLimit:   100,
		dedupThreshold: DefaultDedupThreshold,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.embedder == nil {
		o.embedder = NewHashEmbedder(DefaultEmbeddingDimensions)
	}
	return o
}

// appendBounded appends v and keeps at most limit newest entries.
func appendBounded[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if len(s) > limit {
		s = append(s[:0:0], s[len(s)-limit:]...)
	}
	return s
}
