package capability

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/helmd/internal/intent"
)

// DefaultTrustScore is the score a user starts from.
const DefaultTrustScore = 0.5

// TrustChange records one applied trust signal.
type TrustChange struct {
	UserID    string               `json:"userId"`
	Previous  float64              `json:"previous"`
	Current   float64              `json:"current"`
	Delta     float64              `json:"delta"`
	Category  intent.TrustCategory `json:"category"`
	Source    intent.TrustSource   `json:"source"`
	AppliedAt time.Time            `json:"appliedAt"`
}

// ModerationRecord is a moderation action taken after human approval.
type ModerationRecord struct {
	ID        string                  `json:"id"`
	UserID    string                  `json:"userId"`
	Action    intent.ModerationAction `json:"action"`
	Severity  intent.Severity         `json:"severity"`
	Evidence  int                     `json:"evidence"`
	AppliedAt time.Time               `json:"appliedAt"`
}

// TrustSnapshot is the diagnostic view of the trust and safety module.
type TrustSnapshot struct {
	Scores            map[string]float64 `json:"scores"`
	RecentChanges     []TrustChange      `json:"recentChanges"`
	ModerationActions int                `json:"moderationActions"`
	RecentModeration  []ModerationRecord `json:"recentModeration"`
}

// TrustSafety keeps per-user trust scores and the moderation ledger. It
// handles both trust signals and moderation suggestions.
type TrustSafety struct {
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
	limit  int

	mu         sync.Mutex
	scores     map[string]float64
	changes    []TrustChange
	moderation []ModerationRecord
	moderated  int
}

// NewTrustSafety creates an empty trust module.
func NewTrustSafety(opts ...Option) *TrustSafety {
	o := buildOptions(opts)
	return &TrustSafety{
		logger: o.logger.Named("trust"),
		now:    o.now,
		newID:  o.newID,
		limit:  o.historyLimit,
		scores: make(map[string]float64),
	}
}

func (t *TrustSafety) Name() string { return "trust_safety" }

func (t *TrustSafety) Execute(_ context.Context, in intent.Intent) (Outcome, error) {
	switch v := in.(type) {
	case intent.TrustSignal:
		if math.IsNaN(v.Delta) || math.Abs(v.Delta) > intent.MaxTrustDelta {
			return Outcome{}, fmt.Errorf("%w: |%g| > %g", ErrTrustDeltaOutOfRange, v.Delta, intent.MaxTrustDelta)
		}
		change := t.apply(v)
		t.logger.Debug("trust updated",
			zap.String("user_id", v.UserID),
			zap.Float64("previous", change.Previous),
			zap.Float64("current", change.Current),
		)
		return Outcome{ActionType: ActionTrustUpdate, Target: v.UserID, Result: change}, nil
	case intent.ModerationSuggestion:
		rec := t.moderate(v)
		t.logger.Info("moderation applied",
			zap.String("user_id", v.UserID),
			zap.String("action", string(v.Action)),
			zap.String("severity", string(v.Severity)),
		)
		return Outcome{ActionType: ActionModeration, Target: v.UserID, Result: rec}, nil
	}
	return Outcome{}, unsupported(t.Name(), in)
}

func (t *TrustSafety) apply(ts intent.TrustSignal) TrustChange {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.scores[ts.UserID]
	if !ok {
		prev = DefaultTrustScore
	}
	next := min(1, max(0, prev+ts.Delta))
	t.scores[ts.UserID] = next

	change := TrustChange{
		UserID:    ts.UserID,
		Previous:  prev,
		Current:   next,
		Delta:     ts.Delta,
		Category:  ts.Category,
		Source:    ts.Source,
		AppliedAt: t.now(),
	}
	t.changes = appendBounded(t.changes, change, t.limit)
	return change
}

func (t *TrustSafety) moderate(ms intent.ModerationSuggestion) ModerationRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := ModerationRecord{
		ID:        t.newID(),
		UserID:    ms.UserID,
		Action:    ms.Action,
		Severity:  ms.Severity,
		Evidence:  len(ms.Evidence),
		AppliedAt: t.now(),
	}
	t.moderation = appendBounded(t.moderation, rec, t.limit)
	t.moderated++
	return rec
}

// Score returns the current trust score for userID.
func (t *TrustSafety) Score(userID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.scores[userID]; ok {
		return s
	}
	return DefaultTrustScore
}

func (t *TrustSafety) Snapshot() any {
	t.mu.Lock()
	defer t.mu.Unlock()

	scores := make(map[string]float64, len(t.scores))
	for k, v := range t.scores {
		scores[k] = v
	}
	return TrustSnapshot{
		Scores:            scores,
		RecentChanges:     append([]TrustChange(nil), t.changes...),
		ModerationActions: t.moderated,
		RecentModeration:  append([]ModerationRecord(nil), t.moderation...),
	}
}
