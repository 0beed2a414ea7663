package capability

import (
	"context"
	"sync"
	"time"

	"github.com/fyrsmithlabs/helmd/internal/intent"
)

// Evaluation is a self-evaluation scheduled by an approved intent.
type Evaluation struct {
	ID          string                `json:"id"`
	Type        intent.EvaluationType `json:"type"`
	Questions   []string              `json:"questions"`
	Frequency   intent.Frequency      `json:"frequency"`
	ScheduledAt time.Time             `json:"scheduledAt"`
}

// SelfAuditSnapshot is the diagnostic view of the self-audit module.
type SelfAuditSnapshot struct {
	ByType map[intent.EvaluationType]int `json:"byType"`
	Recent []Evaluation                  `json:"recent"`
}

// SelfAudit records the evaluations the agent has committed to.
type SelfAudit struct {
	now   func() time.Time
	newID func() string
	limit int

	mu     sync.Mutex
	byType map[intent.EvaluationType]int
	recent []Evaluation
}

// NewSelfAudit creates an empty self-audit module.
func NewSelfAudit(opts ...Option) *SelfAudit {
	o := buildOptions(opts)
	return &SelfAudit{
		now:    o.now,
		newID:  o.newID,
		limit:  o.historyLimit,
		byType: make(map[intent.EvaluationType]int),
	}
}

func (s *SelfAudit) Name() string { return "self_audit" }

func (s *SelfAudit) Execute(_ context.Context, in intent.Intent) (Outcome, error) {
	se, ok := in.(intent.SelfEvaluationIntent)
	if !ok {
		return Outcome{}, unsupported(s.Name(), in)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ev := Evaluation{
		ID:          s.newID(),
		Type:        se.EvaluationType,
		Questions:   append([]string(nil), se.Questions...),
		Frequency:   se.Frequency,
		ScheduledAt: s.now(),
	}
	s.byType[se.EvaluationType]++
	s.recent = appendBounded(s.recent, ev, s.limit)

	return Outcome{ActionType: ActionSelfAudit, Target: string(se.EvaluationType), Result: ev}, nil
}

func (s *SelfAudit) Snapshot() any {
	s.mu.Lock()
	defer s.mu.Unlock()

	byType := make(map[intent.EvaluationType]int, len(s.byType))
	for k, v := range s.byType {
		byType[k] = v
	}
	return SelfAuditSnapshot{ByType: byType, Recent: append([]Evaluation(nil), s.recent...)}
}
