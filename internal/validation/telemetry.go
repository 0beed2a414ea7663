package validation

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const (
	maxRecentRejections  = 100
	trimRecentRejections = 50

	unknownError = "unknown error"
)

// Rejection is one failed validation kept in the recent ring.
type Rejection struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
}

// LedgerStats is a point-in-time view of the ledger.
type LedgerStats struct {
	Total            int64       `json:"total"`
	Valid            int64       `json:"valid"`
	Rejected         int64       `json:"rejected"`
	ValidityRate     float64     `json:"validityRate"`
	RejectionRate    float64     `json:"rejectionRate"`
	RecentRejections []Rejection `json:"recentRejections"`
}

// Ledger counts validation outcomes and keeps the most recent rejections.
// It is safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	total    int64
	valid    int64
	rejected int64
	recent   []Rejection

	now     func() time.Time
	metrics *Metrics
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithLedgerClock overrides the time source.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithLedgerMetrics mirrors recorded outcomes into OpenTelemetry counters.
func WithLedgerMetrics(m *Metrics) LedgerOption {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// NewLedger creates an empty ledger.
func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record adds one outcome. errMsg is ignored for valid outcomes.
func (l *Ledger) Record(valid bool, errMsg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total++
	if valid {
		l.valid++
	} else {
		l.rejected++
		if errMsg == "" {
			errMsg = unknownError
		}
		l.recent = append(l.recent, Rejection{Timestamp: l.now(), Error: errMsg})
		if len(l.recent) > maxRecentRejections {
			l.recent = append([]Rejection(nil), l.recent[len(l.recent)-trimRecentRejections:]...)
		}
	}
	l.metrics.RecordOutcome(context.Background(), valid)
}

// RecordResult adds the outcome of a proposal validation.
func (l *Ledger) RecordResult(r Result) {
	if r.Valid {
		l.Record(true, "")
		return
	}
	l.Record(false, r.Violations.Error())
}

// RecordAny accepts whatever a caller has on hand: a Result, an
// IntentResult, an error, or a map with "valid" and "error" keys. Anything
// unrecognized, and any panic while inspecting it, is recorded as an unknown
// error.
func (l *Ledger) RecordAny(v any) {
	defer func() {
		if r := recover(); r != nil {
			l.Record(false, unknownError)
		}
	}()

	switch o := v.(type) {
	case Result:
		l.RecordResult(o)
	case *Result:
		if o == nil {
			l.Record(false, unknownError)
			return
		}
		l.RecordResult(*o)
	case IntentResult:
		if o.Valid {
			l.Record(true, "")
		} else {
			l.Record(false, o.Violations.Error())
		}
	case error:
		l.Record(false, o.Error())
	case map[string]any:
		valid, ok := o["valid"].(bool)
		if !ok {
			l.Record(false, unknownError)
			return
		}
		msg, _ := o["error"].(string)
		l.Record(valid, msg)
	default:
		l.Record(false, unknownError)
	}
}

// ValidityRate is the fraction of recorded outcomes that were valid.
func (l *Ledger) ValidityRate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ratio(l.valid, l.total)
}

// RejectionRate is the fraction of recorded outcomes that were rejected.
func (l *Ledger) RejectionRate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ratio(l.rejected, l.total)
}

// Stats returns counters, derived rates, and recent rejections newest first.
func (l *Ledger) Stats() LedgerStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := make([]Rejection, 0, len(l.recent))
	for i := len(l.recent) - 1; i >= 0; i-- {
		recent = append(recent, l.recent[i])
	}

	return LedgerStats{
		Total:            l.total,
		Valid:            l.valid,
		Rejected:         l.rejected,
		ValidityRate:     ratio(l.valid, l.total),
		RejectionRate:    ratio(l.rejected, l.total),
		RecentRejections: recent,
	}
}

// ExportJSON serializes Stats.
func (l *Ledger) ExportJSON() ([]byte, error) {
	return json.Marshal(l.Stats())
}

// Reset clears all counters and the rejection ring.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total, l.valid, l.rejected = 0, 0, 0
	l.recent = nil
}

func ratio(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
