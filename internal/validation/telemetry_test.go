package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func TestLedger_RatesAndCounters(t *testing.T) {
	l := NewLedger()
	assert.Zero(t, l.ValidityRate())
	assert.Zero(t, l.RejectionRate())

	l.Record(true, "")
	l.Record(true, "")
	l.Record(true, "")
	l.Record(false, "speech too long")

	assert.InDelta(t, 0.75, l.ValidityRate(), 1e-9)
	assert.InDelta(t, 0.25, l.RejectionRate(), 1e-9)

	stats := l.Stats()
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(3), stats.Valid)
	assert.Equal(t, int64(1), stats.Rejected)
	require.Len(t, stats.RecentRejections, 1)
	assert.Equal(t, "speech too long", stats.RecentRejections[0].Error)
}

func TestLedger_RingTrimsToNewest(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLedger(WithLedgerClock(clock.Now))

	for i := 0; i < 100; i++ {
		l.Record(false, fmt.Sprintf("err-%d", i))
	}
	assert.Len(t, l.Stats().RecentRejections, 100)

	l.Record(false, "err-100")
	recent := l.Stats().RecentRejections
	require.Len(t, recent, 50)
	assert.Equal(t, "err-100", recent[0].Error)
	assert.Equal(t, "err-51", recent[49].Error)
	for i := 1; i < len(recent); i++ {
		assert.True(t, recent[i-1].Timestamp.After(recent[i].Timestamp))
	}
	assert.Equal(t, int64(101), l.Stats().Rejected)
}

func TestLedger_RecordAnyNeverPanics(t *testing.T) {
	l := NewLedger()
	var nilResult *Result

	inputs := []any{
		nil,
		42,
		"oops",
		map[string]any{"valid": "yes"},
		map[string]any{"valid": false},
		nilResult,
		errors.New("decode failed"),
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { l.RecordAny(in) })
	}

	stats := l.Stats()
	assert.Equal(t, int64(len(inputs)), stats.Total)
	assert.Equal(t, int64(len(inputs)), stats.Rejected)
	assert.Equal(t, "decode failed", stats.RecentRejections[0].Error)
	assert.Equal(t, unknownError, stats.RecentRejections[1].Error)
}

func TestLedger_RecordAnyResults(t *testing.T) {
	l := NewLedger()
	l.RecordAny(ValidateProposal(map[string]any{"speech": "hi"}))
	l.RecordAny(ValidateProposal(map[string]any{}))
	l.RecordAny(map[string]any{"valid": true})
	l.RecordAny(ValidateSingleIntent(fixture("game_event")))

	stats := l.Stats()
	assert.Equal(t, int64(3), stats.Valid)
	assert.Equal(t, int64(1), stats.Rejected)
	assert.Contains(t, stats.RecentRejections[0].Error, "speech")
}

func TestLedger_ExportJSON(t *testing.T) {
	l := NewLedger()
	l.Record(false, "bad")
	l.Record(true, "")

	data, err := l.ExportJSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(2), decoded["total"])
	assert.Equal(t, 0.5, decoded["rejectionRate"])
	assert.Len(t, decoded["recentRejections"], 1)

	l.Reset()
	assert.Zero(t, l.Stats().Total)
	assert.Empty(t, l.Stats().RecentRejections)
}

func TestLedger_Concurrent(t *testing.T) {
	l := NewLedger()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Record(j%2 == 0, "flaky")
			}
		}(i)
	}
	wg.Wait()
	stats := l.Stats()
	assert.Equal(t, int64(1000), stats.Total)
	assert.Equal(t, int64(500), stats.Rejected)
	assert.LessOrEqual(t, len(stats.RecentRejections), maxRecentRejections)
}

func TestMetrics_RecordOutcome(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(provider.Meter(InstrumentationName))
	require.NoError(t, err)

	l := NewLedger(WithLedgerMetrics(m))
	l.Record(true, "")
	l.Record(false, "bad")
	l.Record(false, "worse")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &rm))

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				totals[md.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(3), totals["helmd.validation.total"])
	assert.Equal(t, int64(2), totals["helmd.validation.rejected.total"])
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.RecordOutcome(t.Context(), false) })
}
