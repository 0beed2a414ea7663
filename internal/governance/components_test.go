package governance

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fyrsmithlabs/helmd/internal/intent"
)

func TestClassify(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name     string
		proposal intent.Proposal
		priority Priority
		ttl      time.Duration
	}{
		{"moderation", proposal(moderation(), game(0.9)), PriorityCritical, 60 * time.Second},
		{"self evaluation", proposal(intent.SelfEvaluationIntent{Base: intent.Base{Type: intent.TypeSelfEvaluation}}), PriorityCritical, 600 * time.Second},
		{"memory", proposal(memoryWrite(0.9)), PriorityHigh, 300 * time.Second},
		{"persona", proposal(persona(0.9), game(0.9)), PriorityHigh, 300 * time.Second},
		{"game only", proposal(game(0.9)), PriorityMedium, 600 * time.Second},
		{"speech only", proposal(), PriorityMedium, 600 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			priority, ttl := classify(tt.proposal, cfg)
			assert.Equal(t, tt.priority, priority)
			assert.Equal(t, tt.ttl, ttl)
		})
	}

	cfg.WriteTTL = 0
	_, ttl := classify(proposal(memoryWrite(0.9)), cfg)
	assert.Equal(t, cfg.IntentTimeout, ttl)
}

func TestAutoApprovable(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		proposal intent.Proposal
		want     bool
	}{
		{"all above threshold", nil, proposal(game(0.9), persona(0.95)), true},
		{"one below threshold", nil, proposal(game(0.95), persona(0.89)), false},
		{"empty proposal", nil, proposal(), true},
		{"memory locked", func(c *Config) { c.MemoryLocked = true }, proposal(memoryWrite(0.99)), false},
		{"memory lock ignores persona", func(c *Config) { c.MemoryLocked = true }, proposal(persona(0.99)), true},
		{"persona locked", func(c *Config) { c.PersonaLocked = true }, proposal(persona(0.99)), false},
		{"moderation needs a human", nil, proposal(moderation()), false},
		{"lower threshold", func(c *Config) { c.AutoApproveThreshold = 0.5 }, proposal(game(0.6)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			assert.Equal(t, tt.want, autoApprovable(tt.proposal, cfg))
		})
	}
}

func TestDispatchQueue(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	q := newDispatchQueue()

	q.push(PendingIntent{ID: "m1", Priority: PriorityMedium, ReceivedAt: base})
	q.push(PendingIntent{ID: "c1", Priority: PriorityCritical, ReceivedAt: base.Add(3 * time.Second)})
	q.push(PendingIntent{ID: "h1", Priority: PriorityHigh, ReceivedAt: base.Add(2 * time.Second)})
	q.push(PendingIntent{ID: "h0", Priority: PriorityHigh, ReceivedAt: base.Add(time.Second)})
	q.push(PendingIntent{ID: "m2", Priority: PriorityMedium, ReceivedAt: base})
	assert.False(t, q.push(PendingIntent{ID: "m1", Priority: PriorityMedium, ReceivedAt: base}))
	assert.Equal(t, 5, q.depth())

	assert.Equal(t, []string{"c1", "h0"}, q.popBatch(2))
	assert.Equal(t, []string{"h1", "m1", "m2"}, q.popBatch(10))
	assert.Empty(t, q.popBatch(1))

	assert.True(t, q.push(PendingIntent{ID: "m1", Priority: PriorityMedium}))
}

func TestAuditLog_Trims(t *testing.T) {
	a := newAuditLog(10, 4)
	for i := 0; i < 11; i++ {
		a.append(AuditEntry{ID: string(rune('a' + i))})
	}
	require.Equal(t, 4, a.size())

	recent := a.recent(0)
	assert.Equal(t, "k", recent[0].ID)
	assert.Equal(t, "h", recent[3].ID)
	assert.Len(t, a.recent(2), 2)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold above one", func(c *Config) { c.AutoApproveThreshold = 1.1 }},
		{"negative max pending", func(c *Config) { c.MaxPendingIntents = -1 }},
		{"zero intent timeout", func(c *Config) { c.IntentTimeout = 0 }},
		{"negative ttl", func(c *Config) { c.WriteTTL = -time.Second }},
		{"zero tick", func(c *Config) { c.TickInterval = 0 }},
		{"trim above capacity", func(c *Config) { c.AuditTrimTo = c.AuditCapacity + 1 }},
		{"negative execution timeout", func(c *Config) { c.ExecutionTimeout = -1 }},
	}
	require.NoError(t, DefaultConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestConfig_ApplyAndJSON(t *testing.T) {
	locked := true
	timeout := int64(45000)
	cfg := DefaultConfig().Apply(ConfigPatch{MemoryLocked: &locked, IntentTimeoutMs: &timeout})
	assert.True(t, cfg.MemoryLocked)
	assert.False(t, cfg.PersonaLocked)
	assert.Equal(t, 45*time.Second, cfg.IntentTimeout)
	assert.True(t, ConfigPatch{}.Empty())

	round := DefaultConfig().Apply(PatchFrom(cfg))
	assert.Equal(t, cfg, round)

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, 45000.0, out["intentTimeoutMs"])
	assert.Equal(t, 0.9, out["autoApproveThreshold"])
	assert.Equal(t, true, out["memoryLocked"])
	assert.NotContains(t, out, "IntentTimeout")
}

func TestPendingIntent_JSON(t *testing.T) {
	received := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	data, err := json.Marshal(PendingIntent{
		ID:         "id-1",
		Proposal:   proposal(game(0.9)),
		ReceivedAt: received,
		Source:     SourceOperator,
		Priority:   PriorityMedium,
		TTL:        time.Minute,
	})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, 60000.0, out["ttlMs"])
	assert.Equal(t, "2026-03-01T20:01:00Z", out["expiresAt"])
	assert.Equal(t, "operator", out["source"])
}

func TestBus_DeliversInOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	bus := NewBus(16, nil)
	var (
		mu  sync.Mutex
		got []int
	)
	unsubscribe := bus.Subscribe(func(e Event) {
		mu.Lock()
		got = append(got, e.Payload.(int))
		mu.Unlock()
	})
	bus.Subscribe(func(Event) { panic("bad subscriber") })

	for i := 0; i < 10; i++ {
		bus.Publish(Event{Type: EventAuditLogged, Payload: i})
	}
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 10
	}, time.Second, time.Millisecond)

	unsubscribe()
	unsubscribe()
	bus.Publish(Event{Type: EventAuditLogged, Payload: 99})
	bus.Close()

	mu.Lock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	mu.Unlock()
	assert.EqualValues(t, 10, bus.Delivered())

	bus.Publish(Event{Type: EventAuditLogged})
	assert.EqualValues(t, 1, bus.Dropped())
	bus.Close()
}

func TestBus_DropsWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	bus := NewBus(2, nil)
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	bus.Subscribe(func(Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	bus.Publish(Event{Type: EventIntentReceived})
	<-started
	for i := 0; i < 5; i++ {
		bus.Publish(Event{Type: EventIntentReceived})
	}
	assert.EqualValues(t, 3, bus.Dropped())

	close(release)
	bus.Close()
	assert.EqualValues(t, 3, bus.Delivered())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	p, _ := newPipeline(t, WithMetrics(m))
	ctx := t.Context()

	_, err := p.Intake(ctx, proposal(game(0.95)), SourceProposer)
	require.NoError(t, err)
	pending, err := p.Intake(ctx, proposal(moderation()), SourceOperator)
	require.NoError(t, err)
	_, err = p.Reject(ctx, pending.ID, "duplicate", "operator")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Received.WithLabelValues("proposer", "medium")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Received.WithLabelValues("operator", "critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolved.WithLabelValues("approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolved.WithLabelValues("rejected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Pending))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ExecutionSeconds))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.received(SourceProposer, PriorityLow) })
}
