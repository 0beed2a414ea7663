package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/helmd/internal/capability"
	"github.com/fyrsmithlabs/helmd/internal/control"
	"github.com/fyrsmithlabs/helmd/internal/governance"
)

type testEnv struct {
	server   *Server
	service  *control.Service
	pipeline *governance.Pipeline
	bus      *governance.Bus
}

func newTestEnv(t *testing.T, cfg *Config) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	reg := prometheus.NewRegistry()
	bus := governance.NewBus(governance.DefaultBusBuffer, logger)
	t.Cleanup(bus.Close)

	suite := capability.NewSuite()
	router := suite.Router()
	p, err := governance.New(router,
		governance.WithLogger(logger),
		governance.WithBus(bus),
		governance.WithMetrics(governance.NewMetrics(reg)),
	)
	require.NoError(t, err)
	suite.BindLocks(p)

	svc, err := control.New(p,
		control.WithRouter(router),
		control.WithStreamMetrics(suite.Engagement),
		control.WithLogger(logger),
	)
	require.NoError(t, err)

	srv, err := NewServer(svc, logger, cfg,
		WithEvents(bus),
		WithGatherer(reg),
		WithHTTPMetrics(NewHTTPMetrics(nil, logger)),
	)
	require.NoError(t, err)
	return &testEnv{server: srv, service: svc, pipeline: p, bus: bus}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Echo().ServeHTTP(rec, req)
	return rec
}

func memoryProposal(confidence float64) map[string]any {
	return map[string]any{
		"speech": "noted",
		"intents": []any{map[string]any{
			"type":          "memory_proposal",
			"confidence":    confidence,
			"justification": "the chat repeated it all night",
			"scope":         "stream",
			"summary":       "chat loves bluff calls",
		}},
	}
}

func gameProposal(confidence float64) map[string]any {
	return map[string]any{
		"speech": "what a hand",
		"intents": []any{map[string]any{
			"type":          "game_event",
			"confidence":    confidence,
			"justification": "four of a kind on the turn",
			"gameAction":    "celebrate",
			"intensity":     "high",
			"timing":        "immediate",
		}},
	}
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNewServer(t *testing.T) {
	t.Run("requires service", func(t *testing.T) {
		_, err := NewServer(nil, zap.NewNop(), nil)
		require.Error(t, err)
	})

	t.Run("requires logger", func(t *testing.T) {
		env := newTestEnv(t, nil)
		_, err := NewServer(env.service, nil, nil)
		require.Error(t, err)
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		env := newTestEnv(t, nil)
		assert.Equal(t, "localhost", env.server.config.Host)
		assert.Equal(t, 9090, env.server.config.Port)
		assert.Equal(t, 30*time.Second, env.server.config.Heartbeat)
	})
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeJSON[HealthResponse](t, rec).Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestSubmitProposal(t *testing.T) {
	t.Run("violations return 422", func(t *testing.T) {
		env := newTestEnv(t, nil)

		rec := env.do(t, http.MethodPost, "/api/v1/proposals", memoryProposal(0.5))

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
		res := decodeJSON[control.SubmitResult](t, rec)
		assert.False(t, res.Accepted)
		assert.NotEmpty(t, res.Violations.On("intents[0].confidence"))
		assert.Empty(t, env.pipeline.Pending())
	})

	t.Run("malformed json returns 422", func(t *testing.T) {
		env := newTestEnv(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/proposals", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()

		env.server.Echo().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("pending proposal returns 202", func(t *testing.T) {
		env := newTestEnv(t, nil)

		rec := env.do(t, http.MethodPost, "/api/v1/proposals", memoryProposal(0.8))

		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		res := decodeJSON[control.SubmitResult](t, rec)
		require.True(t, res.Accepted)
		assert.Equal(t, governance.StatusPending, res.Intake.Status)
		assert.Len(t, env.pipeline.Pending(), 1)
	})

	t.Run("auto approval executes inline", func(t *testing.T) {
		env := newTestEnv(t, nil)

		rec := env.do(t, http.MethodPost, "/api/v1/proposals", gameProposal(0.95))

		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		res := decodeJSON[control.SubmitResult](t, rec)
		assert.Equal(t, governance.StatusApproved, res.Intake.Status)
		require.NotNil(t, res.Intake.Approval)
		assert.True(t, res.Intake.Approval.Result.Success)
	})

	t.Run("unknown source returns 400", func(t *testing.T) {
		env := newTestEnv(t, nil)

		rec := env.do(t, http.MethodPost, "/api/v1/proposals?source=intruder", gameProposal(0.95))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("shut down pipeline returns 503", func(t *testing.T) {
		env := newTestEnv(t, nil)
		require.NoError(t, env.pipeline.Shutdown(context.Background()))

		rec := env.do(t, http.MethodPost, "/api/v1/proposals", gameProposal(0.95))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestSubmitProposal_RateLimited(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IntakeRate = 0.001
	cfg.IntakeBurst = 2
	env := newTestEnv(t, cfg)

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/api/v1/proposals", gameProposal(0.95))
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/api/v1/proposals", gameProposal(0.95))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Other routes are not limited.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/dashboard", nil).Code)
}

func TestDecision(t *testing.T) {
	t.Run("approve pending intent", func(t *testing.T) {
		env := newTestEnv(t, nil)
		submitted := decodeJSON[control.SubmitResult](t, env.do(t, http.MethodPost, "/api/v1/proposals", memoryProposal(0.8)))
		id := submitted.Intake.ID

		rec := env.do(t, http.MethodPost, "/api/v1/intents/"+id+"/decision",
			DecisionRequest{Decision: control.DecisionApprove, Actor: "alice"})

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		res := decodeJSON[governance.DecisionResult](t, rec)
		assert.Equal(t, governance.StatusApproved, res.Status)
		assert.Equal(t, "approved and executed", res.Message)
		assert.Empty(t, env.pipeline.Pending())

		approved, ok := env.pipeline.Approved(id)
		require.True(t, ok)
		assert.Equal(t, "alice", approved.ApprovedBy)
	})

	t.Run("reject pending intent", func(t *testing.T) {
		env := newTestEnv(t, nil)
		submitted := decodeJSON[control.SubmitResult](t, env.do(t, http.MethodPost, "/api/v1/proposals", memoryProposal(0.8)))

		rec := env.do(t, http.MethodPost, "/api/v1/intents/"+submitted.Intake.ID+"/decision",
			DecisionRequest{Decision: control.DecisionReject, Reason: "not now"})

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		res := decodeJSON[governance.DecisionResult](t, rec)
		assert.Equal(t, governance.StatusRejected, res.Status)
		assert.Equal(t, "rejected: not now", res.Message)
	})

	t.Run("unknown intent returns 404", func(t *testing.T) {
		env := newTestEnv(t, nil)

		rec := env.do(t, http.MethodPost, "/api/v1/intents/missing/decision",
			DecisionRequest{Decision: control.DecisionApprove})

		require.Equal(t, http.StatusNotFound, rec.Code)
		res := decodeJSON[governance.DecisionResult](t, rec)
		assert.Equal(t, governance.StatusError, res.Status)
		assert.Equal(t, "intent not found", res.Message)
	})

	t.Run("invalid decision returns 400", func(t *testing.T) {
		env := newTestEnv(t, nil)

		rec := env.do(t, http.MethodPost, "/api/v1/intents/any/decision",
			DecisionRequest{Decision: "maybe"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/v1/proposals", memoryProposal(0.8))
	env.do(t, http.MethodPost, "/api/v1/proposals", gameProposal(0.95))

	rec := env.do(t, http.MethodGet, "/api/v1/dashboard", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var d struct {
		PendingIntents     []map[string]any `json:"pendingIntents"`
		SystemStats        governance.Stats `json:"systemStats"`
		RecentAuditEntries []map[string]any `json:"recentAuditEntries"`
		StreamMetrics      map[string]any   `json:"streamMetrics"`
		Config             map[string]any   `json:"config"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Len(t, d.PendingIntents, 1)
	assert.EqualValues(t, 2, d.SystemStats.Received)
	assert.EqualValues(t, 1, d.SystemStats.AutoApproved)
	assert.NotEmpty(t, d.RecentAuditEntries)
	assert.NotNil(t, d.StreamMetrics)
	assert.EqualValues(t, 300000, d.Config["intentTimeoutMs"])
}

func TestConfigEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.9, decodeJSON[map[string]any](t, rec)["autoApproveThreshold"])

	rec = env.do(t, http.MethodPatch, "/api/v1/config", map[string]any{"memoryLocked": true, "autoApproveThreshold": 0.8})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, true, got["memoryLocked"])
	assert.Equal(t, 0.8, got["autoApproveThreshold"])
	assert.True(t, env.pipeline.MemoryLocked())

	rec = env.do(t, http.MethodPatch, "/api/v1/config", map[string]any{"autoApproveThreshold": 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0.8, env.service.Config().AutoApproveThreshold)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/v1/proposals", gameProposal(0.95))

	rec := env.do(t, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "helmd_intents_received_total")
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	rec := httptest.NewRecorder()

	env.server.Echo().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestEvents_StreamsPipelineEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.server.Echo())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	require.Equal(t, ": connected", lines.Text())

	_, err = env.service.SubmitProposal(context.Background(), memoryProposal(0.8), governance.SourceProposer)
	require.NoError(t, err)

	var eventLine, dataLine string
	for lines.Scan() {
		line := lines.Text()
		if strings.HasPrefix(line, "event: ") && eventLine == "" {
			eventLine = line
		}
		if strings.HasPrefix(line, "data: ") && dataLine == "" {
			dataLine = line
			break
		}
	}
	assert.Equal(t, "event: intent_received", eventLine)
	var ev governance.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data: ")), &ev))
	assert.Equal(t, governance.EventIntentReceived, ev.Type)
}

func TestEvents_DisabledWithoutSource(t *testing.T) {
	env := newTestEnv(t, nil)
	srv, err := NewServer(env.service, zap.NewNop(), nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartAndShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	env := newTestEnv(t, cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- env.server.Start() }()

	require.Eventually(t, func() bool { return env.server.Echo().ListenerAddr() != nil }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, env.server.Shutdown(ctx))
	assert.ErrorIs(t, <-errCh, http.ErrServerClosed)
}
