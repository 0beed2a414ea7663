package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestHTTPMetrics_RecordsRoutes(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m := NewHTTPMetrics(provider.Meter("test"), zap.NewNop())
	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/api/v1/intents/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusConflict, "boom")
	})

	for _, target := range []string{"/api/v1/intents/a", "/api/v1/intents/b", "/boom", "/nowhere"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	}

	metrics := collect(t, reader)
	require.Contains(t, metrics, "helmd.http.requests_total")
	require.Contains(t, metrics, "helmd.http.request_duration_seconds")
	require.Contains(t, metrics, "helmd.http.response_size_bytes")
	require.Contains(t, metrics, "helmd.http.active_requests")

	sum, ok := metrics["helmd.http.requests_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)

	byRoute := make(map[string]int64)
	statuses := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		endpoint, _ := dp.Attributes.Value("endpoint")
		status, _ := dp.Attributes.Value("status")
		byRoute[endpoint.AsString()] += dp.Value
		statuses[endpoint.AsString()] = status.AsInt64()
	}
	assert.EqualValues(t, 2, byRoute["/api/v1/intents/:id"], "ids must not leak into labels")
	assert.EqualValues(t, 1, byRoute["/boom"])
	assert.EqualValues(t, http.StatusConflict, statuses["/boom"], "status is recorded after the error handler runs")

	active, ok := metrics["helmd.http.active_requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	for _, dp := range active.DataPoints {
		assert.Zero(t, dp.Value)
	}
}

func TestHTTPMetrics_GlobalMeterFallback(t *testing.T) {
	m := NewHTTPMetrics(nil, nil)
	require.NotNil(t, m)
	assert.NotNil(t, m.requestsTotal)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "unmatched", normalizePath(""))
	assert.Equal(t, "/api/v1/config", normalizePath("/api/v1/config"))
}
