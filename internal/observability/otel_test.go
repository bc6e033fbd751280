package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"cvcoach/internal/config"
	"cvcoach/internal/types"
)

func newTestManager(t *testing.T, full *config.Config) (*ObservabilityManager, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	om, err := newObservabilityManager(ObservabilityConfig{
		ServiceName:    "cvcoach-test",
		ServiceVersion: "test",
		Enabled:        true,
		SampleRate:     1.0,
	}, full, reader)
	require.NoError(t, err)
	t.Cleanup(func() { _ = om.Shutdown(context.Background()) })
	return om, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumValue(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", data)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestDisabledManager(t *testing.T) {
	om, err := NewObservabilityManager(ObservabilityConfig{Enabled: false}, nil)
	require.NoError(t, err)

	metrics := om.GetMetrics()
	require.NotNil(t, metrics)

	called := false
	err = metrics.TrackAIOperationWithTokens(context.Background(), "suggest", func(ctx context.Context) *AIOperationResult {
		called = true
		return &AIOperationResult{Error: errors.New("boom")}
	}, om)
	assert.True(t, called)
	assert.EqualError(t, err, "boom")

	// Recording on uninitialized metrics is a no-op
	metrics.RecordSuggestionRun(context.Background(), 3, 1, 2, nil, om)
	metrics.RecordBusinessMetric(context.Background(), MetricSuggestionAccepted, true, om)

	assert.NoError(t, om.Shutdown(context.Background()))
}

func TestTrackAIOperationWithTokens(t *testing.T) {
	om, reader := newTestManager(t, nil)

	err := om.GetMetrics().TrackAIOperationWithTokens(context.Background(), "suggest", func(ctx context.Context) *AIOperationResult {
		return &AIOperationResult{TokenUsage: &types.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}}
	}, om)
	require.NoError(t, err)

	data := collect(t, reader)
	assert.Equal(t, int64(1), sumValue(t, data["cvcoach_ai_requests_total"]))
	assert.NotContains(t, data, "cvcoach_ai_errors_total")

	tokens, ok := data["cvcoach_ai_token_usage_total"].(metricdata.Histogram[int64])
	require.True(t, ok)
	assert.Len(t, tokens.DataPoints, 3)
}

func TestTrackAIOperationRecordsErrors(t *testing.T) {
	om, reader := newTestManager(t, nil)

	err := om.GetMetrics().TrackAIOperationWithTokens(context.Background(), "suggest", func(ctx context.Context) *AIOperationResult {
		return &AIOperationResult{Error: errors.New("unavailable")}
	}, om)
	require.Error(t, err)

	data := collect(t, reader)
	assert.Equal(t, int64(1), sumValue(t, data["cvcoach_ai_errors_total"]))
}

func TestRecordSuggestionRun(t *testing.T) {
	om, reader := newTestManager(t, nil)
	m := om.GetMetrics()

	m.RecordSuggestionRun(context.Background(), 4, 2, 3, nil, om)
	m.RecordSuggestionRun(context.Background(), 0, 0, 7, errors.New("exhausted"), om)

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumValue(t, data["cvcoach_suggestion_runs_total"]))
	assert.Equal(t, int64(4), sumValue(t, data["cvcoach_suggestions_generated_total"]))
	assert.Equal(t, int64(2), sumValue(t, data["cvcoach_suggestions_dropped_total"]))

	attempts, ok := data["cvcoach_suggestion_attempts"].(metricdata.Histogram[int64])
	require.True(t, ok)
	var count uint64
	for _, dp := range attempts.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}

func TestRecordBusinessMetricDecisions(t *testing.T) {
	om, reader := newTestManager(t, nil)
	m := om.GetMetrics()
	ctx := context.Background()

	m.RecordBusinessMetric(ctx, MetricSuggestionAccepted, true, om)
	m.RecordBusinessMetric(ctx, MetricSuggestionAccepted, true, om)
	m.RecordBusinessMetric(ctx, MetricSuggestionRejected, true, om, attribute.String("section", "about"))
	m.RecordBusinessMetric(ctx, MetricSessionSaved, true, om)
	m.RecordBusinessMetric(ctx, MetricRateLimitHit, false, om)
	m.RecordBusinessMetric(ctx, "unknown", true, om)

	data := collect(t, reader)
	assert.Equal(t, int64(3), sumValue(t, data["cvcoach_suggestion_decisions_total"]))
	assert.Equal(t, int64(1), sumValue(t, data["cvcoach_sessions_saved_total"]))
	assert.Equal(t, int64(1), sumValue(t, data["cvcoach_rate_limit_hits_total"]))
}

func TestRecordBusinessMetricHonorsConfig(t *testing.T) {
	full := &config.Config{}
	full.Observability.CustomMetrics.BusinessMetrics.Enabled = true
	full.Observability.CustomMetrics.BusinessMetrics.TrackDecisions = false
	full.Observability.CustomMetrics.Infrastructure.TrackRateLimits = false

	om, reader := newTestManager(t, full)
	m := om.GetMetrics()
	ctx := context.Background()

	m.RecordBusinessMetric(ctx, MetricSuggestionAccepted, true, om)
	m.RecordBusinessMetric(ctx, MetricRateLimitHit, false, om)
	m.RecordBusinessMetric(ctx, MetricSessionSaved, true, om)

	data := collect(t, reader)
	assert.NotContains(t, data, "cvcoach_suggestion_decisions_total")
	assert.NotContains(t, data, "cvcoach_rate_limit_hits_total")
	assert.Equal(t, int64(1), sumValue(t, data["cvcoach_sessions_saved_total"]))
}

func TestGetObservabilityConfig(t *testing.T) {
	fallback := GetObservabilityConfig(nil, "1.2.3")
	assert.Equal(t, "cvcoach", fallback.ServiceName)
	assert.Equal(t, "1.2.3", fallback.ServiceVersion)

	cfg := &config.Config{}
	cfg.Observability.ServiceName = "svc"
	cfg.Observability.Prometheus.Port = "9999"
	obs := GetObservabilityConfig(cfg, "dev")
	assert.Equal(t, "svc", obs.ServiceName)
	assert.Equal(t, "dev", obs.ServiceVersion)
	assert.Equal(t, "9999", obs.Prometheus.Port)
}

func TestObservabilityMiddleware(t *testing.T) {
	om, _ := newTestManager(t, nil)

	var sawSpan bool
	handler := ObservabilityMiddleware(om)(func(w http.ResponseWriter, r *http.Request) {
		sawSpan = r.Context() != context.Background()
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/abc", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, sawSpan)
}

func TestSetupPrometheusExporter(t *testing.T) {
	reader, mux, err := SetupPrometheusExporter(PrometheusConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, reader)
	assert.Nil(t, mux)

	reader, mux, err = SetupPrometheusExporter(PrometheusConfig{Enabled: true, Endpoint: "/metrics"})
	require.NoError(t, err)
	require.NotNil(t, reader)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

type fixedGenerator struct {
	completion types.Completion
	err        error
}

func (g fixedGenerator) GenerateSuggestions(ctx context.Context, req types.SuggestionRequest) (types.Completion, error) {
	return g.completion, g.err
}

func TestInstrumentGenerator(t *testing.T) {
	inner := fixedGenerator{completion: types.Completion{
		Text:  `{"suggestions":[]}`,
		Usage: &types.TokenUsage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3},
	}}
	assert.Equal(t, inner, InstrumentGenerator(inner, nil))

	om, reader := newTestManager(t, nil)
	gen := InstrumentGenerator(inner, om)

	completion, err := gen.GenerateSuggestions(context.Background(), types.SuggestionRequest{About: "x"})
	require.NoError(t, err)
	assert.Equal(t, inner.completion, completion)

	_, err = InstrumentGenerator(fixedGenerator{err: errors.New("down")}, om).
		GenerateSuggestions(context.Background(), types.SuggestionRequest{})
	assert.EqualError(t, err, "down")

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumValue(t, data["cvcoach_ai_requests_total"]))
	assert.Equal(t, int64(1), sumValue(t, data["cvcoach_ai_errors_total"]))
}
