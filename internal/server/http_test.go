package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvcoach/internal/config"
	"cvcoach/internal/document"
	appErrors "cvcoach/internal/errors"
	"cvcoach/internal/observability"
	"cvcoach/internal/storage"
	"cvcoach/internal/suggestions"
	"cvcoach/internal/types"
)

const aboutSuggestion = `{"suggestions":[{"section":"about","originalText":"I write code.","suggestionType":"wording","suggestedText":"Backend engineer focused on reliable services.","reasoning":"More specific"}]}`

type testEnv struct {
	server  *Server
	handler http.Handler
	calls   *atomic.Int32
}

type testOption func(*ServerConfig, *Dependencies)

func withAPIKeys(keys ...string) testOption {
	return func(cfg *ServerConfig, _ *Dependencies) { cfg.APIKeys = keys }
}

func withRateLimit(perMin, burst int) testOption {
	return func(cfg *ServerConfig, _ *Dependencies) {
		cfg.RateLimit = &config.RateLimitConfig{Enabled: true, RequestsPerMin: perMin, BurstCapacity: burst, ByIP: true, ByAPIKey: true}
	}
}

func withStorage(name string, p Pinger) testOption {
	return func(_ *ServerConfig, deps *Dependencies) {
		if deps.Storage == nil {
			deps.Storage = map[string]Pinger{}
		}
		deps.Storage[name] = p
	}
}

func newTestEnv(t *testing.T, gen suggestions.GeneratorFunc, opts ...testOption) *testEnv {
	t.Helper()
	logger := appErrors.NewLoggerWithWriter(io.Discard, slog.LevelDebug)

	calls := &atomic.Int32{}
	counted := suggestions.GeneratorFunc(func(ctx context.Context, req types.SuggestionRequest) (types.Completion, error) {
		calls.Add(1)
		return gen(ctx, req)
	})

	om, err := observability.NewObservabilityManager(observability.ObservabilityConfig{Enabled: false}, nil)
	require.NoError(t, err)

	svc := suggestions.NewService(suggestions.ServiceConfig{
		Sessions:  storage.NewMemorySessions(time.Hour, logger),
		Locks:     storage.NewMemoryLocks(),
		Documents: storage.NewMemoryDocuments(),
		Fetcher:   suggestions.NewFetcher(counted, 7, logger),
	}, logger)

	cfg := ServerConfig{Version: "test", MaxRequestSize: 1 << 20}
	deps := Dependencies{Suggestions: svc, Observability: om}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	srv := NewServer(&config.Config{}, cfg, deps, logger)
	t.Cleanup(srv.cleanupRateLimiter)
	return &testEnv{server: srv, handler: srv.setupRoutes(om), calls: calls}
}

func fixedResponse(text string) suggestions.GeneratorFunc {
	return func(context.Context, types.SuggestionRequest) (types.Completion, error) {
		return types.Completion{Text: text}, nil
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func sampleDocument() document.Document {
	return document.Document{
		About: "I write code.",
		Skills: []document.Skill{
			{Name: "Go"},
		},
	}
}

func sampleDocumentPtr() *document.Document {
	doc := sampleDocument()
	return &doc
}

func (e *testEnv) createSession(t *testing.T) SessionResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/sessions", CreateSessionRequest{Document: sampleDocumentPtr()})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[SessionResponse](t, rec)
}

func TestSuggestionWorkflow(t *testing.T) {
	env := newTestEnv(t, fixedResponse(aboutSuggestion))

	created := env.createSession(t)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, suggestions.StatusIdle, created.Status)
	assert.Empty(t, created.Pending)

	rec := env.do(t, http.MethodPost, "/api/v1/sessions/"+created.ID+"/suggestions", SuggestionsRequest{Sections: []string{"about"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decode[SuggestionsResponse](t, rec)
	assert.Equal(t, 1, run.Attempts)
	assert.Equal(t, suggestions.StatusReady, run.Session.Status)
	require.Len(t, run.Session.Pending, 1)
	entryID := run.Session.Pending[0].ID

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/suggestions/%s/accept", created.ID, entryID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decision := decode[DecisionResponse](t, rec)
	assert.True(t, decision.Transition.Changed)
	assert.True(t, decision.Transition.PathResolved)
	assert.Equal(t, suggestions.StateApplied, decision.Transition.To)
	assert.Equal(t, "Backend engineer focused on reliable services.", decision.Session.Document.About)
	assert.Empty(t, decision.Session.Pending)

	// A second decision on a terminal entry is a no-op
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/suggestions/%s/reject", created.ID, entryID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decision = decode[DecisionResponse](t, rec)
	assert.False(t, decision.Transition.Changed)
	assert.Equal(t, suggestions.StateApplied, decision.Transition.To)

	rec = env.do(t, http.MethodPost, "/api/v1/sessions/"+created.ID+"/save", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decode[SessionResponse](t, rec)
	require.NotEmpty(t, saved.DocumentID)

	rec = env.do(t, http.MethodGet, "/api/v1/documents/"+saved.DocumentID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[document.Document](t, rec)
	assert.Equal(t, "Backend engineer focused on reliable services.", doc.About)

	rec = env.do(t, http.MethodDelete, "/api/v1/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, appErrors.ErrCodeSessionNotFound, decode[ErrorResponse](t, rec).Code)
}

func TestOpenSavedDocument(t *testing.T) {
	env := newTestEnv(t, fixedResponse(`{"suggestions":[]}`))
	created := env.createSession(t)

	rec := env.do(t, http.MethodPost, "/api/v1/sessions/"+created.ID+"/save", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	docID := decode[SessionResponse](t, rec).DocumentID

	rec = env.do(t, http.MethodPost, "/api/v1/sessions", CreateSessionRequest{DocumentID: docID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	opened := decode[SessionResponse](t, rec)
	assert.Equal(t, docID, opened.DocumentID)
	assert.NotEqual(t, created.ID, opened.ID)

	rec = env.do(t, http.MethodPost, "/api/v1/sessions", CreateSessionRequest{DocumentID: "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRejectLeavesDocumentUntouched(t *testing.T) {
	env := newTestEnv(t, fixedResponse(aboutSuggestion))
	created := env.createSession(t)

	rec := env.do(t, http.MethodPost, "/api/v1/sessions/"+created.ID+"/suggestions", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entryID := decode[SuggestionsResponse](t, rec).Session.Pending[0].ID

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/suggestions/%s/reject", created.ID, entryID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decision := decode[DecisionResponse](t, rec)
	assert.Equal(t, suggestions.StateDismissed, decision.Transition.To)
	assert.Equal(t, "I write code.", decision.Session.Document.About)
	assert.Equal(t, 1, decision.Session.Counts[suggestions.StateDismissed])

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/suggestions/%s/accept", created.ID, "nope"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, appErrors.ErrCodeSuggestionNotFound, decode[ErrorResponse](t, rec).Code)
}

func TestUpdateDocument(t *testing.T) {
	env := newTestEnv(t, fixedResponse(aboutSuggestion))
	created := env.createSession(t)

	edited := sampleDocument()
	edited.About = "Edited by hand."
	rec := env.do(t, http.MethodPut, "/api/v1/sessions/"+created.ID+"/document", UpdateDocumentRequest{Document: &edited})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Edited by hand.", decode[SessionResponse](t, rec).Document.About)

	rec = env.do(t, http.MethodPut, "/api/v1/sessions/"+created.ID+"/document", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "document")
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t, fixedResponse(aboutSuggestion))
	created := env.createSession(t)

	tests := []struct {
		name        string
		path        string
		body        any
		contentType string
		wantError   string
	}{
		{
			name:      "missing document",
			path:      "/api/v1/sessions",
			body:      map[string]any{},
			wantError: "document",
		},
		{
			name:      "document and id together",
			path:      "/api/v1/sessions",
			body:      CreateSessionRequest{DocumentID: "x", Document: sampleDocumentPtr()},
			wantError: "document",
		},
		{
			name:      "invalid json",
			path:      "/api/v1/sessions",
			body:      "{not json",
			wantError: "request body is not valid JSON",
		},
		{
			name:        "wrong content type",
			path:        "/api/v1/sessions",
			body:        "{}",
			contentType: "text/plain",
			wantError:   "content-type must be application/json",
		},
		{
			name:      "unknown section",
			path:      "/api/v1/sessions/" + created.ID + "/suggestions",
			body:      SuggestionsRequest{Sections: []string{"hobbies"}},
			wantError: "cvsection",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if tt.contentType != "" {
				rec = env.do(t, http.MethodPost, tt.path, tt.body, "Content-Type", tt.contentType)
			} else {
				rec = env.do(t, http.MethodPost, tt.path, tt.body)
			}
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.Contains(t, resp.Error, tt.wantError)
			assert.Equal(t, appErrors.ErrCodeInvalidRequest, resp.Code)
		})
	}

	assert.Zero(t, env.calls.Load(), "invalid requests never reach the model")
}

func TestRequestSuggestionsEmptyDocument(t *testing.T) {
	env := newTestEnv(t, fixedResponse(aboutSuggestion))
	rec := env.do(t, http.MethodPost, "/api/v1/sessions", CreateSessionRequest{Document: &document.Document{}})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[SessionResponse](t, rec).ID

	rec = env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/suggestions", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, env.calls.Load())
}

func TestRequestSuggestionsAIFailure(t *testing.T) {
	env := newTestEnv(t, func(context.Context, types.SuggestionRequest) (types.Completion, error) {
		return types.Completion{}, appErrors.NewAIError(appErrors.ErrCodeAIServiceFailed, "upstream said 500 with secret detail", nil)
	})
	created := env.createSession(t)

	rec := env.do(t, http.MethodPost, "/api/v1/sessions/"+created.ID+"/suggestions", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, appErrors.MessageAIUnavailable, resp.Error)
	assert.Equal(t, "Please try again in a few moments.", resp.Message)
	assert.NotContains(t, rec.Body.String(), "secret detail")
	assert.Equal(t, int32(7), env.calls.Load(), "every attempt is used before giving up")

	rec = env.do(t, http.MethodGet, "/api/v1/sessions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sess := decode[SessionResponse](t, rec)
	assert.Equal(t, suggestions.StatusFailed, sess.Status)
	assert.Equal(t, appErrors.MessageAIUnavailable, sess.LastError)
}

func TestRequestSuggestionsRetriesMalformedOutput(t *testing.T) {
	var n atomic.Int32
	env := newTestEnv(t, func(context.Context, types.SuggestionRequest) (types.Completion, error) {
		if n.Add(1) < 3 {
			return types.Completion{Text: "Sure! Here are some ideas"}, nil
		}
		return types.Completion{Text: "```json\n" + aboutSuggestion + "\n```"}, nil
	})
	created := env.createSession(t)

	rec := env.do(t, http.MethodPost, "/api/v1/sessions/"+created.ID+"/suggestions", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decode[SuggestionsResponse](t, rec)
	assert.Equal(t, 3, run.Attempts)
	assert.Len(t, run.Session.Pending, 1)
}

func TestRequestSuggestionsInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	env := newTestEnv(t, func(ctx context.Context, _ types.SuggestionRequest) (types.Completion, error) {
		close(started)
		<-release
		return types.Completion{Text: aboutSuggestion}, nil
	})
	created := env.createSession(t)
	path := "/api/v1/sessions/" + created.ID + "/suggestions"

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- env.do(t, http.MethodPost, path, nil)
	}()
	<-started

	rec := env.do(t, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, appErrors.ErrCodeRequestInFlight, decode[ErrorResponse](t, rec).Code)

	rec = env.do(t, http.MethodGet, "/api/v1/sessions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, suggestions.StatusLoading, decode[SessionResponse](t, rec).Status)

	close(release)
	assert.Equal(t, http.StatusOK, (<-first).Code)
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, fixedResponse(aboutSuggestion), withAPIKeys("key-one-123456"))

	tests := []struct {
		name       string
		headers    []string
		wantStatus int
	}{
		{name: "missing key", wantStatus: http.StatusUnauthorized},
		{name: "wrong key", headers: []string{"X-API-Key", "nope"}, wantStatus: http.StatusUnauthorized},
		{name: "header key", headers: []string{"X-API-Key", "key-one-123456"}, wantStatus: http.StatusNotFound},
		{name: "bearer token", headers: []string{"Authorization", "Bearer key-one-123456"}, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/sessions/unknown", nil, tt.headers...)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}

	// Health stays public
	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSetAPIKeysRotation(t *testing.T) {
	env := newTestEnv(t, fixedResponse(aboutSuggestion), withAPIKeys("old-key-123456"))

	rec := env.do(t, http.MethodGet, "/api/v1/sessions/x", nil, "X-API-Key", "old-key-123456")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.server.SetAPIKeys([]string{"new-key-123456", ""})
	assert.Equal(t, 1, env.server.apiKeyCount())

	rec = env.do(t, http.MethodGet, "/api/v1/sessions/x", nil, "X-API-Key", "old-key-123456")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/v1/sessions/x", nil, "X-API-Key", "new-key-123456")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	env := newTestEnv(t, fixedResponse(aboutSuggestion), withRateLimit(1, 2))

	for i := range 2 {
		rec := env.do(t, http.MethodGet, "/api/v1/sessions/x", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, "request %d", i)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/sessions/x", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// A different API key gets its own bucket
	rec = env.do(t, http.MethodGet, "/api/v1/sessions/x", nil, "X-API-Key", "another")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestSizeLimit(t *testing.T) {
	env := newTestEnv(t, fixedResponse(aboutSuggestion))
	env.server.MaxRequestSize = 64

	big := sampleDocument()
	big.About = string(bytes.Repeat([]byte("a"), 256))
	rec := env.do(t, http.MethodPost, "/api/v1/sessions", CreateSessionRequest{Document: &big})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "request body too large")
}

type fakeModel struct {
	available bool
}

func (m fakeModel) GetModelInfo(context.Context) *types.ModelInfo {
	info := &types.ModelInfo{Available: m.available}
	if !m.available {
		info.Error = "model unreachable"
	}
	return info
}

func (m fakeModel) CircuitBreakerStats() map[string]any {
	return map[string]any{"suggest": map[string]any{"state": "closed"}}
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		model      ModelInspector
		pingErr    error
		wantStatus int
		wantState  string
	}{
		{name: "healthy", model: fakeModel{available: true}, wantStatus: http.StatusOK, wantState: "healthy"},
		{name: "model down", model: fakeModel{available: false}, wantStatus: http.StatusServiceUnavailable, wantState: "degraded"},
		{name: "storage down", model: fakeModel{available: true}, pingErr: fmt.Errorf("connection refused"), wantStatus: http.StatusServiceUnavailable, wantState: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pingErr := tt.pingErr
			env := newTestEnv(t, fixedResponse(aboutSuggestion),
				withStorage("sessions", PingFunc(func(context.Context) error { return pingErr })))
			env.server.Model = tt.model

			rec := env.do(t, http.MethodGet, "/health", nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decode[map[string]any](t, rec)
			assert.Equal(t, tt.wantState, body["status"])
			assert.Contains(t, body, "ai_model")
			assert.Contains(t, body, "circuit_breakers")
			assert.Contains(t, body, "storage")
		})
	}
}

func TestStatsHandler(t *testing.T) {
	env := newTestEnv(t, fixedResponse(aboutSuggestion), withAPIKeys("a", "b"), withRateLimit(60, 5))

	rec := env.do(t, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)

	server := body["server"].(map[string]any)
	assert.Equal(t, float64(2), server["api_keys_configured"])
	sugg := body["suggestions"].(map[string]any)
	assert.Equal(t, float64(7), sugg["max_attempts"])
	rl := body["rate_limit_config"].(map[string]any)
	assert.Equal(t, true, rl["enabled"])
}

func TestServerConfigFrom(t *testing.T) {
	appCfg := &config.Config{}
	appCfg.Server.Host = "127.0.0.1"
	appCfg.Server.Port = "9000"
	appCfg.Server.APIKeys = []string{"k"}
	appCfg.Server.MaxRequestSize = 2048
	appCfg.Server.RateLimit.Enabled = true

	cfg := ServerConfigFrom(appCfg, "1.2.3")
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, []string{"k"}, cfg.APIKeys)
	assert.Equal(t, int64(2048), cfg.MaxRequestSize)
	require.NotNil(t, cfg.RateLimit)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "abcdefgh****", maskAPIKey("abcdefghijkl"))
	assert.Equal(t, "api:abcdefgh****", maskRateLimitKey("api:abcdefghijkl"))
	assert.Equal(t, "ip:10.0.0.1", maskRateLimitKey("ip:10.0.0.1"))
}
