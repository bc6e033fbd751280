package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"time"

	appErrors "cvcoach/internal/errors"
)

const defaultHealthCheckTimeout = 10 * time.Second

// getHealthCheckTimeout returns the configured model check timeout
func (s *Server) getHealthCheckTimeout() time.Duration {
	if s.AppConfig == nil {
		return defaultHealthCheckTimeout
	}
	hc := s.AppConfig.Observability.HealthCheck
	if hc.AIModelCheckTimeout > 0 {
		return hc.AIModelCheckTimeout
	}
	if hc.Timeout > 0 {
		return hc.Timeout
	}
	return defaultHealthCheckTimeout
}

// healthHandler reports model availability, breaker state and storage
// liveness. Any failing dependency degrades the status to 503.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.getHealthCheckTimeout())
	defer cancel()

	response := map[string]any{
		"status":  "healthy",
		"service": "cvcoach",
		"version": s.Version,
	}
	healthy := true

	if s.Model != nil {
		info := s.Model.GetModelInfo(ctx)
		response["ai_model"] = info
		response["circuit_breakers"] = s.Model.CircuitBreakerStats()
		if info == nil || !info.Available {
			healthy = false
		}
	}

	if len(s.Storage) > 0 {
		storage, ok := s.checkStorageHealth(ctx)
		response["storage"] = storage
		healthy = healthy && ok
	}

	if s.PromptWatcher != nil {
		response["prompt_watcher"] = map[string]any{
			"running": s.PromptWatcher.IsRunning(),
			"files":   s.PromptWatcher.Files(),
		}
	}
	if s.KeyWatcher != nil {
		response["api_key_watcher"] = s.KeyWatcher.Status()
	}

	status := http.StatusOK
	if !healthy {
		response["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// checkStorageHealth pings every configured backend
func (s *Server) checkStorageHealth(ctx context.Context) (map[string]any, bool) {
	out := make(map[string]any, len(s.Storage))
	allOK := true
	for name, p := range s.Storage {
		if err := p.Ping(ctx); err != nil {
			allOK = false
			out[name] = map[string]any{"healthy": false, "error": err.Error()}
			s.Logger.LogError(err, "Storage health check failed", "backend", name)
			continue
		}
		out[name] = map[string]any{"healthy": true}
	}
	return out, allOK
}

// statsHandler provides server statistics including rate limiting info
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"service": "cvcoach",
		"version": s.Version,
		"server": map[string]any{
			"max_request_size_bytes": s.MaxRequestSize,
			"api_keys_configured":    s.apiKeyCount(),
		},
	}

	if s.Suggestions != nil && s.Suggestions.Fetcher() != nil {
		response["suggestions"] = map[string]any{
			"max_attempts": s.Suggestions.Fetcher().MaxAttempts(),
		}
	}

	if s.RateLimiter != nil {
		response["rate_limiting"] = s.RateLimiter.GetStats()
	} else {
		response["rate_limiting"] = map[string]any{
			"enabled": false,
		}
	}

	if s.RateLimit != nil {
		response["rate_limit_config"] = map[string]any{
			"enabled":          s.RateLimit.Enabled,
			"requests_per_min": s.RateLimit.RequestsPerMin,
			"burst_capacity":   s.RateLimit.BurstCapacity,
			"by_ip":            s.RateLimit.ByIP,
			"by_api_key":       s.RateLimit.ByAPIKey,
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// decodeRequest parses a JSON body into v and validates it
func (s *Server) decodeRequest(r *http.Request, v any) error {
	if err := parseJSONRequest(r, v); err != nil {
		return appErrors.NewValidationError(appErrors.ErrCodeInvalidRequest, err.Error(), err)
	}
	return s.validateRequest(v)
}

// parseJSONRequest parses JSON request body into the provided struct
func parseJSONRequest(r *http.Request, v any) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return fmt.Errorf("content-type must be application/json")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return fmt.Errorf("request body too large (limit is %d bytes)", maxBytesErr.Limit)
		}
		return fmt.Errorf("failed to read request body: %w", err)
	}
	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("Failed to close request body: %v", err)
		}
	}()

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("request body is not valid JSON")
	}

	return nil
}

// writeJSON writes v with the given status
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeErrorResponse writes a standardized error response
func writeErrorResponse(w http.ResponseWriter, error, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   error,
		Message: message,
	})
}
