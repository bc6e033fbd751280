package server

import (
	"net/http"
	"strings"

	"cvcoach/internal/observability"
)

const apiPrefix = "/api/v1"

// setupRoutes configures all HTTP routes and middleware
func (s *Server) setupRoutes(om *observability.ObservabilityManager) *http.ServeMux {
	mux := http.NewServeMux()

	rateLimitHandler := s.createRateLimitMiddleware(om)
	requestLimitHandler := s.requestSizeLimitMiddleware()
	traced := observability.ObservabilityMiddleware(om)

	protect := func(h http.HandlerFunc) http.HandlerFunc {
		return rateLimitHandler(s.authMiddleware(requestLimitHandler(traced(h))))
	}

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /stats", s.statsHandler)

	mux.HandleFunc("POST "+apiPrefix+"/sessions", protect(s.createSessionHandler(om)))
	mux.HandleFunc("GET "+apiPrefix+"/sessions/{id}", protect(s.getSessionHandler(om)))
	mux.HandleFunc("DELETE "+apiPrefix+"/sessions/{id}", protect(s.deleteSessionHandler(om)))
	mux.HandleFunc("PUT "+apiPrefix+"/sessions/{id}/document", protect(s.updateDocumentHandler(om)))
	mux.HandleFunc("POST "+apiPrefix+"/sessions/{id}/suggestions", protect(s.requestSuggestionsHandler(om)))
	mux.HandleFunc("POST "+apiPrefix+"/sessions/{id}/suggestions/{sid}/accept", protect(s.acceptHandler(om)))
	mux.HandleFunc("POST "+apiPrefix+"/sessions/{id}/suggestions/{sid}/reject", protect(s.rejectHandler(om)))
	mux.HandleFunc("POST "+apiPrefix+"/sessions/{id}/save", protect(s.saveSessionHandler(om)))
	mux.HandleFunc("GET "+apiPrefix+"/documents/{id}", protect(s.getDocumentHandler(om)))

	return mux
}

// authMiddleware provides API key authentication
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication if no API keys are configured
		if s.apiKeyCount() == 0 {
			next(w, r)
			return
		}

		apiKey := requestAPIKey(r)
		if apiKey == "" {
			s.Logger.Info("Authentication failed: missing API key",
				"endpoint", r.URL.Path,
				"client_ip", r.RemoteAddr)
			writeErrorResponse(w, "Missing API key", "X-API-Key header or Authorization Bearer token required", http.StatusUnauthorized)
			return
		}

		if !s.validAPIKey(apiKey) {
			s.Logger.Info("Authentication failed: invalid API key",
				"endpoint", r.URL.Path,
				"client_ip", r.RemoteAddr,
				"api_key_prefix", maskAPIKey(apiKey))
			writeErrorResponse(w, "Invalid API key", "Unauthorized access", http.StatusUnauthorized)
			return
		}

		s.Logger.Debug("API authentication successful",
			"endpoint", r.URL.Path,
			"client_ip", r.RemoteAddr,
			"api_key_prefix", maskAPIKey(apiKey))

		next(w, r)
	}
}

// requestAPIKey reads X-API-Key, falling back to a Bearer token
func requestAPIKey(r *http.Request) string {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return after
	}
	return ""
}

// requestSizeLimitMiddleware limits the size of incoming requests
func (s *Server) requestSizeLimitMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if s.MaxRequestSize > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestSize)
			}

			next(w, r)
		}
	}
}

// maskAPIKey masks an API key for logging (shows only first 8 characters)
func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return "****"
	}
	return apiKey[:8] + "****"
}
