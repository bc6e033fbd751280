package server

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"cvcoach/internal/config"
	appErrors "cvcoach/internal/errors"
	"cvcoach/internal/observability"
	"cvcoach/internal/suggestions"
	"cvcoach/internal/types"
)

// ModelInspector reports model availability and breaker state for /health.
type ModelInspector interface {
	GetModelInfo(ctx context.Context) *types.ModelInfo
	CircuitBreakerStats() map[string]any
}

// Pinger is implemented by storage backends that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Server holds configuration for the HTTP server
type Server struct {
	Host    string
	Port    string
	Version string

	// Full application configuration
	AppConfig *config.Config

	// TLS Configuration
	TLSConfig config.TLSConfig

	// Suggestion workflow and the collaborators reported on by /health
	Suggestions *suggestions.Service
	Model       ModelInspector
	Storage     map[string]Pinger

	// Observability; Start creates a manager when nil
	Observability *observability.ObservabilityManager

	// API Authentication, replaced atomically when keys rotate
	apiKeysMu sync.RWMutex
	apiKeys   map[string]bool

	// Vault API key rotation
	KeyWatcher *APIKeyWatcher

	// Prompt file hot reload
	PromptWatcher *config.PromptWatcher

	// Timeout configurations
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Request size limit
	MaxRequestSize int64

	// Rate limiting
	RateLimit   *config.RateLimitConfig
	RateLimiter *RateLimiter

	validate *validator.Validate

	// Logger
	Logger *appErrors.Logger
}

// ServerConfig holds configuration for creating a Server instance
type ServerConfig struct {
	Host           string
	Port           string
	Version        string
	TLSConfig      config.TLSConfig
	APIKeys        []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxRequestSize int64
	RateLimit      *config.RateLimitConfig
}

// Dependencies are the runtime collaborators a Server serves.
type Dependencies struct {
	Suggestions   *suggestions.Service
	Model         ModelInspector
	Storage       map[string]Pinger
	Observability *observability.ObservabilityManager
	KeyWatcher    *APIKeyWatcher
	PromptWatcher *config.PromptWatcher
}

// ServerConfigFrom maps the server section of the application config.
func ServerConfigFrom(appCfg *config.Config, version string) ServerConfig {
	rl := appCfg.Server.RateLimit
	return ServerConfig{
		Host:           appCfg.Server.Host,
		Port:           appCfg.Server.Port,
		Version:        version,
		TLSConfig:      appCfg.Server.TLS,
		APIKeys:        appCfg.Server.APIKeys,
		ReadTimeout:    appCfg.Server.ReadTimeout,
		WriteTimeout:   appCfg.Server.WriteTimeout,
		IdleTimeout:    appCfg.Server.IdleTimeout,
		MaxRequestSize: appCfg.Server.MaxRequestSize,
		RateLimit:      &rl,
	}
}

// NewServer creates a new Server instance from a ServerConfig struct
func NewServer(appCfg *config.Config, cfg ServerConfig, deps Dependencies, logger *appErrors.Logger) *Server {
	var rateLimiter *RateLimiter
	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		rateLimiter = NewRateLimiter(
			cfg.RateLimit.RequestsPerMin,
			cfg.RateLimit.BurstCapacity,
			logger,
		)
	}

	s := &Server{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Version:        cfg.Version,
		AppConfig:      appCfg,
		TLSConfig:      cfg.TLSConfig,
		Suggestions:    deps.Suggestions,
		Model:          deps.Model,
		Storage:        deps.Storage,
		Observability:  deps.Observability,
		KeyWatcher:     deps.KeyWatcher,
		PromptWatcher:  deps.PromptWatcher,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxRequestSize: cfg.MaxRequestSize,
		RateLimit:      cfg.RateLimit,
		RateLimiter:    rateLimiter,
		validate:       newValidator(),
		Logger:         logger,
	}
	s.SetAPIKeys(cfg.APIKeys)
	return s
}

// SetAPIKeys replaces the accepted API keys. Empty entries are ignored.
func (s *Server) SetAPIKeys(keys []string) {
	keyMap := make(map[string]bool, len(keys))
	for _, key := range keys {
		if key != "" {
			keyMap[key] = true
		}
	}

	s.apiKeysMu.Lock()
	s.apiKeys = keyMap
	s.apiKeysMu.Unlock()
}

// apiKeyCount returns how many API keys are accepted; zero disables auth.
func (s *Server) apiKeyCount() int {
	s.apiKeysMu.RLock()
	defer s.apiKeysMu.RUnlock()
	return len(s.apiKeys)
}

func (s *Server) validAPIKey(key string) bool {
	s.apiKeysMu.RLock()
	defer s.apiKeysMu.RUnlock()
	return s.apiKeys[key]
}
