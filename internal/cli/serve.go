package cli

import (
	"fmt"
	"time"

	"cvcoach/internal/ai"
	"cvcoach/internal/common"
	"cvcoach/internal/config"
	"cvcoach/internal/errors"
	"cvcoach/internal/observability"
	"cvcoach/internal/server"
	"cvcoach/internal/suggestions"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for CV editing sessions",
	Long: `Start an HTTP server that keeps CV editing sessions and runs the suggestion
workflow on request.

Available endpoints:
- POST   /api/v1/sessions: Start a session from a document or a saved document ID
- GET    /api/v1/sessions/{id}: Session state, pending suggestions and counts
- PUT    /api/v1/sessions/{id}/document: Replace the document after a manual edit
- POST   /api/v1/sessions/{id}/suggestions: Request suggestions
- POST   /api/v1/sessions/{id}/suggestions/{sid}/accept: Apply a suggestion
- POST   /api/v1/sessions/{id}/suggestions/{sid}/reject: Dismiss a suggestion
- POST   /api/v1/sessions/{id}/save: Persist the document
- DELETE /api/v1/sessions/{id}: Discard a session
- GET    /api/v1/documents/{id}: Fetch a saved document
- GET    /health: Health check endpoint
- GET    /stats: Server statistics and rate limiting info

TLS Configuration:
- Use --tls-mode to set TLS mode: disabled or server
- Use --cert-file and --key-file for TLS certificates`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("port", "p", "", "Port to listen on (default from config)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from config)")
	serveCmd.Flags().String("tls-mode", "", "TLS mode: disabled, server (overrides config)")
	serveCmd.Flags().String("cert-file", "", "Server certificate file (PEM, overrides config)")
	serveCmd.Flags().String("key-file", "", "Server private key file (PEM, overrides config)")
	serveCmd.Flags().String("session-backend", "", "Session store: memory or redis (overrides config)")
}

// applyServeFlags copies explicitly set flags over the loaded config
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	set := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	set("port", &cfg.Server.Port)
	set("host", &cfg.Server.Host)
	set("tls-mode", &cfg.Server.TLS.Mode)
	set("cert-file", &cfg.Server.TLS.CertFile)
	set("key-file", &cfg.Server.TLS.KeyFile)
	set("session-backend", &cfg.Storage.Sessions.Backend)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return err
	}
	logger, err := getLoggerFromContext(cmd.Context())
	if err != nil {
		return err
	}

	applyServeFlags(cmd, cfg)

	// Validate TLS configuration after applying overrides
	tempConfig := &config.Config{Server: cfg.Server}
	if err := tempConfig.ValidateTLSConfig(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}

	om, err := observability.NewObservabilityManager(observability.GetObservabilityConfig(cfg, Version), cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}

	suggestAIConfig := cfg.GetSuggestConfig()
	aiService, err := ai.NewService(&suggestAIConfig, "suggest", logger)
	if err != nil {
		return fmt.Errorf("failed to create AI service: %w", err)
	}
	defer func() {
		if err := aiService.Close(); err != nil {
			logger.Warn("Failed to close AI service", "error", err)
		}
	}()

	stores, err := openStores(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	sections, err := common.ValidateSections(cfg.SuggestionSections())
	if err != nil {
		return fmt.Errorf("invalid suggestions.sections: %w", err)
	}

	fetcher := suggestions.NewFetcher(observability.InstrumentGenerator(aiService, om), cfg.Suggestions.MaxAttempts, logger).
		WithTimeout(cfg.Suggestions.RequestTimeout)
	service := suggestions.NewService(suggestions.ServiceConfig{
		Sessions:        stores.sessions,
		Locks:           stores.locks,
		Documents:       stores.documents,
		Fetcher:         fetcher,
		DefaultSections: sections,
	}, logger)

	serverCfg := server.ServerConfigFrom(cfg, Version)
	if serverCfg.MaxRequestSize == 0 {
		serverCfg.MaxRequestSize = cfg.App.MaxFileSize
	}

	deps := server.Dependencies{
		Suggestions:   service,
		Model:         aiService,
		Storage:       stores.pingers,
		Observability: om,
		PromptWatcher: newPromptWatcher(cfg, logger),
	}

	// The watcher callback needs the server, so it is attached after
	srv := server.NewServer(cfg, serverCfg, deps, logger)
	keyWatcher, err := newAPIKeyWatcher(cfg, srv, logger)
	if err != nil {
		return err
	}
	srv.KeyWatcher = keyWatcher

	return srv.Start()
}

// newPromptWatcher watches custom prompt files when any are configured
func newPromptWatcher(cfg *config.Config, logger *errors.Logger) *config.PromptWatcher {
	if len(cfg.PromptFilePaths()) == 0 {
		return nil
	}
	return config.NewPromptWatcher(cfg, 500*time.Millisecond, func(err error) {
		if err != nil {
			logger.LogError(err, "Prompt reload failed, keeping previous prompts")
		}
	}, logger)
}

// newAPIKeyWatcher polls Vault for rotated API keys when enabled
func newAPIKeyWatcher(cfg *config.Config, srv *server.Server, logger *errors.Logger) (*server.APIKeyWatcher, error) {
	vc := cfg.Vault
	if !vc.Enabled || !vc.Watcher.Enabled || vc.Secrets.APIKeys == "" {
		return nil, nil
	}

	client, err := config.NewVaultClient(vc, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client for API key watcher: %w", err)
	}

	return server.NewAPIKeyWatcher(client, vc.Secrets.APIKeys, vc.Watcher.PollInterval, func(keys []string, err error) {
		if err != nil {
			logger.LogError(err, "API key rotation skipped, keeping current keys")
			return
		}
		srv.SetAPIKeys(keys)
	}, logger), nil
}
