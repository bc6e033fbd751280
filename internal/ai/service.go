package ai

import (
	"context"
	"fmt"

	"cvcoach/internal/config"
	"cvcoach/internal/errors"
	"cvcoach/internal/types"
)

// Service handles AI calls for one operation. It satisfies
// suggestions.Generator.
type Service struct {
	Provider AIProvider
	config   *config.OperationAIConfig
	logger   *errors.Logger
}

// NewService creates a new AI service instance with configuration for a specific operation
func NewService(cfg *config.OperationAIConfig, operationType string, logger *errors.Logger) (*Service, error) {
	logger.Debug("Initializing AI service",
		"provider", cfg.Provider,
		"operation_type", operationType,
		"model", cfg.Model,
		"temperature", *cfg.Temperature,
		"timeout", *cfg.Timeout,
		"max_retries", *cfg.MaxRetries,
		"use_system_prompts", *cfg.UseSystemPrompts)

	var provider AIProvider
	var err error

	switch cfg.Provider {
	case "gemini":
		provider, err = NewGeminiProvider(cfg, operationType, logger)
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("Unsupported AI provider: %s", cfg.Provider), nil)
	}
	if err != nil {
		return nil, errors.NewAIError(errors.ErrCodeAIServiceFailed,
			"Failed to create AI provider", err)
	}

	return NewServiceWithProvider(provider, cfg, logger), nil
}

// NewServiceWithProvider wraps an existing provider
func NewServiceWithProvider(provider AIProvider, cfg *config.OperationAIConfig, logger *errors.Logger) *Service {
	return &Service{Provider: provider, config: cfg, logger: logger}
}

// GenerateSuggestions forwards a single attempt to the provider
func (s *Service) GenerateSuggestions(ctx context.Context, req types.SuggestionRequest) (types.Completion, error) {
	return s.Provider.GenerateSuggestions(ctx, req)
}

// GetModelInfo returns information about the AI model for health checks
func (s *Service) GetModelInfo(ctx context.Context) *types.ModelInfo {
	return s.Provider.GetModelInfo(ctx)
}

// CircuitBreakerStats reports breaker state when the provider exposes it
func (s *Service) CircuitBreakerStats() map[string]any {
	if p, ok := s.Provider.(interface{ GetCircuitBreakerStats() map[string]any }); ok {
		return p.GetCircuitBreakerStats()
	}
	return map[string]any{"enabled": false}
}

// Close releases provider resources
func (s *Service) Close() error {
	return s.Provider.Close()
}
