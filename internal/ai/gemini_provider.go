package ai

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"cvcoach/internal/config"
	appErrors "cvcoach/internal/errors"
	"cvcoach/internal/types"
)

const defaultModelCheckTimeout = 10 * time.Second

// GeminiProvider implements AIProvider for Google Gemini
type GeminiProvider struct {
	client         *genai.Client
	config         *config.OperationAIConfig
	operationType  string
	circuitBreaker *AICircuitBreaker
	modelBreaker   *ModelCircuitBreaker
	logger         *appErrors.Logger
}

var _ AIProvider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a new Gemini provider instance for a specific operation
func NewGeminiProvider(cfg *config.OperationAIConfig, operationType string, logger *appErrors.Logger) (*GeminiProvider, error) {
	return newGeminiProvider(cfg, operationType, genai.HTTPOptions{}, logger)
}

func newGeminiProvider(cfg *config.OperationAIConfig, operationType string, httpOptions genai.HTTPOptions, logger *appErrors.Logger) (*GeminiProvider, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPClient: &http.Client{
			Timeout:   *cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		HTTPOptions: httpOptions,
	})
	if err != nil {
		return nil, appErrors.NewAIError(appErrors.ErrCodeAIServiceFailed,
			"Failed to create Gemini client", err)
	}

	return &GeminiProvider{
		client:         client,
		config:         cfg,
		operationType:  operationType,
		circuitBreaker: NewAICircuitBreaker(operationType, cfg, logger),
		modelBreaker:   NewModelCircuitBreaker(operationType, cfg, logger),
		logger:         logger,
	}, nil
}

// GetModelInfo checks the readiness and availability of the configured model
func (g *GeminiProvider) GetModelInfo(ctx context.Context) *types.ModelInfo {
	modelInfo := &types.ModelInfo{
		Name:     g.config.Model,
		Provider: g.config.Provider,
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultModelCheckTimeout)
		defer cancel()
	}

	model, err := g.modelBreaker.ExecuteModel(func() (*genai.Model, error) {
		return g.client.Models.Get(ctx, g.config.Model, &genai.GetModelConfig{})
	})
	if err != nil {
		modelInfo.Error = fmt.Sprintf("Failed to get model info: %v", err)
		g.logger.Warn("Model availability check failed",
			"model", g.config.Model,
			"provider", g.config.Provider,
			"error", err.Error())
		return modelInfo
	}

	modelInfo.Available = true
	modelInfo.DisplayName = model.DisplayName
	modelInfo.Version = model.Version

	g.logger.Debug("Model availability check successful",
		"model", g.config.Model,
		"display_name", modelInfo.DisplayName,
		"version", modelInfo.Version)

	return modelInfo
}

// GenerateSuggestions sends one suggestion request and returns the raw
// completion text. Transport failures are retried with backoff here; the
// caller decides what to do with malformed output.
func (g *GeminiProvider) GenerateSuggestions(ctx context.Context, req types.SuggestionRequest) (types.Completion, error) {
	payload, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return types.Completion{}, appErrors.NewInternalError(appErrors.ErrCodeInvalidRequest,
			"Failed to encode suggestion request", err)
	}

	tracer := otel.Tracer("cvcoach.ai.gemini")
	ctx, span := tracer.Start(ctx, "gemini.generate_suggestions")
	defer span.End()

	span.SetAttributes(
		attribute.String("ai.provider", "gemini"),
		attribute.String("ai.model", g.config.Model),
		attribute.String("ai.operation", g.operationType),
		attribute.Float64("ai.temperature", float64(*g.config.Temperature)),
		attribute.Int("input.payload_length", len(payload)),
	)

	systemPrompt, userPrompt := g.getPrompts(string(payload))
	genaiConfig := g.buildSuggestionSchema()
	if *g.config.UseSystemPrompts && systemPrompt != "" {
		genaiConfig.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	result, err := g.circuitBreaker.Execute(func() (*genai.GenerateContentResponse, error) {
		return g.executeWithRetry(ctx, "generate_suggestions", func() (*genai.GenerateContentResponse, error) {
			return g.client.Models.GenerateContent(ctx, g.config.Model, genai.Text(userPrompt), genaiConfig)
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return types.Completion{}, classifyError(err)
	}

	completion := types.Completion{
		Text:  result.Text(),
		Usage: extractTokenUsage(result),
	}
	if completion.Usage != nil {
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", completion.Usage.InputTokens),
			attribute.Int64("ai.tokens.output", completion.Usage.OutputTokens),
			attribute.Int64("ai.tokens.total", completion.Usage.TotalTokens),
		)
	}
	span.SetAttributes(
		attribute.Bool("success", true),
		attribute.Int("output.text_length", len(completion.Text)),
	)

	return completion, nil
}

// classifyError maps provider failures onto error codes the suggestion
// fetcher uses to decide whether another attempt is worthwhile.
func classifyError(err error) *appErrors.AppError {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return appErrors.NewAIError(appErrors.ErrCodeAICircuitOpen, "AI circuit breaker is open", err)
	case errors.Is(err, context.DeadlineExceeded):
		return appErrors.NewAIError(appErrors.ErrCodeAITimeout, "AI request timed out", err)
	}

	if code := apiErrorCode(err); code != 0 {
		switch code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return appErrors.NewAIError(appErrors.ErrCodeAIRequestRejected, "AI request was rejected", err).
				WithContext("status", code)
		}
	}

	return appErrors.NewAIError(appErrors.ErrCodeAIServiceFailed, "Failed to generate suggestions", err)
}

// apiErrorCode extracts the HTTP status from Gemini or Google API errors
func apiErrorCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return genaiErr.Code
	}
	var genaiPtrErr *genai.APIError
	if errors.As(err, &genaiPtrErr) {
		return genaiPtrErr.Code
	}
	return 0
}

// executeWithRetry executes an AI operation with retry logic and exponential backoff
func (g *GeminiProvider) executeWithRetry(ctx context.Context, operation string, fn func() (*genai.GenerateContentResponse, error)) (*genai.GenerateContentResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= *g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Warn("Retrying AI operation",
				"operation", operation,
				"attempt", attempt,
				"max_retries", *g.config.MaxRetries,
				"error", lastErr.Error())

			select {
			case <-time.After(backoffDelay(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 {
				g.logger.Info("AI operation succeeded after retry",
					"operation", operation,
					"total_attempts", attempt+1)
			}
			return result, nil
		}

		lastErr = err

		if !g.isRetryableError(err) {
			g.logger.Debug("Error is not retryable, stopping retry attempts",
				"operation", operation,
				"error", err.Error())
			break
		}
	}

	g.logger.LogError(lastErr, "AI operation failed after all retry attempts",
		"operation", operation,
		"total_attempts", *g.config.MaxRetries+1)

	return nil, fmt.Errorf("operation '%s' failed after %d retries: %w", operation, *g.config.MaxRetries, lastErr)
}

// backoffDelay is 2^(attempt-1) seconds plus up to 10% jitter, capped at 30s
func backoffDelay(attempt int) time.Duration {
	baseDelay := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
	jitter := time.Duration(0)
	if jitterMax := int64(float64(baseDelay) * 0.1); jitterMax > 0 {
		if n, err := rand.Int(rand.Reader, big.NewInt(jitterMax)); err == nil {
			jitter = time.Duration(n.Int64())
		}
	}
	return min(baseDelay+jitter, 30*time.Second)
}

// isRetryableError determines if an error should trigger a retry
func (g *GeminiProvider) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	switch apiErrorCode(err) {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	return false
}

// GetCircuitBreakerStats returns circuit breaker statistics
func (g *GeminiProvider) GetCircuitBreakerStats() map[string]any {
	return map[string]any{
		"ai_operations":    g.circuitBreaker.GetStats(),
		"model_operations": g.modelBreaker.GetModelStats(),
		"overall_healthy":  g.circuitBreaker.IsHealthy() && g.modelBreaker.IsModelHealthy(),
	}
}

// Close implements AIProvider interface
func (g *GeminiProvider) Close() error {
	return nil
}

// buildSuggestionSchema constrains the model to the {"suggestions": [...]}
// envelope. Output is still validated on receipt since the schema is advisory.
func (g *GeminiProvider) buildSuggestionSchema() *genai.GenerateContentConfig {
	suggestionTypes := make([]string, len(types.SuggestionTypes))
	for i, t := range types.SuggestionTypes {
		suggestionTypes[i] = string(t)
	}

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"suggestions": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"section":        {Type: genai.TypeString},
							"originalText":   {Type: genai.TypeString},
							"suggestionType": {Type: genai.TypeString, Enum: suggestionTypes},
							"suggestedText":  {Type: genai.TypeString},
							"reasoning":      {Type: genai.TypeString},
						},
						Required: []string{"section", "suggestionType", "suggestedText", "reasoning"},
					},
				},
			},
			Required: []string{"suggestions"},
		},
	}

	if *g.config.Temperature > 0 {
		cfg.Temperature = g.config.Temperature
	}

	return cfg
}

// getPrompts returns the system prompt and the user prompt with payload filled in
func (g *GeminiProvider) getPrompts(payload string) (string, string) {
	loaded := config.GetPromptsForOperation(g.operationType)

	systemPrompt := resolvePrompt(loaded.SystemPrompt, g.config.CustomPrompts.SystemPrompt, DefaultPrompts.System)
	userTemplate := resolvePrompt(loaded.UserPrompt, g.config.CustomPrompts.UserPrompt, DefaultPrompts.User)

	return systemPrompt, fmt.Sprintf(userTemplate, payload)
}

// extractTokenUsage extracts token usage information from Gemini API response
func extractTokenUsage(result *genai.GenerateContentResponse) *types.TokenUsage {
	if result == nil || result.UsageMetadata == nil {
		return nil
	}

	usage := result.UsageMetadata
	return &types.TokenUsage{
		InputTokens:  int64(usage.PromptTokenCount),
		OutputTokens: int64(usage.CandidatesTokenCount),
		TotalTokens:  int64(usage.TotalTokenCount),
	}
}
