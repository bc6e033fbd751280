package suggestions

import (
	"context"
	stderrors "errors"
	"time"

	"cvcoach/internal/errors"
	"cvcoach/internal/types"
)

// DefaultMaxAttempts bounds how many times a malformed response is retried.
const DefaultMaxAttempts = 7

// Generator produces raw model output for a suggestion request.
type Generator interface {
	GenerateSuggestions(ctx context.Context, req types.SuggestionRequest) (types.Completion, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req types.SuggestionRequest) (types.Completion, error)

func (f GeneratorFunc) GenerateSuggestions(ctx context.Context, req types.SuggestionRequest) (types.Completion, error) {
	return f(ctx, req)
}

// Result is the outcome of Fetch. Attempts is set on failure as well.
type Result struct {
	Suggestions []types.Suggestion
	Attempts    int
	Dropped     int
	Usage       *types.TokenUsage
}

// Fetcher calls a Generator until it returns a well-formed response or the
// attempt budget is spent. There is no delay between attempts.
type Fetcher struct {
	generator   Generator
	maxAttempts int
	timeout     time.Duration
	logger      *errors.Logger
}

// NewFetcher creates a Fetcher. A non-positive maxAttempts selects
// DefaultMaxAttempts.
func NewFetcher(generator Generator, maxAttempts int, logger *errors.Logger) *Fetcher {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Fetcher{generator: generator, maxAttempts: maxAttempts, logger: logger}
}

// WithTimeout bounds a whole Fetch, across all attempts. Zero means no bound.
func (f *Fetcher) WithTimeout(d time.Duration) *Fetcher {
	f.timeout = d
	return f
}

// MaxAttempts returns the attempt budget.
func (f *Fetcher) MaxAttempts() int {
	return f.maxAttempts
}

// Fetch sends req and returns parsed suggestions. On terminal failure the
// error is an AI_UNAVAILABLE AppError and the returned Result still reports
// how many attempts were made.
func (f *Fetcher) Fetch(ctx context.Context, req types.SuggestionRequest) (*Result, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	result := &Result{}
	var lastErr error

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		result.Attempts = attempt

		completion, err := f.generator.GenerateSuggestions(ctx, req)
		if completion.Usage != nil {
			if result.Usage == nil {
				result.Usage = &types.TokenUsage{}
			}
			result.Usage.Add(completion.Usage)
		}
		if err == nil {
			var suggestions []types.Suggestion
			var dropped int
			suggestions, dropped, err = ParseResponse(completion.Text)
			if err == nil {
				result.Suggestions = suggestions
				result.Dropped = dropped
				if dropped > 0 {
					f.logger.Debug("Dropped malformed suggestions", "dropped", dropped, "kept", len(suggestions), "attempt", attempt)
				}
				return result, nil
			}
		}

		lastErr = err
		f.logger.Warn("Suggestion attempt failed",
			"attempt", attempt,
			"max_attempts", f.maxAttempts,
			"error", err.Error())

		if !retryable(err) {
			break
		}
	}

	return result, errors.NewAIError(errors.ErrCodeAIUnavailable, errors.MessageAIUnavailable, lastErr).
		WithContext("attempts", result.Attempts)
}

// retryable reports whether another attempt could succeed. An open circuit,
// a rejected request and cancellation end the loop early.
func retryable(err error) bool {
	switch {
	case errors.HasCode(err, errors.ErrCodeAICircuitOpen),
		errors.HasCode(err, errors.ErrCodeAIRequestRejected):
		return false
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
