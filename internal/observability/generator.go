package observability

import (
	"context"

	"cvcoach/internal/types"
)

// SuggestionGenerator is the single-attempt model call being instrumented.
type SuggestionGenerator interface {
	GenerateSuggestions(ctx context.Context, req types.SuggestionRequest) (types.Completion, error)
}

// TracedGenerator records latency, errors and token usage for every model
// attempt made through it.
type TracedGenerator struct {
	next SuggestionGenerator
	om   *ObservabilityManager
}

// InstrumentGenerator wraps next. A nil manager returns next unchanged.
func InstrumentGenerator(next SuggestionGenerator, om *ObservabilityManager) SuggestionGenerator {
	if om == nil {
		return next
	}
	return &TracedGenerator{next: next, om: om}
}

// GenerateSuggestions forwards to the wrapped generator inside an "ai.suggest" span.
func (g *TracedGenerator) GenerateSuggestions(ctx context.Context, req types.SuggestionRequest) (types.Completion, error) {
	var completion types.Completion
	err := g.om.GetMetrics().TrackAIOperationWithTokens(ctx, "suggest", func(ctx context.Context) *AIOperationResult {
		var err error
		completion, err = g.next.GenerateSuggestions(ctx, req)
		return &AIOperationResult{Error: err, TokenUsage: completion.Usage}
	}, g.om)
	return completion, err
}
