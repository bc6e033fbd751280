package ai

import (
	"context"

	"cvcoach/internal/types"
)

// AIProvider is implemented by each model backend. GenerateSuggestions
// returns the raw completion text; parsing and retrying malformed output is
// left to the caller.
type AIProvider interface {
	GenerateSuggestions(ctx context.Context, req types.SuggestionRequest) (types.Completion, error)
	GetModelInfo(ctx context.Context) *types.ModelInfo
	Close() error
}
