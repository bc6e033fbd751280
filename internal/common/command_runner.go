package common

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"cvcoach/internal/document"
	"cvcoach/internal/errors"
	"cvcoach/internal/types"
)

// DocumentOperationFunc runs one AI operation for a document read from file.
type DocumentOperationFunc[Output any] func(ctx context.Context, file string, doc document.Document) (Output, *types.TokenUsage, error)

// LogDetailsFunc defines how to log the start of an operation.
type LogDetailsFunc func(files []string, cfg CommandConfig)

// RunDocumentCommand reads every file in args as a CV document, runs
// operation over them with at most cmdConfig.Concurrency in flight and
// writes the results in argument order. The first failure cancels the rest.
func RunDocumentCommand[Output any](
	ctx context.Context,
	logger *errors.Logger,
	cmdConfig CommandConfig,
	args []string,
	operation DocumentOperationFunc[Output],
	logDetails LogDetailsFunc,
) error {
	// Pass the logger when creating helpers
	fileProcessor := NewFileProcessor(logger, cmdConfig.MaxFileSize)
	outputHandler := NewOutputHandler(logger)

	docs, err := fileProcessor.ReadDocuments(args...)
	if err != nil {
		return err
	}

	logDetails(args, cmdConfig)

	results := make([]Output, len(docs))
	usages := make([]*types.TokenUsage, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	limit := cmdConfig.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, doc := range docs {
		g.Go(func() error {
			result, usage, err := operation(gctx, args[i], doc)
			if err != nil {
				return fmt.Errorf("%s: %w", args[i], err)
			}
			results[i] = result
			usages[i] = usage
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Report token usage
	total := &types.TokenUsage{}
	for _, u := range usages {
		total.Add(u)
	}
	if total.TotalTokens > 0 {
		if logger != nil {
			logger.Info("AI token usage", "input_tokens", total.InputTokens, "output_tokens", total.OutputTokens, "total_tokens", total.TotalTokens)
		} else {
			fmt.Fprintf(os.Stderr, "AI token usage: input=%d, output=%d, total=%d\n", total.InputTokens, total.OutputTokens, total.TotalTokens)
		}
	}

	items := make([]any, len(results))
	for i, r := range results {
		items[i] = r
	}
	return outputHandler.HandleOutputs(items, cmdConfig)
}
