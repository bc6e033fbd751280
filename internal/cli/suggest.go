package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"cvcoach/internal/ai"
	"cvcoach/internal/common"
	"cvcoach/internal/config"
	"cvcoach/internal/document"
	"cvcoach/internal/errors"
	"cvcoach/internal/suggestions"
	"cvcoach/internal/types"

	"github.com/spf13/cobra"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest [cv-file...]",
	Short: "Get AI suggestions for one or more CV documents",
	Long: `Send each structured CV (JSON) to the configured AI model and print the
suggestions it returns. Every suggestion names the field it applies to, the
original and proposed text, and the reasoning behind it.

Malformed model output is retried up to suggestions.maxAttempts times. Several
files are processed concurrently, up to --concurrency at once.

Save the JSON report and pass it to "cvcoach apply" to accept suggestions.`,
	Args: cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfigFromContext(cmd.Context())
		if err != nil {
			return err
		}
		// Apply default format if not specified
		if suggestConfig.OutputFormat == "" {
			suggestConfig.OutputFormat = cfg.App.DefaultFormat
		}
		if suggestConfig.Concurrency == 0 {
			suggestConfig.Concurrency = cfg.App.Concurrency
		}
		if _, err := common.ValidateSections(suggestSections); err != nil {
			return err
		}
		// Validate format against supported formats
		return common.ValidateOutputFormat(suggestConfig.OutputFormat, cfg.App.SupportedFormats)
	},
	RunE: runSuggest,
}

var (
	suggestConfig   common.CommandConfig
	suggestSections []string
)

// newGenerator builds the suggestion generator; tests replace it.
var newGenerator = func(cfg *config.Config, logger *errors.Logger) (suggestions.Generator, func() error, error) {
	suggestAIConfig := cfg.GetSuggestConfig()
	aiService, err := ai.NewService(&suggestAIConfig, "suggest", logger)
	if err != nil {
		return nil, nil, err
	}
	return aiService, aiService.Close, nil
}

func init() {
	suggestCmd.Flags().StringVarP(&suggestConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	suggestCmd.Flags().StringVar(&suggestConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")
	suggestCmd.Flags().StringSliceVar(&suggestSections, "sections", nil, "Sections to evaluate (default from config, or all)")
	suggestCmd.Flags().IntVarP(&suggestConfig.Concurrency, "concurrency", "c", 0, "Files processed at once (default from config)")

	// Add completion for format flag
	_ = suggestCmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg, err := getConfigFromContext(cmd.Context())
		if err != nil {
			return []string{}, cobra.ShellCompDirectiveError
		}
		return common.GetSupportedFormats(cfg.App.SupportedFormats), cobra.ShellCompDirectiveNoFileComp
	})
	_ = suggestCmd.RegisterFlagCompletionFunc("sections", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		names := make([]string, len(document.AllSections))
		for i, s := range document.AllSections {
			names[i] = string(s)
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	})
}

func runSuggest(cmd *cobra.Command, args []string) error {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return err
	}
	logger, err := getLoggerFromContext(cmd.Context())
	if err != nil {
		return err
	}

	names := suggestSections
	if len(names) == 0 {
		names = cfg.SuggestionSections()
	}
	sections, err := common.ValidateSections(names)
	if err != nil {
		return err
	}

	generator, closeGenerator, err := newGenerator(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create AI service: %w", err)
	}
	defer func() {
		if err := closeGenerator(); err != nil {
			logger.Warn("Failed to close AI service", "error", err)
		}
	}()

	fetcher := suggestions.NewFetcher(generator, cfg.Suggestions.MaxAttempts, logger).
		WithTimeout(cfg.Suggestions.RequestTimeout)
	suggestConfig.MaxFileSize = cfg.App.MaxFileSize

	operation := func(ctx context.Context, file string, doc document.Document) (types.SuggestionReport, *types.TokenUsage, error) {
		req := suggestions.BuildRequest(doc, sections...)
		if req.IsEmpty() {
			return types.SuggestionReport{}, nil, errors.NewValidationError(errors.ErrCodeInvalidRequest,
				"the document has no content to evaluate", nil)
		}

		result, err := fetcher.Fetch(ctx, req)
		if err != nil {
			return types.SuggestionReport{}, result.Usage, err
		}
		logger.Info("Suggestions received",
			"file", file,
			"count", len(result.Suggestions),
			"dropped", result.Dropped,
			"attempts", result.Attempts)
		return types.SuggestionReport{
			Source:      filepath.Base(file),
			Suggestions: result.Suggestions,
			Attempts:    result.Attempts,
			Dropped:     result.Dropped,
			Usage:       result.Usage,
		}, result.Usage, nil
	}

	logDetails := func(files []string, cfg common.CommandConfig) {
		logger.Info("Starting CV suggestion run",
			"files", len(files),
			"sections", len(sections),
			"concurrency", cfg.Concurrency,
			"output_format", cfg.OutputFormat)
	}

	err = common.RunDocumentCommand(cmd.Context(), logger, suggestConfig, args, operation, logDetails)
	if err != nil {
		return fmt.Errorf("failed to get suggestions: %w", err)
	}
	logger.Info("CV suggestion run completed successfully")
	return nil
}
