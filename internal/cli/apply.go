package cli

import (
	"fmt"

	"cvcoach/internal/common"
	"cvcoach/internal/document"
	"cvcoach/internal/errors"
	"cvcoach/internal/suggestions"
	"cvcoach/internal/types"

	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply [cv-file] [suggestions-file]",
	Short: "Apply chosen suggestions to a CV document",
	Long: `Apply suggestions from a report written by "cvcoach suggest" to the CV and
print the updated document. Suggestions are chosen by their index in the
report with --accept, or all at once with --all.

Suggestions whose field no longer exists in the document are marked applied
but leave the document unchanged; they are listed as warnings.`,
	Args: cobra.ExactArgs(2),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfigFromContext(cmd.Context())
		if err != nil {
			return err
		}
		if applyAccept == "" && !applyAll {
			return fmt.Errorf("nothing to apply: pass --accept or --all")
		}
		if applyConfig.OutputFormat == "" {
			applyConfig.OutputFormat = cfg.App.DefaultFormat
		}
		return common.ValidateOutputFormat(applyConfig.OutputFormat, cfg.App.SupportedFormats)
	},
	RunE: runApply,
}

var (
	applyConfig common.CommandConfig
	applyAccept string
	applyAll    bool
)

func init() {
	applyCmd.Flags().StringVarP(&applyConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	applyCmd.Flags().StringVar(&applyConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")
	applyCmd.Flags().StringVar(&applyAccept, "accept", "", "Comma-separated suggestion indices to accept, e.g. 0,2")
	applyCmd.Flags().BoolVar(&applyAll, "all", false, "Accept every suggestion")
	applyCmd.MarkFlagsMutuallyExclusive("accept", "all")
}

func runApply(cmd *cobra.Command, args []string) error {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return err
	}
	logger, err := getLoggerFromContext(cmd.Context())
	if err != nil {
		return err
	}

	fp := common.NewFileProcessor(logger, cfg.App.MaxFileSize)
	doc, err := fp.ReadDocument(args[0])
	if err != nil {
		return err
	}
	list, err := fp.ReadSuggestions(args[1])
	if err != nil {
		return err
	}

	var indices []int
	if applyAll {
		indices = make([]int, len(list))
		for i := range list {
			indices[i] = i
		}
	} else {
		indices, err = common.ParseIndexList(applyAccept, len(list))
		if err != nil {
			return errors.NewValidationError(errors.ErrCodeInvalidRequest, err.Error(), err)
		}
	}

	for _, i := range staleSuggestions(doc, list, indices) {
		logger.Warn("Suggestion was written against different text",
			"index", i, "section", list[i].Section)
	}

	updated, unresolved, err := applySuggestions(doc, list, indices)
	if err != nil {
		return err
	}
	for _, i := range unresolved {
		logger.Warn("Suggestion does not address a field in the document",
			"index", i, "section", list[i].Section)
	}
	logger.Info("Suggestions applied",
		"accepted", len(indices),
		"unresolved", len(unresolved),
		"available", len(list))

	return common.NewOutputHandler(logger).HandleOutput(updated, applyConfig)
}

// applySuggestions accepts the suggestions at indices in order through a
// session and returns the indices whose path could not be resolved.
func applySuggestions(doc document.Document, list []types.Suggestion, indices []int) (document.Document, []int, error) {
	sess := suggestions.NewSession(doc)
	sess.ReceiveSuggestions(list, 0, 0)

	var unresolved []int
	for _, i := range indices {
		t, err := sess.Accept(sess.Entries[i].ID)
		if err != nil {
			return document.Document{}, nil, err
		}
		if !t.PathResolved {
			unresolved = append(unresolved, i)
		}
	}

	out := sess.Document.Clone()
	out.StripTempIDs()
	return out, unresolved, nil
}

// staleSuggestions returns the indices whose recorded original text no
// longer matches the document. Suggestions without original text, or whose
// path does not resolve, are not reported here.
func staleSuggestions(doc document.Document, list []types.Suggestion, indices []int) []int {
	var stale []int
	for _, i := range indices {
		s := list[i]
		if s.OriginalText == "" {
			continue
		}
		path, err := document.ParsePath(s.Section)
		if err != nil {
			continue
		}
		if current, ok := doc.Get(path); ok && current != s.OriginalText {
			stale = append(stale, i)
		}
	}
	return stale
}
