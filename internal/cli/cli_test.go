package cli

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvcoach/internal/common"
	"cvcoach/internal/config"
	"cvcoach/internal/document"
	"cvcoach/internal/errors"
	"cvcoach/internal/suggestions"
	"cvcoach/internal/types"
)

func testContext(cfg *config.Config) context.Context {
	logger := errors.NewLoggerWithWriter(io.Discard, slog.LevelDebug)
	ctx := context.WithValue(context.Background(), configKey, cfg)
	return context.WithValue(ctx, loggerKey, logger)
}

func testDocument() document.Document {
	return document.Document{
		About: "I write code.",
		Experience: []document.Experience{
			{Title: "Engineer", Company: "Acme", Responsibilities: []string{"Wrote services", "Fixed bugs"}},
		},
	}
}

func writeJSON(t *testing.T, dir, name string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func jsonOutput(path string) common.CommandConfig {
	return common.CommandConfig{OutputFile: path, OutputFormat: "json", Concurrency: 2}
}

func TestApplySuggestions(t *testing.T) {
	list := []types.Suggestion{
		{Section: "about", OriginalText: "I write code.", SuggestionType: types.SuggestionWording, SuggestedText: "Backend engineer.", Reasoning: "specific"},
		{Section: "experience[0].responsibilities[1]", OriginalText: "Fixed bugs", SuggestionType: types.SuggestionWording, SuggestedText: "Cut open bugs by 40%", Reasoning: "quantify"},
		{Section: "experience[3].title", OriginalText: "", SuggestionType: types.SuggestionWording, SuggestedText: "Lead", Reasoning: "missing"},
	}

	tests := []struct {
		name           string
		indices        []int
		wantAbout      string
		wantResp       string
		wantUnresolved []int
	}{
		{name: "none", indices: nil, wantAbout: "I write code.", wantResp: "Fixed bugs"},
		{name: "first only", indices: []int{0}, wantAbout: "Backend engineer.", wantResp: "Fixed bugs"},
		{name: "all", indices: []int{0, 1, 2}, wantAbout: "Backend engineer.", wantResp: "Cut open bugs by 40%", wantUnresolved: []int{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testDocument()
			updated, unresolved, err := applySuggestions(doc, list, tt.indices)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAbout, updated.About)
			assert.Equal(t, tt.wantResp, updated.Experience[0].Responsibilities[1])
			assert.Equal(t, tt.wantUnresolved, unresolved)
			assert.Empty(t, updated.Experience[0].TempID)
			assert.Equal(t, "I write code.", doc.About, "input document is not modified")
		})
	}
}

func TestStaleSuggestions(t *testing.T) {
	list := []types.Suggestion{
		{Section: "about", OriginalText: "I write code."},
		{Section: "experience[0].responsibilities[0]", OriginalText: "Wrote a service"},
		{Section: "experience[0].title", OriginalText: ""},
		{Section: "experience[2].title", OriginalText: "Lead"},
		{Section: "experience[", OriginalText: "x"},
	}

	tests := []struct {
		name    string
		indices []int
		want    []int
	}{
		{name: "matching text", indices: []int{0}, want: nil},
		{name: "changed text", indices: []int{0, 1}, want: []int{1}},
		{name: "no original text", indices: []int{2}, want: nil},
		{name: "unresolved path", indices: []int{3}, want: nil},
		{name: "malformed path", indices: []int{4}, want: nil},
		{name: "only chosen indices", indices: []int{2, 3, 4}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, staleSuggestions(testDocument(), list, tt.indices))
		})
	}
}

func TestApplyServeFlags(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("port", "", "")
	cmd.Flags().String("host", "", "")
	cmd.Flags().String("tls-mode", "", "")
	cmd.Flags().String("cert-file", "", "")
	cmd.Flags().String("key-file", "", "")
	cmd.Flags().String("session-backend", "", "")
	require.NoError(t, cmd.Flags().Set("port", "9090"))
	require.NoError(t, cmd.Flags().Set("session-backend", "redis"))

	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "8080"
	cfg.Storage.Sessions.Backend = "memory"

	applyServeFlags(cmd, cfg)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "unset flags keep config values")
	assert.Equal(t, "redis", cfg.Storage.Sessions.Backend)
}

func TestRunSuggest(t *testing.T) {
	var calls atomic.Int32
	orig := newGenerator
	newGenerator = func(*config.Config, *errors.Logger) (suggestions.Generator, func() error, error) {
		gen := suggestions.GeneratorFunc(func(context.Context, types.SuggestionRequest) (types.Completion, error) {
			calls.Add(1)
			return types.Completion{Text: `{"suggestions":[{"section":"about","originalText":"I write code.","suggestionType":"wording","suggestedText":"Backend engineer.","reasoning":"specific"}]}`}, nil
		})
		return gen, func() error { return nil }, nil
	}
	origConfig := suggestConfig
	t.Cleanup(func() {
		newGenerator = orig
		suggestConfig = origConfig
	})

	dir := t.TempDir()
	first := writeJSON(t, dir, "first.json", testDocument())
	second := writeJSON(t, dir, "second.json", testDocument())
	out := filepath.Join(dir, "report.json")

	suggestConfig = jsonOutput(out)

	cmd := &cobra.Command{}
	cmd.SetContext(testContext(&config.Config{}))
	require.NoError(t, runSuggest(cmd, []string{first, second}))

	assert.Equal(t, int32(2), calls.Load())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var reports []types.SuggestionReport
	require.NoError(t, json.Unmarshal(data, &reports))
	require.Len(t, reports, 2)
	assert.Equal(t, "first.json", reports[0].Source)
	assert.Equal(t, "second.json", reports[1].Source)
	require.Len(t, reports[0].Suggestions, 1)
	assert.Equal(t, "Backend engineer.", reports[0].Suggestions[0].SuggestedText)
	assert.Equal(t, 1, reports[0].Attempts)
}

func TestRunSuggestEmptyDocument(t *testing.T) {
	orig := newGenerator
	newGenerator = func(*config.Config, *errors.Logger) (suggestions.Generator, func() error, error) {
		gen := suggestions.GeneratorFunc(func(context.Context, types.SuggestionRequest) (types.Completion, error) {
			t.Error("generator must not be called for an empty document")
			return types.Completion{}, nil
		})
		return gen, func() error { return nil }, nil
	}
	origConfig := suggestConfig
	t.Cleanup(func() {
		newGenerator = orig
		suggestConfig = origConfig
	})

	dir := t.TempDir()
	empty := writeJSON(t, dir, "empty.json", document.Document{})
	suggestConfig = jsonOutput(filepath.Join(dir, "out.json"))

	cmd := &cobra.Command{}
	cmd.SetContext(testContext(&config.Config{}))
	err := runSuggest(cmd, []string{empty})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest))
}

func TestRunApply(t *testing.T) {
	origConfig, origAccept, origAll := applyConfig, applyAccept, applyAll
	t.Cleanup(func() {
		applyConfig, applyAccept, applyAll = origConfig, origAccept, origAll
	})

	dir := t.TempDir()
	cv := writeJSON(t, dir, "cv.json", testDocument())
	report := writeJSON(t, dir, "report.json", types.SuggestionReport{
		Source: "cv.json",
		Suggestions: []types.Suggestion{
			{Section: "about", OriginalText: "I write code.", SuggestionType: types.SuggestionWording, SuggestedText: "Backend engineer.", Reasoning: "specific"},
			{Section: "experience[0].title", OriginalText: "Engineer", SuggestionType: types.SuggestionWording, SuggestedText: "Senior Engineer", Reasoning: "seniority"},
		},
		Attempts: 1,
	})
	out := filepath.Join(dir, "updated.json")

	applyConfig = jsonOutput(out)
	applyAccept = "1"
	applyAll = false

	cmd := &cobra.Command{}
	cmd.SetContext(testContext(&config.Config{}))
	require.NoError(t, runApply(cmd, []string{cv, report}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var updated document.Document
	require.NoError(t, json.Unmarshal(data, &updated))
	assert.Equal(t, "I write code.", updated.About)
	assert.Equal(t, "Senior Engineer", updated.Experience[0].Title)

	applyAccept = "5"
	err = runApply(cmd, []string{cv, report})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest))
}

func TestGetFromContext(t *testing.T) {
	_, err := getConfigFromContext(context.Background())
	assert.Error(t, err)
	_, err = getLoggerFromContext(context.Background())
	assert.Error(t, err)

	ctx := testContext(&config.Config{})
	cfg, err := getConfigFromContext(ctx)
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}
