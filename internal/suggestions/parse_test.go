package suggestions

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvcoach/internal/errors"
	"cvcoach/internal/types"
)

const suggestionA = `{"section":"about","originalText":"old","suggestionType":"wording","suggestedText":"new","reasoning":"clearer"}`
const suggestionB = `{"section":"experience[0].responsibilities[1]","originalText":"fixed bugs","suggestionType":"add_content","suggestedText":"Fixed 120 bugs","reasoning":"quantify"}`

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"whitespace", "  \n{\"a\":1}\n  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONBlock(tt.input))
		})
	}
}

func TestParseResponse_PartialMalformation(t *testing.T) {
	text := `{"suggestions": [` + suggestionA + `,` + suggestionB + `, "stray"]}`

	got, dropped, err := ParseResponse(text)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	require.Len(t, got, 2)
	assert.Equal(t, "about", got[0].Section)
	assert.Equal(t, types.SuggestionAddContent, got[1].SuggestionType)
}

func TestParseResponse_Failures(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"not json", "Sure! Here are some suggestions"},
		{"truncated", `{"suggestions": [` + suggestionA},
		{"missing key", `{"items": []}`},
		{"not array", `{"suggestions": {"section": "about"}}`},
		{"top level array", `[` + suggestionA + `]`},
		{"all elements invalid", `{"suggestions": [1, "x", null, {"reasoning": "no section"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseResponse(tt.text)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeMalformedResponse))
		})
	}
}

func TestParseResponse_EmptyArrayIsSuccess(t *testing.T) {
	got, dropped, err := ParseResponse(`{"suggestions": []}`)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, dropped)
}

func TestDecodeSuggestions(t *testing.T) {
	tests := []struct {
		name string
		elem string
		keep bool
	}{
		{"complete", suggestionA, true},
		{"minimal", `{"section":"skills[0]","reasoning":""}`, true},
		{"string", `"stray"`, false},
		{"number", `42`, false},
		{"null", `null`, false},
		{"array", `[1,2]`, false},
		{"missing section", `{"reasoning":"x"}`, false},
		{"blank section", `{"section":"  ","reasoning":"x"}`, false},
		{"numeric section", `{"section":3,"reasoning":"x"}`, false},
		{"missing reasoning", `{"section":"about"}`, false},
		{"null reasoning", `{"section":"about","reasoning":null}`, false},
		{"object suggestedText", `{"section":"about","reasoning":"x","suggestedText":{}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, dropped := DecodeSuggestions([]json.RawMessage{json.RawMessage(tt.elem)})
			if tt.keep {
				assert.Len(t, valid, 1)
				assert.Zero(t, dropped)
			} else {
				assert.Empty(t, valid)
				assert.Equal(t, 1, dropped)
			}
		})
	}
}

func TestDecodeSuggestions_NormalizesType(t *testing.T) {
	valid, _ := DecodeSuggestions([]json.RawMessage{
		json.RawMessage(`{"section":"about","reasoning":"x"}`),
		json.RawMessage(`{"section":"about","reasoning":"x","suggestionType":"rewrite"}`),
		json.RawMessage(`{"section":"about","reasoning":"x","suggestionType":"Remove_Content"}`),
	})
	require.Len(t, valid, 3)
	assert.Equal(t, types.SuggestionWording, valid[0].SuggestionType)
	assert.Equal(t, types.SuggestionWording, valid[1].SuggestionType)
	assert.Equal(t, types.SuggestionRemoveContent, valid[2].SuggestionType)
}
