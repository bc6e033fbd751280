package suggestions

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"cvcoach/internal/errors"
	"cvcoach/internal/types"
)

// envelopeSchema checks only the top-level shape. Elements are validated
// one by one in DecodeSuggestions so a single bad element does not sink the
// whole response.
const envelopeSchema = `{
  "type": "object",
  "required": ["suggestions"],
  "properties": {
    "suggestions": {"type": "array"}
  }
}`

var envelope = mustCompileSchema(envelopeSchema)

func mustCompileSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compile suggestion envelope schema: %v", err))
	}
	return schema
}

// CleanJSONBlock strips a surrounding markdown code fence from model output.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 {
		// language tag such as "json"
		first := text[:idx]
		if len(first) < 20 && !strings.ContainsAny(first, " {[") {
			text = text[idx+1:]
		}
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// ParseResponse validates raw model output and returns the well-formed
// suggestions it contains together with the number of dropped elements.
// It fails when the text is not JSON, when the envelope is not
// {"suggestions": [...]}, or when a non-empty array has no valid element.
func ParseResponse(text string) ([]types.Suggestion, int, error) {
	cleaned := CleanJSONBlock(text)
	if cleaned == "" {
		return nil, 0, errors.NewAIError(errors.ErrCodeMalformedResponse, "empty model response", nil)
	}
	if !json.Valid([]byte(cleaned)) {
		return nil, 0, errors.NewAIError(errors.ErrCodeMalformedResponse, "model response is not valid JSON", nil).
			WithContext("response_length", len(cleaned))
	}

	result, err := envelope.Validate(gojsonschema.NewStringLoader(cleaned))
	if err != nil {
		return nil, 0, errors.NewAIError(errors.ErrCodeMalformedResponse, "failed to validate model response", err)
	}
	if !result.Valid() {
		return nil, 0, errors.NewAIError(errors.ErrCodeMalformedResponse, "model response has unexpected shape", &ShapeError{Errors: shapeErrors(result)})
	}

	var env struct {
		Suggestions []json.RawMessage `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(cleaned), &env); err != nil {
		return nil, 0, errors.NewAIError(errors.ErrCodeMalformedResponse, "failed to decode model response", err)
	}

	valid, dropped := DecodeSuggestions(env.Suggestions)
	if len(valid) == 0 && dropped > 0 {
		return nil, dropped, errors.NewAIError(errors.ErrCodeMalformedResponse, "model response contained no usable suggestions", nil).
			WithContext("dropped", dropped)
	}
	return valid, dropped, nil
}

// ShapeError lists the schema violations of a response envelope.
type ShapeError struct {
	Errors []FieldError
}

// FieldError is a single violation at a JSON field.
type FieldError struct {
	Field   string
	Message string
}

func (e *ShapeError) Error() string {
	var sb strings.Builder
	sb.WriteString("shape validation failed:")
	for _, fe := range e.Errors {
		fmt.Fprintf(&sb, " %s: %s;", fe.Field, fe.Message)
	}
	return sb.String()
}

func shapeErrors(result *gojsonschema.Result) []FieldError {
	out := make([]FieldError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		out = append(out, FieldError{Field: field, Message: desc.Description()})
	}
	return out
}

// rawSuggestion mirrors types.Suggestion with every field optional so that
// missing and mistyped fields can be told apart.
type rawSuggestion struct {
	Section        *string `json:"section"`
	OriginalText   *string `json:"originalText"`
	SuggestionType *string `json:"suggestionType"`
	SuggestedText  *string `json:"suggestedText"`
	Reasoning      *string `json:"reasoning"`
}

// DecodeSuggestions decodes each element on its own and keeps those that
// are objects with a non-blank string section and a string reasoning.
func DecodeSuggestions(raw []json.RawMessage) ([]types.Suggestion, int) {
	valid := make([]types.Suggestion, 0, len(raw))
	dropped := 0
	for _, elem := range raw {
		s, ok := decodeSuggestion(elem)
		if !ok {
			dropped++
			continue
		}
		valid = append(valid, s)
	}
	return valid, dropped
}

func decodeSuggestion(elem json.RawMessage) (types.Suggestion, bool) {
	// Unmarshal into a struct also accepts null; require an object.
	trimmed := strings.TrimSpace(string(elem))
	if !strings.HasPrefix(trimmed, "{") {
		return types.Suggestion{}, false
	}

	var r rawSuggestion
	if err := json.Unmarshal(elem, &r); err != nil {
		return types.Suggestion{}, false
	}
	if r.Section == nil || strings.TrimSpace(*r.Section) == "" || r.Reasoning == nil {
		return types.Suggestion{}, false
	}

	s := types.Suggestion{
		Section:        strings.TrimSpace(*r.Section),
		Reasoning:      *r.Reasoning,
		SuggestionType: types.SuggestionWording,
	}
	if r.OriginalText != nil {
		s.OriginalText = *r.OriginalText
	}
	if r.SuggestedText != nil {
		s.SuggestedText = *r.SuggestedText
	}
	if r.SuggestionType != nil {
		if t := types.SuggestionType(strings.ToLower(strings.TrimSpace(*r.SuggestionType))); t.Valid() {
			s.SuggestionType = t
		}
	}
	return s, true
}
