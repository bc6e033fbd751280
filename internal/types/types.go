package types

import "cvcoach/internal/document"

// SuggestionType classifies the edit a suggestion proposes
type SuggestionType string

const (
	SuggestionWording       SuggestionType = "wording"
	SuggestionAddContent    SuggestionType = "add_content"
	SuggestionRemoveContent SuggestionType = "remove_content"
	SuggestionReorder       SuggestionType = "reorder"
	SuggestionFormat        SuggestionType = "format"
)

// SuggestionTypes lists every accepted suggestion type
var SuggestionTypes = []SuggestionType{
	SuggestionWording,
	SuggestionAddContent,
	SuggestionRemoveContent,
	SuggestionReorder,
	SuggestionFormat,
}

// Valid reports whether t is a known suggestion type
func (t SuggestionType) Valid() bool {
	switch t {
	case SuggestionWording, SuggestionAddContent, SuggestionRemoveContent, SuggestionReorder, SuggestionFormat:
		return true
	}
	return false
}

// Suggestion is a single AI-proposed edit. Section is a document path such
// as "experience[2].responsibilities[0]".
type Suggestion struct {
	Section        string         `json:"section"`
	OriginalText   string         `json:"originalText"`
	SuggestionType SuggestionType `json:"suggestionType"`
	SuggestedText  string         `json:"suggestedText"`
	Reasoning      string         `json:"reasoning"`
}

// SuggestionRequest is the payload sent to the AI model. Sections without
// content are omitted rather than sent as null.
type SuggestionRequest struct {
	ContactInfo  *document.ContactInfo  `json:"contactInfo,omitempty"`
	About        string                 `json:"about,omitempty"`
	Skills       []document.Skill       `json:"skills,omitempty"`
	Experience   []document.Experience  `json:"experience,omitempty"`
	Education    []document.Education   `json:"education,omitempty"`
	Achievements []document.Achievement `json:"achievements,omitempty"`
	Projects     []document.Project     `json:"projects,omitempty"`
	CV           *document.Metadata     `json:"cv,omitempty"`
}

// IsEmpty reports whether the request carries no section at all
func (r SuggestionRequest) IsEmpty() bool {
	return r.ContactInfo == nil && r.About == "" && len(r.Skills) == 0 &&
		len(r.Experience) == 0 && len(r.Education) == 0 && len(r.Achievements) == 0 &&
		len(r.Projects) == 0 && r.CV == nil
}

// SuggestionResponse is the shape the AI model must return
type SuggestionResponse struct {
	Suggestions []Suggestion `json:"suggestions"`
}

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
	TotalTokens  int64 `json:"totalTokens"`
}

// Add accumulates other into u
func (u *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// Completion is the raw text returned by a provider for one attempt
type Completion struct {
	Text  string
	Usage *TokenUsage
}

// ModelInfo describes the model behind a provider and whether it answered
// the last availability check
type ModelInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
	Provider    string `json:"provider"`
	Available   bool   `json:"available"`
	Error       string `json:"error,omitempty"`
}

// SuggestionReport is the output of the suggest command
type SuggestionReport struct {
	Source      string       `json:"source,omitempty"`
	Suggestions []Suggestion `json:"suggestions"`
	Attempts    int          `json:"attempts"`
	Dropped     int          `json:"dropped,omitempty"`
	Usage       *TokenUsage  `json:"usage,omitempty"`
}
