package ai

// Prompts holds the system instruction and user template for suggestion requests
type Prompts struct {
	System string
	User   string
}

// DefaultPrompts are used when no custom prompt is configured. User takes a
// single %s verb, replaced with the JSON request body.
var DefaultPrompts = Prompts{
	System: `You are an experienced technical recruiter and CV editor who helps software developers improve their CVs. Your core principles are:

- NEVER invent employers, titles, dates, degrees, skills or achievements
- Every suggestion must be grounded in content already present in the CV
- Prefer concrete, measurable wording over generic claims
- Keep the candidate's voice; do not rewrite whole sections at once

Each suggestion targets exactly one field of the CV and is applied by the candidate field by field.`,

	User: `Review the following CV sections and propose targeted improvements.

Return a JSON object of the form {"suggestions": [...]} where every element has:
- "section": the path of the single field to change, using dots for fields and brackets for list positions, for example "about", "contactInfo.email", "experience[0].title" or "experience[2].responsibilities[0]"
- "originalText": the current text of that field, or "" when adding content
- "suggestionType": one of "wording", "add_content", "remove_content", "reorder", "format"
- "suggestedText": the full replacement text for that field
- "reasoning": one or two sentences explaining why the change helps

Only reference fields and list positions that exist in the input. Return {"suggestions": []} if nothing needs to change.

CV sections:
%s`,
}

// resolvePrompt selects the prompt to use in priority order: a prompt loaded
// from a file, one set inline in configuration, then the built-in default.
func resolvePrompt(loadedFromFile, fromConfig, fromDefault string) string {
	if loadedFromFile != "" {
		return loadedFromFile
	}
	if fromConfig != "" {
		return fromConfig
	}
	return fromDefault
}
