package formatters

import (
	"encoding/json"
	"fmt"
	"strings"

	"cvcoach/internal/document"
	"cvcoach/internal/types"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	// Register default formatters
	registry.RegisterFormatter("json", "any", &JSONFormatter{})
	registry.RegisterFormatter("text", "SuggestionReport", &ReportTextFormatter{})
	registry.RegisterFormatter("markdown", "SuggestionReport", &ReportMarkdownFormatter{})
	registry.RegisterFormatter("text", "Document", &DocumentTextFormatter{})
	registry.RegisterFormatter("markdown", "Document", &DocumentMarkdownFormatter{})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	// Try specific formatter first
	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		// Fall back to generic formatter
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	return formats
}

func getDataType(data any) string {
	switch data.(type) {
	case types.SuggestionReport, *types.SuggestionReport:
		return "SuggestionReport"
	case document.Document, *document.Document:
		return "Document"
	default:
		return "any"
	}
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData) + "\n", nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

func asReport(data any) (types.SuggestionReport, error) {
	switch r := data.(type) {
	case types.SuggestionReport:
		return r, nil
	case *types.SuggestionReport:
		if r != nil {
			return *r, nil
		}
	}
	return types.SuggestionReport{}, fmt.Errorf("expected SuggestionReport, got %T", data)
}

func asDocument(data any) (document.Document, error) {
	switch d := data.(type) {
	case document.Document:
		return d, nil
	case *document.Document:
		if d != nil {
			return *d, nil
		}
	}
	return document.Document{}, fmt.Errorf("expected Document, got %T", data)
}

// ReportTextFormatter handles text formatting for suggestion reports
type ReportTextFormatter struct{}

func (rtf *ReportTextFormatter) Format(data any) (string, error) {
	report, err := asReport(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder

	output.WriteString("=== CV SUGGESTIONS ===\n")
	if report.Source != "" {
		fmt.Fprintf(&output, "Source: %s\n", report.Source)
	}
	fmt.Fprintf(&output, "Attempts: %d\n", report.Attempts)
	if report.Dropped > 0 {
		fmt.Fprintf(&output, "Dropped malformed: %d\n", report.Dropped)
	}
	output.WriteString("\n")

	if len(report.Suggestions) == 0 {
		output.WriteString("No suggestions.\n")
		return output.String(), nil
	}

	for i, s := range report.Suggestions {
		fmt.Fprintf(&output, "%d. [%s] %s\n", i, s.SuggestionType, s.Section)
		if s.OriginalText != "" {
			fmt.Fprintf(&output, "   Original:  %s\n", s.OriginalText)
		}
		if s.SuggestedText != "" {
			fmt.Fprintf(&output, "   Suggested: %s\n", s.SuggestedText)
		}
		fmt.Fprintf(&output, "   Reasoning: %s\n\n", s.Reasoning)
	}

	return output.String(), nil
}

func (rtf *ReportTextFormatter) SupportedType() string {
	return "SuggestionReport"
}

// ReportMarkdownFormatter handles markdown formatting for suggestion reports
type ReportMarkdownFormatter struct{}

func (rmf *ReportMarkdownFormatter) Format(data any) (string, error) {
	report, err := asReport(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder

	output.WriteString("# CV Suggestions\n\n")
	if report.Source != "" {
		fmt.Fprintf(&output, "**Source:** %s\n\n", report.Source)
	}
	fmt.Fprintf(&output, "**Attempts:** %d", report.Attempts)
	if report.Dropped > 0 {
		fmt.Fprintf(&output, " | **Dropped:** %d", report.Dropped)
	}
	output.WriteString("\n\n")

	if len(report.Suggestions) == 0 {
		output.WriteString("## No Suggestions\n\nThe model had nothing to improve in the evaluated sections.\n")
		return output.String(), nil
	}

	for i, s := range report.Suggestions {
		fmt.Fprintf(&output, "## %d. `%s` (%s)\n\n", i, s.Section, s.SuggestionType)
		if s.OriginalText != "" {
			fmt.Fprintf(&output, "**Original:** %s\n\n", s.OriginalText)
		}
		if s.SuggestedText != "" {
			fmt.Fprintf(&output, "**Suggested:** %s\n\n", s.SuggestedText)
		}
		fmt.Fprintf(&output, "**Reasoning:** %s\n\n", s.Reasoning)
	}

	return output.String(), nil
}

func (rmf *ReportMarkdownFormatter) SupportedType() string {
	return "SuggestionReport"
}

// DocumentTextFormatter renders a CV as plain text
type DocumentTextFormatter struct{}

func (dtf *DocumentTextFormatter) Format(data any) (string, error) {
	doc, err := asDocument(data)
	if err != nil {
		return "", err
	}
	return renderDocument(doc, textStyle), nil
}

func (dtf *DocumentTextFormatter) SupportedType() string {
	return "Document"
}

// DocumentMarkdownFormatter renders a CV as markdown
type DocumentMarkdownFormatter struct{}

func (dmf *DocumentMarkdownFormatter) Format(data any) (string, error) {
	doc, err := asDocument(data)
	if err != nil {
		return "", err
	}
	return renderDocument(doc, markdownStyle), nil
}

func (dmf *DocumentMarkdownFormatter) SupportedType() string {
	return "Document"
}

type style struct {
	title   func(string) string
	heading func(string) string
	item    string
}

var textStyle = style{
	title:   func(s string) string { return strings.ToUpper(s) + "\n" },
	heading: func(s string) string { return "=== " + strings.ToUpper(s) + " ===\n" },
	item:    "- ",
}

var markdownStyle = style{
	title:   func(s string) string { return "# " + s + "\n" },
	heading: func(s string) string { return "## " + s + "\n\n" },
	item:    "- ",
}

func renderDocument(doc document.Document, st style) string {
	var output strings.Builder

	if c := doc.ContactInfo; !c.IsEmpty() {
		if c.Name != "" {
			output.WriteString(st.title(c.Name))
		}
		for _, v := range []string{c.Email, c.Phone, c.Location, c.LinkedIn, c.GitHub, c.Website} {
			if v != "" {
				output.WriteString(v + "\n")
			}
		}
		output.WriteString("\n")
	}

	if strings.TrimSpace(doc.About) != "" {
		output.WriteString(st.heading("About"))
		output.WriteString(doc.About + "\n\n")
	}

	if len(doc.Skills) > 0 {
		output.WriteString(st.heading("Skills"))
		for _, s := range doc.Skills {
			line := s.Name
			if s.Level != "" {
				line += " (" + s.Level + ")"
			}
			output.WriteString(st.item + line + "\n")
		}
		output.WriteString("\n")
	}

	if len(doc.Experience) > 0 {
		output.WriteString(st.heading("Experience"))
		for _, e := range doc.Experience {
			end := e.EndDate
			if e.Current {
				end = ""
			}
			output.WriteString(joinNonEmpty(" | ", e.Title, e.Company, dateRange(e.StartDate, end)) + "\n")
			if e.Description != "" {
				output.WriteString(e.Description + "\n")
			}
			for _, h := range e.Responsibilities {
				output.WriteString(st.item + h + "\n")
			}
			output.WriteString("\n")
		}
	}

	if len(doc.Education) > 0 {
		output.WriteString(st.heading("Education"))
		for _, e := range doc.Education {
			output.WriteString(joinNonEmpty(" | ", joinNonEmpty(", ", e.Degree, e.FieldOfStudy), e.Institution, dateRange(e.StartDate, e.EndDate)) + "\n")
			if e.Description != "" {
				output.WriteString(e.Description + "\n")
			}
			output.WriteString("\n")
		}
	}

	if len(doc.Achievements) > 0 {
		output.WriteString(st.heading("Achievements"))
		for _, a := range doc.Achievements {
			output.WriteString(st.item + joinNonEmpty(": ", a.Title, a.Description) + "\n")
		}
		output.WriteString("\n")
	}

	if len(doc.Projects) > 0 {
		output.WriteString(st.heading("Projects"))
		for _, p := range doc.Projects {
			output.WriteString(joinNonEmpty(" | ", p.Name, p.URL) + "\n")
			if p.Description != "" {
				output.WriteString(p.Description + "\n")
			}
			for _, h := range p.Highlights {
				output.WriteString(st.item + h + "\n")
			}
			if len(p.Technologies) > 0 {
				output.WriteString(strings.Join(p.Technologies, ", ") + "\n")
			}
			output.WriteString("\n")
		}
	}

	return output.String()
}

func dateRange(start, end string) string {
	switch {
	case start == "" && end == "":
		return ""
	case end == "":
		return start + " - present"
	default:
		return start + " - " + end
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// Global formatter registry
var GlobalRegistry = NewFormatterRegistry()
