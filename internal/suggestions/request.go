// Package suggestions implements the CV suggestion workflow: building the
// model request, fetching and filtering suggestions, and resolving them
// against an editing session.
package suggestions

import (
	"slices"
	"strings"

	"cvcoach/internal/document"
	"cvcoach/internal/types"
)

// BuildRequest serializes the populated sections of doc. When sections is
// empty every section is considered. List sections are sent whole so that
// indices in returned suggestion paths match the document.
func BuildRequest(doc document.Document, sections ...document.Section) types.SuggestionRequest {
	doc = doc.Clone()
	doc.StripTempIDs()

	want := func(s document.Section) bool {
		return len(sections) == 0 || slices.Contains(sections, s)
	}

	var req types.SuggestionRequest
	if want(document.SectionContactInfo) && !doc.ContactInfo.IsEmpty() {
		req.ContactInfo = doc.ContactInfo
	}
	if want(document.SectionAbout) && strings.TrimSpace(doc.About) != "" {
		req.About = doc.About
	}
	if want(document.SectionSkills) && len(doc.Skills) > 0 {
		req.Skills = doc.Skills
	}
	if want(document.SectionExperience) && len(doc.Experience) > 0 {
		req.Experience = doc.Experience
	}
	if want(document.SectionEducation) && len(doc.Education) > 0 {
		req.Education = doc.Education
	}
	if want(document.SectionAchievements) && len(doc.Achievements) > 0 {
		req.Achievements = doc.Achievements
	}
	if want(document.SectionProjects) && len(doc.Projects) > 0 {
		req.Projects = doc.Projects
	}
	if want(document.SectionCV) && !doc.CV.IsEmpty() {
		req.CV = doc.CV
	}
	return req
}
