package document

import (
	"fmt"
	"strings"
)

// Section names a top-level part of a Document.
type Section string

const (
	SectionContactInfo  Section = "contactInfo"
	SectionAbout        Section = "about"
	SectionSkills       Section = "skills"
	SectionExperience   Section = "experience"
	SectionEducation    Section = "education"
	SectionAchievements Section = "achievements"
	SectionProjects     Section = "projects"
	SectionCV           Section = "cv"
)

// AllSections lists sections in the order they appear in a request.
var AllSections = []Section{
	SectionContactInfo,
	SectionAbout,
	SectionSkills,
	SectionExperience,
	SectionEducation,
	SectionAchievements,
	SectionProjects,
	SectionCV,
}

// ParseSection accepts a section name case-insensitively. "summary" is an
// alias for about.
func ParseSection(s string) (Section, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "contactinfo", "contact":
		return SectionContactInfo, nil
	case "about", "summary":
		return SectionAbout, nil
	case "skills":
		return SectionSkills, nil
	case "experience":
		return SectionExperience, nil
	case "education":
		return SectionEducation, nil
	case "achievements":
		return SectionAchievements, nil
	case "projects":
		return SectionProjects, nil
	case "cv":
		return SectionCV, nil
	default:
		return "", fmt.Errorf("unknown section %q", s)
	}
}

// ParseSections parses a list of section names, dropping duplicates.
func ParseSections(names []string) ([]Section, error) {
	var out []Section
	seen := make(map[Section]bool)
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		s, err := ParseSection(name)
		if err != nil {
			return nil, err
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out, nil
}
