// Package document defines the structured CV edited during a session and
// the path-addressed patches suggestions apply to it.
package document

import (
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Document is a structured CV. Every section is optional.
type Document struct {
	ID           string        `json:"id,omitempty"`
	ContactInfo  *ContactInfo  `json:"contactInfo,omitempty"`
	About        string        `json:"about,omitempty"`
	Skills       []Skill       `json:"skills,omitempty"`
	Experience   []Experience  `json:"experience,omitempty"`
	Education    []Education   `json:"education,omitempty"`
	Achievements []Achievement `json:"achievements,omitempty"`
	Projects     []Project     `json:"projects,omitempty"`
	CV           *Metadata     `json:"cv,omitempty"`
}

type ContactInfo struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Location string `json:"location,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
	GitHub   string `json:"github,omitempty"`
	Website  string `json:"website,omitempty"`
}

// IsEmpty reports whether no contact field carries text.
func (c *ContactInfo) IsEmpty() bool {
	if c == nil {
		return true
	}
	return blank(c.Name, c.Email, c.Phone, c.Location, c.LinkedIn, c.GitHub, c.Website)
}

type Skill struct {
	TempID   string `json:"tempId,omitempty"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Level    string `json:"level,omitempty"`
}

type Experience struct {
	TempID           string   `json:"tempId,omitempty"`
	Title            string   `json:"title"`
	Company          string   `json:"company,omitempty"`
	Location         string   `json:"location,omitempty"`
	StartDate        string   `json:"startDate,omitempty"`
	EndDate          string   `json:"endDate,omitempty"`
	Current          bool     `json:"current,omitempty"`
	Description      string   `json:"description,omitempty"`
	Responsibilities []string `json:"responsibilities,omitempty"`
	Technologies     []string `json:"technologies,omitempty"`
}

type Education struct {
	TempID       string `json:"tempId,omitempty"`
	Institution  string `json:"institution"`
	Degree       string `json:"degree,omitempty"`
	FieldOfStudy string `json:"fieldOfStudy,omitempty"`
	StartDate    string `json:"startDate,omitempty"`
	EndDate      string `json:"endDate,omitempty"`
	Grade        string `json:"grade,omitempty"`
	Description  string `json:"description,omitempty"`
}

type Achievement struct {
	TempID      string `json:"tempId,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description"`
	Date        string `json:"date,omitempty"`
}

type Project struct {
	TempID       string   `json:"tempId,omitempty"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	URL          string   `json:"url,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
	Highlights   []string `json:"highlights,omitempty"`
}

// Metadata describes the CV itself rather than its owner.
type Metadata struct {
	Title      string `json:"title,omitempty"`
	FileName   string `json:"fileName,omitempty"`
	TargetRole string `json:"targetRole,omitempty"`
	Language   string `json:"language,omitempty"`
}

// IsEmpty reports whether no metadata field carries text.
func (m *Metadata) IsEmpty() bool {
	if m == nil {
		return true
	}
	return blank(m.Title, m.FileName, m.TargetRole, m.Language)
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	out := d
	if d.ContactInfo != nil {
		ci := *d.ContactInfo
		out.ContactInfo = &ci
	}
	if d.CV != nil {
		cv := *d.CV
		out.CV = &cv
	}
	out.Skills = slices.Clone(d.Skills)
	out.Education = slices.Clone(d.Education)
	out.Achievements = slices.Clone(d.Achievements)

	if d.Experience != nil {
		out.Experience = make([]Experience, len(d.Experience))
		for i, e := range d.Experience {
			e.Responsibilities = slices.Clone(e.Responsibilities)
			e.Technologies = slices.Clone(e.Technologies)
			out.Experience[i] = e
		}
	}
	if d.Projects != nil {
		out.Projects = make([]Project, len(d.Projects))
		for i, p := range d.Projects {
			p.Technologies = slices.Clone(p.Technologies)
			p.Highlights = slices.Clone(p.Highlights)
			out.Projects[i] = p
		}
	}
	return out
}

// AssignTempIDs gives every list item without a client identifier a fresh
// one. Existing identifiers are kept.
func (d *Document) AssignTempIDs() {
	for i := range d.Skills {
		ensureTempID(&d.Skills[i].TempID)
	}
	for i := range d.Experience {
		ensureTempID(&d.Experience[i].TempID)
	}
	for i := range d.Education {
		ensureTempID(&d.Education[i].TempID)
	}
	for i := range d.Achievements {
		ensureTempID(&d.Achievements[i].TempID)
	}
	for i := range d.Projects {
		ensureTempID(&d.Projects[i].TempID)
	}
}

// StripTempIDs clears client identifiers from every list item.
func (d *Document) StripTempIDs() {
	for i := range d.Skills {
		d.Skills[i].TempID = ""
	}
	for i := range d.Experience {
		d.Experience[i].TempID = ""
	}
	for i := range d.Education {
		d.Education[i].TempID = ""
	}
	for i := range d.Achievements {
		d.Achievements[i].TempID = ""
	}
	for i := range d.Projects {
		d.Projects[i].TempID = ""
	}
}

// TempIDPrefix marks identifiers that were never persisted.
const TempIDPrefix = "tmp-"

func ensureTempID(id *string) {
	if *id == "" {
		*id = TempIDPrefix + uuid.NewString()
	}
}

func blank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
