package document

import "strings"

// node is a resolved location. Objects implement memberer, lists implement
// indexer, and anything holding a writable string implements texter.
type node any

type memberer interface {
	member(name string) (node, bool)
}

type indexer interface {
	index(i int) (node, bool)
}

type texter interface {
	text() *string
}

type textNode struct{ p *string }

func (t textNode) text() *string { return t.p }

// Get returns the text stored at path.
func (d Document) Get(path FieldPath) (string, bool) {
	n, ok := resolve(&d, path)
	if !ok {
		return "", false
	}
	t, ok := n.(texter)
	if !ok {
		return "", false
	}
	return *t.text(), true
}

// Apply writes value at path and returns the patched copy. When the path
// does not resolve to a text location the original document is returned
// unchanged together with false.
func (d Document) Apply(path FieldPath, value string) (Document, bool) {
	if path == nil {
		return d, false
	}
	out := d.Clone()
	n, ok := resolve(&out, path)
	if !ok {
		return d, false
	}
	t, ok := n.(texter)
	if !ok {
		return d, false
	}
	*t.text() = value
	return out, true
}

// ApplyString parses path and applies value. Malformed paths behave like
// unresolvable ones.
func (d Document) ApplyString(path, value string) (Document, bool) {
	p, err := ParsePath(path)
	if err != nil {
		return d, false
	}
	return d.Apply(p, value)
}

func resolve(d *Document, path FieldPath) (node, bool) {
	switch p := path.(type) {
	case Root:
		return d.member(p.Name)
	case Member:
		parent, ok := resolve(d, p.Parent)
		if !ok {
			return nil, false
		}
		obj, ok := parent.(memberer)
		if !ok {
			return nil, false
		}
		return obj.member(p.Name)
	case Index:
		parent, ok := resolve(d, p.Parent)
		if !ok {
			return nil, false
		}
		list, ok := parent.(indexer)
		if !ok {
			return nil, false
		}
		return list.index(p.N)
	default:
		return nil, false
	}
}

func (d *Document) member(name string) (node, bool) {
	switch strings.ToLower(name) {
	case "contactinfo", "contact":
		if d.ContactInfo == nil {
			return nil, false
		}
		return d.ContactInfo, true
	case "about", "summary":
		return textNode{&d.About}, true
	case "skills":
		return skillList{&d.Skills}, true
	case "experience":
		return experienceList{&d.Experience}, true
	case "education":
		return educationList{&d.Education}, true
	case "achievements":
		return achievementList{&d.Achievements}, true
	case "projects":
		return projectList{&d.Projects}, true
	case "cv":
		if d.CV == nil {
			return nil, false
		}
		return d.CV, true
	}
	return nil, false
}

func (c *ContactInfo) member(name string) (node, bool) {
	switch strings.ToLower(name) {
	case "name":
		return textNode{&c.Name}, true
	case "email":
		return textNode{&c.Email}, true
	case "phone":
		return textNode{&c.Phone}, true
	case "location":
		return textNode{&c.Location}, true
	case "linkedin":
		return textNode{&c.LinkedIn}, true
	case "github":
		return textNode{&c.GitHub}, true
	case "website":
		return textNode{&c.Website}, true
	}
	return nil, false
}

func (m *Metadata) member(name string) (node, bool) {
	switch strings.ToLower(name) {
	case "title":
		return textNode{&m.Title}, true
	case "filename":
		return textNode{&m.FileName}, true
	case "targetrole":
		return textNode{&m.TargetRole}, true
	case "language":
		return textNode{&m.Language}, true
	}
	return nil, false
}

func (s *Skill) text() *string { return &s.Name }

func (s *Skill) member(name string) (node, bool) {
	switch strings.ToLower(name) {
	case "name":
		return textNode{&s.Name}, true
	case "category":
		return textNode{&s.Category}, true
	case "level":
		return textNode{&s.Level}, true
	}
	return nil, false
}

func (e *Experience) member(name string) (node, bool) {
	switch strings.ToLower(name) {
	case "title":
		return textNode{&e.Title}, true
	case "company":
		return textNode{&e.Company}, true
	case "location":
		return textNode{&e.Location}, true
	case "startdate":
		return textNode{&e.StartDate}, true
	case "enddate":
		return textNode{&e.EndDate}, true
	case "description":
		return textNode{&e.Description}, true
	case "responsibilities":
		return stringList{&e.Responsibilities}, true
	case "technologies":
		return stringList{&e.Technologies}, true
	}
	return nil, false
}

func (e *Education) member(name string) (node, bool) {
	switch strings.ToLower(name) {
	case "institution":
		return textNode{&e.Institution}, true
	case "degree":
		return textNode{&e.Degree}, true
	case "fieldofstudy":
		return textNode{&e.FieldOfStudy}, true
	case "startdate":
		return textNode{&e.StartDate}, true
	case "enddate":
		return textNode{&e.EndDate}, true
	case "grade":
		return textNode{&e.Grade}, true
	case "description":
		return textNode{&e.Description}, true
	}
	return nil, false
}

func (a *Achievement) text() *string { return &a.Description }

func (a *Achievement) member(name string) (node, bool) {
	switch strings.ToLower(name) {
	case "title":
		return textNode{&a.Title}, true
	case "description":
		return textNode{&a.Description}, true
	case "date":
		return textNode{&a.Date}, true
	}
	return nil, false
}

func (p *Project) member(name string) (node, bool) {
	switch strings.ToLower(name) {
	case "name":
		return textNode{&p.Name}, true
	case "description":
		return textNode{&p.Description}, true
	case "url":
		return textNode{&p.URL}, true
	case "technologies":
		return stringList{&p.Technologies}, true
	case "highlights":
		return stringList{&p.Highlights}, true
	}
	return nil, false
}

type stringList struct{ items *[]string }

func (l stringList) index(i int) (node, bool) {
	if i < 0 || i >= len(*l.items) {
		return nil, false
	}
	return textNode{&(*l.items)[i]}, true
}

type skillList struct{ items *[]Skill }

func (l skillList) index(i int) (node, bool) {
	if i < 0 || i >= len(*l.items) {
		return nil, false
	}
	return &(*l.items)[i], true
}

type experienceList struct{ items *[]Experience }

func (l experienceList) index(i int) (node, bool) {
	if i < 0 || i >= len(*l.items) {
		return nil, false
	}
	return &(*l.items)[i], true
}

type educationList struct{ items *[]Education }

func (l educationList) index(i int) (node, bool) {
	if i < 0 || i >= len(*l.items) {
		return nil, false
	}
	return &(*l.items)[i], true
}

type achievementList struct{ items *[]Achievement }

func (l achievementList) index(i int) (node, bool) {
	if i < 0 || i >= len(*l.items) {
		return nil, false
	}
	return &(*l.items)[i], true
}

type projectList struct{ items *[]Project }

func (l projectList) index(i int) (node, bool) {
	if i < 0 || i >= len(*l.items) {
		return nil, false
	}
	return &(*l.items)[i], true
}
