package document

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldPath addresses a location inside a Document. It is one of Root,
// Member or Index.
type FieldPath interface {
	String() string
	isFieldPath()
}

// Root names a top-level section.
type Root struct {
	Name string
}

// Member selects a named field of the object at Parent.
type Member struct {
	Parent FieldPath
	Name   string
}

// Index selects element N of the list at Parent.
type Index struct {
	Parent FieldPath
	N      int
}

func (Root) isFieldPath()   {}
func (Member) isFieldPath() {}
func (Index) isFieldPath()  {}

func (p Root) String() string   { return p.Name }
func (p Member) String() string { return p.Parent.String() + "." + p.Name }
func (p Index) String() string  { return p.Parent.String() + "[" + strconv.Itoa(p.N) + "]" }

// ParsePath parses a dotted and indexed path such as
// "experience[2].responsibilities[0]" or "contactInfo.email".
func ParsePath(s string) (FieldPath, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty path")
	}

	p := &pathParser{src: s}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	var path FieldPath = Root{Name: name}

	for !p.done() {
		switch p.peek() {
		case '.':
			p.pos++
			name, err := p.ident()
			if err != nil {
				return nil, err
			}
			path = Member{Parent: path, Name: name}
		case '[':
			p.pos++
			n, err := p.index()
			if err != nil {
				return nil, err
			}
			path = Index{Parent: path, N: n}
		default:
			return nil, fmt.Errorf("unexpected %q at offset %d in path %q", p.peek(), p.pos, s)
		}
	}
	return path, nil
}

type pathParser struct {
	src string
	pos int
}

func (p *pathParser) done() bool { return p.pos >= len(p.src) }
func (p *pathParser) peek() byte { return p.src[p.pos] }

func (p *pathParser) ident() (string, error) {
	start := p.pos
	for !p.done() {
		c := p.peek()
		if c == '_' || isLetter(c) || (p.pos > start && isDigit(c)) {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return "", fmt.Errorf("expected field name at offset %d in path %q", start, p.src)
	}
	return p.src[start:p.pos], nil
}

func (p *pathParser) index() (int, error) {
	start := p.pos
	for !p.done() && isDigit(p.peek()) {
		p.pos++
	}
	if p.pos == start || p.done() || p.peek() != ']' {
		return 0, fmt.Errorf("malformed index at offset %d in path %q", start, p.src)
	}
	n, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil {
		return 0, fmt.Errorf("index out of range in path %q: %w", p.src, err)
	}
	p.pos++ // ']'
	return n, nil
}

func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
