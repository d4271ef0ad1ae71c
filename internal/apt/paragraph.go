package apt

import (
	"bufio"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// Paragraph is one control paragraph: an ordered set of fields with their
// values.  Continuation lines are joined with newlines.
type Paragraph struct {
	order  []string
	values map[string]string
}

// Get returns the value of a field, or "" if the field is absent.
func (p Paragraph) Get(field string) string {
	return p.values[field]
}

// Has reports whether the paragraph contains the field.
func (p Paragraph) Has(field string) bool {
	_, ok := p.values[field]
	return ok
}

// Fields returns the field names in the order they appeared.
func (p Paragraph) Fields() []string {
	return p.order
}

// Len returns the number of fields.
func (p Paragraph) Len() int {
	return len(p.order)
}

func (p *Paragraph) add(field, value string) {
	if p.values == nil {
		p.values = make(map[string]string)
	}
	if _, ok := p.values[field]; !ok {
		p.order = append(p.order, field)
	}
	p.values[field] = value
}

// ParagraphScanner reads control paragraphs one at a time from an index.
// It only moves forward; rescanning requires a new scanner over fresh input.
type ParagraphScanner struct {
	scanner *bufio.Scanner
	current Paragraph
	err     error
	done    bool
}

// NewParagraphScanner returns a scanner over r.
func NewParagraphScanner(r io.Reader) *ParagraphScanner {
	s := bufio.NewScanner(r)
	// Description fields of real package indices exceed the default
	// bufio limit.
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ParagraphScanner{scanner: s}
}

// Scan advances to the next paragraph.  It returns false at end of input
// or on a syntax error; check Err to tell the two apart.
func (s *ParagraphScanner) Scan() bool {
	if s.done || s.err != nil {
		return false
	}

	var para Paragraph
	var lastField string

	flush := func() bool { return para.Len() > 0 }

	for s.scanner.Scan() {
		line := s.scanner.Text()
		trimmed := strings.TrimRight(line, "\r")

		if strings.TrimSpace(trimmed) == "" {
			if flush() {
				s.current = para
				return true
			}
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		if trimmed[0] == ' ' || trimmed[0] == '\t' {
			if lastField == "" {
				s.err = errors.New("continuation line before any field")
				return false
			}
			para.add(lastField, para.Get(lastField)+"\n"+strings.TrimSpace(trimmed))
			continue
		}

		idx := strings.Index(trimmed, ":")
		if idx <= 0 {
			s.err = errors.Newf("malformed control line: %q", trimmed)
			return false
		}
		lastField = strings.TrimSpace(trimmed[:idx])
		para.add(lastField, strings.TrimSpace(trimmed[idx+1:]))
	}

	if err := s.scanner.Err(); err != nil {
		s.err = err
		return false
	}

	s.done = true
	if flush() {
		s.current = para
		return true
	}
	return false
}

// Paragraph returns the paragraph read by the last successful Scan.
func (s *ParagraphScanner) Paragraph() Paragraph {
	return s.current
}

// Err returns the first syntax or read error encountered, if any.
func (s *ParagraphScanner) Err() error {
	return s.err
}

// ParseParagraph reads a single paragraph from r.  It is used for Release
// descriptors, which consist of exactly one paragraph.
func ParseParagraph(r io.Reader) (Paragraph, error) {
	s := NewParagraphScanner(r)
	if !s.Scan() {
		if s.Err() != nil {
			return Paragraph{}, s.Err()
		}
		return Paragraph{}, errors.New("empty control file")
	}
	return s.Paragraph(), nil
}

// CountPackages counts the package paragraphs in an index by counting
// "Package:" stanza openers.  The count feeds progress reporting only.
func CountPackages(index []byte) int {
	count := 0
	for _, line := range strings.Split(string(index), "\n") {
		if strings.HasPrefix(line, "Package:") {
			count++
		}
	}
	return count
}
