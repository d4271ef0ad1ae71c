package apt

import (
	"strings"
	"testing"
)

func TestParagraphScanner(t *testing.T) {
	index := `Package: vim
Version: 2:8.2.0-1
Filename: pool/main/v/vim/vim_8.2.0-1_amd64.deb
SHA256: 0123abcd

Package: nano
Description: small editor
 a continuation line
 another one
Filename: pool/main/n/nano/nano_4.8-1_amd64.deb
`

	s := NewParagraphScanner(strings.NewReader(index))

	if !s.Scan() {
		t.Fatalf("first Scan failed: %v", s.Err())
	}
	p := s.Paragraph()
	if p.Get("Package") != "vim" {
		t.Errorf("Package = %q, want vim", p.Get("Package"))
	}
	if p.Get("SHA256") != "0123abcd" {
		t.Errorf("SHA256 = %q", p.Get("SHA256"))
	}
	if p.Len() != 4 {
		t.Errorf("Len = %d, want 4", p.Len())
	}

	if !s.Scan() {
		t.Fatalf("second Scan failed: %v", s.Err())
	}
	p = s.Paragraph()
	if p.Get("Package") != "nano" {
		t.Errorf("Package = %q, want nano", p.Get("Package"))
	}
	wantDesc := "small editor\na continuation line\nanother one"
	if p.Get("Description") != wantDesc {
		t.Errorf("Description = %q, want %q", p.Get("Description"), wantDesc)
	}

	if s.Scan() {
		t.Error("third Scan succeeded, want end of input")
	}
	if s.Err() != nil {
		t.Errorf("Err = %v, want nil at clean end of input", s.Err())
	}
}

func TestParagraphScannerBlankLinesAndComments(t *testing.T) {
	index := "\n\n# generated index\nPackage: a\n\n\n# trailing comment\nPackage: b\n\n"

	s := NewParagraphScanner(strings.NewReader(index))
	var names []string
	for s.Scan() {
		names = append(names, s.Paragraph().Get("Package"))
	}
	if s.Err() != nil {
		t.Fatalf("unexpected error: %v", s.Err())
	}
	if strings.Join(names, ",") != "a,b" {
		t.Errorf("packages = %v, want [a b]", names)
	}
}

func TestParagraphScannerCRLF(t *testing.T) {
	index := "Package: a\r\nFilename: f\r\n\r\nPackage: b\r\n"

	s := NewParagraphScanner(strings.NewReader(index))
	if !s.Scan() {
		t.Fatalf("Scan failed: %v", s.Err())
	}
	if got := s.Paragraph().Get("Filename"); got != "f" {
		t.Errorf("Filename = %q, want f", got)
	}
	if !s.Scan() {
		t.Fatalf("second Scan failed: %v", s.Err())
	}
}

func TestParagraphScannerMalformed(t *testing.T) {
	tests := []struct {
		name  string
		index string
	}{
		{"line without colon", "Package: a\nnot a control line\n"},
		{"leading continuation", " starts with continuation\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewParagraphScanner(strings.NewReader(tt.index))
			for s.Scan() {
			}
			if s.Err() == nil {
				t.Error("expected syntax error, got nil")
			}
		})
	}
}

func TestParagraphFieldOrder(t *testing.T) {
	index := "B: 1\nA: 2\nC: 3\n"
	p, err := ParseParagraph(strings.NewReader(index))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := strings.Join(p.Fields(), "")
	if got != "BAC" {
		t.Errorf("field order = %q, want BAC", got)
	}
}

func TestParseParagraphEmpty(t *testing.T) {
	if _, err := ParseParagraph(strings.NewReader("")); err == nil {
		t.Error("expected error for empty input, got nil")
	}
	if _, err := ParseParagraph(strings.NewReader("\n\n\n")); err == nil {
		t.Error("expected error for blank input, got nil")
	}
}

func TestCountPackages(t *testing.T) {
	tests := []struct {
		name  string
		index string
		want  int
	}{
		{"empty", "", 0},
		{"one", "Package: a\nFilename: f\n", 1},
		{"two", "Package: a\n\nPackage: b\n", 2},
		{"not at line start", "Package: a\nDepends: Package: weird\n", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountPackages([]byte(tt.index)); got != tt.want {
				t.Errorf("CountPackages = %d, want %d", got, tt.want)
			}
		})
	}
}
