package dividend

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed synonyms.yaml
var embeddedLayout []byte

// FieldSynonyms lists the header spellings accepted for one field.
type FieldSynonyms struct {
	Name     Field    `yaml:"name"`
	Synonyms []string `yaml:"synonyms"`
}

type layoutFile struct {
	Fields         []FieldSynonyms `yaml:"fields"`
	HeaderKeywords []Field         `yaml:"header_keywords"`
	Headerless     []Field         `yaml:"headerless"`
}

// Layout is the table-driven description of accepted file shapes: header
// synonyms per field, the keywords that identify header lines, and the
// positional layout used for headerless files.
type Layout struct {
	fields     []FieldSynonyms
	lookup     map[string]Field // normalized synonym -> field
	keywords   map[string]bool  // normalized synonyms of header keyword fields
	positional []Field
}

// NewLayout parses a layout document.
func NewLayout(data []byte) (*Layout, error) {
	var lf layoutFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	if len(lf.Fields) == 0 {
		return nil, fmt.Errorf("layout defines no fields")
	}

	l := &Layout{
		fields:     lf.Fields,
		lookup:     make(map[string]Field),
		keywords:   make(map[string]bool),
		positional: lf.Headerless,
	}

	known := make(map[Field]bool, len(lf.Fields))
	for i, fs := range lf.Fields {
		if fs.Name == "" {
			return nil, fmt.Errorf("field %d: name is required", i)
		}
		if known[fs.Name] {
			return nil, fmt.Errorf("field %q defined twice", fs.Name)
		}
		known[fs.Name] = true
		for _, syn := range fs.Synonyms {
			key := normalizeHeader(syn)
			if key == "" {
				return nil, fmt.Errorf("field %q: empty synonym", fs.Name)
			}
			// First field listing a synonym owns it.
			if _, taken := l.lookup[key]; !taken {
				l.lookup[key] = fs.Name
			}
		}
	}

	for _, kw := range lf.HeaderKeywords {
		if !known[kw] {
			return nil, fmt.Errorf("header keyword %q is not a field", kw)
		}
		for _, fs := range lf.Fields {
			if fs.Name != kw {
				continue
			}
			for _, syn := range fs.Synonyms {
				l.keywords[normalizeHeader(syn)] = true
			}
		}
	}

	for _, f := range lf.Headerless {
		if !known[f] {
			return nil, fmt.Errorf("headerless column %q is not a field", f)
		}
	}

	return l, nil
}

var (
	defaultLayout     *Layout
	defaultLayoutErr  error
	defaultLayoutOnce sync.Once
)

// DefaultLayout returns the layout compiled into the binary.
func DefaultLayout() (*Layout, error) {
	defaultLayoutOnce.Do(func() {
		defaultLayout, defaultLayoutErr = NewLayout(embeddedLayout)
		if defaultLayoutErr != nil {
			defaultLayoutErr = fmt.Errorf("load embedded layout: %w", defaultLayoutErr)
		}
	})
	return defaultLayout, defaultLayoutErr
}

// Fields returns the canonical fields in table order.
func (l *Layout) Fields() []Field {
	out := make([]Field, len(l.fields))
	for i, fs := range l.fields {
		out[i] = fs.Name
	}
	return out
}

// fieldFor returns the field whose synonym set contains cell.
func (l *Layout) fieldFor(cell string) (Field, bool) {
	f, ok := l.lookup[normalizeHeader(cell)]
	return f, ok
}

// IsHeaderLine reports whether any cell is a header keyword. Lines starting
// with '#' are comments and count as header lines too.
func (l *Layout) IsHeaderLine(cells []string) bool {
	if isCommentRow(cells) {
		return true
	}
	for _, c := range cells {
		if l.keywords[normalizeHeader(c)] {
			return true
		}
	}
	return false
}

func isCommentRow(cells []string) bool {
	return len(cells) > 0 && strings.HasPrefix(strings.TrimSpace(cells[0]), "#")
}

// normalizeHeader lowercases a header cell, strips accents and collapses
// inner whitespace so "Payment  Date" and "payment date" compare equal.
func normalizeHeader(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.Join(strings.Fields(out), " "))
}
