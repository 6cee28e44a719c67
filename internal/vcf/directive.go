// Package vcf provides VCF file parsing functionality.
package vcf

import (
	"fmt"
	"strings"
)

// Category is the header namespace a directive registers into.
type Category string

// Recognized directive categories.
const (
	CategoryInfo Category = "INFO"
	CategoryAlt  Category = "ALT"
)

// SplitMetaLine splits a "##KEY=rest" line on its first '=' and reports
// whether it is a meta line at all. rest is empty for "##KEY" lines.
func SplitMetaLine(line string) (key, rest string, ok bool) {
	if !strings.HasPrefix(line, "##") {
		return "", "", false
	}
	key, rest, _ = strings.Cut(line[2:], "=")
	return key, rest, true
}

// ParseDirective parses the bracketed attribute list of a structured
// directive, e.g. `<ID=AF,Number=A,Type=Float,Description="a,b">`, into
// field descriptors.
//
// A directive made of a single piece (such as a bare `<ID=X>`) yields no
// descriptors and no warnings. Pieces that cannot be interpreted are skipped
// and reported as ErrMalformedDirective warnings; the descriptors that could
// be built are still returned.
func ParseDirective(line int, body string) ([]*FieldDescriptor, []error) {
	body = strings.TrimSpace(body)
	body = strings.TrimPrefix(body, "<")
	body = strings.TrimSuffix(body, ">")

	pieces := splitUnquotedCommas(body)
	if !strings.Contains(body, "=") {
		return nil, []error{&ParseError{
			Line:    line,
			Kind:    ErrMalformedDirective,
			Message: fmt.Sprintf("no key=value pairs in %q", body),
		}}
	}
	if len(pieces) < 2 {
		return nil, nil
	}

	var (
		descs    []*FieldDescriptor
		warnings []error
		current  *FieldDescriptor
	)
	for _, piece := range pieces {
		key, value, ok := strings.Cut(piece, "=")
		if !ok {
			warnings = append(warnings, &ParseError{
				Line:    line,
				Kind:    ErrMalformedDirective,
				Field:   piece,
				Message: "attribute without '='",
			})
			continue
		}
		if key == "ID" {
			current = NewFieldDescriptor(value)
			descs = append(descs, current)
			continue
		}
		if current == nil {
			warnings = append(warnings, &ParseError{
				Line:    line,
				Kind:    ErrMalformedDirective,
				Field:   key,
				Message: "attribute before ID",
			})
			continue
		}
		current.Set(key, unquote(value))
	}
	return descs, warnings
}

// splitUnquotedCommas splits s on every comma that is followed by an even
// number of double quotes up to the end of s, so quoted substrings stay whole.
func splitUnquotedCommas(s string) []string {
	remaining := strings.Count(s, `"`)
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			remaining--
		case ',':
			if remaining%2 == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// unquote strips one leading and one trailing double quote.
func unquote(s string) string {
	s = strings.TrimPrefix(s, `"`)
	return strings.TrimSuffix(s, `"`)
}
