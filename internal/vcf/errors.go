// Package vcf provides VCF file parsing functionality.
package vcf

import (
	"errors"
	"fmt"
)

// Error kinds. Every *ParseError unwraps to exactly one of these.
var (
	ErrMalformedDirective    = errors.New("malformed directive")
	ErrUnknownFieldReference = errors.New("unknown field reference")
	ErrMalformedValue        = errors.New("malformed value")
	ErrMalformedRecord       = errors.New("malformed record")
)

// Header errors. Unlike the kinds above these are fatal for the whole input.
var (
	ErrRegistryFrozen      = errors.New("header registry is frozen")
	ErrMissingColumnHeader = errors.New("missing #CHROM column header")
)

// ParseError represents an error during VCF parsing with line context.
type ParseError struct {
	Line    int
	Kind    error  // one of the Err* kinds above
	Field   string // INFO id, directive key or sample id, when narrower than the line
	Message string
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("vcf parse error at line %d: %s: %s: %s", e.Line, e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("vcf parse error at line %d: %s: %s", e.Line, e.Kind, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Kind }

// KindOf returns the kind of err, or nil when err is not a parse error.
func KindOf(err error) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return nil
}
