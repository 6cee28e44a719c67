package ingest

import (
	"errors"
	"fmt"

	"github.com/inodb/vcfload/internal/store"
	"github.com/inodb/vcfload/internal/vcf"
)

// Run-level errors.
var (
	ErrInputUnreadable = errors.New("input unreadable")
	ErrShardPanic      = errors.New("shard panicked")
	ErrCancelled       = errors.New("ingestion cancelled")

	// ErrMissingColumnHeader is raised while parsing the header.
	ErrMissingColumnHeader = vcf.ErrMissingColumnHeader
)

// kindName returns the summary key for a per-line or per-field error.
func kindName(err error) string {
	if errors.Is(err, store.ErrRejected) {
		return "rejected_document"
	}
	switch vcf.KindOf(err) {
	case vcf.ErrMalformedDirective:
		return "malformed_directive"
	case vcf.ErrUnknownFieldReference:
		return "unknown_field_reference"
	case vcf.ErrMalformedValue:
		return "malformed_value"
	case vcf.ErrMalformedRecord:
		return "malformed_record"
	}
	return "other"
}

// ShardError reports why a shard stopped early.
type ShardError struct {
	Shard int
	Line  int // last line attempted, 0 if none
	Err   error
}

func (e *ShardError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("shard %d stopped at line %d: %v", e.Shard, e.Line, e.Err)
	}
	return fmt.Sprintf("shard %d: %v", e.Shard, e.Err)
}

func (e *ShardError) Unwrap() error { return e.Err }
