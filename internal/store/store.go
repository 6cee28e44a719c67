// Package store defines the persistence contract used by the ingestion engine
// and an in-memory implementation of it.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/inodb/vcfload/internal/vcf"
)

// Collection names.
const (
	Samples  = "samples"
	Variants = "variants"
)

// Key fields of the collections, used for unique indexes.
const (
	SampleKeyField  = "id"
	VariantKeyField = "key"
)

// Outcome is the non-error result of a write.
type Outcome uint8

// Write outcomes. AlreadyExists is how a duplicate key surfaces; it is
// informational, not an error.
const (
	Created Outcome = iota
	AlreadyExists
	Appended
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case AlreadyExists:
		return "already_exists"
	case Appended:
		return "appended"
	case NotFound:
		return "not_found"
	}
	return fmt.Sprintf("outcome(%d)", uint8(o))
}

// ErrStoreUnavailable marks a write that failed after the retry budget ran out.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrRejected marks a write the backend refused because of the document
// itself, such as a value it cannot encode. Retrying cannot succeed.
var ErrRejected = errors.New("document rejected")

// ErrUnknownCollection is returned for collection names a backend does not serve.
var ErrUnknownCollection = errors.New("unknown collection")

// CollectionInfo describes an acquired collection.
type CollectionInfo struct {
	Name      string
	Documents int64
}

// Client is the capability contract a backend must satisfy.
//
// A returned error always means the operation did not take effect. It may be
// retried unless it wraps ErrRejected. Duplicate keys and missing samples are
// reported through Outcome.
type Client interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	// CreateCollection is idempotent.
	CreateCollection(ctx context.Context, name string) error
	Collection(ctx context.Context, name string) (CollectionInfo, error)
	// EnsureIndex is idempotent.
	EnsureIndex(ctx context.Context, collection, field string, unique bool) error

	// InsertSample returns Created or AlreadyExists.
	InsertSample(ctx context.Context, id string) (Outcome, error)
	// InsertVariant returns Created or AlreadyExists.
	InsertVariant(ctx context.Context, v *vcf.Variant) (Outcome, error)
	// AppendCall atomically adds call to the sample's call list. It returns
	// Appended, NotFound when the sample does not exist, or AlreadyExists when
	// the sample already holds a call for the same variant.
	AppendCall(ctx context.Context, sampleID string, call vcf.Call) (Outcome, error)

	Close() error
}

// Acquire makes sure collection name exists and returns its description.
// A concurrent creator is tolerated.
func Acquire(ctx context.Context, c Client, name string) (CollectionInfo, error) {
	ok, err := c.CollectionExists(ctx, name)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("check collection %s: %w", name, err)
	}
	if !ok {
		if err := c.CreateCollection(ctx, name); err != nil {
			return CollectionInfo{}, fmt.Errorf("create collection %s: %w", name, err)
		}
	}
	info, err := c.Collection(ctx, name)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("get collection %s: %w", name, err)
	}
	return info, nil
}
