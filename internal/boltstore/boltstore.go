// Package boltstore contains the bbolt implementation of the store contract.
//
// The variants bucket holds one JSON document per key. The samples bucket
// holds one nested bucket per sample with two children: "calls" maps an
// append sequence to a JSON call, and "variants" maps a variant key to that
// sequence so duplicate calls are found with a single Get.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/inodb/vcfload/internal/store"
	"github.com/inodb/vcfload/internal/vcf"
)

var _ store.Client = (*DB)(nil)

// indexBucket records declared indexes as "collection.field" keys.
var indexBucket = []byte("_indexes")

// Children of a sample bucket.
var (
	callsBucket = []byte("calls")
	seenBucket  = []byte("variants")
)

// DB represents the database connection.
type DB struct {
	db       *bolt.DB
	filePath string
}

// Open opens or creates the bbolt file at path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	db, err := bolt.Open(path, 0666, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open file %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(indexBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %s: %w", indexBucket, err)
	}
	return &DB{db: db, filePath: path}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Path() string {
	return d.filePath
}

func checkCollection(name string) error {
	if name != store.Samples && name != store.Variants {
		return fmt.Errorf("%w: %s", store.ErrUnknownCollection, name)
	}
	return nil
}

func (d *DB) CollectionExists(_ context.Context, name string) (bool, error) {
	if err := checkCollection(name); err != nil {
		return false, err
	}
	var ok bool
	err := d.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket([]byte(name)) != nil
		return nil
	})
	return ok, err
}

func (d *DB) CreateCollection(_ context.Context, name string) error {
	if err := checkCollection(name); err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
			return fmt.Errorf("creating bucket: %s: %w", name, err)
		}
		return nil
	})
}

func (d *DB) Collection(_ context.Context, name string) (store.CollectionInfo, error) {
	if err := checkCollection(name); err != nil {
		return store.CollectionInfo{}, err
	}
	info := store.CollectionInfo{Name: name}
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(name))
		if b == nil {
			return fmt.Errorf("boltdb: bucket '%s' not found", name)
		}
		// Top-level entries only; sample buckets nest their calls.
		return b.ForEach(func(_, _ []byte) error {
			info.Documents++
			return nil
		})
	})
	return info, err
}

// EnsureIndex records the index declaration. Bucket keys are unique by
// construction, so only the key field of each collection can be indexed.
func (d *DB) EnsureIndex(_ context.Context, collection, field string, unique bool) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	key := store.SampleKeyField
	if collection == store.Variants {
		key = store.VariantKeyField
	}
	if field != key {
		return fmt.Errorf("boltdb: cannot index %s.%s, only %q is indexable", collection, field, key)
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		v := []byte("false")
		if unique {
			v = []byte("true")
		}
		return tx.Bucket(indexBucket).Put([]byte(collection+"."+field), v)
	})
}

// HasIndex reports whether an index was declared on collection.field.
func (d *DB) HasIndex(collection, field string) (bool, error) {
	var ok bool
	err := d.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(indexBucket).Get([]byte(collection+"."+field)) != nil
		return nil
	})
	return ok, err
}

// putNew stores doc under key unless the key is taken.
func (d *DB) putNew(collection, key string, doc any) (store.Outcome, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("%w: encode %s %s: %w", store.ErrRejected, collection, key, err)
	}
	out := store.Created
	err = d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return fmt.Errorf("boltdb: bucket '%s' not found", collection)
		}
		if b.Get([]byte(key)) != nil {
			out = store.AlreadyExists
			return nil
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return 0, keyError(err)
	}
	return out, nil
}

// keyError marks bbolt's key validation failures as rejections.
func keyError(err error) error {
	if errors.Is(err, bolt.ErrKeyRequired) || errors.Is(err, bolt.ErrKeyTooLarge) {
		return fmt.Errorf("%w: %w", store.ErrRejected, err)
	}
	return err
}

func u64tob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// InsertSample creates the sample bucket and its children.
func (d *DB) InsertSample(_ context.Context, id string) (store.Outcome, error) {
	out := store.Created
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(store.Samples))
		if b == nil {
			return fmt.Errorf("boltdb: bucket '%s' not found", store.Samples)
		}
		if b.Bucket([]byte(id)) != nil {
			out = store.AlreadyExists
			return nil
		}
		sb, err := b.CreateBucket([]byte(id))
		if err != nil {
			return fmt.Errorf("creating sample bucket %s: %w", id, err)
		}
		if _, err := sb.CreateBucket(callsBucket); err != nil {
			return err
		}
		_, err = sb.CreateBucket(seenBucket)
		return err
	})
	if err != nil {
		return 0, keyError(err)
	}
	return out, nil
}

func (d *DB) InsertVariant(_ context.Context, v *vcf.Variant) (store.Outcome, error) {
	return d.putNew(store.Variants, v.Key, v)
}

// AppendCall adds call to the sample inside a single write transaction.
// bbolt serializes writers, so the check and the append are atomic.
func (d *DB) AppendCall(_ context.Context, sampleID string, call vcf.Call) (store.Outcome, error) {
	data, err := json.Marshal(call)
	if err != nil {
		return 0, fmt.Errorf("%w: encode call %s/%s: %w", store.ErrRejected, sampleID, call.VariantKey, err)
	}
	out := store.Appended
	err = d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(store.Samples))
		if b == nil {
			out = store.NotFound
			return nil
		}
		sb := b.Bucket([]byte(sampleID))
		if sb == nil {
			out = store.NotFound
			return nil
		}
		seen, calls := sb.Bucket(seenBucket), sb.Bucket(callsBucket)
		if seen.Get([]byte(call.VariantKey)) != nil {
			out = store.AlreadyExists
			return nil
		}
		seq, err := calls.NextSequence()
		if err != nil {
			return err
		}
		k := u64tob(seq)
		if err := seen.Put([]byte(call.VariantKey), k); err != nil {
			return err
		}
		return calls.Put(k, data)
	})
	if err != nil {
		return 0, keyError(err)
	}
	return out, nil
}

// Calls returns the calls stored for a sample in append order; ok is false
// if the sample is absent.
func (d *DB) Calls(sampleID string) (calls []vcf.Call, ok bool, err error) {
	err = d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(store.Samples))
		if b == nil {
			return nil
		}
		sb := b.Bucket([]byte(sampleID))
		if sb == nil {
			return nil
		}
		ok = true
		calls = []vcf.Call{}
		return sb.Bucket(callsBucket).ForEach(func(_, v []byte) error {
			var c vcf.Call
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("decode call of %s: %w", sampleID, err)
			}
			calls = append(calls, c)
			return nil
		})
	})
	return calls, ok, err
}

// Variant returns the raw JSON document of a variant, or nil if it is absent.
func (d *DB) Variant(key string) (json.RawMessage, error) {
	var doc json.RawMessage
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(store.Variants))
		if b == nil {
			return nil
		}
		if raw := b.Get([]byte(key)); raw != nil {
			// Values are only valid for the life of the transaction.
			doc = append(json.RawMessage(nil), raw...)
		}
		return nil
	})
	return doc, err
}
