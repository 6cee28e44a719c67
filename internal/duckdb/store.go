// Package duckdb provides a relational store for ingested variants, samples
// and calls. Lists and nested structures are kept as JSON text columns.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/inodb/vcfload/internal/store"
)

// Compile-time contract assertion.
var _ store.Client = (*Store)(nil)

// Store manages a DuckDB connection implementing store.Client.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path, empty for in-memory databases.
func (s *Store) Path() string {
	return s.path
}

// schema holds the DDL per collection. The calls table belongs to samples.
var schema = map[string][]string{
	store.Samples: {
		`CREATE TABLE IF NOT EXISTS samples (
			"id" VARCHAR PRIMARY KEY
		)`,
		`CREATE SEQUENCE IF NOT EXISTS call_seq START 1`,
		`CREATE TABLE IF NOT EXISTS calls (
			sample_id VARCHAR NOT NULL,
			variant_key VARCHAR NOT NULL,
			seq BIGINT DEFAULT nextval('call_seq'),
			phased BOOLEAN,
			genotype VARCHAR,
			PRIMARY KEY (sample_id, variant_key)
		)`,
	},
	store.Variants: {
		`CREATE TABLE IF NOT EXISTS variants (
			"key" VARCHAR PRIMARY KEY,
			"names" VARCHAR,
			"chromosome" BIGINT,
			"position" VARCHAR,
			"filter" VARCHAR,
			"reference_base" VARCHAR,
			"alternate_bases" VARCHAR,
			"alternate_structure" VARCHAR,
			"info" VARCHAR
		)`,
	},
}

// columns lists the indexable columns per collection; the first is the primary key.
var columns = map[string][]string{
	store.Samples:  {store.SampleKeyField},
	store.Variants: {store.VariantKeyField, "chromosome", "position", "filter", "reference_base"},
}

// CollectionExists reports whether the collection's table exists.
func (s *Store) CollectionExists(ctx context.Context, name string) (bool, error) {
	if _, ok := schema[name]; !ok {
		return false, fmt.Errorf("%w: %s", store.ErrUnknownCollection, name)
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE table_name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query tables: %w", err)
	}
	return n > 0, nil
}

// CreateCollection creates the collection's tables if they don't exist.
func (s *Store) CreateCollection(ctx context.Context, name string) error {
	stmts, ok := schema[name]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrUnknownCollection, name)
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
	}
	return nil
}

// Collection returns the collection's row count.
func (s *Store) Collection(ctx context.Context, name string) (store.CollectionInfo, error) {
	if _, ok := schema[name]; !ok {
		return store.CollectionInfo{}, fmt.Errorf("%w: %s", store.ErrUnknownCollection, name)
	}
	var n int64
	// name is one of the schema keys, never user input.
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+name).Scan(&n); err != nil {
		return store.CollectionInfo{}, fmt.Errorf("count %s: %w", name, err)
	}
	return store.CollectionInfo{Name: name, Documents: n}, nil
}

// EnsureIndex declares an index on a collection column. The key column is
// already a primary key, so a unique index on it is a no-op.
func (s *Store) EnsureIndex(ctx context.Context, collection, field string, unique bool) error {
	cols, ok := columns[collection]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrUnknownCollection, collection)
	}
	found := false
	for _, c := range cols {
		if c == field {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("duckdb: no column %q in %s", field, collection)
	}
	if field == cols[0] {
		return nil
	}

	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	stmt := fmt.Sprintf(`CREATE %s IF NOT EXISTS idx_%s_%s ON %s ("%s")`, kind, collection, field, collection, field)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create index on %s.%s: %w", collection, field, err)
	}
	return nil
}
