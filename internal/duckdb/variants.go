package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/inodb/vcfload/internal/store"
	"github.com/inodb/vcfload/internal/vcf"
)

// InsertSample inserts a sample row; an existing id is AlreadyExists.
func (s *Store) InsertSample(ctx context.Context, id string) (store.Outcome, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO samples ("id") VALUES (?) ON CONFLICT DO NOTHING`, id)
	if err != nil {
		return 0, fmt.Errorf("insert sample %s: %w", id, err)
	}
	return insertOutcome(res)
}

// InsertVariant inserts a variant row; an existing key is AlreadyExists.
func (s *Store) InsertVariant(ctx context.Context, v *vcf.Variant) (store.Outcome, error) {
	names, err := json.Marshal(v.Names)
	if err != nil {
		return 0, fmt.Errorf("%w: encode names of %s: %w", store.ErrRejected, v.Key, err)
	}
	alts, err := json.Marshal(v.AlternateBases)
	if err != nil {
		return 0, fmt.Errorf("%w: encode alternate bases of %s: %w", store.ErrRejected, v.Key, err)
	}
	altStructure, err := json.Marshal(v.AlternateStructure)
	if err != nil {
		return 0, fmt.Errorf("%w: encode alternate structure of %s: %w", store.ErrRejected, v.Key, err)
	}
	info, err := json.Marshal(v.Info)
	if err != nil {
		return 0, fmt.Errorf("%w: encode info of %s: %w", store.ErrRejected, v.Key, err)
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO variants
		("key", "names", "chromosome", "position", "filter", "reference_base",
		 "alternate_bases", "alternate_structure", "info")
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		v.Key, string(names), v.Chromosome, v.Position, v.Filter, v.ReferenceBase,
		string(alts), string(altStructure), string(info))
	if err != nil {
		return 0, fmt.Errorf("insert variant %s: %w", v.Key, err)
	}
	return insertOutcome(res)
}

// AppendCall inserts a call row for an existing sample. Samples are never
// deleted, so checking existence before the insert is race-free.
func (s *Store) AppendCall(ctx context.Context, sampleID string, call vcf.Call) (store.Outcome, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM samples WHERE "id" = ?`, sampleID).Scan(&n); err != nil {
		return 0, fmt.Errorf("lookup sample %s: %w", sampleID, err)
	}
	if n == 0 {
		return store.NotFound, nil
	}

	genotype, err := json.Marshal(call.Genotype)
	if err != nil {
		return 0, fmt.Errorf("%w: encode genotype of %s/%s: %w", store.ErrRejected, sampleID, call.VariantKey, err)
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO calls
		(sample_id, variant_key, phased, genotype)
		VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		sampleID, call.VariantKey, call.Phased, string(genotype))
	if err != nil {
		return 0, fmt.Errorf("insert call %s/%s: %w", sampleID, call.VariantKey, err)
	}
	out, err := insertOutcome(res)
	if out == store.Created {
		out = store.Appended
	}
	return out, err
}

func insertOutcome(res sql.Result) (store.Outcome, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.AlreadyExists, nil
	}
	return store.Created, nil
}

// Calls returns the calls of a sample in append order.
func (s *Store) Calls(ctx context.Context, sampleID string) ([]vcf.Call, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT variant_key, phased, genotype
		FROM calls WHERE sample_id = ? ORDER BY seq`, sampleID)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var calls []vcf.Call
	for rows.Next() {
		var (
			c        vcf.Call
			genotype string
		)
		if err := rows.Scan(&c.VariantKey, &c.Phased, &genotype); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		if err := json.Unmarshal([]byte(genotype), &c.Genotype); err != nil {
			return nil, fmt.Errorf("decode genotype: %w", err)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}

// VariantRow is a variant as read back from the variants table.
type VariantRow struct {
	Key            string
	Names          []string
	Chromosome     int
	Position       string
	Filter         string
	ReferenceBase  string
	AlternateBases []string
	Info           map[string]map[string]any
}

// LookupVariant reads a variant by key. It returns nil, nil when absent.
func (s *Store) LookupVariant(ctx context.Context, key string) (*VariantRow, error) {
	var (
		r                 VariantRow
		names, alts, info string
	)
	err := s.db.QueryRowContext(ctx, `SELECT "key", "names", "chromosome", "position",
		"filter", "reference_base", "alternate_bases", "info"
		FROM variants WHERE "key" = ?`, key).Scan(
		&r.Key, &names, &r.Chromosome, &r.Position,
		&r.Filter, &r.ReferenceBase, &alts, &info)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query variant: %w", err)
	}
	if err := json.Unmarshal([]byte(names), &r.Names); err != nil {
		return nil, fmt.Errorf("decode names: %w", err)
	}
	if err := json.Unmarshal([]byte(alts), &r.AlternateBases); err != nil {
		return nil, fmt.Errorf("decode alternate bases: %w", err)
	}
	if err := json.Unmarshal([]byte(info), &r.Info); err != nil {
		return nil, fmt.Errorf("decode info: %w", err)
	}
	return &r, nil
}
