package duckdb

import (
	"context"
	"fmt"

	"github.com/inodb/vcfload/internal/store"
)

var _ store.RunRecorder = (*Store)(nil)

const runsDDL = `CREATE TABLE IF NOT EXISTS ingest_runs (
	run_id VARCHAR PRIMARY KEY,
	input_path VARCHAR,
	input_size BIGINT,
	input_modtime TIMESTAMP,
	state VARCHAR,
	variants BIGINT,
	calls BIGINT,
	started TIMESTAMP,
	finished TIMESTAMP
)`

// RecordRun stores the outcome of an ingestion run together with the
// fingerprint of its input file. Recording the same run id twice replaces it.
func (s *Store) RecordRun(ctx context.Context, r store.RunRecord) error {
	if _, err := s.db.ExecContext(ctx, runsDDL); err != nil {
		return fmt.Errorf("create ingest_runs: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO ingest_runs
		(run_id, input_path, input_size, input_modtime, state, variants, calls, started, finished)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Input.Path, r.Input.Size, r.Input.ModTime.UTC(), r.State,
		r.Variants, r.Calls, r.Started.UTC(), r.Finished.UTC())
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.RunID, err)
	}
	return nil
}

// Runs returns the recorded runs, oldest first.
func (s *Store) Runs(ctx context.Context) ([]store.RunRecord, error) {
	if _, err := s.db.ExecContext(ctx, runsDDL); err != nil {
		return nil, fmt.Errorf("create ingest_runs: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, input_path, input_size, input_modtime,
		state, variants, calls, started, finished FROM ingest_runs ORDER BY started`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []store.RunRecord
	for rows.Next() {
		var r store.RunRecord
		if err := rows.Scan(&r.RunID, &r.Input.Path, &r.Input.Size, &r.Input.ModTime,
			&r.State, &r.Variants, &r.Calls, &r.Started, &r.Finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
