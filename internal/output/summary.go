// Package output provides ingestion report formatters.
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/inodb/vcfload/internal/ingest"
)

// SummaryWriter writes an ingestion summary in tab-delimited format:
// one "key<TAB>value" row per counter, then the reported errors.
type SummaryWriter struct {
	w *bufio.Writer
}

// NewSummaryWriter creates a new tab-delimited summary writer.
func NewSummaryWriter(w io.Writer) *SummaryWriter {
	return &SummaryWriter{w: bufio.NewWriter(w)}
}

func (sw *SummaryWriter) row(key, value string) error {
	_, err := sw.w.WriteString(key + "\t" + value + "\n")
	return err
}

// Write writes sum for database.
func (sw *SummaryWriter) Write(database string, sum *ingest.Summary) error {
	rows := [][2]string{
		{"run_id", sum.RunID},
		{"database", database},
		{"input", sum.Input.Path},
		{"state", sum.State.String()},
		{"workers", strconv.Itoa(sum.Workers)},
		{"shards", strconv.Itoa(sum.Shards)},
		{"lines_read", strconv.Itoa(sum.LinesRead)},
		{"lines_skipped", strconv.Itoa(sum.LinesSkipped)},
		{"lines_unprocessed", strconv.Itoa(sum.LinesUnprocessed)},
		{"samples_created", strconv.Itoa(sum.SamplesCreated)},
		{"samples_existing", strconv.Itoa(sum.SamplesExisting)},
		{"variants_written", strconv.Itoa(sum.VariantsWritten)},
		{"variants_duplicate", strconv.Itoa(sum.VariantsDuplicate)},
		{"calls_written", strconv.Itoa(sum.CallsWritten)},
		{"calls_duplicate", strconv.Itoa(sum.CallsDuplicate)},
		{"calls_orphaned", strconv.Itoa(sum.CallsOrphaned)},
		{"stored_samples", strconv.FormatInt(sum.StoredSamples, 10)},
		{"stored_variants", strconv.FormatInt(sum.StoredVariants, 10)},
		{"elapsed", sum.Elapsed.Round(time.Millisecond).String()},
	}
	for _, r := range rows {
		if err := sw.row(r[0], r[1]); err != nil {
			return err
		}
	}

	kinds := make([]string, 0, len(sum.Warnings))
	for k := range sum.Warnings {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	for _, k := range kinds {
		if err := sw.row("warnings."+k, strconv.Itoa(sum.Warnings[k])); err != nil {
			return err
		}
	}

	for _, f := range sum.ShardFailures {
		if err := sw.row("shard_failure", oneLine(f)); err != nil {
			return err
		}
	}
	for _, e := range sum.Errors {
		if err := sw.row("error", oneLine(e)); err != nil {
			return err
		}
	}
	if n := sum.WarningCount(); n > len(sum.Errors) {
		if err := sw.row("errors_omitted", strconv.Itoa(n-len(sum.Errors))); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes any buffered data to the underlying writer.
func (sw *SummaryWriter) Flush() error {
	return sw.w.Flush()
}

func oneLine(s string) string {
	return strings.NewReplacer("\t", " ", "\n", " ").Replace(s)
}

// summaryJSON is the JSON shape of a report.
type summaryJSON struct {
	RunID             string         `json:"run_id"`
	Database          string         `json:"database"`
	Input             string         `json:"input"`
	State             string         `json:"state"`
	Workers           int            `json:"workers"`
	Shards            int            `json:"shards"`
	LinesRead         int            `json:"lines_read"`
	LinesSkipped      int            `json:"lines_skipped"`
	LinesUnprocessed  int            `json:"lines_unprocessed"`
	SamplesCreated    int            `json:"samples_created"`
	SamplesExisting   int            `json:"samples_existing"`
	VariantsWritten   int            `json:"variants_written"`
	VariantsDuplicate int            `json:"variants_duplicate"`
	CallsWritten      int            `json:"calls_written"`
	CallsDuplicate    int            `json:"calls_duplicate"`
	CallsOrphaned     int            `json:"calls_orphaned"`
	StoredSamples     int64          `json:"stored_samples"`
	StoredVariants    int64          `json:"stored_variants"`
	ElapsedSeconds    float64        `json:"elapsed_seconds"`
	Warnings          map[string]int `json:"warnings"`
	ShardFailures     []string       `json:"shard_failures"`
	Errors            []string       `json:"errors"`
}

// WriteJSON writes sum for database as a single indented JSON object.
func WriteJSON(w io.Writer, database string, sum *ingest.Summary) error {
	out := summaryJSON{
		RunID:             sum.RunID,
		Database:          database,
		Input:             sum.Input.Path,
		State:             sum.State.String(),
		Workers:           sum.Workers,
		Shards:            sum.Shards,
		LinesRead:         sum.LinesRead,
		LinesSkipped:      sum.LinesSkipped,
		LinesUnprocessed:  sum.LinesUnprocessed,
		SamplesCreated:    sum.SamplesCreated,
		SamplesExisting:   sum.SamplesExisting,
		VariantsWritten:   sum.VariantsWritten,
		VariantsDuplicate: sum.VariantsDuplicate,
		CallsWritten:      sum.CallsWritten,
		CallsDuplicate:    sum.CallsDuplicate,
		CallsOrphaned:     sum.CallsOrphaned,
		StoredSamples:     sum.StoredSamples,
		StoredVariants:    sum.StoredVariants,
		ElapsedSeconds:    sum.Elapsed.Seconds(),
		Warnings:          sum.Warnings,
		ShardFailures:     nonNil(sum.ShardFailures),
		Errors:            nonNil(sum.Errors),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
