package ingest

import (
	"time"

	"github.com/google/uuid"

	"github.com/inodb/vcfload/internal/store"
)

// Summary is the outcome of one ingestion run.
type Summary struct {
	RunID string
	Input store.FileFingerprint
	State State

	Workers int
	Shards  int

	LinesRead        int // non-empty body lines attempted
	LinesSkipped     int // comment lines, malformed records and rejected documents
	LinesUnprocessed int // body lines left behind by shards that stopped early

	SamplesCreated  int
	SamplesExisting int

	VariantsWritten   int
	VariantsDuplicate int

	CallsWritten   int
	CallsDuplicate int
	CallsOrphaned  int // sample not found

	Warnings      map[string]int // counts per error kind
	Errors        []string       // first reported messages
	ShardFailures []string

	// Store totals after the run.
	StoredSamples  int64
	StoredVariants int64

	Started time.Time
	Elapsed time.Duration

	maxErrors int
}

func newSummary(maxErrors int) *Summary {
	return &Summary{
		RunID:     uuid.NewString(),
		State:     Idle,
		Warnings:  make(map[string]int),
		Started:   time.Now(),
		maxErrors: maxErrors,
	}
}

// note counts err under kind and keeps its message while there is room.
func (s *Summary) note(kind string, msg string) {
	s.Warnings[kind]++
	s.report(msg)
}

func (s *Summary) report(msg string) {
	if len(s.Errors) < s.maxErrors {
		s.Errors = append(s.Errors, msg)
	}
}

// merge folds one shard's counters into the summary.
func (s *Summary) merge(r ShardResult) {
	s.LinesRead += r.Lines
	s.LinesSkipped += r.Malformed + r.Rejected
	s.LinesUnprocessed += r.Unprocessed
	s.VariantsWritten += r.VariantsWritten
	s.VariantsDuplicate += r.VariantsDuplicate
	s.CallsWritten += r.CallsWritten
	s.CallsDuplicate += r.CallsDuplicate
	s.CallsOrphaned += r.CallsOrphaned
	for k, n := range r.Warnings {
		s.Warnings[k] += n
	}
	for _, msg := range r.Errors {
		s.report(msg)
	}
	if r.Err != nil {
		s.ShardFailures = append(s.ShardFailures, r.Err.Error())
	}
}

// WarningCount returns the total number of warnings of all kinds.
func (s *Summary) WarningCount() int {
	n := 0
	for _, c := range s.Warnings {
		n += c
	}
	return n
}

func (s *Summary) record() store.RunRecord {
	return store.RunRecord{
		RunID:    s.RunID,
		Input:    s.Input,
		State:    s.State.String(),
		Variants: int64(s.VariantsWritten),
		Calls:    int64(s.CallsWritten),
		Started:  s.Started,
		Finished: s.Started.Add(s.Elapsed),
	}
}
