package store

import (
	"context"
	"os"
	"time"
)

// FileFingerprint holds stat-based identity for an input file.
type FileFingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// StatFile creates a FileFingerprint from an on-disk file.
func StatFile(path string) (FileFingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileFingerprint{}, err
	}
	return FileFingerprint{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// RunRecord is the persisted trace of one ingestion run.
type RunRecord struct {
	RunID    string
	Input    FileFingerprint
	State    string
	Variants int64
	Calls    int64
	Started  time.Time
	Finished time.Time
}

// RunRecorder is implemented by backends that keep a log of ingestion runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, r RunRecord) error
}
