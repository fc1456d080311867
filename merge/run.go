package merge

import (
	"fmt"

	"github.com/wudi/pdfmerge/artifact"
	"github.com/wudi/pdfmerge/collection"
	"github.com/wudi/pdfmerge/notify"
)

type Status int

const (
	StatusPending Status = iota
	StatusSucceeded
	// StatusFileFailed means one named source could not be read or copied.
	StatusFileFailed
	// StatusFailed covers failures not tied to a source: serialization,
	// verification and cancellation.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFileFailed:
		return "file failed"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Run is the record of one merge attempt.
type Run struct {
	Snapshot  collection.Snapshot
	Index     int
	PageCount int
	Status    Status
	Artifact  *artifact.Artifact
	Failure   *FileError
	// Skipped holds sources left out under SkipFailed.
	Skipped []*FileError
}

// FileError is a failure attributed to one source of the snapshot.
type FileError struct {
	FileName string
	Index    int
	Kind     notify.FailureKind
	Err      error
}

func (e *FileError) Error() string {
	if e.FileName == "" {
		return fmt.Sprintf("merge %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("merge %q (file %d): %s: %v", e.FileName, e.Index+1, e.Kind, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

func (e *FileError) failure() notify.Failure {
	return notify.Failure{FileName: e.FileName, Index: e.Index, Kind: e.Kind, Err: e.Err}
}
