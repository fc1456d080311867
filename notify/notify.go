// Package notify is the one-way event surface from the merge core to whatever
// presents it: a terminal, a log, or the preview page.
package notify

import "time"

type Reason string

const ReasonInvalidFileType Reason = "invalid file type"

// Rejection names a candidate that was refused at admission.
type Rejection struct {
	Name      string
	Reason    Reason
	MediaType string
}

// FileView is one row of the collection as a presenter renders it.
type FileView struct {
	Index int
	Name  string
	Size  int64
}

// Progress is emitted once per file, before that file is read.
type Progress struct {
	FileName string
	Index    int
	Total    int
}

type Success struct {
	PageCount     int
	SizeBytes     int64
	SuggestedName string
	// Skipped lists sources left out under the skip-failed policy.
	Skipped []string
}

type FailureKind string

const (
	FailureRead      FailureKind = "read"
	FailureDecode    FailureKind = "decode"
	FailureSerialize FailureKind = "serialize"
	FailureVerify    FailureKind = "verify"
	FailureCanceled  FailureKind = "canceled"
)

// Failure describes a run that produced no artifact. FileName is empty when the
// failure is not tied to one source.
type Failure struct {
	FileName string
	Index    int
	Kind     FailureKind
	Err      error
}

type Notifier interface {
	FilesRejected(rejected []Rejection)
	CollectionChanged(view []FileView, totalSize int64)
	MergeProgress(p Progress)
	MergeSucceeded(s Success)
	MergeFailed(f Failure)
}

// ErrorMessageLifetime is how long a presenter keeps a rejection or failure
// message on screen. Success messages stay until the next action.
const ErrorMessageLifetime = 7 * time.Second

type Nop struct{}

func (Nop) FilesRejected([]Rejection)           {}
func (Nop) CollectionChanged([]FileView, int64) {}
func (Nop) MergeProgress(Progress)              {}
func (Nop) MergeSucceeded(Success)              {}
func (Nop) MergeFailed(Failure)                 {}

// Multi fans every event out to each notifier in order.
type Multi []Notifier

func (m Multi) FilesRejected(r []Rejection) {
	for _, n := range m {
		n.FilesRejected(r)
	}
}

func (m Multi) CollectionChanged(v []FileView, total int64) {
	for _, n := range m {
		n.CollectionChanged(v, total)
	}
}

func (m Multi) MergeProgress(p Progress) {
	for _, n := range m {
		n.MergeProgress(p)
	}
}

func (m Multi) MergeSucceeded(s Success) {
	for _, n := range m {
		n.MergeSucceeded(s)
	}
}

func (m Multi) MergeFailed(f Failure) {
	for _, n := range m {
		n.MergeFailed(f)
	}
}
