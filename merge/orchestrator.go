// Package merge drives a PDF library through a snapshot of pending files and
// produces a single artifact, or a failure naming the file that stopped it.
package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/wudi/pdfmerge/artifact"
	"github.com/wudi/pdfmerge/collection"
	"github.com/wudi/pdfmerge/notify"
	"github.com/wudi/pdfmerge/observability"
	"github.com/wudi/pdfmerge/pdf"
)

var (
	ErrInsufficientInputs = errors.New("merge: at least two files are required")
	ErrAlreadyInProgress  = errors.New("merge: already in progress")
)

type FailurePolicy int

const (
	// StopOnFirstFailure ends the run at the first unreadable source.
	StopOnFirstFailure FailurePolicy = iota
	// SkipFailed leaves unreadable sources out and reports them on success.
	SkipFailed
)

// ParseFailurePolicy accepts "stop" and "skip"; empty means stop.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "stop":
		return StopOnFirstFailure, nil
	case "skip":
		return SkipFailed, nil
	}
	return 0, fmt.Errorf("unknown failure policy %q", s)
}

// Verifier checks serialized output before it becomes an artifact.
type Verifier interface {
	Verify(ctx context.Context, payload []byte, wantPages int) error
}

type Config struct {
	Library  pdf.Library
	Notifier notify.Notifier
	Logger   observability.Logger
	Tracer   observability.Tracer
	Policy   FailurePolicy
	Verifier Verifier
	Now      func() time.Time
}

// Orchestrator runs at most one merge at a time.
type Orchestrator struct {
	cfg  Config
	busy *semaphore.Weighted
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NopTracer()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Library == nil {
		cfg.Library = pdf.NewEngine(pdf.EngineConfig{Logger: cfg.Logger, Tracer: cfg.Tracer})
	}
	return &Orchestrator{cfg: cfg, busy: semaphore.NewWeighted(1)}
}

// Merge concatenates the pages of every file in snapshot order. On success the
// run carries the artifact; on failure it carries a *FileError, which is also
// returned, and no artifact exists.
func (o *Orchestrator) Merge(ctx context.Context, snapshot collection.Snapshot) (*Run, error) {
	if len(snapshot) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientInputs, len(snapshot))
	}
	if !o.busy.TryAcquire(1) {
		return nil, ErrAlreadyInProgress
	}
	defer o.busy.Release(1)

	ctx, span := o.cfg.Tracer.StartSpan(ctx, observability.SpanMerge)
	defer span.Finish()
	span.SetTag(observability.MetricMergeInputs, len(snapshot))
	start := o.cfg.Now()

	run := &Run{Snapshot: append(collection.Snapshot(nil), snapshot...)}
	err := o.execute(ctx, run)
	if err != nil {
		span.SetError(err)
		var fe *FileError
		if errors.As(err, &fe) {
			run.Failure = fe
			o.cfg.Notifier.MergeFailed(fe.failure())
		}
		return run, err
	}

	run.Status = StatusSucceeded
	skipped := make([]string, len(run.Skipped))
	for i, s := range run.Skipped {
		skipped[i] = s.FileName
	}
	o.cfg.Logger.Info("merge complete",
		observability.Int("files", len(snapshot)-len(run.Skipped)),
		observability.Int("pages", run.PageCount),
		observability.Int64("bytes", run.Artifact.Size),
		observability.Duration(observability.MetricMergeTime, o.cfg.Now().Sub(start)))
	o.cfg.Notifier.MergeSucceeded(notify.Success{
		PageCount:     run.PageCount,
		SizeBytes:     run.Artifact.Size,
		SuggestedName: run.Artifact.SuggestedName,
		Skipped:       skipped,
	})
	return run, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *Run) error {
	lib := o.cfg.Library
	out, err := lib.CreateDocument()
	if err != nil {
		run.Status = StatusFailed
		return &FileError{Index: -1, Kind: notify.FailureSerialize, Err: err}
	}

	merged := 0
	for i, file := range run.Snapshot {
		if err := ctx.Err(); err != nil {
			run.Status = StatusFailed
			return &FileError{Index: i, Kind: notify.FailureCanceled, Err: err}
		}
		run.Index = i
		o.cfg.Notifier.MergeProgress(notify.Progress{FileName: file.Name, Index: i, Total: len(run.Snapshot)})

		pages, ferr := o.appendFile(ctx, out, i, file)
		if ferr != nil {
			if errors.Is(ferr.Err, context.Canceled) || errors.Is(ferr.Err, context.DeadlineExceeded) {
				run.Status = StatusFailed
				ferr.Kind = notify.FailureCanceled
				return ferr
			}
			if o.cfg.Policy == SkipFailed {
				o.cfg.Logger.Warn("skipping unreadable file",
					observability.String("file", file.Name),
					observability.Error("error", ferr.Err))
				run.Skipped = append(run.Skipped, ferr)
				continue
			}
			run.Status = StatusFileFailed
			return ferr
		}
		run.PageCount += pages
		merged++
	}

	if merged < 2 {
		// Only reachable under SkipFailed.
		run.Status = StatusFailed
		return &FileError{Index: -1, Kind: notify.FailureDecode,
			Err: fmt.Errorf("%w: %d of %d files readable", ErrInsufficientInputs, merged, len(run.Snapshot))}
	}

	payload, err := lib.Serialize(ctx, out)
	if err != nil {
		run.Status = StatusFailed
		return &FileError{Index: -1, Kind: notify.FailureSerialize, Err: err}
	}
	if o.cfg.Verifier != nil {
		if err := o.cfg.Verifier.Verify(ctx, payload, run.PageCount); err != nil {
			run.Status = StatusFailed
			return &FileError{Index: -1, Kind: notify.FailureVerify, Err: err}
		}
	}
	run.Artifact = artifact.New(payload, run.PageCount, o.cfg.Now())
	return nil
}

// appendFile reads one source and appends all of its pages to out.
func (o *Orchestrator) appendFile(ctx context.Context, out *pdf.Document, i int, file collection.PendingFile) (int, *FileError) {
	lib := o.cfg.Library
	fail := func(kind notify.FailureKind, err error) (int, *FileError) {
		return 0, &FileError{FileName: file.Name, Index: i, Kind: kind, Err: err}
	}

	data, err := file.Content.Bytes(ctx)
	if err != nil {
		return fail(notify.FailureRead, err)
	}
	src, err := lib.LoadDocument(ctx, data)
	if err != nil {
		return fail(notify.FailureDecode, err)
	}
	pages, err := lib.CopyPages(ctx, out, src, lib.PageIndices(src))
	if err != nil {
		return fail(notify.FailureDecode, err)
	}
	for _, p := range pages {
		if err := lib.AddPage(out, p); err != nil {
			return fail(notify.FailureDecode, err)
		}
	}
	o.cfg.Logger.Debug("file appended",
		observability.String("file", file.Name),
		observability.String("version", src.Version()),
		observability.Bool("repaired", src.Repaired()),
		observability.Int("pages", len(pages)))
	return len(pages), nil
}
