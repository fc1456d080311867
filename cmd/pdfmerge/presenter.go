package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wudi/pdfmerge/notify"
)

type statusKind string

const (
	statusProcessing statusKind = "processing"
	statusSuccess    statusKind = "success"
	statusError      statusKind = "error"
)

// presenter renders notifications on a terminal. It keeps the latest status
// message; error messages lapse after notify.ErrorMessageLifetime.
type presenter struct {
	mu  sync.Mutex
	out io.Writer
	p   *message.Printer
	now func() time.Time

	text    string
	kind    statusKind
	expires time.Time
}

func newPresenter(out io.Writer, now func() time.Time) *presenter {
	if now == nil {
		now = time.Now
	}
	return &presenter{out: out, p: message.NewPrinter(language.English), now: now}
}

func (t *presenter) megabytes(n int64) string {
	return t.p.Sprintf("%.2f MB", float64(n)/1024/1024)
}

func (t *presenter) show(kind statusKind, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.text, t.kind = text, kind
	t.expires = time.Time{}
	if kind == statusError {
		t.expires = t.now().Add(notify.ErrorMessageLifetime)
	}
	fmt.Fprintf(t.out, "[%s] %s\n", kind, text)
}

// Status returns the message still on display, if any.
func (t *presenter) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.expires.IsZero() && !t.now().Before(t.expires) {
		t.text, t.kind, t.expires = "", "", time.Time{}
	}
	return t.text
}

func (t *presenter) FilesRejected(rejected []notify.Rejection) {
	for _, r := range rejected {
		t.show(statusError, fmt.Sprintf("%q is not a valid PDF file and was skipped.", r.Name))
	}
}

func (t *presenter) CollectionChanged(view []notify.FileView, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(view) == 0 {
		fmt.Fprintln(t.out, "No PDF files selected.")
		return
	}
	plural := ""
	if len(view) > 1 {
		plural = "s"
	}
	fmt.Fprintf(t.out, "%d PDF%s selected, total size: %s\n", len(view), plural, t.megabytes(total))
	for _, f := range view {
		fmt.Fprintf(t.out, "  %2d. %s (%s)\n", f.Index+1, f.Name, t.megabytes(f.Size))
	}
}

func (t *presenter) MergeProgress(p notify.Progress) {
	t.show(statusProcessing, fmt.Sprintf("Processing %s (%d/%d)...", p.FileName, p.Index+1, p.Total))
}

func (t *presenter) MergeSucceeded(s notify.Success) {
	msg := fmt.Sprintf("Merged into one document. Total pages: %d | Size: %s", s.PageCount, t.megabytes(s.SizeBytes))
	for _, name := range s.Skipped {
		msg += fmt.Sprintf("\n  skipped %q", name)
	}
	t.show(statusSuccess, msg)
}

func (t *presenter) MergeFailed(f notify.Failure) {
	switch {
	case f.Kind == notify.FailureCanceled:
		t.show(statusError, "Merge canceled.")
	case f.FileName != "" && (f.Kind == notify.FailureDecode || f.Kind == notify.FailureRead):
		t.show(statusError, fmt.Sprintf("Error processing %q. This file may be corrupted or password-protected.", f.FileName))
	default:
		t.show(statusError, fmt.Sprintf("Error merging PDFs: %v", f.Err))
	}
}

// say reports a user-action outcome that did not come through the notifier.
func (t *presenter) say(kind statusKind, format string, args ...any) {
	t.show(kind, fmt.Sprintf(format, args...))
}
