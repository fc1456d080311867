package notify_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfmerge/notify"
	"github.com/wudi/pdfmerge/observability"
)

func TestMultiFansOut(t *testing.T) {
	a, b := &notify.Recorder{}, &notify.Recorder{}
	m := notify.Multi{a, notify.Nop{}, b}

	m.FilesRejected([]notify.Rejection{{Name: "x.txt", Reason: notify.ReasonInvalidFileType}})
	m.CollectionChanged([]notify.FileView{{Name: "a.pdf", Size: 10}}, 10)
	m.MergeProgress(notify.Progress{FileName: "a.pdf", Index: 0, Total: 2})
	m.MergeSucceeded(notify.Success{PageCount: 3})
	m.MergeFailed(notify.Failure{FileName: "b.pdf", Kind: notify.FailureDecode})

	for _, r := range []*notify.Recorder{a, b} {
		require.Len(t, r.Rejections, 1)
		assert.Equal(t, "x.txt", r.Rejections[0][0].Name)
		assert.Equal(t, []int64{10}, r.Totals)
		assert.Len(t, r.Progress, 1)
		assert.Len(t, r.Successes, 1)
		assert.Len(t, r.Failures, 1)
		assert.Equal(t, "a.pdf", r.LastView()[0].Name)
	}
}

func TestRecorderCopiesSlices(t *testing.T) {
	r := &notify.Recorder{}
	view := []notify.FileView{{Name: "a.pdf"}}
	r.CollectionChanged(view, 0)
	view[0].Name = "mutated"
	assert.Equal(t, "a.pdf", r.LastView()[0].Name)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	l := notify.Log{Logger: observability.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil)))}
	l.FilesRejected([]notify.Rejection{{Name: "notes.txt", Reason: notify.ReasonInvalidFileType}})
	l.MergeFailed(notify.Failure{FileName: "bad.pdf", Kind: notify.FailureDecode, Err: errors.New("boom")})
	out := buf.String()
	assert.Contains(t, out, "file=notes.txt")
	assert.Contains(t, out, "file=bad.pdf")
	assert.Contains(t, out, "kind=decode")
}
