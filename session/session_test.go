package session_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfmerge/artifact"
	"github.com/wudi/pdfmerge/collection"
	"github.com/wudi/pdfmerge/internal/testpdf"
	"github.com/wudi/pdfmerge/merge"
	"github.com/wudi/pdfmerge/notify"
	"github.com/wudi/pdfmerge/pdf"
	"github.com/wudi/pdfmerge/session"
)

func candidate(name string, data []byte) collection.Candidate {
	return collection.Candidate{Name: name, Size: int64(len(data)), MediaType: "application/pdf", Content: collection.Bytes(data)}
}

func newSession(rec notify.Notifier) *session.Session {
	return session.New(session.Config{
		Notifier:  rec,
		Merge:     merge.Config{Library: pdf.NewEngine(pdf.EngineConfig{})},
		Artifacts: artifact.Config{DownloadTTL: time.Minute, PreviewTTL: time.Minute},
	})
}

func TestSessionEndToEnd(t *testing.T) {
	rec := &notify.Recorder{}
	s := newSession(rec)
	ctx := context.Background()

	n := s.AddFiles(ctx, candidate("a.pdf", testpdf.New("A", 1)), candidate("b.pdf", testpdf.New("B", 2)))
	require.Equal(t, 2, n)
	require.NoError(t, s.MoveFile(1, collection.Up))

	run, err := s.MergeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, run.PageCount)
	assert.Same(t, run.Artifact, s.Artifacts().Current())

	var buf bytes.Buffer
	name, err := s.Download(&buf)
	require.NoError(t, err)
	assert.Equal(t, run.Artifact.SuggestedName, name)
	assert.Equal(t, 0, s.Artifacts().Outstanding())

	markers, err := testpdf.PageMarkers(ctx, buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"B-P1", "B-P2", "A-P1"}, markers)
}

func TestFailedMergeKeepsPreviousArtifact(t *testing.T) {
	s := newSession(nil)
	ctx := context.Background()
	s.AddFiles(ctx, candidate("a.pdf", testpdf.New("A", 1)), candidate("b.pdf", testpdf.New("B", 1)))
	first, err := s.MergeAll(ctx)
	require.NoError(t, err)

	s.AddFiles(ctx, candidate("bad.pdf", []byte("%PDF-1.7 broken")))
	_, err = s.MergeAll(ctx)
	require.Error(t, err)
	assert.Same(t, first.Artifact, s.Artifacts().Current())
}

func TestClearAllDropsArtifact(t *testing.T) {
	s := newSession(nil)
	ctx := context.Background()
	s.AddFiles(ctx, candidate("a.pdf", testpdf.New("A", 1)), candidate("b.pdf", testpdf.New("B", 1)))
	_, err := s.MergeAll(ctx)
	require.NoError(t, err)
	h, err := s.RequestPreview()
	require.NoError(t, err)

	s.ClearAll()
	assert.Nil(t, s.Artifacts().Current())
	assert.Equal(t, 0, s.Files().Count())
	_, _, err = s.Artifacts().Open(h.Token)
	assert.ErrorIs(t, err, artifact.ErrHandleExpired)
	_, err = s.RequestDownload()
	assert.ErrorIs(t, err, artifact.ErrNoArtifact)
}

func TestUserErrors(t *testing.T) {
	s := newSession(nil)
	_, err := s.MergeAll(context.Background())
	assert.True(t, session.IsUserError(err))
	err = s.RemoveFile(0)
	assert.True(t, session.IsUserError(err))
	_, err = s.Download(&bytes.Buffer{})
	assert.True(t, session.IsUserError(err))
}

func TestSessionsAreIndependent(t *testing.T) {
	a, b := newSession(nil), newSession(nil)
	a.AddFiles(context.Background(), candidate("a.pdf", testpdf.New("A", 1)))
	assert.Equal(t, 1, a.Files().Count())
	assert.Equal(t, 0, b.Files().Count())
}

func TestZeroConfigSessionMerges(t *testing.T) {
	s := session.New(session.Config{})
	ctx := context.Background()
	require.Equal(t, 2, s.AddFiles(ctx, candidate("a.pdf", testpdf.New("A", 1)), candidate("b.pdf", testpdf.New("B", 1))))

	run, err := s.MergeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, merge.StatusSucceeded, run.Status)
	assert.Equal(t, 2, run.PageCount)
}
