package artifact_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfmerge/artifact"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newLifecycle() (*artifact.Lifecycle, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)}
	return artifact.NewLifecycle(artifact.Config{DownloadTTL: time.Minute, PreviewTTL: time.Hour, Now: clock.Now}), clock
}

func TestNewArtifact(t *testing.T) {
	created := time.Date(2024, 3, 9, 15, 5, 7, 0, time.FixedZone("CET", 3600))
	a := artifact.New([]byte("%PDF-1.7 payload"), 4, created)
	assert.Equal(t, "merged-pdf-2024-03-09T14-05-07.pdf", a.SuggestedName)
	assert.Equal(t, "application/pdf", a.MediaType)
	assert.EqualValues(t, 16, a.Size)
	assert.Equal(t, 4, a.PageCount)
	assert.NotEqual(t, a.ID, artifact.New(nil, 0, created).ID)
	assert.Len(t, a.ETag(), 34)
}

func TestExposeWithoutArtifact(t *testing.T) {
	l, _ := newLifecycle()
	_, err := l.Expose(artifact.PurposeDownload)
	assert.ErrorIs(t, err, artifact.ErrNoArtifact)
}

func TestStoreInvalidatesPreviousHandles(t *testing.T) {
	l, _ := newLifecycle()
	first := artifact.New([]byte("first"), 1, time.Now())
	l.Store(first)
	h, err := l.Expose(artifact.PurposePreview)
	require.NoError(t, err)

	got, gotHandle, err := l.Open(h.Token)
	require.NoError(t, err)
	assert.Same(t, first, got)
	assert.Equal(t, artifact.PurposePreview, gotHandle.Purpose)

	second := artifact.New([]byte("second"), 2, time.Now())
	l.Store(second)
	_, _, err = l.Open(h.Token)
	assert.ErrorIs(t, err, artifact.ErrHandleExpired)
	assert.Same(t, second, l.Current())
	assert.Equal(t, 0, l.Outstanding())
}

func TestRevokeIsIdempotent(t *testing.T) {
	l, _ := newLifecycle()
	l.Store(artifact.New([]byte("x"), 1, time.Now()))
	h, err := l.Expose(artifact.PurposeDownload)
	require.NoError(t, err)
	assert.Equal(t, 1, l.Outstanding())

	l.Revoke(h)
	l.Revoke(h)
	l.Revoke(nil)
	assert.Equal(t, 0, l.Outstanding())
	_, _, err = l.Open(h.Token)
	assert.ErrorIs(t, err, artifact.ErrHandleExpired)
}

func TestHandleExpiresByClock(t *testing.T) {
	l, clock := newLifecycle()
	l.Store(artifact.New([]byte("x"), 1, time.Now()))
	h, err := l.Expose(artifact.PurposeDownload)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Minute), h.ExpiresAt)

	clock.Advance(59 * time.Second)
	_, _, err = l.Open(h.Token)
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, _, err = l.Open(h.Token)
	assert.ErrorIs(t, err, artifact.ErrHandleExpired)
}

func TestHandleExpiresByTimer(t *testing.T) {
	l := artifact.NewLifecycle(artifact.Config{DownloadTTL: 10 * time.Millisecond})
	l.Store(artifact.New([]byte("x"), 1, time.Now()))
	for i := 0; i < 5; i++ {
		_, err := l.Expose(artifact.PurposeDownload)
		require.NoError(t, err)
	}
	assert.Eventually(t, func() bool { return l.Outstanding() == 0 }, time.Second, 5*time.Millisecond)
}

func TestClearDropsArtifactAndHandles(t *testing.T) {
	l, _ := newLifecycle()
	l.Store(artifact.New([]byte("x"), 1, time.Now()))
	h, err := l.Expose(artifact.PurposePreview)
	require.NoError(t, err)

	l.Clear()
	assert.Nil(t, l.Current())
	assert.Equal(t, 0, l.Outstanding())
	_, _, err = l.Open(h.Token)
	assert.ErrorIs(t, err, artifact.ErrHandleExpired)
	_, err = l.Expose(artifact.PurposeDownload)
	assert.ErrorIs(t, err, artifact.ErrNoArtifact)
}
