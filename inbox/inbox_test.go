package inbox_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfmerge/collection"
	"github.com/wudi/pdfmerge/inbox"
	"github.com/wudi/pdfmerge/internal/testpdf"
	"github.com/wudi/pdfmerge/notify"
)

// collectionSink admits through a real collection so rejections are visible.
type collectionSink struct {
	files *collection.Collection
}

func (s *collectionSink) AddFiles(ctx context.Context, c ...collection.Candidate) int {
	admitted, _ := s.files.Add(ctx, c...)
	return len(admitted)
}

func startWatcher(t *testing.T, dir string, sink inbox.Sink) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	w := inbox.New(inbox.Config{Dir: dir, Debounce: 30 * time.Millisecond}, sink)
	go func() { done <- w.Run(ctx, func() { close(ready) }) }()
	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("watcher failed to start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})
}

func TestDroppedFilesAreAdmittedInOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.pdf"), testpdf.New("OLD", 1), 0o644))

	rec := &notify.Recorder{}
	sink := &collectionSink{files: collection.New(rec)}
	startWatcher(t, dir, sink)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), testpdf.New("A", 1), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("just text"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.pdf"), testpdf.New("B", 2), 0o644))

	require.Eventually(t, func() bool { return sink.files.Count() == 2 }, 3*time.Second, 10*time.Millisecond)
	snap := sink.files.Snapshot()
	assert.Equal(t, "a.pdf", snap[0].Name)
	assert.Equal(t, "b.pdf", snap[1].Name)
	assert.EqualValues(t, len(testpdf.New("B", 2)), snap[1].Size)

	require.Eventually(t, func() bool { return len(rec.RejectedNames()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"notes.txt"}, rec.RejectedNames())
}

func TestRewritesAreNotOfferedTwice(t *testing.T) {
	dir := t.TempDir()
	sink := &collectionSink{files: collection.New(notify.Nop{})}
	startWatcher(t, dir, sink)

	path := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(path, testpdf.New("A", 1), 0o644))
	require.Eventually(t, func() bool { return sink.files.Count() == 1 }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, testpdf.New("A", 2), 0o644))
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, sink.files.Count())

	// Removing and dropping again counts as a new file.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.WriteFile(path, testpdf.New("A", 1), 0o644))
	require.Eventually(t, func() bool { return sink.files.Count() == 2 }, 3*time.Second, 10*time.Millisecond)
}

func TestRunFailsOnMissingDir(t *testing.T) {
	w := inbox.New(inbox.Config{Dir: filepath.Join(t.TempDir(), "missing")}, &collectionSink{})
	err := w.Run(context.Background(), nil)
	assert.Error(t, err)
}
