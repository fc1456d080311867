// Package inbox feeds files dropped into a watched directory to a session.
package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wudi/pdfmerge/collection"
	"github.com/wudi/pdfmerge/observability"
)

const defaultDebounce = 150 * time.Millisecond

// Sink receives candidates in the order their files appeared.
type Sink interface {
	AddFiles(ctx context.Context, candidates ...collection.Candidate) int
}

type Config struct {
	Dir string
	// Debounce is how long the directory must stay quiet before pending files
	// are offered. Zero means 150ms.
	Debounce time.Duration
	Logger   observability.Logger
}

// Watcher offers every regular file created in Dir to its sink. Admission is
// the sink's business, so non-PDF drops surface as rejections there.
type Watcher struct {
	cfg  Config
	sink Sink

	pending []string
	queued  map[string]struct{}
	offered map[string]struct{}
}

func New(cfg Config, sink Sink) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	return &Watcher{
		cfg:     cfg,
		sink:    sink,
		queued:  make(map[string]struct{}),
		offered: make(map[string]struct{}),
	}
}

// Run watches until ctx is done. Files present before Run are ignored.
func (w *Watcher) Run(ctx context.Context, ready func()) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Dir, err)
	}
	w.cfg.Logger.Info("inbox watching",
		observability.String("dir", w.cfg.Dir),
		observability.Duration("debounce", w.cfg.Debounce))
	if ready != nil {
		ready()
	}

	var debounce *time.Timer
	defer stopTimer(&debounce)
	for {
		var debounceC <-chan time.Time
		if debounce != nil {
			debounceC = debounce.C
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.handle(ev) {
				w.schedule(&debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok || err == nil {
				continue
			}
			w.cfg.Logger.Error("inbox watcher error", observability.Error("error", err))
		case <-debounceC:
			stopTimer(&debounce)
			w.flush(ctx)
		}
	}
}

// handle records ev and reports whether the debounce timer should restart.
func (w *Watcher) handle(ev fsnotify.Event) bool {
	path := filepath.Clean(ev.Name)
	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A file dropped again under the same name is a new drop.
		delete(w.offered, path)
		return false
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if _, ok := w.offered[path]; ok {
			return false
		}
		if _, ok := w.queued[path]; !ok {
			w.queued[path] = struct{}{}
			w.pending = append(w.pending, path)
		}
		return true
	}
	return false
}

func (w *Watcher) flush(ctx context.Context) {
	var candidates []collection.Candidate
	for _, path := range w.pending {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		w.offered[path] = struct{}{}
		candidates = append(candidates, collection.Candidate{
			Name:    filepath.Base(path),
			Size:    info.Size(),
			Content: collection.File(path),
		})
	}
	w.pending = w.pending[:0]
	clear(w.queued)
	if len(candidates) == 0 {
		return
	}
	n := w.sink.AddFiles(ctx, candidates...)
	w.cfg.Logger.Info("inbox files offered",
		observability.Int("offered", len(candidates)),
		observability.Int("admitted", n))
}

func (w *Watcher) schedule(timer **time.Timer) {
	if *timer == nil {
		*timer = time.NewTimer(w.cfg.Debounce)
		return
	}
	if !(*timer).Stop() {
		select {
		case <-(*timer).C:
		default:
		}
	}
	(*timer).Reset(w.cfg.Debounce)
}

func stopTimer(timer **time.Timer) {
	if *timer == nil {
		return
	}
	if !(*timer).Stop() {
		select {
		case <-(*timer).C:
		default:
		}
	}
	*timer = nil
}
