// Package collection holds the ordered list of files waiting to be merged.
package collection

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/unicode/norm"

	"github.com/wudi/pdfmerge/notify"
)

const MediaTypePDF = "application/pdf"

var ErrInvalidIndex = errors.New("collection: invalid index")

// Candidate is a file offered for admission. MediaType is what the source
// declared, if anything; an empty value means the content is sniffed.
type Candidate struct {
	Name      string
	Size      int64
	MediaType string
	Content   Content
}

// PendingFile is an admitted input. It never changes after admission.
type PendingFile struct {
	Name      string
	Size      int64
	MediaType string
	Content   Content
}

// Snapshot is an immutable ordered copy of the collection.
type Snapshot []PendingFile

type Direction int

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// Collection is safe for concurrent use, though a single caller drives it in
// practice.
type Collection struct {
	mu       sync.Mutex
	files    []PendingFile
	notifier notify.Notifier
	onClear  []func()
}

func New(n notify.Notifier) *Collection {
	if n == nil {
		n = notify.Nop{}
	}
	return &Collection{notifier: n}
}

// OnClear registers fn to run after every Clear.
func (c *Collection) OnClear(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClear = append(c.onClear, fn)
}

// Add appends PDF-typed candidates in input order and reports the rest through
// the notifier. It never fails.
func (c *Collection) Add(ctx context.Context, candidates ...Candidate) (admitted []PendingFile, rejected []notify.Rejection) {
	for _, cand := range candidates {
		mt, ok := admit(ctx, cand)
		name := norm.NFC.String(cand.Name)
		if !ok {
			rejected = append(rejected, notify.Rejection{Name: name, Reason: notify.ReasonInvalidFileType, MediaType: mt})
			continue
		}
		admitted = append(admitted, PendingFile{Name: name, Size: cand.Size, MediaType: MediaTypePDF, Content: cand.Content})
	}

	if len(rejected) > 0 {
		c.notifier.FilesRejected(rejected)
	}
	if len(admitted) == 0 {
		return admitted, rejected
	}
	c.mu.Lock()
	c.files = append(c.files, admitted...)
	c.mu.Unlock()
	c.changed()
	return admitted, rejected
}

// admit reports whether cand is a PDF, and the media type it was judged by.
func admit(ctx context.Context, cand Candidate) (string, bool) {
	if cand.Content == nil {
		return cand.MediaType, false
	}
	if cand.MediaType != "" {
		mt, _, err := mime.ParseMediaType(cand.MediaType)
		if err != nil {
			return cand.MediaType, false
		}
		return mt, mt == MediaTypePDF
	}
	detected := mimetype.Detect(head(ctx, cand.Content, 3072))
	return detected.String(), detected.Is(MediaTypePDF)
}

func (c *Collection) MoveUp(i int) error   { return c.Move(i, Up) }
func (c *Collection) MoveDown(i int) error { return c.Move(i, Down) }

// Move swaps the file at i with its neighbour. Moving past either end is a no-op.
func (c *Collection) Move(i int, d Direction) error {
	c.mu.Lock()
	if i < 0 || i >= len(c.files) {
		n := len(c.files)
		c.mu.Unlock()
		return fmt.Errorf("%w: %d (have %d)", ErrInvalidIndex, i, n)
	}
	j := i - 1
	if d == Down {
		j = i + 1
	}
	if j < 0 || j >= len(c.files) {
		c.mu.Unlock()
		return nil
	}
	c.files[i], c.files[j] = c.files[j], c.files[i]
	c.mu.Unlock()
	c.changed()
	return nil
}

func (c *Collection) Remove(i int) error {
	c.mu.Lock()
	if i < 0 || i >= len(c.files) {
		n := len(c.files)
		c.mu.Unlock()
		return fmt.Errorf("%w: %d (have %d)", ErrInvalidIndex, i, n)
	}
	c.files = append(c.files[:i:i], c.files[i+1:]...)
	c.mu.Unlock()
	c.changed()
	return nil
}

// Clear empties the collection and runs the clear hooks, which drop any
// artifact built from the old file set.
func (c *Collection) Clear() {
	c.mu.Lock()
	c.files = nil
	hooks := append([]func(){}, c.onClear...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	c.changed()
}

func (c *Collection) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append(Snapshot(nil), c.files...)
}

func (c *Collection) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.files)
}

func (c *Collection) TotalSizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return totalSize(c.files)
}

// Files returns the current view for rendering.
func (c *Collection) Files() []notify.FileView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return view(c.files)
}

func (c *Collection) changed() {
	c.mu.Lock()
	v, total := view(c.files), totalSize(c.files)
	c.mu.Unlock()
	c.notifier.CollectionChanged(v, total)
}

func view(files []PendingFile) []notify.FileView {
	out := make([]notify.FileView, len(files))
	for i, f := range files {
		out[i] = notify.FileView{Index: i, Name: f.Name, Size: f.Size}
	}
	return out
}

func totalSize(files []PendingFile) int64 {
	var n int64
	for _, f := range files {
		n += f.Size
	}
	return n
}
