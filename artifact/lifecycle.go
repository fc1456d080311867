package artifact

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wudi/pdfmerge/observability"
)

var (
	ErrNoArtifact    = errors.New("artifact: nothing merged yet")
	ErrHandleExpired = errors.New("artifact: handle expired or revoked")
)

type Purpose string

const (
	PurposeDownload Purpose = "download"
	PurposePreview  Purpose = "preview"
)

// Handle is a revocable reference to one artifact. It never resolves to a
// different artifact than the one it was issued for.
type Handle struct {
	Token      string
	ArtifactID uuid.UUID
	Purpose    Purpose
	ExpiresAt  time.Time
}

type Config struct {
	// DownloadTTL and PreviewTTL bound how long a handle stays valid when the
	// consumer never revokes it. Zero selects 1s and 5s.
	DownloadTTL time.Duration
	PreviewTTL  time.Duration
	Logger      observability.Logger
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

type handleState struct {
	h        Handle
	artifact *Artifact
	timer    *time.Timer
}

// Lifecycle holds at most one artifact and the handles issued for it.
type Lifecycle struct {
	cfg     Config
	mu      sync.Mutex
	current *Artifact
	handles map[string]*handleState
}

func NewLifecycle(cfg Config) *Lifecycle {
	if cfg.DownloadTTL <= 0 {
		cfg.DownloadTTL = time.Second
	}
	if cfg.PreviewTTL <= 0 {
		cfg.PreviewTTL = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Lifecycle{cfg: cfg, handles: make(map[string]*handleState)}
}

// Store replaces the held artifact. Handles for the previous one are revoked
// before the new one becomes visible.
func (l *Lifecycle) Store(a *Artifact) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revokeAllLocked()
	l.current = a
	l.cfg.Logger.Debug("artifact stored",
		observability.String("id", a.ID.String()),
		observability.Int64("bytes", a.Size),
		observability.Int("pages", a.PageCount))
}

func (l *Lifecycle) Expose(p Purpose) (*Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return nil, ErrNoArtifact
	}
	ttl := l.cfg.DownloadTTL
	if p == PurposePreview {
		ttl = l.cfg.PreviewTTL
	}
	h := Handle{
		Token:      uuid.NewString(),
		ArtifactID: l.current.ID,
		Purpose:    p,
		ExpiresAt:  l.cfg.Now().Add(ttl),
	}
	st := &handleState{h: h, artifact: l.current}
	st.timer = time.AfterFunc(ttl, func() { l.revoke(h.Token, "expired") })
	l.handles[h.Token] = st
	return &h, nil
}

// Open returns the artifact behind a live handle token.
func (l *Lifecycle) Open(token string) (*Artifact, *Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.handles[token]
	if !ok {
		return nil, nil, ErrHandleExpired
	}
	if !l.cfg.Now().Before(st.h.ExpiresAt) {
		l.dropLocked(token)
		return nil, nil, ErrHandleExpired
	}
	h := st.h
	return st.artifact, &h, nil
}

// Revoke releases h. Revoking twice, or after expiry, is not an error.
func (l *Lifecycle) Revoke(h *Handle) {
	if h == nil {
		return
	}
	l.revoke(h.Token, "revoked")
}

func (l *Lifecycle) revoke(token, why string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.handles[token]; ok {
		l.dropLocked(token)
		l.cfg.Logger.Debug("handle released", observability.String("reason", why))
	}
}

// Clear drops the artifact and every outstanding handle.
func (l *Lifecycle) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revokeAllLocked()
	l.current = nil
}

func (l *Lifecycle) Current() *Artifact {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Outstanding counts handles not yet revoked or expired.
func (l *Lifecycle) Outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handles)
}

func (l *Lifecycle) revokeAllLocked() {
	for token := range l.handles {
		l.dropLocked(token)
	}
}

func (l *Lifecycle) dropLocked(token string) {
	if st, ok := l.handles[token]; ok {
		st.timer.Stop()
		delete(l.handles, token)
	}
}
