// Package preview serves merged artifacts over HTTP through revocable handles.
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/yuin/goldmark"
	"golang.org/x/net/netutil"

	"github.com/wudi/pdfmerge/artifact"
	"github.com/wudi/pdfmerge/observability"
)

type Config struct {
	// Listen is the TCP address; empty means 127.0.0.1:0.
	Listen string
	// MaxConns caps concurrent connections. Zero means 16.
	MaxConns int
	Logger   observability.Logger
}

// Server exposes the artifact held by a Lifecycle. It never reads the
// collection and never triggers a merge.
type Server struct {
	cfg       Config
	artifacts *artifact.Lifecycle
	md        goldmark.Markdown
	mux       *http.ServeMux
	http      *http.Server
}

func New(cfg Config, artifacts *artifact.Lifecycle) *Server {
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:0"
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	s := &Server{cfg: cfg, artifacts: artifacts, md: goldmark.New()}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET /{$}", s.handleStatus)
	s.mux.HandleFunc("GET /preview", s.handleIssue(artifact.PurposePreview))
	s.mux.HandleFunc("GET /download", s.handleIssue(artifact.PurposeDownload))
	s.mux.HandleFunc("GET /artifacts/{token}", s.handleArtifact)
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// Listen binds the configured address.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	return ln, nil
}

// Serve blocks until ctx is canceled or the listener fails. The listener is
// wrapped so at most MaxConns connections are served at once.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.http = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = s.http.Shutdown(shutdownCtx)
		case <-done:
		}
	}()
	defer close(done)

	s.cfg.Logger.Info("preview server listening", observability.String("addr", ln.Addr().String()))
	err := s.http.Serve(netutil.LimitListener(ln, s.cfg.MaxConns))
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// URL returns the address of a handle relative to base, for example
// "http://127.0.0.1:8089".
func URL(base string, h *artifact.Handle) string {
	return base + "/artifacts/" + h.Token
}

// handleIssue exposes a fresh handle and redirects to it, so a link on the
// status page never carries an already expired token.
func (s *Server) handleIssue(p artifact.Purpose) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, err := s.artifacts.Expose(p)
		if err != nil {
			http.Error(w, "nothing merged yet", http.StatusNotFound)
			return
		}
		http.Redirect(w, r, "/artifacts/"+h.Token, http.StatusSeeOther)
	}
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	a, h, err := s.artifacts.Open(r.PathValue("token"))
	switch {
	case errors.Is(err, artifact.ErrHandleExpired):
		http.Error(w, "handle expired", http.StatusGone)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	disposition := "inline"
	if h.Purpose == artifact.PurposeDownload {
		disposition = fmt.Sprintf("attachment; filename=%q", a.SuggestedName)
	}
	w.Header().Set("Content-Type", a.MediaType)
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("ETag", a.ETag())
	w.Header().Set("Cache-Control", "no-store")
	sw := &statusWriter{ResponseWriter: w}
	http.ServeContent(sw, r, a.SuggestedName, a.CreatedAt, bytes.NewReader(a.Payload))

	// A download handle is used up by the first complete body. HEAD, range and
	// conditional requests leave it for the real fetch.
	if h.Purpose == artifact.PurposeDownload && r.Method == http.MethodGet && sw.status() == http.StatusOK {
		s.artifacts.Revoke(h)
	}

	s.cfg.Logger.Debug("artifact served",
		observability.String("purpose", string(h.Purpose)),
		observability.String("artifact", h.ArtifactID.String()),
		observability.Int64("bytes", a.Size))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var page bytes.Buffer
	if err := s.md.Convert(statusMarkdown(s.artifacts.Current()), &page); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(page.Len()))
	_, _ = w.Write(page.Bytes())
}

// statusWriter remembers the status code ServeContent chose.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.code == 0 {
		w.code = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) status() int {
	if w.code == 0 {
		return http.StatusOK
	}
	return w.code
}
