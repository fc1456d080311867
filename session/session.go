// Package session ties the collection, the orchestrator and the artifact
// lifecycle together behind the user actions a presenter forwards.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfmerge/artifact"
	"github.com/wudi/pdfmerge/collection"
	"github.com/wudi/pdfmerge/merge"
	"github.com/wudi/pdfmerge/notify"
	"github.com/wudi/pdfmerge/observability"
)

// Session owns the state of one user's merge workspace. Nothing is global:
// independent sessions never share files or artifacts.
type Session struct {
	files     *collection.Collection
	merger    *merge.Orchestrator
	artifacts *artifact.Lifecycle
	log       observability.Logger
}

type Config struct {
	Notifier  notify.Notifier
	Merge     merge.Config
	Artifacts artifact.Config
	Logger    observability.Logger
}

func New(cfg Config) *Session {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Merge.Notifier == nil {
		cfg.Merge.Notifier = cfg.Notifier
	}
	if cfg.Merge.Logger == nil {
		cfg.Merge.Logger = cfg.Logger
	}
	if cfg.Artifacts.Logger == nil {
		cfg.Artifacts.Logger = cfg.Logger
	}
	s := &Session{
		files:     collection.New(cfg.Notifier),
		merger:    merge.NewOrchestrator(cfg.Merge),
		artifacts: artifact.NewLifecycle(cfg.Artifacts),
		log:       cfg.Logger,
	}
	s.files.OnClear(s.artifacts.Clear)
	return s
}

func (s *Session) Files() *collection.Collection     { return s.files }
func (s *Session) Artifacts() *artifact.Lifecycle    { return s.artifacts }
func (s *Session) Orchestrator() *merge.Orchestrator { return s.merger }

func (s *Session) AddFiles(ctx context.Context, candidates ...collection.Candidate) int {
	admitted, _ := s.files.Add(ctx, candidates...)
	return len(admitted)
}

func (s *Session) MoveFile(index int, d collection.Direction) error {
	return s.files.Move(index, d)
}

func (s *Session) RemoveFile(index int) error {
	return s.files.Remove(index)
}

// ClearAll empties the collection, which also drops the held artifact.
func (s *Session) ClearAll() {
	s.files.Clear()
}

// MergeAll merges the current files. A failed run leaves any earlier artifact
// in place.
func (s *Session) MergeAll(ctx context.Context) (*merge.Run, error) {
	run, err := s.merger.Merge(ctx, s.files.Snapshot())
	if err != nil {
		return run, err
	}
	s.artifacts.Store(run.Artifact)
	return run, nil
}

func (s *Session) RequestDownload() (*artifact.Handle, error) {
	return s.artifacts.Expose(artifact.PurposeDownload)
}

func (s *Session) RequestPreview() (*artifact.Handle, error) {
	return s.artifacts.Expose(artifact.PurposePreview)
}

// Download exposes the current artifact, copies it to w and releases the
// handle. It returns the suggested file name.
func (s *Session) Download(w io.Writer) (string, error) {
	h, err := s.RequestDownload()
	if err != nil {
		return "", err
	}
	defer s.artifacts.Revoke(h)
	a, _, err := s.artifacts.Open(h.Token)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(a.Payload); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	s.log.Info("artifact downloaded",
		observability.String("name", a.SuggestedName),
		observability.Int64("bytes", a.Size))
	return a.SuggestedName, nil
}

// IsUserError reports errors caused by how the session was driven rather than
// by the files themselves.
func IsUserError(err error) bool {
	return errors.Is(err, collection.ErrInvalidIndex) ||
		errors.Is(err, merge.ErrInsufficientInputs) ||
		errors.Is(err, merge.ErrAlreadyInProgress) ||
		errors.Is(err, artifact.ErrNoArtifact)
}
