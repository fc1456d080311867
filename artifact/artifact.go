// Package artifact owns the most recent merge result and the short-lived
// handles through which it is downloaded or previewed.
package artifact

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Artifact is a finished merge. The payload is never modified after New.
type Artifact struct {
	ID            uuid.UUID
	Payload       []byte
	MediaType     string
	Size          int64
	PageCount     int
	CreatedAt     time.Time
	SuggestedName string
	Digest        [blake2b.Size256]byte
}

// New builds an artifact around payload, naming it after createdAt.
func New(payload []byte, pageCount int, createdAt time.Time) *Artifact {
	return &Artifact{
		ID:            uuid.New(),
		Payload:       payload,
		MediaType:     "application/pdf",
		Size:          int64(len(payload)),
		PageCount:     pageCount,
		CreatedAt:     createdAt,
		SuggestedName: SuggestedName(createdAt),
		Digest:        blake2b.Sum256(payload),
	}
}

// SuggestedName returns "merged-pdf-2006-01-02T15-04-05.pdf" in UTC.
func SuggestedName(t time.Time) string {
	return "merged-pdf-" + t.UTC().Format("2006-01-02T15-04-05") + ".pdf"
}

// ETag is a strong entity tag derived from the payload digest.
func (a *Artifact) ETag() string {
	return `"` + hex.EncodeToString(a.Digest[:16]) + `"`
}
