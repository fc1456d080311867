// Package pdf is the document capability the merge pipeline is written against:
// create an empty document, load one from bytes, copy pages between documents,
// append them and serialize the result.
package pdf

import (
	"context"
	"errors"
)

var (
	// ErrDecode wraps every reason a source could not be read as a PDF,
	// including encryption.
	ErrDecode = errors.New("pdf: decode failed")
	// ErrForeignPage is returned by AddPage for a page copied into another document.
	ErrForeignPage    = errors.New("pdf: page belongs to another document")
	ErrPageIndex      = errors.New("pdf: page index out of range")
	ErrPageAlreadyAdd = errors.New("pdf: page already added")
)

// Library is the minimal set of document operations a merge needs.
type Library interface {
	CreateDocument() (*Document, error)
	LoadDocument(ctx context.Context, data []byte) (*Document, error)
	PageIndices(doc *Document) []int
	CopyPages(ctx context.Context, target, source *Document, indices []int) ([]*Page, error)
	AddPage(target *Document, page *Page) error
	Serialize(ctx context.Context, doc *Document) ([]byte, error)
}
