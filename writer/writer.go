package writer

import (
	"context"
	"io"

	"github.com/wudi/pdfmerge/ir/raw"
)

type PDFVersion string

const (
	PDF14 PDFVersion = "1.4"
	PDF15 PDFVersion = "1.5"
	PDF17 PDFVersion = "1.7"
)

type Config struct {
	// Version of the header. Empty keeps the document's own version, or 1.7.
	Version PDFVersion
	// Compress flate-encodes streams that carry no filter yet.
	Compress bool
	// Compression is the flate level (1-9); 0 means the default level.
	Compression int
	// Deterministic derives the file /ID from content so identical input
	// produces identical bytes.
	Deterministic bool
	// XRefStreams writes a cross-reference stream instead of a classic table.
	XRefStreams bool
	// Producer, when set, is stored in a fresh /Info dictionary.
	Producer string
}

// Writer serializes a raw document as a complete PDF file.
type Writer interface {
	Write(ctx context.Context, doc *raw.Document, w io.Writer, cfg Config) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

// Interceptor observes objects as they are written.
type Interceptor interface {
	BeforeWrite(ctx context.Context, ref raw.ObjectRef, obj raw.Object) error
	AfterWrite(ctx context.Context, ref raw.ObjectRef, bytesWritten int64) error
}

type WriterBuilder struct{ interceptors []Interceptor }

func (b *WriterBuilder) WithInterceptor(i Interceptor) *WriterBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}
func (b *WriterBuilder) Build() Writer { return &impl{interceptors: b.interceptors} }
