package parser_test

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/wudi/pdfmerge/internal/testpdf"
	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/parser"
	"github.com/wudi/pdfmerge/recovery"
	"github.com/wudi/pdfmerge/security"
)

func TestParseClassicDocument(t *testing.T) {
	data := testpdf.New("A", 3)
	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Version != "1.4" {
		t.Fatalf("version = %q, want 1.4", doc.Version)
	}
	catalog, ok := doc.Catalog()
	if !ok {
		t.Fatalf("catalog missing")
	}
	pages, ok := doc.ResolveDict(mustGet(t, catalog, "Pages"))
	if !ok {
		t.Fatalf("pages root missing")
	}
	if n, _ := pages.Int("Count"); n != 3 {
		t.Fatalf("/Count = %d, want 3", n)
	}
	if doc.Repaired {
		t.Fatalf("clean file should not be repaired")
	}
}

func TestParseObjectAndXRefStreams(t *testing.T) {
	data := testpdf.Build(testpdf.Options{Prefix: "S", Pages: 2, XRefStream: true, Compress: true})
	got, err := testpdf.PageMarkers(context.Background(), data)
	if err != nil {
		t.Fatalf("markers: %v", err)
	}
	want := []string{"S-P1", "S-P2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("markers = %v, want %v", got, want)
	}
}

func TestParseRejectsEncrypted(t *testing.T) {
	for _, xs := range []bool{false, true} {
		data := testpdf.Build(testpdf.Options{Pages: 1, Encrypted: true, XRefStream: xs})
		_, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), data)
		if !errors.Is(err, security.ErrEncrypted) {
			t.Fatalf("xrefStream=%v: expected ErrEncrypted, got %v", xs, err)
		}
	}
}

func TestParseRejectsNonPDF(t *testing.T) {
	_, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), []byte("hello world"))
	if !errors.Is(err, parser.ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
}

func TestParseRepairsBrokenStartXRef(t *testing.T) {
	data := testpdf.Build(testpdf.Options{Prefix: "R", Pages: 2, BadStartXRef: true})

	if _, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), data); err == nil {
		t.Fatalf("strict parse should fail")
	}

	doc, err := parser.NewDocumentParser(parser.Config{Recovery: recovery.NewLenientStrategy()}).Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("lenient parse: %v", err)
	}
	if !doc.Repaired {
		t.Fatalf("document should be flagged as repaired")
	}
	if _, ok := doc.Catalog(); !ok {
		t.Fatalf("repaired document lost its catalog")
	}
}

func TestParseRebuildsWhenOffsetsAreWrong(t *testing.T) {
	data := testpdf.New("O", 1)
	// Shift every object by prepending bytes after the header; the xref keeps
	// the old offsets.
	idx := bytes.Index(data, []byte("1 0 obj"))
	shifted := append(append(append([]byte(nil), data[:idx]...), []byte("% padding padding\n")...), data[idx:]...)
	// startxref must still land on "xref".
	shifted = fixStartXRef(t, shifted)

	if _, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), shifted); err == nil {
		t.Fatalf("strict parse should fail on stale offsets")
	}
	doc, err := parser.NewDocumentParser(parser.Config{Recovery: recovery.NewLenientStrategy()}).Parse(context.Background(), shifted)
	if err != nil {
		t.Fatalf("lenient parse: %v", err)
	}
	if !doc.Repaired {
		t.Fatalf("document should be rebuilt")
	}
}

func TestParseIndirectLength(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offs := make([]int, 5)
	write := func(num int, s string) {
		offs[num] = buf.Len()
		buf.WriteString(s)
	}
	write(1, "1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	write(2, "2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	write(3, "3 0 obj\n<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>\nendobj\n")
	write(4, "4 0 obj\n<< /Length 5 0 R >>\nstream\nq endstream Q\nendstream\nendobj\n")
	off5 := buf.Len()
	buf.WriteString("5 0 obj\n13\nendobj\n")
	xrefAt := buf.Len()
	buf.WriteString("xref\n0 6\n0000000000 65535 f \n")
	for _, off := range append(offs[1:], off5) {
		buf.WriteString(pad10(off) + " 00000 n \n")
	}
	buf.WriteString("trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n" + itoa(xrefAt) + "\n%%EOF\n")

	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	st, ok := doc.Objects[raw.ObjectRef{Num: 4}].(*raw.StreamObj)
	if !ok {
		t.Fatalf("object 4 should be a stream, got %T", doc.Objects[raw.ObjectRef{Num: 4}])
	}
	if string(st.Data) != "q endstream Q" {
		t.Fatalf("stream data = %q", st.Data)
	}
}

func mustGet(t *testing.T, d *raw.DictObj, key string) raw.Object {
	t.Helper()
	v, ok := d.Get(raw.NameLiteral(key))
	if !ok {
		t.Fatalf("missing /%s", key)
	}
	return v
}
