package writer_test

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/wudi/pdfmerge/internal/testpdf"
	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/parser"
	"github.com/wudi/pdfmerge/writer"
)

func parse(t *testing.T, data []byte) *raw.Document {
	t.Helper()
	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func write(t *testing.T, doc *raw.Document, cfg writer.Config) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := (&writer.WriterBuilder{}).Build().Write(context.Background(), doc, &buf, cfg); err != nil {
		t.Fatalf("write: %v", err)
	}
	return buf.Bytes()
}

func TestWriteRoundTrip(t *testing.T) {
	for _, cfg := range []writer.Config{
		{},
		{Compress: true},
		{XRefStreams: true, Compress: true},
	} {
		src := testpdf.Build(testpdf.Options{Prefix: "W", Pages: 3, Nested: true})
		out := write(t, parse(t, src), cfg)
		got, err := testpdf.PageMarkers(context.Background(), out)
		if err != nil {
			t.Fatalf("cfg %+v: reparse: %v", cfg, err)
		}
		want := []string{"W-P1", "W-P2", "W-P3"}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("cfg %+v: markers = %v, want %v", cfg, got, want)
		}
	}
}

func TestWriteCompressesPlainStreams(t *testing.T) {
	doc := parse(t, testpdf.New("C", 1))
	plain := write(t, doc, writer.Config{})
	packed := write(t, doc, writer.Config{Compress: true, Compression: 9})
	if bytes.Contains(plain, []byte("/FlateDecode")) {
		t.Fatalf("uncompressed output should not carry /FlateDecode")
	}
	if !bytes.Contains(packed, []byte("/Filter /FlateDecode")) {
		t.Fatalf("compressed output should flate-encode content streams")
	}
	if bytes.Contains(packed, []byte("(C-P1) Tj")) {
		t.Fatalf("content should not appear in clear text once compressed")
	}
}

func TestWriteDeterministic(t *testing.T) {
	doc := parse(t, testpdf.New("D", 2))
	cfg := writer.Config{Deterministic: true, Producer: "pdfmerge"}
	a := write(t, doc, cfg)
	b := write(t, doc, cfg)
	if !bytes.Equal(a, b) {
		t.Fatalf("deterministic writes differ")
	}
	if !bytes.Contains(a, []byte("/Producer (pdfmerge)")) {
		t.Fatalf("producer not written")
	}
	if !bytes.HasPrefix(a, []byte("%PDF-1.4\n")) {
		t.Fatalf("header should keep the source version, got %q", a[:9])
	}
}

func TestWriteHeaderVersion(t *testing.T) {
	doc := parse(t, testpdf.New("V", 1))
	out := write(t, doc, writer.Config{XRefStreams: true})
	if !bytes.HasPrefix(out, []byte("%PDF-1.5")) {
		t.Fatalf("xref streams need at least 1.5, got %q", out[:8])
	}
	out = write(t, doc, writer.Config{Version: writer.PDF17})
	if !bytes.HasPrefix(out, []byte("%PDF-1.7")) {
		t.Fatalf("explicit version ignored, got %q", out[:8])
	}
}

func TestSerializeObjectEscaping(t *testing.T) {
	d := raw.Dict()
	d.Set(raw.NameLiteral("A B"), raw.Str([]byte("x(y)\\z\n")))
	d.Set(raw.NameLiteral("H"), raw.StringObj{Bytes: []byte{0xde, 0xad}, Hex: true})
	d.Set(raw.NameLiteral("F"), raw.NumberFloat(0.5))
	data, err := (&writer.WriterBuilder{}).Build().SerializeObject(raw.ObjectRef{Num: 7}, d)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	s := string(data)
	for _, want := range []string{"7 0 obj\n", "/A#20B (x\\(y\\)\\\\z\\n)", "/H <DEAD>", "/F 0.5", "endobj"} {
		if !strings.Contains(s, want) {
			t.Fatalf("serialized %q missing %q", s, want)
		}
	}
}

func TestWriteRequiresRoot(t *testing.T) {
	doc := &raw.Document{Objects: map[raw.ObjectRef]raw.Object{}, Trailer: raw.Dict()}
	var buf bytes.Buffer
	if err := (&writer.WriterBuilder{}).Build().Write(context.Background(), doc, &buf, writer.Config{}); err == nil {
		t.Fatalf("expected error for missing /Root")
	}
}

type countingInterceptor struct{ before, after int }

func (c *countingInterceptor) BeforeWrite(context.Context, raw.ObjectRef, raw.Object) error {
	c.before++
	return nil
}
func (c *countingInterceptor) AfterWrite(context.Context, raw.ObjectRef, int64) error {
	c.after++
	return nil
}

func TestWriteInterceptors(t *testing.T) {
	doc := parse(t, testpdf.New("I", 1))
	ic := &countingInterceptor{}
	var buf bytes.Buffer
	if err := (&writer.WriterBuilder{}).WithInterceptor(ic).Build().Write(context.Background(), doc, &buf, writer.Config{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ic.before != len(doc.Objects) || ic.after != len(doc.Objects) {
		t.Fatalf("interceptor saw %d/%d objects, want %d", ic.before, ic.after, len(doc.Objects))
	}
}
