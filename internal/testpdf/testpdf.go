// Package testpdf builds small, well-formed PDF files for tests. Every page draws
// a unique marker string so tests can check page order after a merge.
package testpdf

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/wudi/pdfmerge/filters"
	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/parser"
)

type Options struct {
	// Prefix names the document in page markers: "<Prefix>-P<n>".
	Prefix string
	Pages  int
	// Version defaults to 1.4, or 1.5 when XRefStream is set.
	Version string
	// XRefStream stores dictionaries in an object stream indexed by a compressed
	// cross-reference stream.
	XRefStream bool
	// Nested splits the pages across two intermediate /Pages nodes.
	Nested bool
	// Inherited puts /Resources, /MediaBox and /Rotate on the root /Pages node
	// instead of on each page.
	Inherited bool
	// Compress flate-encodes page content streams.
	Compress bool
	// Encrypted adds an /Encrypt entry to the trailer.
	Encrypted bool
	// BadStartXRef makes startxref point into the middle of the file.
	BadStartXRef bool
}

// New returns a PDF with n pages marked "<prefix>-P1" ... "<prefix>-Pn".
func New(prefix string, n int) []byte {
	return Build(Options{Prefix: prefix, Pages: n})
}

func Marker(prefix string, page int) string { return fmt.Sprintf("%s-P%d", prefix, page) }

type object struct {
	num    int
	body   string
	stream []byte
}

func Build(opts Options) []byte {
	if opts.Prefix == "" {
		opts.Prefix = "DOC"
	}
	if opts.Version == "" {
		opts.Version = "1.4"
		if opts.XRefStream {
			opts.Version = "1.5"
		}
	}

	const (
		catalogNum = 1
		rootNum    = 2
		fontNum    = 3
	)
	next := 4
	var objs []object

	var leaves []int
	if opts.Nested && opts.Pages > 1 {
		leaves = []int{next, next + 1}
		next += 2
	}

	pageNums := make([]int, opts.Pages)
	for i := range pageNums {
		pageNums[i] = next
		next += 2
	}

	resources := fmt.Sprintf("<< /Font << /F1 %d 0 R >> >>", fontNum)
	rootExtra := ""
	pageExtra := " /MediaBox [0 0 612 792] /Resources " + resources
	if opts.Inherited {
		rootExtra = " /MediaBox [0 0 595 842] /Rotate 90 /Resources " + resources
		pageExtra = ""
	}

	parentOf := func(i int) int {
		if leaves == nil {
			return rootNum
		}
		if i < len(pageNums)/2 {
			return leaves[0]
		}
		return leaves[1]
	}

	if leaves == nil {
		objs = append(objs, object{num: rootNum, body: fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d%s >>", refs(pageNums), len(pageNums), rootExtra)})
	} else {
		half := len(pageNums) / 2
		objs = append(objs,
			object{num: rootNum, body: fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d%s >>", refs(leaves), len(pageNums), rootExtra)},
			object{num: leaves[0], body: fmt.Sprintf("<< /Type /Pages /Parent %d 0 R /Kids [%s] /Count %d >>", rootNum, refs(pageNums[:half]), half)},
			object{num: leaves[1], body: fmt.Sprintf("<< /Type /Pages /Parent %d 0 R /Kids [%s] /Count %d >>", rootNum, refs(pageNums[half:]), len(pageNums)-half)},
		)
	}
	objs = append(objs,
		object{num: catalogNum, body: fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", rootNum)},
		object{num: fontNum, body: "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>"},
	)

	for i, num := range pageNums {
		content := []byte(fmt.Sprintf("BT /F1 24 Tf 72 700 Td (%s) Tj ET", Marker(opts.Prefix, i+1)))
		dict := fmt.Sprintf("<< /Length %d >>", len(content))
		if opts.Compress {
			enc, err := filters.FlateEncode(content, 6)
			if err != nil {
				panic(err)
			}
			content = enc
			dict = fmt.Sprintf("<< /Length %d /Filter /FlateDecode >>", len(content))
		}
		objs = append(objs,
			object{num: num, body: fmt.Sprintf("<< /Type /Page /Parent %d 0 R /Contents %d 0 R%s >>", parentOf(i), num+1, pageExtra)},
			object{num: num + 1, body: dict, stream: content},
		)
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].num < objs[j].num })

	if opts.XRefStream {
		return writeWithXRefStream(opts, objs, next)
	}
	return writeClassic(opts, objs, next)
}

func refs(nums []int) string {
	var b bytes.Buffer
	for i, n := range nums {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d 0 R", n)
	}
	return b.String()
}

func writeObject(buf *bytes.Buffer, o object) {
	fmt.Fprintf(buf, "%d 0 obj\n%s\n", o.num, o.body)
	if o.stream != nil {
		buf.WriteString("stream\n")
		buf.Write(o.stream)
		buf.WriteString("\nendstream\n")
	}
	buf.WriteString("endobj\n")
}

func trailerExtra(opts Options) string {
	if opts.Encrypted {
		return " /Encrypt << /Filter /Standard /V 2 /R 3 /Length 128 /P -4 /O (x) /U (y) >>"
	}
	return ""
}

func writeClassic(opts Options, objs []object, size int) []byte {
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "%%PDF-%s\n%%\xe2\xe3\xcf\xd3\n", opts.Version)
	offsets := make(map[int]int, len(objs))
	for _, o := range objs {
		offsets[o.num] = buf.Len()
		writeObject(buf, o)
	}
	xrefAt := buf.Len()
	fmt.Fprintf(buf, "xref\n0 %d\n0000000000 65535 f \n", size)
	for n := 1; n < size; n++ {
		if off, ok := offsets[n]; ok {
			fmt.Fprintf(buf, "%010d 00000 n \n", off)
		} else {
			buf.WriteString("0000000000 00000 f \n")
		}
	}
	fmt.Fprintf(buf, "trailer\n<< /Size %d /Root 1 0 R%s >>\n", size, trailerExtra(opts))
	if opts.BadStartXRef {
		xrefAt = offsets[2] + 3
	}
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefAt)
	return buf.Bytes()
}

func writeWithXRefStream(opts Options, objs []object, size int) []byte {
	objStmNum := size
	xrefNum := size + 1
	size += 2

	var header, body bytes.Buffer
	inStream := map[int]int{}
	idx := 0
	var direct []object
	for _, o := range objs {
		if o.stream != nil {
			direct = append(direct, o)
			continue
		}
		fmt.Fprintf(&header, "%d %d ", o.num, body.Len())
		body.WriteString(o.body)
		body.WriteByte('\n')
		inStream[o.num] = idx
		idx++
	}
	payload := append(header.Bytes(), body.Bytes()...)
	compressed, err := filters.FlateEncode(payload, 6)
	if err != nil {
		panic(err)
	}
	direct = append(direct, object{
		num:    objStmNum,
		body:   fmt.Sprintf("<< /Type /ObjStm /N %d /First %d /Length %d /Filter /FlateDecode >>", idx, header.Len(), len(compressed)),
		stream: compressed,
	})

	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "%%PDF-%s\n%%\xe2\xe3\xcf\xd3\n", opts.Version)
	offsets := map[int]int{}
	for _, o := range direct {
		offsets[o.num] = buf.Len()
		writeObject(buf, o)
	}
	xrefAt := buf.Len()
	offsets[xrefNum] = xrefAt

	var rows bytes.Buffer
	for n := 0; n < size; n++ {
		switch {
		case n == 0:
			rows.Write([]byte{0, 0, 0, 0, 0, 255})
		case offsets[n] > 0:
			off := offsets[n]
			rows.Write([]byte{1, byte(off >> 24), byte(off >> 16), byte(off >> 8), byte(off), 0})
		default:
			if i, ok := inStream[n]; ok {
				rows.Write([]byte{2, byte(objStmNum >> 24), byte(objStmNum >> 16), byte(objStmNum >> 8), byte(objStmNum), byte(i)})
			} else {
				rows.Write([]byte{0, 0, 0, 0, 0, 0})
			}
		}
	}
	xrefData, err := filters.FlateEncode(rows.Bytes(), 6)
	if err != nil {
		panic(err)
	}
	writeObject(buf, object{
		num:    xrefNum,
		body:   fmt.Sprintf("<< /Type /XRef /Size %d /W [1 4 1] /Root 1 0 R /Length %d /Filter /FlateDecode%s >>", size, len(xrefData), trailerExtra(opts)),
		stream: xrefData,
	})
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefAt)
	return buf.Bytes()
}

var markerRE = regexp.MustCompile(`\(([^()]+-P\d+)\) Tj`)

// PageMarkers parses data and returns the marker drawn on each page, in page order.
// A page with no marker yields an empty string.
func PageMarkers(ctx context.Context, data []byte) ([]string, error) {
	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	catalog, ok := doc.Catalog()
	if !ok {
		return nil, fmt.Errorf("no catalog")
	}
	root, _ := catalog.Get(raw.NameLiteral("Pages"))
	pipeline := filters.NewDefaultPipeline(filters.Limits{})

	var out []string
	var walk func(node raw.Object, depth int) error
	walk = func(node raw.Object, depth int) error {
		if depth > 64 {
			return fmt.Errorf("page tree too deep")
		}
		dict, ok := doc.ResolveDict(node)
		if !ok {
			return fmt.Errorf("page tree node is not a dictionary")
		}
		if typ, _ := dict.Name("Type"); typ == "Page" {
			marker := ""
			contents, _ := dict.Get(raw.NameLiteral("Contents"))
			if st, ok := doc.Resolve(contents).(*raw.StreamObj); ok {
				data, err := pipeline.DecodeStream(ctx, st)
				if err != nil {
					return err
				}
				if m := markerRE.FindSubmatch(data); m != nil {
					marker = string(m[1])
				}
			}
			out = append(out, marker)
			return nil
		}
		kids, _ := dict.Get(raw.NameLiteral("Kids"))
		arr, ok := doc.Resolve(kids).(*raw.ArrayObj)
		if !ok {
			return fmt.Errorf("pages node without /Kids")
		}
		for _, kid := range arr.Items {
			if err := walk(kid, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root, 0); err != nil {
		return nil, err
	}
	return out, nil
}
