package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/flate"

	"github.com/wudi/pdfmerge/filters"
	"github.com/wudi/pdfmerge/ir/raw"
)

var ErrNoRoot = errors.New("document has no /Root")

type impl struct {
	interceptors []Interceptor
}

func (w *impl) Write(ctx context.Context, doc *raw.Document, out io.Writer, cfg Config) error {
	if doc == nil || doc.Trailer == nil {
		return ErrNoRoot
	}
	root, ok := doc.Trailer.Get(raw.NameLiteral("Root"))
	if !ok {
		return ErrNoRoot
	}

	objects := make(map[raw.ObjectRef]raw.Object, len(doc.Objects)+1)
	for ref, obj := range doc.Objects {
		objects[ref] = obj
	}
	var info raw.Object
	if cfg.Producer != "" {
		d := raw.Dict()
		d.Set(raw.NameLiteral("Producer"), raw.Str([]byte(cfg.Producer)))
		ref := raw.ObjectRef{Num: doc.MaxObjectNum() + 1}
		objects[ref] = d
		info = raw.RefObj{R: ref}
	} else if v, ok := doc.Trailer.Get(raw.NameLiteral("Info")); ok {
		info = v
	}

	ordered := make([]raw.ObjectRef, 0, len(objects))
	for ref := range objects {
		ordered = append(ordered, ref)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Num < ordered[j].Num })

	serialized := make(map[int][]byte, len(ordered))
	for _, ref := range ordered {
		if err := ctx.Err(); err != nil {
			return err
		}
		obj := objects[ref]
		for _, ic := range w.interceptors {
			if err := ic.BeforeWrite(ctx, ref, obj); err != nil {
				return err
			}
		}
		if st, ok := obj.(*raw.StreamObj); ok {
			prepared, err := prepareStream(st, cfg)
			if err != nil {
				return fmt.Errorf("object %s: %w", ref, err)
			}
			obj = prepared
		}
		data, err := w.SerializeObject(ref, obj)
		if err != nil {
			return err
		}
		serialized[ref.Num] = data
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", pdfVersion(doc, cfg))
	offsets := make(map[int]int64, len(ordered))
	for _, ref := range ordered {
		offsets[ref.Num] = int64(buf.Len())
		buf.Write(serialized[ref.Num])
		for _, ic := range w.interceptors {
			if err := ic.AfterWrite(ctx, ref, int64(len(serialized[ref.Num]))); err != nil {
				return err
			}
		}
	}

	ids := fileID(ordered, serialized, cfg)
	maxObjNum := 0
	if len(ordered) > 0 {
		maxObjNum = ordered[len(ordered)-1].Num
	}
	if cfg.XRefStreams {
		if err := writeXRefStream(&buf, offsets, maxObjNum+1, root, info, ids); err != nil {
			return err
		}
	} else {
		writeXRefTable(&buf, offsets, maxObjNum, root, info, ids)
	}

	_, err := out.Write(buf.Bytes())
	return err
}

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	if obj == nil {
		return nil, fmt.Errorf("object %s is nil", ref)
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "%d %d obj\n", ref.Num, ref.Gen)
	writePrimitive(&b, obj)
	b.WriteString("\nendobj\n")
	return b.Bytes(), nil
}

// prepareStream returns a copy of st with /Length matching its data, compressed
// first when cfg asks for it and the stream is not filtered already.
func prepareStream(st *raw.StreamObj, cfg Config) (*raw.StreamObj, error) {
	dict := raw.Dict()
	if st.Dict != nil {
		for k, v := range st.Dict.KV {
			dict.KV[k] = v
		}
	}
	data := st.Data
	names, _ := filters.ExtractFilters(dict)
	if cfg.Compress && len(names) == 0 && len(data) > 0 {
		level := cfg.Compression
		if level == 0 {
			level = flate.DefaultCompression
		}
		enc, err := filters.FlateEncode(data, level)
		if err != nil {
			return nil, err
		}
		if len(enc) < len(data) {
			data = enc
			dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
			dict.Delete(raw.NameLiteral("DecodeParms"))
		}
	}
	dict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(data))))
	return raw.NewStream(dict, data), nil
}

func writeXRefTable(buf *bytes.Buffer, offsets map[int]int64, maxObjNum int, root, info raw.Object, ids [2][]byte) {
	xrefOffset := buf.Len()
	fmt.Fprintf(buf, "xref\n0 %d\n", maxObjNum+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= maxObjNum; i++ {
		if off, ok := offsets[i]; ok {
			fmt.Fprintf(buf, "%010d 00000 n \n", off)
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}
	buf.WriteString("trailer\n")
	writePrimitive(buf, buildTrailer(maxObjNum+1, root, info, ids))
	fmt.Fprintf(buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
}

func writeXRefStream(buf *bytes.Buffer, offsets map[int]int64, xrefNum int, root, info raw.Object, ids [2][]byte) error {
	xrefOffset := int64(buf.Len())
	all := make(map[int]int64, len(offsets)+1)
	for k, v := range offsets {
		all[k] = v
	}
	all[xrefNum] = xrefOffset
	index, entries := xrefStreamIndexAndEntries(all)
	data, err := filters.FlateEncode(entries, flate.DefaultCompression)
	if err != nil {
		return err
	}
	dict := buildTrailer(xrefNum+1, root, info, ids)
	dict.Set(raw.NameLiteral("Type"), raw.NameLiteral("XRef"))
	dict.Set(raw.NameLiteral("W"), raw.NewArray(raw.NumberInt(1), raw.NumberInt(4), raw.NumberInt(1)))
	dict.Set(raw.NameLiteral("Index"), index)
	dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
	dict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(data))))
	fmt.Fprintf(buf, "%d 0 obj\n", xrefNum)
	writePrimitive(buf, raw.NewStream(dict, data))
	fmt.Fprintf(buf, "\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	return nil
}
