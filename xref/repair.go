package xref

import (
	"bytes"
	"context"
	"errors"

	"github.com/wudi/pdfmerge/filters"
	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/scanner"
)

// repair rebuilds a table by scanning for "N G obj" headers. A later definition of
// the same object number replaces an earlier one, matching incremental updates.
func repair(ctx context.Context, data []byte, pipeline *filters.Pipeline) (*table, error) {
	t := &table{entries: make(map[int]entry), repaired: true}
	var catalog *raw.ObjectRef
	var trailer *raw.DictObj
	var objStreams []raw.ObjectRef

	for pos := 0; pos < len(data); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := bytes.Index(data[pos:], []byte("obj"))
		if idx < 0 {
			break
		}
		at := pos + idx
		pos = at + 3
		if at > 0 && data[at-1] == 'd' { // endobj
			continue
		}
		start, ok := headerStart(data, at)
		if !ok {
			continue
		}
		s := scanner.New(data, scanner.Config{})
		_ = s.SeekTo(int64(start))
		// A partial object still proves the header is real.
		ref, obj, _ := raw.NewTokenReader(s).ParseIndirect(directLength)
		if obj == nil {
			continue
		}
		t.entries[ref.Num] = entry{offset: int64(start), gen: ref.Gen}

		dict := dictOf(obj)
		switch typ, _ := dict.Name("Type"); typ {
		case "Catalog":
			r := ref
			catalog = &r
		case "ObjStm":
			objStreams = append(objStreams, ref)
		case "XRef":
			trailer = dict
		}
	}

	for _, ref := range objStreams {
		indexObjStream(ctx, data, t, ref, pipeline)
	}

	for pos := 0; ; {
		idx := bytes.Index(data[pos:], []byte("trailer"))
		if idx < 0 {
			break
		}
		at := pos + idx + len("trailer")
		pos = at
		s := scanner.New(data, scanner.Config{})
		_ = s.SeekTo(int64(at))
		if obj, err := raw.NewTokenReader(s).ParseObject(); err == nil {
			if d, ok := obj.(*raw.DictObj); ok {
				trailer = d
			}
		}
	}

	if len(t.entries) == 0 {
		return nil, errors.New("repair: no objects found")
	}
	if trailer == nil {
		trailer = raw.Dict()
	}
	trailer = cloneTrailer(trailer)
	if _, ok := trailer.Get(raw.NameLiteral("Root")); !ok && catalog != nil {
		trailer.Set(raw.NameLiteral("Root"), raw.RefObj{R: *catalog})
	}
	if _, ok := trailer.Get(raw.NameLiteral("Root")); !ok {
		return nil, errors.New("repair: document catalog not found")
	}
	t.trailer = trailer
	return t, nil
}

// headerStart walks back from the "obj" keyword over "N G " and returns the
// offset of N.
func headerStart(data []byte, objAt int) (int, bool) {
	i := objAt - 1
	skipWS := func() {
		for i >= 0 && isSpace(data[i]) {
			i--
		}
	}
	digits := func() bool {
		end := i
		for i >= 0 && data[i] >= '0' && data[i] <= '9' {
			i--
		}
		return i < end
	}
	skipWS()
	if !digits() {
		return 0, false
	}
	if i < 0 || !isSpace(data[i]) {
		return 0, false
	}
	skipWS()
	if !digits() {
		return 0, false
	}
	if i >= 0 && !isSpace(data[i]) && data[i] != '>' && data[i] != ']' && data[i] != ')' {
		return 0, false
	}
	return i + 1, true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func dictOf(obj raw.Object) *raw.DictObj {
	switch v := obj.(type) {
	case *raw.DictObj:
		return v
	case *raw.StreamObj:
		return v.Dict
	}
	return nil
}

// indexObjStream records the members of an object stream as compressed entries,
// unless the object was also found uncompressed.
func indexObjStream(ctx context.Context, data []byte, t *table, ref raw.ObjectRef, pipeline *filters.Pipeline) {
	e := t.entries[ref.Num]
	s := scanner.New(data, scanner.Config{})
	if err := s.SeekTo(e.offset); err != nil {
		return
	}
	_, obj, err := raw.NewTokenReader(s).ParseIndirect(directLength)
	st, ok := obj.(*raw.StreamObj)
	if err != nil || !ok {
		return
	}
	decoded, err := pipeline.DecodeStream(ctx, st)
	if err != nil {
		return
	}
	n, _ := st.Dict.Int("N")
	hs := scanner.New(decoded, scanner.Config{})
	for i := 0; i < int(n); i++ {
		numTok, err1 := hs.Next()
		_, err2 := hs.Next()
		if err1 != nil || err2 != nil || numTok.Type != scanner.TokenNumber {
			return
		}
		num := int(numTok.Int)
		if _, exists := t.entries[num]; !exists {
			t.entries[num] = entry{inStream: true, stream: ref.Num, index: i}
		}
	}
}

func cloneTrailer(d *raw.DictObj) *raw.DictObj {
	out := raw.Dict()
	for k, v := range d.KV {
		switch k {
		case "Type", "W", "Index", "Length", "Filter", "DecodeParms", "Prev", "XRefStm":
			continue
		}
		out.KV[k] = v
	}
	return out
}

// Rebuild scans data for object headers and returns a fresh table, ignoring any
// xref sections in the file. Parsers use it when offsets from a readable table
// turn out to be wrong.
func Rebuild(ctx context.Context, data []byte, pipeline *filters.Pipeline) (Table, error) {
	if pipeline == nil {
		pipeline = filters.NewDefaultPipeline(filters.Limits{})
	}
	return repair(ctx, data, pipeline)
}
