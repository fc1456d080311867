package writer

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/wudi/pdfmerge/ir/raw"
)

func pdfVersion(doc *raw.Document, cfg Config) string {
	v := string(cfg.Version)
	if v == "" {
		v = doc.Version
	}
	if v == "" {
		v = string(PDF17)
	}
	if cfg.XRefStreams && v < string(PDF15) {
		v = string(PDF15)
	}
	return v
}

func fileID(objects []raw.ObjectRef, serialized map[int][]byte, cfg Config) [2][]byte {
	seed := deterministicIDSeed(objects, serialized)
	if cfg.Deterministic {
		return [2][]byte{seed, seed}
	}
	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		id = seed
	}
	idB := make([]byte, len(id))
	copy(idB, id)
	return [2][]byte{id, idB}
}

func deterministicIDSeed(objects []raw.ObjectRef, serialized map[int][]byte) []byte {
	h := sha256.New()
	for _, ref := range objects {
		h.Write(serialized[ref.Num])
	}
	return h.Sum(nil)[:16]
}

func buildTrailer(size int, root raw.Object, info raw.Object, ids [2][]byte) *raw.DictObj {
	t := raw.Dict()
	t.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(size)))
	t.Set(raw.NameLiteral("Root"), root)
	if info != nil {
		t.Set(raw.NameLiteral("Info"), info)
	}
	t.Set(raw.NameLiteral("ID"), raw.NewArray(
		raw.StringObj{Bytes: ids[0], Hex: true},
		raw.StringObj{Bytes: ids[1], Hex: true},
	))
	return t
}

func xrefStreamIndexAndEntries(offsets map[int]int64) (*raw.ArrayObj, []byte) {
	keys := make([]int, 0, len(offsets)+1)
	keys = append(keys, 0)
	for k := range offsets {
		if k != 0 {
			keys = append(keys, k)
		}
	}
	sort.Ints(keys)
	indexArr := raw.NewArray()
	var entries []byte
	segStart, prev := -1, -1
	for _, k := range keys {
		if segStart == -1 {
			segStart = k
		} else if k != prev+1 {
			indexArr.Append(raw.NumberInt(int64(segStart)))
			indexArr.Append(raw.NumberInt(int64(prev - segStart + 1)))
			segStart = k
		}
		prev = k
		if k == 0 {
			entries = appendXRefStreamEntry(entries, 0, 0, 255)
			continue
		}
		entries = appendXRefStreamEntry(entries, 1, offsets[k], 0)
	}
	indexArr.Append(raw.NumberInt(int64(segStart)))
	indexArr.Append(raw.NumberInt(int64(prev - segStart + 1)))
	return indexArr, entries
}

func appendXRefStreamEntry(buf []byte, typ int, field2 int64, gen int) []byte {
	buf = append(buf, byte(typ))
	offset := uint32(field2)
	buf = append(buf, byte(offset>>24), byte(offset>>16), byte(offset>>8), byte(offset))
	return append(buf, byte(gen))
}

func serializePrimitive(o raw.Object) []byte {
	var b bytes.Buffer
	writePrimitive(&b, o)
	return b.Bytes()
}

func writePrimitive(b *bytes.Buffer, o raw.Object) {
	switch v := o.(type) {
	case raw.NameObj:
		b.WriteByte('/')
		b.WriteString(pdfNameLiteral(v.Value()))
	case raw.NumberObj:
		if v.IsInteger() {
			b.WriteString(strconv.FormatInt(v.Int(), 10))
			return
		}
		b.WriteString(strconv.FormatFloat(v.Float(), 'f', -1, 64))
	case raw.BoolObj:
		b.WriteString(strconv.FormatBool(v.Value()))
	case raw.NullObj:
		b.WriteString("null")
	case raw.StringObj:
		if v.IsHex() {
			b.WriteByte('<')
			b.WriteString(strings.ToUpper(hex.EncodeToString(v.Value())))
			b.WriteByte('>')
			return
		}
		b.Write(escapeLiteralString(v.Value()))
	case *raw.ArrayObj:
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			writePrimitive(b, it)
		}
		b.WriteByte(']')
	case *raw.DictObj:
		b.WriteString("<<")
		keys := make([]string, 0, len(v.KV))
		for k := range v.KV {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString("/" + pdfNameLiteral(k) + " ")
			writePrimitive(b, v.KV[k])
		}
		b.WriteString(">>")
	case *raw.StreamObj:
		writePrimitive(b, v.Dict)
		b.WriteString("\nstream\n")
		b.Write(v.Data)
		b.WriteString("\nendstream")
	case raw.RefObj:
		fmt.Fprintf(b, "%d %d R", v.Ref().Num, v.Ref().Gen)
	default:
		b.WriteString("null")
	}
}

func escapeLiteralString(rawBytes []byte) []byte {
	var b bytes.Buffer
	b.WriteByte('(')
	for _, ch := range rawBytes {
		switch ch {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		case '\b':
			b.WriteString("\\b")
		case '\f':
			b.WriteString("\\f")
		default:
			if ch < 0x20 || ch >= 0x80 {
				fmt.Fprintf(&b, "\\%03o", ch)
			} else {
				b.WriteByte(ch)
			}
		}
	}
	b.WriteByte(')')
	return b.Bytes()
}

// pdfNameLiteral escapes bytes outside the regular set as #XX. The scanner
// decodes these on read, so names always arrive here unescaped.
func pdfNameLiteral(value string) string {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch > 0x20 && ch < 0x7f && !strings.ContainsRune("#()<>[]{}/%", rune(ch)) {
			b.WriteByte(ch)
			continue
		}
		fmt.Fprintf(&b, "#%02X", ch)
	}
	return b.String()
}
