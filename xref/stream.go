package xref

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/scanner"
)

// parseStream reads a cross-reference stream (PDF 1.5+) at offset and returns its
// dictionary, which doubles as the trailer.
func (r *resolver) parseStream(ctx context.Context, data []byte, offset int64, t *table) (*raw.DictObj, error) {
	s := scanner.New(data, scanner.Config{})
	if err := s.SeekTo(offset); err != nil {
		return nil, err
	}
	_, obj, err := raw.NewTokenReader(s).ParseIndirect(directLength)
	if err != nil {
		return nil, fmt.Errorf("xref stream: %w", err)
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, errors.New("xref offset does not point at a table or stream")
	}
	if typ, _ := st.Dict.Name("Type"); typ != "XRef" {
		return nil, fmt.Errorf("xref stream has /Type %q", typ)
	}
	decoded, err := r.cfg.Filters.DecodeStream(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("decode xref stream: %w", err)
	}

	widths, err := intArray(st.Dict, "W")
	if err != nil || len(widths) != 3 {
		return nil, fmt.Errorf("%w: /W must hold three widths", ErrBadSection)
	}
	for _, w := range widths {
		if w < 0 || w > 8 {
			return nil, fmt.Errorf("%w: field width %d", ErrBadSection, w)
		}
	}
	size, _ := st.Dict.Int("Size")
	index, err := intArray(st.Dict, "Index")
	if err != nil || len(index) == 0 {
		index = []int64{0, size}
	}
	if len(index)%2 != 0 {
		return nil, fmt.Errorf("%w: odd /Index length", ErrBadSection)
	}

	rowLen := int(widths[0] + widths[1] + widths[2])
	if rowLen == 0 {
		return nil, fmt.Errorf("%w: empty rows", ErrBadSection)
	}
	pos := 0
	for i := 0; i < len(index); i += 2 {
		start, count := int(index[i]), int(index[i+1])
		for j := 0; j < count; j++ {
			if pos+rowLen > len(decoded) {
				return nil, fmt.Errorf("%w: stream shorter than /Index", ErrBadSection)
			}
			row := decoded[pos : pos+rowLen]
			pos += rowLen
			kind := int64(1)
			if widths[0] > 0 {
				kind = parseIntField(row[:widths[0]])
			}
			f2 := parseIntField(row[widths[0] : widths[0]+widths[1]])
			f3 := parseIntField(row[widths[0]+widths[1]:])
			num := start + j
			switch kind {
			case 0:
				if num != 0 {
					t.addIfAbsent(num, entry{free: true})
				}
			case 1:
				t.addIfAbsent(num, entry{offset: f2, gen: int(f3)})
			case 2:
				t.addIfAbsent(num, entry{inStream: true, stream: int(f2), index: int(f3)})
			}
		}
	}
	return st.Dict, nil
}

func directLength(d *raw.DictObj) int64 {
	if n, ok := d.Int("Length"); ok {
		return n
	}
	return -1
}

func intArray(d *raw.DictObj, key string) ([]int64, error) {
	v, ok := d.Get(raw.NameLiteral(key))
	if !ok {
		return nil, fmt.Errorf("missing /%s", key)
	}
	arr, ok := v.(*raw.ArrayObj)
	if !ok {
		return nil, fmt.Errorf("/%s is not an array", key)
	}
	out := make([]int64, 0, arr.Len())
	for _, item := range arr.Items {
		n, ok := item.(raw.NumberObj)
		if !ok {
			return nil, fmt.Errorf("/%s holds a non-number", key)
		}
		out = append(out, n.Int())
	}
	return out, nil
}
