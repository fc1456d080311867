package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/wudi/pdfmerge/filters"
	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/recovery"
	"github.com/wudi/pdfmerge/scanner"
)

var (
	ErrNoStartXRef = errors.New("startxref not found")
	ErrBadSection  = errors.New("malformed xref section")
)

// Table maps object numbers to their storage location.
type Table interface {
	// Lookup returns the byte offset of an object stored directly in the file.
	Lookup(objNum int) (offset int64, gen int, found bool)
	// ObjStream reports objects compressed inside an object stream.
	ObjStream(objNum int) (streamNum int, index int, found bool)
	Objects() []int
	Trailer() *raw.DictObj
	Repaired() bool
}

// Resolver locates and parses xref information in a PDF.
type Resolver interface {
	Resolve(ctx context.Context, data []byte) (Table, error)
}

type ResolverConfig struct {
	MaxXRefDepth int
	Recovery     recovery.Strategy
	Filters      *filters.Pipeline
}

// NewResolver returns a resolver for classic tables, xref streams and hybrid files.
// When parsing fails and the recovery strategy allows it, the table is rebuilt by
// scanning the file for object headers.
func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = 50
	}
	if cfg.Filters == nil {
		cfg.Filters = filters.NewDefaultPipeline(filters.Limits{})
	}
	return &resolver{cfg: cfg}
}

type resolver struct {
	cfg ResolverConfig
}

type entry struct {
	offset   int64
	gen      int
	stream   int
	index    int
	inStream bool
	free     bool
}

type table struct {
	entries  map[int]entry
	trailer  *raw.DictObj
	repaired bool
}

func (t *table) Lookup(objNum int) (int64, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.free || e.inStream {
		return 0, 0, false
	}
	return e.offset, e.gen, true
}

func (t *table) ObjStream(objNum int) (int, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || !e.inStream {
		return 0, 0, false
	}
	return e.stream, e.index, true
}

func (t *table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k, e := range t.entries {
		if !e.free {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

func (t *table) Trailer() *raw.DictObj { return t.trailer }
func (t *table) Repaired() bool        { return t.repaired }

// addIfAbsent keeps the newest definition: sections are visited newest first.
func (t *table) addIfAbsent(num int, e entry) {
	if _, seen := t.entries[num]; seen {
		return
	}
	t.entries[num] = e
}

func (r *resolver) Resolve(ctx context.Context, data []byte) (Table, error) {
	t, err := r.resolveChain(ctx, data)
	if err == nil {
		return t, nil
	}
	if r.cfg.Recovery == nil || r.cfg.Recovery.OnError(ctx, err, recovery.Location{Component: "xref"}) == recovery.ActionFail {
		return nil, err
	}
	return repair(ctx, data, r.cfg.Filters)
}

func (r *resolver) resolveChain(ctx context.Context, data []byte) (*table, error) {
	offset, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	t := &table{entries: make(map[int]entry)}
	visited := make(map[int64]bool)
	for depth := 0; offset >= 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if depth >= r.cfg.MaxXRefDepth {
			return nil, fmt.Errorf("xref chain deeper than %d", r.cfg.MaxXRefDepth)
		}
		if visited[offset] {
			break
		}
		visited[offset] = true
		if offset >= int64(len(data)) {
			return nil, fmt.Errorf("xref offset out of range: %d", offset)
		}

		var trailer *raw.DictObj
		if bytes.HasPrefix(bytes.TrimLeft(data[offset:], " \t\r\n\f\x00"), []byte("xref")) {
			trailer, err = r.parseTable(data, offset, t)
			if err == nil {
				// Hybrid files: the classic table defers some entries to a stream.
				if stm, ok := trailer.Int("XRefStm"); ok && !visited[stm] {
					visited[stm] = true
					if _, err := r.parseStream(ctx, data, stm, t); err != nil {
						return nil, fmt.Errorf("hybrid xref stream: %w", err)
					}
				}
			}
		} else {
			trailer, err = r.parseStream(ctx, data, offset, t)
		}
		if err != nil {
			return nil, err
		}

		mergeTrailer(t, trailer)
		prev, ok := trailer.Int("Prev")
		if !ok {
			break
		}
		offset = prev
	}
	if t.trailer == nil {
		return nil, errors.New("trailer not found")
	}
	return t, nil
}

// mergeTrailer keeps the newest value for every key.
func mergeTrailer(t *table, trailer *raw.DictObj) {
	if t.trailer == nil {
		t.trailer = trailer
		return
	}
	for k, v := range trailer.KV {
		if _, ok := t.trailer.KV[k]; !ok && k != "Prev" && k != "XRefStm" {
			t.trailer.KV[k] = v
		}
	}
}

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, ErrNoStartXRef
	}
	s := scanner.New(data[idx+len("startxref"):], scanner.Config{})
	tok, err := s.Next()
	if err != nil || tok.Type != scanner.TokenNumber || !tok.IsInt {
		return 0, fmt.Errorf("parse startxref: %w", ErrBadSection)
	}
	if tok.Int <= 0 || tok.Int >= int64(len(data)) {
		return 0, fmt.Errorf("xref offset out of range: %d", tok.Int)
	}
	return tok.Int, nil
}

func (r *resolver) parseTable(data []byte, offset int64, t *table) (*raw.DictObj, error) {
	s := scanner.New(data, scanner.Config{})
	if err := s.SeekTo(offset); err != nil {
		return nil, err
	}
	if tok, err := s.Next(); err != nil || tok.Str != "xref" {
		return nil, errors.New("xref keyword not found at offset")
	}
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadSection, err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			break
		}
		countTok, err := s.Next()
		if err != nil || tok.Type != scanner.TokenNumber || countTok.Type != scanner.TokenNumber {
			return nil, fmt.Errorf("%w: bad subsection header at %d", ErrBadSection, tok.Pos)
		}
		start, count := int(tok.Int), int(countTok.Int)
		for i := 0; i < count; i++ {
			offTok, err1 := s.Next()
			genTok, err2 := s.Next()
			kindTok, err3 := s.Next()
			if err := errors.Join(err1, err2, err3); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadSection, err)
			}
			if offTok.Type != scanner.TokenNumber || genTok.Type != scanner.TokenNumber || kindTok.Type != scanner.TokenKeyword {
				return nil, fmt.Errorf("%w: bad entry at %d", ErrBadSection, offTok.Pos)
			}
			num := start + i
			switch kindTok.Str {
			case "n":
				t.addIfAbsent(num, entry{offset: offTok.Int, gen: int(genTok.Int)})
			case "f":
				if num != 0 {
					t.addIfAbsent(num, entry{free: true})
				}
			default:
				return nil, fmt.Errorf("%w: entry type %q", ErrBadSection, kindTok.Str)
			}
		}
	}
	obj, err := raw.NewTokenReader(s).ParseObject()
	if err != nil {
		return nil, fmt.Errorf("parse trailer: %w", err)
	}
	trailer, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, errors.New("trailer is not a dictionary")
	}
	return trailer, nil
}

func parseIntField(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}
