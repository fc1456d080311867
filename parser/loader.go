package parser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wudi/pdfmerge/filters"
	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/recovery"
	"github.com/wudi/pdfmerge/scanner"
	"github.com/wudi/pdfmerge/security"
	"github.com/wudi/pdfmerge/xref"
)

var (
	ErrObjectNotFound = errors.New("object not found in xref")
	ErrHeaderMismatch = errors.New("object header does not match xref entry")
)

type Cache interface {
	Get(ref raw.ObjectRef) (raw.Object, bool)
	Put(ref raw.ObjectRef, obj raw.Object)
}

type ObjectLoader interface {
	Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error)
}

type ObjectLoaderBuilder struct {
	data      []byte
	xrefTable xref.Table
	limits    security.Limits
	pipeline  *filters.Pipeline
	cache     Cache
	recovery  recovery.Strategy
}

func NewObjectLoaderBuilder(data []byte, table xref.Table) *ObjectLoaderBuilder {
	return &ObjectLoaderBuilder{data: data, xrefTable: table}
}

func (b *ObjectLoaderBuilder) WithLimits(l security.Limits) *ObjectLoaderBuilder {
	b.limits = l
	return b
}
func (b *ObjectLoaderBuilder) WithFilters(p *filters.Pipeline) *ObjectLoaderBuilder {
	b.pipeline = p
	return b
}
func (b *ObjectLoaderBuilder) WithCache(c Cache) *ObjectLoaderBuilder { b.cache = c; return b }
func (b *ObjectLoaderBuilder) WithRecovery(r recovery.Strategy) *ObjectLoaderBuilder {
	b.recovery = r
	return b
}

func (b *ObjectLoaderBuilder) Build() (ObjectLoader, error) {
	if b.data == nil || b.xrefTable == nil {
		return nil, errors.New("data and xrefTable required")
	}
	limits := b.limits.WithDefaults()
	pipeline := b.pipeline
	if pipeline == nil {
		pipeline = filters.NewDefaultPipeline(filters.Limits{
			MaxDecompressedSize: limits.MaxDecompressedSize,
			MaxDecodeTime:       limits.MaxDecodeTime,
		})
	}
	return &objectLoader{
		data:      b.data,
		xrefTable: b.xrefTable,
		limits:    limits,
		pipeline:  pipeline,
		cache:     b.cache,
		recovery:  b.recovery,
		objstm:    make(map[int][]raw.Object),
	}, nil
}

type objectLoader struct {
	data      []byte
	xrefTable xref.Table
	limits    security.Limits
	pipeline  *filters.Pipeline
	cache     Cache
	recovery  recovery.Strategy
	mu        sync.Mutex
	objstm    map[int][]raw.Object
}

func (o *objectLoader) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	if o.cache != nil {
		if obj, ok := o.cache.Get(ref); ok {
			return obj, nil
		}
	}
	o.mu.Lock()
	obj, err := o.loadOnce(ctx, ref)
	o.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if o.cache != nil {
		o.cache.Put(ref, obj)
	}
	return obj, nil
}

// loadOnce assumes the caller holds o.mu.
func (o *objectLoader) loadOnce(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	offset, gen, found := o.xrefTable.Lookup(ref.Num)
	if !found {
		if osNum, idx, ok := o.xrefTable.ObjStream(ref.Num); ok {
			return o.loadFromObjectStream(ctx, osNum, idx)
		}
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, ref)
	}
	return o.loadAtOffset(ctx, ref.Num, offset, gen)
}

func (o *objectLoader) newScanner(data []byte) scanner.Scanner {
	return scanner.New(data, scanner.Config{
		Recovery:        o.recovery,
		MaxStringLength: o.limits.MaxStringLength,
		MaxArrayDepth:   o.limits.MaxIndirectDepth,
		MaxDictDepth:    o.limits.MaxIndirectDepth,
		MaxStreamLength: o.limits.MaxStreamLength,
	})
}

func (o *objectLoader) loadAtOffset(ctx context.Context, objNum int, offset int64, gen int) (raw.Object, error) {
	s := o.newScanner(o.data)
	if err := s.SeekTo(offset); err != nil {
		return nil, err
	}
	ref, obj, err := raw.NewTokenReader(s).ParseIndirect(o.resolveStreamLength)
	if ref.Num != objNum || ref.Gen != gen {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: want %d %d at offset %d, found %s", ErrHeaderMismatch, objNum, gen, offset, ref)
	}
	if err != nil {
		if obj == nil || o.recovery == nil {
			return nil, err
		}
		loc := recovery.Location{ByteOffset: offset, ObjectNum: objNum, ObjectGen: gen, Component: "parser"}
		if o.recovery.OnError(ctx, err, loc) == recovery.ActionFail {
			return nil, err
		}
	}
	return obj, nil
}

// resolveStreamLength returns the /Length of a stream dictionary, following an
// indirect reference if needed. -1 tells the scanner to search for endstream.
func (o *objectLoader) resolveStreamLength(dict *raw.DictObj) int64 {
	v, ok := dict.Get(raw.NameLiteral("Length"))
	if !ok {
		return -1
	}
	switch l := v.(type) {
	case raw.NumberObj:
		return l.Int()
	case raw.RefObj:
		offset, gen, found := o.xrefTable.Lookup(l.R.Num)
		if !found {
			return -1
		}
		s := o.newScanner(o.data)
		if err := s.SeekTo(offset); err != nil {
			return -1
		}
		ref, obj, err := raw.NewTokenReader(s).ParseIndirect(nil)
		if err != nil || ref.Num != l.R.Num || ref.Gen != gen {
			return -1
		}
		if n, ok := obj.(raw.NumberObj); ok {
			return n.Int()
		}
	}
	return -1
}

func (o *objectLoader) loadFromObjectStream(ctx context.Context, streamNum, index int) (raw.Object, error) {
	objs, ok := o.objstm[streamNum]
	if !ok {
		var err error
		objs, err = o.parseObjectStream(ctx, streamNum)
		if err != nil {
			return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
		}
		o.objstm[streamNum] = objs
	}
	if index < 0 || index >= len(objs) || objs[index] == nil {
		return nil, fmt.Errorf("object stream %d: index %d out of range", streamNum, index)
	}
	return objs[index], nil
}

func (o *objectLoader) parseObjectStream(ctx context.Context, streamNum int) ([]raw.Object, error) {
	offset, gen, found := o.xrefTable.Lookup(streamNum)
	if !found {
		return nil, ErrObjectNotFound
	}
	obj, err := o.loadAtOffset(ctx, streamNum, offset, gen)
	if err != nil {
		return nil, err
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, errors.New("not a stream")
	}
	if typ, _ := st.Dict.Name("Type"); typ != "ObjStm" {
		return nil, fmt.Errorf("unexpected /Type %q", typ)
	}
	decoded, err := o.pipeline.DecodeStream(ctx, st)
	if err != nil {
		return nil, err
	}
	n, _ := st.Dict.Int("N")
	first, _ := st.Dict.Int("First")
	if n < 0 || first < 0 || first > int64(len(decoded)) {
		return nil, errors.New("bad /N or /First")
	}

	hs := o.newScanner(decoded[:first])
	offsets := make([]int64, 0, n)
	for i := int64(0); i < n; i++ {
		numTok, err1 := hs.Next()
		offTok, err2 := hs.Next()
		if err := errors.Join(err1, err2); err != nil {
			return nil, fmt.Errorf("header: %w", err)
		}
		if numTok.Type != scanner.TokenNumber || offTok.Type != scanner.TokenNumber {
			return nil, errors.New("header holds a non-number")
		}
		offsets = append(offsets, first+offTok.Int)
	}

	out := make([]raw.Object, len(offsets))
	for i, off := range offsets {
		s := o.newScanner(decoded)
		if err := s.SeekTo(off); err != nil {
			continue
		}
		obj, err := raw.NewTokenReader(s).ParseObject()
		if err != nil {
			continue
		}
		out[i] = obj
	}
	return out, nil
}
