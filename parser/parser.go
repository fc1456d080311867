package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfmerge/filters"
	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/recovery"
	"github.com/wudi/pdfmerge/security"
	"github.com/wudi/pdfmerge/xref"
)

var ErrNotPDF = errors.New("missing %PDF- header")

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	// Recovery decides whether malformed input is repaired or rejected.
	// Nil means strict.
	Recovery recovery.Strategy
	Limits   security.Limits
	Cache    Cache
}

// DocumentParser builds a raw.Document using xref tables/streams and the object loader.
type DocumentParser struct {
	cfg      Config
	pipeline *filters.Pipeline
}

func NewDocumentParser(cfg Config) *DocumentParser {
	cfg.Limits = cfg.Limits.WithDefaults()
	return &DocumentParser{
		cfg: cfg,
		pipeline: filters.NewDefaultPipeline(filters.Limits{
			MaxDecompressedSize: cfg.Limits.MaxDecompressedSize,
			MaxDecodeTime:       cfg.Limits.MaxDecodeTime,
		}),
	}
}

// Parse reads every object of an unencrypted PDF into memory.
func (p *DocumentParser) Parse(ctx context.Context, data []byte) (*raw.Document, error) {
	version, err := detectHeaderVersion(data)
	if err != nil {
		return nil, err
	}
	resolver := xref.NewResolver(xref.ResolverConfig{
		MaxXRefDepth: p.cfg.Limits.MaxXRefDepth,
		Recovery:     p.cfg.Recovery,
		Filters:      p.pipeline,
	})
	table, err := resolver.Resolve(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	if err := security.CheckTrailer(table.Trailer()); err != nil {
		return nil, err
	}

	doc, err := p.load(ctx, data, table)
	if err == nil || p.cfg.Recovery == nil || table.Repaired() || errors.Is(err, context.Canceled) {
		if doc != nil {
			doc.Version = version
		}
		return doc, err
	}

	// The table parsed but pointed at the wrong places. Rebuild it from the
	// object headers and try once more.
	if p.cfg.Recovery.OnError(ctx, err, recovery.Location{Component: "parser"}) == recovery.ActionFail {
		return nil, err
	}
	rebuilt, rerr := xref.Rebuild(ctx, data, p.pipeline)
	if rerr != nil {
		return nil, fmt.Errorf("%w (rebuild: %v)", err, rerr)
	}
	if err := security.CheckTrailer(rebuilt.Trailer()); err != nil {
		return nil, err
	}
	doc, err = p.load(ctx, data, rebuilt)
	if err != nil {
		return nil, err
	}
	doc.Version = version
	return doc, nil
}

func (p *DocumentParser) load(ctx context.Context, data []byte, table xref.Table) (*raw.Document, error) {
	loader, err := NewObjectLoaderBuilder(data, table).
		WithLimits(p.cfg.Limits).
		WithFilters(p.pipeline).
		WithCache(p.cfg.Cache).
		WithRecovery(p.cfg.Recovery).
		Build()
	if err != nil {
		return nil, err
	}

	doc := &raw.Document{
		Objects:  make(map[raw.ObjectRef]raw.Object),
		Trailer:  table.Trailer(),
		Repaired: table.Repaired(),
	}
	for _, objNum := range table.Objects() {
		if objNum == 0 {
			continue
		}
		gen := 0
		if _, g, found := table.Lookup(objNum); found {
			gen = g
		}
		ref := raw.ObjectRef{Num: objNum, Gen: gen}
		obj, err := loader.Load(ctx, ref)
		if err != nil {
			// Skipping objects is only acceptable once the table has been rebuilt;
			// before that a failure sends Parse down the rebuild path.
			if p.cfg.Recovery == nil || !table.Repaired() || ctx.Err() != nil {
				return nil, fmt.Errorf("load object %d: %w", objNum, err)
			}
			if p.cfg.Recovery.OnError(ctx, err, recovery.Location{ObjectNum: objNum, ObjectGen: gen, Component: "parser"}) == recovery.ActionFail {
				return nil, fmt.Errorf("load object %d: %w", objNum, err)
			}
			continue
		}
		doc.Objects[ref] = obj
	}
	if _, ok := doc.Catalog(); !ok {
		return nil, errors.New("document catalog missing")
	}
	return doc, nil
}

// detectHeaderVersion finds "%PDF-x.y" near the start of the file. Some producers
// emit junk before the header, so the first kilobyte is searched.
func detectHeaderVersion(data []byte) (string, error) {
	window := data
	if len(window) > 1024 {
		window = window[:1024]
	}
	idx := bytes.Index(window, []byte("%PDF-"))
	if idx < 0 {
		return "", ErrNotPDF
	}
	rest := data[idx+5:]
	end := 0
	for end < len(rest) && end < 4 && (rest[end] == '.' || (rest[end] >= '0' && rest[end] <= '9')) {
		end++
	}
	if end == 0 {
		return "", ErrNotPDF
	}
	return string(rest[:end]), nil
}
