package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/observability"
	"github.com/wudi/pdfmerge/parser"
	"github.com/wudi/pdfmerge/recovery"
	"github.com/wudi/pdfmerge/security"
	"github.com/wudi/pdfmerge/writer"
)

type EngineConfig struct {
	Logger observability.Logger
	Tracer observability.Tracer
	Limits security.Limits
	// Strict disables xref repair and other tolerance for malformed sources.
	Strict bool
	Writer writer.Config
}

// Engine implements Library on top of the in-repo parser and writer.
type Engine struct {
	cfg    EngineConfig
	log    observability.Logger
	tracer observability.Tracer
}

var _ Library = (*Engine)(nil)

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NopTracer()
	}
	if cfg.Writer.Producer == "" {
		cfg.Writer.Producer = "pdfmerge"
	}
	cfg.Limits = cfg.Limits.WithDefaults()
	return &Engine{
		cfg:    cfg,
		log:    cfg.Logger,
		tracer: cfg.Tracer,
	}
}

func (e *Engine) CreateDocument() (*Document, error) {
	return newTargetDocument(), nil
}

func (e *Engine) LoadDocument(ctx context.Context, data []byte) (*Document, error) {
	ctx, span := e.tracer.StartSpan(ctx, observability.SpanLoad)
	defer span.Finish()
	start := time.Now()

	var lenient *recovery.LenientStrategy
	cfg := parser.Config{Limits: e.cfg.Limits}
	if !e.cfg.Strict {
		lenient = recovery.NewLenientStrategy()
		cfg.Recovery = lenient
	}
	doc, err := parser.NewDocumentParser(cfg).Parse(ctx, data)
	if err != nil {
		span.SetError(err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if lenient != nil {
		if warnings := lenient.Drain(); len(warnings) > 0 {
			e.log.Warn("tolerated malformed input",
				observability.Int("warnings", len(warnings)),
				observability.Error("first", warnings[0]),
				observability.Bool("repaired", doc.Repaired))
		}
	}

	pages, err := collectPages(doc, e.cfg.Limits.MaxPages)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("%w: page tree: %w", ErrDecode, err)
	}
	span.SetTag(observability.MetricPageCount, len(pages))
	span.SetTag(observability.MetricObjectCount, len(doc.Objects))
	e.log.Debug("document loaded",
		observability.Int("pages", len(pages)),
		observability.Int("objects", len(doc.Objects)),
		observability.String("version", doc.Version),
		observability.Duration(observability.MetricParseTime, time.Since(start)))

	return &Document{raw: doc, pages: pages, next: doc.MaxObjectNum() + 1}, nil
}

func (e *Engine) PageIndices(doc *Document) []int {
	out := make([]int, len(doc.pages))
	for i := range out {
		out[i] = i
	}
	return out
}

func (e *Engine) CopyPages(ctx context.Context, target, source *Document, indices []int) ([]*Page, error) {
	ctx, span := e.tracer.StartSpan(ctx, observability.SpanCopyPages)
	defer span.Finish()
	if !target.created {
		return nil, errors.New("pdf: copy target must come from CreateDocument")
	}
	for _, idx := range indices {
		if idx < 0 || idx >= len(source.pages) {
			return nil, fmt.Errorf("%w: %d of %d", ErrPageIndex, idx, len(source.pages))
		}
	}

	c := newPageCopier(source.raw, target)
	newRefs := make([]raw.ObjectRef, len(indices))
	// Register every requested page first so links between copied pages land
	// on the copies. A page requested twice gets a second, independent copy.
	for i, idx := range indices {
		ref := target.alloc()
		newRefs[i] = ref
		if _, dup := c.memo[source.pages[idx]]; !dup {
			c.memo[source.pages[idx]] = ref
		}
	}

	out := make([]*Page, 0, len(indices))
	for i, idx := range indices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		flat, err := flattenPage(source.raw, source.pages[idx])
		if err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		c.copyPage(flat, newRefs[i])
		out = append(out, &Page{ref: newRefs[i], owner: target})
	}
	target.raiseVersion(source.raw.Version)
	span.SetTag("pages", len(out))
	return out, nil
}

func (e *Engine) AddPage(target *Document, page *Page) error {
	if page == nil || page.owner != target {
		return ErrForeignPage
	}
	if target.added[page.ref] {
		return ErrPageAlreadyAdd
	}
	dict, ok := target.raw.Objects[page.ref].(*raw.DictObj)
	if !ok {
		return fmt.Errorf("pdf: page %s missing from target", page.ref)
	}
	dict.Set(raw.NameLiteral("Parent"), raw.RefObj{R: target.pagesRef})

	pages := target.pagesDict()
	kids, _ := pages.KV["Kids"].(*raw.ArrayObj)
	kids.Append(raw.RefObj{R: page.ref})
	pages.Set(raw.NameLiteral("Count"), raw.NumberInt(int64(kids.Len())))
	target.added[page.ref] = true
	target.pages = append(target.pages, page.ref)
	return nil
}

func (e *Engine) Serialize(ctx context.Context, doc *Document) ([]byte, error) {
	ctx, span := e.tracer.StartSpan(ctx, observability.SpanSerialize)
	defer span.Finish()
	start := time.Now()

	// Copied pages never added to the tree are dropped with everything only
	// they referenced.
	out := &raw.Document{
		Objects: reachable(doc.raw),
		Trailer: doc.raw.Trailer,
		Version: doc.raw.Version,
	}
	stats := &writeStats{}
	w := (&writer.WriterBuilder{}).WithInterceptor(stats).Build()
	var buf bytes.Buffer
	if err := w.Write(ctx, out, &buf, e.cfg.Writer); err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("serialize: %w", err)
	}
	span.SetTag(observability.MetricObjectCount, stats.objects)
	e.log.Debug("document serialized",
		observability.Int("pages", doc.PageCount()),
		observability.Int("objects", stats.objects),
		observability.Int("streams", stats.streams),
		observability.Int("bytes", buf.Len()),
		observability.Duration(observability.MetricWriteTime, time.Since(start)))
	return buf.Bytes(), nil
}

// reachable returns the objects reachable from the trailer.
func reachable(doc *raw.Document) map[raw.ObjectRef]raw.Object {
	out := make(map[raw.ObjectRef]raw.Object, len(doc.Objects))
	var stack []raw.ObjectRef
	push := func(ref raw.ObjectRef) {
		if _, seen := out[ref]; seen {
			return
		}
		if obj, ok := doc.Objects[ref]; ok {
			out[ref] = obj
			stack = append(stack, ref)
		}
	}
	raw.Refs(doc.Trailer, push)
	for len(stack) > 0 {
		ref := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		raw.Refs(doc.Objects[ref], push)
	}
	return out
}

// writeStats counts what one serialization emitted and stops it once the
// context is done.
type writeStats struct {
	objects int
	streams int
}

func (s *writeStats) BeforeWrite(ctx context.Context, _ raw.ObjectRef, obj raw.Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.objects++
	if _, ok := obj.(*raw.StreamObj); ok {
		s.streams++
	}
	return nil
}

func (s *writeStats) AfterWrite(context.Context, raw.ObjectRef, int64) error { return nil }
