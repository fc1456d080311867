package pdf

import (
	"github.com/wudi/pdfmerge/ir/raw"
)

// Document is a PDF held in memory. Documents from LoadDocument are read-only
// sources; documents from CreateDocument accept pages.
type Document struct {
	raw      *raw.Document
	pages    []raw.ObjectRef
	pagesRef raw.ObjectRef
	next     int
	created  bool
	added    map[raw.ObjectRef]bool
}

// Page is a page object owned by one document. Pages returned by CopyPages are
// not part of the page tree until passed to AddPage.
type Page struct {
	ref   raw.ObjectRef
	owner *Document
}

func (d *Document) PageCount() int { return len(d.pages) }

// Version is the header version, raised on a target as sources are copied in.
func (d *Document) Version() string { return d.raw.Version }

// Repaired reports whether the source needed its cross-reference data rebuilt.
func (d *Document) Repaired() bool { return d.raw.Repaired }

func (d *Document) alloc() raw.ObjectRef {
	ref := raw.ObjectRef{Num: d.next}
	d.next++
	return ref
}

func newTargetDocument() *Document {
	catalogRef := raw.ObjectRef{Num: 1}
	pagesRef := raw.ObjectRef{Num: 2}

	pages := raw.Dict()
	pages.Set(raw.NameLiteral("Type"), raw.NameLiteral("Pages"))
	pages.Set(raw.NameLiteral("Kids"), raw.NewArray())
	pages.Set(raw.NameLiteral("Count"), raw.NumberInt(0))

	catalog := raw.Dict()
	catalog.Set(raw.NameLiteral("Type"), raw.NameLiteral("Catalog"))
	catalog.Set(raw.NameLiteral("Pages"), raw.RefObj{R: pagesRef})

	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("Root"), raw.RefObj{R: catalogRef})

	return &Document{
		raw: &raw.Document{
			Objects: map[raw.ObjectRef]raw.Object{catalogRef: catalog, pagesRef: pages},
			Trailer: trailer,
			Version: "1.4",
		},
		pagesRef: pagesRef,
		next:     3,
		created:  true,
		added:    make(map[raw.ObjectRef]bool),
	}
}

func (d *Document) pagesDict() *raw.DictObj {
	dict, _ := d.raw.Objects[d.pagesRef].(*raw.DictObj)
	return dict
}

// raiseVersion keeps the header at least as new as every copied source.
func (d *Document) raiseVersion(v string) {
	if v > d.raw.Version {
		d.raw.Version = v
	}
}
