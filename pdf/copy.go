package pdf

import (
	"github.com/wudi/pdfmerge/ir/raw"
)

// pageCopier moves objects from one document into another, renumbering as it
// goes. Each source object is copied at most once per copier, so resources shared
// between pages stay shared in the target.
type pageCopier struct {
	src  *raw.Document
	dst  *Document
	memo map[raw.ObjectRef]raw.ObjectRef
}

func newPageCopier(src *raw.Document, dst *Document) *pageCopier {
	return &pageCopier{src: src, dst: dst, memo: make(map[raw.ObjectRef]raw.ObjectRef)}
}

// copyPage stores a flattened copy of the page under newRef.
func (c *pageCopier) copyPage(flat *raw.DictObj, newRef raw.ObjectRef) {
	c.dst.raw.Objects[newRef] = raw.Rewrite(flat, c.mapRef)
}

func (c *pageCopier) mapRef(ref raw.ObjectRef) raw.Object {
	if n, ok := c.memo[ref]; ok {
		return raw.RefObj{R: n}
	}
	obj, ok := c.src.Get(ref)
	if !ok {
		return raw.NullObj{}
	}
	// Page tree nodes and pages outside the copied set would drag the whole
	// source tree along.
	if d := dictOf(obj); d != nil {
		if typ, _ := d.Name("Type"); typ == "Pages" || typ == "Page" {
			return raw.NullObj{}
		}
	}
	newRef := c.dst.alloc()
	c.memo[ref] = newRef
	c.dst.raw.Objects[newRef] = raw.Rewrite(obj, c.mapRef)
	return raw.RefObj{R: newRef}
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
