package pdf

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfmerge/ir/raw"
)

const maxTreeDepth = 64

// inheritable lists the page attributes a /Pages node passes down to its kids.
var inheritable = []string{"Resources", "MediaBox", "CropBox", "Rotate"}

// collectPages walks the page tree depth-first and returns leaf pages in order.
// A leaf listed twice is returned twice; a node that is its own ancestor is
// skipped so a cyclic tree terminates.
func collectPages(doc *raw.Document, maxPages int) ([]raw.ObjectRef, error) {
	catalog, ok := doc.Catalog()
	if !ok {
		return nil, errors.New("catalog missing")
	}
	root, ok := catalog.Get(raw.NameLiteral("Pages"))
	if !ok {
		return nil, errors.New("catalog has no /Pages")
	}
	rootRef, ok := root.(raw.RefObj)
	if !ok {
		return nil, errors.New("/Pages is not an indirect reference")
	}

	var pages []raw.ObjectRef
	ancestors := make(map[raw.ObjectRef]bool)
	var walk func(ref raw.ObjectRef, depth int) error
	walk = func(ref raw.ObjectRef, depth int) error {
		if depth > maxTreeDepth {
			return fmt.Errorf("page tree deeper than %d", maxTreeDepth)
		}
		if ancestors[ref] {
			return nil
		}
		node, ok := doc.ResolveDict(raw.RefObj{R: ref})
		if !ok {
			return nil
		}
		kids, hasKids := doc.Resolve(kidsOf(node)).(*raw.ArrayObj)
		typ, _ := node.Name("Type")
		if typ == "Page" || (typ != "Pages" && !hasKids) {
			if maxPages > 0 && len(pages) >= maxPages {
				return fmt.Errorf("more than %d pages", maxPages)
			}
			pages = append(pages, ref)
			return nil
		}
		if !hasKids {
			return nil
		}
		ancestors[ref] = true
		defer delete(ancestors, ref)
		for _, kid := range kids.Items {
			kidRef, ok := kid.(raw.RefObj)
			if !ok {
				continue
			}
			if err := walk(kidRef.R, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(rootRef.R, 0); err != nil {
		return nil, err
	}
	return pages, nil
}

func kidsOf(d *raw.DictObj) raw.Object {
	v, _ := d.Get(raw.NameLiteral("Kids"))
	return v
}

// flattenPage returns a shallow copy of the page dictionary with inherited
// attributes pulled down from its ancestors and /Parent removed.
func flattenPage(doc *raw.Document, ref raw.ObjectRef) (*raw.DictObj, error) {
	page, ok := doc.ResolveDict(raw.RefObj{R: ref})
	if !ok {
		return nil, fmt.Errorf("page %s is not a dictionary", ref)
	}
	out := raw.Dict()
	for k, v := range page.KV {
		out.KV[k] = v
	}

	missing := make(map[string]bool)
	for _, key := range inheritable {
		if _, ok := out.KV[key]; !ok {
			missing[key] = true
		}
	}
	seen := map[*raw.DictObj]bool{page: true}
	node := page
	for depth := 0; len(missing) > 0 && depth < maxTreeDepth; depth++ {
		parentObj, ok := node.Get(raw.NameLiteral("Parent"))
		if !ok {
			break
		}
		parent, ok := doc.ResolveDict(parentObj)
		if !ok || seen[parent] {
			break
		}
		seen[parent] = true
		for key := range missing {
			if v, ok := parent.KV[key]; ok {
				out.KV[key] = v
				delete(missing, key)
			}
		}
		node = parent
	}

	if missing["MediaBox"] {
		out.Set(raw.NameLiteral("MediaBox"), raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(612), raw.NumberInt(792)))
	}
	out.Set(raw.NameLiteral("Type"), raw.NameLiteral("Page"))
	out.Delete(raw.NameLiteral("Parent"))
	return out, nil
}
