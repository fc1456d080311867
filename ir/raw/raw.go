package raw

import "fmt"

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

// Document is the root container for raw PDF objects.
type Document struct {
	Objects   map[ObjectRef]Object
	Trailer   *DictObj
	Version   string // e.g., "1.7"
	Encrypted bool
	Repaired  bool // xref was rebuilt by scanning the file
}

// maxResolveDepth bounds ref chains like "1 0 R" -> "2 0 R" -> ...
const maxResolveDepth = 32

// Get returns the object stored under ref. A generation mismatch falls back to the
// object number alone, which is what viewers do for sloppy writers.
func (d *Document) Get(ref ObjectRef) (Object, bool) {
	if obj, ok := d.Objects[ref]; ok {
		return obj, true
	}
	for r, obj := range d.Objects {
		if r.Num == ref.Num {
			return obj, true
		}
	}
	return nil, false
}

// Resolve follows indirect references until it reaches a direct object.
// Dangling references resolve to NullObj.
func (d *Document) Resolve(obj Object) Object {
	for i := 0; i < maxResolveDepth; i++ {
		ref, ok := obj.(RefObj)
		if !ok {
			return obj
		}
		target, found := d.Get(ref.R)
		if !found {
			return NullObj{}
		}
		obj = target
	}
	return NullObj{}
}

// ResolveDict resolves obj and returns it as a dictionary; streams yield their dictionary.
func (d *Document) ResolveDict(obj Object) (*DictObj, bool) {
	switch v := d.Resolve(obj).(type) {
	case *DictObj:
		return v, true
	case *StreamObj:
		return v.Dict, v.Dict != nil
	}
	return nil, false
}

// Catalog returns the document catalog referenced by the trailer's /Root.
func (d *Document) Catalog() (*DictObj, bool) {
	if d.Trailer == nil {
		return nil, false
	}
	root, ok := d.Trailer.Get(NameLiteral("Root"))
	if !ok {
		return nil, false
	}
	return d.ResolveDict(root)
}

// MaxObjectNum returns the highest object number in use.
func (d *Document) MaxObjectNum() int {
	max := 0
	for ref := range d.Objects {
		if ref.Num > max {
			max = ref.Num
		}
	}
	return max
}
