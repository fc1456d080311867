package raw

import "sort"

// Rewrite deep-copies obj, replacing every indirect reference with mapRef(ref).
// Dictionary entries are visited in key order, so a mapRef that allocates
// numbers as it goes numbers the same input the same way every time.
func Rewrite(obj Object, mapRef func(ObjectRef) Object) Object {
	switch v := obj.(type) {
	case RefObj:
		return mapRef(v.R)
	case *ArrayObj:
		out := &ArrayObj{Items: make([]Object, len(v.Items))}
		for i, item := range v.Items {
			out.Items[i] = Rewrite(item, mapRef)
		}
		return out
	case *DictObj:
		if v == nil {
			return Dict()
		}
		out := &DictObj{KV: make(map[string]Object, len(v.KV))}
		for _, k := range sortedKeys(v.KV) {
			out.KV[k] = Rewrite(v.KV[k], mapRef)
		}
		return out
	case *StreamObj:
		dict, _ := Rewrite(v.Dict, mapRef).(*DictObj)
		data := make([]byte, len(v.Data))
		copy(data, v.Data)
		return &StreamObj{Dict: dict, Data: data}
	case StringObj:
		b := make([]byte, len(v.Bytes))
		copy(b, v.Bytes)
		return StringObj{Bytes: b, Hex: v.Hex}
	case nil:
		return NullObj{}
	default:
		return v
	}
}

// Refs calls fn for every indirect reference reachable inside obj without
// following them.
func Refs(obj Object, fn func(ObjectRef)) {
	switch v := obj.(type) {
	case RefObj:
		fn(v.R)
	case *ArrayObj:
		for _, item := range v.Items {
			Refs(item, fn)
		}
	case *DictObj:
		if v == nil {
			return
		}
		for _, item := range v.KV {
			Refs(item, fn)
		}
	case *StreamObj:
		Refs(v.Dict, fn)
	}
}

func sortedKeys(m map[string]Object) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
