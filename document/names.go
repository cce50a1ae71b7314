package document

import (
	"bytes"
	"context"

	"github.com/wudi/zpdf/ir/raw"
)

// LookupNamedDest resolves a named destination to its destination array.
// Both the PDF 1.1 catalog Dests dictionary and the 1.2 Names/Dests name
// tree are consulted. The returned array is nil when the name is unknown.
func (d *Document) LookupNamedDest(ctx context.Context, name string) *raw.ArrayObj {
	// Newer form: /Names /Dests name tree.
	if namesObj, ok := d.catalog.Get("Names"); ok {
		if names, ok := d.p.ResolveDict(ctx, namesObj); ok {
			if destsObj, ok := names.Get("Dests"); ok {
				if v := d.lookupNameTree(ctx, destsObj, []byte(name), 0); v != nil {
					if arr := d.destArray(ctx, v); arr != nil {
						return arr
					}
				}
			}
		}
	}
	// Legacy form: catalog /Dests dictionary keyed by name.
	if destsObj, ok := d.catalog.Get("Dests"); ok {
		if dests, ok := d.p.ResolveDict(ctx, destsObj); ok {
			if v, ok := dests.Get(name); ok {
				return d.destArray(ctx, v)
			}
		}
	}
	return nil
}

// destArray unwraps a destination value: either the array itself or a
// dictionary with a D entry.
func (d *Document) destArray(ctx context.Context, v raw.Object) *raw.ArrayObj {
	resolved, err := d.p.Resolve(ctx, v)
	if err != nil {
		return nil
	}
	if arr, ok := resolved.(*raw.ArrayObj); ok {
		return arr
	}
	if dict, ok := raw.AsDict(resolved); ok {
		if inner, ok := dict.Get("D"); ok {
			if arr, ok := d.p.ResolveArray(ctx, inner); ok {
				return arr
			}
		}
	}
	return nil
}

// lookupNameTree searches a name tree node for key. Limits kicks the search
// into the right kid; leaves hold sorted key/value pairs in Names.
func (d *Document) lookupNameTree(ctx context.Context, node raw.Object, key []byte, depth int) raw.Object {
	if depth > maxNumberTreeDepth {
		return nil
	}
	dict, ok := d.p.ResolveDict(ctx, node)
	if !ok {
		return nil
	}
	if namesObj, ok := dict.Get("Names"); ok {
		if na, ok := d.p.ResolveArray(ctx, namesObj); ok {
			for i := 0; i+1 < len(na.Items); i += 2 {
				k, err := d.p.Resolve(ctx, na.Items[i])
				if err != nil {
					continue
				}
				ks, ok := k.(raw.String)
				if !ok {
					continue
				}
				if bytes.Equal(ks.Value(), key) {
					return na.Items[i+1]
				}
			}
		}
	}
	if kids, ok := dict.Get("Kids"); ok {
		if ka, ok := d.p.ResolveArray(ctx, kids); ok {
			for _, kid := range ka.Items {
				kd, ok := d.p.ResolveDict(ctx, kid)
				if !ok {
					continue
				}
				if !nameInLimits(ctx, d, kd, key) {
					continue
				}
				if v := d.lookupNameTree(ctx, kid, key, depth+1); v != nil {
					return v
				}
			}
		}
	}
	return nil
}

func nameInLimits(ctx context.Context, d *Document, dict raw.Dictionary, key []byte) bool {
	limitsObj, ok := dict.Get("Limits")
	if !ok {
		return true
	}
	la, ok := d.p.ResolveArray(ctx, limitsObj)
	if !ok || len(la.Items) != 2 {
		return true
	}
	lo, okLo := la.Items[0].(raw.StringObj)
	hi, okHi := la.Items[1].(raw.StringObj)
	if !okLo || !okHi {
		return true
	}
	return bytes.Compare(key, lo.Bytes) >= 0 && bytes.Compare(key, hi.Bytes) <= 0
}

// PageIndexForRef maps a page object reference to its zero-based index,
// returning -1 for unknown references. Destination arrays name pages by
// reference, so this is the bridge from destinations to page numbers.
func (d *Document) PageIndexForRef(ctx context.Context, obj raw.Object) int {
	ref, ok := obj.(raw.RefObj)
	if !ok {
		return -1
	}
	target, err := d.p.Get(ctx, ref.Ref())
	if err != nil {
		return -1
	}
	targetDict, ok := raw.AsDict(target)
	if !ok {
		return -1
	}
	// The loader caches by reference, so identity comparison is exact.
	for _, page := range d.pages {
		if page.Dict == targetDict {
			return page.Index
		}
	}
	return -1
}
