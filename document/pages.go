package document

import (
	"context"

	"github.com/wudi/zpdf/coords"
	"github.com/wudi/zpdf/ir/raw"
)

// Page is one leaf of the page tree with its inheritable attributes already
// merged down from ancestors.
type Page struct {
	Index     int // zero-based position in tree order
	Dict      raw.Dictionary
	Resources raw.Dictionary
	MediaBox  coords.Rect
	CropBox   coords.Rect
	Rotation  int // normalized to 0, 90, 180 or 270
}

// letterMediaBox is the fallback when neither the page nor any ancestor
// declares one.
var letterMediaBox = coords.Rect{X0: 0, Y0: 0, X1: 612, Y1: 792}

// inherited carries the attributes that flow from Pages nodes to leaves.
type inherited struct {
	resources raw.Dictionary
	mediaBox  *coords.Rect
	cropBox   *coords.Rect
	rotate    *int64
}

const maxPageTreeDepth = 64

func (d *Document) walkPages(ctx context.Context, node raw.Object) error {
	visited := make(map[raw.ObjectRef]bool)
	return d.walkNode(ctx, node, inherited{}, visited, 0)
}

func (d *Document) walkNode(ctx context.Context, node raw.Object, inh inherited, visited map[raw.ObjectRef]bool, depth int) error {
	if depth > maxPageTreeDepth {
		return ErrPageTreeCycle
	}
	if ref, ok := node.(raw.RefObj); ok {
		if visited[ref.Ref()] {
			return ErrPageTreeCycle
		}
		visited[ref.Ref()] = true
	}
	dict, ok := d.p.ResolveDict(ctx, node)
	if !ok {
		return nil // broken kid; skip it
	}
	inh = d.mergeInherited(ctx, inh, dict)

	typ, _ := raw.DictName(dict, "Type")
	kidsObj, hasKids := dict.Get("Kids")
	if typ == "Page" || (!hasKids && typ != "Pages") {
		d.appendPage(dict, inh)
		return nil
	}
	if !hasKids {
		return nil
	}
	kids, ok := d.p.ResolveArray(ctx, kidsObj)
	if !ok {
		return nil
	}
	for _, kid := range kids.Items {
		if err := d.walkNode(ctx, kid, inh, visited, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// mergeInherited overlays a node's inheritable entries on what flowed down
// from its ancestors. Any entry may be an indirect reference, Resources in
// particular usually is, so everything resolves through the parser.
func (d *Document) mergeInherited(ctx context.Context, inh inherited, dict raw.Dictionary) inherited {
	if res, ok := dict.Get("Resources"); ok {
		if rd, ok := d.p.ResolveDict(ctx, res); ok {
			inh.resources = rd
		}
	}
	if mb, ok := d.rectEntry(ctx, dict, "MediaBox"); ok {
		inh.mediaBox = &mb
	}
	if cb, ok := d.rectEntry(ctx, dict, "CropBox"); ok {
		inh.cropBox = &cb
	}
	if rot, ok := raw.DictInt(dict, "Rotate"); ok {
		inh.rotate = &rot
	}
	return inh
}

func (d *Document) appendPage(dict raw.Dictionary, inh inherited) {
	page := &Page{
		Index:     len(d.pages),
		Dict:      dict,
		Resources: inh.resources,
		MediaBox:  letterMediaBox,
		Rotation:  0,
	}
	if inh.mediaBox != nil {
		page.MediaBox = *inh.mediaBox
	}
	page.CropBox = page.MediaBox
	if inh.cropBox != nil {
		page.CropBox = *inh.cropBox
	}
	if inh.rotate != nil {
		page.Rotation = normalizeRotation(*inh.rotate)
	}
	d.pages = append(d.pages, page)
}

// normalizeRotation folds any integer into {0, 90, 180, 270}. Values not a
// multiple of 90 round down to the nearest quarter turn.
func normalizeRotation(rot int64) int {
	r := int(((rot % 360) + 360) % 360)
	return r - r%90
}

// rectEntry reads a four-number array entry as a normalized rectangle,
// chasing indirect references both at the entry and inside the array.
func (d *Document) rectEntry(ctx context.Context, dict raw.Dictionary, key string) (coords.Rect, bool) {
	v, ok := dict.Get(key)
	if !ok {
		return coords.Rect{}, false
	}
	arr, ok := d.p.ResolveArray(ctx, v)
	if !ok || len(arr.Items) != 4 {
		return coords.Rect{}, false
	}
	var vals [4]float64
	for i, item := range arr.Items {
		resolved, err := d.p.Resolve(ctx, item)
		if err != nil {
			return coords.Rect{}, false
		}
		n, ok := resolved.(raw.Number)
		if !ok {
			return coords.Rect{}, false
		}
		vals[i] = n.Float()
	}
	return coords.NewRect(vals[0], vals[1], vals[2], vals[3]), true
}
