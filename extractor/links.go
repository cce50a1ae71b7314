package extractor

import (
	"context"

	"github.com/wudi/zpdf/coords"
	"github.com/wudi/zpdf/ir/raw"
)

// Link is a link annotation on a page. Exactly one of URI and DestPage is
// usually meaningful: URI for external links, DestPage (zero-based, -1
// when absent) for links within the document.
type Link struct {
	Rect     coords.Rect
	URI      string
	DestPage int
}

// PageLinks returns the link annotations of the given zero-based page.
func (e *Extractor) PageLinks(ctx context.Context, pageIndex int) []Link {
	page := e.doc.Page(pageIndex)
	if page == nil {
		return nil
	}
	annotsObj, ok := page.Dict.Get("Annots")
	if !ok {
		return nil
	}
	annots, ok := e.p.ResolveArray(ctx, annotsObj)
	if !ok {
		return nil
	}
	var links []Link
	for _, item := range annots.Items {
		dict, ok := e.p.ResolveDict(ctx, item)
		if !ok {
			continue
		}
		if sub, ok := raw.DictName(dict, "Subtype"); !ok || sub != "Link" {
			continue
		}
		link := Link{DestPage: -1, Rect: e.annotRect(ctx, dict)}
		if action, ok := dict.Get("A"); ok {
			e.applyLinkAction(ctx, action, &link)
		}
		if link.URI == "" && link.DestPage < 0 {
			if dest, ok := dict.Get("Dest"); ok {
				link.DestPage = e.destPage(ctx, dest)
			}
		}
		if link.URI == "" && link.DestPage < 0 {
			continue
		}
		links = append(links, link)
	}
	return links
}

func (e *Extractor) applyLinkAction(ctx context.Context, action raw.Object, link *Link) {
	dict, ok := e.p.ResolveDict(ctx, action)
	if !ok {
		return
	}
	switch s, _ := raw.DictName(dict, "S"); s {
	case "URI":
		if uri, ok := raw.DictString(dict, "URI"); ok {
			link.URI = string(uri)
		}
	case "GoTo":
		if d, ok := dict.Get("D"); ok {
			link.DestPage = e.destPage(ctx, d)
		}
	}
}

func (e *Extractor) annotRect(ctx context.Context, dict raw.Dictionary) coords.Rect {
	rectObj, ok := dict.Get("Rect")
	if !ok {
		return coords.Rect{}
	}
	r, _ := e.rectFromObject(ctx, rectObj)
	return r
}
