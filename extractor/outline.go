package extractor

import (
	"context"

	"github.com/wudi/zpdf/document"
	"github.com/wudi/zpdf/ir/raw"
	"github.com/wudi/zpdf/observability"
)

// OutlineItem is one flattened bookmark. Page is the zero-based target
// page, -1 when the entry has no resolvable destination. Level starts at
// zero for top-level entries.
type OutlineItem struct {
	Title string
	Page  int
	Level int
}

const maxOutlineItems = 1 << 16

// Outline flattens the document's bookmark tree depth-first. Sibling and
// child links are followed with a visited set, so malformed trees with
// back edges terminate instead of looping.
func (e *Extractor) Outline(ctx context.Context) []OutlineItem {
	root, ok := e.doc.Catalog().Get("Outlines")
	if !ok {
		return nil
	}
	dict, ok := e.p.ResolveDict(ctx, root)
	if !ok {
		return nil
	}
	first, ok := dict.Get("First")
	if !ok {
		return nil
	}
	var items []OutlineItem
	visited := map[raw.ObjectRef]bool{}
	e.walkOutline(ctx, first, 0, visited, &items)
	return items
}

func (e *Extractor) walkOutline(ctx context.Context, node raw.Object, level int, visited map[raw.ObjectRef]bool, out *[]OutlineItem) {
	for node != nil && len(*out) < maxOutlineItems {
		if ref, ok := node.(raw.RefObj); ok {
			if visited[ref.Ref()] {
				e.log.Warn("outline cycle", observability.Int("object", ref.Ref().Num))
				return
			}
			visited[ref.Ref()] = true
		}
		dict, ok := e.p.ResolveDict(ctx, node)
		if !ok {
			return
		}

		item := OutlineItem{Page: -1, Level: level}
		if title, ok := dict.Get("Title"); ok {
			if resolved, err := e.p.Resolve(ctx, title); err == nil {
				if s, ok := resolved.(raw.String); ok {
					item.Title = document.DecodeTextString(s.Value())
				}
			}
		}
		if dest, ok := dict.Get("Dest"); ok {
			item.Page = e.destPage(ctx, dest)
		}
		if item.Page < 0 {
			if action, ok := dict.Get("A"); ok {
				item.Page = e.actionDestPage(ctx, action)
			}
		}
		*out = append(*out, item)

		if first, ok := dict.Get("First"); ok {
			e.walkOutline(ctx, first, level+1, visited, out)
		}
		next, ok := dict.Get("Next")
		if !ok {
			return
		}
		node = next
	}
}
