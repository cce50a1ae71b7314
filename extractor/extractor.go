// Package extractor pulls auxiliary structures out of a loaded document:
// the outline tree, link annotations, image placements, and interactive
// form fields. Everything here is a one-pass walk over the document model;
// nothing is cached between calls.
package extractor

import (
	"context"

	"github.com/wudi/zpdf/document"
	"github.com/wudi/zpdf/ir/raw"
	"github.com/wudi/zpdf/observability"
	"github.com/wudi/zpdf/parser"
)

// Extractor walks a document for auxiliary content.
type Extractor struct {
	doc *document.Document
	p   *parser.Parser
	log observability.Logger
}

// New returns an extractor over doc. A nil logger is replaced with a no-op.
func New(doc *document.Document, log observability.Logger) *Extractor {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Extractor{doc: doc, p: doc.Parser(), log: log}
}

// destPage resolves a destination value to a zero-based page index. The
// value may be an explicit array ([page /XYZ ...]), a named destination
// given as a name or string, or a dictionary wrapping one of those. -1
// means the destination does not point at a page in this document.
func (e *Extractor) destPage(ctx context.Context, dest raw.Object) int {
	resolved, err := e.p.Resolve(ctx, dest)
	if err != nil || resolved == nil {
		return -1
	}
	switch v := resolved.(type) {
	case *raw.ArrayObj:
		if len(v.Items) == 0 {
			return -1
		}
		return e.doc.PageIndexForRef(ctx, v.Items[0])
	case raw.NameObj:
		return e.namedDestPage(ctx, v.Val)
	case raw.StringObj:
		return e.namedDestPage(ctx, string(v.Bytes))
	}
	if dict, ok := raw.AsDict(resolved); ok {
		if inner, ok := dict.Get("D"); ok {
			return e.destPage(ctx, inner)
		}
	}
	return -1
}

func (e *Extractor) namedDestPage(ctx context.Context, name string) int {
	arr := e.doc.LookupNamedDest(ctx, name)
	if arr == nil || len(arr.Items) == 0 {
		return -1
	}
	return e.doc.PageIndexForRef(ctx, arr.Items[0])
}

// actionDestPage follows a GoTo action to its destination page.
func (e *Extractor) actionDestPage(ctx context.Context, action raw.Object) int {
	dict, ok := e.p.ResolveDict(ctx, action)
	if !ok {
		return -1
	}
	if s, ok := raw.DictName(dict, "S"); !ok || s != "GoTo" {
		return -1
	}
	d, ok := dict.Get("D")
	if !ok {
		return -1
	}
	return e.destPage(ctx, d)
}
