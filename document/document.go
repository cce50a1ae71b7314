// Package document builds the navigable model of a parsed PDF: the catalog,
// the flattened page list with inherited attributes, document information,
// and page labels. It owns no bytes; everything resolves through the parser.
package document

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/text/encoding/unicode"

	"github.com/wudi/zpdf/ir/raw"
	"github.com/wudi/zpdf/observability"
	"github.com/wudi/zpdf/parser"
)

// ErrPageTreeCycle reports a page tree whose Kids loop back on an ancestor.
var ErrPageTreeCycle = errors.New("page tree contains a cycle")

// ErrNoCatalog reports a trailer without a usable document catalog.
var ErrNoCatalog = errors.New("document has no catalog")

// Document is the structural view of one PDF.
type Document struct {
	p         *parser.Parser
	log       observability.Logger
	catalog   raw.Dictionary
	pages     []*Page
	encrypted bool
	labels    *pageLabels
}

// Load walks the catalog and page tree. Documents with zero pages are
// valid; encrypted documents load structurally but carry the flag.
func Load(ctx context.Context, p *parser.Parser, log observability.Logger) (*Document, error) {
	if log == nil {
		log = observability.NopLogger{}
	}
	d := &Document{p: p, log: log}

	if _, ok := p.Trailer().Get("Encrypt"); ok {
		d.encrypted = true
	}

	rootRef, ok := p.Trailer().Get("Root")
	if !ok {
		return nil, ErrNoCatalog
	}
	catalog, ok := p.ResolveDict(ctx, rootRef)
	if !ok {
		return nil, ErrNoCatalog
	}
	d.catalog = catalog

	if pagesObj, ok := catalog.Get("Pages"); ok {
		if err := d.walkPages(ctx, pagesObj); err != nil {
			return nil, err
		}
	}
	log.Debug("document loaded",
		observability.Int("pages", len(d.pages)),
		observability.Int("encrypted", boolToInt(d.encrypted)))

	if lbl, ok := catalog.Get("PageLabels"); ok {
		d.labels = loadPageLabels(ctx, p, lbl)
	}
	return d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Parser returns the underlying object resolver.
func (d *Document) Parser() *parser.Parser { return d.p }

// Catalog returns the document catalog dictionary.
func (d *Document) Catalog() raw.Dictionary { return d.catalog }

// Encrypted reports whether the trailer names an Encrypt dictionary.
// Structural metadata stays readable; content extraction must refuse.
func (d *Document) Encrypted() bool { return d.encrypted }

// PageCount returns the number of leaf pages found in the tree.
func (d *Document) PageCount() int { return len(d.pages) }

// Page returns the zero-based page, or nil when out of range.
func (d *Document) Page(index int) *Page {
	if index < 0 || index >= len(d.pages) {
		return nil
	}
	return d.pages[index]
}

// Pages returns the flattened page list in tree order.
func (d *Document) Pages() []*Page { return d.pages }

// Label returns the display label of the zero-based page per the PageLabels
// number tree, or the ordinal as decimal when the document defines none.
func (d *Document) Label(index int) string {
	if d.labels != nil {
		if s, ok := d.labels.format(index); ok {
			return s
		}
	}
	return fmt.Sprintf("%d", index+1)
}

// Info reads the trailer Info dictionary. Fields the document does not set
// stay absent rather than empty.
func (d *Document) Info(ctx context.Context) Metadata {
	m := Metadata{Present: make(map[string]bool)}
	infoObj, ok := d.p.Trailer().Get("Info")
	if !ok {
		return m
	}
	info, ok := d.p.ResolveDict(ctx, infoObj)
	if !ok {
		return m
	}
	read := func(key string, dst *string) {
		v, ok := info.Get(key)
		if !ok {
			return
		}
		v, err := d.p.Resolve(ctx, v)
		if err != nil {
			return
		}
		s, ok := v.(raw.String)
		if !ok {
			return
		}
		*dst = DecodeTextString(s.Value())
		m.Present[key] = true
	}
	read("Title", &m.Title)
	read("Author", &m.Author)
	read("Subject", &m.Subject)
	read("Keywords", &m.Keywords)
	read("Creator", &m.Creator)
	read("Producer", &m.Producer)
	read("CreationDate", &m.CreationDate)
	read("ModDate", &m.ModDate)
	return m
}

// Metadata is the document information dictionary. Present records which
// fields the file actually carried, so an empty Title can be told apart
// from a missing one.
type Metadata struct {
	raw.DocumentMetadata
	Present map[string]bool
}

func (m Metadata) Has(field string) bool { return m.Present[field] }

// DecodeTextString interprets a PDF text string: UTF-16BE when it opens
// with a byte order mark, PDFDocEncoding otherwise. PDFDocEncoding matches
// Latin-1 across the range that occurs in practice.
func DecodeTextString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		if out, err := dec.Bytes(b); err == nil {
			return string(out)
		}
	}
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
