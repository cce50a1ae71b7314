// Package zpdf extracts content from PDF documents: plain text in natural
// reading order, markdown with heading reconstruction, positioned text
// spans, and auxiliary structures such as outlines, links, images, and
// form fields. Documents are parsed lazily; objects are decoded on first
// use and cached for the document's lifetime.
package zpdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/wudi/zpdf/contentstream"
	"github.com/wudi/zpdf/document"
	"github.com/wudi/zpdf/extractor"
	"github.com/wudi/zpdf/observability"
	"github.com/wudi/zpdf/parser"
	"github.com/wudi/zpdf/recovery"
)

var (
	// ErrInvalidPDF reports a document whose structure cannot be
	// recovered: no cross-reference data, no catalog, or a cyclic page
	// tree.
	ErrInvalidPDF = errors.New("zpdf: invalid document")

	// ErrEncrypted reports an encrypted document. Structural queries
	// still work; content extraction refuses rather than returning
	// ciphertext.
	ErrEncrypted = errors.New("zpdf: document is encrypted")

	// ErrPageOutOfRange reports a page number outside [1, PageCount].
	ErrPageOutOfRange = errors.New("zpdf: page out of range")

	// ErrClosed reports use of a document after Close.
	ErrClosed = errors.New("zpdf: document closed")
)

// Document is an open PDF. All methods are safe for concurrent use until
// Close is called. Values returned before Close (spans, text, outline
// entries) remain valid afterwards; they do not borrow from the document.
type Document struct {
	data []byte
	p    *parser.Parser
	doc  *document.Document
	ex   *extractor.Extractor

	log     observability.Logger
	rec     recovery.Strategy
	workers int
	closed  bool
}

// Option configures an open call.
type Option func(*config)

type config struct {
	workers int
	log     observability.Logger
	rec     recovery.Strategy
}

// WithWorkers caps the goroutines used by whole-document extraction.
// Values below one fall back to the number of CPUs.
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithLogger routes recovered-error and progress logging to log.
func WithLogger(log observability.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithRecovery sets the strategy consulted when malformed structures are
// met. The default is lenient: skip and substitute where possible.
func WithRecovery(rec recovery.Strategy) Option {
	return func(c *config) { c.rec = rec }
}

// Open reads and parses the PDF at path.
func Open(ctx context.Context, path string, opts ...Option) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("zpdf: %w", err)
	}
	return open(ctx, data, opts...)
}

// OpenMemory parses a PDF held in memory. The input is copied, so the
// caller may reuse or free its buffer immediately.
func OpenMemory(ctx context.Context, data []byte, opts ...Option) (*Document, error) {
	owned := make([]byte, len(data))
	copy(owned, data)
	return open(ctx, owned, opts...)
}

// OpenMemoryUnsafe parses a PDF held in memory without copying. The
// caller must keep data alive and unmodified for the document's entire
// lifetime; violating that contract corrupts later reads. Prefer
// OpenMemory unless the copy is measurably too expensive.
func OpenMemoryUnsafe(ctx context.Context, data []byte, opts ...Option) (*Document, error) {
	return open(ctx, data, opts...)
}

func open(ctx context.Context, data []byte, opts ...Option) (*Document, error) {
	cfg := config{workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = observability.NopLogger{}
	}
	if cfg.rec == nil {
		cfg.rec = recovery.NewLenient()
	}
	if cfg.workers < 1 {
		cfg.workers = runtime.NumCPU()
	}

	p, err := parser.Open(ctx, bytes.NewReader(data), int64(len(data)), parser.Config{
		Recovery: cfg.rec,
		Logger:   cfg.log,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	doc, err := document.Load(ctx, p, cfg.log)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	return &Document{
		data:    data,
		p:       p,
		doc:     doc,
		ex:      extractor.New(doc, cfg.log),
		log:     cfg.log,
		rec:     cfg.rec,
		workers: cfg.workers,
	}, nil
}

// Close releases the document. Calling any method afterwards returns
// ErrClosed; values obtained before Close stay valid.
func (d *Document) Close() error {
	d.closed = true
	d.p = nil
	d.doc = nil
	d.ex = nil
	d.data = nil
	return nil
}

// PageCount returns the number of pages. Zero-page documents are valid.
func (d *Document) PageCount() int {
	if d.closed {
		return 0
	}
	return d.doc.PageCount()
}

// IsEncrypted reports whether the trailer carries an Encrypt dictionary.
// It is set even though extraction on such documents fails, so callers
// can tell "blank" from "protected".
func (d *Document) IsEncrypted() bool {
	return !d.closed && d.doc.Encrypted()
}

// PageInfo is the geometry of one page.
type PageInfo struct {
	Width    float64
	Height   float64
	Rotation int
}

// PageInfo returns the geometry of the 1-based page number.
func (d *Document) PageInfo(pageNum int) (PageInfo, error) {
	idx, err := d.pageIndex(pageNum)
	if err != nil {
		return PageInfo{}, err
	}
	page := d.doc.Page(idx)
	return PageInfo{
		Width:    page.MediaBox.Width(),
		Height:   page.MediaBox.Height(),
		Rotation: page.Rotation,
	}, nil
}

// PageLabel returns the display label of the 1-based page number, falling
// back to its decimal page number when the document defines no labels.
// Encrypted documents refuse: label prefixes are ciphertext.
func (d *Document) PageLabel(pageNum int) (string, error) {
	if err := d.contentGuard(); err != nil {
		return "", err
	}
	idx, err := d.pageIndex(pageNum)
	if err != nil {
		return "", err
	}
	return d.doc.Label(idx), nil
}

// Metadata carries the Info dictionary fields; absence and emptiness are
// distinguished via Has.
type Metadata = document.Metadata

// Metadata returns the document information dictionary. Encrypted
// documents refuse: their Info strings are ciphertext.
func (d *Document) Metadata(ctx context.Context) (Metadata, error) {
	if err := d.contentGuard(); err != nil {
		return Metadata{}, err
	}
	return d.doc.Info(ctx), nil
}

// pageIndex converts a public 1-based page number to the internal
// 0-based index. Every inbound page number passes through here exactly
// once; outbound indices convert in the method that returns them.
func (d *Document) pageIndex(pageNum int) (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	if pageNum < 1 || pageNum > d.doc.PageCount() {
		return 0, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, pageNum, d.doc.PageCount())
	}
	return pageNum - 1, nil
}

// contentGuard rejects calls that would return decoded content or string
// values. Strings in an encrypted file are ciphertext, so every surface
// carrying them refuses; page counts and geometry stay readable.
func (d *Document) contentGuard() error {
	if d.closed {
		return ErrClosed
	}
	if d.doc.Encrypted() {
		return ErrEncrypted
	}
	return nil
}

// Re-exported result types. The subpackages produce them; the root
// package is the supported API surface.
type (
	// TextSpan is a positioned run of text in page coordinates.
	TextSpan = contentstream.TextSpan
	// ImagePlacement is a painted image with intrinsic pixel size.
	ImagePlacement = contentstream.ImagePlacement
	// OutlineItem is a flattened bookmark.
	OutlineItem = extractor.OutlineItem
	// Link is a link annotation.
	Link = extractor.Link
	// FormField is an interactive form field.
	FormField = extractor.FormField
	// FieldType classifies form fields.
	FieldType = extractor.FieldType
)

// Form field types.
const (
	FieldUnknown   = extractor.FieldUnknown
	FieldText      = extractor.FieldText
	FieldCheckbox  = extractor.FieldCheckbox
	FieldRadio     = extractor.FieldRadio
	FieldChoice    = extractor.FieldChoice
	FieldSignature = extractor.FieldSignature
)
