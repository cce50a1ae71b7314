package zpdf

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wudi/zpdf/contentstream"
	"github.com/wudi/zpdf/coords"
	"github.com/wudi/zpdf/layout"
	"github.com/wudi/zpdf/search"
)

// pageSpans interprets one page's content stream and returns its raw
// spans in paint order. A fresh interpreter runs per call, so concurrent
// page extraction shares nothing but the object cache.
func (d *Document) pageSpans(ctx context.Context, idx int) ([]TextSpan, error) {
	page := d.doc.Page(idx)
	content, err := d.doc.PageContent(ctx, page)
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, nil
	}
	in := contentstream.NewInterpreter(d.p, d.rec, d.log)
	if err := in.Run(ctx, content, page.Resources, coords.Identity()); err != nil {
		return nil, err
	}
	return in.Spans(), nil
}

// pageText renders one page in reading order. Non-empty pages end with a
// newline so that concatenating pages reproduces ExtractAll exactly.
func (d *Document) pageText(ctx context.Context, idx int) (string, error) {
	spans, err := d.pageSpans(ctx, idx)
	if err != nil {
		return "", err
	}
	text := layout.Text(layout.Analyze(spans))
	if text == "" {
		return "", nil
	}
	return text + "\n", nil
}

// ExtractPage returns the reading-order text of the 1-based page number.
func (d *Document) ExtractPage(ctx context.Context, pageNum int) (string, error) {
	if err := d.contentGuard(); err != nil {
		return "", err
	}
	idx, err := d.pageIndex(pageNum)
	if err != nil {
		return "", err
	}
	return d.pageText(ctx, idx)
}

// ExtractAll returns the reading-order text of the whole document. Pages
// are extracted in parallel up to the configured worker count; the output
// is byte-identical regardless of parallelism, and equal to the
// concatenation of ExtractPage over every page.
func (d *Document) ExtractAll(ctx context.Context) (string, error) {
	if err := d.contentGuard(); err != nil {
		return "", err
	}
	texts, err := d.allPageTexts(ctx, d.workers)
	if err != nil {
		return "", err
	}
	return strings.Join(texts, ""), nil
}

// ExtractAllFast returns the document text in content-stream paint order,
// skipping reading-order analysis. Faster on pathological layouts, but
// multi-column pages come out in authoring order.
func (d *Document) ExtractAllFast(ctx context.Context) (string, error) {
	if err := d.contentGuard(); err != nil {
		return "", err
	}
	var b strings.Builder
	for idx := 0; idx < d.doc.PageCount(); idx++ {
		spans, err := d.pageSpans(ctx, idx)
		if err != nil {
			return "", err
		}
		if text := layout.StreamText(spans); text != "" {
			b.WriteString(text)
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// allPageTexts extracts every page with at most workers goroutines and
// returns the results in page order.
func (d *Document) allPageTexts(ctx context.Context, workers int) ([]string, error) {
	n := d.doc.PageCount()
	texts := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for idx := 0; idx < n; idx++ {
		g.Go(func() error {
			text, err := d.pageText(gctx, idx)
			if err != nil {
				return err
			}
			texts[idx] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return texts, nil
}

// ExtractPageMarkdown renders the 1-based page as markdown, promoting
// oversized lines to headings.
func (d *Document) ExtractPageMarkdown(ctx context.Context, pageNum int) (string, error) {
	if err := d.contentGuard(); err != nil {
		return "", err
	}
	idx, err := d.pageIndex(pageNum)
	if err != nil {
		return "", err
	}
	spans, err := d.pageSpans(ctx, idx)
	if err != nil {
		return "", err
	}
	return layout.ToMarkdown(spans), nil
}

// ExtractMarkdown renders the whole document as markdown. Page breaks
// become horizontal rules so document structure survives concatenation.
func (d *Document) ExtractMarkdown(ctx context.Context) (string, error) {
	if err := d.contentGuard(); err != nil {
		return "", err
	}
	var pages []string
	for idx := 0; idx < d.doc.PageCount(); idx++ {
		spans, err := d.pageSpans(ctx, idx)
		if err != nil {
			return "", err
		}
		if md := layout.ToMarkdown(spans); md != "" {
			pages = append(pages, md)
		}
	}
	return strings.Join(pages, "\n\n---\n\n"), nil
}

// ExtractBounds returns the positioned spans of the 1-based page in
// reading order, for callers that need geometry alongside text.
func (d *Document) ExtractBounds(ctx context.Context, pageNum int) ([]TextSpan, error) {
	if err := d.contentGuard(); err != nil {
		return nil, err
	}
	idx, err := d.pageIndex(pageNum)
	if err != nil {
		return nil, err
	}
	spans, err := d.pageSpans(ctx, idx)
	if err != nil {
		return nil, err
	}
	return layout.OrderSpans(spans), nil
}

// SearchHit is one match of a Search call. Page is 1-based.
type SearchHit struct {
	Page    int
	Offset  int
	Context string
}

// SearchOptions controls Search matching.
type SearchOptions struct {
	CaseSensitive bool
}

// Search scans the reading-order text of every page for query. Each call
// re-extracts and scans; no index is kept.
func (d *Document) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchHit, error) {
	if err := d.contentGuard(); err != nil {
		return nil, err
	}
	texts, err := d.allPageTexts(ctx, d.workers)
	if err != nil {
		return nil, err
	}
	raw := search.Pages(texts, query, search.Options{CaseSensitive: opts.CaseSensitive})
	hits := make([]SearchHit, 0, len(raw))
	for _, h := range raw {
		hits = append(hits, SearchHit{Page: h.Page + 1, Offset: h.Offset, Context: h.Context})
	}
	return hits, nil
}
