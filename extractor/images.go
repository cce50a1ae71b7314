package extractor

import (
	"context"

	"github.com/wudi/zpdf/contentstream"
	"github.com/wudi/zpdf/coords"
	"github.com/wudi/zpdf/observability"
	"github.com/wudi/zpdf/recovery"
)

// PageImages returns the image placements painted on the given zero-based
// page. The rect is where the image lands on the page; Width and Height
// are the pixel dimensions of the underlying XObject.
func (e *Extractor) PageImages(ctx context.Context, pageIndex int) ([]contentstream.ImagePlacement, error) {
	page := e.doc.Page(pageIndex)
	if page == nil {
		return nil, nil
	}
	content, err := e.doc.PageContent(ctx, page)
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, nil
	}
	in := contentstream.NewInterpreter(e.p, recovery.NewLenient(), e.log)
	if err := in.Run(ctx, content, page.Resources, coords.Identity()); err != nil {
		e.log.Warn("content interpretation failed",
			observability.Int("page", pageIndex),
			observability.Error("err", err))
		return nil, err
	}
	return in.Images(), nil
}
