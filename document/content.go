package document

import (
	"bytes"
	"context"

	"github.com/wudi/zpdf/ir/raw"
	"github.com/wudi/zpdf/observability"
)

// PageContent returns the decoded content stream of a page. A Contents
// entry may be a single stream or an array of streams; arrays are joined
// with a newline so operators split across stream boundaries stay apart.
func (d *Document) PageContent(ctx context.Context, page *Page) ([]byte, error) {
	if page == nil {
		return nil, nil
	}
	contents, ok := page.Dict.Get("Contents")
	if !ok {
		return nil, nil
	}
	resolved, err := d.p.Resolve(ctx, contents)
	if err != nil {
		return nil, err
	}
	switch v := resolved.(type) {
	case raw.Stream:
		return d.p.DecodedStream(ctx, v)
	case *raw.ArrayObj:
		var buf bytes.Buffer
		for _, item := range v.Items {
			part, err := d.p.Resolve(ctx, item)
			if err != nil {
				continue
			}
			st, ok := part.(raw.Stream)
			if !ok {
				continue
			}
			data, err := d.p.DecodedStream(ctx, st)
			if err != nil {
				d.log.Warn("undecodable content stream segment",
					observability.Error("err", err))
				continue
			}
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.Write(data)
		}
		return buf.Bytes(), nil
	}
	return nil, nil
}
