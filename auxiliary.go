package zpdf

import "context"

// Outline returns the document's bookmarks flattened depth-first, with
// nesting recorded in each item's Level. Target pages are 1-based here,
// zero for entries without a resolvable destination. Nil when there is no
// outline. Encrypted documents refuse: titles are ciphertext.
func (d *Document) Outline(ctx context.Context) ([]OutlineItem, error) {
	if err := d.contentGuard(); err != nil {
		return nil, err
	}
	items := d.ex.Outline(ctx)
	for i := range items {
		if items[i].Page >= 0 {
			items[i].Page++
		} else {
			items[i].Page = 0
		}
	}
	return items, nil
}

// PageLinks returns the link annotations of the 1-based page number.
// Destination pages inside the returned links are 1-based as well, zero
// when the link is external. Encrypted documents refuse: URI strings are
// ciphertext.
func (d *Document) PageLinks(ctx context.Context, pageNum int) ([]Link, error) {
	if err := d.contentGuard(); err != nil {
		return nil, err
	}
	idx, err := d.pageIndex(pageNum)
	if err != nil {
		return nil, err
	}
	links := d.ex.PageLinks(ctx, idx)
	for i := range links {
		if links[i].DestPage >= 0 {
			links[i].DestPage++
		} else {
			links[i].DestPage = 0
		}
	}
	return links, nil
}

// PageImages returns the images painted on the 1-based page number, with
// placement geometry and intrinsic pixel size.
func (d *Document) PageImages(ctx context.Context, pageNum int) ([]ImagePlacement, error) {
	if err := d.contentGuard(); err != nil {
		return nil, err
	}
	idx, err := d.pageIndex(pageNum)
	if err != nil {
		return nil, err
	}
	return d.ex.PageImages(ctx, idx)
}

// FormFields returns every terminal AcroForm field with its qualified
// name, value, and type. Encrypted documents refuse: names and values are
// ciphertext.
func (d *Document) FormFields(ctx context.Context) ([]FormField, error) {
	if err := d.contentGuard(); err != nil {
		return nil, err
	}
	return d.ex.FormFields(ctx), nil
}
