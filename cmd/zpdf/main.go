// Command zpdf extracts content from a PDF to stdout. Text sections are
// emitted as JSON so the output can be piped into other tooling.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/wudi/zpdf"
)

type featureSelection struct {
	Text     bool
	Markdown bool
	Outline  bool
	Links    bool
	Images   bool
	Forms    bool
	Metadata bool
	Labels   bool
}

type options struct {
	pdfPath  string
	search   string
	workers  int
	features featureSelection
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "zpdf: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "zpdf: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: zpdf [flags] <pdf>\n")
		flag.PrintDefaults()
	}
	text := flag.Bool("text", false, "Extract reading-order text per page")
	markdown := flag.Bool("markdown", false, "Extract the document as markdown")
	outline := flag.Bool("outline", false, "Dump the flattened outline")
	links := flag.Bool("links", false, "List link annotations per page")
	images := flag.Bool("images", false, "List image placements per page")
	forms := flag.Bool("forms", false, "List interactive form fields")
	metadata := flag.Bool("metadata", false, "Dump document metadata")
	labels := flag.Bool("labels", false, "List page labels")
	search := flag.String("search", "", "Search pages for a query string")
	workers := flag.Int("workers", 0, "Worker goroutines for whole-document extraction (0 = all CPUs)")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return options{}, fmt.Errorf("missing pdf path")
	}
	opts.pdfPath = flag.Arg(0)
	opts.search = *search
	opts.workers = *workers
	opts.features = featureSelection{
		Text:     *text,
		Markdown: *markdown,
		Outline:  *outline,
		Links:    *links,
		Images:   *images,
		Forms:    *forms,
		Metadata: *metadata,
		Labels:   *labels,
	}
	f := opts.features
	if !f.Text && !f.Markdown && !f.Outline && !f.Links && !f.Images && !f.Forms && !f.Metadata && !f.Labels && opts.search == "" {
		opts.features.Text = true
	}
	return opts, nil
}

func run(opts options) error {
	ctx := context.Background()
	var docOpts []zpdf.Option
	if opts.workers > 0 {
		docOpts = append(docOpts, zpdf.WithWorkers(opts.workers))
	}
	doc, err := zpdf.Open(ctx, opts.pdfPath, docOpts...)
	if err != nil {
		return err
	}
	defer doc.Close()

	if doc.IsEncrypted() {
		fmt.Fprintln(os.Stderr, "zpdf: document is encrypted; only structural sections are available")
	}

	if opts.features.Text {
		pages := make([]string, 0, doc.PageCount())
		for p := 1; p <= doc.PageCount(); p++ {
			text, err := doc.ExtractPage(ctx, p)
			if err != nil {
				return fmt.Errorf("extract page %d: %w", p, err)
			}
			pages = append(pages, text)
		}
		if err := emitSection("text", pages); err != nil {
			return err
		}
	}

	if opts.features.Markdown {
		md, err := doc.ExtractMarkdown(ctx)
		if err != nil {
			return fmt.Errorf("extract markdown: %w", err)
		}
		if err := emitSection("markdown", md); err != nil {
			return err
		}
	}

	if opts.search != "" {
		hits, err := doc.Search(ctx, opts.search, zpdf.SearchOptions{CaseSensitive: true})
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		if err := emitSection("search", hits); err != nil {
			return err
		}
	}

	if opts.features.Outline {
		items, err := doc.Outline(ctx)
		if err != nil {
			return fmt.Errorf("outline: %w", err)
		}
		if err := emitSection("outline", items); err != nil {
			return err
		}
	}

	if opts.features.Links {
		all := map[int][]zpdf.Link{}
		for p := 1; p <= doc.PageCount(); p++ {
			links, err := doc.PageLinks(ctx, p)
			if err != nil {
				return fmt.Errorf("links page %d: %w", p, err)
			}
			if len(links) > 0 {
				all[p] = links
			}
		}
		if err := emitSection("links", all); err != nil {
			return err
		}
	}

	if opts.features.Images {
		all := map[int][]zpdf.ImagePlacement{}
		for p := 1; p <= doc.PageCount(); p++ {
			images, err := doc.PageImages(ctx, p)
			if err != nil {
				return fmt.Errorf("images page %d: %w", p, err)
			}
			if len(images) > 0 {
				all[p] = images
			}
		}
		if err := emitSection("images", all); err != nil {
			return err
		}
	}

	if opts.features.Forms {
		fields, err := doc.FormFields(ctx)
		if err != nil {
			return fmt.Errorf("form fields: %w", err)
		}
		if err := emitSection("forms", fields); err != nil {
			return err
		}
	}

	if opts.features.Metadata {
		meta, err := doc.Metadata(ctx)
		if err != nil {
			return fmt.Errorf("metadata: %w", err)
		}
		if err := emitSection("metadata", meta); err != nil {
			return err
		}
	}

	if opts.features.Labels {
		labels := make([]string, 0, doc.PageCount())
		for p := 1; p <= doc.PageCount(); p++ {
			label, err := doc.PageLabel(p)
			if err != nil {
				return fmt.Errorf("label page %d: %w", p, err)
			}
			labels = append(labels, label)
		}
		if err := emitSection("labels", labels); err != nil {
			return err
		}
	}

	return nil
}

func emitSection(name string, payload interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{name: payload})
}
