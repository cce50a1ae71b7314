// Package parser turns a PDF byte source into resolvable objects. It owns
// the cross-reference table, the object cache, and stream decoding; layers
// above it see raw objects and never touch file offsets.
package parser

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/zpdf/filters"
	"github.com/wudi/zpdf/ir/raw"
	"github.com/wudi/zpdf/observability"
	"github.com/wudi/zpdf/recovery"
	"github.com/wudi/zpdf/scanner"
	"github.com/wudi/zpdf/xref"
)

// ErrObjectNotFound reports a reference with no entry in the
// cross-reference table or an unparseable target. Lenient resolution
// substitutes null instead of surfacing it.
var ErrObjectNotFound = errors.New("object not found")

type Config struct {
	Filters  *filters.Pipeline
	Recovery recovery.Strategy
	Logger   observability.Logger
	XRef     xref.Config
}

// Parser resolves indirect references against one open document.
// Safe for concurrent use.
type Parser struct {
	reader  io.ReaderAt
	size    int64
	table   *xref.Table
	filters *filters.Pipeline
	rec     recovery.Strategy
	log     observability.Logger
	loader  *objectLoader
}

// Open resolves the cross-reference information of the file and returns a
// parser over it.
func Open(ctx context.Context, r io.ReaderAt, size int64, cfg Config) (*Parser, error) {
	if cfg.Filters == nil {
		cfg.Filters = filters.NewDefaultPipeline(filters.Limits{})
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	xcfg := cfg.XRef
	if xcfg.Filters == nil {
		xcfg.Filters = cfg.Filters
	}
	if xcfg.Recovery == nil {
		xcfg.Recovery = cfg.Recovery
	}
	table, err := xref.NewResolver(xcfg).Resolve(ctx, r, size)
	if err != nil {
		return nil, fmt.Errorf("resolve cross-reference data: %w", err)
	}
	p := &Parser{
		reader:  r,
		size:    size,
		table:   table,
		filters: cfg.Filters,
		rec:     cfg.Recovery,
		log:     cfg.Logger,
	}
	p.loader = newObjectLoader(p)
	return p, nil
}

// Trailer returns the merged trailer dictionary.
func (p *Parser) Trailer() raw.Dictionary { return p.table.Trailer() }

// Get loads the object named by ref, from cache after the first call.
func (p *Parser) Get(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	return p.loader.load(ctx, ref)
}

// Resolve dereferences obj if it is an indirect reference, following chains
// of references up to a small fixed depth. Broken references resolve to
// null unless the recovery strategy demands failure.
func (p *Parser) Resolve(ctx context.Context, obj raw.Object) (raw.Object, error) {
	const maxDepth = 32
	for depth := 0; depth < maxDepth; depth++ {
		ref, ok := obj.(raw.RefObj)
		if !ok {
			return obj, nil
		}
		target, err := p.Get(ctx, ref.Ref())
		if err != nil {
			if errors.Is(err, ErrObjectNotFound) {
				if p.rec != nil {
					loc := recovery.Location{ObjectNum: ref.Ref().Num, ObjectGen: ref.Ref().Gen, Component: "parser"}
					if p.rec.OnError(err, loc) == recovery.ActionFail {
						return nil, err
					}
				}
				p.log.Debug("dangling reference resolved to null",
					observability.Int("obj", ref.Ref().Num))
				return raw.NullObj{}, nil
			}
			return nil, err
		}
		obj = target
	}
	return nil, errors.New("reference chain too deep")
}

// ResolveDict resolves obj and returns its dictionary view, accepting both
// dictionaries and streams.
func (p *Parser) ResolveDict(ctx context.Context, obj raw.Object) (raw.Dictionary, bool) {
	resolved, err := p.Resolve(ctx, obj)
	if err != nil {
		return nil, false
	}
	return raw.AsDict(resolved)
}

// ResolveArray resolves obj to an array.
func (p *Parser) ResolveArray(ctx context.Context, obj raw.Object) (*raw.ArrayObj, bool) {
	resolved, err := p.Resolve(ctx, obj)
	if err != nil {
		return nil, false
	}
	a, ok := resolved.(*raw.ArrayObj)
	return a, ok
}

// DecodedStream applies the stream's filter chain and returns the decoded
// payload. Streams with an unsupported filter yield an empty payload and
// filters.ErrUnsupportedFilter.
func (p *Parser) DecodedStream(ctx context.Context, stream raw.Stream) ([]byte, error) {
	names, params, err := p.filterChain(ctx, stream.Dictionary())
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return stream.RawData(), nil
	}
	out, err := p.filters.Decode(ctx, stream.RawData(), names, params)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// filterChain extracts the Filter and DecodeParms entries, resolving any
// indirect members.
func (p *Parser) filterChain(ctx context.Context, dict raw.Dictionary) ([]string, []raw.Dictionary, error) {
	fv, ok := dict.Get("Filter")
	if !ok {
		return nil, nil, nil
	}
	fv, err := p.Resolve(ctx, fv)
	if err != nil {
		return nil, nil, err
	}
	pv, _ := dict.Get("DecodeParms")
	pv, _ = p.Resolve(ctx, pv)

	var names []string
	var params []raw.Dictionary
	switch f := fv.(type) {
	case raw.NameObj:
		names = []string{f.Val}
		if pd, ok := p.ResolveDict(ctx, pv); ok {
			params = []raw.Dictionary{pd}
		}
	case *raw.ArrayObj:
		pa, _ := pv.(*raw.ArrayObj)
		for i, item := range f.Items {
			item, err := p.Resolve(ctx, item)
			if err != nil {
				return nil, nil, err
			}
			n, ok := item.(raw.NameObj)
			if !ok {
				continue
			}
			names = append(names, n.Val)
			var pd raw.Dictionary
			if pa != nil && i < len(pa.Items) {
				pd, _ = p.ResolveDict(ctx, pa.Items[i])
			}
			params = append(params, pd)
		}
	}
	return names, params, nil
}

// XRef exposes the resolved table for diagnostics.
func (p *Parser) XRef() *xref.Table { return p.table }

func (p *Parser) newScanner() scanner.Scanner {
	return scanner.New(p.reader, scanner.Config{Recovery: p.rec})
}
