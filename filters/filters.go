// Package filters decodes PDF stream filter chains. A stream's Filter entry
// names one or more encodings applied in order; Decode runs the matching
// decoders in sequence, each consuming the previous one's output.
//
// Compressed image codecs that carry their own container format (DCTDecode,
// JPXDecode) pass through untouched: callers get the still-encoded payload
// plus whatever the stream dictionary says about dimensions.
package filters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wudi/zpdf/ir/raw"
)

// ErrUnsupportedFilter marks a filter the pipeline recognizes but cannot
// decode. Callers typically substitute an empty payload and continue.
var ErrUnsupportedFilter = errors.New("unsupported stream filter")

// ErrDecodeLimit is returned when decoded output exceeds configured bounds.
var ErrDecodeLimit = errors.New("decode limit exceeded")

// Decoder decodes one filter's encoding.
type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params raw.Dictionary) ([]byte, error)
}

// Limits bounds decompression work on hostile input.
type Limits struct {
	MaxDecompressedSize int64
	MaxDecodeTime       time.Duration
}

// Pipeline applies filter chains using a fixed decoder set.
type Pipeline struct {
	decoders map[string]Decoder
	limits   Limits
}

// NewPipeline builds a pipeline over the given decoders.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	m := make(map[string]Decoder, len(decoders))
	for _, d := range decoders {
		m[d.Name()] = d
	}
	return &Pipeline{decoders: m, limits: limits}
}

// NewDefaultPipeline returns a pipeline with every decoder this package
// implements registered, including the pass-through image codecs.
func NewDefaultPipeline(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		NewFlateDecoder(limits),
		NewLZWDecoder(limits),
		NewASCIIHexDecoder(),
		NewASCII85Decoder(),
		NewRunLengthDecoder(limits),
		NewCCITTFaxDecoder(),
		NewPassthroughDecoder("DCTDecode"),
		NewPassthroughDecoder("JPXDecode"),
	}, limits)
}

// Decode applies filterNames in order. The parallel params slice may be
// shorter than filterNames; missing entries mean no parameters. Filters with
// no registered decoder fail with ErrUnsupportedFilter.
func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []raw.Dictionary) ([]byte, error) {
	if p.limits.MaxDecodeTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.limits.MaxDecodeTime)
		defer cancel()
	}
	data := input
	for i, name := range filterNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dec, ok := p.decoders[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
		}
		var param raw.Dictionary
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, fmt.Errorf("%s: %w", name, ErrDecodeLimit)
		}
		data = out
	}
	return data, nil
}

// paramInt reads an integer entry from possibly-nil filter parameters.
func paramInt(params raw.Dictionary, key string, def int64) int64 {
	if params == nil {
		return def
	}
	v, ok := raw.DictInt(params, key)
	if !ok {
		return def
	}
	return v
}

func paramBool(params raw.Dictionary, key string, def bool) bool {
	if params == nil {
		return def
	}
	v, ok := raw.DictBool(params, key)
	if !ok {
		return def
	}
	return v
}

type passthroughDecoder struct{ name string }

// NewPassthroughDecoder returns a decoder that emits its input unchanged.
// Used for self-contained image codecs whose payload downstream consumers
// treat as opaque.
func NewPassthroughDecoder(name string) Decoder { return passthroughDecoder{name: name} }

func (d passthroughDecoder) Name() string { return d.name }

func (d passthroughDecoder) Decode(_ context.Context, in []byte, _ raw.Dictionary) ([]byte, error) {
	return in, nil
}
