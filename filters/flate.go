package filters

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"

	"github.com/wudi/zpdf/ir/raw"
)

type flateDecoder struct {
	limits Limits
}

// NewFlateDecoder decodes FlateDecode streams. Payloads are normally
// zlib-wrapped; files written by broken producers sometimes hold a raw
// deflate stream or garbage bytes before the zlib header, so decoding falls
// back accordingly.
func NewFlateDecoder(limits Limits) Decoder { return flateDecoder{limits: limits} }

func (flateDecoder) Name() string { return "FlateDecode" }

func (d flateDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	out, err := d.inflate(ctx, in)
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, params)
}

func (d flateDecoder) inflate(ctx context.Context, in []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err == nil {
		defer zr.Close()
		out, err := d.readAll(ctx, zr)
		if errors.Is(err, ErrDecodeLimit) {
			return nil, err
		}
		if err == nil || len(out) > 0 {
			// Truncated streams still yield their prefix.
			return out, nil
		}
	}
	fr := flate.NewReader(bytes.NewReader(in))
	defer fr.Close()
	out, err := d.readAll(ctx, fr)
	if errors.Is(err, ErrDecodeLimit) {
		return nil, err
	}
	if err != nil && len(out) == 0 {
		return nil, err
	}
	return out, nil
}

func (d flateDecoder) readAll(ctx context.Context, r io.Reader) ([]byte, error) {
	var out bytes.Buffer
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return out.Bytes(), err
		}
		n, err := r.Read(buf)
		out.Write(buf[:n])
		if d.limits.MaxDecompressedSize > 0 && int64(out.Len()) > d.limits.MaxDecompressedSize {
			return out.Bytes(), ErrDecodeLimit
		}
		if err == io.EOF {
			return out.Bytes(), nil
		}
		if err != nil {
			return out.Bytes(), err
		}
	}
}
