package filters

import (
	"bytes"
	"context"
	"encoding/ascii85"
	"encoding/hex"

	"github.com/wudi/zpdf/ir/raw"
)

type asciiHexDecoder struct{}

// NewASCIIHexDecoder decodes ASCIIHexDecode streams. Whitespace between
// digits is ignored, '>' ends the data, and an odd trailing nibble is padded
// with zero.
func NewASCIIHexDecoder() Decoder { return asciiHexDecoder{} }

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }

func (asciiHexDecoder) Decode(_ context.Context, in []byte, _ raw.Dictionary) ([]byte, error) {
	if i := bytes.IndexByte(in, '>'); i >= 0 {
		in = in[:i]
	}
	compact := make([]byte, 0, len(in))
	for _, c := range in {
		switch c {
		case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
			continue
		}
		compact = append(compact, c)
	}
	if len(compact)%2 == 1 {
		compact = append(compact, '0')
	}
	out := make([]byte, hex.DecodedLen(len(compact)))
	n, err := hex.Decode(out, compact)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

type ascii85Decoder struct{}

// NewASCII85Decoder decodes ASCII85Decode streams, tolerating the optional
// <~ ~> frame some producers emit.
func NewASCII85Decoder() Decoder { return ascii85Decoder{} }

func (ascii85Decoder) Name() string { return "ASCII85Decode" }

func (ascii85Decoder) Decode(_ context.Context, in []byte, _ raw.Dictionary) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	trimmed = bytes.TrimSuffix(trimmed, []byte("~>"))
	out := make([]byte, ascii85.MaxEncodedLen(len(trimmed)))
	n, _, err := ascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}
