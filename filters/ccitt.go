package filters

import (
	"bytes"
	"context"
	"io"

	"golang.org/x/image/ccitt"

	"github.com/wudi/zpdf/ir/raw"
)

type ccittFaxDecoder struct{}

// NewCCITTFaxDecoder decodes CCITTFaxDecode streams. The K parameter picks
// the coding scheme: negative is Group 4, zero or positive is Group 3.
func NewCCITTFaxDecoder() Decoder { return ccittFaxDecoder{} }

func (ccittFaxDecoder) Name() string { return "CCITTFaxDecode" }

func (ccittFaxDecoder) Decode(_ context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	k := paramInt(params, "K", 0)
	columns := int(paramInt(params, "Columns", 1728))
	rows := int(paramInt(params, "Rows", 0))
	blackIs1 := paramBool(params, "BlackIs1", false)
	byteAlign := paramBool(params, "EncodedByteAlign", false)

	sf := ccitt.Group3
	if k < 0 {
		sf = ccitt.Group4
	}
	opts := &ccitt.Options{Invert: blackIs1, Align: byteAlign}
	r := ccitt.NewReader(bytes.NewReader(in), ccitt.MSB, sf, columns, rows, opts)
	out, err := io.ReadAll(r)
	if err != nil && len(out) == 0 {
		return nil, err
	}
	return out, nil
}
