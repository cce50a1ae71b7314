package filters

import (
	"bytes"
	"compress/lzw"
	"context"
	"io"

	tifflzw "golang.org/x/image/tiff/lzw"

	"github.com/wudi/zpdf/ir/raw"
)

type lzwDecoder struct {
	limits Limits
}

// NewLZWDecoder decodes LZWDecode streams. PDF defaults to EarlyChange 1,
// the TIFF variant where the code width grows one code early; EarlyChange 0
// selects the plain MSB-first variant.
func NewLZWDecoder(limits Limits) Decoder { return lzwDecoder{limits: limits} }

func (lzwDecoder) Name() string { return "LZWDecode" }

func (d lzwDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	var r io.ReadCloser
	if paramInt(params, "EarlyChange", 1) == 0 {
		r = lzw.NewReader(bytes.NewReader(in), lzw.MSB, 8)
	} else {
		r = tifflzw.NewReader(bytes.NewReader(in), tifflzw.MSB, 8)
	}
	defer r.Close()

	var out bytes.Buffer
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.Read(buf)
		out.Write(buf[:n])
		if d.limits.MaxDecompressedSize > 0 && int64(out.Len()) > d.limits.MaxDecompressedSize {
			return nil, ErrDecodeLimit
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			if out.Len() > 0 {
				break // keep the decoded prefix of a truncated stream
			}
			return nil, err
		}
	}
	return applyPredictor(out.Bytes(), params)
}
