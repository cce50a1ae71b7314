package filters

import (
	"context"
	"errors"

	"github.com/wudi/zpdf/ir/raw"
)

type runLengthDecoder struct {
	limits Limits
}

// NewRunLengthDecoder decodes RunLengthDecode streams: a length byte below
// 128 copies that many plus one literal bytes, above 128 repeats the next
// byte 257 minus length times, and 128 ends the data.
func NewRunLengthDecoder(limits Limits) Decoder { return runLengthDecoder{limits: limits} }

func (runLengthDecoder) Name() string { return "RunLengthDecode" }

func (d runLengthDecoder) Decode(_ context.Context, in []byte, _ raw.Dictionary) ([]byte, error) {
	var out []byte
	i := 0
	for i < len(in) {
		l := in[i]
		i++
		switch {
		case l == 128:
			return out, nil
		case l < 128:
			n := int(l) + 1
			if i+n > len(in) {
				return nil, errors.New("truncated literal run")
			}
			out = append(out, in[i:i+n]...)
			i += n
		default:
			if i >= len(in) {
				return nil, errors.New("truncated repeat run")
			}
			n := 257 - int(l)
			for k := 0; k < n; k++ {
				out = append(out, in[i])
			}
			i++
		}
		if d.limits.MaxDecompressedSize > 0 && int64(len(out)) > d.limits.MaxDecompressedSize {
			return nil, ErrDecodeLimit
		}
	}
	// Missing EOD marker; accept what decoded.
	return out, nil
}
