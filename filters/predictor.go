package filters

import (
	"errors"

	"github.com/wudi/zpdf/ir/raw"
)

// applyPredictor undoes the row predictor named in DecodeParms. Predictor 1
// (or absent parameters) is a no-op, 2 is TIFF horizontal differencing, and
// 10 through 15 are the PNG filters applied per row with a leading filter
// type byte.
func applyPredictor(data []byte, params raw.Dictionary) ([]byte, error) {
	predictor := paramInt(params, "Predictor", 1)
	if predictor <= 1 {
		return data, nil
	}
	colors := int(paramInt(params, "Colors", 1))
	bpc := int(paramInt(params, "BitsPerComponent", 8))
	columns := int(paramInt(params, "Columns", 1))
	if colors < 1 || bpc < 1 || columns < 1 {
		return nil, errors.New("invalid predictor parameters")
	}
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8

	if predictor == 2 {
		return applyTIFFPredictor(data, colors, bpc, columns)
	}
	if predictor >= 10 && predictor <= 15 {
		return applyPNGPredictor(data, bpp, rowLen)
	}
	return nil, errors.New("unknown predictor value")
}

func applyTIFFPredictor(data []byte, colors, bpc, columns int) ([]byte, error) {
	if bpc != 8 {
		// Sub-byte TIFF differencing is vanishingly rare in the wild.
		return nil, errors.New("TIFF predictor requires 8 bits per component")
	}
	rowLen := colors * columns
	if rowLen == 0 || len(data)%rowLen != 0 {
		return nil, errors.New("data length not a multiple of row size")
	}
	out := make([]byte, len(data))
	copy(out, data)
	for row := 0; row < len(out); row += rowLen {
		for i := colors; i < rowLen; i++ {
			out[row+i] += out[row+i-colors]
		}
	}
	return out, nil
}

func applyPNGPredictor(data []byte, bpp, rowLen int) ([]byte, error) {
	stride := rowLen + 1 // filter type byte leads each row
	if len(data)%stride != 0 {
		return nil, errors.New("data length not a multiple of row size")
	}
	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		ft := data[r*stride]
		copy(cur, data[r*stride+1:(r+1)*stride])
		switch ft {
		case 0: // None
		case 1: // Sub
			for i := bpp; i < rowLen; i++ {
				cur[i] += cur[i-bpp]
			}
		case 2: // Up
			for i := 0; i < rowLen; i++ {
				cur[i] += prev[i]
			}
		case 3: // Average
			for i := 0; i < rowLen; i++ {
				var left byte
				if i >= bpp {
					left = cur[i-bpp]
				}
				cur[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= bpp {
					left = cur[i-bpp]
					upLeft = prev[i-bpp]
				}
				cur[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, errors.New("invalid PNG filter type byte")
		}
		out = append(out, cur...)
		prev, cur = cur, prev
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
