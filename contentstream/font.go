package contentstream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"unicode/utf16"

	"github.com/wudi/zpdf/ir/raw"
	"github.com/wudi/zpdf/parser"
	"github.com/wudi/zpdf/scanner"
)

// missingWidth stands in for glyphs the font's width table does not cover,
// in thousandths of an em.
const missingWidth = 500.0

// Font carries the subset of font information extraction needs: how to
// split a show string into codes, each code's advance width, and its
// Unicode mapping.
type Font struct {
	BaseFont  string
	composite bool // Type0 fonts consume two-byte codes

	firstChar int
	widths    []float64
	// Type0 widths from the W array, keyed by CID.
	cidWidths       map[int]float64
	defaultCIDWidth float64

	toUnicode map[int]string
}

// Glyph is one decoded code from a show string.
type Glyph struct {
	Code  int
	Text  string
	Width float64 // thousandths of an em
}

// Decode splits raw string bytes into glyphs using the font's code size
// and maps them through ToUnicode. Codes without a mapping fall back to
// Latin-1 for simple fonts and are dropped to an empty string for
// composite fonts.
func (f *Font) Decode(b []byte) []Glyph {
	if f == nil {
		return latin1Glyphs(b)
	}
	var out []Glyph
	if f.composite {
		for i := 0; i+1 < len(b); i += 2 {
			code := int(b[i])<<8 | int(b[i+1])
			out = append(out, Glyph{Code: code, Text: f.text(code, ""), Width: f.cidWidth(code)})
		}
		return out
	}
	for _, c := range b {
		code := int(c)
		out = append(out, Glyph{Code: code, Text: f.text(code, string(rune(c))), Width: f.simpleWidth(code)})
	}
	return out
}

func latin1Glyphs(b []byte) []Glyph {
	out := make([]Glyph, len(b))
	for i, c := range b {
		out[i] = Glyph{Code: int(c), Text: string(rune(c)), Width: missingWidth}
	}
	return out
}

func (f *Font) text(code int, fallback string) string {
	if s, ok := f.toUnicode[code]; ok {
		return s
	}
	return fallback
}

func (f *Font) simpleWidth(code int) float64 {
	idx := code - f.firstChar
	if idx >= 0 && idx < len(f.widths) {
		return f.widths[idx]
	}
	return missingWidth
}

func (f *Font) cidWidth(cid int) float64 {
	if w, ok := f.cidWidths[cid]; ok {
		return w
	}
	if f.defaultCIDWidth > 0 {
		return f.defaultCIDWidth
	}
	return missingWidth
}

// LoadFont builds a Font from a font dictionary. Unrecognized or broken
// entries degrade to defaults rather than failing: a bad font must not take
// the page's text with it.
func LoadFont(ctx context.Context, p *parser.Parser, dict raw.Dictionary) *Font {
	f := &Font{toUnicode: map[int]string{}}
	if name, ok := raw.DictName(dict, "BaseFont"); ok {
		f.BaseFont = name
	}
	subtype, _ := raw.DictName(dict, "Subtype")
	f.composite = subtype == "Type0"

	if f.composite {
		loadCIDFont(ctx, p, dict, f)
	} else {
		loadSimpleWidths(ctx, p, dict, f)
	}

	if tu, ok := dict.Get("ToUnicode"); ok {
		if resolved, err := p.Resolve(ctx, tu); err == nil {
			if stream, ok := resolved.(raw.Stream); ok {
				if data, err := p.DecodedStream(ctx, stream); err == nil {
					parseToUnicode(data, f.toUnicode)
				}
			}
		}
	}
	return f
}

func loadSimpleWidths(ctx context.Context, p *parser.Parser, dict raw.Dictionary, f *Font) {
	fc, ok := raw.DictInt(dict, "FirstChar")
	if !ok {
		return
	}
	f.firstChar = int(fc)
	wObj, ok := dict.Get("Widths")
	if !ok {
		return
	}
	wa, ok := p.ResolveArray(ctx, wObj)
	if !ok {
		return
	}
	f.widths = make([]float64, 0, len(wa.Items))
	for _, item := range wa.Items {
		resolved, err := p.Resolve(ctx, item)
		if err != nil {
			f.widths = append(f.widths, missingWidth)
			continue
		}
		if n, ok := resolved.(raw.Number); ok {
			f.widths = append(f.widths, n.Float())
		} else {
			f.widths = append(f.widths, missingWidth)
		}
	}
}

// loadCIDFont pulls widths from the descendant CIDFont's W and DW entries.
func loadCIDFont(ctx context.Context, p *parser.Parser, dict raw.Dictionary, f *Font) {
	f.cidWidths = map[int]float64{}
	f.defaultCIDWidth = 1000
	descObj, ok := dict.Get("DescendantFonts")
	if !ok {
		return
	}
	da, ok := p.ResolveArray(ctx, descObj)
	if !ok || len(da.Items) == 0 {
		return
	}
	desc, ok := p.ResolveDict(ctx, da.Items[0])
	if !ok {
		return
	}
	if dw, ok := raw.DictFloat(desc, "DW"); ok {
		f.defaultCIDWidth = dw
	}
	wObj, ok := desc.Get("W")
	if !ok {
		return
	}
	wa, ok := p.ResolveArray(ctx, wObj)
	if !ok {
		return
	}
	// W mixes two forms: "c [w1 w2 ...]" and "cFirst cLast w".
	i := 0
	for i < len(wa.Items) {
		first, ok := itemInt(ctx, p, wa.Items[i])
		if !ok {
			break
		}
		i++
		if i >= len(wa.Items) {
			break
		}
		next, err := p.Resolve(ctx, wa.Items[i])
		if err != nil {
			break
		}
		switch v := next.(type) {
		case *raw.ArrayObj:
			for j, wv := range v.Items {
				if n, ok := wv.(raw.Number); ok {
					f.cidWidths[first+j] = n.Float()
				}
			}
			i++
		case raw.NumberObj:
			last := int(v.Int())
			i++
			if i >= len(wa.Items) {
				return
			}
			w, ok := itemFloat(ctx, p, wa.Items[i])
			if !ok {
				return
			}
			i++
			for c := first; c <= last && c-first < 65536; c++ {
				f.cidWidths[c] = w
			}
		default:
			return
		}
	}
}

func itemInt(ctx context.Context, p *parser.Parser, obj raw.Object) (int, bool) {
	resolved, err := p.Resolve(ctx, obj)
	if err != nil {
		return 0, false
	}
	n, ok := resolved.(raw.Number)
	if !ok {
		return 0, false
	}
	return int(n.Int()), true
}

func itemFloat(ctx context.Context, p *parser.Parser, obj raw.Object) (float64, bool) {
	resolved, err := p.Resolve(ctx, obj)
	if err != nil {
		return 0, false
	}
	n, ok := resolved.(raw.Number)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}

// parseToUnicode reads the bfchar and bfrange sections of a ToUnicode CMap
// into dst. The CMap grammar is PostScript-flavored but the mapping
// operators tokenize cleanly with the regular scanner.
func parseToUnicode(data []byte, dst map[int]string) {
	s := scanner.New(bytes.NewReader(data), scanner.Config{})
	mode := ""
	var pending []scanner.Token
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			continue
		}
		if tok.Type == scanner.TokenKeyword {
			switch tok.Str {
			case "beginbfchar":
				mode = "bfchar"
				pending = nil
			case "endbfchar", "endbfrange":
				mode = ""
				pending = nil
			case "beginbfrange":
				mode = "bfrange"
				pending = nil
			}
			continue
		}
		if mode == "" || tok.Type != scanner.TokenString && tok.Type != scanner.TokenArray {
			continue
		}
		if tok.Type == scanner.TokenArray {
			// bfrange destination array: one string per code.
			arr, err := objectFromToken(s, tok)
			if err != nil || len(pending) != 2 {
				pending = nil
				continue
			}
			lo := bytesToCode(pending[0].Bytes)
			hi := bytesToCode(pending[1].Bytes)
			if a, ok := arr.(*raw.ArrayObj); ok {
				for j, item := range a.Items {
					if sv, ok := item.(raw.StringObj); ok && lo+j <= hi {
						dst[lo+j] = utf16BEString(sv.Bytes)
					}
				}
			}
			pending = nil
			continue
		}
		pending = append(pending, tok)
		switch mode {
		case "bfchar":
			if len(pending) == 2 {
				dst[bytesToCode(pending[0].Bytes)] = utf16BEString(pending[1].Bytes)
				pending = nil
			}
		case "bfrange":
			if len(pending) == 3 {
				lo := bytesToCode(pending[0].Bytes)
				hi := bytesToCode(pending[1].Bytes)
				base := pending[2].Bytes
				if hi-lo <= 65535 && len(base) > 0 {
					for c := lo; c <= hi; c++ {
						b := make([]byte, len(base))
						copy(b, base)
						b[len(b)-1] += byte(c - lo)
						dst[c] = utf16BEString(b)
					}
				}
				pending = nil
			}
		}
	}
}

func bytesToCode(b []byte) int {
	v := 0
	for _, c := range b {
		v = v<<8 | int(c)
	}
	return v
}

// utf16BEString decodes CMap destination bytes, which are UTF-16BE code
// units without a BOM.
func utf16BEString(b []byte) string {
	if len(b) == 1 {
		return string(rune(b[0]))
	}
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
	}
	return string(utf16.Decode(units))
}
