package contentstream

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/wudi/zpdf/coords"
	"github.com/wudi/zpdf/ir/raw"
	"github.com/wudi/zpdf/parser"
)

// minimalParser opens a throwaway document so direct objects can be
// resolved; the tests below feed resources and content directly.
func minimalParser(t *testing.T) *parser.Parser {
	t.Helper()
	var b bytes.Buffer
	b.WriteString("%PDF-1.7\n")
	off1 := b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	start := b.Len()
	fmt.Fprintf(&b, "xref\n0 2\n0000000000 65535 f \n%010d 00000 n \ntrailer\n<< /Size 2 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", off1, start)
	data := b.Bytes()
	p, err := parser.Open(context.Background(), bytes.NewReader(data), int64(len(data)), parser.Config{})
	if err != nil {
		t.Fatalf("parser.Open: %v", err)
	}
	return p
}

func simpleResources() raw.Dictionary {
	font := raw.Dict(map[string]raw.Object{
		"Type":     raw.NameLiteral("Font"),
		"Subtype":  raw.NameLiteral("Type1"),
		"BaseFont": raw.NameLiteral("Helvetica"),
	})
	return raw.Dict(map[string]raw.Object{
		"Font": raw.Dict(map[string]raw.Object{"F1": font}),
	})
}

func runContent(t *testing.T, content string, res raw.Dictionary) *Interpreter {
	t.Helper()
	in := NewInterpreter(minimalParser(t), nil, nil)
	if err := in.Run(context.Background(), []byte(content), res, coords.Identity()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return in
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestParseOperations(t *testing.T) {
	ops := Parse([]byte("1 0 0 1 50 60 cm BT /F1 12 Tf (Hi) Tj ET"), nil)
	want := []string{"cm", "BT", "Tf", "Tj", "ET"}
	if len(ops) != len(want) {
		t.Fatalf("got %d ops, want %d", len(ops), len(want))
	}
	for i, w := range want {
		if ops[i].Operator != w {
			t.Fatalf("op %d = %q, want %q", i, ops[i].Operator, w)
		}
	}
	if len(ops[0].Operands) != 6 {
		t.Fatalf("cm operands = %d, want 6", len(ops[0].Operands))
	}
}

func TestParseInlineImage(t *testing.T) {
	ops := Parse([]byte("q BI /W 2 /H 2 /BPC 8 ID \x01\x02\x03\x04 EI Q"), nil)
	var img *Operation
	for i := range ops {
		if ops[i].Operator == OpInlineImage {
			img = &ops[i]
		}
	}
	if img == nil {
		t.Fatal("no inline image operation")
	}
	d, _ := raw.AsDict(img.Operands[0])
	w, _ := raw.DictInt(d, "W")
	if w != 2 {
		t.Fatalf("W=%d, want 2", w)
	}
	if !bytes.Equal(img.Image, []byte{1, 2, 3, 4}) {
		t.Fatalf("payload %v", img.Image)
	}
}

func TestSimpleTextSpan(t *testing.T) {
	in := runContent(t, "BT /F1 12 Tf 100 700 Td (AB) Tj ET", simpleResources())
	spans := in.Spans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Text != "AB" {
		t.Fatalf("text %q", s.Text)
	}
	// Two glyphs at the 500/1000 fallback width and 12pt.
	if !approx(s.Rect.X0, 100) || !approx(s.Rect.Y0, 700) || !approx(s.Rect.X1, 112) || !approx(s.Rect.Y1, 712) {
		t.Fatalf("rect %+v", s.Rect)
	}
	if !approx(s.FontSize, 12) {
		t.Fatalf("size %g", s.FontSize)
	}
	if s.Font != "F1" {
		t.Fatalf("font %q", s.Font)
	}
}

func TestConsecutiveShowsAdvance(t *testing.T) {
	in := runContent(t, "BT /F1 10 Tf 0 0 Td (A) Tj (B) Tj ET", simpleResources())
	spans := in.Spans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans", len(spans))
	}
	if !approx(spans[1].Rect.X0, spans[0].Rect.X1) {
		t.Fatalf("second span must start where the first ended: %+v then %+v",
			spans[0].Rect, spans[1].Rect)
	}
}

func TestTJKerningGap(t *testing.T) {
	// -400/1000 em at 10pt is a 4pt shift, well above the space threshold.
	in := runContent(t, "BT /F1 10 Tf 0 0 Td [(A) -400 (B)] TJ ET", simpleResources())
	spans := in.Spans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans", len(spans))
	}
	if spans[0].Text != "A B" {
		t.Fatalf("text %q, want %q", spans[0].Text, "A B")
	}
	// Advance: 5 + 4 + 5.
	if !approx(spans[0].Rect.X1, 14) {
		t.Fatalf("X1 = %g, want 14", spans[0].Rect.X1)
	}
}

func TestTJSmallKerningNoGap(t *testing.T) {
	in := runContent(t, "BT /F1 10 Tf 0 0 Td [(A) -50 (B)] TJ ET", simpleResources())
	if got := in.Spans()[0].Text; got != "AB" {
		t.Fatalf("text %q, want AB", got)
	}
}

func TestTextMatrixScalesEffectiveSize(t *testing.T) {
	in := runContent(t, "BT /F1 12 Tf 2 0 0 2 0 0 Tm (X) Tj ET", simpleResources())
	if got := in.Spans()[0].FontSize; !approx(got, 24) {
		t.Fatalf("effective size %g, want 24", got)
	}
}

func TestCTMAppliesToText(t *testing.T) {
	in := runContent(t, "q 1 0 0 1 10 20 cm BT /F1 10 Tf 5 5 Td (X) Tj ET Q", simpleResources())
	s := in.Spans()[0]
	if !approx(s.Rect.X0, 15) || !approx(s.Rect.Y0, 25) {
		t.Fatalf("rect %+v, want origin (15, 25)", s.Rect)
	}
}

func TestGraphicsStateRestore(t *testing.T) {
	content := "q 2 0 0 2 0 0 cm Q BT /F1 10 Tf 0 0 Td (X) Tj ET"
	in := runContent(t, content, simpleResources())
	s := in.Spans()[0]
	if !approx(s.FontSize, 10) {
		t.Fatalf("Q must restore the CTM; size %g, want 10", s.FontSize)
	}
}

func TestLineOperators(t *testing.T) {
	// TD sets leading, T* advances a line down.
	in := runContent(t, "BT /F1 10 Tf 0 100 TD (one) Tj T* (two) Tj ET", simpleResources())
	spans := in.Spans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans", len(spans))
	}
	// TD 0 100 sets leading to -100... leading = -ty = -100, so T* moves up.
	dy := spans[1].Rect.Y0 - spans[0].Rect.Y0
	if !approx(dy, 100) {
		t.Fatalf("T* moved by %g, want 100", dy)
	}
}

func TestQuoteOperatorAdvancesLine(t *testing.T) {
	in := runContent(t, "BT /F1 10 Tf 12 TL 0 100 Td (one) Tj (two) ' ET", simpleResources())
	spans := in.Spans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans", len(spans))
	}
	dy := spans[0].Rect.Y0 - spans[1].Rect.Y0
	if !approx(dy, 12) {
		t.Fatalf("' moved down %g, want 12", dy)
	}
}

func TestWidthsRespected(t *testing.T) {
	font := raw.Dict(map[string]raw.Object{
		"Type":      raw.NameLiteral("Font"),
		"Subtype":   raw.NameLiteral("Type1"),
		"BaseFont":  raw.NameLiteral("Courier"),
		"FirstChar": raw.NumberInt(65),
		"Widths":    raw.NewArray(raw.NumberInt(600), raw.NumberInt(700)),
	})
	res := raw.Dict(map[string]raw.Object{
		"Font": raw.Dict(map[string]raw.Object{"F1": font}),
	})
	in := runContent(t, "BT /F1 10 Tf 0 0 Td (AB) Tj ET", res)
	s := in.Spans()[0]
	// 600/1000*10 + 700/1000*10 = 13.
	if !approx(s.Rect.X1, 13) {
		t.Fatalf("X1 = %g, want 13", s.Rect.X1)
	}
}

func TestToUnicodeMapping(t *testing.T) {
	cmap := `/CIDInit /ProcSet findresource begin
begincmap
1 begincodespacerange
<00> <FF>
endcodespacerange
2 beginbfchar
<41> <0394>
<42> <00480069>
endbfchar
endcmap`
	font := raw.Dict(map[string]raw.Object{
		"Type":      raw.NameLiteral("Font"),
		"Subtype":   raw.NameLiteral("Type1"),
		"BaseFont":  raw.NameLiteral("Custom"),
		"ToUnicode": raw.NewStream(raw.Dict(map[string]raw.Object{"Length": raw.NumberInt(int64(len(cmap)))}), []byte(cmap)),
	})
	res := raw.Dict(map[string]raw.Object{
		"Font": raw.Dict(map[string]raw.Object{"F1": font}),
	})
	in := runContent(t, "BT /F1 10 Tf 0 0 Td (AB) Tj ET", res)
	if got := in.Spans()[0].Text; got != "ΔHi" {
		t.Fatalf("text %q, want Δ followed by Hi", got)
	}
}

func TestBFRange(t *testing.T) {
	m := map[int]string{}
	parseToUnicode([]byte("2 beginbfrange\n<41> <43> <0061>\n<50> <51> [<0058> <0059>]\nendbfrange"), m)
	if m[0x41] != "a" || m[0x42] != "b" || m[0x43] != "c" {
		t.Fatalf("range mapping wrong: %v", m)
	}
	if m[0x50] != "X" || m[0x51] != "Y" {
		t.Fatalf("array range mapping wrong: %v", m)
	}
}

func TestImagePlacement(t *testing.T) {
	p := minimalParser(t)
	img := raw.NewStream(raw.Dict(map[string]raw.Object{
		"Type":    raw.NameLiteral("XObject"),
		"Subtype": raw.NameLiteral("Image"),
		"Width":   raw.NumberInt(640),
		"Height":  raw.NumberInt(480),
		"Length":  raw.NumberInt(0),
	}), nil)
	res := raw.Dict(map[string]raw.Object{
		"XObject": raw.Dict(map[string]raw.Object{"Im1": img}),
	})
	in := NewInterpreter(p, nil, nil)
	err := in.Run(context.Background(), []byte("q 200 0 0 100 30 40 cm /Im1 Do Q"), res, coords.Identity())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	images := in.Images()
	if len(images) != 1 {
		t.Fatalf("got %d images", len(images))
	}
	im := images[0]
	if im.Width != 640 || im.Height != 480 {
		t.Fatalf("intrinsic size %dx%d", im.Width, im.Height)
	}
	if !approx(im.Rect.X0, 30) || !approx(im.Rect.Y0, 40) || !approx(im.Rect.X1, 230) || !approx(im.Rect.Y1, 140) {
		t.Fatalf("rect %+v", im.Rect)
	}
}

func TestFormXObjectRecursion(t *testing.T) {
	p := minimalParser(t)
	inner := "BT /F1 10 Tf 0 0 Td (inner) Tj ET"
	form := raw.NewStream(raw.Dict(map[string]raw.Object{
		"Type":      raw.NameLiteral("XObject"),
		"Subtype":   raw.NameLiteral("Form"),
		"Matrix":    raw.NewArray(raw.NumberInt(1), raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(1), raw.NumberInt(50), raw.NumberInt(60)),
		"Resources": simpleResources().(*raw.DictObj),
		"Length":    raw.NumberInt(int64(len(inner))),
	}), []byte(inner))
	res := raw.Dict(map[string]raw.Object{
		"XObject": raw.Dict(map[string]raw.Object{"Fm1": form}),
	})
	in := NewInterpreter(p, nil, nil)
	if err := in.Run(context.Background(), []byte("/Fm1 Do"), res, coords.Identity()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	spans := in.Spans()
	if len(spans) != 1 || spans[0].Text != "inner" {
		t.Fatalf("spans %+v", spans)
	}
	if !approx(spans[0].Rect.X0, 50) || !approx(spans[0].Rect.Y0, 60) {
		t.Fatalf("form matrix not applied: %+v", spans[0].Rect)
	}
}

func TestMalformedOperatorsSkipped(t *testing.T) {
	// Garbage and an unknown operator must not derail the rest.
	in := runContent(t, "BT /F1 12 Tf > ] garbage 100 700 Td (ok) Tj ET", simpleResources())
	spans := in.Spans()
	if len(spans) != 1 || spans[0].Text != "ok" {
		t.Fatalf("spans %+v", spans)
	}
}
