package contentstream

import (
	"context"
	"math"
	"strings"

	"github.com/wudi/zpdf/coords"
	"github.com/wudi/zpdf/ir/raw"
	"github.com/wudi/zpdf/observability"
	"github.com/wudi/zpdf/parser"
	"github.com/wudi/zpdf/recovery"
)

// TextSpan is one show operation's worth of positioned text in page space.
type TextSpan struct {
	Text     string
	Rect     coords.Rect
	Font     string
	FontSize float64 // effective size after all transforms
}

// ImagePlacement records where an image XObject or inline image was drawn,
// plus its intrinsic pixel dimensions when the stream declares them.
type ImagePlacement struct {
	Name   string
	Rect   coords.Rect
	Width  int
	Height int
}

// graphicsState is the part of the PDF graphics state extraction cares
// about. q/Q push and pop the whole struct by value. Fill and stroke
// color and the clipping path are not tracked; no emitted span or image
// placement depends on them.
type graphicsState struct {
	ctm        coords.Matrix
	font       *Font
	fontName   string
	fontSize   float64
	charSpace  float64
	wordSpace  float64
	horizScale float64 // Tz, stored as a fraction (1.0 = 100%)
	leading    float64
	rise       float64
}

// Interpreter executes content streams for one page.
type Interpreter struct {
	p   *parser.Parser
	rec recovery.Strategy
	log observability.Logger

	spans  []TextSpan
	images []ImagePlacement

	// Font cache keyed by the owning resource dictionary and name, since
	// a nested form's /F1 need not be the page's /F1.
	fonts map[fontKey]*Font
}

type fontKey struct {
	res  raw.Dictionary
	name string
}

func NewInterpreter(p *parser.Parser, rec recovery.Strategy, log observability.Logger) *Interpreter {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Interpreter{p: p, rec: rec, log: log, fonts: map[fontKey]*Font{}}
}

// Spans returns the text spans emitted so far, in paint order.
func (in *Interpreter) Spans() []TextSpan { return in.spans }

// Images returns the image placements emitted so far.
func (in *Interpreter) Images() []ImagePlacement { return in.images }

// maxFormDepth bounds nested form XObject recursion.
const maxFormDepth = 16

// Run interprets one decoded content stream against a resource dictionary.
// baseCTM maps page space to the caller's target space; pass the identity
// for unrotated page coordinates.
func (in *Interpreter) Run(ctx context.Context, content []byte, resources raw.Dictionary, baseCTM coords.Matrix) error {
	gs := graphicsState{ctm: baseCTM, fontSize: 0, horizScale: 1}
	visited := map[raw.ObjectRef]bool{}
	return in.run(ctx, content, resources, gs, visited, 0)
}

func (in *Interpreter) run(ctx context.Context, content []byte, resources raw.Dictionary, gs graphicsState, visitedForms map[raw.ObjectRef]bool, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ops := Parse(content, in.rec)

	var stack []graphicsState
	tm := coords.Identity()  // text matrix
	tlm := coords.Identity() // text line matrix
	inText := false

	for _, op := range ops {
		switch op.Operator {
		case "q":
			stack = append(stack, gs)
		case "Q":
			if n := len(stack); n > 0 {
				gs = stack[n-1]
				stack = stack[:n-1]
			}
		case "cm":
			if m, ok := operandMatrix(op.Operands); ok {
				gs.ctm = m.Multiply(gs.ctm)
			}

		case "BT":
			inText = true
			tm = coords.Identity()
			tlm = coords.Identity()
		case "ET":
			inText = false

		case "Tf":
			if len(op.Operands) == 2 {
				if name, ok := op.Operands[0].(raw.NameObj); ok {
					gs.fontName = name.Val
					gs.font = in.lookupFont(ctx, resources, name.Val)
				}
				gs.fontSize = operandFloat(op.Operands[1])
			}
		case "Tc":
			if len(op.Operands) == 1 {
				gs.charSpace = operandFloat(op.Operands[0])
			}
		case "Tw":
			if len(op.Operands) == 1 {
				gs.wordSpace = operandFloat(op.Operands[0])
			}
		case "Tz":
			if len(op.Operands) == 1 {
				gs.horizScale = operandFloat(op.Operands[0]) / 100
			}
		case "TL":
			if len(op.Operands) == 1 {
				gs.leading = operandFloat(op.Operands[0])
			}
		case "Ts":
			if len(op.Operands) == 1 {
				gs.rise = operandFloat(op.Operands[0])
			}

		case "Td":
			if len(op.Operands) == 2 {
				tlm = coords.Translate(operandFloat(op.Operands[0]), operandFloat(op.Operands[1])).Multiply(tlm)
				tm = tlm
			}
		case "TD":
			if len(op.Operands) == 2 {
				gs.leading = -operandFloat(op.Operands[1])
				tlm = coords.Translate(operandFloat(op.Operands[0]), operandFloat(op.Operands[1])).Multiply(tlm)
				tm = tlm
			}
		case "Tm":
			if m, ok := operandMatrix(op.Operands); ok {
				tlm = m
				tm = tlm
			}
		case "T*":
			tlm = coords.Translate(0, -gs.leading).Multiply(tlm)
			tm = tlm

		case "Tj":
			if len(op.Operands) == 1 {
				if s, ok := op.Operands[0].(raw.StringObj); ok && inText {
					tm = in.showText(s.Bytes, &gs, tm)
				}
			}
		case "'":
			if len(op.Operands) == 1 {
				if s, ok := op.Operands[0].(raw.StringObj); ok && inText {
					tlm = coords.Translate(0, -gs.leading).Multiply(tlm)
					tm = in.showText(s.Bytes, &gs, tlm)
				}
			}
		case "\"":
			if len(op.Operands) == 3 {
				gs.wordSpace = operandFloat(op.Operands[0])
				gs.charSpace = operandFloat(op.Operands[1])
				if s, ok := op.Operands[2].(raw.StringObj); ok && inText {
					tlm = coords.Translate(0, -gs.leading).Multiply(tlm)
					tm = in.showText(s.Bytes, &gs, tlm)
				}
			}
		case "TJ":
			if len(op.Operands) == 1 && inText {
				if arr, ok := op.Operands[0].(*raw.ArrayObj); ok {
					tm = in.showTextArray(arr, &gs, tm)
				}
			}

		case "Do":
			if len(op.Operands) == 1 {
				if name, ok := op.Operands[0].(raw.NameObj); ok {
					in.paintXObject(ctx, resources, name.Val, gs, visitedForms, depth)
				}
			}
		case OpInlineImage:
			in.paintInlineImage(op, gs)
		}
	}
	return nil
}

// showText paints one string and returns the advanced text matrix.
func (in *Interpreter) showText(b []byte, gs *graphicsState, tm coords.Matrix) coords.Matrix {
	glyphs := gs.font.Decode(b)
	if len(glyphs) == 0 {
		return tm
	}
	var sb strings.Builder
	advance := 0.0 // text space units
	for _, g := range glyphs {
		sb.WriteString(g.Text)
		w := g.Width/1000*gs.fontSize + gs.charSpace
		if g.Code == 32 && !fontIsComposite(gs.font) {
			w += gs.wordSpace
		}
		advance += w * gs.horizScale
	}
	in.emitSpan(sb.String(), advance, gs, tm)
	return coords.Translate(advance, 0).Multiply(tm)
}

// showTextArray paints a TJ array where numbers adjust the pen position in
// thousandths of text space.
func (in *Interpreter) showTextArray(arr *raw.ArrayObj, gs *graphicsState, tm coords.Matrix) coords.Matrix {
	var sb strings.Builder
	startTM := tm
	advance := 0.0
	for _, item := range arr.Items {
		switch v := item.(type) {
		case raw.StringObj:
			for _, g := range gs.font.Decode(v.Bytes) {
				sb.WriteString(g.Text)
				w := g.Width/1000*gs.fontSize + gs.charSpace
				if g.Code == 32 && !fontIsComposite(gs.font) {
					w += gs.wordSpace
				}
				advance += w * gs.horizScale
			}
		case raw.NumberObj:
			shift := -v.Float() / 1000 * gs.fontSize * gs.horizScale
			// Large negative adjustments are inter-word gaps.
			if shift > gs.fontSize*0.2 {
				sb.WriteString(" ")
			}
			advance += shift
		}
	}
	if sb.Len() > 0 {
		in.emitSpan(sb.String(), advance, gs, startTM)
	}
	return coords.Translate(advance, 0).Multiply(tm)
}

func fontIsComposite(f *Font) bool { return f != nil && f.composite }

// emitSpan converts a painted run into page-space geometry.
func (in *Interpreter) emitSpan(text string, advance float64, gs *graphicsState, tm coords.Matrix) {
	if text == "" {
		return
	}
	trm := tm.Multiply(gs.ctm)
	// Box in text space: baseline at rise, ascender approximated at one em.
	box := coords.NewRect(0, gs.rise, advance, gs.rise+gs.fontSize)
	rect := trm.TransformRect(box)
	// Effective size: the length of the unit vertical, scaled by font size.
	size := gs.fontSize * math.Hypot(trm[2], trm[3])
	in.spans = append(in.spans, TextSpan{
		Text:     text,
		Rect:     rect,
		Font:     gs.fontName,
		FontSize: size,
	})
}

// lookupFont resolves a font resource by name, caching per run.
func (in *Interpreter) lookupFont(ctx context.Context, resources raw.Dictionary, name string) *Font {
	key := fontKey{res: resources, name: name}
	if f, ok := in.fonts[key]; ok {
		return f
	}
	var font *Font
	if resources != nil {
		if fontsObj, ok := resources.Get("Font"); ok {
			if fonts, ok := in.p.ResolveDict(ctx, fontsObj); ok {
				if fObj, ok := fonts.Get(name); ok {
					if fd, ok := in.p.ResolveDict(ctx, fObj); ok {
						font = LoadFont(ctx, in.p, fd)
					}
				}
			}
		}
	}
	in.fonts[key] = font // nil is cached too: missing stays missing
	return font
}

// paintXObject draws an image XObject or recurses into a form XObject.
func (in *Interpreter) paintXObject(ctx context.Context, resources raw.Dictionary, name string, gs graphicsState, visitedForms map[raw.ObjectRef]bool, depth int) {
	if resources == nil || depth >= maxFormDepth {
		return
	}
	xv, ok := resources.Get("XObject")
	if !ok {
		return
	}
	xobjs, ok := in.p.ResolveDict(ctx, xv)
	if !ok {
		return
	}
	entry, ok := xobjs.Get(name)
	if !ok {
		return
	}
	var entryRef raw.ObjectRef
	if ref, isRef := entry.(raw.RefObj); isRef {
		entryRef = ref.Ref()
		if visitedForms[entryRef] {
			return // self-referential form
		}
	}
	resolved, err := in.p.Resolve(ctx, entry)
	if err != nil {
		return
	}
	stream, ok := resolved.(*raw.StreamObj)
	if !ok {
		return
	}
	subtype, _ := raw.DictName(stream.Dict, "Subtype")
	switch subtype {
	case "Image":
		w, _ := raw.DictInt(stream.Dict, "Width")
		h, _ := raw.DictInt(stream.Dict, "Height")
		// Images occupy the unit square mapped through the CTM.
		rect := gs.ctm.TransformRect(coords.NewRect(0, 0, 1, 1))
		in.images = append(in.images, ImagePlacement{
			Name:   name,
			Rect:   rect,
			Width:  int(w),
			Height: int(h),
		})
	case "Form":
		data, err := in.p.DecodedStream(ctx, stream)
		if err != nil {
			in.log.Debug("form xobject stream failed to decode",
				observability.String("name", name),
				observability.Error("err", err))
			return
		}
		formGS := gs
		if mObj, ok := stream.Dict.Get("Matrix"); ok {
			if ma, ok := in.p.ResolveArray(ctx, mObj); ok && len(ma.Items) == 6 {
				var vals [6]float64
				for i, it := range ma.Items {
					vals[i] = operandFloat(it)
				}
				formGS.ctm = coords.Matrix(vals).Multiply(gs.ctm)
			}
		}
		formRes := resources
		if rObj, ok := stream.Dict.Get("Resources"); ok {
			if rd, ok := in.p.ResolveDict(ctx, rObj); ok {
				formRes = rd
			}
		}
		if entryRef != (raw.ObjectRef{}) {
			visitedForms[entryRef] = true
			defer delete(visitedForms, entryRef)
		}
		_ = in.run(ctx, data, formRes, formGS, visitedForms, depth+1)
	}
}

// paintInlineImage records a BI..EI image placement. Dimensions accept both
// the abbreviated and full key forms.
func (in *Interpreter) paintInlineImage(op Operation, gs graphicsState) {
	rect := gs.ctm.TransformRect(coords.NewRect(0, 0, 1, 1))
	placement := ImagePlacement{Name: "", Rect: rect}
	if len(op.Operands) == 1 {
		if d, ok := raw.AsDict(op.Operands[0]); ok {
			if w, ok := raw.DictInt(d, "W"); ok {
				placement.Width = int(w)
			} else if w, ok := raw.DictInt(d, "Width"); ok {
				placement.Width = int(w)
			}
			if h, ok := raw.DictInt(d, "H"); ok {
				placement.Height = int(h)
			} else if h, ok := raw.DictInt(d, "Height"); ok {
				placement.Height = int(h)
			}
		}
	}
	in.images = append(in.images, placement)
}

func operandMatrix(ops []raw.Object) (coords.Matrix, bool) {
	if len(ops) != 6 {
		return coords.Matrix{}, false
	}
	var m coords.Matrix
	for i, op := range ops {
		m[i] = operandFloat(op)
	}
	return m, true
}
