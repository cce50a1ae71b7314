package extractor

import (
	"context"

	"github.com/wudi/zpdf/coords"
	"github.com/wudi/zpdf/document"
	"github.com/wudi/zpdf/ir/raw"
)

// FieldType classifies an interactive form field.
type FieldType int

const (
	FieldUnknown FieldType = iota
	FieldText
	FieldCheckbox
	FieldRadio
	FieldChoice
	FieldSignature
)

func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldCheckbox:
		return "checkbox"
	case FieldRadio:
		return "radio"
	case FieldChoice:
		return "choice"
	case FieldSignature:
		return "signature"
	default:
		return "unknown"
	}
}

// Button field flag bits from the Ff entry.
const (
	ffRadio      = 1 << 15
	ffPushbutton = 1 << 16
)

// FormField is one terminal field of the document's AcroForm. Name is the
// fully qualified name, parent partial names joined with dots. HasRect is
// false for fields whose widget carries no geometry.
type FormField struct {
	Name    string
	Value   string
	Type    FieldType
	Rect    coords.Rect
	HasRect bool
}

const maxFieldTreeDepth = 32

// FormFields walks the AcroForm field tree and returns every terminal
// field. Non-terminal nodes contribute their partial name and inheritable
// attributes to their descendants.
func (e *Extractor) FormFields(ctx context.Context) []FormField {
	acroObj, ok := e.doc.Catalog().Get("AcroForm")
	if !ok {
		return nil
	}
	acro, ok := e.p.ResolveDict(ctx, acroObj)
	if !ok {
		return nil
	}
	fieldsObj, ok := acro.Get("Fields")
	if !ok {
		return nil
	}
	fields, ok := e.p.ResolveArray(ctx, fieldsObj)
	if !ok {
		return nil
	}
	var out []FormField
	for _, item := range fields.Items {
		e.walkField(ctx, item, "", "", nil, 0, &out)
	}
	return out
}

func (e *Extractor) walkField(ctx context.Context, node raw.Object, parentName, inheritedFT string, inheritedV raw.Object, depth int, out *[]FormField) {
	if depth > maxFieldTreeDepth {
		return
	}
	dict, ok := e.p.ResolveDict(ctx, node)
	if !ok {
		return
	}

	name := parentName
	if partial, ok := raw.DictString(dict, "T"); ok {
		qualified := document.DecodeTextString(partial)
		if name != "" {
			name = name + "." + qualified
		} else {
			name = qualified
		}
	}
	ft := inheritedFT
	if v, ok := raw.DictName(dict, "FT"); ok {
		ft = v
	}
	value := inheritedV
	if v, ok := dict.Get("V"); ok {
		value = v
	}

	kidsObj, hasKids := dict.Get("Kids")
	if hasKids {
		if kids, ok := e.p.ResolveArray(ctx, kidsObj); ok {
			// Kids that carry their own T are child fields; kids without
			// one are widgets of this field. Either way the terminal
			// fields come out of the recursion.
			terminalWidgetsOnly := true
			for _, kid := range kids.Items {
				if kd, ok := e.p.ResolveDict(ctx, kid); ok {
					if _, named := kd.Get("T"); named {
						terminalWidgetsOnly = false
					}
				}
			}
			if !terminalWidgetsOnly {
				for _, kid := range kids.Items {
					e.walkField(ctx, kid, name, ft, value, depth+1, out)
				}
				return
			}
		}
	}

	if ft == "" {
		return
	}
	field := FormField{
		Name:  name,
		Type:  fieldTypeOf(dict, ft),
		Value: e.fieldValue(ctx, value),
	}
	if rect, ok := e.fieldRect(ctx, dict, kidsObj); ok {
		field.Rect = rect
		field.HasRect = true
	}
	*out = append(*out, field)
}

func fieldTypeOf(dict raw.Dictionary, ft string) FieldType {
	switch ft {
	case "Tx":
		return FieldText
	case "Ch":
		return FieldChoice
	case "Sig":
		return FieldSignature
	case "Btn":
		flags, _ := raw.DictInt(dict, "Ff")
		switch {
		case flags&ffPushbutton != 0:
			return FieldUnknown
		case flags&ffRadio != 0:
			return FieldRadio
		default:
			return FieldCheckbox
		}
	}
	return FieldUnknown
}

// fieldValue renders the V entry as text: strings decode via the text
// string convention, names (checkbox and radio states) use their literal.
func (e *Extractor) fieldValue(ctx context.Context, v raw.Object) string {
	if v == nil {
		return ""
	}
	resolved, err := e.p.Resolve(ctx, v)
	if err != nil {
		return ""
	}
	switch val := resolved.(type) {
	case raw.StringObj:
		return document.DecodeTextString(val.Bytes)
	case raw.NameObj:
		return val.Val
	}
	return ""
}

// fieldRect takes the field's own Rect, or the first widget kid's Rect for
// fields split from their widget annotations.
func (e *Extractor) fieldRect(ctx context.Context, dict raw.Dictionary, kids raw.Object) (coords.Rect, bool) {
	if r, ok := dict.Get("Rect"); ok {
		if dr, ok := e.rectFromObject(ctx, r); ok {
			return dr, true
		}
	}
	if kids != nil {
		if arr, ok := e.p.ResolveArray(ctx, kids); ok {
			for _, kid := range arr.Items {
				if kd, ok := e.p.ResolveDict(ctx, kid); ok {
					if r, ok := kd.Get("Rect"); ok {
						if dr, ok := e.rectFromObject(ctx, r); ok {
							return dr, true
						}
					}
				}
			}
		}
	}
	return coords.Rect{}, false
}

func (e *Extractor) rectFromObject(ctx context.Context, obj raw.Object) (coords.Rect, bool) {
	arr, ok := e.p.ResolveArray(ctx, obj)
	if !ok || len(arr.Items) < 4 {
		return coords.Rect{}, false
	}
	var v [4]float64
	for i := 0; i < 4; i++ {
		resolved, err := e.p.Resolve(ctx, arr.Items[i])
		if err != nil {
			return coords.Rect{}, false
		}
		num, ok := resolved.(raw.NumberObj)
		if !ok {
			return coords.Rect{}, false
		}
		v[i] = num.Float()
	}
	return coords.NewRect(v[0], v[1], v[2], v[3]), true
}
