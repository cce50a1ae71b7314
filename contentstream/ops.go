// Package contentstream parses and interprets page content: the operator
// stream that paints text, images and paths. The interpreter tracks the
// graphics and text state machines and emits positioned text spans and
// image placements; painting details that do not affect extraction are
// skipped.
package contentstream

import (
	"bytes"
	"errors"
	"io"

	"github.com/wudi/zpdf/ir/raw"
	"github.com/wudi/zpdf/recovery"
	"github.com/wudi/zpdf/scanner"
)

// Operation is one operator with the operands that preceded it. Inline
// images carry their parameter dictionary in Operands[0] and the raw
// payload in Image.
type Operation struct {
	Operator string
	Operands []raw.Object
	Image    []byte
}

// OpInlineImage is the synthetic operator name for BI..ID..EI sequences.
const OpInlineImage = "BI"

// maxOperands bounds operand accumulation between operators so a missing
// operator cannot buffer unbounded garbage.
const maxOperands = 64

// Parse splits decoded content stream bytes into operations. Malformed
// tokens are reported to the recovery strategy and skipped; the parse picks
// up at the next token.
func Parse(data []byte, rec recovery.Strategy) []Operation {
	s := scanner.New(bytes.NewReader(data), scanner.Config{Recovery: rec})
	var ops []Operation
	var operands []raw.Object
	inlineParams := raw.Dict(nil)
	collectingInline := false

	flushOperator := func(name string) {
		ops = append(ops, Operation{Operator: name, Operands: operands})
		operands = nil
	}

	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			operands = nil
			continue
		}
		switch tok.Type {
		case scanner.TokenKeyword:
			switch tok.Str {
			case "BI":
				collectingInline = true
				inlineParams = raw.Dict(nil)
				operands = nil
			case "{", "}":
				// Type 4 function body delimiters; irrelevant here.
			default:
				flushOperator(tok.Str)
			}
		case scanner.TokenInlineImage:
			ops = append(ops, Operation{
				Operator: OpInlineImage,
				Operands: []raw.Object{inlineParams},
				Image:    tok.Bytes,
			})
			collectingInline = false
			operands = nil
		default:
			obj, perr := objectFromToken(s, tok)
			if perr != nil {
				operands = nil
				continue
			}
			if collectingInline {
				// Between BI and ID the stream holds key/value pairs.
				if name, ok := obj.(raw.NameObj); ok && len(operands) == 0 {
					operands = append(operands, name)
				} else if len(operands) == 1 {
					if key, ok := operands[0].(raw.NameObj); ok {
						inlineParams.Set(key.Val, obj)
					}
					operands = nil
				}
				continue
			}
			if len(operands) < maxOperands {
				operands = append(operands, obj)
			}
		}
	}
	return ops
}

// objectFromToken builds composite operands (arrays, dictionaries) by
// consuming further tokens.
func objectFromToken(s scanner.Scanner, tok scanner.Token) (raw.Object, error) {
	switch tok.Type {
	case scanner.TokenDict:
		d := raw.Dict(nil)
		for {
			t, err := s.Next()
			if err != nil {
				return nil, err
			}
			if t.Type == scanner.TokenDictEnd {
				return d, nil
			}
			if t.Type != scanner.TokenName {
				return nil, errors.New("dictionary key is not a name")
			}
			vt, err := s.Next()
			if err != nil {
				return nil, err
			}
			v, err := objectFromToken(s, vt)
			if err != nil {
				return nil, err
			}
			d.Set(t.Str, v)
		}
	case scanner.TokenArray:
		a := raw.NewArray()
		for {
			t, err := s.Next()
			if err != nil {
				return nil, err
			}
			if t.Type == scanner.TokenArrayEnd {
				return a, nil
			}
			v, err := objectFromToken(s, t)
			if err != nil {
				return nil, err
			}
			a.Items = append(a.Items, v)
		}
	case scanner.TokenName:
		return raw.NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return raw.NumberObj{I: tok.Int, IsInt: true}, nil
		}
		return raw.NumberObj{F: tok.Float}, nil
	case scanner.TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case scanner.TokenNull:
		return raw.NullObj{}, nil
	case scanner.TokenRef:
		return raw.Ref(int(tok.Int), tok.Gen), nil
	default:
		return nil, errors.New("token cannot start an operand")
	}
}

func operandFloat(obj raw.Object) float64 {
	if n, ok := obj.(raw.Number); ok {
		return n.Float()
	}
	return 0
}
