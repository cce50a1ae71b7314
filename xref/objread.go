package xref

import (
	"errors"
	"fmt"

	"github.com/wudi/zpdf/ir/raw"
	"github.com/wudi/zpdf/scanner"
)

// readObject converts the next token sequence into a raw object. It covers
// exactly what trailer dictionaries and cross-reference stream headers need;
// full document parsing lives in the parser package.
func readObject(s scanner.Scanner) (raw.Object, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	return objectFromToken(s, tok)
}

func objectFromToken(s scanner.Scanner, tok scanner.Token) (raw.Object, error) {
	switch tok.Type {
	case scanner.TokenDict:
		return readDict(s)
	case scanner.TokenArray:
		return readArray(s)
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
		return nil, fmt.Errorf("unexpected token type %v in object", tok.Type)
	}
}

func readDict(s scanner.Scanner) (*raw.DictObj, error) {
	d := raw.Dict(nil)
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenDictEnd {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, errors.New("dictionary key is not a name")
		}
		val, err := readObject(s)
		if err != nil {
			return nil, err
		}
		d.Set(tok.Str, val)
	}
}

func readArray(s scanner.Scanner) (*raw.ArrayObj, error) {
	a := raw.NewArray()
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenArrayEnd {
			return a, nil
		}
		obj, err := objectFromToken(s, tok)
		if err != nil {
			return nil, err
		}
		a.Items = append(a.Items, obj)
	}
}

// readIndirectStream reads an "N G obj <<dict>> stream ... endstream"
// sequence at the scanner's position. The Length entry must be direct,
// which the format guarantees for cross-reference streams.
func readIndirectStream(s scanner.Scanner) (*raw.StreamObj, error) {
	num, err := s.Next()
	if err != nil || num.Type != scanner.TokenNumber || !num.IsInt {
		return nil, errors.New("expected object number")
	}
	gen, err := s.Next()
	if err != nil || gen.Type != scanner.TokenNumber || !gen.IsInt {
		return nil, errors.New("expected generation number")
	}
	kw, err := s.Next()
	if err != nil || kw.Type != scanner.TokenKeyword || kw.Str != "obj" {
		return nil, errors.New("expected obj keyword")
	}
	obj, err := readObject(s)
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, errors.New("expected stream dictionary")
	}
	if length, ok := raw.DictInt(dict, "Length"); ok {
		s.SetNextStreamLength(length)
	}
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	if tok.Type != scanner.TokenStream {
		return nil, errors.New("expected stream payload")
	}
	return &raw.StreamObj{Dict: dict, Data: tok.Bytes}, nil
}
