package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wudi/zpdf/ir/raw"
	"github.com/wudi/zpdf/observability"
	"github.com/wudi/zpdf/scanner"
	"github.com/wudi/zpdf/xref"
)

// objectLoader caches parsed objects per reference. The mutex covers the
// whole load so concurrent requests for the same object parse it exactly
// once no matter how many page workers race for it.
type objectLoader struct {
	p *Parser

	mu      sync.Mutex
	cache   map[raw.ObjectRef]raw.Object
	loading map[raw.ObjectRef]bool
	objStms map[int]*objStm
}

// objStm is a decoded object stream: the byte payload plus the object
// number and offset of each member.
type objStm struct {
	data    []byte
	first   int64
	nums    []int
	offsets []int64
}

func newObjectLoader(p *Parser) *objectLoader {
	return &objectLoader{
		p:       p,
		cache:   make(map[raw.ObjectRef]raw.Object),
		loading: make(map[raw.ObjectRef]bool),
		objStms: make(map[int]*objStm),
	}
}

func (l *objectLoader) load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadLocked(ctx, ref)
}

func (l *objectLoader) loadLocked(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	if obj, ok := l.cache[ref]; ok {
		return obj, nil
	}
	if l.loading[ref] {
		return nil, fmt.Errorf("%w: self-referential object %s", ErrObjectNotFound, ref)
	}
	l.loading[ref] = true
	defer delete(l.loading, ref)

	entry, ok := l.p.table.Lookup(ref.Num)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, ref)
	}

	var obj raw.Object
	var err error
	switch entry.Type {
	case xref.EntryInUse:
		obj, err = l.parseAt(ctx, ref, entry.Offset)
	case xref.EntryCompressed:
		obj, err = l.loadCompressed(ctx, ref, entry)
	default:
		err = fmt.Errorf("%w: %s", ErrObjectNotFound, ref)
	}
	if err != nil {
		return nil, err
	}
	l.cache[ref] = obj
	return obj, nil
}

// parseAt parses the "num gen obj ... endobj" body at a file offset.
func (l *objectLoader) parseAt(ctx context.Context, ref raw.ObjectRef, offset int64) (raw.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := l.p.newScanner()
	if err := s.SeekTo(offset); err != nil {
		return nil, fmt.Errorf("%w: %s at %d", ErrObjectNotFound, ref, offset)
	}
	num, err := s.Next()
	if err != nil || num.Type != scanner.TokenNumber || !num.IsInt {
		return nil, fmt.Errorf("%w: %s has no object header", ErrObjectNotFound, ref)
	}
	if int(num.Int) != ref.Num {
		l.p.log.Debug("object header number mismatch",
			observability.Int("want", ref.Num),
			observability.Int("got", int(num.Int)))
	}
	if _, err := s.Next(); err != nil { // generation
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, ref)
	}
	kw, err := s.Next()
	if err != nil || kw.Type != scanner.TokenKeyword || kw.Str != "obj" {
		return nil, fmt.Errorf("%w: %s missing obj keyword", ErrObjectNotFound, ref)
	}
	obj, err := l.parseValue(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", ref, err)
	}
	return obj, nil
}

// parseValue reads one object, promoting a dictionary followed by a stream
// keyword into a stream object. An indirect Length is resolved before the
// payload is read so the scanner gets an exact byte count.
func (l *objectLoader) parseValue(ctx context.Context, s scanner.Scanner) (raw.Object, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	obj, err := l.valueFromToken(ctx, s, tok)
	if err != nil {
		return nil, err
	}
	dict, isDict := obj.(*raw.DictObj)
	if !isDict {
		return obj, nil
	}

	// A stream keyword may follow the dictionary. Resolve Length first so
	// the payload is read by exact byte count rather than by hunting for
	// the endstream marker through binary data.
	if length := l.declaredLength(ctx, dict); length >= 0 {
		s.SetNextStreamLength(length)
	}
	pos := s.Position()
	next, err := s.Next()
	if err != nil || next.Type != scanner.TokenStream {
		s.SetNextStreamLength(-1)
		if err == nil {
			if serr := s.SeekTo(pos); serr != nil {
				return nil, serr
			}
		}
		return dict, nil
	}
	return raw.NewStream(dict, next.Bytes), nil
}

// declaredLength resolves the stream Length entry, indirect or direct.
// Returns -1 when absent or unresolvable.
func (l *objectLoader) declaredLength(ctx context.Context, dict *raw.DictObj) int64 {
	v, ok := dict.Get("Length")
	if !ok {
		return -1
	}
	if ref, isRef := v.(raw.RefObj); isRef {
		target, err := l.loadLocked(ctx, ref.Ref())
		if err != nil {
			return -1
		}
		v = target
	}
	n, ok := v.(raw.NumberObj)
	if !ok || !n.IsInt || n.I < 0 {
		return -1
	}
	return n.I
}

func (l *objectLoader) valueFromToken(ctx context.Context, s scanner.Scanner, tok scanner.Token) (raw.Object, error) {
	switch tok.Type {
	case scanner.TokenDict:
		return l.parseDict(ctx, s)
	case scanner.TokenArray:
		return l.parseArray(ctx, s)
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
		return nil, fmt.Errorf("unexpected token type %v in object body", tok.Type)
	}
}

func (l *objectLoader) parseDict(ctx context.Context, s scanner.Scanner) (*raw.DictObj, error) {
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
		val, err := l.parseValueToken(ctx, s)
		if err != nil {
			return nil, err
		}
		d.Set(tok.Str, val)
	}
}

func (l *objectLoader) parseValueToken(ctx context.Context, s scanner.Scanner) (raw.Object, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	return l.valueFromToken(ctx, s, tok)
}

func (l *objectLoader) parseArray(ctx context.Context, s scanner.Scanner) (*raw.ArrayObj, error) {
	a := raw.NewArray()
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenArrayEnd {
			return a, nil
		}
		obj, err := l.valueFromToken(ctx, s, tok)
		if err != nil {
			return nil, err
		}
		a.Items = append(a.Items, obj)
	}
}

// loadCompressed fetches a member of an object stream, decoding the
// container at most once.
func (l *objectLoader) loadCompressed(ctx context.Context, ref raw.ObjectRef, entry xref.Entry) (raw.Object, error) {
	stm, err := l.objStm(ctx, entry.StreamNum)
	if err != nil {
		return nil, fmt.Errorf("%w: %s (container %d: %v)", ErrObjectNotFound, ref, entry.StreamNum, err)
	}
	idx := entry.StreamIndex
	if idx < 0 || idx >= len(stm.offsets) {
		return nil, fmt.Errorf("%w: %s index %d out of range", ErrObjectNotFound, ref, idx)
	}
	if stm.nums[idx] != ref.Num {
		// Trust the pairs table over the xref index.
		found := false
		for i, n := range stm.nums {
			if n == ref.Num {
				idx, found = i, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s not in object stream %d", ErrObjectNotFound, ref, entry.StreamNum)
		}
	}
	s := scanner.New(bytes.NewReader(stm.data), scanner.Config{Recovery: l.p.rec})
	if err := s.SeekTo(stm.first + stm.offsets[idx]); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, ref)
	}
	obj, err := l.parseValueToken(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("parse %s from object stream: %w", ref, err)
	}
	return obj, nil
}

// objStm loads and decodes the container stream once, memoizing the member
// offset table.
func (l *objectLoader) objStm(ctx context.Context, num int) (*objStm, error) {
	if stm, ok := l.objStms[num]; ok {
		return stm, nil
	}
	containerRef := raw.ObjectRef{Num: num, Gen: 0}
	obj, err := l.loadLocked(ctx, containerRef)
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, errors.New("object stream container is not a stream")
	}
	n, ok := raw.DictInt(stream.Dict, "N")
	if !ok || n < 0 {
		return nil, errors.New("object stream missing N")
	}
	first, ok := raw.DictInt(stream.Dict, "First")
	if !ok || first < 0 {
		return nil, errors.New("object stream missing First")
	}
	data, err := l.p.DecodedStream(ctx, stream)
	if err != nil {
		return nil, err
	}

	// Header: N pairs of "objnum offset".
	s := scanner.New(bytes.NewReader(data), scanner.Config{})
	stm := &objStm{data: data, first: first}
	for i := int64(0); i < n; i++ {
		numTok, err := s.Next()
		if err != nil || numTok.Type != scanner.TokenNumber || !numTok.IsInt {
			return nil, errors.New("object stream pair table is malformed")
		}
		offTok, err := s.Next()
		if err != nil || offTok.Type != scanner.TokenNumber || !offTok.IsInt {
			return nil, errors.New("object stream pair table is malformed")
		}
		stm.nums = append(stm.nums, int(numTok.Int))
		stm.offsets = append(stm.offsets, offTok.Int)
	}
	l.objStms[num] = stm
	return stm, nil
}

