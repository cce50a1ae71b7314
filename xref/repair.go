package xref

import (
	"context"
	"errors"
	"io"

	"github.com/wudi/zpdf/ir/raw"
	"github.com/wudi/zpdf/scanner"
)

// repairScan rebuilds the table by walking the whole file for
// "num gen obj" patterns, taking the last definition of each object so
// incremental updates still win. Trailer dictionaries encountered along the
// way are merged oldest to newest.
func repairScan(ctx context.Context, rd io.ReaderAt, t *Table) error {
	s := scanner.New(rd, scanner.Config{})
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue // resynchronize on the next token
		}
		switch {
		case tok.Type == scanner.TokenNumber && tok.IsInt:
			scanCandidate(s, t, tok)
		case tok.Type == scanner.TokenKeyword && tok.Str == "trailer":
			if obj, err := readObject(s); err == nil {
				if d, ok := raw.AsDict(obj); ok {
					// Later trailers are newer; let their keys shadow.
					for _, k := range d.Keys() {
						v, _ := d.Get(k)
						t.trailer.Set(k, v)
					}
				}
			}
		case tok.Type == scanner.TokenKeyword && tok.Str == "obj":
			// Header consumed out of phase; the entry was already
			// recorded or the pattern was broken. Either way move on.
		}
	}
	if t.Len() == 0 {
		return ErrNoXRef
	}
	if _, ok := t.trailer.Get("Root"); !ok {
		if err := findRootByScan(ctx, rd, t); err != nil {
			return err
		}
	}
	return nil
}

// scanCandidate checks whether tok starts a "num gen obj" header and records
// it. On mismatch the scanner rewinds so no candidate header is skipped.
func scanCandidate(s scanner.Scanner, t *Table, tok scanner.Token) {
	genTok, err := s.Next()
	if err != nil || genTok.Type != scanner.TokenNumber || !genTok.IsInt {
		return
	}
	objTok, err := s.Next()
	if err != nil {
		return
	}
	if objTok.Type == scanner.TokenKeyword && objTok.Str == "obj" {
		// Newest definition wins, so overwrite unconditionally.
		t.entries[int(tok.Int)] = Entry{Type: EntryInUse, Offset: tok.Pos, Gen: int(genTok.Int)}
		return
	}
	// genTok may itself start a header ("5 12 0 obj" seen from 5).
	_ = s.SeekTo(genTok.Pos)
}

// findRootByScan hunts for a catalog object when no trailer named one.
func findRootByScan(ctx context.Context, rd io.ReaderAt, t *Table) error {
	for _, num := range t.Objects() {
		if err := ctx.Err(); err != nil {
			return err
		}
		e := t.entries[num]
		s := scanner.New(rd, scanner.Config{})
		if s.SeekTo(e.Offset) != nil {
			continue
		}
		// Skip the "num gen obj" header tokens.
		skipped := false
		for i := 0; i < 3; i++ {
			if _, err := s.Next(); err != nil {
				skipped = true
				break
			}
		}
		if skipped {
			continue
		}
		obj, err := readObject(s)
		if err != nil {
			continue
		}
		if d, ok := raw.AsDict(obj); ok {
			if typ, _ := raw.DictName(d, "Type"); typ == "Catalog" {
				t.trailer.Set("Root", raw.Ref(num, e.Gen))
				return nil
			}
		}
	}
	return errors.New("repair found no document catalog")
}
