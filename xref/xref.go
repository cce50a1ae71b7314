// Package xref locates PDF objects by parsing the cross-reference
// information at the end of the file: classic xref tables, cross-reference
// streams, and the hybrid XRefStm form. Incremental-update chains are walked
// through Prev links with newest-wins merging, so an object updated by a
// later revision resolves to its newest definition.
package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/wudi/zpdf/filters"
	"github.com/wudi/zpdf/ir/raw"
	"github.com/wudi/zpdf/recovery"
	"github.com/wudi/zpdf/scanner"
)

// ErrNoXRef means no cross-reference information could be located, even by
// the repair scan.
var ErrNoXRef = errors.New("no cross-reference table found")

type EntryType int

const (
	// EntryInUse locates an object at a byte offset in the file.
	EntryInUse EntryType = iota
	// EntryCompressed locates an object inside an object stream.
	EntryCompressed
)

// Entry resolves one object number. For EntryInUse, Offset and Gen are set;
// for EntryCompressed, StreamNum and StreamIndex are set and Gen is zero.
type Entry struct {
	Type        EntryType
	Offset      int64
	Gen         int
	StreamNum   int
	StreamIndex int
}

// Table maps object numbers to entries, merged across all revisions.
// Free objects are simply absent; a lookup miss means the reference is
// dangling and resolves to null.
type Table struct {
	entries map[int]Entry
	trailer *raw.DictObj
}

func (t *Table) Lookup(objNum int) (Entry, bool) {
	e, ok := t.entries[objNum]
	return e, ok
}

// Trailer returns the merged trailer dictionary; keys from newer revisions
// shadow older ones.
func (t *Table) Trailer() raw.Dictionary { return t.trailer }

// Objects returns the known object numbers in ascending order.
func (t *Table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func (t *Table) Len() int { return len(t.entries) }

// addEntry records an entry unless a newer revision already defined the
// object. Sections are visited newest first, so first write wins.
func (t *Table) addEntry(num int, e Entry) {
	if _, exists := t.entries[num]; !exists {
		t.entries[num] = e
	}
}

func (t *Table) mergeTrailer(d raw.Dictionary) {
	for _, k := range d.Keys() {
		if _, exists := t.trailer.Get(k); !exists {
			v, _ := d.Get(k)
			t.trailer.Set(k, v)
		}
	}
}

type Config struct {
	// MaxSections caps how many xref sections the Prev chain may visit.
	MaxSections int
	Recovery    recovery.Strategy
	Filters     *filters.Pipeline
}

type Resolver struct {
	cfg Config
}

func NewResolver(cfg Config) *Resolver {
	if cfg.MaxSections <= 0 {
		cfg.MaxSections = 64
	}
	if cfg.Filters == nil {
		cfg.Filters = filters.NewDefaultPipeline(filters.Limits{})
	}
	return &Resolver{cfg: cfg}
}

// Resolve builds the merged table for a file of the given size. When the
// startxref pointer or the section chain is broken, it falls back to a
// full-file repair scan.
func (r *Resolver) Resolve(ctx context.Context, rd io.ReaderAt, size int64) (*Table, error) {
	t := &Table{entries: make(map[int]Entry), trailer: raw.Dict(nil)}

	offset, err := findStartXRef(rd, size)
	if err == nil {
		err = r.walkChain(ctx, rd, size, t, offset)
	}
	if err == nil && t.Len() > 0 {
		return t, nil
	}

	cause := err
	if cause == nil {
		cause = ErrNoXRef
	}
	if r.cfg.Recovery != nil {
		if r.cfg.Recovery.OnError(cause, recovery.Location{Component: "xref"}) == recovery.ActionFail {
			return nil, cause
		}
	}

	repaired := &Table{entries: make(map[int]Entry), trailer: raw.Dict(nil)}
	if rerr := repairScan(ctx, rd, repaired); rerr != nil {
		if err != nil {
			return nil, fmt.Errorf("%w (repair also failed: %v)", err, rerr)
		}
		return nil, rerr
	}
	return repaired, nil
}

// walkChain parses sections newest to oldest following Prev, plus the
// hybrid XRefStm pointer before each Prev hop.
func (r *Resolver) walkChain(ctx context.Context, rd io.ReaderAt, size int64, t *Table, offset int64) error {
	visited := make(map[int64]bool)
	sections := 0
	for offset >= 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if visited[offset] {
			return errors.New("cross-reference chain contains a cycle")
		}
		visited[offset] = true
		sections++
		if sections > r.cfg.MaxSections {
			return errors.New("too many cross-reference sections")
		}
		if offset >= size {
			return fmt.Errorf("cross-reference offset %d beyond end of file", offset)
		}

		trailer, err := r.parseSection(ctx, rd, t, offset)
		if err != nil {
			return err
		}
		t.mergeTrailer(trailer)

		// Hybrid files: XRefStm entries carry the compressed objects the
		// classic table cannot express. Newer than Prev, older than this
		// section's own entries.
		if xs, ok := raw.DictInt(trailer, "XRefStm"); ok && !visited[xs] {
			visited[xs] = true
			if st, err := r.parseStreamSection(ctx, rd, t, xs); err == nil {
				t.mergeTrailer(st)
			}
		}

		prev, ok := raw.DictInt(trailer, "Prev")
		if !ok {
			return nil
		}
		offset = prev
	}
	return nil
}

// parseSection parses the section at offset, classic or stream form, and
// returns its trailer dictionary.
func (r *Resolver) parseSection(ctx context.Context, rd io.ReaderAt, t *Table, offset int64) (raw.Dictionary, error) {
	s := scanner.New(rd, scanner.Config{Recovery: r.cfg.Recovery})
	if err := s.SeekTo(offset); err != nil {
		return nil, err
	}
	tok, err := s.Next()
	if err != nil {
		return nil, fmt.Errorf("read section at %d: %w", offset, err)
	}
	if tok.Type == scanner.TokenKeyword && tok.Str == "xref" {
		return parseClassicSection(s, t)
	}
	// Otherwise this must be a cross-reference stream object.
	return r.parseStreamSection(ctx, rd, t, offset)
}

// parseClassicSection reads subsections of fixed-width entries after the
// xref keyword, then the trailer dictionary.
func parseClassicSection(s scanner.Scanner, t *Table) (raw.Dictionary, error) {
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("read xref subsection: %w", err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			obj, err := readObject(s)
			if err != nil {
				return nil, fmt.Errorf("parse trailer: %w", err)
			}
			d, ok := raw.AsDict(obj)
			if !ok {
				return nil, errors.New("trailer is not a dictionary")
			}
			return d, nil
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			return nil, fmt.Errorf("expected subsection header, got %v", tok.Type)
		}
		start := int(tok.Int)
		cnt, err := s.Next()
		if err != nil || cnt.Type != scanner.TokenNumber || !cnt.IsInt {
			return nil, errors.New("invalid subsection count")
		}
		for i := 0; i < int(cnt.Int); i++ {
			off, err := s.Next()
			if err != nil || off.Type != scanner.TokenNumber {
				return nil, errors.New("invalid xref entry offset")
			}
			gen, err := s.Next()
			if err != nil || gen.Type != scanner.TokenNumber {
				return nil, errors.New("invalid xref entry generation")
			}
			kind, err := s.Next()
			if err != nil || kind.Type != scanner.TokenKeyword {
				return nil, errors.New("invalid xref entry type")
			}
			switch kind.Str {
			case "n":
				t.addEntry(start+i, Entry{Type: EntryInUse, Offset: off.Int, Gen: int(gen.Int)})
			case "f":
				// Free objects stay absent so dangling refs resolve to null.
			default:
				return nil, fmt.Errorf("invalid xref entry type %q", kind.Str)
			}
		}
	}
}

// parseStreamSection parses a cross-reference stream object at offset and
// folds its entries into t.
func (r *Resolver) parseStreamSection(ctx context.Context, rd io.ReaderAt, t *Table, offset int64) (raw.Dictionary, error) {
	s := scanner.New(rd, scanner.Config{Recovery: r.cfg.Recovery})
	if err := s.SeekTo(offset); err != nil {
		return nil, err
	}
	stream, err := readIndirectStream(s)
	if err != nil {
		return nil, fmt.Errorf("parse xref stream at %d: %w", offset, err)
	}
	dict := stream.Dict

	data, err := r.decodeStreamData(ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("decode xref stream: %w", err)
	}

	widths, err := fieldWidths(dict)
	if err != nil {
		return nil, err
	}
	rowLen := widths[0] + widths[1] + widths[2]
	if rowLen == 0 {
		return nil, errors.New("xref stream W widths are all zero")
	}

	index, err := indexPairs(dict)
	if err != nil {
		return nil, err
	}

	pos := 0
	for p := 0; p+1 < len(index); p += 2 {
		start, count := index[p], index[p+1]
		for i := 0; i < count; i++ {
			if pos+rowLen > len(data) {
				return dict, nil // truncated stream; keep what we decoded
			}
			f1 := readField(data[pos:pos+widths[0]], 1) // type defaults to 1
			f2 := readField(data[pos+widths[0]:pos+widths[0]+widths[1]], 0)
			f3 := readField(data[pos+widths[0]+widths[1]:pos+rowLen], 0)
			pos += rowLen
			switch f1 {
			case 0:
				// free
			case 1:
				t.addEntry(start+i, Entry{Type: EntryInUse, Offset: f2, Gen: int(f3)})
			case 2:
				t.addEntry(start+i, Entry{Type: EntryCompressed, StreamNum: int(f2), StreamIndex: int(f3)})
			}
		}
	}
	return dict, nil
}

func (r *Resolver) decodeStreamData(ctx context.Context, stream *raw.StreamObj) ([]byte, error) {
	names, params := filterChain(stream.Dict)
	if len(names) == 0 {
		return stream.Data, nil
	}
	return r.cfg.Filters.Decode(ctx, stream.Data, names, params)
}

// filterChain extracts Filter/DecodeParms as parallel slices, accepting
// both the single-name and array forms.
func filterChain(dict raw.Dictionary) ([]string, []raw.Dictionary) {
	var names []string
	var params []raw.Dictionary
	fv, _ := dict.Get("Filter")
	pv, _ := dict.Get("DecodeParms")
	switch f := fv.(type) {
	case raw.NameObj:
		names = []string{f.Val}
		if pd, ok := raw.AsDict(pv); ok {
			params = []raw.Dictionary{pd}
		}
	case *raw.ArrayObj:
		pa, _ := pv.(*raw.ArrayObj)
		for i, item := range f.Items {
			n, ok := item.(raw.NameObj)
			if !ok {
				continue
			}
			names = append(names, n.Val)
			var pd raw.Dictionary
			if pa != nil && i < len(pa.Items) {
				pd, _ = raw.AsDict(pa.Items[i])
			}
			params = append(params, pd)
		}
	}
	return names, params
}

func fieldWidths(dict raw.Dictionary) ([3]int, error) {
	var widths [3]int
	wv, ok := dict.Get("W")
	if !ok {
		return widths, errors.New("xref stream missing W")
	}
	wa, ok := wv.(*raw.ArrayObj)
	if !ok || len(wa.Items) != 3 {
		return widths, errors.New("xref stream W is not a three-element array")
	}
	for i, item := range wa.Items {
		n, ok := item.(raw.NumberObj)
		if !ok || !n.IsInt || n.I < 0 || n.I > 8 {
			return widths, errors.New("xref stream W has invalid width")
		}
		widths[i] = int(n.I)
	}
	return widths, nil
}

func indexPairs(dict raw.Dictionary) ([]int, error) {
	if iv, ok := dict.Get("Index"); ok {
		ia, ok := iv.(*raw.ArrayObj)
		if !ok || len(ia.Items)%2 != 0 {
			return nil, errors.New("xref stream Index is malformed")
		}
		out := make([]int, 0, len(ia.Items))
		for _, item := range ia.Items {
			n, ok := item.(raw.NumberObj)
			if !ok || !n.IsInt {
				return nil, errors.New("xref stream Index is malformed")
			}
			out = append(out, int(n.I))
		}
		return out, nil
	}
	size, ok := raw.DictInt(dict, "Size")
	if !ok {
		return nil, errors.New("xref stream missing Size")
	}
	return []int{0, int(size)}, nil
}

// readField decodes a big-endian field; zero width yields the default.
func readField(b []byte, def int64) int64 {
	if len(b) == 0 {
		return def
	}
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// findStartXRef locates the startxref pointer in the file tail.
func findStartXRef(rd io.ReaderAt, size int64) (int64, error) {
	const tailLen = 2048
	start := size - tailLen
	if start < 0 {
		start = 0
	}
	tail := make([]byte, size-start)
	n, err := rd.ReadAt(tail, start)
	if err != nil && err != io.EOF {
		return 0, err
	}
	tail = tail[:n]

	idx := bytes.LastIndex(tail, []byte("startxref"))
	if idx < 0 {
		return 0, errors.New("startxref not found")
	}
	rest := tail[idx+len("startxref"):]
	fields := bytes.Fields(rest)
	if len(fields) == 0 {
		return 0, errors.New("startxref has no offset")
	}
	off, err := strconv.ParseInt(string(fields[0]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse startxref offset: %w", err)
	}
	if off < 0 || off >= size {
		return 0, fmt.Errorf("startxref offset %d out of range", off)
	}
	return off, nil
}
