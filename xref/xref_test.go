package xref

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileBuilder assembles a synthetic PDF, tracking the byte offset of every
// appended piece so tables can point at real positions.
type fileBuilder struct {
	buf     bytes.Buffer
	offsets map[int]int64
}

func newFileBuilder() *fileBuilder {
	fb := &fileBuilder{offsets: make(map[int]int64)}
	fb.buf.WriteString("%PDF-1.7\n")
	return fb
}

func (fb *fileBuilder) addObject(num int, body string) {
	fb.offsets[num] = int64(fb.buf.Len())
	fmt.Fprintf(&fb.buf, "%d 0 obj\n%s\nendobj\n", num, body)
}

func (fb *fileBuilder) mark() int64 { return int64(fb.buf.Len()) }

func (fb *fileBuilder) append(s string) { fb.buf.WriteString(s) }

func (fb *fileBuilder) bytes() []byte { return fb.buf.Bytes() }

// classicTable writes an xref section covering objects [0..max] using the
// recorded offsets, then the trailer and startxref.
func (fb *fileBuilder) classicTable(max int, trailerExtra string) {
	start := fb.mark()
	fmt.Fprintf(&fb.buf, "xref\n0 %d\n", max+1)
	fb.buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= max; i++ {
		fmt.Fprintf(&fb.buf, "%010d 00000 n \n", fb.offsets[i])
	}
	fmt.Fprintf(&fb.buf, "trailer\n<< /Size %d /Root 1 0 R %s>>\n", max+1, trailerExtra)
	fmt.Fprintf(&fb.buf, "startxref\n%d\n%%%%EOF\n", start)
}

func resolve(t *testing.T, data []byte) *Table {
	t.Helper()
	r := NewResolver(Config{})
	tbl, err := r.Resolve(context.Background(), bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return tbl
}

func TestClassicTable(t *testing.T) {
	fb := newFileBuilder()
	fb.addObject(1, "<< /Type /Catalog /Pages 2 0 R >>")
	fb.addObject(2, "<< /Type /Pages /Kids [] /Count 0 >>")
	fb.classicTable(2, "")

	tbl := resolve(t, fb.bytes())
	e, ok := tbl.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, EntryInUse, e.Type)
	assert.Equal(t, fb.offsets[1], e.Offset)

	_, ok = tbl.Lookup(0)
	assert.False(t, ok, "free entry must stay absent")
	_, ok = tbl.Lookup(99)
	assert.False(t, ok)

	root, ok := tbl.Trailer().Get("Root")
	require.True(t, ok)
	assert.Equal(t, "ref", root.Type())
}

func TestIncrementalUpdateNewestWins(t *testing.T) {
	fb := newFileBuilder()
	fb.addObject(1, "<< /Type /Catalog /Pages 2 0 R >>")
	fb.addObject(2, "<< /Type /Pages /Kids [] /Count 0 >>")
	base := fb.mark()
	fb.append(fmt.Sprintf("xref\n0 3\n0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \ntrailer\n<< /Size 3 /Root 1 0 R >>\n", fb.offsets[1], fb.offsets[2]))

	// Incremental section redefining object 2.
	newOff := fb.mark()
	fb.append("2 0 obj\n<< /Type /Pages /Kids [] /Count 1 >>\nendobj\n")
	sec := fb.mark()
	fb.append(fmt.Sprintf("xref\n2 1\n%010d 00000 n \ntrailer\n<< /Size 3 /Root 1 0 R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", newOff, base, sec))

	tbl := resolve(t, fb.bytes())
	e, ok := tbl.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, newOff, e.Offset, "newest revision must shadow the old one")

	e, ok = tbl.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, fb.offsets[1], e.Offset, "untouched object resolves through Prev")
}

// buildXRefStreamSection encodes entries with W [1 2 1] and no filter.
func buildXRefStreamRows(rows [][3]int) []byte {
	var data []byte
	for _, r := range rows {
		data = append(data, byte(r[0]), byte(r[1]>>8), byte(r[1]), byte(r[2]))
	}
	return data
}

func TestXRefStream(t *testing.T) {
	fb := newFileBuilder()
	fb.addObject(1, "<< /Type /Catalog /Pages 2 0 R >>")
	fb.addObject(2, "<< /Type /Pages /Kids [] /Count 0 >>")

	rows := buildXRefStreamRows([][3]int{
		{0, 0, 65535},                // obj 0 free
		{1, int(fb.offsets[1]), 0},   // obj 1 in use
		{1, int(fb.offsets[2]), 0},   // obj 2 in use
		{2, 4, 0},                    // obj 3 compressed in stream 4, index 0
	})
	streamOff := fb.mark()
	fb.append(fmt.Sprintf("4 0 obj\n<< /Type /XRef /Size 5 /Index [0 4] /W [1 2 1] /Root 1 0 R /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(rows), rows))
	fb.append(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", streamOff))

	tbl := resolve(t, fb.bytes())
	e, ok := tbl.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, EntryInUse, e.Type)
	assert.Equal(t, fb.offsets[2], e.Offset)

	e, ok = tbl.Lookup(3)
	require.True(t, ok)
	assert.Equal(t, EntryCompressed, e.Type)
	assert.Equal(t, 4, e.StreamNum)
	assert.Equal(t, 0, e.StreamIndex)

	_, ok = tbl.Lookup(0)
	assert.False(t, ok)
}

func TestHybridXRefStm(t *testing.T) {
	fb := newFileBuilder()
	fb.addObject(1, "<< /Type /Catalog /Pages 2 0 R >>")
	fb.addObject(2, "<< /Type /Pages /Kids [] /Count 0 >>")

	// Stream section declaring a compressed object the classic table omits.
	rows := buildXRefStreamRows([][3]int{{2, 9, 1}}) // obj 5 in stream 9
	stmOff := fb.mark()
	fb.append(fmt.Sprintf("6 0 obj\n<< /Type /XRef /Size 7 /Index [5 1] /W [1 2 1] /Root 1 0 R /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(rows), rows))

	start := fb.mark()
	fb.append(fmt.Sprintf("xref\n0 3\n0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \ntrailer\n<< /Size 7 /Root 1 0 R /XRefStm %d >>\nstartxref\n%d\n%%%%EOF\n", fb.offsets[1], fb.offsets[2], stmOff, start))

	tbl := resolve(t, fb.bytes())
	e, ok := tbl.Lookup(5)
	require.True(t, ok)
	assert.Equal(t, EntryCompressed, e.Type)
	assert.Equal(t, 9, e.StreamNum)
	assert.Equal(t, 1, e.StreamIndex)
}

func TestRepairScan(t *testing.T) {
	// startxref points nowhere; objects must be found by brute scan.
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	off1 := b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")
	b.WriteString("trailer\n<< /Size 3 /Root 1 0 R >>\n")
	b.WriteString("startxref\n999999\n%%EOF\n")
	data := []byte(b.String())

	tbl := resolve(t, data)
	e, ok := tbl.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, int64(off1), e.Offset)
	_, ok = tbl.Trailer().Get("Root")
	assert.True(t, ok)
}

func TestRepairFindsCatalogWithoutTrailer(t *testing.T) {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	data := []byte(b.String())

	tbl := resolve(t, data)
	root, ok := tbl.Trailer().Get("Root")
	require.True(t, ok)
	assert.Equal(t, "ref", root.Type())
}

func TestChainCycleDetected(t *testing.T) {
	fb := newFileBuilder()
	fb.addObject(1, "<< /Type /Catalog >>")
	start := fb.mark()
	// Prev points back at this same section.
	fb.append(fmt.Sprintf("xref\n0 2\n0000000000 65535 f \n%010d 00000 n \ntrailer\n<< /Size 2 /Root 1 0 R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", fb.offsets[1], start, start))

	// The cycle makes the chain walk fail; repair still recovers.
	tbl := resolve(t, fb.bytes())
	_, ok := tbl.Lookup(1)
	assert.True(t, ok)
}
