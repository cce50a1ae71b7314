package parser

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"testing"

	"github.com/wudi/zpdf/ir/raw"
)

// docBuilder assembles a synthetic PDF with a classic xref table.
type docBuilder struct {
	buf     bytes.Buffer
	offsets map[int]int64
	maxObj  int
}

func newDocBuilder() *docBuilder {
	db := &docBuilder{offsets: make(map[int]int64)}
	db.buf.WriteString("%PDF-1.7\n")
	return db
}

func (db *docBuilder) add(num int, body string) *docBuilder {
	db.offsets[num] = int64(db.buf.Len())
	fmt.Fprintf(&db.buf, "%d 0 obj\n%s\nendobj\n", num, body)
	if num > db.maxObj {
		db.maxObj = num
	}
	return db
}

func (db *docBuilder) addStream(num int, dict string, data []byte) *docBuilder {
	db.offsets[num] = int64(db.buf.Len())
	fmt.Fprintf(&db.buf, "%d 0 obj\n%s\nstream\n", num, dict)
	db.buf.Write(data)
	db.buf.WriteString("\nendstream\nendobj\n")
	if num > db.maxObj {
		db.maxObj = num
	}
	return db
}

func (db *docBuilder) build(trailerExtra string) []byte {
	start := db.buf.Len()
	fmt.Fprintf(&db.buf, "xref\n0 %d\n", db.maxObj+1)
	db.buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= db.maxObj; i++ {
		off, ok := db.offsets[i]
		if !ok {
			db.buf.WriteString("0000000000 65535 f \n")
			continue
		}
		fmt.Fprintf(&db.buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&db.buf, "trailer\n<< /Size %d /Root 1 0 R %s>>\n", db.maxObj+1, trailerExtra)
	fmt.Fprintf(&db.buf, "startxref\n%d\n%%%%EOF\n", start)
	return db.buf.Bytes()
}

func openParser(t *testing.T, data []byte) *Parser {
	t.Helper()
	p, err := Open(context.Background(), bytes.NewReader(data), int64(len(data)), Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return p
}

func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("compress close: %v", err)
	}
	return buf.Bytes()
}

func TestGetAndResolve(t *testing.T) {
	data := newDocBuilder().
		add(1, "<< /Type /Catalog /Pages 2 0 R >>").
		add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>").
		add(3, "<< /Type /Page /Parent 2 0 R >>").
		build("")
	p := openParser(t, data)
	ctx := context.Background()

	root, _ := p.Trailer().Get("Root")
	cat, err := p.Resolve(ctx, root)
	if err != nil {
		t.Fatalf("Resolve catalog: %v", err)
	}
	d, ok := raw.AsDict(cat)
	if !ok {
		t.Fatalf("catalog is %T, want dict", cat)
	}
	typ, _ := raw.DictName(d, "Type")
	if typ != "Catalog" {
		t.Fatalf("Type=%q, want Catalog", typ)
	}

	// Second Get must come from cache and be the identical object.
	again, err := p.Get(ctx, raw.ObjectRef{Num: 1})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again != cat {
		t.Fatal("cache returned a different instance")
	}
}

func TestResolveDanglingReferenceYieldsNull(t *testing.T) {
	data := newDocBuilder().
		add(1, "<< /Type /Catalog /Pages 99 0 R >>").
		build("")
	p := openParser(t, data)

	pagesRef, _ := p.Trailer().Get("Root")
	cat, _ := p.Resolve(context.Background(), pagesRef)
	d, _ := raw.AsDict(cat)
	pages, _ := d.Get("Pages")
	got, err := p.Resolve(context.Background(), pages)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := got.(raw.NullObj); !ok {
		t.Fatalf("dangling reference resolved to %T, want null", got)
	}
}

func TestStreamWithIndirectLength(t *testing.T) {
	payload := []byte("BT /F1 12 Tf (Hi) Tj ET")
	data := newDocBuilder().
		add(1, "<< /Type /Catalog >>").
		addStream(2, "<< /Length 3 0 R >>", payload).
		add(3, fmt.Sprintf("%d", len(payload))).
		build("")
	p := openParser(t, data)

	obj, err := p.Get(context.Background(), raw.ObjectRef{Num: 2})
	if err != nil {
		t.Fatalf("Get stream: %v", err)
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		t.Fatalf("got %T, want stream", obj)
	}
	if !bytes.Equal(st.Data, payload) {
		t.Fatalf("payload %q, want %q", st.Data, payload)
	}
}

func TestDecodedStreamFlate(t *testing.T) {
	plain := bytes.Repeat([]byte("content "), 50)
	enc := compress(t, plain)
	data := newDocBuilder().
		add(1, "<< /Type /Catalog >>").
		addStream(2, fmt.Sprintf("<< /Length %d /Filter /FlateDecode >>", len(enc)), enc).
		build("")
	p := openParser(t, data)

	obj, err := p.Get(context.Background(), raw.ObjectRef{Num: 2})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, err := p.DecodedStream(context.Background(), obj.(*raw.StreamObj))
	if err != nil {
		t.Fatalf("DecodedStream: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("decoded %d bytes, want %d", len(got), len(plain))
	}
}

func TestObjectStreamMember(t *testing.T) {
	// Object stream holding objects 4 and 5.
	inner := "<< /Type /Page >> << /Answer 42 >>"
	header := "4 0 5 18 "
	stmData := compress(t, []byte(header+inner))

	db := newDocBuilder().
		add(1, "<< /Type /Catalog >>").
		addStream(2, fmt.Sprintf("<< /Type /ObjStm /N 2 /First %d /Length %d /Filter /FlateDecode >>", len(header), len(stmData)), stmData)
	// Hand-build an xref stream so objects 4 and 5 get compressed entries.
	var rows []byte
	addRow := func(typ, f2, f3 int) {
		rows = append(rows, byte(typ), byte(f2>>8), byte(f2), byte(f3))
	}
	addRow(0, 0, 65535)                 // 0 free
	addRow(1, int(db.offsets[1]), 0)    // 1
	addRow(1, int(db.offsets[2]), 0)    // 2
	addRow(0, 0, 0)                     // 3 free
	addRow(2, 2, 0)                     // 4 in stream 2, index 0
	addRow(2, 2, 1)                     // 5 in stream 2, index 1
	xoff := db.buf.Len()
	fmt.Fprintf(&db.buf, "6 0 obj\n<< /Type /XRef /Size 7 /Index [0 6] /W [1 2 1] /Root 1 0 R /Length %d >>\nstream\n", len(rows))
	db.buf.Write(rows)
	db.buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&db.buf, "startxref\n%d\n%%%%EOF\n", xoff)

	p := openParser(t, db.buf.Bytes())
	ctx := context.Background()

	obj, err := p.Get(ctx, raw.ObjectRef{Num: 5})
	if err != nil {
		t.Fatalf("Get compressed object: %v", err)
	}
	d, ok := raw.AsDict(obj)
	if !ok {
		t.Fatalf("got %T, want dict", obj)
	}
	answer, _ := raw.DictInt(d, "Answer")
	if answer != 42 {
		t.Fatalf("Answer=%d, want 42", answer)
	}

	obj, err = p.Get(ctx, raw.ObjectRef{Num: 4})
	if err != nil {
		t.Fatalf("Get first member: %v", err)
	}
	d, _ = raw.AsDict(obj)
	typ, _ := raw.DictName(d, "Type")
	if typ != "Page" {
		t.Fatalf("Type=%q, want Page", typ)
	}
}

func TestConcurrentGets(t *testing.T) {
	data := newDocBuilder().
		add(1, "<< /Type /Catalog /Pages 2 0 R >>").
		add(2, "<< /Type /Pages /Kids [] /Count 0 >>").
		build("")
	p := openParser(t, data)

	done := make(chan error, 16)
	for i := 0; i < 16; i++ {
		go func() {
			_, err := p.Get(context.Background(), raw.ObjectRef{Num: 2})
			done <- err
		}()
	}
	for i := 0; i < 16; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent Get: %v", err)
		}
	}
}
