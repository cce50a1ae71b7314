package extractor

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/wudi/zpdf/document"
	"github.com/wudi/zpdf/parser"
)

type pdfBuilder struct {
	buf     bytes.Buffer
	offsets map[int]int64
	maxObj  int
}

func newPDF() *pdfBuilder {
	b := &pdfBuilder{offsets: make(map[int]int64)}
	b.buf.WriteString("%PDF-1.7\n")
	return b
}

func (b *pdfBuilder) add(num int, body string) *pdfBuilder {
	b.offsets[num] = int64(b.buf.Len())
	fmt.Fprintf(&b.buf, "%d 0 obj\n%s\nendobj\n", num, body)
	if num > b.maxObj {
		b.maxObj = num
	}
	return b
}

func (b *pdfBuilder) finish() []byte {
	start := b.buf.Len()
	fmt.Fprintf(&b.buf, "xref\n0 %d\n0000000000 65535 f \n", b.maxObj+1)
	for i := 1; i <= b.maxObj; i++ {
		fmt.Fprintf(&b.buf, "%010d 00000 n \n", b.offsets[i])
	}
	fmt.Fprintf(&b.buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		b.maxObj+1, start)
	return b.buf.Bytes()
}

func loadExtractor(t *testing.T, data []byte) *Extractor {
	t.Helper()
	ctx := context.Background()
	p, err := parser.Open(ctx, bytes.NewReader(data), int64(len(data)), parser.Config{})
	if err != nil {
		t.Fatalf("parser.Open: %v", err)
	}
	doc, err := document.Load(ctx, p, nil)
	if err != nil {
		t.Fatalf("document.Load: %v", err)
	}
	return New(doc, nil)
}

func TestOutlineFlattening(t *testing.T) {
	data := newPDF().
		add(1, "<< /Type /Catalog /Pages 2 0 R /Outlines 5 0 R >>").
		add(2, "<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 >>").
		add(3, "<< /Type /Page >>").
		add(4, "<< /Type /Page >>").
		add(5, "<< /Type /Outlines /First 6 0 R /Last 8 0 R >>").
		add(6, "<< /Title (Chapter 1) /Dest [3 0 R /Fit] /Next 8 0 R /First 7 0 R /Last 7 0 R >>").
		add(7, "<< /Title (Section 1.1) /Dest [4 0 R /XYZ 0 792 0] /Parent 6 0 R >>").
		add(8, "<< /Title (Chapter 2) /A << /S /GoTo /D [4 0 R /Fit] >> /Prev 6 0 R >>").
		finish()
	e := loadExtractor(t, data)

	items := e.Outline(context.Background())
	if len(items) != 3 {
		t.Fatalf("outline items = %d, want 3", len(items))
	}
	want := []OutlineItem{
		{Title: "Chapter 1", Page: 0, Level: 0},
		{Title: "Section 1.1", Page: 1, Level: 1},
		{Title: "Chapter 2", Page: 1, Level: 0},
	}
	for i, w := range want {
		if items[i] != w {
			t.Errorf("item %d = %+v, want %+v", i, items[i], w)
		}
	}
}

func TestOutlineNamedDestination(t *testing.T) {
	data := newPDF().
		add(1, "<< /Type /Catalog /Pages 2 0 R /Outlines 4 0 R /Names << /Dests 6 0 R >> >>").
		add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>").
		add(3, "<< /Type /Page >>").
		add(4, "<< /Type /Outlines /First 5 0 R /Last 5 0 R >>").
		add(5, "<< /Title (Intro) /Dest (intro) >>").
		add(6, "<< /Names [(intro) [3 0 R /Fit]] >>").
		finish()
	e := loadExtractor(t, data)

	items := e.Outline(context.Background())
	if len(items) != 1 || items[0].Page != 0 {
		t.Fatalf("named destination outline = %+v", items)
	}
}

func TestOutlineCycleTerminates(t *testing.T) {
	data := newPDF().
		add(1, "<< /Type /Catalog /Pages 2 0 R /Outlines 4 0 R >>").
		add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>").
		add(3, "<< /Type /Page >>").
		add(4, "<< /Type /Outlines /First 5 0 R >>").
		add(5, "<< /Title (Loop A) /Next 6 0 R >>").
		add(6, "<< /Title (Loop B) /Next 5 0 R >>").
		finish()
	e := loadExtractor(t, data)

	items := e.Outline(context.Background())
	if len(items) != 2 {
		t.Fatalf("cyclic outline items = %d, want 2", len(items))
	}
}

func TestPageLinks(t *testing.T) {
	data := newPDF().
		add(1, "<< /Type /Catalog /Pages 2 0 R >>").
		add(2, "<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 >>").
		add(3, "<< /Type /Page /Annots [5 0 R 6 0 R 7 0 R] >>").
		add(4, "<< /Type /Page >>").
		add(5, "<< /Type /Annot /Subtype /Link /Rect [10 20 110 40] /A << /S /URI /URI (https://example.com) >> >>").
		add(6, "<< /Type /Annot /Subtype /Link /Rect [10 60 110 80] /Dest [4 0 R /Fit] >>").
		add(7, "<< /Type /Annot /Subtype /Text /Rect [0 0 5 5] /Contents (note) >>").
		finish()
	e := loadExtractor(t, data)

	links := e.PageLinks(context.Background(), 0)
	if len(links) != 2 {
		t.Fatalf("links = %d, want 2 (text annotation excluded)", len(links))
	}
	if links[0].URI != "https://example.com" || links[0].DestPage != -1 {
		t.Errorf("external link = %+v", links[0])
	}
	if links[0].Rect.X0 != 10 || links[0].Rect.Y1 != 40 {
		t.Errorf("link rect = %+v", links[0].Rect)
	}
	if links[1].URI != "" || links[1].DestPage != 1 {
		t.Errorf("internal link = %+v", links[1])
	}
	if got := e.PageLinks(context.Background(), 1); got != nil {
		t.Errorf("page without annotations returned %+v", got)
	}
}

func TestFormFields(t *testing.T) {
	data := newPDF().
		add(1, "<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [4 0 R 5 0 R 6 0 R 8 0 R] >> >>").
		add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>").
		add(3, "<< /Type /Page >>").
		add(4, "<< /FT /Tx /T (name) /V (Ada) /Rect [10 10 210 30] >>").
		add(5, "<< /FT /Btn /T (subscribe) /V /Yes >>").
		add(6, "<< /T (group) /FT /Btn /Ff 32768 /V /Choice2 /Kids [7 0 R] >>").
		add(7, "<< /Rect [50 50 70 70] >>").
		add(8, "<< /FT /Ch /T (color) /V (blue) >>").
		finish()
	e := loadExtractor(t, data)

	fields := e.FormFields(context.Background())
	if len(fields) != 4 {
		t.Fatalf("fields = %d, want 4: %+v", len(fields), fields)
	}

	byName := map[string]FormField{}
	for _, f := range fields {
		byName[f.Name] = f
	}
	if f := byName["name"]; f.Type != FieldText || f.Value != "Ada" || !f.HasRect || f.Rect.X1 != 210 {
		t.Errorf("text field = %+v", f)
	}
	if f := byName["subscribe"]; f.Type != FieldCheckbox || f.Value != "Yes" || f.HasRect {
		t.Errorf("checkbox field = %+v", f)
	}
	if f := byName["group"]; f.Type != FieldRadio || f.Value != "Choice2" || !f.HasRect || f.Rect.X0 != 50 {
		t.Errorf("radio field = %+v", f)
	}
	if f := byName["color"]; f.Type != FieldChoice || f.Value != "blue" {
		t.Errorf("choice field = %+v", f)
	}
}

func TestFormFieldHierarchyNames(t *testing.T) {
	data := newPDF().
		add(1, "<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [4 0 R] >> >>").
		add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>").
		add(3, "<< /Type /Page >>").
		add(4, "<< /T (address) /FT /Tx /Kids [5 0 R 6 0 R] >>").
		add(5, "<< /T (street) /V (Main St) >>").
		add(6, "<< /T (city) /V (Springfield) >>").
		finish()
	e := loadExtractor(t, data)

	fields := e.FormFields(context.Background())
	if len(fields) != 2 {
		t.Fatalf("fields = %d, want 2: %+v", len(fields), fields)
	}
	if fields[0].Name != "address.street" || fields[0].Value != "Main St" || fields[0].Type != FieldText {
		t.Errorf("child field 0 = %+v", fields[0])
	}
	if fields[1].Name != "address.city" || fields[1].Value != "Springfield" {
		t.Errorf("child field 1 = %+v", fields[1])
	}
}

func TestPageImages(t *testing.T) {
	content := "q 200 0 0 100 30 40 cm /Im1 Do Q"
	data := newPDF().
		add(1, "<< /Type /Catalog /Pages 2 0 R >>").
		add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>").
		add(3, "<< /Type /Page /Contents 4 0 R /Resources << /XObject << /Im1 5 0 R >> >> >>").
		add(4, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content)).
		add(5, "<< /Type /XObject /Subtype /Image /Width 640 /Height 480 /Length 0 >>\nstream\n\nendstream").
		finish()
	e := loadExtractor(t, data)

	images, err := e.PageImages(context.Background(), 0)
	if err != nil {
		t.Fatalf("PageImages: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("images = %d, want 1", len(images))
	}
	img := images[0]
	if img.Width != 640 || img.Height != 480 {
		t.Errorf("intrinsic size = %dx%d, want 640x480", img.Width, img.Height)
	}
	if img.Rect.X0 != 30 || img.Rect.Y0 != 40 || img.Rect.X1 != 230 || img.Rect.Y1 != 140 {
		t.Errorf("placement rect = %+v", img.Rect)
	}
}

func TestNoAuxiliaryStructures(t *testing.T) {
	data := newPDF().
		add(1, "<< /Type /Catalog /Pages 2 0 R >>").
		add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>").
		add(3, "<< /Type /Page >>").
		finish()
	e := loadExtractor(t, data)
	ctx := context.Background()

	if got := e.Outline(ctx); got != nil {
		t.Errorf("Outline = %+v, want nil", got)
	}
	if got := e.FormFields(ctx); got != nil {
		t.Errorf("FormFields = %+v, want nil", got)
	}
	if got := e.PageLinks(ctx, 0); got != nil {
		t.Errorf("PageLinks = %+v, want nil", got)
	}
}
