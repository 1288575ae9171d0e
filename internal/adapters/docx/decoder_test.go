package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

const wNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

func buildPackage(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func body(paragraphs ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><w:document ` + wNS + `><w:body>` +
		strings.Join(paragraphs, "") + `</w:body></w:document>`
}

func para(style, text string) string {
	ppr := ""
	if style != "" {
		ppr = `<w:pPr><w:pStyle w:val="` + style + `"/></w:pPr>`
	}
	return `<w:p>` + ppr + `<w:r><w:t>` + text + `</w:t></w:r></w:p>`
}

func listPara(numID, ilvl, text string) string {
	return `<w:p><w:pPr><w:pStyle w:val="ListParagraph"/><w:numPr><w:ilvl w:val="` + ilvl +
		`"/><w:numId w:val="` + numID + `"/></w:numPr></w:pPr><w:r><w:t>` + text + `</w:t></w:r></w:p>`
}

func TestDecode_HeadingAndBody(t *testing.T) {
	data := buildPackage(t, map[string]string{
		"word/document.xml": body(para("Heading1", "Definitions"), para("", "Term")),
	})

	doc, err := NewDecoder(nil).Decode(context.Background(), data, "contract.docx")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(doc.Paragraphs) != 2 {
		t.Fatalf("expected 2 paragraphs, got %d", len(doc.Paragraphs))
	}

	h := doc.Paragraphs[0]
	if h.Text != "Definitions" || h.Style != "Heading 1" || h.OutlineLevel != 1 {
		t.Errorf("unexpected heading: %+v", h)
	}
	p := doc.Paragraphs[1]
	if p.Text != "Term" || p.Style != "Normal" || p.OutlineLevel != 0 {
		t.Errorf("unexpected body paragraph: %+v", p)
	}
	if p.OriginalText != p.Text || p.Status != "original" {
		t.Errorf("fresh paragraph should be unmodified: %+v", p)
	}
	if doc.Metadata.Filename != "contract.docx" {
		t.Errorf("unexpected filename: %s", doc.Metadata.Filename)
	}
}

func TestDecode_SkipsEmptyParagraphsButKeepsIndices(t *testing.T) {
	data := buildPackage(t, map[string]string{
		"word/document.xml": body(para("", "first"), para("", "   "), `<w:p/>`, para("", "second")),
	})

	doc, err := NewDecoder(nil).Decode(context.Background(), data, "a.docx")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(doc.Paragraphs) != 2 {
		t.Fatalf("expected 2 paragraphs, got %d", len(doc.Paragraphs))
	}
	if doc.Paragraphs[0].ID != "docx_para_0" || doc.Paragraphs[1].ID != "docx_para_3" {
		t.Errorf("unexpected ids: %s, %s", doc.Paragraphs[0].ID, doc.Paragraphs[1].ID)
	}
}

func TestDecode_IDsStableAcrossDecodes(t *testing.T) {
	data := buildPackage(t, map[string]string{
		"word/document.xml": body(para("", "a"), para("", "b"), para("", "c")),
	})
	dec := NewDecoder(nil)

	first, err := dec.Decode(context.Background(), data, "x.docx")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	second, err := dec.Decode(context.Background(), data, "x.docx")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	seen := map[string]bool{}
	for i, p := range first.Paragraphs {
		if seen[p.ID] {
			t.Errorf("duplicate id %s", p.ID)
		}
		seen[p.ID] = true
		if second.Paragraphs[i].ID != p.ID {
			t.Errorf("id changed between decodes: %s vs %s", p.ID, second.Paragraphs[i].ID)
		}
	}
}

func numberedListPackage(t *testing.T) []byte {
	t.Helper()
	return buildPackage(t, map[string]string{
		"word/document.xml": body(
			listPara("5", "0", "Payment"),
			listPara("5", "1", "Invoices"),
			listPara("5", "1", "Late fees"),
			listPara("5", "0", "Termination"),
		),
		"word/numbering.xml": numberingFixture,
	})
}

var numberedListWant = []string{"1.\tPayment", "(a)\tInvoices", "(b)\tLate fees", "2.\tTermination"}

func TestDecode_NumberedList(t *testing.T) {
	doc, err := NewDecoder(nil).Decode(context.Background(), numberedListPackage(t), "list.docx")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	want := numberedListWant
	if len(doc.Paragraphs) != len(want) {
		t.Fatalf("expected %d paragraphs, got %d", len(want), len(doc.Paragraphs))
	}
	for i, w := range want {
		if doc.Paragraphs[i].Text != w {
			t.Errorf("paragraph %d: expected %q, got %q", i, w, doc.Paragraphs[i].Text)
		}
		if doc.Paragraphs[i].Style != "List Paragraph" {
			t.Errorf("paragraph %d: unexpected style %q", i, doc.Paragraphs[i].Style)
		}
	}
}

func TestDecode_MissingNumberingIsNotFatal(t *testing.T) {
	data := buildPackage(t, map[string]string{
		"word/document.xml": body(listPara("5", "0", "Payment")),
	})

	doc, err := NewDecoder(nil).Decode(context.Background(), data, "list.docx")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if doc.Paragraphs[0].Text != "Payment" {
		t.Errorf("expected unprefixed text, got %q", doc.Paragraphs[0].Text)
	}
}

func TestDecode_MissingBodyPart(t *testing.T) {
	data := buildPackage(t, map[string]string{
		"word/numbering.xml": numberingFixture,
	})

	_, err := NewDecoder(nil).Decode(context.Background(), data, "broken.docx")
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if !errors.Is(err, ErrMissingBodyPart) {
		t.Errorf("expected ErrMissingBodyPart, got %v", err)
	}
}

func TestDecode_NotAZip(t *testing.T) {
	_, err := NewDecoder(nil).Decode(context.Background(), []byte("plain text, no zip here"), "x.docx")
	if !errors.Is(err, ErrNotContainer) {
		t.Errorf("expected ErrNotContainer, got %v", err)
	}
}

func TestDecode_MalformedBody(t *testing.T) {
	data := buildPackage(t, map[string]string{
		"word/document.xml": `<w:document ` + wNS + `><w:body><w:p><w:r><w:t>oops`,
	})

	_, err := NewDecoder(nil).Decode(context.Background(), data, "x.docx")
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if decErr.Part != documentPart {
		t.Errorf("unexpected part: %s", decErr.Part)
	}
}

func TestDecode_TextOnlyFromRuns(t *testing.T) {
	// instrText sits in a run but is not <w:t>; pPr text is not in a run at all.
	doc := body(`<w:p><w:r><w:instrText>PAGE</w:instrText></w:r><w:r><w:t xml:space="preserve">Hello </w:t></w:r><w:r><w:t>world</w:t></w:r></w:p>`)
	data := buildPackage(t, map[string]string{"word/document.xml": doc})

	got, err := NewDecoder(nil).Decode(context.Background(), data, "x.docx")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Paragraphs[0].Text != "Hello world" {
		t.Errorf("unexpected text: %q", got.Paragraphs[0].Text)
	}
}

func TestResolveStyle(t *testing.T) {
	tests := []struct {
		in        string
		wantStyle string
		wantLevel int
	}{
		{"", "Normal", 0},
		{"Heading1", "Heading 1", 1},
		{"heading3", "Heading 3", 3},
		{"ListParagraph", "List Paragraph", 0},
		{"Title", "Title", 0},
	}
	for _, tt := range tests {
		style, level := resolveStyle(tt.in)
		if style != tt.wantStyle || level != tt.wantLevel {
			t.Errorf("resolveStyle(%q) = (%q, %d), want (%q, %d)", tt.in, style, level, tt.wantStyle, tt.wantLevel)
		}
	}
}

func TestDecode_NumberingRestartsEachDecode(t *testing.T) {
	data := numberedListPackage(t)
	dec := NewDecoder(nil)

	for run := 0; run < 2; run++ {
		doc, err := dec.Decode(context.Background(), data, "list.docx")
		if err != nil {
			t.Fatalf("run %d: decode failed: %v", run, err)
		}
		if len(doc.Paragraphs) != len(numberedListWant) {
			t.Fatalf("run %d: expected %d paragraphs, got %d", run, len(numberedListWant), len(doc.Paragraphs))
		}
		for i, w := range numberedListWant {
			if doc.Paragraphs[i].Text != w {
				t.Errorf("run %d, paragraph %d: expected %q, got %q", run, i, w, doc.Paragraphs[i].Text)
			}
		}
	}
}

func TestDecode_IgnoresRevisedParagraphProperties(t *testing.T) {
	tracked := `<w:p><w:pPr><w:pStyle w:val="Heading1"/>` +
		`<w:pPrChange w:id="1" w:author="Counsel"><w:pPr><w:pStyle w:val="BodyText"/>` +
		`<w:numPr><w:ilvl w:val="1"/><w:numId w:val="5"/></w:numPr></w:pPr></w:pPrChange>` +
		`</w:pPr><w:r><w:t>Term</w:t></w:r></w:p>`
	data := buildPackage(t, map[string]string{
		"word/document.xml":  body(tracked, listPara("5", "0", "Payment")),
		"word/numbering.xml": numberingFixture,
	})

	doc, err := NewDecoder(nil).Decode(context.Background(), data, "redline.docx")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(doc.Paragraphs) != 2 {
		t.Fatalf("expected 2 paragraphs, got %d", len(doc.Paragraphs))
	}

	p := doc.Paragraphs[0]
	if p.Style != "Heading 1" || p.OutlineLevel != 1 || p.Text != "Term" {
		t.Errorf("current properties should win, got style=%q level=%d text=%q", p.Style, p.OutlineLevel, p.Text)
	}
	// The revised numPr must not advance list 5.
	if got := doc.Paragraphs[1].Text; got != "1.\tPayment" {
		t.Errorf("expected first list item to be 1., got %q", got)
	}
}
