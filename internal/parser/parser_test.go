package parser

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"textfile-qa/internal/models"
)

func TestConcatenate_PreservesUploadOrder(t *testing.T) {
	uploads := []models.Upload{
		{Name: "b.txt", Data: []byte("second file\n")},
		{Name: "a.txt", Data: []byte("  first file, leading spaces kept")},
		{Name: "c.md", Data: []byte("# third\n\n")},
	}
	got, err := Concatenate(uploads)
	if err != nil {
		t.Fatalf("Concatenate: %v", err)
	}
	want := "second file\n  first file, leading spaces kept# third\n\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestConcatenate_NoUploads(t *testing.T) {
	if _, err := Concatenate(nil); !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("got %v, want ErrNoDocuments", err)
	}
}

func TestConcatenate_InvalidUTF8(t *testing.T) {
	uploads := []models.Upload{
		{Name: "ok.txt", Data: []byte("fine")},
		{Name: "bad.txt", Data: []byte{0xff, 0xfe, 0xfd}},
	}
	_, err := Concatenate(uploads)
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("got %v, want ErrInvalidEncoding", err)
	}
	if !strings.Contains(err.Error(), "bad.txt") {
		t.Errorf("error should name the file: %v", err)
	}
}

func TestExtractText_Unsupported(t *testing.T) {
	if _, err := ExtractText("image.png", []byte{1, 2, 3}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("got %v, want ErrUnsupportedFormat", err)
	}
}

func TestExtractText_ODSUnsupported(t *testing.T) {
	if _, err := ExtractText("sheet.ods", []byte("PK")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("got %v, want ErrUnsupportedFormat", err)
	}
}

func TestIsSupportedExtension(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"notes.txt", true},
		{"NOTES.TXT", true},
		{"readme.md", true},
		{"paper.pdf", true},
		{"report.docx", true},
		{"deck.pptx", true},
		{"sheet.xlsx", true},
		{"archive.zip", false},
		{"sheet.ods", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := IsSupportedExtension(tt.name); got != tt.want {
			t.Errorf("IsSupportedExtension(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestExtractText_PPTX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	slides := map[string]string{
		"ppt/slides/slide1.xml": `<p:sld><a:t>Hello</a:t><a:tab/><a:t>world</a:t></p:sld>`,
		"ppt/other.xml":         `<a:t>ignored</a:t>`,
	}
	for name, body := range slides {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := ExtractText("deck.pptx", buf.Bytes())
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if !strings.Contains(got, "Hello world") {
		t.Errorf("got %q", got)
	}
	if strings.Contains(got, "ignored") {
		t.Errorf("non-slide part leaked into text: %q", got)
	}
}

func TestExtractTextFromXML(t *testing.T) {
	xml := `<w:p><w:r><w:t xml:space="preserve">The sky </w:t></w:r><w:tbl/><w:r><w:t>is blue.</w:t></w:r></w:p>`
	got := extractTextFromXML(xml, "w:t")
	if got != "The sky  is blue. " {
		t.Errorf("got %q", got)
	}
}

func TestExtractTextFromXML_DecodesEntities(t *testing.T) {
	got := extractTextFromXML(`<w:t>Tom &amp; Jerry &lt;3</w:t><w:t>&quot;hi&quot;</w:t>`, "w:t")
	if got != `Tom & Jerry <3 "hi" ` {
		t.Errorf("got %q", got)
	}
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractText_DOCX(t *testing.T) {
	data := zipBytes(t, map[string]string{
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			`<w:p><w:r><w:t>Tom &amp; Jerry</w:t></w:r></w:p>` +
			`<w:p><w:r><w:t xml:space="preserve">Second </w:t></w:r><w:r><w:t>paragraph</w:t></w:r></w:p>` +
			`<w:p></w:p></w:body></w:document>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
	})

	got, err := ExtractText("report.docx", data)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if want := "Tom & Jerry\n\nSecond  paragraph\n\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractText_XLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Name")
	f.SetCellValue("Sheet1", "B1", "Age")
	f.SetCellValue("Sheet1", "A2", "Ada")
	f.SetCellValue("Sheet1", "B2", 36)
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	got, err := ExtractText("people.xlsx", buf.Bytes())
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	for _, want := range []string{"## Sheet: Sheet1", "Name\tAge\n", "Ada\t36\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
}

// minimalPDF builds a one-page PDF showing text in Helvetica, with a correct xref table.
func minimalPDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtractText_PDF(t *testing.T) {
	got, err := ExtractText("paper.pdf", minimalPDF("The sky is blue."))
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if !strings.Contains(got, "The sky is blue.") {
		t.Errorf("got %q", got)
	}
}

func TestExtractText_CorruptPDF(t *testing.T) {
	if _, err := ExtractText("paper.pdf", []byte("not a pdf")); err == nil {
		t.Error("expected an error for a corrupt pdf")
	}
}
