package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/planhound/planhound/internal/models"
)

// buildDOCX packages the given document.xml body into a minimal DOCX zip.
func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

const docXMLTwoParas = `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Further information is required.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Please submit an acoustic </w:t></w:r><w:r><w:t>assessment.</w:t></w:r></w:p>
  </w:body>
</w:document>`

func TestExtract_DOCX(t *testing.T) {
	svc := NewService(10000, 200)

	doc := &models.FetchedDocument{
		Key:    "p/PA-1/letter.docx",
		Format: models.FormatDOCX,
		Data:   buildDOCX(t, docXMLTwoParas),
	}

	res := svc.Extract(context.Background(), doc)
	if !res.OK {
		t.Fatalf("extraction failed: %s", res.Reason)
	}
	if res.Truncated {
		t.Error("short document should not be truncated")
	}
	if !strings.Contains(res.Text, "Further information is required.") {
		t.Errorf("missing first paragraph: %q", res.Text)
	}
	// Runs within a paragraph concatenate; paragraphs break on newlines.
	if !strings.Contains(res.Text, "Please submit an acoustic assessment.") {
		t.Errorf("runs not joined: %q", res.Text)
	}
	lines := strings.Split(strings.TrimSpace(res.Text), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 paragraphs, got %d: %q", len(lines), res.Text)
	}
	if res.CharCount != len(res.Text) {
		t.Errorf("char count mismatch: %d vs %d", res.CharCount, len(res.Text))
	}
}

func TestExtract_DOCXTruncation(t *testing.T) {
	svc := NewService(20, 200)

	doc := &models.FetchedDocument{
		Key:    "p/PA-1/letter.docx",
		Format: models.FormatDOCX,
		Data:   buildDOCX(t, docXMLTwoParas),
	}

	res := svc.Extract(context.Background(), doc)
	if !res.OK {
		t.Fatalf("extraction failed: %s", res.Reason)
	}
	if !res.Truncated {
		t.Error("expected truncation at the character cap")
	}
	if len(res.Text) > 20 {
		t.Errorf("text exceeds cap: %d chars", len(res.Text))
	}
}

func TestExtract_CorruptDOCXIsSkippedNotFatal(t *testing.T) {
	svc := NewService(10000, 200)

	doc := &models.FetchedDocument{
		Key:    "p/PA-1/broken.docx",
		Format: models.FormatDOCX,
		Data:   []byte("this is not a zip archive"),
	}

	res := svc.Extract(context.Background(), doc)
	if res.OK {
		t.Fatal("corrupt package must not extract")
	}
	if res.Reason == "" {
		t.Error("skip must carry a reason")
	}
}

func TestExtract_DOCXWithoutDocumentXML(t *testing.T) {
	svc := NewService(10000, 200)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("word/styles.xml")
	w.Write([]byte("<styles/>"))
	zw.Close()

	res := svc.Extract(context.Background(), &models.FetchedDocument{
		Key:    "p/PA-1/odd.docx",
		Format: models.FormatDOCX,
		Data:   buf.Bytes(),
	})
	if res.OK {
		t.Fatal("package without document.xml must not extract")
	}
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	svc := NewService(10000, 200)

	res := svc.Extract(context.Background(), &models.FetchedDocument{
		Key:    "p/PA-1/notes.txt",
		Format: "txt",
		Data:   []byte("plain text"),
	})
	if res.OK {
		t.Fatal("unsupported format must not extract")
	}
	if !strings.Contains(res.Reason, "unsupported format") {
		t.Errorf("unexpected reason: %q", res.Reason)
	}
}

func TestExtract_CorruptPDFIsSkippedNotFatal(t *testing.T) {
	svc := NewService(10000, 200)

	res := svc.Extract(context.Background(), &models.FetchedDocument{
		Key:    "p/PA-1/broken.pdf",
		Format: models.FormatPDF,
		Data:   []byte("%PDF-1.4 garbage that is not a real pdf"),
	})
	if res.OK {
		t.Fatal("corrupt PDF must not extract")
	}
	if res.Reason == "" {
		t.Error("skip must carry a reason")
	}
}

func TestDecodeDocumentXML_IgnoresNonTextNodes(t *testing.T) {
	body := `<w:document xmlns:w="x"><w:body>
		<w:p><w:pPr><w:jc val="center"/></w:pPr><w:r><w:t>kept</w:t></w:r></w:p>
	</w:body></w:document>`

	text, truncated, err := decodeDocumentXML(strings.NewReader(body), 1000)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if truncated {
		t.Error("unexpected truncation")
	}
	if strings.TrimSpace(text) != "kept" {
		t.Errorf("expected only text runs, got %q", text)
	}
}
