package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfText is the result of the native PDF text pass.
type pdfText struct {
	Text      string
	Truncated bool
	Pages     int
	// TextPages counts pages that yielded any text. A document where this
	// stays at zero is treated as image-only (scanned) for the OCR fallback.
	TextPages int
}

// extractPDF streams pages through the reader one at a time, stopping as
// soon as the character cap is reached so deep documents never hold more
// than one page of content plus the capped buffer.
func extractPDF(doc docSource, maxChars int) (*pdfText, error) {
	readerAt, size, closeFn, err := doc.readerAt()
	if err != nil {
		return nil, err
	}
	defer closeFn()

	r, err := pdf.NewReader(readerAt, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	result := &pdfText{Pages: r.NumPage()}

	var sb strings.Builder
	fonts := make(map[string]*pdf.Font)

	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(fonts)
		if err != nil {
			// A single unreadable page is not fatal; skip it.
			continue
		}

		if strings.TrimSpace(text) != "" {
			result.TextPages++
		}

		remaining := maxChars - sb.Len()
		if len(text) >= remaining {
			sb.WriteString(text[:remaining])
			result.Truncated = true
			break
		}
		sb.WriteString(text)
	}

	result.Text = sb.String()
	return result, nil
}

// docSource abstracts over in-memory and spilled document bodies.
type docSource struct {
	data []byte
	path string
}

// readerAt opens the body as an io.ReaderAt. The returned close function is
// a no-op for in-memory bodies.
func (d docSource) readerAt() (io.ReaderAt, int64, func(), error) {
	if d.path == "" {
		return bytes.NewReader(d.data), int64(len(d.data)), func() {}, nil
	}

	f, err := os.Open(d.path)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to open document file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, nil, fmt.Errorf("failed to stat document file: %w", err)
	}
	return f, st.Size(), func() { f.Close() }, nil
}
