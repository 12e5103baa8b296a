package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// extractDOCX reads word/document.xml out of the package and streams the
// XML, collecting text runs and emitting a newline per paragraph.
func extractDOCX(doc docSource, maxChars int) (string, bool, error) {
	readerAt, size, closeFn, err := doc.readerAt()
	if err != nil {
		return "", false, err
	}
	defer closeFn()

	zr, err := zip.NewReader(readerAt, size)
	if err != nil {
		return "", false, fmt.Errorf("failed to open DOCX package: %w", err)
	}

	var docXML io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return "", false, fmt.Errorf("failed to open document.xml: %w", err)
			}
			break
		}
	}
	if docXML == nil {
		return "", false, fmt.Errorf("DOCX package has no word/document.xml")
	}
	defer docXML.Close()

	return decodeDocumentXML(docXML, maxChars)
}

// decodeDocumentXML walks the WordprocessingML token stream. Only <w:t>
// character data is collected; paragraph ends become newlines.
func decodeDocumentXML(r io.Reader, maxChars int) (string, bool, error) {
	dec := xml.NewDecoder(r)

	var sb strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", false, fmt.Errorf("malformed document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if !inText {
				continue
			}
			text := string(bytes.Clone(t))
			remaining := maxChars - sb.Len()
			if len(text) >= remaining {
				sb.WriteString(text[:remaining])
				return sb.String(), true, nil
			}
			sb.WriteString(text)
		}
	}

	return sb.String(), false, nil
}
