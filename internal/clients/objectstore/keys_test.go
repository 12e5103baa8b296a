package objectstore

import "testing"

func TestParseDocumentKey(t *testing.T) {
	cases := []struct {
		key       string
		projectID string
		fileName  string
		ok        bool
	}{
		{"planning/PA-2024-100/fi-letter.pdf", "PA-2024-100", "fi-letter.pdf", true},
		{"planning/PA-2024-100/response.DOCX", "PA-2024-100", "response.DOCX", true},
		// Wrong extension.
		{"planning/PA-2024-100/site-photo.jpg", "", "", false},
		{"planning/PA-2024-100/notes.txt", "", "", false},
		// Extra path segment: not the project layout.
		{"planning/PA-2024-100/sub/letter.pdf", "", "", false},
		// Missing project segment.
		{"planning/letter.pdf", "", "", false},
		// Wrong prefix entirely.
		{"archive/PA-2024-100/letter.pdf", "", "", false},
		// Prefix must match a whole segment.
		{"planningX/PA-2024-100/letter.pdf", "", "", false},
	}

	for _, tc := range cases {
		projectID, fileName, ok := ParseDocumentKey("planning", tc.key)
		if ok != tc.ok {
			t.Errorf("ParseDocumentKey(%q) ok = %v, want %v", tc.key, ok, tc.ok)
			continue
		}
		if projectID != tc.projectID || fileName != tc.fileName {
			t.Errorf("ParseDocumentKey(%q) = (%q, %q), want (%q, %q)",
				tc.key, projectID, fileName, tc.projectID, tc.fileName)
		}
	}
}

func TestEligibleExtension(t *testing.T) {
	if !EligibleExtension("a.pdf") || !EligibleExtension("A.PDF") {
		t.Error("pdf should be eligible regardless of case")
	}
	if !EligibleExtension("a.docx") {
		t.Error("docx should be eligible")
	}
	if EligibleExtension("a.doc") || EligibleExtension("a.xlsx") || EligibleExtension("pdf") {
		t.Error("non-document extensions must be ineligible")
	}
}

func TestFormatForKey(t *testing.T) {
	if formatForKey("p/x/a.DOCX") != "docx" {
		t.Error("docx key should map to docx format")
	}
	if formatForKey("p/x/a.pdf") != "pdf" {
		t.Error("pdf key should map to pdf format")
	}
}
