package objectstore

import (
	"regexp"
	"strings"
)

// keyPattern matches the project layout <prefix>/<project_id>/<filename>.
// Keys with extra path segments (or none) are not planning documents.
var keyPattern = regexp.MustCompile(`^([^/]+)/([^/]+)$`)

// ParseDocumentKey validates a key against the project layout and eligible
// extensions. Returns the project id and file name, or ok=false for keys
// that are not planning documents.
func ParseDocumentKey(prefix, key string) (projectID, fileName string, ok bool) {
	rel, found := strings.CutPrefix(key, prefix+"/")
	if !found {
		return "", "", false
	}

	m := keyPattern.FindStringSubmatch(rel)
	if m == nil {
		return "", "", false
	}

	projectID, fileName = m[1], m[2]
	if !EligibleExtension(fileName) {
		return "", "", false
	}
	return projectID, fileName, true
}

// EligibleExtension reports whether the file name carries a scannable
// document extension.
func EligibleExtension(fileName string) bool {
	lower := strings.ToLower(fileName)
	return strings.HasSuffix(lower, ".pdf") || strings.HasSuffix(lower, ".docx")
}

// formatForKey maps a key to its document format constant.
func formatForKey(key string) string {
	if strings.HasSuffix(strings.ToLower(key), ".docx") {
		return "docx"
	}
	return "pdf"
}
