package models

import "time"

// ObjectInfo describes one listed object in the planning bucket.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ProjectID    string    `json:"project_id"`
	FileName     string    `json:"file_name"`
}

// Document formats.
const (
	FormatPDF  = "pdf"
	FormatDOCX = "docx"
)

// FetchedDocument holds a retrieved object body: either in memory (small
// objects) or spilled to a temp file (large objects). Exactly one of Data
// and Path is set.
type FetchedDocument struct {
	Key    string
	Format string
	Size   int64
	Data   []byte
	Path   string // Temp file path for large objects
}

// InMemory reports whether the body was kept in memory.
func (d *FetchedDocument) InMemory() bool {
	return d.Path == ""
}

// ExtractResult is the outcome of text extraction.
type ExtractResult struct {
	Text      string `json:"text"`
	CharCount int    `json:"char_count"`
	Truncated bool   `json:"truncated"`
	OK        bool   `json:"ok"`
	Reason    string `json:"reason,omitempty"` // Set when OK is false
	UsedOCR   bool   `json:"used_ocr"`
}

// Classification is the final decision for one document.
type Classification struct {
	Match           bool    `json:"match"`
	Stage           string  `json:"stage"` // Where the decision was made
	FIType          string  `json:"fi_type,omitempty"`
	ValidationQuote string  `json:"validation_quote,omitempty"`
	Confidence      float64 `json:"confidence,omitempty"`
	Reason          string  `json:"reason,omitempty"`
}

// Classifier stage tags. Every rejection or match carries the stage that
// decided it so operators can inspect where documents were dropped.
const (
	StageFilenameReject  = "filename-reject"
	StageLengthReject    = "length-reject"
	StageStructureReject = "structure-reject"
	StagePrefilterReject = "prefilter-reject"
	StageNotFI           = "not-fi"
	StageTypeMismatch    = "type-mismatch"
	StageQuoteRejected   = "hallucinated-quote"
	StageMatch           = "match"
	StageCacheHit        = "cache-hit"
	StageSkipped         = "skipped"
	StageTimeout         = "processing-timeout"
	StageOversize        = "oversize"
	StageExtractFailed   = "extract-failed"
)
