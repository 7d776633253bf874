package domain

import (
	"fmt"
	"time"
)

type DocumentStatus string

const (
	StatusProcessed  DocumentStatus = "processed"
	StatusProcessing DocumentStatus = "processing"
	StatusError      DocumentStatus = "error"
)

// DocumentRecord is the durable row written once per successful pipeline run.
type DocumentRecord struct {
	ID            string         `json:"id"`
	Filename      string         `json:"filename"`
	FilePath      string         `json:"file_path"`
	MimeType      string         `json:"mime_type"`
	FileSize      int64          `json:"file_size"`
	Summary       string         `json:"summary"`
	ExtractedText string         `json:"extracted_text"`
	Status        DocumentStatus `json:"status"`
	DepartmentID  *string        `json:"department_id,omitempty"`
	CategoryID    *string        `json:"category_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
}

const (
	DefaultAuthor  = "Not detected"
	DefaultEntity  = "Not detected"
	DefaultKeyInfo = "See summary"
	DefaultSummary = "No summary available"
)

type AnalysisResult struct {
	Summary string `json:"summary"`
	Author  string `json:"author"`
	Entity  string `json:"entity"`
	KeyInfo string `json:"keyInfo"`
}

// ExtractedText flattens the non-summary fields into the stored text column.
func (r AnalysisResult) ExtractedText() string {
	return fmt.Sprintf("Author: %s\nEntity: %s\nKey Info: %s", r.Author, r.Entity, r.KeyInfo)
}

// UploadedFile is a submitted file. It is never mutated after creation.
type UploadedFile struct {
	ID               string
	Filename         string
	Content          []byte
	DeclaredMimeType string
	DeclaredSize     int64
}

// Size is the larger of the declared size and the bytes actually received.
func (f UploadedFile) Size() int64 {
	actual := int64(len(f.Content))
	if f.DeclaredSize > actual {
		return f.DeclaredSize
	}
	return actual
}

// EncodedDocument is the wire payload handed to the analysis service.
type EncodedDocument struct {
	Data     []byte
	MimeType string
	RawSize  int64
}

type DocumentFilter struct {
	Status DocumentStatus
	Limit  int
	Offset int
}
