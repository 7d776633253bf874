package domain

import "time"

// DocumentProcessedEvent is published once a record has been committed.
type DocumentProcessedEvent struct {
	DocumentID  string    `json:"document_id"`
	Filename    string    `json:"filename"`
	FilePath    string    `json:"file_path"`
	MimeType    string    `json:"mime_type"`
	Summary     string    `json:"summary"`
	ProcessedAt time.Time `json:"processed_at"`
}

func NewDocumentProcessedEvent(doc *DocumentRecord) DocumentProcessedEvent {
	ev := DocumentProcessedEvent{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		FilePath:   doc.FilePath,
		MimeType:   doc.MimeType,
		Summary:    doc.Summary,
	}
	if doc.ProcessedAt != nil {
		ev.ProcessedAt = *doc.ProcessedAt
	} else {
		ev.ProcessedAt = doc.CreatedAt
	}
	return ev
}
