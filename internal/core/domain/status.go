package domain

import "time"

type FileState string

const (
	FileUploading  FileState = "uploading"
	FileProcessing FileState = "processing"
	FileCompleted  FileState = "completed"
	FileError      FileState = "error"
)

const (
	ProgressUploading  = 0
	ProgressProcessing = 50
	ProgressDone       = 100
)

func (s FileState) Terminal() bool {
	return s == FileCompleted || s == FileError
}

// FileStatus is a read-only snapshot of one file's pipeline progress.
type FileStatus struct {
	FileID     string          `json:"id"`
	Filename   string          `json:"filename"`
	State      FileState       `json:"status"`
	Progress   int             `json:"progress"`
	Result     *AnalysisResult `json:"result,omitempty"`
	DocumentID string          `json:"document_id,omitempty"`
	Error      string          `json:"error,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type NotificationLevel string

const (
	NotifyInfo  NotificationLevel = "info"
	NotifyError NotificationLevel = "destructive"
)

// Notification is a user-facing message about one file.
type Notification struct {
	Level      NotificationLevel `json:"level"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	FileID     string            `json:"file_id"`
	Filename   string            `json:"filename"`
	DocumentID string            `json:"document_id,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
