package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTemporary        = errors.New("temporary failure")

	ErrUnsupportedType   = errors.New("unsupported file type")
	ErrTooLarge          = errors.New("file too large")
	ErrBlobWrite         = errors.New("blob write failed")
	ErrRecordWrite       = errors.New("record write failed")
	ErrObjectExists      = errors.New("object already exists")
	ErrObjectNotFound    = errors.New("object not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ValidationError rejects a file before it enters the pipeline.
type ValidationError struct {
	Reason   error
	Filename string
	Size     int64
	Limit    int64
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "validation error"
	}
	switch e.Reason {
	case ErrTooLarge:
		return fmt.Sprintf("%s is larger than %s. Please upload a smaller file.", e.Filename, FormatBytes(e.Limit))
	case ErrUnsupportedType:
		return fmt.Sprintf("%s is not supported. Please upload PDF, DOCX, DOC, TXT, or CSV files.", e.Filename)
	default:
		return fmt.Sprintf("%s: %v", e.Filename, e.Reason)
	}
}

func (e *ValidationError) Unwrap() []error {
	return []error{e.Reason, ErrInvalidInput}
}

// Title is the short notification heading for the violated rule.
func (e *ValidationError) Title() string {
	if e.Reason == ErrTooLarge {
		return "File too large"
	}
	return "Unsupported file type"
}

const (
	AnalysisStatusTimeout     = "timeout"
	AnalysisStatusCircuitOpen = "circuit_open"
)

// AnalysisError carries the remote service status and body for diagnostics.
type AnalysisError struct {
	Status     string
	StatusCode int
	Body       string
	// RetryAfter is the server's Retry-After hint, if any.
	RetryAfter time.Duration
	Err        error
}

func (e *AnalysisError) Error() string {
	if e == nil {
		return "analysis error"
	}
	body := strings.TrimSpace(e.Body)
	switch {
	case body != "":
		return fmt.Sprintf("analysis service error: %s - %s", e.Status, body)
	case e.Err != nil:
		return fmt.Sprintf("analysis service error: %s: %v", e.Status, e.Err)
	default:
		return fmt.Sprintf("analysis service error: %s", e.Status)
	}
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

func (e *AnalysisError) Timeout() bool {
	return e != nil && e.Status == AnalysisStatusTimeout
}

// PersistError reports which persistence step failed.
type PersistError struct {
	Kind error
	Key  string
	Err  error
}

func (e *PersistError) Error() string {
	if e == nil {
		return "persist error"
	}
	if e.Kind == ErrRecordWrite {
		return fmt.Sprintf("database error: %v", e.Err)
	}
	return fmt.Sprintf("file upload failed: %v", e.Err)
}

func (e *PersistError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// FormatBytes renders a byte limit the way users read it (5MB, 512KB).
func FormatBytes(n int64) string {
	const (
		kib = 1024
		mib = 1024 * kib
	)
	switch {
	case n >= mib && n%mib == 0:
		return fmt.Sprintf("%dMB", n/mib)
	case n >= mib:
		return fmt.Sprintf("%.1fMB", float64(n)/mib)
	case n >= kib && n%kib == 0:
		return fmt.Sprintf("%dKB", n/kib)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
