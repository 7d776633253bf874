package usecase

import (
	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/encoding"
)

// DefaultMaxUploadBytes matches the inline payload ceiling of the analysis service.
const DefaultMaxUploadBytes int64 = 5 * 1024 * 1024

var (
	allowedMimeTypes = map[string]struct{}{
		encoding.MimePDF:  {},
		encoding.MimeDOCX: {},
		encoding.MimeDOC:  {},
		encoding.MimeText: {},
		encoding.MimeCSV:  {},
	}
	allowedExtensions = map[string]struct{}{
		".pdf":  {},
		".docx": {},
		".doc":  {},
		".txt":  {},
		".csv":  {},
	}
)

// UploadPolicy decides whether a file may enter the pipeline.
type UploadPolicy struct {
	MaxBytes int64
}

func NewUploadPolicy(maxBytes int64) UploadPolicy {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return UploadPolicy{MaxBytes: maxBytes}
}

// Validate checks type before size. A file passes the type check when either its
// declared mime type or its extension is allow-listed.
func (p UploadPolicy) Validate(file domain.UploadedFile) error {
	_, mimeOK := allowedMimeTypes[encoding.NormalizeMimeType(file.DeclaredMimeType)]
	_, extOK := allowedExtensions[encoding.Extension(file.Filename)]
	if !mimeOK && !extOK {
		return &domain.ValidationError{
			Reason:   domain.ErrUnsupportedType,
			Filename: file.Filename,
			Size:     file.Size(),
			Limit:    p.MaxBytes,
		}
	}

	if size := file.Size(); size > p.MaxBytes {
		return &domain.ValidationError{
			Reason:   domain.ErrTooLarge,
			Filename: file.Filename,
			Size:     size,
			Limit:    p.MaxBytes,
		}
	}
	return nil
}
