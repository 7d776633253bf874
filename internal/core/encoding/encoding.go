// Package encoding converts raw document bytes into the inline payload format of
// the analysis service. Everything here is pure and deterministic.
package encoding

import (
	"bytes"
	"encoding/base64"
	"path/filepath"
	"strings"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

const (
	MimePDF     = "application/pdf"
	MimeDOCX    = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeDOC     = "application/msword"
	MimeText    = "text/plain"
	MimeCSV     = "text/csv"
	MimeUnknown = "application/octet-stream"
)

// chunkSize is a multiple of 3 so every chunk encodes without padding.
const chunkSize = 3 * 16 * 1024

var extensionMimeTypes = map[string]string{
	".pdf":  MimePDF,
	".docx": MimeDOCX,
	".doc":  MimeDOC,
	".txt":  MimeText,
	".csv":  MimeCSV,
}

// MimeTypeForExtension maps a filename to its mime type, or MimeUnknown.
func MimeTypeForExtension(filename string) string {
	if mt, ok := extensionMimeTypes[Extension(filename)]; ok {
		return mt
	}
	return MimeUnknown
}

// Extension returns the lower-cased extension including the dot.
func Extension(filename string) string {
	return strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
}

// NormalizeMimeType strips parameters and lower-cases the media type.
func NormalizeMimeType(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// ResolveMimeType keeps a meaningful declared type and otherwise falls back to
// the extension table.
func ResolveMimeType(declared, filename string) string {
	mt := NormalizeMimeType(declared)
	if mt == "" || mt == MimeUnknown {
		return MimeTypeForExtension(filename)
	}
	return mt
}

// Encode base64-encodes raw in fixed-size chunks and resolves the payload mime type.
func Encode(raw []byte, declaredMime, filename string) domain.EncodedDocument {
	var buf bytes.Buffer
	buf.Grow(base64.StdEncoding.EncodedLen(len(raw)))

	enc := base64.NewEncoder(base64.StdEncoding, &buf)
	for off := 0; off < len(raw); off += chunkSize {
		end := off + chunkSize
		if end > len(raw) {
			end = len(raw)
		}
		// bytes.Buffer writes never fail.
		_, _ = enc.Write(raw[off:end])
	}
	_ = enc.Close()

	return domain.EncodedDocument{
		Data:     buf.Bytes(),
		MimeType: ResolveMimeType(declaredMime, filename),
		RawSize:  int64(len(raw)),
	}
}
