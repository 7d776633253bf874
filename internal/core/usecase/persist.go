package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

// PersistWriter stores the original bytes and then the record that points at
// them. The row is never written before its blob.
type PersistWriter struct {
	storage ports.ObjectStorage
	repo    ports.DocumentRepository
	now     func() time.Time
	logger  *slog.Logger
}

func NewPersistWriter(storage ports.ObjectStorage, repo ports.DocumentRepository, logger *slog.Logger) *PersistWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistWriter{
		storage: storage,
		repo:    repo,
		now:     time.Now,
		logger:  logger,
	}
}

func (w *PersistWriter) Persist(
	ctx context.Context,
	file domain.UploadedFile,
	mimeType string,
	result domain.AnalysisResult,
) (*domain.DocumentRecord, error) {
	now := w.now().UTC()

	key, err := w.saveBlob(ctx, file, mimeType, now)
	if err != nil {
		return nil, &domain.PersistError{Kind: domain.ErrBlobWrite, Key: key, Err: err}
	}

	processedAt := now
	doc := &domain.DocumentRecord{
		ID:            uuid.NewString(),
		Filename:      file.Filename,
		FilePath:      key,
		MimeType:      mimeType,
		FileSize:      int64(len(file.Content)),
		Summary:       result.Summary,
		ExtractedText: result.ExtractedText(),
		Status:        domain.StatusProcessed,
		CreatedAt:     now,
		ProcessedAt:   &processedAt,
	}

	if err := w.repo.Create(ctx, doc); err != nil {
		// The blob stays behind for garbage collection; no compensating delete.
		w.logger.Warn("document_record_write_failed",
			"filename", file.Filename,
			"orphaned_blob", key,
			"error", err,
		)
		return nil, &domain.PersistError{Kind: domain.ErrRecordWrite, Key: key, Err: err}
	}
	return doc, nil
}

// saveBlob writes under "<unix-ms>-<name>" and retries once with a random
// infix if that key is already taken.
func (w *PersistWriter) saveBlob(ctx context.Context, file domain.UploadedFile, mimeType string, now time.Time) (string, error) {
	name := sanitizeFilename(file.Filename)
	key := fmt.Sprintf("%d-%s", now.UnixMilli(), name)

	err := w.storage.Save(ctx, key, mimeType, bytes.NewReader(file.Content))
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, domain.ErrObjectExists) {
		return key, fmt.Errorf("save to object storage: %w", err)
	}

	key = fmt.Sprintf("%d-%s-%s", now.UnixMilli(), uuid.NewString()[:8], name)
	if err := w.storage.Save(ctx, key, mimeType, bytes.NewReader(file.Content)); err != nil {
		return key, fmt.Errorf("save to object storage: %w", err)
	}
	return key, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" {
		base = ""
	}
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
