package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

func newTestWriter(storage *storageFake, repo *repoFake) *PersistWriter {
	w := NewPersistWriter(storage, repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return w
}

func TestPersistWritesBlobThenRecord(t *testing.T) {
	storage := newStorageFake()
	repo := &repoFake{}
	w := newTestWriter(storage, repo)

	file := domain.UploadedFile{Filename: "Quarterly Report.pdf", Content: []byte("%PDF-1.4")}
	result := domain.AnalysisResult{Summary: "S", Author: "A", Entity: "E", KeyInfo: "K"}

	doc, err := w.Persist(context.Background(), file, "application/pdf", result)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if doc.FilePath != "1700000000000-Quarterly_Report.pdf" {
		t.Fatalf("unexpected key %q", doc.FilePath)
	}
	if string(storage.objects[doc.FilePath]) != "%PDF-1.4" {
		t.Fatalf("blob bytes differ from upload")
	}
	if storage.types[doc.FilePath] != "application/pdf" {
		t.Fatalf("unexpected content type %q", storage.types[doc.FilePath])
	}
	if doc.Status != domain.StatusProcessed || doc.ProcessedAt == nil {
		t.Fatalf("unexpected record status %+v", doc)
	}
	if doc.ExtractedText != "Author: A\nEntity: E\nKey Info: K" {
		t.Fatalf("unexpected extracted text %q", doc.ExtractedText)
	}
	if doc.FileSize != int64(len(file.Content)) || doc.DepartmentID != nil || doc.CategoryID != nil {
		t.Fatalf("unexpected record %+v", doc)
	}
	if repo.count() != 1 {
		t.Fatalf("expected one row, got %d", repo.count())
	}
}

func TestPersistBlobFailureWritesNoRow(t *testing.T) {
	storage := newStorageFake()
	storage.err = errors.New("bucket unavailable")
	repo := &repoFake{}

	_, err := newTestWriter(storage, repo).Persist(context.Background(), domain.UploadedFile{Filename: "a.txt", Content: []byte("x")}, "text/plain", domain.AnalysisResult{})
	if !errors.Is(err, domain.ErrBlobWrite) {
		t.Fatalf("expected ErrBlobWrite, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "file upload failed:") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if repo.count() != 0 {
		t.Fatalf("expected zero rows, got %d", repo.count())
	}
}

func TestPersistRecordFailureLeavesBlob(t *testing.T) {
	storage := newStorageFake()
	repo := &repoFake{err: errors.New("connection refused")}

	_, err := newTestWriter(storage, repo).Persist(context.Background(), domain.UploadedFile{Filename: "a.txt", Content: []byte("x")}, "text/plain", domain.AnalysisResult{})
	if !errors.Is(err, domain.ErrRecordWrite) {
		t.Fatalf("expected ErrRecordWrite, got %v", err)
	}
	var pErr *domain.PersistError
	if !errors.As(err, &pErr) || pErr.Key == "" {
		t.Fatalf("expected orphaned key in error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "database error:") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if storage.count() != 1 {
		t.Fatalf("expected the blob to remain, got %d objects", storage.count())
	}
}

func TestPersistRetriesOnKeyCollision(t *testing.T) {
	storage := newStorageFake()
	repo := &repoFake{}
	w := newTestWriter(storage, repo)
	file := domain.UploadedFile{Filename: "a.txt", Content: []byte("x")}

	first, err := w.Persist(context.Background(), file, "text/plain", domain.AnalysisResult{})
	if err != nil {
		t.Fatalf("first Persist() error = %v", err)
	}
	second, err := w.Persist(context.Background(), file, "text/plain", domain.AnalysisResult{})
	if err != nil {
		t.Fatalf("second Persist() error = %v", err)
	}
	if first.FilePath == second.FilePath {
		t.Fatalf("expected distinct keys, both %q", first.FilePath)
	}
	if !strings.HasPrefix(second.FilePath, "1700000000000-") || !strings.HasSuffix(second.FilePath, "-a.txt") {
		t.Fatalf("unexpected retry key %q", second.FilePath)
	}
	if storage.count() != 2 || repo.count() != 2 {
		t.Fatalf("expected two blobs and two rows, got %d/%d", storage.count(), repo.count())
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report.pdf":          "report.pdf",
		"my file (1).docx":    "my_file__1_.docx",
		"../../etc/passwd":    "passwd",
		`C:\Users\me\a b.txt`: "a_b.txt",
		"":                    "document.bin",
		"отчёт.csv":           "отчёт.csv",
		"報告 2024.pdf":          "報告_2024.pdf",
		"a\x00b\tc.txt":       "a_b_c.txt",
		"résumé\u0301.doc":    "résumé\u0301.doc",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPersistRecordsStoredByteCount(t *testing.T) {
	storage := newStorageFake()
	w := newTestWriter(storage, &repoFake{})

	file := domain.UploadedFile{Filename: "notes.txt", Content: []byte("hello"), DeclaredSize: 4096}
	doc, err := w.Persist(context.Background(), file, "text/plain", domain.AnalysisResult{})
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if doc.FileSize != 5 || int64(len(storage.objects[doc.FilePath])) != doc.FileSize {
		t.Fatalf("file_size %d does not match stored blob of %d bytes", doc.FileSize, len(storage.objects[doc.FilePath]))
	}
}

func TestPersistKeepsNonLatinFilename(t *testing.T) {
	w := newTestWriter(newStorageFake(), &repoFake{})

	doc, err := w.Persist(context.Background(), domain.UploadedFile{Filename: "отчёт.pdf", Content: []byte("%PDF")}, "application/pdf", domain.AnalysisResult{})
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if doc.FilePath != "1700000000000-отчёт.pdf" {
		t.Fatalf("unexpected key %q", doc.FilePath)
	}
}
