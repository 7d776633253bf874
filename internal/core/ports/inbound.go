package ports

import (
	"context"
	"io"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

// DocumentSubmitter is the pipeline entry point. It returns immediately with one
// status handle per submitted file; progress continues asynchronously.
type DocumentSubmitter interface {
	Submit(ctx context.Context, files []domain.UploadedFile) []domain.FileStatus
}

// UploadStatusReader exposes tracker snapshots to the presentation layer.
type UploadStatusReader interface {
	Status(fileID string) (domain.FileStatus, bool)
	Statuses() []domain.FileStatus
	Subscribe(buffer int) (<-chan domain.FileStatus, func())
}

// DocumentReader is the read model over persisted document records.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.DocumentRecord, error)
	List(ctx context.Context, filter domain.DocumentFilter) ([]domain.DocumentRecord, error)
	OpenContent(ctx context.Context, id string) (*domain.DocumentRecord, io.ReadCloser, error)
}
