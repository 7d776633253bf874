package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

// DocumentRepository persists document records. Records are append-only.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.DocumentRecord) error
	GetByID(ctx context.Context, id string) (*domain.DocumentRecord, error)
	List(ctx context.Context, filter domain.DocumentFilter) ([]domain.DocumentRecord, error)
}

// ObjectStorage stores original document bytes. Save must fail with
// domain.ErrObjectExists instead of overwriting an existing key.
type ObjectStorage interface {
	Save(ctx context.Context, key, contentType string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// DocumentAnalyzer sends an encoded document to the remote model service and
// returns its free-form text response.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, doc domain.EncodedDocument) (string, error)
}

// Notifier delivers user-facing notifications about individual files.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// DocumentEventPublisher announces newly persisted records.
type DocumentEventPublisher interface {
	PublishDocumentProcessed(ctx context.Context, doc *domain.DocumentRecord) error
}

// PipelineObserver receives pipeline telemetry.
type PipelineObserver interface {
	StartFile()
	FinishFile(outcome string, duration time.Duration)
	RecordRejection(reason string)
	RecordParseDegraded()
	RecordStageFailure(stage string)
}
