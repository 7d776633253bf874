package usecase

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// DocumentCatalog is the read side over persisted records and their blobs.
type DocumentCatalog struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
}

func NewDocumentCatalog(repo ports.DocumentRepository, storage ports.ObjectStorage) *DocumentCatalog {
	return &DocumentCatalog{repo: repo, storage: storage}
}

func (c *DocumentCatalog) GetByID(ctx context.Context, id string) (*domain.DocumentRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get document", fmt.Errorf("document id is required"))
	}
	return c.repo.GetByID(ctx, id)
}

// List returns records newest first. An empty status means processed.
func (c *DocumentCatalog) List(ctx context.Context, filter domain.DocumentFilter) ([]domain.DocumentRecord, error) {
	switch filter.Status {
	case "":
		filter.Status = domain.StatusProcessed
	case domain.StatusProcessed, domain.StatusProcessing, domain.StatusError:
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "list documents", fmt.Errorf("unknown status %q", filter.Status))
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return c.repo.List(ctx, filter)
}

// OpenContent returns the record and a reader over its original bytes.
func (c *DocumentCatalog) OpenContent(ctx context.Context, id string) (*domain.DocumentRecord, io.ReadCloser, error) {
	doc, err := c.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	reader, err := c.storage.Open(ctx, doc.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open document content: %w", err)
	}
	return doc, reader, nil
}
