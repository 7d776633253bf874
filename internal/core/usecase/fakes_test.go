package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"sync"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

type storageFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	saves   int
	err     error
}

func newStorageFake() *storageFake {
	return &storageFake{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *storageFake) Save(_ context.Context, key, contentType string, data io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.err != nil {
		return f.err
	}
	if _, ok := f.objects[key]; ok {
		return domain.ErrObjectExists
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[key] = raw
	f.types[key] = contentType
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return nil, domain.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type repoFake struct {
	mu   sync.Mutex
	rows []domain.DocumentRecord
	err  error
}

func (f *repoFake) Create(_ context.Context, doc *domain.DocumentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, *doc)
	return nil
}

func (f *repoFake) GetByID(_ context.Context, id string) (*domain.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id {
			copyRow := row
			return &copyRow, nil
		}
	}
	return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
}

func (f *repoFake) List(_ context.Context, filter domain.DocumentFilter) ([]domain.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DocumentRecord
	for _, row := range f.rows {
		if row.Status == filter.Status {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *repoFake) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type analyzerFunc func(ctx context.Context, doc domain.EncodedDocument) (string, error)

func (f analyzerFunc) Analyze(ctx context.Context, doc domain.EncodedDocument) (string, error) {
	return f(ctx, doc)
}

type notifierFake struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (f *notifierFake) Notify(_ context.Context, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

func (f *notifierFake) all() []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Notification(nil), f.sent...)
}

func mustDecode(data []byte) []byte {
	raw, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		panic(err)
	}
	return raw
}
