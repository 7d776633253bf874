package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

const writeTimeout = 2 * time.Minute

type Config struct {
	Bucket string
	// EmulatorHost points the client at a fake-gcs-server style emulator.
	EmulatorHost    string
	CredentialsFile string
}

// Bucket stores document blobs as objects in a single GCS bucket.
type Bucket struct {
	client *storage.Client
	bucket string
}

func New(ctx context.Context, cfg Config) (*Bucket, error) {
	name := strings.TrimSpace(cfg.Bucket)
	if name == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}

	var opts []option.ClientOption
	if host := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"); host != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", host)
		opts = append(opts, option.WithoutAuthentication())
	} else {
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Bucket{client: client, bucket: name}, nil
}

// Save creates the object only if it does not already exist.
func (b *Bucket) Save(ctx context.Context, key, contentType string, data io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	obj := b.client.Bucket(b.bucket).Object(key).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %s: %w", key, mapError(err))
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close object writer %s: %w", key, mapError(err))
	}
	return nil
}

func (b *Bucket) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", key, mapError(err))
	}
	return r, nil
}

func (b *Bucket) Close() error {
	return b.client.Close()
}

func mapError(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return domain.ErrObjectNotFound
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusPreconditionFailed:
			return domain.ErrObjectExists
		case http.StatusNotFound:
			return domain.ErrObjectNotFound
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return domain.WrapError(domain.ErrTemporary, "gcs", err)
		}
	}
	return err
}
