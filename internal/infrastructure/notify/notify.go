package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

// Log writes notifications as structured log lines. It is the default sink when
// no broker is configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, n domain.Notification) error {
	level := slog.LevelInfo
	if n.Level == domain.NotifyError {
		level = slog.LevelWarn
	}
	l.logger.LogAttrs(ctx, level, "user_notification",
		slog.String("title", n.Title),
		slog.String("message", n.Message),
		slog.String("file_id", n.FileID),
		slog.String("filename", n.Filename),
		slog.String("document_id", n.DocumentID),
	)
	return nil
}

// Fanout delivers to every sink and joins their errors.
type Fanout []ports.Notifier

func (f Fanout) Notify(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
