package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
)

const (
	DefaultNotificationSubject = "documents.notifications"
	DefaultProcessedSubject    = "documents.processed"
)

// Queue publishes user notifications and processed-document events and lets
// cmd/notifier consume them through a queue group.
type Queue struct {
	conn                *nats.Conn
	notificationSubject string
	processedSubject    string
	executor            *resilience.Executor
	logger              *slog.Logger
}

type Options struct {
	NotificationSubject  string
	ProcessedSubject     string
	ClientName           string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url string) (*Queue, error) {
	return NewWithOptions(url, Options{})
}

func NewWithOptions(url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	name := options.ClientName
	if name == "" {
		name = "document-intake"
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	q := &Queue{
		conn:                conn,
		notificationSubject: options.NotificationSubject,
		processedSubject:    options.ProcessedSubject,
		executor:            options.ResilienceExecutor,
		logger:              logger,
	}
	if q.notificationSubject == "" {
		q.notificationSubject = DefaultNotificationSubject
	}
	if q.processedSubject == "" {
		q.processedSubject = DefaultProcessedSubject
	}
	return q, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) Notify(ctx context.Context, n domain.Notification) error {
	return q.publishJSON(ctx, q.notificationSubject, n)
}

func (q *Queue) PublishDocumentProcessed(ctx context.Context, doc *domain.DocumentRecord) error {
	return q.publishJSON(ctx, q.processedSubject, domain.NewDocumentProcessedEvent(doc))
}

func (q *Queue) publishJSON(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", subject, err)
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeNotifications blocks until ctx is done, then drains the subscription.
func (q *Queue) SubscribeNotifications(ctx context.Context, group string, handler func(context.Context, domain.Notification) error) error {
	return subscribeJSON(ctx, q, q.notificationSubject, group, handler)
}

func (q *Queue) SubscribeDocumentProcessed(ctx context.Context, group string, handler func(context.Context, domain.DocumentProcessedEvent) error) error {
	return subscribeJSON(ctx, q, q.processedSubject, group, handler)
}

func subscribeJSON[T any](ctx context.Context, q *Queue, subject, group string, handler func(context.Context, T) error) error {
	sub, err := q.conn.QueueSubscribe(subject, group, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		var payload T
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			q.logger.Warn("nats_message_decode_failed", "subject", subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, payload); err != nil {
			q.logger.Error("nats_handler_failed", "subject", subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
