package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/document-intake/internal/config"
	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/infrastructure/notify"
	"github.com/kirillkom/document-intake/internal/infrastructure/queue/nats"
	"github.com/kirillkom/document-intake/internal/observability/logging"
	"github.com/kirillkom/document-intake/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_invalid", "error", err)
		os.Exit(1)
	}
	service := cfg.ServiceName + "-notifier"
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Options{
		NotificationSubject: cfg.NATSNotificationSubject,
		ProcessedSubject:    cfg.NATSProcessedSubject,
		ClientName:          service,
		Logger:              logger,
	})
	if err != nil {
		logger.Error("queue_connect_failed", "error", err)
		os.Exit(1)
	}
	defer queue.Close()

	registry := prometheus.NewRegistry()
	pipelineMetrics := metrics.NewPipelineMetrics(registry, service)
	sink := notify.NewLog(logger)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.NotifierMetricsPort,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("notifier_subscribed", "subject", cfg.NATSNotificationSubject, "group", cfg.NotifierQueueGroup)
		return queue.SubscribeNotifications(groupCtx, cfg.NotifierQueueGroup, func(ctx context.Context, n domain.Notification) error {
			pipelineMetrics.RecordNotification(string(n.Level))
			return sink.Notify(ctx, n)
		})
	})
	group.Go(func() error {
		return queue.SubscribeDocumentProcessed(groupCtx, cfg.NotifierQueueGroup, func(_ context.Context, event domain.DocumentProcessedEvent) error {
			logger.Info("document_processed_event",
				"document_id", event.DocumentID,
				"filename", event.Filename,
				"file_path", event.FilePath,
				"mime_type", event.MimeType,
			)
			return nil
		})
	})
	group.Go(func() error {
		logger.Info("notifier_metrics_listening", "port", cfg.NotifierMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("notifier_stopped", "error", err)
		os.Exit(1)
	}
}
