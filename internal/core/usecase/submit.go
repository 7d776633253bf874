package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/encoding"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

const (
	stageValidate = "validate"
	stageAnalyze  = "analyze"
	stagePersist  = "persist"
)

type SubmitOptions struct {
	// MaxConcurrent bounds pipelines running at once; 0 means unbounded.
	MaxConcurrent int64
	Logger        *slog.Logger
	Observer      ports.PipelineObserver
	Events        ports.DocumentEventPublisher
}

// SubmitUseCase runs validate -> encode -> analyze -> parse -> persist for each
// submitted file in its own goroutine, driving that file's Tracker.
type SubmitUseCase struct {
	policy   UploadPolicy
	analyzer ports.DocumentAnalyzer
	writer   *PersistWriter
	notifier ports.Notifier
	board    *StatusBoard

	events   ports.DocumentEventPublisher
	observer ports.PipelineObserver
	logger   *slog.Logger
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
}

func NewSubmitUseCase(
	policy UploadPolicy,
	analyzer ports.DocumentAnalyzer,
	writer *PersistWriter,
	notifier ports.Notifier,
	board *StatusBoard,
	opts SubmitOptions,
) *SubmitUseCase {
	uc := &SubmitUseCase{
		policy:   policy,
		analyzer: analyzer,
		writer:   writer,
		notifier: notifier,
		board:    board,
		events:   opts.Events,
		observer: opts.Observer,
		logger:   opts.Logger,
	}
	if uc.observer == nil {
		uc.observer = nopObserver{}
	}
	if uc.logger == nil {
		uc.logger = slog.Default()
	}
	if opts.MaxConcurrent > 0 {
		uc.sem = semaphore.NewWeighted(opts.MaxConcurrent)
	}
	return uc
}

// Submit validates every file synchronously and starts a pipeline run for each
// accepted one. It returns the initial snapshots; rejected files are already in
// the error state.
func (uc *SubmitUseCase) Submit(ctx context.Context, files []domain.UploadedFile) []domain.FileStatus {
	trackers := uc.Start(ctx, files)
	out := make([]domain.FileStatus, 0, len(trackers))
	for _, tr := range trackers {
		out = append(out, tr.Snapshot())
	}
	return out
}

// Start is Submit for in-process callers that want the live trackers.
func (uc *SubmitUseCase) Start(ctx context.Context, files []domain.UploadedFile) []*Tracker {
	runCtx := context.WithoutCancel(ctx)
	trackers := make([]*Tracker, 0, len(files))

	for _, file := range files {
		if file.ID == "" {
			file.ID = uuid.NewString()
		}
		tr := uc.board.track(file.ID, file.Filename)
		trackers = append(trackers, tr)

		if err := uc.policy.Validate(file); err != nil {
			uc.reject(runCtx, file, tr, err)
			continue
		}

		uc.wg.Add(1)
		go uc.run(runCtx, file, tr)
	}
	return trackers
}

// Wait blocks until every started pipeline run has reached a terminal state.
func (uc *SubmitUseCase) Wait() {
	uc.wg.Wait()
}

func (uc *SubmitUseCase) Status(fileID string) (domain.FileStatus, bool) {
	return uc.board.Status(fileID)
}

func (uc *SubmitUseCase) Statuses() []domain.FileStatus {
	return uc.board.Statuses()
}

func (uc *SubmitUseCase) Subscribe(buffer int) (<-chan domain.FileStatus, func()) {
	return uc.board.Subscribe(buffer)
}

func (uc *SubmitUseCase) reject(ctx context.Context, file domain.UploadedFile, tr *Tracker, err error) {
	reason := "invalid"
	title := "Upload rejected"
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		reason = vErr.Reason.Error()
		title = vErr.Title()
	}
	uc.observer.RecordRejection(reason)
	uc.logger.Info("upload_rejected", "file_id", file.ID, "filename", file.Filename, "reason", reason, "size", file.Size())

	_ = tr.fail(err.Error())
	uc.notify(ctx, domain.Notification{
		Level:    domain.NotifyError,
		Title:    title,
		Message:  err.Error(),
		FileID:   file.ID,
		Filename: file.Filename,
	})
}

func (uc *SubmitUseCase) run(ctx context.Context, file domain.UploadedFile, tr *Tracker) {
	defer uc.wg.Done()

	if uc.sem != nil {
		// runCtx is never cancelled, so Acquire only returns once a slot frees up.
		_ = uc.sem.Acquire(ctx, 1)
		defer uc.sem.Release(1)
	}

	start := time.Now()
	uc.observer.StartFile()

	doc, result, stage, err := uc.process(ctx, file, tr)
	if err != nil {
		uc.observer.RecordStageFailure(stage)
		uc.observer.FinishFile("error", time.Since(start))
		uc.logger.Error("pipeline_stage_failed",
			"file_id", file.ID,
			"filename", file.Filename,
			"stage", stage,
			"error", err,
		)
		_ = tr.fail(err.Error())
		uc.notify(ctx, domain.Notification{
			Level:    domain.NotifyError,
			Title:    "Processing failed",
			Message:  fmt.Sprintf("Failed to process %s. %s", file.Filename, err.Error()),
			FileID:   file.ID,
			Filename: file.Filename,
		})
		return
	}

	_ = tr.complete(result, doc.ID)
	uc.observer.FinishFile("completed", time.Since(start))
	uc.logger.Info("document_processed",
		"file_id", file.ID,
		"document_id", doc.ID,
		"filename", file.Filename,
		"file_path", doc.FilePath,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)

	if uc.events != nil {
		if err := uc.events.PublishDocumentProcessed(ctx, doc); err != nil {
			uc.logger.Warn("document_event_publish_failed", "document_id", doc.ID, "error", err)
		}
	}
	uc.notify(ctx, domain.Notification{
		Level:      domain.NotifyInfo,
		Title:      "File processed successfully",
		Message:    fmt.Sprintf("%s has been analyzed and added to your history.", file.Filename),
		FileID:     file.ID,
		Filename:   file.Filename,
		DocumentID: doc.ID,
	})
}

func (uc *SubmitUseCase) process(
	ctx context.Context,
	file domain.UploadedFile,
	tr *Tracker,
) (*domain.DocumentRecord, domain.AnalysisResult, string, error) {
	if err := tr.markProcessing(); err != nil {
		return nil, domain.AnalysisResult{}, stageValidate, err
	}

	payload := encoding.Encode(file.Content, file.DeclaredMimeType, file.Filename)

	raw, err := uc.analyzer.Analyze(ctx, payload)
	if err != nil {
		return nil, domain.AnalysisResult{}, stageAnalyze, err
	}

	result, degraded := ParseAnalysis(raw)
	if degraded {
		uc.observer.RecordParseDegraded()
		uc.logger.Debug("analysis_parse_degraded", "file_id", file.ID, "filename", file.Filename)
	}

	doc, err := uc.writer.Persist(ctx, file, payload.MimeType, result)
	if err != nil {
		return nil, domain.AnalysisResult{}, stagePersist, err
	}
	return doc, result, "", nil
}

func (uc *SubmitUseCase) notify(ctx context.Context, n domain.Notification) {
	if uc.notifier == nil {
		return
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if err := uc.notifier.Notify(ctx, n); err != nil {
		uc.logger.Warn("notification_failed", "file_id", n.FileID, "title", n.Title, "error", err)
	}
}

type nopObserver struct{}

func (nopObserver) StartFile() {}
func (nopObserver) FinishFile(string, time.Duration) {}
func (nopObserver) RecordRejection(string) {}
func (nopObserver) RecordParseDegraded() {}
func (nopObserver) RecordStageFailure(string) {}
