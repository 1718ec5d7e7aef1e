package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/bofstudio/pipeline-console/internal/client"
	"github.com/bofstudio/pipeline-console/internal/model"
	"github.com/bofstudio/pipeline-console/internal/service"
)

const (
	archiveExpiry    = 24 * time.Hour
	codeExportFailed = "EXPORT_FAILED"
)

// JobTracker persists export job state.
type JobTracker interface {
	UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error
	CompleteJob(ctx context.Context, jobID string, result *model.ExportResult) error
	FailJob(ctx context.Context, jobID string, errMsg string, retry int) error
	IsCanceled(ctx context.Context, jobID string) bool
}

// Notifier pushes job events to live subscribers.
type Notifier interface {
	BroadcastProgress(jobID string, progress int, status model.JobStatus, step string)
	BroadcastComplete(jobID string, result interface{})
	BroadcastError(jobID string, code, message string)
}

// ExportWorker builds archives for queued export jobs.
type ExportWorker struct {
	jobs      JobTracker
	downloads *service.DownloadService
	store     client.ArchiveStore
	notifier  Notifier
	log       zerolog.Logger
}

func NewExportWorker(jobs JobTracker, downloads *service.DownloadService, store client.ArchiveStore, notifier Notifier, log zerolog.Logger) *ExportWorker {
	return &ExportWorker{
		jobs:      jobs,
		downloads: downloads,
		store:     store,
		notifier:  notifier,
		log:       log.With().Str("worker", "export").Logger(),
	}
}

// ProcessTask handles export task processing
func (w *ExportWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload service.ExportTaskPayload
	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w: %w", err, asynq.SkipRetry)
	}

	jobID := taskPayload.JobID
	log := w.log.With().Str("jobId", jobID).Logger()
	log.Info().Msg("starting export job")

	var payload model.ExportJobPayload
	if err := json.Unmarshal(taskPayload.Payload, &payload); err != nil {
		return w.fail(ctx, jobID, "Invalid payload", fmt.Errorf("failed to unmarshal export payload: %w: %w", err, asynq.SkipRetry))
	}

	if w.jobs.IsCanceled(ctx, jobID) {
		log.Info().Msg("export job canceled before start")
		return nil
	}

	w.updateProgress(ctx, jobID, 5, "Resolving download links...")
	urls, err := w.downloads.Resolve(ctx, payload.Keys)
	if err != nil {
		if errors.Is(err, service.ErrNothingResolved) || errors.Is(err, service.ErrEmptySelection) {
			err = fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return w.fail(ctx, jobID, err.Error(), err)
	}

	missing := w.downloads.Unresolved(payload.Keys, urls)

	// A single video needs no archive.
	if len(urls) == 1 {
		result := &model.ExportResult{
			ArchiveName: urls[0].ProductID + ".mp4",
			RedirectURL: urls[0].DownloadURL,
			FileCount:   1,
			Warnings:    missing,
			ExpiresAt:   time.Now().Add(archiveExpiry),
		}
		return w.complete(ctx, jobID, result)
	}

	downloads := w.downloads.WithNames(service.StaticNames(payload.Names))
	built, err := downloads.BuildArchive(ctx, urls, func(done, total int) {
		// Fetching spans 10..85%.
		w.updateProgress(ctx, jobID, 10+75*done/total, fmt.Sprintf("Downloading videos (%d/%d)...", done, total))
	})
	if err != nil {
		if errors.Is(err, service.ErrNothingFetched) {
			err = fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return w.fail(ctx, jobID, err.Error(), err)
	}

	if w.jobs.IsCanceled(ctx, jobID) {
		log.Info().Msg("export job canceled before upload")
		return nil
	}

	w.updateProgress(ctx, jobID, 90, "Uploading archive...")
	key := service.ExportArchiveKey(jobID)
	if err := w.store.PutArchive(ctx, key, built.Archive); err != nil {
		return w.fail(ctx, jobID, "Archive upload failed", err)
	}
	fileURL, err := w.store.SignedURL(ctx, key, archiveExpiry)
	if err != nil {
		return w.fail(ctx, jobID, "Could not sign archive link", err)
	}

	result := &model.ExportResult{
		ArchiveName: built.ArchiveName,
		FileURL:     fileURL,
		Size:        int64(len(built.Archive)),
		FileCount:   built.FileCount,
		Warnings:    append(missing, built.Warnings...),
		ExpiresAt:   time.Now().Add(archiveExpiry),
	}
	return w.complete(ctx, jobID, result)
}

func (w *ExportWorker) complete(ctx context.Context, jobID string, result *model.ExportResult) error {
	if w.jobs.IsCanceled(ctx, jobID) {
		return nil
	}
	if err := w.jobs.CompleteJob(ctx, jobID, result); err != nil {
		return w.fail(ctx, jobID, "Failed to save result", err)
	}
	w.notifier.BroadcastComplete(jobID, result)
	w.log.Info().Str("jobId", jobID).Int("files", result.FileCount).Msg("export job completed")
	return nil
}

func (w *ExportWorker) updateProgress(ctx context.Context, jobID string, progress int, step string) {
	if err := w.jobs.UpdateJobProgress(ctx, jobID, progress, step); err != nil {
		w.log.Warn().Err(err).Str("jobId", jobID).Msg("failed to update progress")
	}
	w.notifier.BroadcastProgress(jobID, progress, model.JobStatusRunning, step)
}

// fail records the failure once asynq will not retry the task, and returns
// err so asynq can decide.
func (w *ExportWorker) fail(ctx context.Context, jobID, errMsg string, err error) error {
	retry, _ := asynq.GetRetryCount(ctx)
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if ok && retry < maxRetry && !errors.Is(err, asynq.SkipRetry) {
		w.log.Warn().Err(err).Str("jobId", jobID).Int("retry", retry).Msg("export attempt failed, will retry")
		return err
	}

	if ferr := w.jobs.FailJob(ctx, jobID, errMsg, retry); ferr != nil {
		w.log.Error().Err(ferr).Str("jobId", jobID).Msg("failed to mark job as failed")
	}
	w.notifier.BroadcastError(jobID, codeExportFailed, errMsg)
	w.log.Error().Err(err).Str("jobId", jobID).Msg("export job failed")
	return err
}
