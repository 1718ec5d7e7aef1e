package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/bofstudio/pipeline-console/internal/model"
)

const (
	TaskTypeExport = "export:archive"
	QueueExports   = "exports"

	jobTTL = 24 * time.Hour
)

// ExportService queues background archive builds and tracks their state in
// redis.
type ExportService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
	names       NameLookup
}

func NewExportService(redisClient *redis.Client, asynqClient *asynq.Client, names NameLookup) *ExportService {
	return &ExportService{
		redis:       redisClient,
		asynqClient: asynqClient,
		names:       names,
	}
}

// StartExport queues an archive build for keys.
func (s *ExportService) StartExport(ctx context.Context, keys []model.ProductKey) (*model.ExportStartResponse, error) {
	keys = dedupeKeys(keys)
	if len(keys) == 0 {
		return nil, ErrEmptySelection
	}

	jobID := uuid.New().String()
	now := time.Now()

	payload := &model.ExportJobPayload{Keys: keys, Names: map[string]string{}}
	if s.names != nil {
		for _, k := range keys {
			if name, ok := s.names.ProductName(k); ok {
				payload.Names[k.String()] = name
			}
		}
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job := &model.Job{
		ID:        jobID,
		Type:      model.JobTypeExport,
		Status:    model.JobStatusQueued,
		Payload:   payloadBytes,
		CreatedAt: now,
	}
	if err := s.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newExportTask(jobID, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	_, err = s.asynqClient.EnqueueContext(ctx, task,
		asynq.Queue(QueueExports),
		asynq.MaxRetry(2),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(jobTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.ExportStartResponse{
		JobID:     jobID,
		Status:    model.JobStatusQueued,
		FileCount: len(keys),
		CreatedAt: now,
	}, nil
}

// GetStatus returns the current state of an export job.
func (s *ExportService) GetStatus(ctx context.Context, jobID string) (*model.ExportStatusResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	resp := &model.ExportStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.Status == model.JobStatusSucceeded && len(job.Result) > 0 {
		var result model.ExportResult
		if err := json.Unmarshal(job.Result, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		resp.Result = &result
	}
	return resp, nil
}

// CancelExport marks a queued or running export as canceled. The worker
// checks the flag between steps.
func (s *ExportService) CancelExport(ctx context.Context, jobID string) (*model.ExportStatusResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.IsFinished() {
		return nil, ErrJobFinished
	}

	now := time.Now()
	job.Status = model.JobStatusCanceled
	job.CompletedAt = &now
	if err := s.saveJob(ctx, job); err != nil {
		return nil, err
	}
	return s.GetStatus(ctx, jobID)
}

// IsCanceled reports whether the job was canceled by the operator.
func (s *ExportService) IsCanceled(ctx context.Context, jobID string) bool {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return false
	}
	return job.Status == model.JobStatusCanceled
}

// UpdateJobProgress updates job progress (called by worker)
func (s *ExportService) UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsFinished() {
		return nil
	}

	job.Progress = progress
	job.CurrentStep = step
	if job.Status == model.JobStatusQueued {
		job.Status = model.JobStatusRunning
		now := time.Now()
		job.StartedAt = &now
	}
	return s.saveJob(ctx, job)
}

// CompleteJob marks job as completed (called by worker)
func (s *ExportService) CompleteJob(ctx context.Context, jobID string, result *model.ExportResult) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return err
	}

	now := time.Now()
	job.Status = model.JobStatusSucceeded
	job.Progress = 100
	job.CurrentStep = ""
	job.Result = resultBytes
	job.CompletedAt = &now
	return s.saveJob(ctx, job)
}

// FailJob marks job as failed (called by worker)
func (s *ExportService) FailJob(ctx context.Context, jobID string, errMsg string, retry int) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	now := time.Now()
	job.Status = model.JobStatusFailed
	job.Error = &errMsg
	job.RetryCount = retry
	job.CompletedAt = &now
	return s.saveJob(ctx, job)
}

func jobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

func (s *ExportService) saveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, jobKey(job.ID), data, jobTTL).Err()
}

func (s *ExportService) getJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ExportTaskPayload is the asynq task body.
type ExportTaskPayload struct {
	JobID   string          `json:"jobId"`
	Payload json.RawMessage `json:"payload"`
}

func newExportTask(jobID string, payload []byte) (*asynq.Task, error) {
	data, err := json.Marshal(ExportTaskPayload{JobID: jobID, Payload: payload})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeExport, data), nil
}

// StaticNames is a NameLookup over a fixed "batchId/productId" -> name map.
type StaticNames map[string]string

func (n StaticNames) ProductName(key model.ProductKey) (string, bool) {
	name, ok := n[key.String()]
	return name, ok
}

// ExportArchiveKey is the storage key of a job's archive.
func ExportArchiveKey(jobID string) string {
	return fmt.Sprintf("exports/%s.zip", jobID)
}
