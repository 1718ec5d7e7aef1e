package model

import "time"

// DownloadRequest selects stored videos for retrieval.
type DownloadRequest struct {
	Keys []ProductKey `json:"keys" validate:"required,min=1,max=500,dive"`
}

// DownloadResult is the outcome of a bulk retrieval. Exactly one of
// RedirectURL or Archive is set.
type DownloadResult struct {
	RedirectURL string   `json:"redirectUrl,omitempty"`
	ArchiveName string   `json:"archiveName,omitempty"`
	Archive     []byte   `json:"-"`
	FileCount   int      `json:"fileCount"`
	Warnings    []string `json:"warnings,omitempty"`
}

// ExportStartResponse is returned when a background export is queued.
type ExportStartResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	FileCount int       `json:"fileCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// ExportStatusResponse reports progress of a background export.
type ExportStatusResponse struct {
	JobID       string        `json:"jobId"`
	Status      JobStatus     `json:"status"`
	Progress    int           `json:"progress"`
	CurrentStep string        `json:"currentStep,omitempty"`
	Error       *string       `json:"error,omitempty"`
	Result      *ExportResult `json:"result,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// ExportResult is stored on a succeeded export job.
type ExportResult struct {
	ArchiveName string    `json:"archiveName"`
	FileURL     string    `json:"fileUrl,omitempty"`
	RedirectURL string    `json:"redirectUrl,omitempty"`
	Size        int64     `json:"size"`
	FileCount   int       `json:"fileCount"`
	Warnings    []string  `json:"warnings,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
