package model

import "time"

// Job represents a background job in the system
type Job struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Payload     []byte     `json:"payload,omitempty"`
	Result      []byte     `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	RetryCount  int        `json:"retryCount"`
}

// IsFinished reports whether the job reached a final state.
func (j *Job) IsFinished() bool {
	switch j.Status {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// Job types
const (
	JobTypeExport = "export"
)

// ExportJobPayload contains the data for an export job
type ExportJobPayload struct {
	Keys []ProductKey `json:"keys"`
	// Names maps "batchId/productId" to the product name used for the
	// archive entry.
	Names map[string]string `json:"names,omitempty"`
}
