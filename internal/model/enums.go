package model

// ProductStatus is the lifecycle stage of a single product within a batch.
// The backend is authoritative; the console only reads these values.
type ProductStatus string

const (
	StatusPending            ProductStatus = "PENDING"
	StatusImageGenerating    ProductStatus = "IMAGE_GENERATING"
	StatusImageGenerated     ProductStatus = "IMAGE_GENERATED"
	StatusImageReviewPending ProductStatus = "IMAGE_REVIEW_PENDING"
	StatusReviewed           ProductStatus = "REVIEWED"
	StatusRejected           ProductStatus = "REJECTED"
	StatusVideoGenerating    ProductStatus = "VIDEO_GENERATING"
	StatusCompleted          ProductStatus = "COMPLETED"
	StatusFailed             ProductStatus = "FAILED"
	StatusCancelled          ProductStatus = "CANCELLED"

	// StatusProcessing only appears as an aggregate batch status.
	StatusProcessing ProductStatus = "PROCESSING"
)

var ProductStatuses = []ProductStatus{
	StatusPending, StatusImageGenerating, StatusImageGenerated,
	StatusImageReviewPending, StatusReviewed, StatusRejected,
	StatusVideoGenerating, StatusCompleted, StatusFailed, StatusCancelled,
}

// IsTerminal reports whether no further transition is expected.
func (s ProductStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Badge classes understood by the UI.
const (
	BadgePending    = "badge-pending"
	BadgeProcessing = "badge-processing"
	BadgeReview     = "badge-review"
	BadgeCompleted  = "badge-completed"
	BadgeFailed     = "badge-failed"
)

// StatusDisplay is the label and badge class rendered for a status.
type StatusDisplay struct {
	Label string `json:"label"`
	Class string `json:"class"`
}

var statusDisplays = map[ProductStatus]StatusDisplay{
	StatusPending:            {Label: "Pending", Class: BadgePending},
	StatusImageGenerating:    {Label: "Generating Image", Class: BadgeProcessing},
	StatusImageGenerated:     {Label: "Image Ready", Class: BadgeProcessing},
	StatusImageReviewPending: {Label: "Awaiting Review", Class: BadgeReview},
	StatusReviewed:           {Label: "Approved", Class: BadgeProcessing},
	StatusRejected:           {Label: "Rejected", Class: BadgeFailed},
	StatusVideoGenerating:    {Label: "Generating Video", Class: BadgeProcessing},
	StatusCompleted:          {Label: "Completed", Class: BadgeCompleted},
	StatusFailed:             {Label: "Failed", Class: BadgeFailed},
	StatusCancelled:          {Label: "Cancelled", Class: BadgeFailed},
	StatusProcessing:         {Label: "Processing", Class: BadgeProcessing},
}

// StatusInfo maps any status string to its display. Unknown values render
// with the raw status as label and the neutral class.
func StatusInfo(status string) StatusDisplay {
	if d, ok := statusDisplays[ProductStatus(status)]; ok {
		return d
	}
	return StatusDisplay{Label: status, Class: BadgePending}
}

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// ReviewVerdict is the decision value sent to the review endpoint.
type ReviewVerdict string

const (
	VerdictApproved ReviewVerdict = "approved"
	VerdictRejected ReviewVerdict = "rejected"
)
