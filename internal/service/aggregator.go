package service

import "github.com/bofstudio/pipeline-console/internal/model"

// Progress is the bucketed view of a batch used for progress bars.
// Completed+Failed+ReviewPending+Processing+Pending == Total.
type Progress struct {
	Total         int `json:"total"`
	Completed     int `json:"completed"`
	Failed        int `json:"failed"`
	ReviewPending int `json:"reviewPending"`
	Processing    int `json:"processing"`
	Pending       int `json:"pending"`
}

// ProgressPercent holds the bar segment widths in percent.
type ProgressPercent struct {
	Completed     float64 `json:"completed"`
	Failed        float64 `json:"failed"`
	ReviewPending float64 `json:"reviewPending"`
	Processing    float64 `json:"processing"`
}

// Aggregate buckets server status counts. Missing or unknown keys count as
// zero, negative counts are ignored, and buckets are capped so they never
// exceed total.
func Aggregate(counts map[string]int, total int) Progress {
	if total <= 0 {
		return Progress{}
	}

	get := func(statuses ...model.ProductStatus) int {
		n := 0
		for _, s := range statuses {
			if v := counts[string(s)]; v > 0 {
				n += v
			}
		}
		return n
	}

	remaining := total
	take := func(n int) int {
		if n > remaining {
			n = remaining
		}
		remaining -= n
		return n
	}

	p := Progress{Total: total}
	p.Completed = take(get(model.StatusCompleted, model.StatusReviewed))
	p.Failed = take(get(model.StatusFailed, model.StatusRejected))
	p.ReviewPending = take(get(model.StatusImageReviewPending))
	p.Processing = take(get(model.StatusImageGenerating, model.StatusImageGenerated, model.StatusVideoGenerating))
	p.Pending = remaining
	return p
}

// Percent returns n as a share of the total, or 0 for an empty batch.
func (p Progress) Percent(n int) float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(n) * 100 / float64(p.Total)
}

func (p Progress) Percentages() ProgressPercent {
	return ProgressPercent{
		Completed:     p.Percent(p.Completed),
		Failed:        p.Percent(p.Failed),
		ReviewPending: p.Percent(p.ReviewPending),
		Processing:    p.Percent(p.Processing),
	}
}

var settledStatuses = map[model.ProductStatus]bool{
	model.StatusCompleted:          true,
	model.StatusFailed:             true,
	model.StatusImageReviewPending: true,
}

// AllDone reports whether a batch needs no more live updates: it was
// cancelled, or every product is completed, failed or parked for review.
// A batch with no products yet is not done.
func AllDone(d *model.BatchDetail) bool {
	if d == nil {
		return false
	}
	if model.ProductStatus(d.Summary.Status) == model.StatusCancelled {
		return true
	}
	if len(d.Products) == 0 {
		return false
	}
	for _, p := range d.Products {
		if !settledStatuses[model.ProductStatus(p.Status)] {
			return false
		}
	}
	return true
}
