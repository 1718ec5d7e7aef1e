package service

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bofstudio/pipeline-console/internal/model"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name   string
		counts map[string]int
		total  int
		want   Progress
	}{
		{
			name:   "empty batch",
			counts: map[string]int{"COMPLETED": 3},
			total:  0,
			want:   Progress{},
		},
		{
			name:   "missing keys count as zero",
			counts: map[string]int{},
			total:  4,
			want:   Progress{Total: 4, Pending: 4},
		},
		{
			name: "buckets",
			counts: map[string]int{
				"COMPLETED":            2,
				"REVIEWED":             1,
				"FAILED":               1,
				"REJECTED":             1,
				"IMAGE_REVIEW_PENDING": 2,
				"IMAGE_GENERATING":     1,
				"VIDEO_GENERATING":     1,
				"PENDING":              1,
			},
			total: 10,
			want:  Progress{Total: 10, Completed: 3, Failed: 2, ReviewPending: 2, Processing: 2, Pending: 1},
		},
		{
			name:   "overcount is capped",
			counts: map[string]int{"COMPLETED": 7, "FAILED": 5},
			total:  8,
			want:   Progress{Total: 8, Completed: 7, Failed: 1},
		},
		{
			name:   "negative counts ignored",
			counts: map[string]int{"COMPLETED": -4, "FAILED": 1},
			total:  2,
			want:   Progress{Total: 2, Failed: 1, Pending: 1},
		},
		{
			name:   "unknown statuses ignored",
			counts: map[string]int{"EXPLODED": 9},
			total:  3,
			want:   Progress{Total: 3, Pending: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.counts, tt.total))
		})
	}
}

func TestAggregate_BucketsAlwaysSumToTotal(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		counts := map[string]int{}
		for _, s := range model.ProductStatuses {
			counts[string(s)] = rng.Intn(20) - 5
		}
		total := rng.Intn(60)

		p := Aggregate(counts, total)
		if total == 0 {
			assert.Equal(t, Progress{}, p)
			continue
		}
		sum := p.Completed + p.Failed + p.ReviewPending + p.Processing + p.Pending
		assert.Equal(t, total, sum, "counts=%v total=%d", counts, total)
		for _, n := range []int{p.Completed, p.Failed, p.ReviewPending, p.Processing, p.Pending} {
			assert.GreaterOrEqual(t, n, 0)
		}

		pct := p.Percentages()
		assert.LessOrEqual(t, pct.Completed+pct.Failed+pct.ReviewPending+pct.Processing, 100.0+1e-9)
	}
}

func TestAllDone(t *testing.T) {
	withStatuses := func(summary string, statuses ...model.ProductStatus) *model.BatchDetail {
		d := &model.BatchDetail{Summary: model.Batch{Status: summary}}
		for _, s := range statuses {
			d.Products = append(d.Products, model.Product{Status: string(s)})
		}
		return d
	}

	assert.False(t, AllDone(nil))
	assert.False(t, AllDone(withStatuses("PROCESSING")))
	assert.True(t, AllDone(withStatuses("CANCELLED")))
	assert.True(t, AllDone(withStatuses("PROCESSING", model.StatusCompleted, model.StatusFailed, model.StatusImageReviewPending)))
	assert.False(t, AllDone(withStatuses("PROCESSING", model.StatusCompleted, model.StatusVideoGenerating)))
	assert.True(t, AllDone(withStatuses("CANCELLED", model.StatusVideoGenerating)))
}
