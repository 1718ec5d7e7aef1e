package service

import (
	"sort"

	"github.com/bofstudio/pipeline-console/internal/model"
)

// Price unit kinds.
const (
	UnitImage = "image"
	UnitVideo = "video"
)

// ModelInfo describes a selectable generation model and its price.
type ModelInfo struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	CostPerUnit float64 `json:"costPerUnit"`
	Unit        string  `json:"unit"`
}

// PricingTable maps model ids to their unit price. It is read-only after
// construction and safe for concurrent use.
type PricingTable struct {
	models map[string]ModelInfo
}

// NewPricingTable builds a table from the given models.
func NewPricingTable(models []ModelInfo) *PricingTable {
	m := make(map[string]ModelInfo, len(models))
	for _, info := range models {
		m[info.ID] = info
	}
	return &PricingTable{models: m}
}

// DefaultPricing returns the built-in price list.
func DefaultPricing() *PricingTable {
	return NewPricingTable([]ModelInfo{
		{"fal-ai/nano-banana-pro/edit", "Nano Banana PRO Edit", 0.15, UnitImage},
		{"fal-ai/nano-banana/edit", "Nano Banana Edit", 0.039, UnitImage},
		{"fal-ai/flux/dev", "FLUX.1 Dev", 0.025, UnitImage},
		{"fal-ai/flux-pro", "FLUX Pro", 0.05, UnitImage},
		{"fal-ai/flux/schnell", "FLUX Schnell", 0.003, UnitImage},
		{"xai/grok-imagine-image", "Grok Imagine Image", 0.07, UnitImage},
		{"fal-ai/recraft-v3", "Recraft V3", 0.05, UnitImage},

		{"fal-ai/kling-video/v2.6/pro/image-to-video", "Kling 2.6 Pro", 0.35, UnitVideo},
		{"xai/grok-imagine-video/image-to-video", "Grok Imagine Video", 0.20, UnitVideo},
		{"fal-ai/kling-video/v3/pro/image-to-video", "Kling v3 Pro", 0.35, UnitVideo},
		{"fal-ai/minimax/video-01/image-to-video", "MiniMax Hailuo", 0.30, UnitVideo},
		{"fal-ai/veo2/image-to-video", "Veo 2", 0.50, UnitVideo},
	})
}

// UnitCost returns the price of one unit, 0 for unknown ids.
func (t *PricingTable) UnitCost(modelID string) float64 {
	return t.models[modelID].CostPerUnit
}

// Lookup returns the model entry if known.
func (t *PricingTable) Lookup(modelID string) (ModelInfo, bool) {
	m, ok := t.models[modelID]
	return m, ok
}

// Models lists the models of the given unit, sorted by id.
func (t *PricingTable) Models(unit string) []ModelInfo {
	var out []ModelInfo
	for _, m := range t.models {
		if unit == "" || m.Unit == unit {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Estimate prices count products. Video cost is left out for image-only runs.
func (t *PricingTable) Estimate(count int, imageModel, videoModel string, imageOnly bool) float64 {
	if count <= 0 {
		return 0
	}
	cost := t.UnitCost(imageModel) * float64(count)
	if !imageOnly {
		cost += t.UnitCost(videoModel) * float64(count)
	}
	return cost
}

// PerProduct is the estimate for a single product.
func (t *PricingTable) PerProduct(imageModel, videoModel string, imageOnly bool) float64 {
	return t.Estimate(1, imageModel, videoModel, imageOnly)
}

// BatchEstimate prices one batch using the models it recorded, falling back
// to the given defaults when a batch did not record one.
func (t *PricingTable) BatchEstimate(b model.Batch, defaultImage, defaultVideo string) float64 {
	img := b.ImageModel
	if img == "" {
		img = defaultImage
	}
	vid := b.VideoModel
	if vid == "" {
		vid = defaultVideo
	}
	return t.Estimate(b.TotalProducts, img, vid, b.ImageOnly)
}

// FleetTotal sums BatchEstimate over all batches.
func (t *PricingTable) FleetTotal(batches []model.Batch, defaultImage, defaultVideo string) float64 {
	var total float64
	for _, b := range batches {
		total += t.BatchEstimate(b, defaultImage, defaultVideo)
	}
	return total
}
