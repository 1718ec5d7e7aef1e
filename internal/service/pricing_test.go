package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bofstudio/pipeline-console/internal/model"
)

const (
	proEdit  = "fal-ai/nano-banana-pro/edit"
	kling26  = "fal-ai/kling-video/v2.6/pro/image-to-video"
	veo2     = "fal-ai/veo2/image-to-video"
	schnell  = "fal-ai/flux/schnell"
	unknownM = "acme/unknown"
)

func TestPricing_Estimate(t *testing.T) {
	pt := DefaultPricing()

	assert.InDelta(t, 0.50, pt.PerProduct(proEdit, kling26, false), 1e-9)
	assert.InDelta(t, 5.0, pt.Estimate(10, proEdit, kling26, false), 1e-9)
	assert.InDelta(t, 1.5, pt.Estimate(10, proEdit, kling26, true), 1e-9)
	assert.Zero(t, pt.Estimate(0, proEdit, kling26, false))
	assert.Zero(t, pt.Estimate(-3, proEdit, kling26, false))
}

func TestPricing_ImageOnlyIgnoresVideoModel(t *testing.T) {
	pt := DefaultPricing()
	for _, vid := range []string{kling26, veo2, unknownM, ""} {
		assert.Equal(t, pt.Estimate(7, schnell, "", true), pt.Estimate(7, schnell, vid, true), vid)
	}
}

func TestPricing_UnknownModelCostsNothing(t *testing.T) {
	pt := DefaultPricing()

	assert.Zero(t, pt.UnitCost(unknownM))
	_, ok := pt.Lookup(unknownM)
	assert.False(t, ok)
	assert.InDelta(t, 0.35*4, pt.Estimate(4, unknownM, kling26, false), 1e-9)
}

func TestPricing_BatchEstimateFallsBackToDefaults(t *testing.T) {
	pt := DefaultPricing()

	recorded := model.Batch{TotalProducts: 2, ImageModel: schnell, VideoModel: veo2}
	assert.InDelta(t, 2*(0.003+0.50), pt.BatchEstimate(recorded, proEdit, kling26), 1e-9)

	bare := model.Batch{TotalProducts: 2}
	assert.InDelta(t, 2*(0.15+0.35), pt.BatchEstimate(bare, proEdit, kling26), 1e-9)

	imageOnly := model.Batch{TotalProducts: 3, ImageOnly: true}
	assert.InDelta(t, 3*0.15, pt.BatchEstimate(imageOnly, proEdit, kling26), 1e-9)

	assert.InDelta(t, 2*(0.003+0.50)+2*(0.15+0.35)+3*0.15,
		pt.FleetTotal([]model.Batch{recorded, bare, imageOnly}, proEdit, kling26), 1e-9)
}

func TestPricing_Models(t *testing.T) {
	pt := DefaultPricing()

	images := pt.Models(UnitImage)
	videos := pt.Models(UnitVideo)
	assert.Len(t, images, 7)
	assert.Len(t, videos, 5)
	assert.Len(t, pt.Models(""), 12)

	for i := 1; i < len(images); i++ {
		require.Less(t, images[i-1].ID, images[i].ID)
	}
	for _, m := range videos {
		assert.Equal(t, UnitVideo, m.Unit)
	}
}
