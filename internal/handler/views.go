package handler

import (
	"time"

	"github.com/bofstudio/pipeline-console/internal/model"
	"github.com/bofstudio/pipeline-console/internal/service"
)

// BatchRow is one line of the batch list.
type BatchRow struct {
	model.Batch
	Display       model.StatusDisplay `json:"display"`
	EstimatedCost float64             `json:"estimatedCost"`
}

// BatchListView is the console batch list.
type BatchListView struct {
	Batches   []BatchRow `json:"batches"`
	FetchedAt time.Time  `json:"fetchedAt"`
	LastError string     `json:"lastError,omitempty"`
	TotalCost float64    `json:"totalCost"`
	Open      string     `json:"openBatchId,omitempty"`
}

// ProductRow is a product of the open batch with its display and decision.
type ProductRow struct {
	model.Product
	Display    model.StatusDisplay `json:"display"`
	Reviewable bool                `json:"reviewable"`
	// Decision is "approved", "rejected" or empty for undecided.
	Decision model.ReviewVerdict `json:"decision,omitempty"`
}

// SessionView is the open batch detail view.
type SessionView struct {
	BatchID       string                  `json:"batchId"`
	Summary       *model.Batch            `json:"summary,omitempty"`
	Display       model.StatusDisplay     `json:"display"`
	Products      []ProductRow            `json:"products"`
	Progress      service.Progress        `json:"progress"`
	Percentages   service.ProgressPercent `json:"percentages"`
	AllDone       bool                    `json:"allDone"`
	Decisions     []service.DecisionEntry `json:"decisions"`
	ReviewPending int                     `json:"reviewPending"`
	Submitting    bool                    `json:"submitting"`
	EstimatedCost float64                 `json:"estimatedCost"`
	FetchedAt     time.Time               `json:"fetchedAt"`
	LastError     string                  `json:"lastError,omitempty"`
}

// DecisionRequest toggles one product's verdict.
type DecisionRequest struct {
	BatchID   string `json:"batchId" validate:"required"`
	ProductID string `json:"productId" validate:"required"`
	Approved  *bool  `json:"approved" validate:"required"`
}

// BatchActionRequest targets the open batch.
type BatchActionRequest struct {
	BatchID string `json:"batchId" validate:"required"`
}

// DecisionsView is returned after a local decision change.
type DecisionsView struct {
	BatchID   string                  `json:"batchId"`
	Decisions []service.DecisionEntry `json:"decisions"`
}

// RefreshView reports which snapshot a manual refresh updated.
type RefreshView struct {
	Refreshed string `json:"refreshed"`
}

// PricingView lists models with their unit prices and an estimate.
type PricingView struct {
	ImageModels []service.ModelInfo `json:"imageModels"`
	VideoModels []service.ModelInfo `json:"videoModels"`
	ImageModel  string              `json:"imageModel"`
	VideoModel  string              `json:"videoModel"`
	ImageOnly   bool                `json:"imageOnly"`
	PerProduct  float64             `json:"perProduct"`
	Count       int                 `json:"count"`
	Estimate    float64             `json:"estimate"`
}

// SettingsView is the settings context with the credential redacted.
type SettingsView struct {
	model.Settings
	HasCredential bool `json:"hasCredential"`
}

func settingsView(s model.Settings) SettingsView {
	return SettingsView{Settings: s.Redacted(), HasCredential: s.HasCredential()}
}
