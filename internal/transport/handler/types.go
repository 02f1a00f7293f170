package handler

import "github.com/trunov/assethub/internal/entities"

type IngestParams struct {
	AssetKey string `validate:"required,max=128"` // overrides the filename derived key
	Category string `validate:"required,max=64"`  // storage namespace, selects the budget

	// Options
	Hero bool // from form field hero=1
}

type IngestResponse struct {
	Success        bool               `json:"success"`
	PublicURL      string             `json:"publicURL,omitempty"`
	SavingsPercent *float64           `json:"savingsPercent,omitempty"`
	Error          string             `json:"error,omitempty"`
	AssetKey       string             `json:"assetKey,omitempty"`
	MetBudget      *bool              `json:"metBudget,omitempty"`
	Warnings       []entities.Warning `json:"warnings,omitempty"`
}
