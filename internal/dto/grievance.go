package dto

import "github.com/noah-isme/grievance-api/internal/models"

// CreateGrievanceRequest is the payload for filing a new grievance.
type CreateGrievanceRequest struct {
	Campus        string   `json:"campus" validate:"required"`
	Category      string   `json:"category" validate:"required"`
	Subject       string   `json:"subject" validate:"required"`
	Description   string   `json:"description" validate:"required"`
	AttachmentIDs []string `json:"attachment_ids"`
}

// CreateGrievanceResult always carries the created grievance; attachment
// claim outcomes are reported separately so a partial claim failure is
// visible without failing the creation.
type CreateGrievanceResult struct {
	Grievance   models.Grievance   `json:"grievance"`
	Attachments models.ClaimResult `json:"attachments"`
}

// TransitionRequest is the payload for moving a grievance to a new state.
type TransitionRequest struct {
	Status         string `json:"status" validate:"required"`
	Note           string `json:"note"`
	RedirectTarget string `json:"redirect_target,omitempty"`
}

// GrievanceListQuery captures list filters from the query string.
type GrievanceListQuery struct {
	Statuses []string `json:"statuses"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

// GrievanceStats is the aggregate view consumed by admin dashboards.
type GrievanceStats struct {
	ByStatus   []models.StatusCount   `json:"by_status"`
	ByCategory []models.CategoryCount `json:"by_category"`
}
