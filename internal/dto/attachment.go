package dto

import "time"

// ClaimAttachmentsRequest lists attachment ids to link to a grievance.
type ClaimAttachmentsRequest struct {
	AttachmentIDs []string `json:"attachment_ids" validate:"required,min=1"`
}

// DownloadLink is a time-limited signed reference to an attachment blob.
type DownloadLink struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SweepResult reports the outcome of a manual retention sweep.
type SweepResult struct {
	Deleted int `json:"deleted"`
}
