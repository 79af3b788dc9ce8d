package models

import "time"

// Attachment is the metadata for one uploaded binary object. An attachment
// with a nil GrievanceID is unclaimed; claiming sets it exactly once.
type Attachment struct {
	ID          string     `db:"id" json:"id"`
	GrievanceID *string    `db:"grievance_id" json:"grievance_id,omitempty"`
	FileName    string     `db:"file_name" json:"file_name"`
	StoredPath  string     `db:"stored_path" json:"-"`
	MimeType    string     `db:"mime_type" json:"mime_type"`
	SizeBytes   int64      `db:"size_bytes" json:"size_bytes"`
	UploadedBy  string     `db:"uploaded_by" json:"uploaded_by"`
	UploadedAt  time.Time  `db:"uploaded_at" json:"uploaded_at"`
	DeletedAt   *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Claimed reports whether the attachment is linked to a grievance.
func (a *Attachment) Claimed() bool {
	return a.GrievanceID != nil
}

// AttachmentClaimFailure describes one attachment that could not be linked.
type AttachmentClaimFailure struct {
	AttachmentID string `json:"attachment_id"`
	Reason       string `json:"reason"`
}

// ClaimResult reports the per-item outcome of a best-effort bulk claim.
type ClaimResult struct {
	LinkedCount int                      `json:"linked_count"`
	FailedCount int                      `json:"failed_count"`
	Failed      []AttachmentClaimFailure `json:"failed,omitempty"`
}
