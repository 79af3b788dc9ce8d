package models

import "time"

// GrievanceStatus represents a grievance's workflow state.
type GrievanceStatus string

const (
	StatusSubmitted  GrievanceStatus = "SUBMITTED"
	StatusInProgress GrievanceStatus = "IN_PROGRESS"
	StatusRedirected GrievanceStatus = "REDIRECTED"
	StatusRejected   GrievanceStatus = "REJECTED"
	StatusResolved   GrievanceStatus = "RESOLVED"
)

// allowedTransitions is the workflow state machine. Terminal states have no
// entries; leaving them requires the super-admin override path.
var allowedTransitions = map[GrievanceStatus][]GrievanceStatus{
	StatusSubmitted:  {StatusInProgress, StatusRedirected, StatusRejected, StatusResolved},
	StatusInProgress: {StatusRedirected, StatusRejected, StatusResolved},
	StatusRedirected: {StatusInProgress, StatusRejected, StatusResolved},
}

// Valid reports whether the status is a known workflow state.
func (s GrievanceStatus) Valid() bool {
	switch s {
	case StatusSubmitted, StatusInProgress, StatusRedirected, StatusRejected, StatusResolved:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status ends the workflow.
func (s GrievanceStatus) Terminal() bool {
	return s == StatusResolved || s == StatusRejected
}

// CanTransitionTo reports whether the state machine permits moving from s to next.
func (s GrievanceStatus) CanTransitionTo(next GrievanceStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Category identifies the administrative department responsible for a grievance.
type Category string

const (
	CategoryAcademic       Category = "ACADEMIC"
	CategoryExam           Category = "EXAM"
	CategoryHostel         Category = "HOSTEL"
	CategoryFacility       Category = "FACILITY"
	CategoryAdministration Category = "ADMINISTRATION"
	CategoryOther          Category = "OTHER"
)

// Valid reports whether the category is a known department.
func (c Category) Valid() bool {
	switch c {
	case CategoryAcademic, CategoryExam, CategoryHostel, CategoryFacility, CategoryAdministration, CategoryOther:
		return true
	default:
		return false
	}
}

// Departmental reports whether the category is owned by a department admin
// rather than a campus admin.
func (c Category) Departmental() bool {
	return c == CategoryAcademic || c == CategoryExam
}

// Grievance represents one student complaint. Category is the department the
// submitter filed under and never changes; CurrentCategory is the queue that
// owns the grievance right now and is advanced by redirects.
type Grievance struct {
	ID              string          `db:"id" json:"id"`
	TicketCode      string          `db:"ticket_code" json:"ticket_code"`
	SubmitterID     string          `db:"submitter_id" json:"submitter_id"`
	Campus          string          `db:"campus" json:"campus"`
	Category        Category        `db:"category" json:"category"`
	CurrentCategory Category        `db:"current_category" json:"current_category"`
	Subject         string          `db:"subject" json:"subject"`
	Description     string          `db:"description" json:"description"`
	HasAttachments  bool            `db:"has_attachments" json:"has_attachments"`
	Status          GrievanceStatus `db:"status" json:"status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// GrievanceFilter captures filtering criteria for listing grievances.
type GrievanceFilter struct {
	SubmitterID string
	Campus      string
	Categories  []Category
	Statuses    []GrievanceStatus
	Page        int
	PageSize    int
}

// GrievanceView is the materialized read-model returned to callers.
type GrievanceView struct {
	Grievance   Grievance       `json:"grievance"`
	History     []TrackingEntry `json:"history"`
	Attachments []Attachment    `json:"attachments"`
}

// StatusCount aggregates grievance totals for reporting.
type StatusCount struct {
	Status GrievanceStatus `db:"status" json:"status"`
	Count  int             `db:"count" json:"count"`
}

// CategoryCount aggregates grievance totals per department.
type CategoryCount struct {
	Category Category `db:"category" json:"category"`
	Count    int      `db:"count" json:"count"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
