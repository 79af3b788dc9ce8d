package models

import "time"

// SystemActor marks ledger entries written by the engine itself rather than
// an administrator, such as the initial SUBMITTED entry.
const SystemActor = "SYSTEM"

// TrackingEntry is one immutable audit record of a status transition.
// Entries are only ever inserted; there is no update or delete path.
type TrackingEntry struct {
	ID             string           `db:"id" json:"id"`
	GrievanceID    string           `db:"grievance_id" json:"grievance_id"`
	FromStatus     *GrievanceStatus `db:"from_status" json:"from_status,omitempty"`
	ToStatus       GrievanceStatus  `db:"to_status" json:"to_status"`
	ActorID        string           `db:"actor_id" json:"actor_id"`
	Note           string           `db:"note" json:"note"`
	RedirectTarget *Category        `db:"redirect_target" json:"redirect_target,omitempty"`
	IsRedirect     bool             `db:"is_redirect" json:"is_redirect"`
	IsOverride     bool             `db:"is_override" json:"is_override"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// ResponsibleCategory resolves which department queue currently owns a
// grievance: the target of the latest redirect entry in the history, or the
// grievance's original category when it was never redirected. A redirect keeps
// ownership until the next redirect, not merely until the next transition.
func ResponsibleCategory(g *Grievance, history []TrackingEntry) Category {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].IsRedirect && history[i].RedirectTarget != nil {
			return *history[i].RedirectTarget
		}
	}
	return g.Category
}
