package service

import (
	"fmt"

	"github.com/noah-isme/grievance-api/internal/models"
)

// PolicyInput carries everything the redirection policy needs to decide a
// transition. CurrentCategory is the queue currently responsible for the
// grievance, which after a redirect differs from the original category.
type PolicyInput struct {
	Actor           models.Actor
	GrievanceCampus string
	CurrentCategory models.Category
	CurrentStatus   models.GrievanceStatus
	RequestedStatus models.GrievanceStatus
	RedirectTarget  *models.Category
}

// Decision is the policy verdict. Override marks a super-admin transition out
// of a terminal state, which the ledger records as a distinct audit event.
type Decision struct {
	Allowed  bool
	Override bool
	Reason   string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(format string, args ...interface{}) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Decide is the single place deciding which actor may move which grievance to
// which state. Pure function, no I/O; every admin-facing surface goes through
// it instead of re-deriving role checks.
func Decide(in PolicyInput) Decision {
	if !in.RequestedStatus.Valid() {
		return deny("unknown status %q", in.RequestedStatus)
	}
	if in.RequestedStatus == models.StatusRedirected {
		if in.RedirectTarget == nil {
			return deny("redirect requires a target department")
		}
		if !in.RedirectTarget.Valid() {
			return deny("unknown redirect target %q", *in.RedirectTarget)
		}
	}

	if in.CurrentStatus.Terminal() {
		if in.Actor.Role != models.RoleSuperAdmin {
			return deny("grievance is %s; only a super admin may reopen it", in.CurrentStatus)
		}
		return Decision{Allowed: true, Override: true}
	}

	switch in.Actor.Role {
	case models.RoleSuperAdmin:
		return allow()

	case models.RoleCampusAdmin:
		if in.Actor.Campus != in.GrievanceCampus {
			return deny("grievance belongs to campus %s", in.GrievanceCampus)
		}
		if in.CurrentCategory.Departmental() {
			return deny("%s grievances are handled by the department queue", in.CurrentCategory)
		}
		if in.RequestedStatus == models.StatusRedirected && !in.RedirectTarget.Departmental() {
			return deny("campus admins may only redirect to ACADEMIC or EXAM")
		}

	case models.RoleDeptAdmin:
		if in.Actor.Department != in.CurrentCategory {
			return deny("grievance is routed to the %s queue", in.CurrentCategory)
		}
		if in.RequestedStatus == models.StatusRedirected && *in.RedirectTarget == in.Actor.Department {
			return deny("cannot redirect to your own department")
		}

	default:
		return deny("role %s may not transition grievances", in.Actor.Role)
	}

	if !in.CurrentStatus.CanTransitionTo(in.RequestedStatus) {
		return deny("cannot move from %s to %s", in.CurrentStatus, in.RequestedStatus)
	}
	return allow()
}
