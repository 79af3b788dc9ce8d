package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grievance-api/internal/models"
)

func category(c models.Category) *models.Category {
	return &c
}

func TestPolicySuperAdminMayDoAnything(t *testing.T) {
	decision := Decide(PolicyInput{
		Actor:           models.Actor{ID: "sa-1", Role: models.RoleSuperAdmin},
		GrievanceCampus: "NORTH",
		CurrentCategory: models.CategoryAcademic,
		CurrentStatus:   models.StatusSubmitted,
		RequestedStatus: models.StatusResolved,
	})
	require.True(t, decision.Allowed)
	require.False(t, decision.Override)
}

func TestPolicySuperAdminReopensTerminalAsOverride(t *testing.T) {
	decision := Decide(PolicyInput{
		Actor:           models.Actor{ID: "sa-1", Role: models.RoleSuperAdmin},
		GrievanceCampus: "NORTH",
		CurrentCategory: models.CategoryFacility,
		CurrentStatus:   models.StatusResolved,
		RequestedStatus: models.StatusInProgress,
	})
	require.True(t, decision.Allowed)
	require.True(t, decision.Override)
}

func TestPolicyTerminalStateBlocksNonSuperAdmins(t *testing.T) {
	for _, role := range []models.Role{models.RoleCampusAdmin, models.RoleDeptAdmin, models.RoleStudent} {
		decision := Decide(PolicyInput{
			Actor:           models.Actor{ID: "a-1", Role: role, Campus: "NORTH", Department: models.CategoryFacility},
			GrievanceCampus: "NORTH",
			CurrentCategory: models.CategoryFacility,
			CurrentStatus:   models.StatusRejected,
			RequestedStatus: models.StatusInProgress,
		})
		require.False(t, decision.Allowed, "role %s should be denied", role)
	}
}

func TestPolicyCampusAdminScopes(t *testing.T) {
	base := PolicyInput{
		Actor:           models.Actor{ID: "ca-1", Role: models.RoleCampusAdmin, Campus: "NORTH"},
		GrievanceCampus: "NORTH",
		CurrentCategory: models.CategoryFacility,
		CurrentStatus:   models.StatusSubmitted,
		RequestedStatus: models.StatusInProgress,
	}

	require.True(t, Decide(base).Allowed)

	wrongCampus := base
	wrongCampus.GrievanceCampus = "SOUTH"
	require.False(t, Decide(wrongCampus).Allowed)

	departmental := base
	departmental.CurrentCategory = models.CategoryExam
	require.False(t, Decide(departmental).Allowed)
}

func TestPolicyCampusAdminRedirectTargets(t *testing.T) {
	base := PolicyInput{
		Actor:           models.Actor{ID: "ca-1", Role: models.RoleCampusAdmin, Campus: "NORTH"},
		GrievanceCampus: "NORTH",
		CurrentCategory: models.CategoryFacility,
		CurrentStatus:   models.StatusSubmitted,
		RequestedStatus: models.StatusRedirected,
	}

	toAcademic := base
	toAcademic.RedirectTarget = category(models.CategoryAcademic)
	require.True(t, Decide(toAcademic).Allowed)

	toHostel := base
	toHostel.RedirectTarget = category(models.CategoryHostel)
	require.False(t, Decide(toHostel).Allowed)

	noTarget := base
	require.False(t, Decide(noTarget).Allowed)
}

func TestPolicyCampusAdminCannotActAfterRedirect(t *testing.T) {
	// After redirecting a FACILITY grievance to ACADEMIC, the responsible
	// queue is departmental and the campus admin loses the slot.
	decision := Decide(PolicyInput{
		Actor:           models.Actor{ID: "ca-1", Role: models.RoleCampusAdmin, Campus: "NORTH"},
		GrievanceCampus: "NORTH",
		CurrentCategory: models.CategoryAcademic,
		CurrentStatus:   models.StatusRedirected,
		RequestedStatus: models.StatusRedirected,
		RedirectTarget:  category(models.CategoryExam),
	})
	require.False(t, decision.Allowed)
}

func TestPolicyDeptAdminDeniedOutsideOwnQueue(t *testing.T) {
	decision := Decide(PolicyInput{
		Actor:           models.Actor{ID: "da-1", Role: models.RoleDeptAdmin, Department: models.CategoryExam},
		GrievanceCampus: "NORTH",
		CurrentCategory: models.CategoryAcademic,
		CurrentStatus:   models.StatusSubmitted,
		RequestedStatus: models.StatusResolved,
	})
	require.False(t, decision.Allowed)
}

func TestPolicyDeptAdminResolvesOwnQueue(t *testing.T) {
	decision := Decide(PolicyInput{
		Actor:           models.Actor{ID: "da-1", Role: models.RoleDeptAdmin, Department: models.CategoryAcademic},
		GrievanceCampus: "NORTH",
		CurrentCategory: models.CategoryAcademic,
		CurrentStatus:   models.StatusRedirected,
		RequestedStatus: models.StatusResolved,
	})
	require.True(t, decision.Allowed)
}

func TestPolicyDeptAdminCannotRedirectToSelf(t *testing.T) {
	decision := Decide(PolicyInput{
		Actor:           models.Actor{ID: "da-1", Role: models.RoleDeptAdmin, Department: models.CategoryExam},
		GrievanceCampus: "NORTH",
		CurrentCategory: models.CategoryExam,
		CurrentStatus:   models.StatusInProgress,
		RequestedStatus: models.StatusRedirected,
		RedirectTarget:  category(models.CategoryExam),
	})
	require.False(t, decision.Allowed)
}

func TestPolicyStudentDenied(t *testing.T) {
	decision := Decide(PolicyInput{
		Actor:           models.Actor{ID: "stu-1", Role: models.RoleStudent},
		GrievanceCampus: "NORTH",
		CurrentCategory: models.CategoryOther,
		CurrentStatus:   models.StatusSubmitted,
		RequestedStatus: models.StatusResolved,
	})
	require.False(t, decision.Allowed)
}

func TestPolicyStateMachine(t *testing.T) {
	actor := models.Actor{ID: "ca-1", Role: models.RoleCampusAdmin, Campus: "NORTH"}
	decision := Decide(PolicyInput{
		Actor:           actor,
		GrievanceCampus: "NORTH",
		CurrentCategory: models.CategoryFacility,
		CurrentStatus:   models.StatusInProgress,
		RequestedStatus: models.StatusSubmitted,
	})
	require.False(t, decision.Allowed)
}

func TestPolicyUnknownStatusRejected(t *testing.T) {
	decision := Decide(PolicyInput{
		Actor:           models.Actor{ID: "sa-1", Role: models.RoleSuperAdmin},
		CurrentCategory: models.CategoryOther,
		CurrentStatus:   models.StatusSubmitted,
		RequestedStatus: models.GrievanceStatus("ESCALATED"),
	})
	require.False(t, decision.Allowed)
}
