package models

import "github.com/golang-jwt/jwt/v5"

// Role represents the closed set of actor roles recognised by the engine.
type Role string

const (
	RoleStudent     Role = "STUDENT"
	RoleDeptAdmin   Role = "DEPT_ADMIN"
	RoleCampusAdmin Role = "CAMPUS_ADMIN"
	RoleSuperAdmin  Role = "SUPER_ADMIN"
)

// Valid reports whether the role is a member of the closed enumeration.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleDeptAdmin, RoleCampusAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// Actor is the identity asserted by the upstream auth collaborator. Scope
// carries the campus for campus admins and the department for dept admins;
// super admins are unscoped.
type Actor struct {
	ID         string   `json:"id"`
	Role       Role     `json:"role"`
	Campus     string   `json:"campus,omitempty"`
	Department Category `json:"department,omitempty"`
}

// JWTClaims are the token claims issued by the identity service.
type JWTClaims struct {
	ActorID    string   `json:"actor_id"`
	Role       Role     `json:"role"`
	Campus     string   `json:"campus,omitempty"`
	Department Category `json:"department,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts the claims into the engine's actor shape.
func (c *JWTClaims) Actor() Actor {
	return Actor{ID: c.ActorID, Role: c.Role, Campus: c.Campus, Department: c.Department}
}
