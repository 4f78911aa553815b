// Package models defines the identity aggregates: users, roles,
// permissions, role assignments, and sessions.
package models

import (
	"time"

	id "veritrail/pkg/domain"
)

// UserStatus captures account standing. Only ACTIVE accounts may resolve an
// identity.
type UserStatus string

const (
	UserStatusActive   UserStatus = "ACTIVE"
	UserStatusInactive UserStatus = "INACTIVE"
	UserStatusLocked   UserStatus = "LOCKED"
)

// Scope is the breadth of a permission grant.
type Scope string

const (
	// ScopeOwn limits the grant to resources the caller owns. Never granted
	// by the permission scan; resolved exclusively by the ownership
	// fallback so "is this mine" logic lives in one place.
	ScopeOwn Scope = "own"

	// ScopeTeam is evaluated identically to ScopeEntity. Team membership is
	// not independently modelled; the collapse is a documented
	// simplification, not an oversight.
	ScopeTeam Scope = "team"

	// ScopeEntity bounds the grant to one organizational entity.
	ScopeEntity Scope = "entity"

	// ScopeAll grants without restriction.
	ScopeAll Scope = "all"
)

// Permission grants an action on a resource type at a scope. Uniqueness is
// (Resource, Action, Scope); the engine treats scopes independently and
// never merges them.
type Permission struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Scope    Scope  `json:"scope"`
}

// SystemAdminRole is the single hard-coded override: holders are allowed
// every action. Every other rule is data-driven.
const SystemAdminRole = "system_admin"

// Role is a named permission set.
//
// Invariants enforced by the roles service:
//   - system roles (IsSystemRole) cannot be edited or deleted
//   - a role with live assignments cannot be deleted
type Role struct {
	ID           id.RoleID    `json:"id"`
	Name         string       `json:"name"`
	DisplayName  string       `json:"display_name"`
	Level        int          `json:"level"` // display/ordering only, no permission math
	IsSystemRole bool         `json:"is_system_role"`
	Permissions  []Permission `json:"permissions"`
}

// RoleAssignment binds a user to a role, optionally scoped to one entity
// and optionally time-bounded. A user may hold many assignments; they are
// evaluated as a union.
type RoleAssignment struct {
	UserID    id.UserID    `json:"user_id"`
	RoleID    id.RoleID    `json:"role_id"`
	EntityID  *id.EntityID `json:"entity_id,omitempty"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`

	// Role is the nested role definition, loaded with the assignment.
	Role Role `json:"role"`
}

// Active reports whether the assignment is in effect at the given time. An
// assignment with a past ExpiresAt is inert, treated as absent.
func (a RoleAssignment) Active(now time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// User is the primary identity tracked by the platform.
type User struct {
	ID           id.UserID  `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Status       UserStatus `json:"status"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// DisplayName returns "First Last", falling back to the email when names
// are absent.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	default:
		return u.Email
	}
}

// Session is one active login. Permissions are recomputed from role
// assignments at resolution time, not cached here, so role changes take
// effect on the next request without forcing re-login.
type Session struct {
	ID             id.SessionID `json:"id"`
	UserID         id.UserID    `json:"user_id"`
	CreatedAt      time.Time    `json:"created_at"`
	LastActivityAt time.Time    `json:"last_activity_at"`
	ExpiresAt      time.Time    `json:"expires_at"`
	IPAddress      string       `json:"ip_address,omitempty"`
	UserAgent      string       `json:"user_agent,omitempty"`
}

// Expired reports whether the session has passed its absolute expiry or
// exceeded the inactivity window.
func (s Session) Expired(now time.Time, idleWindow time.Duration) bool {
	if !s.ExpiresAt.After(now) {
		return true
	}
	if idleWindow > 0 && now.Sub(s.LastActivityAt) > idleWindow {
		return true
	}
	return false
}

// SessionSummary is the caller-facing view of a session for session
// listing.
type SessionSummary struct {
	SessionID    id.SessionID `json:"session_id"`
	Device       string       `json:"device"`
	IPAddress    string       `json:"ip_address,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	LastActivity time.Time    `json:"last_activity"`
	IsCurrent    bool         `json:"is_current"`
}

// Grant is a permission together with the entity binding of the assignment
// that conferred it. Entity-scoped evaluation needs the binding; the flat
// Permission triple alone cannot say which entity the grant is bounded to.
type Grant struct {
	Permission
	EntityID *id.EntityID `json:"entity_id,omitempty"`
}

// Identity is the resolved caller: who they are and what they may do,
// computed fresh per request. Immutable for the request's duration.
type Identity struct {
	UserID      id.UserID    `json:"user_id"`
	Email       string       `json:"email"`
	Roles       []string     `json:"roles"`
	Permissions []Permission `json:"permissions"`
	Grants      []Grant      `json:"-"`
	SessionID   id.SessionID `json:"session_id"`
}

// Anonymous reports whether this identity carries no authenticated user.
// ResolveOptional returns an anonymous identity when no credential is
// presented.
func (i Identity) Anonymous() bool { return i.UserID.IsNil() }

// HasRole reports whether the identity holds the named role.
func (i Identity) HasRole(name string) bool {
	for _, r := range i.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// IsSystemAdmin reports whether the identity holds the system-administrator
// role.
func (i Identity) IsSystemAdmin() bool { return i.HasRole(SystemAdminRole) }
