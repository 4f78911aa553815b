// Package store persists identity aggregates. Interfaces are defined here
// and consumed by the resolver, the auth service, and the roles service;
// memory, postgres, and redis implementations live alongside.
package store

import (
	"context"
	"time"

	"veritrail/internal/identity/models"
	id "veritrail/pkg/domain"
)

// UserStore persists user accounts.
type UserStore interface {
	Save(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, userID id.UserID) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// SessionStore persists login sessions.
type SessionStore interface {
	Save(ctx context.Context, session models.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (models.Session, error)

	// Touch updates last_activity_at. Callers treat failures as
	// best-effort; a lost update must not fail the request.
	Touch(ctx context.Context, sessionID id.SessionID, at time.Time) error

	Delete(ctx context.Context, sessionID id.SessionID) error
	ListByUser(ctx context.Context, userID id.UserID) ([]models.Session, error)
}

// RoleStore persists role definitions with their permissions.
type RoleStore interface {
	Save(ctx context.Context, role models.Role) error
	FindByID(ctx context.Context, roleID id.RoleID) (models.Role, error)
	FindByName(ctx context.Context, name string) (models.Role, error)
	List(ctx context.Context) ([]models.Role, error)
	Delete(ctx context.Context, roleID id.RoleID) error
}

// AssignmentStore persists user-role assignments.
type AssignmentStore interface {
	Save(ctx context.Context, assignment models.RoleAssignment) error
	Remove(ctx context.Context, userID id.UserID, roleID id.RoleID) error

	// ListActiveForUser returns the user's assignments that are in effect
	// at the given time, each with its nested Role and Permissions.
	ListActiveForUser(ctx context.Context, userID id.UserID, now time.Time) ([]models.RoleAssignment, error)

	// CountForRole reports live assignments for a role; the roles service
	// refuses to delete a role while this is non-zero.
	CountForRole(ctx context.Context, roleID id.RoleID) (int, error)
}
