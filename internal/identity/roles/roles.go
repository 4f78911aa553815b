// Package roles manages role definitions and role assignments: the
// write side of the permission model.
package roles

import (
	"context"
	"errors"
	"log/slog"

	"veritrail/internal/identity/models"
	"veritrail/internal/identity/store"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/sentinel"
	"veritrail/pkg/requestcontext"
)

// Auditor records role administration on the audit trail. Recording is
// fire-and-forget.
type Auditor interface {
	RecordPermissionChange(ctx context.Context, actorID id.UserID, actorName, roleName, description string)
	RecordAssignment(ctx context.Context, actorID id.UserID, actorName, roleName, granteeName string, granted bool)
}

// Service guards the role invariants:
//   - system roles cannot be edited or deleted
//   - a role with live assignments cannot be deleted
type Service struct {
	roles       store.RoleStore
	assignments store.AssignmentStore
	users       store.UserStore
	auditor     Auditor
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithAuditor attaches an audit recorder.
func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

func New(roles store.RoleStore, assignments store.AssignmentStore, users store.UserStore, logger *slog.Logger, opts ...Option) (*Service, error) {
	if roles == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "role store is required")
	}
	if assignments == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "assignment store is required")
	}
	if users == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		roles:       roles,
		assignments: assignments,
		users:       users,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create defines a new role. System roles are seeded, never created over
// the API, so the flag is forced off regardless of the request.
func (s *Service) Create(ctx context.Context, actor *models.Identity, role models.Role) (models.Role, error) {
	if role.Name == "" {
		return models.Role{}, dErrors.New(dErrors.CodeInvalidInput, "role name is required")
	}
	if _, err := s.roles.FindByName(ctx, role.Name); err == nil {
		return models.Role{}, dErrors.New(dErrors.CodeConflict, "role already exists")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return models.Role{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check role name")
	}

	role.ID = id.NewRoleID()
	role.IsSystemRole = false
	if err := s.roles.Save(ctx, role); err != nil {
		return models.Role{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save role")
	}

	s.recordPermissionChange(ctx, actor, role.Name, "Created role \""+displayName(role)+"\"")
	return role, nil
}

// Update replaces a role's display name and permission set. The name and
// the system flag are immutable.
func (s *Service) Update(ctx context.Context, actor *models.Identity, roleID id.RoleID, displayName string, permissions []models.Permission) (models.Role, error) {
	role, err := s.getEditable(ctx, roleID)
	if err != nil {
		return models.Role{}, err
	}

	role.DisplayName = displayName
	role.Permissions = permissions
	if err := s.roles.Save(ctx, role); err != nil {
		return models.Role{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save role")
	}

	s.recordPermissionChange(ctx, actor, role.Name, "Updated permissions for role \""+role.Name+"\"")
	return role, nil
}

// Delete removes a role. A role that is still assigned to anyone cannot
// be deleted; holders would silently lose access mid-session otherwise.
func (s *Service) Delete(ctx context.Context, actor *models.Identity, roleID id.RoleID) error {
	role, err := s.getEditable(ctx, roleID)
	if err != nil {
		return err
	}

	count, err := s.assignments.CountForRole(ctx, roleID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count assignments")
	}
	if count > 0 {
		return dErrors.New(dErrors.CodeConflict, "role has active assignments")
	}

	if err := s.roles.Delete(ctx, roleID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete role")
	}

	s.recordPermissionChange(ctx, actor, role.Name, "Deleted role \""+role.Name+"\"")
	return nil
}

// Get returns one role by ID.
func (s *Service) Get(ctx context.Context, roleID id.RoleID) (models.Role, error) {
	role, err := s.roles.FindByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Role{}, dErrors.New(dErrors.CodeNotFound, "role not found")
		}
		return models.Role{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load role")
	}
	return role, nil
}

// List returns all roles.
func (s *Service) List(ctx context.Context) ([]models.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list roles")
	}
	return roles, nil
}

// Assign grants a role to a user, optionally bound to an entity and
// optionally time-limited.
func (s *Service) Assign(ctx context.Context, actor *models.Identity, assignment models.RoleAssignment) error {
	role, err := s.Get(ctx, assignment.RoleID)
	if err != nil {
		return err
	}

	grantee, err := s.users.FindByID(ctx, assignment.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	assignment.CreatedAt = requestcontext.Now(ctx)
	assignment.Role = role
	if err := s.assignments.Save(ctx, assignment); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save assignment")
	}

	s.recordAssignment(ctx, actor, role.Name, grantee.DisplayName(), true)
	return nil
}

// Revoke removes a user's role assignment. Revoking an absent assignment
// is not an error.
func (s *Service) Revoke(ctx context.Context, actor *models.Identity, userID id.UserID, roleID id.RoleID) error {
	role, err := s.Get(ctx, roleID)
	if err != nil {
		return err
	}

	grantee, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	if err := s.assignments.Remove(ctx, userID, roleID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove assignment")
	}

	s.recordAssignment(ctx, actor, role.Name, grantee.DisplayName(), false)
	return nil
}

func (s *Service) getEditable(ctx context.Context, roleID id.RoleID) (models.Role, error) {
	role, err := s.Get(ctx, roleID)
	if err != nil {
		return models.Role{}, err
	}
	if role.IsSystemRole {
		return models.Role{}, dErrors.New(dErrors.CodeForbidden, "system roles cannot be modified")
	}
	return role, nil
}

func (s *Service) recordPermissionChange(ctx context.Context, actor *models.Identity, roleName, description string) {
	if s.auditor == nil || actor == nil {
		return
	}
	s.auditor.RecordPermissionChange(ctx, actor.UserID, actor.Email, roleName, description)
}

func (s *Service) recordAssignment(ctx context.Context, actor *models.Identity, roleName, granteeName string, granted bool) {
	if s.auditor == nil || actor == nil {
		return
	}
	s.auditor.RecordAssignment(ctx, actor.UserID, actor.Email, roleName, granteeName, granted)
}

func displayName(role models.Role) string {
	if role.DisplayName != "" {
		return role.DisplayName
	}
	return role.Name
}
