package roles_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"veritrail/internal/identity/models"
	"veritrail/internal/identity/roles"
	"veritrail/internal/identity/store"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/requestcontext"
)

type recordingAuditor struct {
	changes     []string
	assignments []string
}

func (a *recordingAuditor) RecordPermissionChange(_ context.Context, _ id.UserID, _, _, description string) {
	a.changes = append(a.changes, description)
}

func (a *recordingAuditor) RecordAssignment(_ context.Context, _ id.UserID, _, roleName, granteeName string, granted bool) {
	verb := "revoked"
	if granted {
		verb = "granted"
	}
	a.assignments = append(a.assignments, verb+" "+roleName+" "+granteeName)
}

type RolesServiceSuite struct {
	suite.Suite

	roleStore       *store.InMemoryRoleStore
	assignmentStore *store.InMemoryAssignmentStore
	userStore       *store.InMemoryUserStore
	auditor         *recordingAuditor
	svc             *roles.Service

	ctx   context.Context
	actor *models.Identity
}

func TestRolesServiceSuite(t *testing.T) {
	suite.Run(t, new(RolesServiceSuite))
}

func (s *RolesServiceSuite) SetupTest() {
	s.roleStore = store.NewInMemoryRoleStore()
	s.assignmentStore = store.NewInMemoryAssignmentStore(s.roleStore)
	s.userStore = store.NewInMemoryUserStore()
	s.auditor = &recordingAuditor{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := roles.New(s.roleStore, s.assignmentStore, s.userStore, logger,
		roles.WithAuditor(s.auditor),
	)
	s.Require().NoError(err)
	s.svc = svc

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), now)
	s.actor = &models.Identity{UserID: id.NewUserID(), Email: "admin@example.com"}
}

func (s *RolesServiceSuite) seedRole(name string, system bool) models.Role {
	role := models.Role{
		ID:           id.NewRoleID(),
		Name:         name,
		DisplayName:  name,
		IsSystemRole: system,
		Permissions: []models.Permission{
			{Resource: "observation", Action: "read", Scope: models.ScopeAll},
		},
	}
	s.Require().NoError(s.roleStore.Save(s.ctx, role))
	return role
}

func (s *RolesServiceSuite) seedUser(email string) models.User {
	user := models.User{
		ID:     id.NewUserID(),
		Email:  email,
		Status: models.UserStatusActive,
	}
	s.Require().NoError(s.userStore.Save(s.ctx, user))
	return user
}

func (s *RolesServiceSuite) TestCreateStripsSystemFlag() {
	role, err := s.svc.Create(s.ctx, s.actor, models.Role{
		Name:         "auditor",
		DisplayName:  "Auditor",
		IsSystemRole: true,
	})
	s.Require().NoError(err)
	s.False(role.IsSystemRole)
	s.False(role.ID.IsNil())
	s.Len(s.auditor.changes, 1)
	s.Contains(s.auditor.changes[0], "Auditor")
}

func (s *RolesServiceSuite) TestCreateRejectsDuplicateName() {
	s.seedRole("auditor", false)

	_, err := s.svc.Create(s.ctx, s.actor, models.Role{Name: "auditor"})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *RolesServiceSuite) TestUpdateSystemRoleRefused() {
	admin := s.seedRole("system_admin", true)

	_, err := s.svc.Update(s.ctx, s.actor, admin.ID, "Renamed", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Empty(s.auditor.changes)
}

func (s *RolesServiceSuite) TestUpdateReplacesPermissions() {
	role := s.seedRole("auditor", false)
	perms := []models.Permission{
		{Resource: "observation", Action: "read", Scope: models.ScopeAll},
		{Resource: "observation", Action: "update", Scope: models.ScopeEntity},
	}

	updated, err := s.svc.Update(s.ctx, s.actor, role.ID, "Senior Auditor", perms)
	s.Require().NoError(err)
	s.Equal("Senior Auditor", updated.DisplayName)
	s.Equal("auditor", updated.Name)
	s.Len(updated.Permissions, 2)
	s.Len(s.auditor.changes, 1)
}

func (s *RolesServiceSuite) TestDeleteSystemRoleRefused() {
	admin := s.seedRole("system_admin", true)

	err := s.svc.Delete(s.ctx, s.actor, admin.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *RolesServiceSuite) TestDeleteRefusedWhileAssigned() {
	role := s.seedRole("auditor", false)
	user := s.seedUser("holder@example.com")
	s.Require().NoError(s.assignmentStore.Save(s.ctx, models.RoleAssignment{
		UserID: user.ID,
		RoleID: role.ID,
	}))

	err := s.svc.Delete(s.ctx, s.actor, role.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	s.Require().NoError(s.assignmentStore.Remove(s.ctx, user.ID, role.ID))
	s.Require().NoError(s.svc.Delete(s.ctx, s.actor, role.ID))

	_, err = s.svc.Get(s.ctx, role.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RolesServiceSuite) TestAssignAndRevoke() {
	role := s.seedRole("auditor", false)
	user := s.seedUser("holder@example.com")
	entityID := id.NewEntityID()

	err := s.svc.Assign(s.ctx, s.actor, models.RoleAssignment{
		UserID:   user.ID,
		RoleID:   role.ID,
		EntityID: &entityID,
	})
	s.Require().NoError(err)

	active, err := s.assignmentStore.ListActiveForUser(s.ctx, user.ID, time.Now())
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal("auditor", active[0].Role.Name)
	s.Require().NotNil(active[0].EntityID)
	s.Equal(entityID, *active[0].EntityID)

	s.Require().NoError(s.svc.Revoke(s.ctx, s.actor, user.ID, role.ID))
	active, err = s.assignmentStore.ListActiveForUser(s.ctx, user.ID, time.Now())
	s.Require().NoError(err)
	s.Empty(active)

	s.Equal([]string{
		"granted auditor holder@example.com",
		"revoked auditor holder@example.com",
	}, s.auditor.assignments)
}

func (s *RolesServiceSuite) TestAssignUnknownRole() {
	user := s.seedUser("holder@example.com")

	err := s.svc.Assign(s.ctx, s.actor, models.RoleAssignment{
		UserID: user.ID,
		RoleID: id.NewRoleID(),
	})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
