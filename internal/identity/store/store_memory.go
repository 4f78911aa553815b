package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"veritrail/internal/identity/models"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

// In-memory stores back unit tests and development runs. They intentionally
// favor clarity over performance.

type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[id.UserID]models.User
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[id.UserID]models.User)}
}

func (s *InMemoryUserStore) Save(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user, ok := s.users[userID]; ok {
		return user, nil
	}
	return models.User{}, sentinel.ErrNotFound
}

func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return models.User{}, sentinel.ErrNotFound
}

type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]models.Session
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[id.SessionID]models.Session)}
}

func (s *InMemorySessionStore) Save(_ context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *InMemorySessionStore) FindByID(_ context.Context, sessionID id.SessionID) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if session, ok := s.sessions[sessionID]; ok {
		return session, nil
	}
	return models.Session{}, sentinel.ErrNotFound
}

func (s *InMemorySessionStore) Touch(_ context.Context, sessionID id.SessionID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	session.LastActivityAt = at
	s.sessions[sessionID] = session
	return nil
}

func (s *InMemorySessionStore) Delete(_ context.Context, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *InMemorySessionStore) ListByUser(_ context.Context, userID id.UserID) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Session
	for _, session := range s.sessions {
		if session.UserID == userID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type InMemoryRoleStore struct {
	mu    sync.RWMutex
	roles map[id.RoleID]models.Role
}

func NewInMemoryRoleStore() *InMemoryRoleStore {
	return &InMemoryRoleStore{roles: make(map[id.RoleID]models.Role)}
}

func (s *InMemoryRoleStore) Save(_ context.Context, role models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[role.ID] = role
	return nil
}

func (s *InMemoryRoleStore) FindByID(_ context.Context, roleID id.RoleID) (models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if role, ok := s.roles[roleID]; ok {
		return role, nil
	}
	return models.Role{}, sentinel.ErrNotFound
}

func (s *InMemoryRoleStore) FindByName(_ context.Context, name string) (models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, role := range s.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return models.Role{}, sentinel.ErrNotFound
}

func (s *InMemoryRoleStore) List(_ context.Context) ([]models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *InMemoryRoleStore) Delete(_ context.Context, roleID id.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.roles, roleID)
	return nil
}

type assignmentKey struct {
	userID id.UserID
	roleID id.RoleID
}

type InMemoryAssignmentStore struct {
	mu          sync.RWMutex
	assignments map[assignmentKey]models.RoleAssignment
	roles       *InMemoryRoleStore
}

// NewInMemoryAssignmentStore builds an assignment store that resolves
// nested roles through the given role store, mirroring the join the
// postgres implementation performs.
func NewInMemoryAssignmentStore(roles *InMemoryRoleStore) *InMemoryAssignmentStore {
	return &InMemoryAssignmentStore{
		assignments: make(map[assignmentKey]models.RoleAssignment),
		roles:       roles,
	}
}

func (s *InMemoryAssignmentStore) Save(ctx context.Context, assignment models.RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[assignmentKey{assignment.UserID, assignment.RoleID}] = assignment
	return nil
}

func (s *InMemoryAssignmentStore) Remove(_ context.Context, userID id.UserID, roleID id.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := assignmentKey{userID, roleID}
	if _, ok := s.assignments[key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.assignments, key)
	return nil
}

func (s *InMemoryAssignmentStore) ListActiveForUser(ctx context.Context, userID id.UserID, now time.Time) ([]models.RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.RoleAssignment
	for _, assignment := range s.assignments {
		if assignment.UserID != userID || !assignment.Active(now) {
			continue
		}
		if role, err := s.roles.FindByID(ctx, assignment.RoleID); err == nil {
			assignment.Role = role
		}
		out = append(out, assignment)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryAssignmentStore) CountForRole(_ context.Context, roleID id.RoleID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, assignment := range s.assignments {
		if assignment.RoleID == roleID {
			count++
		}
	}
	return count, nil
}
