package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"veritrail/internal/identity/models"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

// Postgres stores are pure I/O; expiry checks and permission math belong to
// the resolver and the engine.

type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

const userColumns = `id, email, first_name, last_name, status, password_hash, created_at, updated_at`

func (s *PostgresUserStore) Save(ctx context.Context, user models.User) error {
	query := `
		INSERT INTO users (id, email, first_name, last_name, status, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			status = EXCLUDED.status,
			password_hash = EXCLUDED.password_hash,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(user.ID), user.Email, user.FirstName, user.LastName,
		string(user.Status), user.PasswordHash, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) FindByID(ctx context.Context, userID id.UserID) (models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, uuid.UUID(userID))
	return scanUser(row)
}

func (s *PostgresUserStore) FindByEmail(ctx context.Context, email string) (models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (models.User, error) {
	var (
		user   models.User
		rawID  uuid.UUID
		status string
	)
	err := row.Scan(&rawID, &user.Email, &user.FirstName, &user.LastName,
		&status, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, sentinel.ErrNotFound
		}
		return models.User{}, fmt.Errorf("scan user: %w", err)
	}
	user.ID = id.UserID(rawID)
	user.Status = models.UserStatus(status)
	return user, nil
}

type PostgresSessionStore struct {
	db *sql.DB
}

func NewPostgresSessionStore(db *sql.DB) *PostgresSessionStore {
	return &PostgresSessionStore{db: db}
}

const sessionColumns = `id, user_id, created_at, last_activity_at, expires_at, ip_address, user_agent`

func (s *PostgresSessionStore) Save(ctx context.Context, session models.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, created_at, last_activity_at, expires_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			last_activity_at = EXCLUDED.last_activity_at,
			expires_at = EXCLUDED.expires_at
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(session.ID), uuid.UUID(session.UserID), session.CreatedAt,
		session.LastActivityAt, session.ExpiresAt, session.IPAddress, session.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) FindByID(ctx context.Context, sessionID id.SessionID) (models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, uuid.UUID(sessionID))
	session, err := scanSession(row)
	if err != nil {
		return models.Session{}, err
	}
	return session, nil
}

func (s *PostgresSessionStore) Touch(ctx context.Context, sessionID id.SessionID, at time.Time) error {
	// Last-writer-wins; concurrent touches tolerate lost updates.
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity_at = $2 WHERE id = $1`,
		uuid.UUID(sessionID), at)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) Delete(ctx context.Context, sessionID id.SessionID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, uuid.UUID(sessionID))
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) ListByUser(ctx context.Context, userID id.UserID) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 ORDER BY created_at`,
		uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (models.Session, error) {
	var (
		session       models.Session
		rawID, rawUID uuid.UUID
		ip, ua        sql.NullString
	)
	err := row.Scan(&rawID, &rawUID, &session.CreatedAt, &session.LastActivityAt,
		&session.ExpiresAt, &ip, &ua)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Session{}, sentinel.ErrNotFound
		}
		return models.Session{}, fmt.Errorf("scan session: %w", err)
	}
	session.ID = id.SessionID(rawID)
	session.UserID = id.UserID(rawUID)
	session.IPAddress = ip.String
	session.UserAgent = ua.String
	return session, nil
}

type PostgresRoleStore struct {
	db *sql.DB
}

func NewPostgresRoleStore(db *sql.DB) *PostgresRoleStore {
	return &PostgresRoleStore{db: db}
}

func (s *PostgresRoleStore) Save(ctx context.Context, role models.Role) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save role: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO roles (id, name, display_name, level, is_system_role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			display_name = EXCLUDED.display_name,
			level = EXCLUDED.level
	`, uuid.UUID(role.ID), role.Name, role.DisplayName, role.Level, role.IsSystemRole)
	if err != nil {
		return fmt.Errorf("save role: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1`, uuid.UUID(role.ID)); err != nil {
		return fmt.Errorf("clear role permissions: %w", err)
	}
	for _, perm := range role.Permissions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, resource, action, scope)
			VALUES ($1, $2, $3, $4)
		`, uuid.UUID(role.ID), perm.Resource, perm.Action, string(perm.Scope))
		if err != nil {
			return fmt.Errorf("save role permission: %w", err)
		}
	}

	return tx.Commit()
}

func (s *PostgresRoleStore) FindByID(ctx context.Context, roleID id.RoleID) (models.Role, error) {
	return s.findOne(ctx, `WHERE id = $1`, uuid.UUID(roleID))
}

func (s *PostgresRoleStore) FindByName(ctx context.Context, name string) (models.Role, error) {
	return s.findOne(ctx, `WHERE name = $1`, name)
}

func (s *PostgresRoleStore) findOne(ctx context.Context, where string, arg any) (models.Role, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, display_name, level, is_system_role FROM roles `+where, arg)

	var (
		role  models.Role
		rawID uuid.UUID
	)
	err := row.Scan(&rawID, &role.Name, &role.DisplayName, &role.Level, &role.IsSystemRole)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Role{}, sentinel.ErrNotFound
		}
		return models.Role{}, fmt.Errorf("scan role: %w", err)
	}
	role.ID = id.RoleID(rawID)

	role.Permissions, err = s.loadPermissions(ctx, role.ID)
	if err != nil {
		return models.Role{}, err
	}
	return role, nil
}

func (s *PostgresRoleStore) loadPermissions(ctx context.Context, roleID id.RoleID) ([]models.Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT resource, action, scope FROM role_permissions WHERE role_id = $1`,
		uuid.UUID(roleID))
	if err != nil {
		return nil, fmt.Errorf("load role permissions: %w", err)
	}
	defer rows.Close()

	var perms []models.Permission
	for rows.Next() {
		var (
			perm  models.Permission
			scope string
		)
		if err := rows.Scan(&perm.Resource, &perm.Action, &scope); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perm.Scope = models.Scope(scope)
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

func (s *PostgresRoleStore) List(ctx context.Context) ([]models.Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, display_name, level, is_system_role FROM roles ORDER BY level DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var (
			role  models.Role
			rawID uuid.UUID
		)
		if err := rows.Scan(&rawID, &role.Name, &role.DisplayName, &role.Level, &role.IsSystemRole); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		role.ID = id.RoleID(rawID)
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range roles {
		roles[i].Permissions, err = s.loadPermissions(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return roles, nil
}

func (s *PostgresRoleStore) Delete(ctx context.Context, roleID id.RoleID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, uuid.UUID(roleID))
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type PostgresAssignmentStore struct {
	db *sql.DB
}

func NewPostgresAssignmentStore(db *sql.DB) *PostgresAssignmentStore {
	return &PostgresAssignmentStore{db: db}
}

func (s *PostgresAssignmentStore) Save(ctx context.Context, assignment models.RoleAssignment) error {
	var entityID any
	if assignment.EntityID != nil {
		entityID = uuid.UUID(*assignment.EntityID)
	}
	query := `
		INSERT INTO role_assignments (user_id, role_id, entity_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, role_id) DO UPDATE SET
			entity_id = EXCLUDED.entity_id,
			expires_at = EXCLUDED.expires_at
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(assignment.UserID), uuid.UUID(assignment.RoleID),
		entityID, assignment.ExpiresAt, assignment.CreatedAt)
	if err != nil {
		return fmt.Errorf("save role assignment: %w", err)
	}
	return nil
}

func (s *PostgresAssignmentStore) Remove(ctx context.Context, userID id.UserID, roleID id.RoleID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM role_assignments WHERE user_id = $1 AND role_id = $2`,
		uuid.UUID(userID), uuid.UUID(roleID))
	if err != nil {
		return fmt.Errorf("remove role assignment: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresAssignmentStore) ListActiveForUser(ctx context.Context, userID id.UserID, now time.Time) ([]models.RoleAssignment, error) {
	query := `
		SELECT a.user_id, a.role_id, a.entity_id, a.expires_at, a.created_at,
		       r.name, r.display_name, r.level, r.is_system_role
		FROM role_assignments a
		JOIN roles r ON r.id = a.role_id
		WHERE a.user_id = $1
		  AND (a.expires_at IS NULL OR a.expires_at > $2)
		ORDER BY a.created_at
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(userID), now)
	if err != nil {
		return nil, fmt.Errorf("list active assignments: %w", err)
	}
	defer rows.Close()

	roleStore := PostgresRoleStore{db: s.db}
	var out []models.RoleAssignment
	for rows.Next() {
		var (
			assignment     models.RoleAssignment
			rawUID, rawRID uuid.UUID
			rawEntity      *uuid.UUID
			expiresAt      sql.NullTime
		)
		err := rows.Scan(&rawUID, &rawRID, &rawEntity, &expiresAt, &assignment.CreatedAt,
			&assignment.Role.Name, &assignment.Role.DisplayName,
			&assignment.Role.Level, &assignment.Role.IsSystemRole)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignment.UserID = id.UserID(rawUID)
		assignment.RoleID = id.RoleID(rawRID)
		assignment.Role.ID = id.RoleID(rawRID)
		if rawEntity != nil {
			entityID := id.EntityID(*rawEntity)
			assignment.EntityID = &entityID
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			assignment.ExpiresAt = &t
		}
		out = append(out, assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		out[i].Role.Permissions, err = roleStore.loadPermissions(ctx, out[i].RoleID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresAssignmentStore) CountForRole(ctx context.Context, roleID id.RoleID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM role_assignments WHERE role_id = $1`,
		uuid.UUID(roleID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count assignments: %w", err)
	}
	return count, nil
}
