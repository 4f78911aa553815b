// Package postgres persists audit entries in the audit_log table.
// Entry columns are append-only; the single permitted update is stamping
// published_at once the outbox worker has shipped an entry downstream.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"veritrail/internal/audittrail"
	id "veritrail/pkg/domain"
)

const defaultLimit = 100

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const insertQuery = `
	INSERT INTO audit_log (
		id, timestamp, actor_user_id, actor_email, action,
		resource, resource_id, description, previous_value, new_value,
		ip_address, user_agent, session_id, request_id
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (id) DO NOTHING
`

func (s *Store) Append(ctx context.Context, entry audittrail.Entry) error {
	var actorID *uuid.UUID
	if entry.ActorUserID != nil {
		raw := uuid.UUID(*entry.ActorUserID)
		actorID = &raw
	}
	var sessionID *uuid.UUID
	if entry.SessionID != nil {
		raw := uuid.UUID(*entry.SessionID)
		sessionID = &raw
	}

	_, err := s.db.ExecContext(ctx, insertQuery,
		uuid.UUID(entry.ID),
		entry.Timestamp,
		actorID,
		nullable(entry.ActorEmail),
		string(entry.Action),
		entry.Resource,
		nullable(entry.ResourceID),
		entry.Description,
		nullableBytes(entry.PreviousValue),
		nullableBytes(entry.NewValue),
		nullable(entry.IPAddress),
		nullable(entry.UserAgent),
		sessionID,
		nullable(entry.RequestID),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, timestamp, actor_user_id, actor_email, action,
	       resource, resource_id, description, previous_value, new_value,
	       ip_address, user_agent, session_id, request_id
	FROM audit_log
`

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audittrail.Entry, error) {
	query := selectColumns + ` ORDER BY timestamp DESC LIMIT $1`
	rows, err := s.db.QueryContext(ctx, query, effectiveLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *Store) ListByActor(ctx context.Context, userID id.UserID, limit int) ([]audittrail.Entry, error) {
	query := selectColumns + ` WHERE actor_user_id = $1 ORDER BY timestamp DESC LIMIT $2`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(userID), effectiveLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query audit entries by actor: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *Store) ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]audittrail.Entry, error) {
	query := selectColumns + ` WHERE resource = $1 AND resource_id = $2 ORDER BY timestamp DESC LIMIT $3`
	rows, err := s.db.QueryContext(ctx, query, resource, resourceID, effectiveLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query audit entries by resource: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListUnpublished returns the oldest entries that have not yet been shipped
// to the downstream topic, oldest first so delivery preserves order.
func (s *Store) ListUnpublished(ctx context.Context, limit int) ([]audittrail.Entry, error) {
	query := selectColumns + ` WHERE published_at IS NULL ORDER BY timestamp ASC LIMIT $1`
	rows, err := s.db.QueryContext(ctx, query, effectiveLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query unpublished audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// MarkPublished stamps the given entries so the outbox worker never ships
// them twice.
func (s *Store) MarkPublished(ctx context.Context, ids []id.AuditEntryID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, entryID := range ids {
		raw[i] = entryID.String()
	}
	query := `UPDATE audit_log SET published_at = now() WHERE id = ANY($1::uuid[])`
	if _, err := s.db.ExecContext(ctx, query, raw); err != nil {
		return fmt.Errorf("mark audit entries published: %w", err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]audittrail.Entry, error) {
	var entries []audittrail.Entry
	for rows.Next() {
		var (
			entry      audittrail.Entry
			entryID    uuid.UUID
			actorID    *uuid.UUID
			sessionID  *uuid.UUID
			actorEmail sql.NullString
			resourceID sql.NullString
			ipAddress  sql.NullString
			userAgent  sql.NullString
			requestID  sql.NullString
			action     string
		)
		if err := rows.Scan(
			&entryID,
			&entry.Timestamp,
			&actorID,
			&actorEmail,
			&action,
			&entry.Resource,
			&resourceID,
			&entry.Description,
			&entry.PreviousValue,
			&entry.NewValue,
			&ipAddress,
			&userAgent,
			&sessionID,
			&requestID,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		entry.ID = id.AuditEntryID(entryID)
		entry.Action = audittrail.Action(action)
		entry.ActorEmail = actorEmail.String
		entry.ResourceID = resourceID.String
		entry.IPAddress = ipAddress.String
		entry.UserAgent = userAgent.String
		entry.RequestID = requestID.String
		if actorID != nil {
			userID := id.UserID(*actorID)
			entry.ActorUserID = &userID
		}
		if sessionID != nil {
			sid := id.SessionID(*sessionID)
			entry.SessionID = &sid
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func effectiveLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
