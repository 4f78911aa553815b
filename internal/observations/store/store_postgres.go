package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"veritrail/internal/observations/models"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

type PostgresObservationStore struct {
	db *sql.DB
}

func NewPostgresObservationStore(db *sql.DB) *PostgresObservationStore {
	return &PostgresObservationStore{db: db}
}

const observationColumns = `id, entity_id, owner_id, title, description, severity, status, created_at, updated_at`

func (s *PostgresObservationStore) Save(ctx context.Context, obs models.Observation) error {
	query := `
		INSERT INTO observations (id, entity_id, owner_id, title, description, severity, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			severity = EXCLUDED.severity,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`
	var entityID *uuid.UUID
	if obs.EntityID != nil {
		u := uuid.UUID(*obs.EntityID)
		entityID = &u
	}
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(obs.ID), entityID, uuid.UUID(obs.OwnerID), obs.Title, obs.Description,
		string(obs.Severity), string(obs.Status), obs.CreatedAt, obs.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save observation: %w", err)
	}
	return nil
}

func (s *PostgresObservationStore) FindByID(ctx context.Context, obsID id.ObservationID) (models.Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM observations WHERE id = $1`
	obs, err := scanObservation(s.db.QueryRowContext(ctx, query, uuid.UUID(obsID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Observation{}, sentinel.ErrNotFound
		}
		return models.Observation{}, fmt.Errorf("find observation: %w", err)
	}
	return obs, nil
}

func (s *PostgresObservationStore) List(ctx context.Context, entityID *id.EntityID, limit int) ([]models.Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM observations`
	args := make([]any, 0, 2)
	if entityID != nil {
		query += ` WHERE entity_id = $1`
		args = append(args, uuid.UUID(*entityID))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	var out []models.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("list observations: %w", err)
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

func (s *PostgresObservationStore) Delete(ctx context.Context, obsID id.ObservationID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM observations WHERE id = $1`, uuid.UUID(obsID))
	if err != nil {
		return fmt.Errorf("delete observation: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (models.Observation, error) {
	var (
		obs         models.Observation
		obsID       uuid.UUID
		entityID    *uuid.UUID
		ownerID     uuid.UUID
		description sql.NullString
		severity    string
		status      string
	)
	err := row.Scan(&obsID, &entityID, &ownerID, &obs.Title, &description,
		&severity, &status, &obs.CreatedAt, &obs.UpdatedAt)
	if err != nil {
		return models.Observation{}, err
	}
	obs.ID = id.ObservationID(obsID)
	if entityID != nil {
		e := id.EntityID(*entityID)
		obs.EntityID = &e
	}
	obs.OwnerID = id.UserID(ownerID)
	obs.Description = description.String
	obs.Severity = models.Severity(severity)
	obs.Status = models.Status(status)
	return obs, nil
}

type PostgresEvidenceStore struct {
	db *sql.DB
}

func NewPostgresEvidenceStore(db *sql.DB) *PostgresEvidenceStore {
	return &PostgresEvidenceStore{db: db}
}

const evidenceColumns = `id, observation_id, file_name, content_type, size_bytes, uploaded_by, uploaded_at`

func (s *PostgresEvidenceStore) Save(ctx context.Context, ev models.Evidence) error {
	query := `
		INSERT INTO evidence (id, observation_id, file_name, content_type, size_bytes, uploaded_by, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(ev.ID), uuid.UUID(ev.ObservationID), ev.FileName, ev.ContentType,
		ev.SizeBytes, uuid.UUID(ev.UploadedBy), ev.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("save evidence: %w", err)
	}
	return nil
}

func (s *PostgresEvidenceStore) FindByID(ctx context.Context, evID id.EvidenceID) (models.Evidence, error) {
	query := `SELECT ` + evidenceColumns + ` FROM evidence WHERE id = $1`
	ev, err := scanEvidence(s.db.QueryRowContext(ctx, query, uuid.UUID(evID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Evidence{}, sentinel.ErrNotFound
		}
		return models.Evidence{}, fmt.Errorf("find evidence: %w", err)
	}
	return ev, nil
}

func (s *PostgresEvidenceStore) ListByObservation(ctx context.Context, obsID id.ObservationID) ([]models.Evidence, error) {
	query := `SELECT ` + evidenceColumns + ` FROM evidence WHERE observation_id = $1 ORDER BY uploaded_at DESC`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(obsID))
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()

	var out []models.Evidence
	for rows.Next() {
		ev, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("list evidence: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanEvidence(row rowScanner) (models.Evidence, error) {
	var (
		ev          models.Evidence
		evID        uuid.UUID
		obsID       uuid.UUID
		contentType sql.NullString
		uploadedBy  uuid.UUID
	)
	err := row.Scan(&evID, &obsID, &ev.FileName, &contentType, &ev.SizeBytes, &uploadedBy, &ev.UploadedAt)
	if err != nil {
		return models.Evidence{}, err
	}
	ev.ID = id.EvidenceID(evID)
	ev.ObservationID = id.ObservationID(obsID)
	ev.ContentType = contentType.String
	ev.UploadedBy = id.UserID(uploadedBy)
	return ev, nil
}
