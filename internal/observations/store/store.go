// Package store persists observations and their evidence metadata.
// Interfaces are defined here and consumed by the observations service
// and the resource registry loaders; memory and postgres implementations
// live alongside.
package store

import (
	"context"

	"veritrail/internal/observations/models"
	id "veritrail/pkg/domain"
)

// ObservationStore persists observations.
type ObservationStore interface {
	Save(ctx context.Context, obs models.Observation) error
	FindByID(ctx context.Context, obsID id.ObservationID) (models.Observation, error)

	// List returns observations newest first, optionally filtered to one
	// entity. limit <= 0 means no limit.
	List(ctx context.Context, entityID *id.EntityID, limit int) ([]models.Observation, error)

	Delete(ctx context.Context, obsID id.ObservationID) error
}

// EvidenceStore persists evidence metadata.
type EvidenceStore interface {
	Save(ctx context.Context, ev models.Evidence) error
	FindByID(ctx context.Context, evID id.EvidenceID) (models.Evidence, error)
	ListByObservation(ctx context.Context, obsID id.ObservationID) ([]models.Evidence, error)
}
