package service

import (
	"context"

	"veritrail/internal/authz/resource"
	"veritrail/internal/observations/store"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

// RegistryLoader adapts the observation store to the resource registry.
// A malformed ID reads as a missing record so probes with junk IDs get
// the same denial as probes with real ones.
func RegistryLoader(s store.ObservationStore) resource.LoadFunc {
	return func(ctx context.Context, rawID string) (resource.Record, error) {
		obsID, err := id.ParseObservationID(rawID)
		if err != nil {
			return resource.Record{}, sentinel.ErrNotFound
		}
		obs, err := s.FindByID(ctx, obsID)
		if err != nil {
			return resource.Record{}, err
		}
		return resource.Record{
			ID:          obs.ID.String(),
			OwnerID:     obs.OwnerID,
			EntityID:    obs.EntityID,
			DisplayName: obs.Title,
		}, nil
	}
}

// EvidenceRegistryLoader adapts the evidence store to the resource
// registry. The uploader owns the evidence record.
func EvidenceRegistryLoader(s store.EvidenceStore) resource.LoadFunc {
	return func(ctx context.Context, rawID string) (resource.Record, error) {
		evID, err := id.ParseEvidenceID(rawID)
		if err != nil {
			return resource.Record{}, sentinel.ErrNotFound
		}
		ev, err := s.FindByID(ctx, evID)
		if err != nil {
			return resource.Record{}, err
		}
		return resource.Record{
			ID:          ev.ID.String(),
			OwnerID:     ev.UploadedBy,
			DisplayName: ev.FileName,
		}, nil
	}
}
