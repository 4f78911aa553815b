package store

import (
	"context"
	"sort"
	"sync"

	"veritrail/internal/observations/models"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

// In-memory stores back unit tests and development runs.

type InMemoryObservationStore struct {
	mu           sync.RWMutex
	observations map[id.ObservationID]models.Observation
}

func NewInMemoryObservationStore() *InMemoryObservationStore {
	return &InMemoryObservationStore{observations: make(map[id.ObservationID]models.Observation)}
}

func (s *InMemoryObservationStore) Save(_ context.Context, obs models.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observations[obs.ID] = obs
	return nil
}

func (s *InMemoryObservationStore) FindByID(_ context.Context, obsID id.ObservationID) (models.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if obs, ok := s.observations[obsID]; ok {
		return obs, nil
	}
	return models.Observation{}, sentinel.ErrNotFound
}

func (s *InMemoryObservationStore) List(_ context.Context, entityID *id.EntityID, limit int) ([]models.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Observation
	for _, obs := range s.observations {
		if entityID != nil && (obs.EntityID == nil || *obs.EntityID != *entityID) {
			continue
		}
		out = append(out, obs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryObservationStore) Delete(_ context.Context, obsID id.ObservationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.observations[obsID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.observations, obsID)
	return nil
}

type InMemoryEvidenceStore struct {
	mu       sync.RWMutex
	evidence map[id.EvidenceID]models.Evidence
}

func NewInMemoryEvidenceStore() *InMemoryEvidenceStore {
	return &InMemoryEvidenceStore{evidence: make(map[id.EvidenceID]models.Evidence)}
}

func (s *InMemoryEvidenceStore) Save(_ context.Context, ev models.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evidence[ev.ID] = ev
	return nil
}

func (s *InMemoryEvidenceStore) FindByID(_ context.Context, evID id.EvidenceID) (models.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ev, ok := s.evidence[evID]; ok {
		return ev, nil
	}
	return models.Evidence{}, sentinel.ErrNotFound
}

func (s *InMemoryEvidenceStore) ListByObservation(_ context.Context, obsID id.ObservationID) ([]models.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Evidence
	for _, ev := range s.evidence {
		if ev.ObservationID == obsID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}
