// Package memory provides an in-memory audit store for tests and local
// development.
package memory

import (
	"context"
	"sync"

	"veritrail/internal/audittrail"
	id "veritrail/pkg/domain"
)

// Store keeps entries in an append-only slice. Reads return copies in
// reverse insertion order, newest first.
type Store struct {
	mu      sync.RWMutex
	entries []audittrail.Entry
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, entry audittrail.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *Store) ListRecent(_ context.Context, limit int) ([]audittrail.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(limit, func(audittrail.Entry) bool { return true }), nil
}

func (s *Store) ListByActor(_ context.Context, userID id.UserID, limit int) ([]audittrail.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(limit, func(e audittrail.Entry) bool {
		return e.ActorUserID != nil && *e.ActorUserID == userID
	}), nil
}

func (s *Store) ListByResource(_ context.Context, resource, resourceID string, limit int) ([]audittrail.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(limit, func(e audittrail.Entry) bool {
		return e.Resource == resource && e.ResourceID == resourceID
	}), nil
}

func (s *Store) filter(limit int, keep func(audittrail.Entry) bool) []audittrail.Entry {
	var out []audittrail.Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if keep(s.entries[i]) {
			out = append(out, s.entries[i])
		}
	}
	return out
}
