package memory

import (
	"context"
	"sync"

	"github.com/sessionlens/analyzer/internal/domain/analysis"
)

var _ analysis.ObservationRepository = (*ObservationStore)(nil)

// ObservationStore is an in-memory observation catalog.
type ObservationStore struct {
	mu           sync.RWMutex
	observations []analysis.Observation
}

// NewObservationStore creates a catalog holding the given entries.
func NewObservationStore(observations []analysis.Observation) *ObservationStore {
	return &ObservationStore{observations: observations}
}

// List returns the catalog in insertion order.
func (s *ObservationStore) List(ctx context.Context) ([]analysis.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]analysis.Observation, len(s.observations))
	copy(out, s.observations)
	return out, nil
}

// Get loads one catalog entry by id, or (nil, nil) if absent.
func (s *ObservationStore) Get(ctx context.Context, id int64) (*analysis.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, obs := range s.observations {
		if obs.ID() == id {
			found := obs
			return &found, nil
		}
	}
	return nil, nil
}
