package result

import (
	"context"
	"sort"
	"sync"
	"time"

	"comitia/internal/election/models"
	id "comitia/pkg/domain"
	"comitia/pkg/platform/sentinel"
)

// InMemory keeps tabulated results keyed by election.
type InMemory struct {
	mu      sync.RWMutex
	results map[id.ElectionID][]models.Result
}

func NewInMemory() *InMemory {
	return &InMemory{results: make(map[id.ElectionID][]models.Result)}
}

// ReplaceForElection swaps the election's result set for a fresh
// tabulation. Re-running tabulation before publication overwrites; the
// service rejects tabulation after publication.
func (s *InMemory) ReplaceForElection(_ context.Context, electionID id.ElectionID, results []models.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[electionID] = append([]models.Result{}, results...)
	return nil
}

// ListByElection returns results ordered by position then rank.
func (s *InMemory) ListByElection(_ context.Context, electionID id.ElectionID) ([]models.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.results[electionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := append([]models.Result{}, stored...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].PositionID != out[j].PositionID {
			return out[i].PositionID.String() < out[j].PositionID.String()
		}
		return out[i].Rank < out[j].Rank
	})
	return out, nil
}

// MarkPublished stamps PublishedAt on every result of the election.
func (s *InMemory) MarkPublished(_ context.Context, electionID id.ElectionID, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.results[electionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	for i := range stored {
		stored[i].PublishedAt = publishedAt
	}
	return nil
}
