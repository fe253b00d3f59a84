package election

import (
	"context"
	"sort"
	"strings"
	"sync"

	"comitia/internal/election/models"
	id "comitia/pkg/domain"
	"comitia/pkg/platform/sentinel"
)

// InMemory keeps elections and their positions in maps guarded by one
// RWMutex. Position titles are unique per election, matching the schema.
type InMemory struct {
	mu        sync.RWMutex
	elections map[id.ElectionID]models.Election
	positions map[id.PositionID]models.Position
}

func NewInMemory() *InMemory {
	return &InMemory{
		elections: make(map[id.ElectionID]models.Election),
		positions: make(map[id.PositionID]models.Position),
	}
}

func (s *InMemory) Create(_ context.Context, e *models.Election) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.elections[e.ID]; exists {
		return sentinel.ErrConflict
	}
	s.elections[e.ID] = *e
	return nil
}

func (s *InMemory) FindByID(_ context.Context, electionID id.ElectionID) (*models.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.elections[electionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &e, nil
}

func (s *InMemory) Update(_ context.Context, e *models.Election) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.elections[e.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.elections[e.ID] = *e
	return nil
}

// List returns all elections ordered by creation time.
func (s *InMemory) List(_ context.Context) ([]models.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Election, 0, len(s.elections))
	for _, e := range s.elections {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemory) CreatePosition(_ context.Context, p *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.positions[p.ID]; exists {
		return sentinel.ErrConflict
	}
	title := strings.ToLower(p.Title)
	for _, existing := range s.positions {
		if existing.ElectionID == p.ElectionID && strings.ToLower(existing.Title) == title {
			return sentinel.ErrConflict
		}
	}
	s.positions[p.ID] = *p
	return nil
}

func (s *InMemory) FindPosition(_ context.Context, positionID id.PositionID) (*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[positionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

// ListActivePositions returns an election's active positions in display
// order. The ballot is rendered from this.
func (s *InMemory) ListActivePositions(_ context.Context, electionID id.ElectionID) ([]models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Position
	for _, p := range s.positions {
		if p.ElectionID == electionID && p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DisplayOrder < out[j].DisplayOrder
	})
	return out, nil
}
