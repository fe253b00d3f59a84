package profile

import (
	"context"
	"sync"

	"comitia/internal/identity/models"
	id "comitia/pkg/domain"
	"comitia/pkg/platform/sentinel"
)

// InMemory keeps voter and candidate profiles in maps guarded by a single
// RWMutex. Credential uniqueness is enforced here so the service's
// collision-retry loop behaves the same as against Postgres.
type InMemory struct {
	mu            sync.RWMutex
	voters        map[id.UserID]models.VoterProfile
	byVoterID     map[string]id.UserID
	candidates    map[id.UserID]models.CandidateProfile
	byCandidateID map[string]id.UserID
}

func NewInMemory() *InMemory {
	return &InMemory{
		voters:        make(map[id.UserID]models.VoterProfile),
		byVoterID:     make(map[string]id.UserID),
		candidates:    make(map[id.UserID]models.CandidateProfile),
		byCandidateID: make(map[string]id.UserID),
	}
}

func (s *InMemory) CreateVoterProfile(_ context.Context, p *models.VoterProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.voters[p.UserID]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.byVoterID[p.VoterID]; exists {
		return sentinel.ErrConflict
	}
	s.voters[p.UserID] = *p
	s.byVoterID[p.VoterID] = p.UserID
	return nil
}

func (s *InMemory) FindVoterProfile(_ context.Context, userID id.UserID) (*models.VoterProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.voters[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (s *InMemory) CreateCandidateProfile(_ context.Context, p *models.CandidateProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.candidates[p.UserID]; exists && existing.Active() {
		return sentinel.ErrConflict
	}
	if owner, exists := s.byCandidateID[p.CandidateID]; exists && owner != p.UserID {
		return sentinel.ErrConflict
	}
	s.candidates[p.UserID] = *p
	s.byCandidateID[p.CandidateID] = p.UserID
	return nil
}

func (s *InMemory) FindCandidateProfile(_ context.Context, userID id.UserID) (*models.CandidateProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.candidates[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (s *InMemory) UpdateCandidateProfile(_ context.Context, p *models.CandidateProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.candidates[p.UserID]; !ok {
		return sentinel.ErrNotFound
	}
	s.candidates[p.UserID] = *p
	return nil
}
