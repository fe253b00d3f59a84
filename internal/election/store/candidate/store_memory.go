package candidate

import (
	"context"
	"sort"
	"sync"

	"comitia/internal/election/models"
	id "comitia/pkg/domain"
	"comitia/pkg/platform/sentinel"
)

// InMemory keeps candidacies in a map guarded by a RWMutex. It enforces the
// (election, position, user) uniqueness. Ballot assignment relies on the
// caller running inside the transaction runner, which serializes the
// max-then-insert sequence.
type InMemory struct {
	mu          sync.RWMutex
	candidacies map[id.CandidacyID]models.Candidacy
}

func NewInMemory() *InMemory {
	return &InMemory{candidacies: make(map[id.CandidacyID]models.Candidacy)}
}

func (s *InMemory) Create(_ context.Context, c *models.Candidacy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.candidacies[c.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range s.candidacies {
		if existing.ElectionID == c.ElectionID && existing.PositionID == c.PositionID && existing.UserID == c.UserID {
			return sentinel.ErrConflict
		}
	}
	s.candidacies[c.ID] = *c
	return nil
}

func (s *InMemory) FindByID(_ context.Context, candidacyID id.CandidacyID) (*models.Candidacy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.candidacies[candidacyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *InMemory) Update(_ context.Context, c *models.Candidacy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.candidacies[c.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.candidacies[c.ID] = *c
	return nil
}

// MaxAssignedBallotNumber returns the highest ballot number ever assigned
// for the position, zero when none. Withdrawn candidates keep their number
// and it is never reused, so the scan ignores status.
func (s *InMemory) MaxAssignedBallotNumber(_ context.Context, electionID id.ElectionID, positionID id.PositionID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	max := 0
	for _, c := range s.candidacies {
		if c.ElectionID == electionID && c.PositionID == positionID && c.BallotNumber > max {
			max = c.BallotNumber
		}
	}
	return max, nil
}

// CountApproved returns how many approved candidacies the position has.
// The per-position candidate cap checks it.
func (s *InMemory) CountApproved(_ context.Context, electionID id.ElectionID, positionID id.PositionID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, c := range s.candidacies {
		if c.ElectionID == electionID && c.PositionID == positionID && c.Status == models.CandidacyApproved {
			count++
		}
	}
	return count, nil
}

// ListApprovedByPosition returns the ballot for one position, ordered by
// ballot number.
func (s *InMemory) ListApprovedByPosition(_ context.Context, electionID id.ElectionID, positionID id.PositionID) ([]models.Candidacy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Candidacy
	for _, c := range s.candidacies {
		if c.ElectionID == electionID && c.PositionID == positionID && c.OnBallot() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].BallotNumber < out[j].BallotNumber
	})
	return out, nil
}

// ListByElection returns every candidacy for the election, newest last.
func (s *InMemory) ListByElection(_ context.Context, electionID id.ElectionID) ([]models.Candidacy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Candidacy
	for _, c := range s.candidacies {
		if c.ElectionID == electionID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out, nil
}
