package user

import (
	"context"
	"strings"
	"sync"

	"comitia/internal/identity/models"
	id "comitia/pkg/domain"
	"comitia/pkg/platform/sentinel"
)

// InMemory keeps users in a map guarded by a RWMutex. It enforces the same
// national-id uniqueness the Postgres schema does, so services behave
// identically against either implementation.
type InMemory struct {
	mu         sync.RWMutex
	users      map[id.UserID]models.User
	byNational map[string]id.UserID
}

func NewInMemory() *InMemory {
	return &InMemory{
		users:      make(map[id.UserID]models.User),
		byNational: make(map[string]id.UserID),
	}
}

func normalizeNationalID(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Create inserts a user, rejecting duplicate IDs and national IDs.
func (s *InMemory) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID]; exists {
		return sentinel.ErrConflict
	}
	key := normalizeNationalID(u.NationalID)
	if _, exists := s.byNational[key]; exists {
		return sentinel.ErrConflict
	}

	s.users[u.ID] = *u
	s.byNational[key] = u.ID
	return nil
}

// FindByID returns a copy of the stored user.
func (s *InMemory) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &u, nil
}

// FindByNationalID returns a copy of the user holding the national ID.
func (s *InMemory) FindByNationalID(_ context.Context, nationalID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.byNational[normalizeNationalID(nationalID)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	u := s.users[userID]
	return &u, nil
}

// Update persists role/verification changes for an existing user.
// The national ID is immutable; updates that try to change it fail.
func (s *InMemory) Update(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.users[u.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if normalizeNationalID(stored.NationalID) != normalizeNationalID(u.NationalID) {
		return sentinel.ErrConflict
	}

	s.users[u.ID] = *u
	return nil
}

// CountByRole returns how many users hold the role. Reporting helper.
func (s *InMemory) CountByRole(_ context.Context, role models.Role) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, u := range s.users {
		if u.Role == role {
			count++
		}
	}
	return count, nil
}
