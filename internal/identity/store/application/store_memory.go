package application

import (
	"context"
	"sort"
	"sync"

	"comitia/internal/identity/models"
	id "comitia/pkg/domain"
	"comitia/pkg/platform/sentinel"
)

// InMemory keeps role applications in maps guarded by a RWMutex. It
// enforces the partial uniqueness the schema declares: one open
// application per (user, type); decided applications never conflict.
type InMemory struct {
	mu   sync.RWMutex
	apps map[id.ApplicationID]models.RoleApplication
}

func NewInMemory() *InMemory {
	return &InMemory{apps: make(map[id.ApplicationID]models.RoleApplication)}
}

func (s *InMemory) violates(a *models.RoleApplication) bool {
	if a.Status.IsTerminal() {
		return false
	}
	for appID, existing := range s.apps {
		if appID == a.ID {
			continue
		}
		if existing.UserID == a.UserID && existing.Type == a.Type && !existing.Status.IsTerminal() {
			return true
		}
	}
	return false
}

func (s *InMemory) Create(_ context.Context, a *models.RoleApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.apps[a.ID]; exists {
		return sentinel.ErrConflict
	}
	if s.violates(a) {
		return sentinel.ErrConflict
	}
	s.apps[a.ID] = *a
	return nil
}

func (s *InMemory) FindByID(_ context.Context, appID id.ApplicationID) (*models.RoleApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.apps[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &a, nil
}

// FindOpenByUserAndType returns the user's live (not yet decided)
// application of the given type.
func (s *InMemory) FindOpenByUserAndType(_ context.Context, userID id.UserID, appType models.ApplicationType) (*models.RoleApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.apps {
		if a.UserID == userID && a.Type == appType && !a.Status.IsTerminal() {
			found := a
			return &found, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) Update(_ context.Context, a *models.RoleApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apps[a.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if s.violates(a) {
		return sentinel.ErrConflict
	}
	s.apps[a.ID] = *a
	return nil
}

// ListByStatus returns applications in submission order. Review queues for
// officials read this.
func (s *InMemory) ListByStatus(_ context.Context, status models.ApplicationStatus) ([]models.RoleApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.RoleApplication
	for _, a := range s.apps {
		if a.Status == status {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}
