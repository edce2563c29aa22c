package repository

import (
	"context"
	"sync"
	"time"

	"fleet-compliance/internal/models"
)

type MemoryAlertStore struct {
	mu       sync.RWMutex
	byEntity map[string][]models.Alert
}

func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{byEntity: make(map[string][]models.Alert)}
}

func (s *MemoryAlertStore) Create(_ context.Context, alert models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byEntity[alert.EntityID] = append(s.byEntity[alert.EntityID], alert)
	return nil
}

func (s *MemoryAlertStore) ListActive(_ context.Context, entityID string) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Alert
	for _, a := range s.byEntity[entityID] {
		if a.Status == models.AlertActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryAlertStore) Resolve(_ context.Context, entityID string, domain models.Domain, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	alerts := s.byEntity[entityID]
	for i := range alerts {
		if alerts[i].Domain == domain && alerts[i].Status == models.AlertActive {
			resolvedAt := at
			alerts[i].Status = models.AlertResolved
			alerts[i].ResolvedAt = &resolvedAt
			n++
		}
	}
	return n, nil
}

// All returns every alert of the entity, active or not.
func (s *MemoryAlertStore) All(entityID string) []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Alert(nil), s.byEntity[entityID]...)
}
