package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/models"
)

type MemoryRuleStore struct {
	mu    sync.RWMutex
	rules map[string]models.MonitoringRule
}

func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{rules: make(map[string]models.MonitoringRule)}
}

func (s *MemoryRuleStore) Get(_ context.Context, id string) (*models.MonitoringRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, errors.NewNotFoundError("monitoring rule", id)
	}
	return &r, nil
}

func (s *MemoryRuleStore) List(_ context.Context) ([]models.MonitoringRule, error) {
	return s.filter(func(models.MonitoringRule) bool { return true }), nil
}

func (s *MemoryRuleStore) ListDue(_ context.Context, now time.Time) ([]models.MonitoringRule, error) {
	return s.filter(func(r models.MonitoringRule) bool { return r.IsDue(now) }), nil
}

func (s *MemoryRuleStore) filter(keep func(models.MonitoringRule) bool) []models.MonitoringRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.MonitoringRule, 0, len(s.rules))
	for _, r := range s.rules {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryRuleStore) Save(_ context.Context, rule models.MonitoringRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.ID] = rule
	return nil
}

func (s *MemoryRuleStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return errors.NewNotFoundError("monitoring rule", id)
	}
	delete(s.rules, id)
	return nil
}

func (s *MemoryRuleStore) MarkRun(_ context.Context, id string, ranAt, nextRunAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return errors.NewNotFoundError("monitoring rule", id)
	}
	r.LastRunAt = &ranAt
	r.NextRunAt = nextRunAt
	s.rules[id] = r
	return nil
}
