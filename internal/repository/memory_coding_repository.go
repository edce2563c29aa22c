package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/models"
)

type MemoryCodingRuleStore struct {
	mu       sync.RWMutex
	byRegion map[string]map[string]models.CodingRule
}

func NewMemoryCodingRuleStore() *MemoryCodingRuleStore {
	return &MemoryCodingRuleStore{byRegion: make(map[string]map[string]models.CodingRule)}
}

func (s *MemoryCodingRuleStore) ListByRegion(_ context.Context, regionID string) ([]models.CodingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rules := make([]models.CodingRule, 0, len(s.byRegion[regionID]))
	for _, r := range s.byRegion[regionID] {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

func (s *MemoryCodingRuleStore) Save(_ context.Context, rule models.CodingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byRegion[rule.RegionID] == nil {
		s.byRegion[rule.RegionID] = make(map[string]models.CodingRule)
	}
	s.byRegion[rule.RegionID][rule.ID] = rule
	return nil
}

// MemoryExemptionStore indexes requests by vehicle and driver.
type MemoryExemptionStore struct {
	mu        sync.RWMutex
	byID      map[string]models.ExemptionRequest
	byVehicle map[string][]string
	byDriver  map[string][]string
}

func NewMemoryExemptionStore() *MemoryExemptionStore {
	return &MemoryExemptionStore{
		byID:      make(map[string]models.ExemptionRequest),
		byVehicle: make(map[string][]string),
		byDriver:  make(map[string][]string),
	}
}

func (s *MemoryExemptionStore) ListCovering(_ context.Context, vehicleID, driverID string, now time.Time) ([]models.ExemptionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []models.ExemptionRequest
	collect := func(ids []string) {
		for _, id := range ids {
			e := s.byID[id]
			if !seen[id] && e.Covers(now) {
				seen[id] = true
				out = append(out, e)
			}
		}
	}
	collect(s.byVehicle[vehicleID])
	if driverID != "" {
		collect(s.byDriver[driverID])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryExemptionStore) IncrementUsage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return errors.NewNotFoundError("exemption request", id)
	}
	e.UsageCount++
	s.byID[id] = e
	return nil
}

func (s *MemoryExemptionStore) Save(_ context.Context, e models.ExemptionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[e.ID]; !exists {
		if e.VehicleID != "" {
			s.byVehicle[e.VehicleID] = append(s.byVehicle[e.VehicleID], e.ID)
		}
		if e.DriverID != "" {
			s.byDriver[e.DriverID] = append(s.byDriver[e.DriverID], e.ID)
		}
	}
	s.byID[e.ID] = e
	return nil
}
