package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/models"
)

// MemoryRecordStore keeps immutable record snapshots in a sync.Map and replaces them
// with compare-and-swap, so readers never share a lock with writers.
type MemoryRecordStore struct {
	records sync.Map // models.RecordKey -> *models.ComplianceRecord
	now     func() time.Time
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{now: time.Now}
}

func (s *MemoryRecordStore) Get(_ context.Context, entityID string, domain models.Domain) (*models.ComplianceRecord, error) {
	v, ok := s.records.Load(models.RecordKey{EntityID: entityID, Domain: domain})
	if !ok {
		return nil, errors.NewNotFoundError("compliance record", fmt.Sprintf("%s/%s", entityID, domain))
	}
	rec := v.(*models.ComplianceRecord).Clone()
	return &rec, nil
}

func (s *MemoryRecordStore) ListByDomain(_ context.Context, domain models.Domain) ([]models.ComplianceRecord, error) {
	return s.collect(func(r *models.ComplianceRecord) bool { return r.Domain == domain }), nil
}

func (s *MemoryRecordStore) ListByEntity(_ context.Context, entityID string) ([]models.ComplianceRecord, error) {
	return s.collect(func(r *models.ComplianceRecord) bool { return r.EntityID == entityID }), nil
}

func (s *MemoryRecordStore) collect(keep func(*models.ComplianceRecord) bool) []models.ComplianceRecord {
	var out []models.ComplianceRecord
	s.records.Range(func(_, v any) bool {
		if r := v.(*models.ComplianceRecord); keep(r) {
			out = append(out, r.Clone())
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityID != out[j].EntityID {
			return out[i].EntityID < out[j].EntityID
		}
		return out[i].Domain < out[j].Domain
	})
	return out
}

func (s *MemoryRecordStore) Create(_ context.Context, rec models.ComplianceRecord) error {
	if rec.EntityID == "" || !rec.Domain.IsCompliance() {
		return errors.NewValidationError("record", "entityId and a compliance domain are required")
	}
	stored := rec.Clone()
	stored.Version = 1
	stored.UpdatedAt = s.now().UTC()
	if _, loaded := s.records.LoadOrStore(rec.Key(), &stored); loaded {
		return errors.NewConflictError("compliance record", fmt.Sprintf("%s/%s already exists", rec.EntityID, rec.Domain))
	}
	return nil
}

func (s *MemoryRecordStore) Update(_ context.Context, rec models.ComplianceRecord) (*models.ComplianceRecord, error) {
	key := rec.Key()
	current, ok := s.records.Load(key)
	if !ok {
		return nil, errors.NewNotFoundError("compliance record", fmt.Sprintf("%s/%s", rec.EntityID, rec.Domain))
	}
	if current.(*models.ComplianceRecord).Version != rec.Version {
		return nil, staleVersion(rec)
	}

	next := rec.Clone()
	next.Version = rec.Version + 1
	next.UpdatedAt = s.now().UTC()
	if !s.records.CompareAndSwap(key, current, &next) {
		return nil, staleVersion(rec)
	}
	out := next.Clone()
	return &out, nil
}

func staleVersion(rec models.ComplianceRecord) error {
	return errors.NewConflictError("compliance record",
		fmt.Sprintf("%s/%s: stale version %d", rec.EntityID, rec.Domain, rec.Version))
}
