package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/models"
)

// MemoryViolationStore indexes violations by id, dedup key and entity.
// Each per-entity index is kept sorted by violation date so window counts are binary searches.
type MemoryViolationStore struct {
	mu       sync.RWMutex
	byID     map[string]models.Violation
	byDedup  map[string]string
	byEntity map[string][]dateRef
}

type dateRef struct {
	at time.Time
	id string
}

func NewMemoryViolationStore() *MemoryViolationStore {
	return &MemoryViolationStore{
		byID:     make(map[string]models.Violation),
		byDedup:  make(map[string]string),
		byEntity: make(map[string][]dateRef),
	}
}

func (s *MemoryViolationStore) Insert(_ context.Context, v models.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[v.ID]; ok {
		return errors.NewConflictError("violation", "id "+v.ID+" already exists")
	}
	key := v.DedupKey()
	if key != "" {
		if existing, ok := s.byDedup[key]; ok {
			return errors.NewConflictError("violation", "duplicate of "+existing).WithMetadata("existingId", existing)
		}
		s.byDedup[key] = v.ID
	}
	s.byID[v.ID] = v.Clone()

	refs := s.byEntity[v.EntityID]
	i := sort.Search(len(refs), func(i int) bool { return refs[i].at.After(v.ViolationDate) })
	refs = append(refs, dateRef{})
	copy(refs[i+1:], refs[i:])
	refs[i] = dateRef{at: v.ViolationDate, id: v.ID}
	s.byEntity[v.EntityID] = refs
	return nil
}

func (s *MemoryViolationStore) Get(_ context.Context, id string) (*models.Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byID[id]
	if !ok {
		return nil, errors.NewNotFoundError("violation", id)
	}
	out := v.Clone()
	return &out, nil
}

func (s *MemoryViolationStore) FindByDedupKey(ctx context.Context, key string) (*models.Violation, error) {
	s.mu.RLock()
	id, ok := s.byDedup[key]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFoundError("violation", key)
	}
	return s.Get(ctx, id)
}

// Update replaces the mutable lifecycle fields; identity, date and dedup key are fixed at insert.
func (s *MemoryViolationStore) Update(_ context.Context, v models.Violation, from models.ViolationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[v.ID]
	if !ok {
		return errors.NewNotFoundError("violation", v.ID)
	}
	if current.Status != from {
		return errors.NewConflictError("violation", "status changed from "+string(from)+" to "+string(current.Status)).
			WithMetadata("currentStatus", string(current.Status))
	}
	current.Status = v.Status
	current.FineAmount = v.FineAmount
	current.ContestReason = v.ContestReason
	current.ReviewDecision = v.ReviewDecision
	current.DueDate = v.DueDate
	current.History = append([]models.StatusChange(nil), v.History...)
	s.byID[v.ID] = current
	return nil
}

func (s *MemoryViolationStore) ListByEntity(_ context.Context, entityID string) ([]models.Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := s.byEntity[entityID]
	out := make([]models.Violation, 0, len(refs))
	for _, r := range refs {
		out = append(out, s.byID[r.id].Clone())
	}
	return out, nil
}

func (s *MemoryViolationStore) CountInWindow(_ context.Context, entityID string, domain models.Domain, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := s.byEntity[entityID]
	lo := sort.Search(len(refs), func(i int) bool { return !refs[i].at.Before(from) })
	hi := sort.Search(len(refs), func(i int) bool { return refs[i].at.After(to) })

	count := 0
	for _, r := range refs[lo:hi] {
		if v := s.byID[r.id]; v.Domain == domain && v.Status != models.ViolationDismissed {
			count++
		}
	}
	return count, nil
}

func (s *MemoryViolationStore) ListPastDue(_ context.Context, now time.Time) ([]models.Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Violation
	for _, v := range s.byID {
		if v.Status == models.ViolationPending && now.After(v.DueDate) {
			out = append(out, v.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}
