package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(entityID string, domain models.Domain, expiry time.Time) models.ComplianceRecord {
	return models.ComplianceRecord{
		EntityID:   entityID,
		EntityType: models.EntityVehicle,
		Domain:     domain,
		ExpiryDate: expiry,
		Status:     models.StatusCompliant,
	}
}

func codingViolation(id, vehicleID, ruleID string, at time.Time) models.Violation {
	return models.Violation{
		ID:            id,
		EntityID:      vehicleID,
		Domain:        models.DomainNumberCoding,
		ViolationType: "number_coding",
		FineAmount:    300,
		Status:        models.ViolationPending,
		ViolationDate: at,
		DueDate:       at.AddDate(0, 0, 7),
		Coding: &models.CodingDetails{
			VehicleID:    vehicleID,
			PlateNumber:  "ABC1234",
			LastDigit:    4,
			CodingRuleID: ruleID,
			RegionID:     "metro-manila",
		},
	}
}

func TestMemoryRecordStore_OptimisticUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()
	require.NoError(t, store.Create(ctx, testRecord("VH-1", models.DomainInsurance, time.Now().AddDate(0, 1, 0))))

	err := store.Create(ctx, testRecord("VH-1", models.DomainInsurance, time.Now()))
	assert.True(t, errors.IsConflict(err))

	rec, err := store.Get(ctx, "VH-1", models.DomainInsurance)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec.Version)

	rec.LastFiredEscalationLevel = models.IntPtr(1)
	updated, err := store.Update(ctx, *rec)
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated.Version)

	// a second writer holding the old version loses
	stale := *rec
	stale.LastFiredEscalationLevel = models.IntPtr(2)
	_, err = store.Update(ctx, stale)
	assert.True(t, errors.IsConflict(err))

	got, err := store.Get(ctx, "VH-1", models.DomainInsurance)
	require.NoError(t, err)
	assert.Equal(t, 1, got.LastFired())
}

func TestMemoryRecordStore_ConcurrentUpdatesSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()
	require.NoError(t, store.Create(ctx, testRecord("VH-2", models.DomainFranchise, time.Now())))
	base, err := store.Get(ctx, "VH-2", models.DomainFranchise)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(level int) {
			defer wg.Done()
			rec := base.Clone()
			rec.LastFiredEscalationLevel = models.IntPtr(level)
			if _, err := store.Update(ctx, rec); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMemoryRecordStore_ReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRecordStore()
	rec := testRecord("VH-3", models.DomainRegistration, time.Now())
	rec.LastFiredEscalationLevel = models.IntPtr(1)
	require.NoError(t, store.Create(ctx, rec))

	got, _ := store.Get(ctx, "VH-3", models.DomainRegistration)
	*got.LastFiredEscalationLevel = 3

	again, _ := store.Get(ctx, "VH-3", models.DomainRegistration)
	assert.Equal(t, 1, again.LastFired())
}

func TestMemoryViolationStore_DedupAndWindow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryViolationStore()
	day := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, codingViolation("v1", "VH-1", "mm", day)))

	err := store.Insert(ctx, codingViolation("v2", "VH-1", "mm", day.Add(2*time.Hour)))
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	var stdErr *errors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, "v1", stdErr.Metadata["existingId"])

	require.NoError(t, store.Insert(ctx, codingViolation("v3", "VH-1", "mm", day.AddDate(0, 0, -10))))
	require.NoError(t, store.Insert(ctx, codingViolation("v4", "VH-1", "mm", day.AddDate(0, 0, -40))))

	n, err := store.CountInWindow(ctx, "VH-1", models.DomainNumberCoding, day.AddDate(0, 0, -30), day)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.CountInWindow(ctx, "VH-1", models.DomainInsurance, day.AddDate(0, 0, -30), day)
	require.NoError(t, err)
	assert.Zero(t, n)

	list, err := store.ListByEntity(ctx, "VH-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "v4", list[0].ID)
	assert.Equal(t, "v1", list[2].ID)
}

func TestMemoryViolationStore_UpdateRequiresExpectedStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryViolationStore()
	day := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, codingViolation("v1", "VH-1", "mm", day)))

	paid := codingViolation("v1", "VH-1", "mm", day)
	paid.Status = models.ViolationPaid
	require.NoError(t, store.Update(ctx, paid, models.ViolationPending))

	// a writer that read the violation while it was still pending loses
	contested := codingViolation("v1", "VH-1", "mm", day)
	contested.Status = models.ViolationContested
	err := store.Update(ctx, contested, models.ViolationPending)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))

	got, err := store.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, models.ViolationPaid, got.Status)
}

func TestMemoryViolationStore_CountSkipsDismissed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryViolationStore()
	day := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, codingViolation("v1", "VH-1", "mm", day.AddDate(0, 0, -7))))
	require.NoError(t, store.Insert(ctx, codingViolation("v2", "VH-1", "mm", day)))

	dismissed := codingViolation("v1", "VH-1", "mm", day.AddDate(0, 0, -7))
	dismissed.Status = models.ViolationDismissed
	require.NoError(t, store.Update(ctx, dismissed, models.ViolationPending))

	n, err := store.CountInWindow(ctx, "VH-1", models.DomainNumberCoding, day.AddDate(0, 0, -30), day)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryViolationStore_ListPastDue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryViolationStore()
	day := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, codingViolation("v1", "VH-1", "mm", day)))
	paid := codingViolation("v2", "VH-2", "mm", day)
	paid.Status = models.ViolationPaid
	require.NoError(t, store.Insert(ctx, paid))

	due, err := store.ListPastDue(ctx, day.AddDate(0, 0, 8))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "v1", due[0].ID)
}

func TestMemoryAlertStore_Resolve(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAlertStore()
	now := time.Now()
	require.NoError(t, store.Create(ctx, models.Alert{ID: "a1", EntityID: "VH-1", Domain: models.DomainInsurance, Status: models.AlertActive}))
	require.NoError(t, store.Create(ctx, models.Alert{ID: "a2", EntityID: "VH-1", Domain: models.DomainFranchise, Status: models.AlertActive}))

	n, err := store.Resolve(ctx, "VH-1", models.DomainInsurance, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active, err := store.ListActive(ctx, "VH-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a2", active[0].ID)
}

func TestMemoryFleetController_Idempotent(t *testing.T) {
	ctx := context.Background()
	fleet := NewMemoryFleetController()
	require.NoError(t, fleet.DisableVehicle(ctx, "VH-1", "franchise expired"))
	require.NoError(t, fleet.DisableVehicle(ctx, "VH-1", "franchise expired"))
	require.NoError(t, fleet.SuspendDriver(ctx, "DR-1", "licence expired"))

	assert.Equal(t, 2, fleet.Commands)
	assert.True(t, fleet.IsDisabled("VH-1"))
	assert.True(t, fleet.IsSuspended("DR-1"))
}

func TestMemoryRuleLock(t *testing.T) {
	ctx := context.Background()
	lock := NewMemoryRuleLock()

	release, ok, err := lock.Acquire(ctx, "rule-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = lock.Acquire(ctx, "rule-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	_, ok, _ = lock.Acquire(ctx, "rule-1", time.Minute)
	assert.True(t, ok)
}

func TestMemoryExemptionStore_ListCovering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryExemptionStore()
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, models.ExemptionRequest{
		ID: "ex-1", VehicleID: "VH-1", ExemptionType: "medical",
		PeriodStart: now.Add(-time.Hour), PeriodEnd: now.Add(time.Hour), Status: models.ExemptionApproved,
	}))
	require.NoError(t, store.Save(ctx, models.ExemptionRequest{
		ID: "ex-2", DriverID: "DR-9", ExemptionType: "official",
		PeriodStart: now.Add(-time.Hour), PeriodEnd: now.Add(time.Hour), Status: models.ExemptionPending,
	}))

	got, err := store.ListCovering(ctx, "VH-1", "", now)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = store.ListCovering(ctx, "VH-7", "DR-9", now)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, store.IncrementUsage(ctx, "ex-1"))
	assert.True(t, errors.IsNotFound(store.IncrementUsage(ctx, "missing")))
}
