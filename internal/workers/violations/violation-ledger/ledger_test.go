// internal/workers/violations/violation-ledger/ledger_test.go
package violationledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/common/logger"
	"fleet-compliance/internal/models"
	"fleet-compliance/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 4, 8, 30, 0, 0, time.UTC)

func newLedger(t *testing.T) *Ledger {
	l := NewLedger(repository.NewMemoryViolationStore(), LoadConfig(), logger.NewTestLogger(t))
	l.now = func() time.Time { return t0 }
	return l
}

func codingViolation(vehicleID string, at time.Time) models.Violation {
	return models.Violation{
		EntityID:      vehicleID,
		Domain:        models.DomainNumberCoding,
		ViolationType: "number_coding",
		FineAmount:    300,
		ViolationDate: at,
		Coding: &models.CodingDetails{
			VehicleID:    vehicleID,
			PlateNumber:  "ABC 1231",
			LastDigit:    1,
			CodingRuleID: "mmda-ncr",
			RegionID:     "NCR",
		},
	}
}

func recordPending(t *testing.T, l *Ledger) *models.Violation {
	t.Helper()
	v, err := l.Record(context.Background(), models.Violation{
		EntityID:      "veh-1",
		Domain:        models.DomainInsurance,
		ViolationType: "ctpl_lapsed",
		FineAmount:    1000,
		ViolationDate: t0,
	})
	require.NoError(t, err)
	return v
}

func TestLedger_RecordDefaults(t *testing.T) {
	l := newLedger(t)
	v := recordPending(t, l)

	assert.NotEmpty(t, v.ID)
	assert.Equal(t, models.ViolationPending, v.Status)
	assert.Equal(t, t0.AddDate(0, 0, 7), v.DueDate)
	require.Len(t, v.History, 1)
	assert.Equal(t, models.ViolationPending, v.History[0].To)
}

func TestLedger_RecordValidation(t *testing.T) {
	l := newLedger(t)
	tests := []struct {
		name string
		v    models.Violation
	}{
		{name: "missing entity", v: models.Violation{Domain: models.DomainFranchise}},
		{name: "unknown domain", v: models.Violation{EntityID: "x", Domain: "parking"}},
		{name: "negative fine", v: models.Violation{EntityID: "x", Domain: models.DomainFranchise, FineAmount: -1}},
		{name: "coding without details", v: models.Violation{EntityID: "x", Domain: models.DomainNumberCoding}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Record(context.Background(), tt.v)
			assert.True(t, errors.IsValidation(err))
		})
	}
}

func TestLedger_DuplicateCodingViolationReturnsExisting(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	first, err := l.Record(ctx, codingViolation("veh-1", t0))
	require.NoError(t, err)

	_, err = l.Record(ctx, codingViolation("veh-1", t0.Add(2*time.Hour)))
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))

	existing, err := l.FindExisting(ctx, err)
	require.NoError(t, err)
	assert.Equal(t, first.ID, existing.ID)

	n, err := l.CountInWindow(ctx, "veh-1", models.DomainNumberCoding, t0.AddDate(0, 0, -30), t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLedger_ContestLifecycle(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		decision   models.ReviewDecision
		reduced    float64
		wantStatus models.ViolationStatus
		wantFine   float64
	}{
		{name: "upheld", decision: models.DecisionUpheld, wantStatus: models.ViolationPending, wantFine: 1000},
		{name: "reduced", decision: models.DecisionReduced, reduced: 250, wantStatus: models.ViolationPending, wantFine: 250},
		{name: "dismissed", decision: models.DecisionDismissed, wantStatus: models.ViolationDismissed, wantFine: 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLedger(t)
			v := recordPending(t, l)

			contested, err := l.Contest(ctx, v.ID, "vehicle was in the shop")
			require.NoError(t, err)
			assert.Equal(t, models.ViolationContested, contested.Status)
			assert.Equal(t, "vehicle was in the shop", contested.ContestReason)

			reviewed, err := l.Review(ctx, v.ID, tt.decision, tt.reduced)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, reviewed.Status)
			assert.Equal(t, tt.wantFine, reviewed.FineAmount)
			assert.Equal(t, tt.decision, reviewed.ReviewDecision)
			assert.Len(t, reviewed.History, 3)

			stored, err := l.Get(ctx, v.ID)
			require.NoError(t, err)
			assert.Equal(t, reviewed.Status, stored.Status)
		})
	}
}

func TestLedger_InvalidTransitions(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	v := recordPending(t, l)

	_, err := l.Contest(ctx, v.ID, "")
	assert.True(t, errors.IsValidation(err))

	_, err = l.Review(ctx, v.ID, models.DecisionUpheld, 0)
	assert.True(t, errors.IsStateTransition(err), "review requires contested")

	_, err = l.Pay(ctx, v.ID)
	require.NoError(t, err)

	_, err = l.Contest(ctx, v.ID, "too late")
	assert.True(t, errors.IsStateTransition(err), "paid is terminal")

	_, err = l.Pay(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestLedger_ReviewRejectsIncreasedFine(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	v := recordPending(t, l)
	_, err := l.Contest(ctx, v.ID, "wrong plate")
	require.NoError(t, err)

	_, err = l.Review(ctx, v.ID, models.DecisionReduced, 5000)
	assert.True(t, errors.IsValidation(err))

	stored, err := l.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ViolationContested, stored.Status)
}

func TestLedger_MarkOverdueThenPay(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	v := recordPending(t, l)

	n, err := l.MarkOverdue(ctx, t0.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = l.MarkOverdue(ctx, t0.AddDate(0, 0, 8))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	overdue, err := l.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ViolationOverdue, overdue.Status)

	_, err = l.Contest(ctx, v.ID, "late appeal")
	assert.True(t, errors.IsStateTransition(err))

	paid, err := l.Pay(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ViolationPaid, paid.Status)
	assert.Equal(t, models.ViolationOverdue, paid.History[len(paid.History)-1].From)
}

// racingStore widens the read-to-write gap of a transition.
type racingStore struct {
	*repository.MemoryViolationStore
	readDelay    time.Duration
	beforeUpdate func()
}

func (s *racingStore) Get(ctx context.Context, id string) (*models.Violation, error) {
	time.Sleep(s.readDelay)
	return s.MemoryViolationStore.Get(ctx, id)
}

func (s *racingStore) Update(ctx context.Context, v models.Violation, from models.ViolationStatus) error {
	if f := s.beforeUpdate; f != nil {
		s.beforeUpdate = nil
		f()
	}
	return s.MemoryViolationStore.Update(ctx, v, from)
}

func TestLedger_ConcurrentPayAndContestOneWins(t *testing.T) {
	store := &racingStore{MemoryViolationStore: repository.NewMemoryViolationStore(), readDelay: time.Millisecond}
	l := NewLedger(store, LoadConfig(), logger.NewNoOpLogger())
	l.now = func() time.Time { return t0 }
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		v, err := l.Record(ctx, models.Violation{
			EntityID:      "veh-race",
			Domain:        models.DomainInsurance,
			ViolationType: "ctpl_lapsed",
			FineAmount:    1000,
			ViolationDate: t0.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)

		var wg sync.WaitGroup
		var payErr, contestErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, payErr = l.Pay(ctx, v.ID)
		}()
		go func() {
			defer wg.Done()
			_, contestErr = l.Contest(ctx, v.ID, "plate misread")
		}()
		wg.Wait()

		require.True(t, (payErr == nil) != (contestErr == nil), "exactly one transition must win: pay=%v contest=%v", payErr, contestErr)

		stored, err := l.Get(ctx, v.ID)
		require.NoError(t, err)
		if payErr == nil {
			assert.True(t, errors.IsStateTransition(contestErr))
			assert.Equal(t, models.ViolationPaid, stored.Status)
		} else {
			assert.True(t, errors.IsStateTransition(payErr))
			assert.Equal(t, models.ViolationContested, stored.Status)
		}
		assert.Len(t, stored.History, 2)
	}
}

func TestLedger_MarkOverdueSkipsViolationContestedMidSweep(t *testing.T) {
	store := &racingStore{MemoryViolationStore: repository.NewMemoryViolationStore()}
	l := NewLedger(store, LoadConfig(), logger.NewTestLogger(t))
	l.now = func() time.Time { return t0 }
	ctx := context.Background()
	v := recordPending(t, l)

	store.beforeUpdate = func() {
		_, err := l.Contest(ctx, v.ID, "appeal filed")
		require.NoError(t, err)
	}

	n, err := l.MarkOverdue(ctx, t0.AddDate(0, 0, 8))
	require.NoError(t, err)
	assert.Zero(t, n)

	stored, err := l.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ViolationContested, stored.Status)
}

func TestHandler_Execute(t *testing.T) {
	l := newLedger(t)
	h := NewHandler(LoadConfig(), l, logger.NewTestLogger(t))
	ctx := context.Background()

	cv := codingViolation("veh-9", t0)
	out, err := h.Execute(ctx, &Input{Operation: OpRecord, Violation: &cv})
	require.NoError(t, err)
	require.NotNil(t, out.Violation)
	id := out.Violation.ID

	out, err = h.Execute(ctx, &Input{Operation: OpContest, ViolationID: id, Reason: "exempt route"})
	require.NoError(t, err)
	assert.Equal(t, models.ViolationContested, out.Violation.Status)

	out, err = h.Execute(ctx, &Input{Operation: OpMarkOverdue, Now: t0.AddDate(0, 1, 0).Format(time.RFC3339)})
	require.NoError(t, err)
	assert.Zero(t, out.Updated, "contested violations never go overdue")

	_, err = h.Execute(ctx, &Input{Operation: OpPay})
	assert.True(t, errors.IsValidation(err))

	_, err = h.Execute(ctx, &Input{Operation: "refund", ViolationID: id})
	assert.True(t, errors.IsValidation(err))
}
