// internal/workers/coding/check-number-coding/detector_test.go
package checknumbercoding

import (
	"context"
	"fmt"
	"testing"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/common/logger"
	"fleet-compliance/internal/models"
	"fleet-compliance/internal/repository"
	resolvecodingrule "fleet-compliance/internal/workers/coding/resolve-coding-rule"
	violationledger "fleet-compliance/internal/workers/violations/violation-ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var manila = time.FixedZone("PHT", 8*60*60)

// Monday: plates ending in 1 and 2 are coded.
var monday = time.Date(2024, 3, 4, 10, 0, 0, 0, manila)

var inNCR = models.GeoPoint{Lat: 14.58, Lon: 121.0}

var metroManila = models.Polygon{
	{Lat: 14.4, Lon: 120.9}, {Lat: 14.4, Lon: 121.2}, {Lat: 14.8, Lon: 121.2}, {Lat: 14.8, Lon: 120.9},
}

func codingRule() models.CodingRule {
	return models.CodingRule{
		ID:                  "mmda-uvvrp",
		RegionID:            "NCR",
		CodingHours:         models.CodingHours{Start: "07:00", End: "19:00"},
		CodingDays:          []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		CoverageArea:        metroManila,
		HolidayExemptions:   []string{"2024-03-18"},
		FirstOffenseFine:    300,
		RepeatOffenseFine:   500,
		ExemptPlatePatterns: []string{"^GOV"},
		Timezone:            "Asia/Manila",
	}
}

type fakeNotifier struct {
	sent []models.Notification
	err  error
}

func (f *fakeNotifier) Dispatch(_ context.Context, n models.Notification) (*models.DispatchResult, error) {
	f.sent = append(f.sent, n)
	if f.err != nil {
		return nil, f.err
	}
	return &models.DispatchResult{
		NotificationID: n.ID,
		Channels:       []models.ChannelResult{{Channel: models.ChannelSMS, Status: models.ChannelSent, Recipients: 1}},
	}, nil
}

type fixture struct {
	detector   *Detector
	ledger     *violationledger.Ledger
	violations *repository.MemoryViolationStore
	exemptions *repository.MemoryExemptionStore
	notifier   *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	rules := repository.NewMemoryCodingRuleStore()
	require.NoError(t, rules.Save(context.Background(), codingRule()))

	f := &fixture{
		violations: repository.NewMemoryViolationStore(),
		exemptions: repository.NewMemoryExemptionStore(),
		notifier:   &fakeNotifier{},
	}
	log := logger.NewTestLogger(t)
	f.ledger = violationledger.NewLedger(f.violations, violationledger.LoadConfig(), log)
	f.detector = NewDetector(LoadConfig(), resolvecodingrule.NewResolver(rules, log), f.exemptions, f.ledger, f.notifier, log)
	return f
}

func request(plate string) CheckRequest {
	return CheckRequest{VehicleID: "veh-" + plate, PlateNumber: plate, Location: inNCR, RegionID: "NCR"}
}

func TestCheck_PlateNotCodedToday(t *testing.T) {
	f := newFixture(t)

	resp, err := f.detector.CheckAt(context.Background(), request("ABC-1234"), monday)
	require.NoError(t, err)

	assert.False(t, resp.HasViolation)
	assert.True(t, resp.CanProceed)
	assert.Nil(t, resp.ViolationDetails)
	assert.Empty(t, f.notifier.sent)
}

func TestCheck_FirstOffenseUsesBaseFine(t *testing.T) {
	f := newFixture(t)

	resp, err := f.detector.CheckAt(context.Background(), request("ABC-1231"), monday)
	require.NoError(t, err)

	assert.True(t, resp.HasViolation)
	assert.False(t, resp.CanProceed)
	require.NotNil(t, resp.ViolationDetails)
	d := resp.ViolationDetails
	assert.Equal(t, 1, d.LastDigit)
	assert.Equal(t, []int{1, 2}, d.BannedDigits)
	assert.Equal(t, 300.0, d.FineAmount)
	assert.False(t, d.RepeatOffense)
	assert.True(t, d.DueDate.Equal(monday.AddDate(0, 0, 7)))

	stored, err := f.violations.Get(context.Background(), d.ViolationID)
	require.NoError(t, err)
	assert.Equal(t, models.ViolationPending, stored.Status)
	assert.Equal(t, models.DomainNumberCoding, stored.Domain)
	assert.Equal(t, "mmda-uvvrp", stored.Coding.CodingRuleID)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "coding_violation", f.notifier.sent[0].Type)
	assert.Equal(t, d.ViolationID, f.notifier.sent[0].Data["violationId"])
}

func TestCheck_RepeatOffenseWithinWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.detector.CheckAt(ctx, request("ABC-1231"), monday)
	require.NoError(t, err)
	require.True(t, first.HasViolation)
	assert.Equal(t, 300.0, first.ViolationDetails.FineAmount)

	second, err := f.detector.CheckAt(ctx, request("ABC-1231"), monday.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.True(t, second.HasViolation)
	assert.Equal(t, 500.0, second.ViolationDetails.FineAmount)
	assert.True(t, second.ViolationDetails.RepeatOffense)
	assert.NotEqual(t, first.ViolationDetails.ViolationID, second.ViolationDetails.ViolationID)
}

func TestCheck_DismissedViolationDoesNotEscalate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.detector.CheckAt(ctx, request("ABC-1231"), monday)
	require.NoError(t, err)
	require.True(t, first.HasViolation)

	_, err = f.ledger.Contest(ctx, first.ViolationDetails.ViolationID, "vehicle was parked at the depot")
	require.NoError(t, err)
	_, err = f.ledger.Review(ctx, first.ViolationDetails.ViolationID, models.DecisionDismissed, 0)
	require.NoError(t, err)

	second, err := f.detector.CheckAt(ctx, request("ABC-1231"), monday.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.True(t, second.HasViolation)
	assert.Equal(t, 300.0, second.ViolationDetails.FineAmount)
	assert.False(t, second.ViolationDetails.RepeatOffense)
}

func TestCheck_OldViolationsDoNotEscalate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.detector.CheckAt(ctx, request("ABC-1231"), monday)
	require.NoError(t, err)

	// Five weeks later the first offence is outside the 30-day window.
	resp, err := f.detector.CheckAt(ctx, request("ABC-1231"), monday.AddDate(0, 0, 35))
	require.NoError(t, err)
	require.True(t, resp.HasViolation)
	assert.Equal(t, 300.0, resp.ViolationDetails.FineAmount)
}

func TestCheck_SameDayIsRecordedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.detector.CheckAt(ctx, request("ABC-1231"), monday)
	require.NoError(t, err)
	again, err := f.detector.CheckAt(ctx, request("ABC-1231"), monday.Add(3*time.Hour))
	require.NoError(t, err)

	assert.True(t, again.HasViolation)
	assert.True(t, again.ViolationDetails.AlreadyRecorded)
	assert.Equal(t, first.ViolationDetails.ViolationID, again.ViolationDetails.ViolationID)
	assert.Equal(t, 300.0, again.ViolationDetails.FineAmount)
	assert.Len(t, f.notifier.sent, 1)

	all, err := f.violations.ListByEntity(ctx, "veh-ABC-1231")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCheck_NoViolationWhenCodingNotInEffect(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
	}{
		{name: "before coding hours", at: time.Date(2024, 3, 4, 6, 59, 0, 0, manila)},
		{name: "after coding hours", at: time.Date(2024, 3, 4, 19, 1, 0, 0, manila)},
		{name: "last coded minute is inclusive", at: time.Date(2024, 3, 4, 19, 0, 0, 0, manila)},
		{name: "weekend", at: time.Date(2024, 3, 9, 10, 0, 0, 0, manila)},
		{name: "holiday", at: time.Date(2024, 3, 18, 10, 0, 0, 0, manila)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			resp, err := f.detector.CheckAt(context.Background(), request("ABC-1231"), tt.at)
			require.NoError(t, err)
			if tt.name == "last coded minute is inclusive" {
				assert.True(t, resp.HasViolation)
				return
			}
			assert.False(t, resp.HasViolation)
			assert.True(t, resp.CanProceed)
		})
	}
}

func TestCheck_ApprovedExemption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := request("ABC-1231")
	req.DriverID = "drv-9"

	require.NoError(t, f.exemptions.Save(ctx, models.ExemptionRequest{
		ID:            "ex-pending",
		VehicleID:     req.VehicleID,
		ExemptionType: "medical",
		PeriodStart:   monday.Add(-time.Hour),
		PeriodEnd:     monday.Add(time.Hour),
		Status:        models.ExemptionPending,
	}))
	resp, err := f.detector.CheckAt(ctx, req, monday)
	require.NoError(t, err)
	assert.True(t, resp.HasViolation, "a pending request does not exempt")

	require.NoError(t, f.exemptions.Save(ctx, models.ExemptionRequest{
		ID:            "ex-driver",
		DriverID:      "drv-9",
		ExemptionType: "emergency",
		PeriodStart:   monday.Add(-time.Hour),
		PeriodEnd:     monday.Add(24 * time.Hour),
		Status:        models.ExemptionApproved,
	}))
	resp, err = f.detector.CheckAt(ctx, req, monday.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, resp.HasViolation)
	assert.True(t, resp.CanProceed)
	assert.Equal(t, ExemptApprovedRequest, resp.Exemption)

	covering, err := f.exemptions.ListCovering(ctx, req.VehicleID, "drv-9", monday.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, covering, 1)
	assert.Equal(t, 1, covering[0].UsageCount)
}

func TestCheck_ExemptPlatePattern(t *testing.T) {
	f := newFixture(t)

	resp, err := f.detector.CheckAt(context.Background(), request("GOV 1231"), monday)
	require.NoError(t, err)
	assert.False(t, resp.HasViolation)
	assert.Equal(t, ExemptPlatePattern, resp.Exemption)
}

func TestCheck_OutsideCoverageCanProceed(t *testing.T) {
	f := newFixture(t)
	req := request("ABC-1231")
	req.Location = models.GeoPoint{Lat: 10.31, Lon: 123.89}

	resp, err := f.detector.CheckAt(context.Background(), req, monday)
	require.NoError(t, err)
	assert.False(t, resp.HasViolation)
	assert.True(t, resp.CanProceed)
}

func TestCheck_WarnsBeforeCodingStarts(t *testing.T) {
	f := newFixture(t)

	resp, err := f.detector.CheckAt(context.Background(), request("ABC-1232"), time.Date(2024, 3, 4, 6, 30, 0, 0, manila))
	require.NoError(t, err)
	assert.False(t, resp.HasViolation)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "07:00")

	resp, err = f.detector.CheckAt(context.Background(), request("ABC-1234"), time.Date(2024, 3, 4, 6, 30, 0, 0, manila))
	require.NoError(t, err)
	assert.Empty(t, resp.Warnings)
}

func TestCheck_NotificationFailureKeepsViolation(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = fmt.Errorf("sms gateway down")

	resp, err := f.detector.CheckAt(context.Background(), request("ABC-1231"), monday)
	require.NoError(t, err)
	require.True(t, resp.HasViolation)
	assert.Len(t, resp.Warnings, 1)

	_, err = f.violations.Get(context.Background(), resp.ViolationDetails.ViolationID)
	assert.NoError(t, err)
}

func TestCheck_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		req  CheckRequest
	}{
		{name: "missing vehicle", req: CheckRequest{PlateNumber: "ABC-1231", RegionID: "NCR", Location: inNCR}},
		{name: "missing plate", req: CheckRequest{VehicleID: "v", RegionID: "NCR", Location: inNCR}},
		{name: "missing region", req: CheckRequest{VehicleID: "v", PlateNumber: "ABC-1231", Location: inNCR}},
		{name: "bad location", req: CheckRequest{VehicleID: "v", PlateNumber: "ABC-1231", RegionID: "NCR", Location: models.GeoPoint{Lat: 91}}},
		{name: "plate without digit", req: CheckRequest{VehicleID: "v", PlateNumber: "ABC-DEF", RegionID: "NCR", Location: inNCR}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.detector.CheckAt(context.Background(), tt.req, monday)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
		})
	}
}

func TestLastDigit(t *testing.T) {
	tests := []struct {
		plate string
		want  int
		ok    bool
	}{
		{plate: "ABC-1234", want: 4, ok: true},
		{plate: "ABC 1231", want: 1, ok: true},
		{plate: "NBC 1230", want: 0, ok: true},
		{plate: "CD 4567-A", want: 7, ok: true},
		{plate: "1234 AB", want: 4, ok: true},
		{plate: "ABC", ok: false},
		{plate: "", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.plate, func(t *testing.T) {
			got, ok := LastDigit(tt.plate)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestHandler_Execute(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(LoadConfig(), f.detector, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{
		CheckRequest: request("ABC-1231"),
		Now:          monday.Format(time.RFC3339),
	})
	require.NoError(t, err)
	assert.True(t, out.HasViolation)
	assert.False(t, out.CanProceed)
}
