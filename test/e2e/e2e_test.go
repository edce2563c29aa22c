// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-compliance/internal/common/logger"
	"fleet-compliance/internal/common/observability"
	"fleet-compliance/internal/models"
	"fleet-compliance/internal/repository"

	checknumbercoding "fleet-compliance/internal/workers/coding/check-number-coding"
	resolvecodingrule "fleet-compliance/internal/workers/coding/resolve-coding-rule"
	dispatchnotification "fleet-compliance/internal/workers/communication/dispatch-notification"
	checkcompliance "fleet-compliance/internal/workers/compliance/check-compliance"
	evaluatestate "fleet-compliance/internal/workers/compliance/evaluate-state"
	monitoringrules "fleet-compliance/internal/workers/compliance/monitoring-rules"
	monitoringscheduler "fleet-compliance/internal/workers/compliance/monitoring-scheduler"
	runescalation "fleet-compliance/internal/workers/compliance/run-escalation"
	governmentgateway "fleet-compliance/internal/workers/integration/government-gateway"
	violationledger "fleet-compliance/internal/workers/violations/violation-ledger"
)

const day = 24 * time.Hour

// outbox records what the SES and SNS fakes were asked to send.
type outbox struct {
	mu     sync.Mutex
	emails []*ses.SendEmailInput
	sms    []*sns.PublishInput
}

func (o *outbox) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emails = append(o.emails, in)
	return &ses.SendEmailOutput{}, nil
}

func (o *outbox) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sms = append(o.sms, in)
	return &sns.PublishOutput{}, nil
}

func (o *outbox) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.emails), len(o.sms)
}

// agencyServer answers verify requests with valid unless the reference is listed as revoked.
func agencyServer(t *testing.T, revoked map[string]bool, down bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{}`))
		case "/verify":
			var ref models.EntityRef
			if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(governmentgateway.AgencyVerification{Valid: !revoked[ref.ReferenceNumber]})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// engine is the in-process wiring of cmd/compliance-engine over memory stores and miniredis.
type engine struct {
	t0         time.Time
	records    *repository.MemoryRecordStore
	rules      *repository.MemoryRuleStore
	alerts     *repository.MemoryAlertStore
	fleet      *repository.MemoryFleetController
	violations *repository.MemoryViolationStore
	directory  *dispatchnotification.MemoryDirectory
	outbox     *outbox
	redis      *miniredis.Miniredis
	registry   *monitoringrules.Registry
	scheduler  *monitoringscheduler.Scheduler
	checks     *checkcompliance.Service
	detector   *checknumbercoding.Detector
	ledger     *violationledger.Ledger
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	ctx := context.Background()
	log := logger.NewTestLogger(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e := &engine{
		// rules are due from t0, which must not be before the lock's wall clock
		t0:         time.Now().UTC().Add(time.Minute).Truncate(time.Second),
		records:    repository.NewMemoryRecordStore(),
		rules:      repository.NewMemoryRuleStore(),
		alerts:     repository.NewMemoryAlertStore(),
		fleet:      repository.NewMemoryFleetController(),
		violations: repository.NewMemoryViolationStore(),
		directory:  dispatchnotification.NewMemoryDirectory(),
		outbox:     &outbox{},
		redis:      mr,
	}

	dispatchCfg := dispatchnotification.LoadConfig()
	dispatchCfg.EmailEnabled = true
	dispatchCfg.SMSEnabled = true
	dispatchCfg.FromEmail = "compliance@fleet.example.ph"
	dispatcher := dispatchnotification.NewDispatcher(dispatchCfg, e.outbox, e.outbox, e.directory, e.directory, log)

	gatewayCfg := governmentgateway.LoadConfig()
	gatewayCfg.Agencies[models.AgencyLTFRB] = governmentgateway.AgencyConfig{BaseURL: agencyServer(t, map[string]bool{"CPC-REVOKED": true}, false).URL}
	gatewayCfg.Agencies[models.AgencyLTO] = governmentgateway.AgencyConfig{BaseURL: agencyServer(t, nil, true).URL}
	gateway := governmentgateway.NewGatewayFromConfig(gatewayCfg, repository.NewRedisVerificationCache(rdb), log)

	evaluator := evaluatestate.NewEvaluator(evaluatestate.LoadConfig())
	orchestrator := runescalation.NewOrchestrator(runescalation.Dependencies{
		Records:   e.records,
		Alerts:    e.alerts,
		Fleet:     e.fleet,
		Reports:   repository.NewRedisReportQueue(rdb, "compliance:reports:queue"),
		Notifier:  dispatcher,
		Evaluator: evaluator,
	}, log)

	e.registry = monitoringrules.NewRegistry(e.rules, log)
	for _, rule := range monitoringrules.DefaultRules() {
		rule.NextRunAt = e.t0
		require.NoError(t, e.registry.Put(ctx, rule))
	}
	e.scheduler = monitoringscheduler.NewScheduler(monitoringscheduler.LoadConfig(), e.registry, orchestrator,
		repository.NewRedisRuleLock(rdb, log), observability.NewNoop(), log)

	e.checks = checkcompliance.NewService(checkcompliance.LoadConfig(), e.records, e.alerts, evaluator, gateway, log)

	codingRules := repository.NewMemoryCodingRuleStore()
	require.NoError(t, codingRules.Save(ctx, mmdaRule()))
	e.ledger = violationledger.NewLedger(e.violations, violationledger.LoadConfig(), log)
	e.detector = checknumbercoding.NewDetector(checknumbercoding.LoadConfig(),
		resolvecodingrule.NewResolver(repository.NewCachedCodingRuleStore(codingRules, rdb, 5*time.Minute, log), log),
		repository.NewMemoryExemptionStore(), e.ledger, dispatcher, log)
	return e
}

func (e *engine) vehicle(t *testing.T, id string, domain models.Domain, reference string, expiry time.Time) {
	t.Helper()
	require.NoError(t, e.records.Create(context.Background(), models.ComplianceRecord{
		EntityID:        id,
		EntityType:      models.EntityVehicle,
		Domain:          domain,
		ReferenceNumber: reference,
		IssuedDate:      expiry.AddDate(-1, 0, 0),
		ExpiryDate:      expiry,
		Status:          models.StatusCompliant,
		Region:          "NCR",
		ServiceType:     "tnvs",
	}))
	e.directory.Add(id, models.Contact{ID: id + "-owner", Role: models.RoleVehicleOwner, Email: id + "@owner.example.ph", Phone: "+639170000001"})
	e.directory.Add(id, models.Contact{ID: "compliance", Role: models.RoleComplianceTeam, Email: "compliance@fleet.example.ph"})
	e.directory.Add(id, models.Contact{ID: "ops", Role: models.RoleOperationsManager, Email: "ops@fleet.example.ph", Phone: "+639170000002"})
}

func (e *engine) record(t *testing.T, id string, domain models.Domain) models.ComplianceRecord {
	t.Helper()
	rec, err := e.records.Get(context.Background(), id, domain)
	require.NoError(t, err)
	return *rec
}

// tickDaily runs one scheduler tick per day from t0 to t0+n days and returns the fired escalations.
func (e *engine) tickDaily(t *testing.T, from, n int) []monitoringscheduler.RuleResult {
	t.Helper()
	var runs []monitoringscheduler.RuleResult
	for d := from; d <= n; d++ {
		res, err := e.scheduler.Tick(context.Background(), e.t0.Add(time.Duration(d)*day))
		require.NoError(t, err)
		require.Zero(t, res.Failed(), "tick on day %d", d)
		runs = append(runs, res.Runs...)
	}
	return runs
}

func TestScenario_FarFromExpiryIsCompliant(t *testing.T) {
	e := newEngine(t)
	e.vehicle(t, "veh-1", models.DomainFranchise, "CPC-0001", e.t0.Add(65*day))

	e.tickDaily(t, 0, 0)

	rec := e.record(t, "veh-1", models.DomainFranchise)
	assert.Nil(t, rec.LastFiredEscalationLevel)
	assert.Empty(t, e.alerts.All("veh-1"))

	resp, err := e.checks.CheckAt(context.Background(), checkcompliance.CheckRequest{EntityID: "veh-1"}, e.t0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompliant, resp.OverallStatus)
	st := resp.StatusByDomain[models.DomainFranchise]
	assert.True(t, st.Verified)
	assert.Equal(t, 65, st.DaysUntilExpiry)
}

func TestScenario_LevelTwoFiredLevelThreePending(t *testing.T) {
	e := newEngine(t)
	e.vehicle(t, "veh-2", models.DomainFranchise, "CPC-0002", e.t0.Add(35*day))

	// day 0: 35 days left, level 1. day 5: 30 days left, level 2. day 10: 25 days left.
	e.tickDaily(t, 0, 10)

	rec := e.record(t, "veh-2", models.DomainFranchise)
	require.NotNil(t, rec.LastFiredEscalationLevel)
	assert.Equal(t, 2, *rec.LastFiredEscalationLevel)
	assert.Equal(t, models.StatusExpiringSoon, rec.Status)

	alerts := e.alerts.All("veh-2")
	require.Len(t, alerts, 2)
	assert.Equal(t, 1, alerts[0].Level)
	assert.Equal(t, 2, alerts[1].Level)

	emails, sms := e.outbox.counts()
	assert.Equal(t, 1+2, emails) // owner at level 1, owner and compliance team at level 2
	assert.Zero(t, sms)
	assert.NotEmpty(t, e.directory.Inbox("veh-2-owner"))

	resp, err := e.checks.CheckAt(context.Background(), checkcompliance.CheckRequest{EntityID: "veh-2"}, e.t0.Add(10*day))
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpiringSoon, resp.OverallStatus)
	assert.Equal(t, 25, resp.StatusByDomain[models.DomainFranchise].DaysUntilExpiry)
	assert.Equal(t, 2, resp.StatusByDomain[models.DomainFranchise].LastFiredLevel)
	assert.Len(t, resp.ActiveAlerts, 2)
}

func TestScenario_PostExpiryDisablesOnceUntilRenewal(t *testing.T) {
	e := newEngine(t)
	e.vehicle(t, "veh-3", models.DomainFranchise, "CPC-0003", e.t0.Add(-day))

	e.tickDaily(t, 0, 6)

	assert.True(t, e.fleet.IsDisabled("veh-3"))
	assert.Equal(t, 1, e.fleet.Commands)
	rec := e.record(t, "veh-3", models.DomainFranchise)
	assert.Equal(t, models.StatusExpired, rec.Status)
	assert.Equal(t, 4, rec.LastFired())
	require.Len(t, e.alerts.All("veh-3"), 1)
	assert.Equal(t, models.SeverityCritical, e.alerts.All("veh-3")[0].Severity)

	reports, err := e.redis.List("compliance:reports:queue")
	require.NoError(t, err)
	assert.Len(t, reports, 1)

	renewed, err := e.checks.Renew(context.Background(), "veh-3", models.DomainFranchise, e.t0.AddDate(1, 0, 0), "CPC-0003-R")
	require.NoError(t, err)
	assert.Nil(t, renewed.LastFiredEscalationLevel)

	active, err := e.alerts.ListActive(context.Background(), "veh-3")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestScenario_AgencyOutageLeavesStatusUnverified(t *testing.T) {
	e := newEngine(t)
	e.vehicle(t, "veh-4", models.DomainRegistration, "REG-0004", e.t0.Add(100*day))
	e.vehicle(t, "veh-4", models.DomainFranchise, "CPC-REVOKED", e.t0.Add(100*day))

	resp, err := e.checks.CheckAt(context.Background(), checkcompliance.CheckRequest{EntityID: "veh-4"}, e.t0)
	require.NoError(t, err)

	registration := resp.StatusByDomain[models.DomainRegistration]
	assert.True(t, registration.Unverified)
	assert.Equal(t, models.StatusCompliant, registration.Status)

	franchise := resp.StatusByDomain[models.DomainFranchise]
	assert.True(t, franchise.Verified)
	assert.Equal(t, models.StatusExpired, franchise.Status)
	assert.Equal(t, models.StatusExpired, resp.OverallStatus)
}

var manila = time.FixedZone("PHT", 8*60*60)

func mmdaRule() models.CodingRule {
	return models.CodingRule{
		ID:          "mmda-uvvrp",
		RegionID:    "NCR",
		Name:        "MMDA Unified Vehicular Volume Reduction Program",
		CodingHours: models.CodingHours{Start: "07:00", End: "19:00"},
		CodingDays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		CoverageArea: models.Polygon{
			{Lat: 14.4, Lon: 120.9}, {Lat: 14.4, Lon: 121.2}, {Lat: 14.8, Lon: 121.2}, {Lat: 14.8, Lon: 120.9},
		},
		FirstOffenseFine:  300,
		RepeatOffenseFine: 500,
		Timezone:          "Asia/Manila",
	}
}

func TestScenario_NumberCoding(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.directory.Add("veh-ABC-1231", models.Contact{ID: "owner-1231", Role: models.RoleVehicleOwner, Phone: "+639170000003"})

	// Monday: plates ending in 1 and 2 are coded.
	monday := time.Date(2024, 3, 4, 10, 0, 0, 0, manila)
	request := func(plate string) checknumbercoding.CheckRequest {
		return checknumbercoding.CheckRequest{
			VehicleID:   "veh-" + plate,
			PlateNumber: plate,
			Location:    models.GeoPoint{Lat: 14.58, Lon: 121.0},
			RegionID:    "NCR",
		}
	}

	allowed, err := e.detector.CheckAt(ctx, request("ABC-1234"), monday)
	require.NoError(t, err)
	assert.False(t, allowed.HasViolation)
	assert.True(t, allowed.CanProceed)

	first, err := e.detector.CheckAt(ctx, request("ABC-1231"), monday)
	require.NoError(t, err)
	require.True(t, first.HasViolation)
	assert.Equal(t, 300.0, first.ViolationDetails.FineAmount)
	assert.False(t, first.ViolationDetails.RepeatOffense)
	_, sms := e.outbox.counts()
	assert.Equal(t, 1, sms)

	second, err := e.detector.CheckAt(ctx, request("ABC-1231"), monday.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.True(t, second.HasViolation)
	assert.Equal(t, 500.0, second.ViolationDetails.FineAmount)
	assert.True(t, second.ViolationDetails.RepeatOffense)

	history, err := e.ledger.ListByEntity(ctx, "veh-ABC-1231")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	contested, err := e.ledger.Contest(ctx, first.ViolationDetails.ViolationID, "vehicle was parked")
	require.NoError(t, err)
	assert.Equal(t, models.ViolationContested, contested.Status)
}
