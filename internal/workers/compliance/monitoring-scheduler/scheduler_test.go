// internal/workers/compliance/monitoring-scheduler/scheduler_test.go
package monitoringscheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fleet-compliance/internal/common/config"
	"fleet-compliance/internal/common/logger"
	"fleet-compliance/internal/models"
	"fleet-compliance/internal/repository"
	monitoringrules "fleet-compliance/internal/workers/compliance/monitoring-rules"
	runescalation "fleet-compliance/internal/workers/compliance/run-escalation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tickAt = time.Date(2024, 3, 1, 0, 5, 0, 0, time.UTC)

type fakeRunner struct {
	mu      sync.Mutex
	calls   map[string]int
	errs    map[string]error
	started chan string
	release chan struct{}
	total   int32
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{calls: make(map[string]int), errs: make(map[string]error)}
}

func (f *fakeRunner) RunRule(ctx context.Context, rule models.MonitoringRule, _ time.Time) ([]runescalation.FiredEscalation, error) {
	atomic.AddInt32(&f.total, 1)
	f.mu.Lock()
	f.calls[rule.ID]++
	err := f.errs[rule.ID]
	f.mu.Unlock()

	if f.started != nil {
		f.started <- rule.ID
	}
	if f.release != nil {
		<-f.release
	}
	if err != nil {
		return nil, err
	}
	return []runescalation.FiredEscalation{{RuleID: rule.ID, Level: 1}}, nil
}

func (f *fakeRunner) Calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func testRule(id string, freq models.CheckFrequency, next time.Time) models.MonitoringRule {
	return models.MonitoringRule{
		ID:               id,
		Domain:           models.DomainInsurance,
		TriggerCondition: models.TriggerDaysBeforeExpiry,
		CheckFrequency:   freq,
		Enabled:          true,
		NextRunAt:        next,
		EscalationLevels: []models.EscalationLevel{
			{Level: 1, DaysFromExpiry: 30, Actions: []models.Action{models.EmailAction(models.EmailConfig{})}},
		},
	}
}

type fixture struct {
	scheduler *Scheduler
	registry  *monitoringrules.Registry
	rules     *repository.MemoryRuleStore
	lock      *repository.MemoryRuleLock
	runner    *fakeRunner
}

func newFixture(t *testing.T, rules ...models.MonitoringRule) *fixture {
	store := repository.NewMemoryRuleStore()
	reg := monitoringrules.NewRegistry(store, logger.NewTestLogger(t))
	for _, r := range rules {
		require.NoError(t, reg.Put(context.Background(), r))
	}
	f := &fixture{
		registry: reg,
		rules:    store,
		lock:     repository.NewMemoryRuleLock(),
		runner:   newFakeRunner(),
	}
	f.scheduler = NewScheduler(LoadConfig(), reg, f.runner, f.lock, nil, logger.NewTestLogger(t))
	f.scheduler.now = func() time.Time { return tickAt }
	return f
}

func (f *fixture) rule(t *testing.T, id string) models.MonitoringRule {
	t.Helper()
	r, err := f.rules.Get(context.Background(), id)
	require.NoError(t, err)
	return *r
}

func TestTick_RunsOnlyDueRulesAndAdvances(t *testing.T) {
	f := newFixture(t,
		testRule("daily", models.FrequencyDaily, tickAt.Add(-5*time.Minute)),
		testRule("weekly", models.FrequencyWeekly, tickAt),
		testRule("later", models.FrequencyDaily, tickAt.Add(time.Hour)),
	)

	res, err := f.scheduler.Tick(context.Background(), tickAt)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Due)
	require.Len(t, res.Runs, 2)
	assert.Equal(t, "daily", res.Runs[0].RuleID)
	assert.Equal(t, "weekly", res.Runs[1].RuleID)
	assert.Equal(t, 0, f.runner.Calls("later"))

	assert.True(t, f.rule(t, "daily").NextRunAt.Equal(tickAt.Add(-5*time.Minute).AddDate(0, 0, 1)))
	assert.True(t, f.rule(t, "weekly").NextRunAt.Equal(tickAt.AddDate(0, 0, 7)))
	require.NotNil(t, f.rule(t, "weekly").LastRunAt)

	// Same instant again: nothing is due any more.
	res, err = f.scheduler.Tick(context.Background(), tickAt)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Due)
	assert.Equal(t, 1, f.runner.Calls("daily"))
}

func TestTick_FailingRuleDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t,
		testRule("broken", models.FrequencyDaily, tickAt),
		testRule("healthy", models.FrequencyDaily, tickAt),
	)
	f.runner.errs["broken"] = fmt.Errorf("record store offline")

	res, err := f.scheduler.Tick(context.Background(), tickAt)
	require.NoError(t, err)
	require.Len(t, res.Runs, 2)
	assert.Equal(t, 1, res.Failed())

	broken := res.Runs[0]
	assert.Equal(t, "record store offline", broken.Error)
	assert.True(t, broken.Advanced)
	assert.True(t, f.rule(t, "broken").NextRunAt.After(tickAt))

	assert.Equal(t, 1, res.Runs[1].Fired)
	assert.Empty(t, res.Runs[1].Error)
}

func TestTick_InterruptedRunIsRetried(t *testing.T) {
	f := newFixture(t, testRule("slow", models.FrequencyDaily, tickAt))
	f.runner.errs["slow"] = fmt.Errorf("run stopped: %w", context.DeadlineExceeded)

	res, err := f.scheduler.Tick(context.Background(), tickAt)
	require.NoError(t, err)
	require.Len(t, res.Runs, 1)
	assert.False(t, res.Runs[0].Advanced)
	assert.True(t, f.rule(t, "slow").NextRunAt.Equal(tickAt))
}

func TestTick_LeaseHeldElsewhereSkips(t *testing.T) {
	f := newFixture(t, testRule("leased", models.FrequencyDaily, tickAt))
	release, ok, err := f.lock.Acquire(context.Background(), "rule:leased", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	res, err := f.scheduler.Tick(context.Background(), tickAt)
	require.NoError(t, err)
	require.Len(t, res.Runs, 1)
	assert.True(t, res.Runs[0].Skipped)
	assert.False(t, res.Runs[0].Advanced)
	assert.Equal(t, 0, f.runner.Calls("leased"))
	assert.True(t, f.rule(t, "leased").NextRunAt.Equal(tickAt))
}

func TestTick_OverlappingTicksRunRuleOnce(t *testing.T) {
	f := newFixture(t, testRule("busy", models.FrequencyDaily, tickAt))
	f.runner.started = make(chan string, 2)
	f.runner.release = make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.scheduler.Tick(context.Background(), tickAt)
			assert.NoError(t, err)
		}()
	}

	<-f.runner.started
	time.Sleep(50 * time.Millisecond)
	close(f.runner.release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.runner.total))
}

func TestTick_BoundedConcurrency(t *testing.T) {
	var rules []models.MonitoringRule
	for i := 0; i < 10; i++ {
		rules = append(rules, testRule(fmt.Sprintf("rule-%02d", i), models.FrequencyDaily, tickAt))
	}
	f := newFixture(t, rules...)
	f.scheduler.config.Concurrency = 3

	var running, peak int32
	f.scheduler.runner = runnerFunc(func(ctx context.Context, rule models.MonitoringRule, now time.Time) ([]runescalation.FiredEscalation, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil, nil
	})

	res, err := f.scheduler.Tick(context.Background(), tickAt)
	require.NoError(t, err)
	assert.Len(t, res.Runs, 10)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

type runnerFunc func(ctx context.Context, rule models.MonitoringRule, now time.Time) ([]runescalation.FiredEscalation, error)

func (f runnerFunc) RunRule(ctx context.Context, rule models.MonitoringRule, now time.Time) ([]runescalation.FiredEscalation, error) {
	return f(ctx, rule, now)
}

func TestTick_CancelledContextStartsNothing(t *testing.T) {
	f := newFixture(t, testRule("a", models.FrequencyDaily, tickAt))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.scheduler.Tick(ctx, tickAt)
	require.NoError(t, err)
	assert.Empty(t, res.Runs)
	assert.Equal(t, 0, f.runner.Calls("a"))
}

func TestConfigFromScheduler(t *testing.T) {
	cfg, err := ConfigFromScheduler(config.SchedulerConfig{
		CronSpec:    "*/5 * * * *",
		Timezone:    "Asia/Manila",
		Concurrency: 2,
		LockTTL:     60000,
	})
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", cfg.CronSpec)
	assert.Equal(t, "Asia/Manila", cfg.Location.String())
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, time.Minute, cfg.LockTTL)
	assert.Equal(t, 4*time.Minute, cfg.RunTimeout)

	_, err = ConfigFromScheduler(config.SchedulerConfig{Timezone: "Mars/Olympus"})
	assert.Error(t, err)
}

func TestStart_RejectsBadCronSpec(t *testing.T) {
	f := newFixture(t)
	f.scheduler.config.CronSpec = "every now and then"
	assert.Error(t, f.scheduler.Start(context.Background()))

	f.scheduler.config.CronSpec = "@every 1h"
	require.NoError(t, f.scheduler.Start(context.Background()))
	f.scheduler.Stop()
}

func TestHandler_Execute(t *testing.T) {
	f := newFixture(t, testRule("daily", models.FrequencyDaily, tickAt))
	h := NewHandler(LoadConfig(), f.scheduler, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{Now: tickAt.Format(time.RFC3339)})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Due)
	require.Len(t, out.Runs, 1)
	assert.True(t, out.Runs[0].Advanced)

	_, err = h.Execute(context.Background(), &Input{Now: "yesterday"})
	assert.Error(t, err)
}
