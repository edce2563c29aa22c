// internal/workers/compliance/monitoring-scheduler/scheduler.go
package monitoringscheduler

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"fleet-compliance/internal/common/logger"
	"fleet-compliance/internal/common/observability"
	"fleet-compliance/internal/models"
	"fleet-compliance/internal/repository"
	monitoringrules "fleet-compliance/internal/workers/compliance/monitoring-rules"
	runescalation "fleet-compliance/internal/workers/compliance/run-escalation"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// RuleRunner evaluates one rule at one instant.
type RuleRunner interface {
	RunRule(ctx context.Context, rule models.MonitoringRule, now time.Time) ([]runescalation.FiredEscalation, error)
}

// Scheduler selects due rules on every tick and runs them on a bounded pool.
// A rule never runs twice at once: runs are collapsed in-process and leased across processes.
type Scheduler struct {
	config   *Config
	registry *monitoringrules.Registry
	runner   RuleRunner
	lock     repository.RuleLock
	obs      *observability.Observability
	flight   singleflight.Group
	cron     *cron.Cron
	logger   logger.Logger
	now      func() time.Time
}

func NewScheduler(config *Config, registry *monitoringrules.Registry, runner RuleRunner, lock repository.RuleLock, obs *observability.Observability, log logger.Logger) *Scheduler {
	if obs == nil {
		obs = observability.NewNoop()
	}
	return &Scheduler{
		config:   config,
		registry: registry,
		runner:   runner,
		lock:     lock,
		obs:      obs,
		logger:   log.WithFields(map[string]interface{}{"component": "monitoring-scheduler"}),
		now:      time.Now,
	}
}

// Start registers the tick on a cron driver in the configured timezone. Overlapping
// ticks are skipped rather than queued.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(
		cron.WithLocation(s.config.Location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	_, err := s.cron.AddFunc(s.config.CronSpec, func() {
		tickCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
		if _, err := s.Tick(tickCtx, s.now()); err != nil {
			s.logger.Error("scheduler tick failed", map[string]interface{}{"error": err.Error()})
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", s.config.CronSpec, err)
	}
	s.cron.Start()
	s.logger.Info("monitoring scheduler started", map[string]interface{}{
		"cronSpec":    s.config.CronSpec,
		"timezone":    s.config.Location.String(),
		"concurrency": s.config.Concurrency,
	})
	return nil
}

// Stop stops the cron driver and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("monitoring scheduler stopped", nil)
}

// Tick runs every rule due at now. Rule failures are recorded in the result, never
// returned; the error is reserved for failing to list due rules.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (*TickResult, error) {
	start := time.Now()
	due, err := s.registry.Due(ctx, now)
	if err != nil {
		s.obs.RecordTick(ctx, time.Since(start), 0, "error")
		return nil, fmt.Errorf("list due rules: %w", err)
	}

	result := &TickResult{At: now, Due: len(due)}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(s.config.Concurrency)
	for _, rule := range due {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			run := s.runRule(ctx, rule, now)
			mu.Lock()
			result.Runs = append(result.Runs, run)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Runs, func(i, j int) bool { return result.Runs[i].RuleID < result.Runs[j].RuleID })

	status := "ok"
	if result.Failed() > 0 {
		status = "partial"
	}
	s.obs.RecordTick(ctx, time.Since(start), len(due), status)
	if len(due) > 0 {
		s.logger.Info("scheduler tick", map[string]interface{}{
			"due":      len(due),
			"failed":   result.Failed(),
			"duration": time.Since(start).String(),
		})
	}
	return result, nil
}

func (s *Scheduler) runRule(ctx context.Context, rule models.MonitoringRule, now time.Time) RuleResult {
	v, _, _ := s.flight.Do(rule.ID, func() (interface{}, error) {
		return s.runLeased(ctx, rule, now), nil
	})
	return v.(RuleResult)
}

func (s *Scheduler) runLeased(ctx context.Context, rule models.MonitoringRule, now time.Time) RuleResult {
	res := RuleResult{RuleID: rule.ID}

	release, ok, err := s.lock.Acquire(ctx, "rule:"+rule.ID, s.config.LockTTL)
	if err != nil {
		res.Error = fmt.Sprintf("acquire lease: %v", err)
		s.logger.Warn("rule lease unavailable", map[string]interface{}{"ruleId": rule.ID, "error": err.Error()})
		return res
	}
	if !ok {
		res.Skipped = true
		s.logger.Debug("rule running elsewhere", map[string]interface{}{"ruleId": rule.ID})
		return res
	}
	defer release()

	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	fired, err := s.runner.RunRule(runCtx, rule, now)
	cancel()
	res.Fired = len(fired)

	if err != nil {
		res.Error = err.Error()
		s.logger.Error("monitoring rule failed", map[string]interface{}{
			"ruleId": rule.ID,
			"fired":  len(fired),
			"error":  err.Error(),
		})
		// An interrupted run is retried on the next tick; firing is idempotent.
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			return res
		}
	}

	next, err := s.registry.Advance(ctx, rule, now)
	if err != nil {
		s.logger.Error("failed to advance rule", map[string]interface{}{"ruleId": rule.ID, "error": err.Error()})
		if res.Error == "" {
			res.Error = fmt.Sprintf("advance: %v", err)
		}
		return res
	}
	res.Advanced = true
	res.NextRunAt = next
	return res
}
