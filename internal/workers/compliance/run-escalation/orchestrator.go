// internal/workers/compliance/run-escalation/orchestrator.go
package runescalation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/common/logger"
	"fleet-compliance/internal/common/metrics"
	"fleet-compliance/internal/models"
	"fleet-compliance/internal/repository"
	evaluatestate "fleet-compliance/internal/workers/compliance/evaluate-state"

	"github.com/google/uuid"
)

// Notifier delivers a notification on its channels.
type Notifier interface {
	Dispatch(ctx context.Context, n models.Notification) (*models.DispatchResult, error)
}

// APICaller posts a JSON payload to an external endpoint.
type APICaller interface {
	PostJSON(ctx context.Context, url string, body, out interface{}) error
}

type Dependencies struct {
	Records   repository.ComplianceRecordStore
	Alerts    repository.AlertStore
	Fleet     repository.FleetController
	Reports   repository.ReportQueue
	Notifier  Notifier
	API       APICaller
	Evaluator *evaluatestate.Evaluator
}

// Orchestrator runs a monitoring rule over the records of its domain and fires each
// escalation level at most once per expiry cycle.
type Orchestrator struct {
	records   repository.ComplianceRecordStore
	alerts    repository.AlertStore
	fleet     repository.FleetController
	reports   repository.ReportQueue
	notifier  Notifier
	api       APICaller
	evaluator *evaluatestate.Evaluator
	logger    logger.Logger
}

func NewOrchestrator(deps Dependencies, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		records:   deps.Records,
		alerts:    deps.Alerts,
		fleet:     deps.Fleet,
		reports:   deps.Reports,
		notifier:  deps.Notifier,
		api:       deps.API,
		evaluator: deps.Evaluator,
		logger:    log,
	}
}

// RunRule evaluates every applicable, non-suspended record of the rule's domain.
// Per-record failures are logged and skipped. When ctx is done no further records are
// started and the escalations fired so far are returned with ctx.Err().
func (o *Orchestrator) RunRule(ctx context.Context, rule models.MonitoringRule, now time.Time) ([]FiredEscalation, error) {
	records, err := o.records.ListByDomain(ctx, rule.Domain)
	if err != nil {
		metrics.RuleRuns.WithLabelValues(string(rule.Domain), "error").Inc()
		return nil, fmt.Errorf("list %s records: %w", rule.Domain, err)
	}

	var (
		fired  []FiredEscalation
		failed int
	)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			metrics.RuleRuns.WithLabelValues(string(rule.Domain), "cancelled").Inc()
			return fired, err
		}
		if rec.Suspended || !rule.Applicability.Matches(rec) {
			continue
		}
		f, err := o.evaluateRecord(ctx, rule, rec, now)
		if err != nil {
			failed++
			o.logger.Warn("record evaluation failed", map[string]interface{}{
				"ruleId":   rule.ID,
				"entityId": rec.EntityID,
				"error":    err.Error(),
			})
			continue
		}
		if f != nil {
			fired = append(fired, *f)
		}
	}

	outcome := "ok"
	if failed > 0 {
		outcome = "partial"
	}
	metrics.RuleRuns.WithLabelValues(string(rule.Domain), outcome).Inc()
	o.logger.Info("monitoring rule run", map[string]interface{}{
		"ruleId":   rule.ID,
		"domain":   rule.Domain,
		"records":  len(records),
		"fired":    len(fired),
		"failures": failed,
	})
	return fired, nil
}

// LevelToFire returns the level that should fire for rec under rule, or nil.
func LevelToFire(rule models.MonitoringRule, rec models.ComplianceRecord, a evaluatestate.Assessment) *models.EscalationLevel {
	switch rule.TriggerCondition {
	case models.TriggerPostExpiry:
		if a.DaysUntilExpiry >= 0 {
			return nil
		}
	case models.TriggerStatusChange:
		if a.Status == rec.Status {
			return nil
		}
	}
	lvl := rule.LevelFor(a.DaysUntilExpiry)
	if lvl == nil || lvl.Level <= rec.LastFired() {
		return nil
	}
	return lvl
}

func (o *Orchestrator) evaluateRecord(ctx context.Context, rule models.MonitoringRule, rec models.ComplianceRecord, now time.Time) (*FiredEscalation, error) {
	a := o.evaluator.Assess(rec, now)
	lvl := LevelToFire(rule, rec, a)

	if lvl == nil {
		if a.Status != rec.Status {
			updated := rec.Clone()
			updated.Status = a.Status
			if _, err := o.records.Update(ctx, updated); err != nil && !errors.IsConflict(err) {
				return nil, fmt.Errorf("persist status: %w", err)
			}
		}
		return nil, nil
	}

	// Claim the level before acting. The version check fails if the record was renewed
	// or another run claimed it first.
	claim := rec.Clone()
	claim.LastFiredEscalationLevel = models.IntPtr(lvl.Level)
	claim.Status = a.Status
	if _, err := o.records.Update(ctx, claim); err != nil {
		if errors.IsConflict(err) {
			o.logger.Debug("escalation already claimed", map[string]interface{}{
				"ruleId":   rule.ID,
				"entityId": rec.EntityID,
				"level":    lvl.Level,
			})
			return nil, nil
		}
		return nil, fmt.Errorf("claim level %d: %w", lvl.Level, err)
	}

	failedKinds := o.executeActions(ctx, rule, *lvl, rec, a, now)

	alert := models.Alert{
		ID:              uuid.New().String(),
		EntityID:        rec.EntityID,
		Domain:          rec.Domain,
		RuleID:          rule.ID,
		Level:           lvl.Level,
		Severity:        severityFor(a),
		Message:         alertMessage(rec, *lvl, a),
		Status:          models.AlertActive,
		DaysUntilExpiry: a.DaysUntilExpiry,
		FailedActions:   failedKinds,
		CreatedAt:       now.UTC(),
	}
	if err := o.alerts.Create(ctx, alert); err != nil {
		o.logger.Error("alert write failed", map[string]interface{}{
			"entityId": rec.EntityID,
			"level":    lvl.Level,
			"error":    err.Error(),
		})
	}

	metrics.EscalationsFired.WithLabelValues(string(rec.Domain), strconv.Itoa(lvl.Level)).Inc()
	o.logger.Info("escalation fired", map[string]interface{}{
		"ruleId":          rule.ID,
		"entityId":        rec.EntityID,
		"level":           lvl.Level,
		"daysUntilExpiry": a.DaysUntilExpiry,
		"failedActions":   failedKinds,
	})
	return &FiredEscalation{
		EntityID:        rec.EntityID,
		Domain:          rec.Domain,
		RuleID:          rule.ID,
		Level:           lvl.Level,
		DaysUntilExpiry: a.DaysUntilExpiry,
		Status:          a.Status,
		AlertID:         alert.ID,
		FailedActions:   failedKinds,
	}, nil
}

func severityFor(a evaluatestate.Assessment) models.Severity {
	switch {
	case a.DaysUntilExpiry < 0 || a.Critical:
		return models.SeverityCritical
	case a.Status == models.StatusExpiringSoon:
		return models.SeverityWarning
	}
	return models.SeverityInfo
}

func alertMessage(rec models.ComplianceRecord, lvl models.EscalationLevel, a evaluatestate.Assessment) string {
	if a.DaysUntilExpiry < 0 {
		return fmt.Sprintf("%s %s expired %d day(s) ago (escalation level %d)",
			rec.EntityID, rec.Domain, -a.DaysUntilExpiry, lvl.Level)
	}
	return fmt.Sprintf("%s %s expires in %d day(s) (escalation level %d)",
		rec.EntityID, rec.Domain, a.DaysUntilExpiry, lvl.Level)
}
