// internal/workers/compliance/run-escalation/actions.go
package runescalation

import (
	"context"
	"fmt"
	"time"

	"fleet-compliance/internal/common/metrics"
	"fleet-compliance/internal/models"
	"fleet-compliance/internal/repository"
	evaluatestate "fleet-compliance/internal/workers/compliance/evaluate-state"

	"github.com/google/uuid"
)

// executeActions runs every action of lvl in order and returns the kinds that failed.
// A failing action never stops the ones after it.
func (o *Orchestrator) executeActions(ctx context.Context, rule models.MonitoringRule, lvl models.EscalationLevel, rec models.ComplianceRecord, a evaluatestate.Assessment, now time.Time) []string {
	var failed []string
	for _, action := range lvl.Actions {
		err := o.executeAction(ctx, rule, lvl, action, rec, a, now)
		if err == nil {
			continue
		}
		failed = append(failed, string(action.Kind))
		metrics.ActionFailures.WithLabelValues(string(action.Kind)).Inc()
		o.logger.Warn("escalation action failed", map[string]interface{}{
			"ruleId":   rule.ID,
			"entityId": rec.EntityID,
			"level":    lvl.Level,
			"action":   action.Kind,
			"error":    err.Error(),
		})
	}
	return failed
}

func (o *Orchestrator) executeAction(ctx context.Context, rule models.MonitoringRule, lvl models.EscalationLevel, action models.Action, rec models.ComplianceRecord, a evaluatestate.Assessment, now time.Time) error {
	recipients := action.Recipients
	if len(recipients) == 0 {
		recipients = lvl.Recipients
	}

	switch action.Kind {
	case models.ActionEmail:
		n := o.notification(rule, lvl, rec, a, models.ChannelEmail, recipients)
		if action.Email != nil {
			n.Type = templateOr(action.Email.Template, a)
			n.Subject = action.Email.Subject
			n.Priority = action.Email.Priority
		}
		return o.notify(ctx, n)

	case models.ActionSMS:
		n := o.notification(rule, lvl, rec, a, models.ChannelSMS, recipients)
		if action.SMS != nil {
			n.Type = templateOr(action.SMS.Template, a)
		}
		return o.notify(ctx, n)

	case models.ActionInApp:
		n := o.notification(rule, lvl, rec, a, models.ChannelInApp, recipients)
		if action.InApp != nil {
			n.Type = templateOr(action.InApp.Template, a)
			if action.InApp.Severity != "" {
				n.Data["severity"] = string(action.InApp.Severity)
			}
		}
		return o.notify(ctx, n)

	case models.ActionDisableVehicle:
		if rec.EntityType != models.EntityVehicle {
			o.skip(rule, rec, action)
			return nil
		}
		reason := fmt.Sprintf("%s expired", rec.Domain)
		if action.DisableVehicle != nil && action.DisableVehicle.Reason != "" {
			reason = action.DisableVehicle.Reason
		}
		return o.fleet.DisableVehicle(ctx, rec.EntityID, reason)

	case models.ActionSuspendDriver:
		if rec.EntityType != models.EntityDriver {
			o.skip(rule, rec, action)
			return nil
		}
		reason := fmt.Sprintf("%s expired", rec.Domain)
		if action.SuspendDriver != nil && action.SuspendDriver.Reason != "" {
			reason = action.SuspendDriver.Reason
		}
		return o.fleet.SuspendDriver(ctx, rec.EntityID, reason)

	case models.ActionReport:
		req := repository.ReportRequest{
			ID:          uuid.New().String(),
			EntityID:    rec.EntityID,
			Domain:      rec.Domain,
			RuleID:      rule.ID,
			Level:       lvl.Level,
			ReportType:  "compliance_summary",
			Format:      "pdf",
			RequestedAt: now.UTC(),
		}
		if action.Report != nil {
			if action.Report.ReportType != "" {
				req.ReportType = action.Report.ReportType
			}
			if action.Report.Format != "" {
				req.Format = action.Report.Format
			}
		}
		return o.reports.Enqueue(ctx, req)

	case models.ActionAPICall:
		if action.APICall == nil || action.APICall.URL == "" {
			return fmt.Errorf("api_call without url")
		}
		if o.api == nil {
			return fmt.Errorf("no api caller configured")
		}
		payload := map[string]interface{}{
			"entityId":        rec.EntityID,
			"domain":          rec.Domain,
			"ruleId":          rule.ID,
			"level":           lvl.Level,
			"daysUntilExpiry": a.DaysUntilExpiry,
			"status":          a.Status,
			"referenceNumber": rec.ReferenceNumber,
		}
		if action.APICall.Agency != "" {
			payload["agency"] = action.APICall.Agency
		}
		return o.api.PostJSON(ctx, action.APICall.URL, payload, nil)
	}
	return fmt.Errorf("unknown action kind %q", action.Kind)
}

func (o *Orchestrator) notification(rule models.MonitoringRule, lvl models.EscalationLevel, rec models.ComplianceRecord, a evaluatestate.Assessment, ch models.Channel, to []models.RecipientRole) models.Notification {
	return models.Notification{
		ID:         uuid.New().String(),
		EntityID:   rec.EntityID,
		Domain:     rec.Domain,
		Type:       templateOr("", a),
		Channels:   []models.Channel{ch},
		Recipients: to,
		Data: map[string]interface{}{
			"daysUntilExpiry": a.DaysUntilExpiry,
			"referenceNumber": rec.ReferenceNumber,
			"expiryDate":      rec.ExpiryDate.Format("2006-01-02"),
			"level":           lvl.Level,
			"ruleId":          rule.ID,
			"message":         alertMessage(rec, lvl, a),
		},
	}
}

// notify fails when the dispatcher errors or when nothing was delivered and a channel failed.
// A channel with no reachable contacts is not a failure.
func (o *Orchestrator) notify(ctx context.Context, n models.Notification) error {
	if o.notifier == nil {
		return fmt.Errorf("no notifier configured")
	}
	res, err := o.notifier.Dispatch(ctx, n)
	if err != nil {
		return err
	}
	if res.Delivered() {
		return nil
	}
	for _, c := range res.Channels {
		if c.Status == models.ChannelFailed {
			return fmt.Errorf("%s delivery failed: %s", c.Channel, c.Error)
		}
	}
	return nil
}

func (o *Orchestrator) skip(rule models.MonitoringRule, rec models.ComplianceRecord, action models.Action) {
	o.logger.Debug("action does not apply to entity type", map[string]interface{}{
		"ruleId":     rule.ID,
		"entityId":   rec.EntityID,
		"entityType": rec.EntityType,
		"action":     action.Kind,
	})
}

func templateOr(name string, a evaluatestate.Assessment) string {
	if name != "" {
		return name
	}
	if a.DaysUntilExpiry < 0 {
		return "compliance_expired"
	}
	return "compliance_expiring"
}
