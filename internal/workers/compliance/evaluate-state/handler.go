// internal/workers/compliance/evaluate-state/handler.go
package evaluatestate

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/common/logger"
	"fleet-compliance/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "evaluate-compliance-state"
)

const day = 24 * time.Hour

// DaysUntilExpiry is ceil((expiry - now) / 1 day). Negative once the expiry day has passed.
func DaysUntilExpiry(expiry, now time.Time) int {
	return int(math.Ceil(float64(expiry.Sub(now)) / float64(day)))
}

// Evaluate maps a record to its status at now. It has no side effects.
func Evaluate(rec models.ComplianceRecord, now time.Time, th Thresholds) models.ComplianceStatus {
	return Assess(rec, now, th).Status
}

// Assess is Evaluate plus the day count and whether the critical window has been reached.
func Assess(rec models.ComplianceRecord, now time.Time, th Thresholds) Assessment {
	days := DaysUntilExpiry(rec.ExpiryDate, now)
	a := Assessment{DaysUntilExpiry: days, Critical: days <= th.Critical}

	switch {
	case rec.Suspended:
		a.Status = models.StatusSuspended
	case days < 0:
		a.Status = models.StatusExpired
	case days <= th.Warning:
		a.Status = models.StatusExpiringSoon
	default:
		a.Status = models.StatusCompliant
	}
	return a
}

// Evaluator binds the pure functions to the configured per-domain thresholds.
type Evaluator struct {
	thresholds map[models.Domain]Thresholds
}

func NewEvaluator(config *Config) *Evaluator {
	return &Evaluator{thresholds: config.Thresholds}
}

// Thresholds returns the domain's thresholds; unknown domains get a zero warning window.
func (e *Evaluator) Thresholds(domain models.Domain) Thresholds {
	return e.thresholds[domain]
}

func (e *Evaluator) Evaluate(rec models.ComplianceRecord, now time.Time) models.ComplianceStatus {
	return Evaluate(rec, now, e.Thresholds(rec.Domain))
}

func (e *Evaluator) Assess(rec models.ComplianceRecord, now time.Time) Assessment {
	return Assess(rec, now, e.Thresholds(rec.Domain))
}

// Handler exposes the evaluator as a Zeebe job worker.
type Handler struct {
	config    *Config
	evaluator *Evaluator
	logger    logger.Logger
	errors    *errors.ErrorHandler
	now       func() time.Time
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		evaluator: NewEvaluator(config),
		logger:    l,
		errors:    errors.NewErrorHandler(l),
		now:       time.Now,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errors.HandleJobError(ctx, client, job, errors.NewValidationError("variables", err.Error()))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}
	h.completeJob(ctx, client, job, output)
}

func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	if input.Record.EntityID == "" {
		return nil, errors.NewValidationError("record.entityId", "is required")
	}
	if !input.Record.Domain.IsCompliance() {
		return nil, errors.NewValidationError("record.domain", fmt.Sprintf("unknown domain %q", input.Record.Domain))
	}

	now := h.now()
	if input.Now != "" {
		t, err := time.Parse(time.RFC3339, input.Now)
		if err != nil {
			return nil, errors.NewValidationError("now", "must be RFC3339")
		}
		now = t
	}

	a := h.evaluator.Assess(input.Record, now)
	return &Output{
		EntityID:        input.Record.EntityID,
		Domain:          input.Record.Domain,
		Status:          a.Status,
		DaysUntilExpiry: a.DaysUntilExpiry,
		Critical:        a.Critical,
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
