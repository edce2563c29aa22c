// internal/workers/compliance/run-escalation/handler.go
package runescalation

import (
	"context"
	"encoding/json"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/common/logger"
	"fleet-compliance/internal/common/metrics"
	"fleet-compliance/internal/repository"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "run-monitoring-rule"
)

// Handler runs one rule on demand from a BPMN process. The rule's schedule is left untouched.
type Handler struct {
	config       *Config
	rules        repository.RuleStore
	orchestrator *Orchestrator
	logger       logger.Logger
	errors       *errors.ErrorHandler
	now          func() time.Time
}

func NewHandler(config *Config, rules repository.RuleStore, orchestrator *Orchestrator, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		rules:        rules,
		orchestrator: orchestrator,
		logger:       l,
		errors:       errors.NewErrorHandler(l),
		now:          time.Now,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(ctx, client, job, errors.NewValidationError("variables", err.Error()))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.completeJob(ctx, client, job, output)
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.CodeOf(err))).Inc()
	h.errors.HandleJobError(ctx, client, job, err)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.RuleID == "" {
		return nil, errors.NewValidationError("ruleId", "is required")
	}
	now := h.now()
	if input.Now != "" {
		t, err := time.Parse(time.RFC3339, input.Now)
		if err != nil {
			return nil, errors.NewValidationError("now", "must be RFC3339")
		}
		now = t
	}

	rule, err := h.rules.Get(ctx, input.RuleID)
	if err != nil {
		return nil, err
	}
	fired, err := h.orchestrator.RunRule(ctx, *rule, now)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	if fired == nil {
		fired = []FiredEscalation{}
	}
	return &Output{RuleID: rule.ID, Fired: len(fired), Escalations: fired}, nil
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
