// internal/workers/violations/violation-ledger/handler.go
package violationledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/common/logger"
	"fleet-compliance/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "manage-violation"
)

type Handler struct {
	config *Config
	ledger *Ledger
	logger logger.Logger
	errors *errors.ErrorHandler
}

func NewHandler(config *Config, ledger *Ledger, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		ledger: ledger,
		logger: l,
		errors: errors.NewErrorHandler(l),
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
	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.CodeOf(err))).Inc()
	h.errors.HandleJobError(ctx, client, job, err)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.Operation != OpRecord && input.Operation != OpMarkOverdue && input.ViolationID == "" {
		return nil, errors.NewValidationError("violationId", "is required")
	}

	var (
		v   = &Output{}
		err error
	)
	switch input.Operation {
	case OpRecord:
		if input.Violation == nil {
			return nil, errors.NewValidationError("violation", "is required")
		}
		v.Violation, err = h.ledger.Record(ctx, *input.Violation)
	case OpPay:
		v.Violation, err = h.ledger.Pay(ctx, input.ViolationID)
	case OpContest:
		v.Violation, err = h.ledger.Contest(ctx, input.ViolationID, input.Reason)
	case OpReview:
		v.Violation, err = h.ledger.Review(ctx, input.ViolationID, input.Decision, input.ReducedFine)
	case OpMarkOverdue:
		now := time.Now().UTC()
		if input.Now != "" {
			if now, err = time.Parse(time.RFC3339, input.Now); err != nil {
				return nil, errors.NewValidationError("now", "must be RFC3339")
			}
		}
		v.Updated, err = h.ledger.MarkOverdue(ctx, now)
	default:
		return nil, errors.NewValidationError("operation", fmt.Sprintf("unknown operation %q", input.Operation))
	}
	if err != nil {
		return nil, err
	}
	if v.Violation != nil {
		v.Updated = 1
	}
	return v, nil
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
