// internal/workers/compliance/check-compliance/record_handler.go
package checkcompliance

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
	RecordTaskType = "manage-compliance-record"
)

// RecordHandler drives the record lifecycle and bulk agency sync from BPMN processes.
type RecordHandler struct {
	config  *Config
	service *Service
	logger  logger.Logger
	errors  *errors.ErrorHandler
}

func NewRecordHandler(config *Config, service *Service, log logger.Logger) *RecordHandler {
	l := log.WithFields(map[string]interface{}{"taskType": RecordTaskType})
	return &RecordHandler{
		config:  config,
		service: service,
		logger:  l,
		errors:  errors.NewErrorHandler(l),
	}
}

func (h *RecordHandler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input RecordInput
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(ctx, client, job, errors.NewValidationError("variables", err.Error()))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(RecordTaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(RecordTaskType).Observe(time.Since(start).Seconds())

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

func (h *RecordHandler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(RecordTaskType, string(errors.CodeOf(err))).Inc()
	h.errors.HandleJobError(ctx, client, job, err)
}

func (h *RecordHandler) execute(ctx context.Context, input *RecordInput) (*RecordOutput, error) {
	switch input.Operation {
	case OperationOnboard:
		if input.Record == nil {
			return nil, errors.NewValidationError("record", "is required for onboard")
		}
		rec, err := h.service.Onboard(ctx, *input.Record)
		if err != nil {
			return nil, err
		}
		return &RecordOutput{Record: rec}, nil

	case OperationRenew:
		if err := requireTarget(input); err != nil {
			return nil, err
		}
		expiry, err := time.Parse(time.RFC3339, input.ExpiryDate)
		if err != nil {
			return nil, errors.NewValidationError("expiryDate", "must be RFC3339")
		}
		rec, err := h.service.Renew(ctx, input.EntityID, input.Domain, expiry, input.ReferenceNumber)
		if err != nil {
			return nil, err
		}
		return &RecordOutput{Record: rec}, nil

	case OperationSuspend:
		if err := requireTarget(input); err != nil {
			return nil, err
		}
		rec, err := h.service.Suspend(ctx, input.EntityID, input.Domain, input.Reason)
		if err != nil {
			return nil, err
		}
		return &RecordOutput{Record: rec}, nil

	case OperationReinstate:
		if err := requireTarget(input); err != nil {
			return nil, err
		}
		rec, err := h.service.Reinstate(ctx, input.EntityID, input.Domain)
		if err != nil {
			return nil, err
		}
		return &RecordOutput{Record: rec}, nil

	case OperationSync:
		if len(input.Refs) == 0 {
			return nil, errors.NewValidationError("refs", "at least one reference is required")
		}
		return &RecordOutput{Results: h.service.SyncAll(ctx, input.Refs)}, nil
	}
	return nil, errors.NewValidationError("operation", fmt.Sprintf("unsupported operation %q", input.Operation))
}

func requireTarget(input *RecordInput) error {
	if input.EntityID == "" {
		return errors.NewValidationError("entityId", "is required")
	}
	if !input.Domain.IsCompliance() {
		return errors.NewValidationError("domain", fmt.Sprintf("unknown domain %q", input.Domain))
	}
	return nil
}

func (h *RecordHandler) Execute(ctx context.Context, input *RecordInput) (*RecordOutput, error) {
	return h.execute(ctx, input)
}
