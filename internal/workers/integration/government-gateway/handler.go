// internal/workers/integration/government-gateway/handler.go
package governmentgateway

import (
	"context"
	"encoding/json"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/common/logger"
	"fleet-compliance/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "verify-compliance"
)

type Handler struct {
	config  *Config
	gateway *Gateway
	logger  logger.Logger
	errors  *errors.ErrorHandler
}

func NewHandler(config *Config, gateway *Gateway, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  config,
		gateway: gateway,
		logger:  l,
		errors:  errors.NewErrorHandler(l),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
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

// execute returns an error only for bad input. Agency failures are reported as unverified.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.EntityID == "" {
		return nil, errors.NewValidationError("entityId", "is required")
	}
	name, ok := models.AgencyFor(input.Domain)
	if !ok {
		return nil, errors.NewValidationError("domain", "no agency verifies this domain")
	}

	result, err := h.gateway.Verify(ctx, models.EntityRef{
		EntityID:        input.EntityID,
		Domain:          input.Domain,
		ReferenceNumber: input.ReferenceNumber,
	})
	out := &Output{Agency: name, Health: h.gateway.HealthStatus(name)}
	if err != nil {
		if errors.IsValidation(err) {
			return nil, err
		}
		out.ErrorCode = string(errors.CodeOf(err))
		return out, nil
	}
	out.Verified = true
	out.Valid = result.Valid
	out.Status = result.Status
	out.Cached = result.Cached
	return out, nil
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
