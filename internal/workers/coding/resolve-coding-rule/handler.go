// internal/workers/coding/resolve-coding-rule/handler.go
package resolvecodingrule

import (
	"context"
	"encoding/json"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "resolve-coding-rule"
)

type Handler struct {
	config   *Config
	resolver *Resolver
	logger   logger.Logger
	errors   *errors.ErrorHandler
}

func NewHandler(config *Config, resolver *Resolver, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		resolver: resolver,
		logger:   l,
		errors:   errors.NewErrorHandler(l),
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

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.RegionID == "" {
		return nil, errors.NewValidationError("regionId", "is required")
	}
	now := time.Now()
	if input.Now != "" {
		parsed, err := time.Parse(time.RFC3339, input.Now)
		if err != nil {
			return nil, errors.NewValidationError("now", "must be RFC3339")
		}
		now = parsed
	}

	rule, err := h.resolver.Resolve(ctx, input.RegionID, input.Location)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return &Output{BannedDigits: []int{}}, nil
	}
	return &Output{
		Found:        true,
		RuleID:       rule.ID,
		InEffect:     InEffect(*rule, now),
		BannedDigits: BannedDigitsFor(*rule, now),
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
