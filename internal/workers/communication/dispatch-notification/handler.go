// internal/workers/communication/dispatch-notification/handler.go
package dispatchnotification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "dispatch-notification"
)

type Handler struct {
	config     *Config
	dispatcher *Dispatcher
	logger     logger.Logger
	errors     *errors.ErrorHandler
}

func NewHandler(config *Config, dispatcher *Dispatcher, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		dispatcher: dispatcher,
		logger:     l,
		errors:     errors.NewErrorHandler(l),
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

// execute fails with a retryable error only when every attempted channel failed.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	result, err := h.dispatcher.Dispatch(ctx, input.Notification)
	if err != nil {
		return nil, err
	}
	status := Status(result)
	if status == StatusFailed {
		return nil, errors.NewNotificationSendFailedError("all",
			fmt.Errorf("notification %s: no channel delivered", result.NotificationID))
	}
	return &Output{
		NotificationID: result.NotificationID,
		Status:         status,
		Channels:       result.Channels,
		SentAt:         result.SentAt.Format(time.RFC3339),
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
