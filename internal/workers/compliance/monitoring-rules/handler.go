// internal/workers/compliance/monitoring-rules/handler.go
package monitoringrules

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/common/logger"
	"fleet-compliance/internal/common/validation"
	"fleet-compliance/internal/models"
	"fleet-compliance/internal/repository"
	"fleet-compliance/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "register-monitoring-rule"
)

// Registry holds the domain-scoped monitoring rules and their schedule.
type Registry struct {
	store  repository.RuleStore
	logger logger.Logger
	now    func() time.Time
}

func NewRegistry(store repository.RuleStore, log logger.Logger) *Registry {
	return &Registry{store: store, logger: log, now: time.Now}
}

// Parse validates a raw descriptor against the rule schema and decodes it.
// Levels come back sorted by daysFromExpiry descending.
func Parse(raw []byte) (*models.MonitoringRule, error) {
	result, err := validation.ValidateRuleDescriptor(raw)
	if err != nil {
		return nil, errors.NewValidationError("rule", err.Error())
	}
	if !result.Valid {
		return nil, errors.NewValidationError("rule", strings.Join(result.GetErrorMessages(), "; "))
	}

	var d descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, errors.NewValidationError("rule", err.Error())
	}

	rule := &models.MonitoringRule{
		ID:               d.ID,
		Name:             d.Name,
		Domain:           d.Domain,
		TriggerCondition: d.TriggerCondition,
		CheckFrequency:   d.CheckFrequency,
		EscalationLevels: d.EscalationLevels,
		Applicability:    d.Applicability,
		Enabled:          d.Enabled == nil || *d.Enabled,
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if d.NextRunAt != nil {
		rule.NextRunAt = *d.NextRunAt
	}
	rule.SortLevels()
	if err := rule.Validate(); err != nil {
		return nil, errors.NewValidationError("rule", err.Error())
	}
	return rule, nil
}

// Register parses a descriptor and stores it.
func (r *Registry) Register(ctx context.Context, raw []byte) (*models.MonitoringRule, error) {
	rule, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := r.Put(ctx, *rule); err != nil {
		return nil, err
	}
	return r.store.Get(ctx, rule.ID)
}

// Put stores a rule. A rule without NextRunAt is due immediately.
func (r *Registry) Put(ctx context.Context, rule models.MonitoringRule) error {
	rule.SortLevels()
	if err := rule.Validate(); err != nil {
		return errors.NewValidationError("rule", err.Error())
	}
	if rule.NextRunAt.IsZero() {
		rule.NextRunAt = r.now().UTC()
	}
	if err := r.store.Save(ctx, rule); err != nil {
		return fmt.Errorf("save rule %s: %w", rule.ID, err)
	}
	r.logger.Info("monitoring rule registered", map[string]interface{}{
		"ruleId":    rule.ID,
		"domain":    rule.Domain,
		"levels":    len(rule.EscalationLevels),
		"nextRunAt": rule.NextRunAt,
	})
	return nil
}

func (r *Registry) Get(ctx context.Context, id string) (*models.MonitoringRule, error) {
	return r.store.Get(ctx, id)
}

func (r *Registry) List(ctx context.Context) ([]models.MonitoringRule, error) {
	return r.store.List(ctx)
}

// Due returns the enabled rules with now >= NextRunAt.
func (r *Registry) Due(ctx context.Context, now time.Time) ([]models.MonitoringRule, error) {
	return r.store.ListDue(ctx, now)
}

func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) error {
	rule, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	rule.Enabled = enabled
	return r.store.Save(ctx, *rule)
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, id)
}

// Advance records a run at ranAt and moves NextRunAt forward by the rule's
// frequency until it is strictly after ranAt.
func (r *Registry) Advance(ctx context.Context, rule models.MonitoringRule, ranAt time.Time) (time.Time, error) {
	next := models.NextRunAfter(rule.CheckFrequency, rule.NextRunAt, ranAt)
	if err := r.store.MarkRun(ctx, rule.ID, ranAt, next); err != nil {
		return time.Time{}, err
	}
	return next, nil
}

// SeedDefaults stores the built-in rules that are not present yet.
func (r *Registry) SeedDefaults(ctx context.Context) (int, error) {
	seeded := 0
	for _, rule := range DefaultRules() {
		if _, err := r.store.Get(ctx, rule.ID); err == nil {
			continue
		} else if !errors.IsNotFound(err) {
			return seeded, err
		}
		if err := r.Put(ctx, rule); err != nil {
			return seeded, err
		}
		seeded++
	}
	return seeded, nil
}

// LoadCatalog registers every rule of a catalogue file. Invalid rules are
// logged and skipped; the count of registered rules is returned.
func (r *Registry) LoadCatalog(ctx context.Context, path string) (int, error) {
	cat, err := registry.LoadCatalog(path)
	if err != nil {
		return 0, err
	}
	loaded := 0
	for i, raw := range cat.Rules {
		if _, err := r.Register(ctx, raw); err != nil {
			r.logger.Warn("skipping invalid catalog rule", map[string]interface{}{
				"index": i,
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		loaded++
	}
	return loaded, nil
}

// Handler exposes rule registration as a Zeebe job worker.
type Handler struct {
	config   *Config
	registry *Registry
	logger   logger.Logger
	errors   *errors.ErrorHandler
}

func NewHandler(config *Config, reg *Registry, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		registry: reg,
		logger:   l,
		errors:   errors.NewErrorHandler(l),
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

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if len(input.Rule) == 0 {
		return nil, errors.NewValidationError("rule", "is required")
	}
	rule, err := h.registry.Register(ctx, input.Rule)
	if err != nil {
		return nil, err
	}
	return &Output{
		RuleID:    rule.ID,
		Domain:    rule.Domain,
		Levels:    len(rule.EscalationLevels),
		NextRunAt: rule.NextRunAt.UTC().Format(time.RFC3339),
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
