// internal/workers/violations/violation-ledger/ledger.go
package violationledger

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/common/logger"
	"fleet-compliance/internal/common/metrics"
	"fleet-compliance/internal/models"
	"fleet-compliance/internal/repository"

	"github.com/google/uuid"
)

// transitionAttempts bounds re-reads after a concurrent status change.
const transitionAttempts = 3

// Ledger records violations and drives their payment and contest lifecycle.
type Ledger struct {
	store       repository.ViolationStore
	paymentTerm time.Duration
	logger      logger.Logger
	now         func() time.Time
}

func NewLedger(store repository.ViolationStore, cfg *Config, log logger.Logger) *Ledger {
	return &Ledger{
		store:       store,
		paymentTerm: cfg.PaymentTerm,
		logger:      log,
		now:         time.Now,
	}
}

// Record inserts a new pending violation. A second violation with the same dedup key
// fails with a ConflictError carrying the existing id under "existingId".
func (l *Ledger) Record(ctx context.Context, v models.Violation) (*models.Violation, error) {
	if v.EntityID == "" {
		return nil, errors.NewValidationError("entityId", "is required")
	}
	if !v.Domain.IsCompliance() && v.Domain != models.DomainNumberCoding {
		return nil, errors.NewValidationError("domain", fmt.Sprintf("unknown domain %q", v.Domain))
	}
	if v.FineAmount < 0 {
		return nil, errors.NewValidationError("fineAmount", "must not be negative")
	}
	if v.Domain == models.DomainNumberCoding && v.Coding == nil {
		return nil, errors.NewValidationError("coding", "is required for number_coding violations")
	}

	now := l.now().UTC()
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.ViolationDate.IsZero() {
		v.ViolationDate = now
	}
	if v.DueDate.IsZero() {
		v.DueDate = v.ViolationDate.Add(l.paymentTerm)
	}
	v.Status = models.ViolationPending
	v.CreatedAt = now
	v.History = []models.StatusChange{{To: models.ViolationPending, At: now, Note: "recorded"}}

	if err := l.store.Insert(ctx, v); err != nil {
		return nil, err
	}
	metrics.ViolationsRecorded.WithLabelValues(string(v.Domain)).Inc()
	l.logger.Info("violation recorded", map[string]interface{}{
		"violationId": v.ID,
		"entityId":    v.EntityID,
		"domain":      v.Domain,
		"fineAmount":  v.FineAmount,
	})
	return &v, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*models.Violation, error) {
	return l.store.Get(ctx, id)
}

// FindExisting returns the violation a dedup ConflictError refers to.
func (l *Ledger) FindExisting(ctx context.Context, conflict error) (*models.Violation, error) {
	var stdErr *errors.StandardError
	if !stderrors.As(conflict, &stdErr) || stdErr.Code != errors.ErrCodeConflict {
		return nil, conflict
	}
	id, _ := stdErr.Metadata["existingId"].(string)
	if id == "" {
		return nil, conflict
	}
	return l.store.Get(ctx, id)
}

// ListByEntity returns the entity's violations ordered by violation date.
func (l *Ledger) ListByEntity(ctx context.Context, entityID string) ([]models.Violation, error) {
	return l.store.ListByEntity(ctx, entityID)
}

// CountInWindow counts the entity's violations in domain with from <= violationDate <= to.
// Dismissed violations are not counted.
func (l *Ledger) CountInWindow(ctx context.Context, entityID string, domain models.Domain, from, to time.Time) (int, error) {
	return l.store.CountInWindow(ctx, entityID, domain, from, to)
}

func (l *Ledger) Pay(ctx context.Context, id string) (*models.Violation, error) {
	return l.transition(ctx, id, models.ViolationPaid, "paid", nil)
}

// Contest moves a pending violation to contested. The reason is mandatory.
func (l *Ledger) Contest(ctx context.Context, id, reason string) (*models.Violation, error) {
	if reason == "" {
		return nil, errors.NewValidationError("reason", "is required to contest a violation")
	}
	return l.transition(ctx, id, models.ViolationContested, reason, func(v *models.Violation) error {
		v.ContestReason = reason
		return nil
	})
}

// Review settles a contested violation. upheld and reduced return it to pending with a
// fresh payment term; reduced also replaces the fine. dismissed is terminal.
func (l *Ledger) Review(ctx context.Context, id string, decision models.ReviewDecision, reducedFine float64) (*models.Violation, error) {
	to := models.ViolationPending
	switch decision {
	case models.DecisionUpheld, models.DecisionReduced:
	case models.DecisionDismissed:
		to = models.ViolationDismissed
	default:
		return nil, errors.NewValidationError("decision", fmt.Sprintf("unknown review decision %q", decision))
	}

	return l.transition(ctx, id, to, "review: "+string(decision), func(v *models.Violation) error {
		if decision == models.DecisionReduced {
			if reducedFine < 0 || reducedFine > v.FineAmount {
				return errors.NewValidationError("reducedFine",
					fmt.Sprintf("must be between 0 and the current fine %.2f", v.FineAmount))
			}
			v.FineAmount = reducedFine
		}
		v.ReviewDecision = decision
		if to == models.ViolationPending {
			v.DueDate = l.now().UTC().Add(l.paymentTerm)
		}
		return nil
	})
}

// MarkOverdue moves every pending violation whose due date passed before now to overdue.
// Violations that changed state concurrently are skipped.
func (l *Ledger) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	pastDue, err := l.store.ListPastDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list past due violations: %w", err)
	}
	marked := 0
	for _, v := range pastDue {
		if err := ctx.Err(); err != nil {
			return marked, err
		}
		if _, err := l.transition(ctx, v.ID, models.ViolationOverdue, "payment term elapsed", nil); err != nil {
			if errors.IsStateTransition(err) || errors.IsConflict(err) {
				continue
			}
			return marked, err
		}
		marked++
	}
	if marked > 0 {
		l.logger.Info("violations marked overdue", map[string]interface{}{"count": marked})
	}
	return marked, nil
}

// transition re-reads and re-checks the lifecycle when another writer changed the status first.
func (l *Ledger) transition(ctx context.Context, id string, to models.ViolationStatus, note string, mutate func(*models.Violation) error) (*models.Violation, error) {
	var lastErr error
	for attempt := 0; attempt < transitionAttempts; attempt++ {
		v, err := l.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		from := v.Status
		if !from.CanTransitionTo(to) {
			return nil, errors.NewStateTransitionError("violation", string(from), string(to)).
				WithMetadata("violationId", id)
		}
		if mutate != nil {
			if err := mutate(v); err != nil {
				return nil, err
			}
		}
		v.Status = to
		v.History = append(v.History, models.StatusChange{From: from, To: to, At: l.now().UTC(), Note: note})

		if err := l.store.Update(ctx, *v, from); err != nil {
			if errors.IsConflict(err) {
				lastErr = err
				continue
			}
			return nil, err
		}
		l.logger.Info("violation status changed", map[string]interface{}{
			"violationId": id,
			"from":        from,
			"to":          to,
		})
		return v, nil
	}
	return nil, lastErr
}
