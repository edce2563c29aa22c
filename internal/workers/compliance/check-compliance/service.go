// internal/workers/compliance/check-compliance/service.go
package checkcompliance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/common/logger"
	"fleet-compliance/internal/models"
	"fleet-compliance/internal/repository"
	evaluatestate "fleet-compliance/internal/workers/compliance/evaluate-state"

	"golang.org/x/sync/errgroup"
)

// Verifier confirms compliance with the issuing agency.
type Verifier interface {
	Verify(ctx context.Context, ref models.EntityRef) (*models.VerificationResult, error)
	HealthStatus(agency models.Agency) models.HealthStatus
}

// Service answers compliance checks and owns the record lifecycle: onboarding, renewal,
// suspension and reinstatement.
type Service struct {
	config    *Config
	records   repository.ComplianceRecordStore
	alerts    repository.AlertStore
	evaluator *evaluatestate.Evaluator
	verifier  Verifier
	logger    logger.Logger
	now       func() time.Time
}

func NewService(config *Config, records repository.ComplianceRecordStore, alerts repository.AlertStore, evaluator *evaluatestate.Evaluator, verifier Verifier, log logger.Logger) *Service {
	return &Service{
		config:    config,
		records:   records,
		alerts:    alerts,
		evaluator: evaluator,
		verifier:  verifier,
		logger:    log,
		now:       time.Now,
	}
}

// Check evaluates the entity's domains at the current time.
func (s *Service) Check(ctx context.Context, req CheckRequest) (*CheckResponse, error) {
	return s.CheckAt(ctx, req, s.now())
}

// CheckAt computes each domain's status from local dates, then asks the agencies within
// CheckTimeout. A domain the agency cannot confirm keeps its local status and is marked
// unverified. ForceRefresh also writes recomputed statuses back to the record store.
func (s *Service) CheckAt(ctx context.Context, req CheckRequest, now time.Time) (*CheckResponse, error) {
	if req.EntityID == "" {
		return nil, errors.NewValidationError("entityId", "is required")
	}
	wanted := make(map[models.Domain]bool, len(req.Domains))
	for _, d := range req.Domains {
		if !d.IsCompliance() {
			return nil, errors.NewValidationError("domains", fmt.Sprintf("unknown domain %q", d))
		}
		wanted[d] = true
	}

	all, err := s.records.ListByEntity(ctx, req.EntityID)
	if err != nil {
		return nil, fmt.Errorf("list records of %s: %w", req.EntityID, err)
	}
	var records []models.ComplianceRecord
	for _, rec := range all {
		if len(wanted) == 0 || wanted[rec.Domain] {
			records = append(records, rec)
		}
	}
	if len(records) == 0 {
		return nil, errors.NewNotFoundError("compliance record", req.EntityID)
	}

	statuses := make([]DomainStatus, len(records))
	for i, rec := range records {
		a := s.evaluator.Assess(rec, now)
		statuses[i] = DomainStatus{
			Status:          a.Status,
			LocalStatus:     a.Status,
			DaysUntilExpiry: a.DaysUntilExpiry,
			ExpiryDate:      rec.ExpiryDate,
			ReferenceNumber: rec.ReferenceNumber,
			LastFiredLevel:  rec.LastFired(),
		}
	}

	s.verifyAll(ctx, records, statuses)

	resp := &CheckResponse{
		EntityID:        req.EntityID,
		OverallStatus:   models.StatusCompliant,
		StatusByDomain:  make(map[models.Domain]DomainStatus, len(records)),
		ActiveAlerts:    []models.Alert{},
		Recommendations: []string{},
		LastChecked:     now.UTC(),
	}
	for i, rec := range records {
		st := statuses[i]
		resp.StatusByDomain[rec.Domain] = st
		resp.OverallStatus = models.Worse(resp.OverallStatus, st.Status)
		resp.Recommendations = append(resp.Recommendations, recommendationsFor(rec, st)...)

		if req.ForceRefresh && st.LocalStatus != rec.Status {
			s.persistStatus(ctx, rec, st.LocalStatus)
		}
	}

	alerts, err := s.alerts.ListActive(ctx, req.EntityID)
	if err != nil {
		s.logger.Warn("active alerts unavailable", map[string]interface{}{
			"entityId": req.EntityID,
			"error":    err.Error(),
		})
	}
	for _, a := range alerts {
		if _, ok := resp.StatusByDomain[a.Domain]; ok {
			resp.ActiveAlerts = append(resp.ActiveAlerts, a)
		}
	}
	sort.Slice(resp.ActiveAlerts, func(i, j int) bool {
		return resp.ActiveAlerts[i].CreatedAt.Before(resp.ActiveAlerts[j].CreatedAt)
	})
	return resp, nil
}

// verifyAll verifies every record concurrently under one CheckTimeout budget and merges
// the answers into statuses.
func (s *Service) verifyAll(ctx context.Context, records []models.ComplianceRecord, statuses []DomainStatus) {
	if s.verifier == nil {
		for i := range statuses {
			statuses[i].Unverified = true
			statuses[i].VerificationError = "no verifier configured"
		}
		return
	}

	vctx, cancel := context.WithTimeout(ctx, s.config.CheckTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for i := range records {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.verifyOne(vctx, records[i], &statuses[i])
		}(i)
	}
	wg.Wait()
}

func (s *Service) verifyOne(ctx context.Context, rec models.ComplianceRecord, st *DomainStatus) {
	agency, ok := models.AgencyFor(rec.Domain)
	if !ok {
		st.Unverified = true
		st.VerificationError = "no agency for domain"
		return
	}
	st.Agency = agency

	if s.verifier.HealthStatus(agency) == models.HealthDown {
		st.Unverified = true
		st.VerificationError = fmt.Sprintf("%s is down", agency)
		return
	}

	res, err := s.verifier.Verify(ctx, models.EntityRef{
		EntityID:        rec.EntityID,
		Domain:          rec.Domain,
		ReferenceNumber: rec.ReferenceNumber,
	})
	if err != nil {
		st.Unverified = true
		st.VerificationError = err.Error()
		s.logger.Debug("verification failed", map[string]interface{}{
			"entityId": rec.EntityID,
			"domain":   rec.Domain,
			"error":    err.Error(),
		})
		return
	}
	mergeVerification(st, res)
}

// mergeVerification lets the agency confirm or worsen the local status, never improve it.
func mergeVerification(st *DomainStatus, res *models.VerificationResult) {
	st.Verified = true
	st.AgencyExpiryDate = res.ExpiryDate
	if !res.Valid {
		reported := res.Status
		if reported == "" || reported == models.StatusCompliant {
			reported = models.StatusExpired
		}
		st.Status = models.Worse(st.Status, reported)
		return
	}
	if res.Status != "" {
		st.Status = models.Worse(st.Status, res.Status)
	}
}

func (s *Service) persistStatus(ctx context.Context, rec models.ComplianceRecord, status models.ComplianceStatus) {
	updated := rec.Clone()
	updated.Status = status
	if _, err := s.records.Update(ctx, updated); err != nil && !errors.IsConflict(err) {
		s.logger.Warn("failed to persist refreshed status", map[string]interface{}{
			"entityId": rec.EntityID,
			"domain":   rec.Domain,
			"error":    err.Error(),
		})
	}
}

// SyncAll verifies refs on a bounded pool. Once ctx is done no new verification starts;
// the remaining refs are reported as skipped. Results are in input order.
func (s *Service) SyncAll(ctx context.Context, refs []models.EntityRef) []SyncResult {
	results := make([]SyncResult, len(refs))
	for i, ref := range refs {
		results[i] = SyncResult{EntityID: ref.EntityID, Domain: ref.Domain}
	}
	if s.verifier == nil {
		for i := range results {
			results[i].Skipped = true
			results[i].Error = "no verifier configured"
		}
		return results
	}

	g := new(errgroup.Group)
	g.SetLimit(s.config.SyncConcurrency)
	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(refs); j++ {
				results[j].Skipped = true
				results[j].Error = err.Error()
			}
			break
		}
		g.Go(func() error {
			res, err := s.verifier.Verify(ctx, ref)
			if err != nil {
				results[i].Error = err.Error()
				results[i].ErrorCode = string(errors.CodeOf(err))
				return nil
			}
			results[i].Verified = true
			results[i].Valid = res.Valid
			results[i].Status = res.Status
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.Verified {
			failed++
		}
	}
	s.logger.Info("bulk verification finished", map[string]interface{}{
		"items":  len(refs),
		"failed": failed,
	})
	return results
}

// Onboard creates a record with its status evaluated at the current time.
func (s *Service) Onboard(ctx context.Context, rec models.ComplianceRecord) (*models.ComplianceRecord, error) {
	if rec.EntityID == "" {
		return nil, errors.NewValidationError("entityId", "is required")
	}
	if !rec.Domain.IsCompliance() {
		return nil, errors.NewValidationError("domain", fmt.Sprintf("unknown domain %q", rec.Domain))
	}
	if rec.ExpiryDate.IsZero() {
		return nil, errors.NewValidationError("expiryDate", "is required")
	}
	if rec.EntityType != models.EntityVehicle && rec.EntityType != models.EntityDriver {
		return nil, errors.NewValidationError("entityType", fmt.Sprintf("unknown entity type %q", rec.EntityType))
	}
	rec.LastFiredEscalationLevel = nil
	rec.Status = s.evaluator.Evaluate(rec, s.now())
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, err
	}
	return s.records.Get(ctx, rec.EntityID, rec.Domain)
}

// Renew moves the expiry forward, starts a new escalation cycle and resolves the
// domain's active alerts.
func (s *Service) Renew(ctx context.Context, entityID string, domain models.Domain, expiry time.Time, referenceNumber string) (*models.ComplianceRecord, error) {
	now := s.now()
	renewed, err := s.mutate(ctx, entityID, domain, func(rec *models.ComplianceRecord) error {
		if !expiry.After(rec.ExpiryDate) {
			return errors.NewValidationError("expiryDate", "must be after the current expiry date")
		}
		rec.IssuedDate = now.UTC()
		rec.ExpiryDate = expiry
		if referenceNumber != "" {
			rec.ReferenceNumber = referenceNumber
		}
		rec.LastFiredEscalationLevel = nil
		rec.Status = s.evaluator.Evaluate(*rec, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	resolved, err := s.alerts.Resolve(ctx, entityID, domain, now.UTC())
	if err != nil {
		s.logger.Warn("failed to resolve alerts after renewal", map[string]interface{}{
			"entityId": entityID,
			"domain":   domain,
			"error":    err.Error(),
		})
	}
	s.logger.Info("compliance renewed", map[string]interface{}{
		"entityId":       entityID,
		"domain":         domain,
		"expiryDate":     expiry,
		"resolvedAlerts": resolved,
	})
	return renewed, nil
}

// Suspend marks the record suspended. Suspending a suspended record is a no-op.
func (s *Service) Suspend(ctx context.Context, entityID string, domain models.Domain, reason string) (*models.ComplianceRecord, error) {
	if reason == "" {
		return nil, errors.NewValidationError("reason", "is required")
	}
	current, err := s.records.Get(ctx, entityID, domain)
	if err != nil {
		return nil, err
	}
	if current.Suspended {
		return current, nil
	}
	return s.mutate(ctx, entityID, domain, func(rec *models.ComplianceRecord) error {
		rec.Suspended = true
		rec.SuspensionReason = reason
		rec.Status = models.StatusSuspended
		return nil
	})
}

// Reinstate lifts a suspension and re-evaluates the status from the dates.
func (s *Service) Reinstate(ctx context.Context, entityID string, domain models.Domain) (*models.ComplianceRecord, error) {
	now := s.now()
	return s.mutate(ctx, entityID, domain, func(rec *models.ComplianceRecord) error {
		if !rec.Suspended {
			return errors.NewStateTransitionError("compliance record", string(rec.Status), "reinstated")
		}
		rec.Suspended = false
		rec.SuspensionReason = ""
		rec.Status = s.evaluator.Evaluate(*rec, now)
		return nil
	})
}

// mutate applies fn to a fresh copy of the record and writes it back, re-reading on a
// version conflict up to UpdateRetries times.
func (s *Service) mutate(ctx context.Context, entityID string, domain models.Domain, fn func(*models.ComplianceRecord) error) (*models.ComplianceRecord, error) {
	var lastErr error
	for attempt := 0; attempt < s.config.UpdateRetries; attempt++ {
		current, err := s.records.Get(ctx, entityID, domain)
		if err != nil {
			return nil, err
		}
		next := current.Clone()
		if err := fn(&next); err != nil {
			return nil, err
		}
		updated, err := s.records.Update(ctx, next)
		if err == nil {
			return updated, nil
		}
		if !errors.IsConflict(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
