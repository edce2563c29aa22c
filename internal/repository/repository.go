// Package repository holds the persistence boundaries of the compliance engine
// and their memory, Postgres, Redis and Elasticsearch implementations.
package repository

import (
	"context"
	"time"

	"fleet-compliance/internal/models"
)

// ComplianceRecordStore persists compliance records. Update is optimistic:
// it fails with a ConflictError when the stored version differs from rec.Version,
// and returns the stored record with its new version on success.
type ComplianceRecordStore interface {
	Get(ctx context.Context, entityID string, domain models.Domain) (*models.ComplianceRecord, error)
	ListByDomain(ctx context.Context, domain models.Domain) ([]models.ComplianceRecord, error)
	ListByEntity(ctx context.Context, entityID string) ([]models.ComplianceRecord, error)
	Create(ctx context.Context, rec models.ComplianceRecord) error
	Update(ctx context.Context, rec models.ComplianceRecord) (*models.ComplianceRecord, error)
}

// RuleStore persists monitoring rules and their schedule.
type RuleStore interface {
	Get(ctx context.Context, id string) (*models.MonitoringRule, error)
	List(ctx context.Context) ([]models.MonitoringRule, error)
	ListDue(ctx context.Context, now time.Time) ([]models.MonitoringRule, error)
	Save(ctx context.Context, rule models.MonitoringRule) error
	Delete(ctx context.Context, id string) error
	MarkRun(ctx context.Context, id string, ranAt, nextRunAt time.Time) error
}

// ViolationStore persists violations. Insert fails with a ConflictError when the
// id or a non-empty dedup key already exists.
type ViolationStore interface {
	Insert(ctx context.Context, v models.Violation) error
	Get(ctx context.Context, id string) (*models.Violation, error)
	FindByDedupKey(ctx context.Context, key string) (*models.Violation, error)
	// Update writes v only while the stored status is still from; otherwise it fails with a ConflictError.
	Update(ctx context.Context, v models.Violation, from models.ViolationStatus) error
	ListByEntity(ctx context.Context, entityID string) ([]models.Violation, error)
	// CountInWindow counts violations of entityID in domain with from <= violationDate <= to.
	// Dismissed violations are not counted.
	CountInWindow(ctx context.Context, entityID string, domain models.Domain, from, to time.Time) (int, error)
	ListPastDue(ctx context.Context, now time.Time) ([]models.Violation, error)
}

type CodingRuleStore interface {
	ListByRegion(ctx context.Context, regionID string) ([]models.CodingRule, error)
	Save(ctx context.Context, rule models.CodingRule) error
}

type ExemptionStore interface {
	// ListCovering returns approved requests for the vehicle or driver whose period contains now.
	ListCovering(ctx context.Context, vehicleID, driverID string, now time.Time) ([]models.ExemptionRequest, error)
	IncrementUsage(ctx context.Context, id string) error
	Save(ctx context.Context, e models.ExemptionRequest) error
}

// AlertStore persists alerts written on escalation.
type AlertStore interface {
	Create(ctx context.Context, alert models.Alert) error
	ListActive(ctx context.Context, entityID string) ([]models.Alert, error)
	// Resolve marks every active alert of the entity in domain resolved and returns how many changed.
	Resolve(ctx context.Context, entityID string, domain models.Domain, at time.Time) (int, error)
}

// FleetController is the fleet control plane. Both operations are idempotent:
// repeating a disable or suspend is a no-op, not an error.
type FleetController interface {
	DisableVehicle(ctx context.Context, vehicleID, reason string) error
	SuspendDriver(ctx context.Context, driverID, reason string) error
}

// ReportRequest asks the excluded rendering service for a compliance report.
type ReportRequest struct {
	ID          string        `json:"id"`
	EntityID    string        `json:"entityId"`
	Domain      models.Domain `json:"domain"`
	RuleID      string        `json:"ruleId"`
	Level       int           `json:"level"`
	ReportType  string        `json:"reportType"`
	Format      string        `json:"format"`
	RequestedAt time.Time     `json:"requestedAt"`
}

type ReportQueue interface {
	Enqueue(ctx context.Context, req ReportRequest) error
}

// RuleLock is a cross-process lease keyed by rule id.
type RuleLock interface {
	// Acquire returns ok=false without error when another holder owns the lease.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// VerificationCache stores agency verification results for a TTL.
type VerificationCache interface {
	Get(ctx context.Context, ref models.EntityRef) (*models.VerificationResult, bool)
	Set(ctx context.Context, ref models.EntityRef, result models.VerificationResult, ttl time.Duration) error
}
