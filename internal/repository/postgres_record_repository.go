package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/models"
)

const recordColumns = `entity_id, domain, entity_type, reference_number, issued_date, expiry_date, status,
	last_fired_level, suspended, suspension_reason, region, ownership_type, service_type, version, updated_at`

type PostgresRecordStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresRecordStore(db *sql.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.ComplianceRecord, error) {
	var (
		r         models.ComplianceRecord
		issued    sql.NullTime
		lastFired sql.NullInt64
	)
	err := row.Scan(&r.EntityID, &r.Domain, &r.EntityType, &r.ReferenceNumber, &issued, &r.ExpiryDate, &r.Status,
		&lastFired, &r.Suspended, &r.SuspensionReason, &r.Region, &r.OwnershipType, &r.ServiceType, &r.Version, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if issued.Valid {
		r.IssuedDate = issued.Time
	}
	if lastFired.Valid {
		r.LastFiredEscalationLevel = models.IntPtr(int(lastFired.Int64))
	}
	return &r, nil
}

func nullLevel(l *int) sql.NullInt64 {
	if l == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*l), Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func (s *PostgresRecordStore) Get(ctx context.Context, entityID string, domain models.Domain) (*models.ComplianceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM compliance_records WHERE entity_id = $1 AND domain = $2`,
		entityID, string(domain))
	rec, err := scanRecord(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("compliance record", fmt.Sprintf("%s/%s", entityID, domain))
	}
	if err != nil {
		return nil, fmt.Errorf("get compliance record: %w", err)
	}
	return rec, nil
}

func (s *PostgresRecordStore) ListByDomain(ctx context.Context, domain models.Domain) ([]models.ComplianceRecord, error) {
	return s.list(ctx, `SELECT `+recordColumns+` FROM compliance_records WHERE domain = $1 ORDER BY entity_id`, string(domain))
}

func (s *PostgresRecordStore) ListByEntity(ctx context.Context, entityID string) ([]models.ComplianceRecord, error) {
	return s.list(ctx, `SELECT `+recordColumns+` FROM compliance_records WHERE entity_id = $1 ORDER BY domain`, entityID)
}

func (s *PostgresRecordStore) list(ctx context.Context, query string, arg interface{}) ([]models.ComplianceRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list compliance records: %w", err)
	}
	defer rows.Close()

	var out []models.ComplianceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan compliance record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *PostgresRecordStore) Create(ctx context.Context, rec models.ComplianceRecord) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO compliance_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1, $14)
		ON CONFLICT (entity_id, domain) DO NOTHING`,
		rec.EntityID, string(rec.Domain), string(rec.EntityType), rec.ReferenceNumber, nullTime(rec.IssuedDate),
		rec.ExpiryDate, string(rec.Status), nullLevel(rec.LastFiredEscalationLevel), rec.Suspended,
		rec.SuspensionReason, rec.Region, rec.OwnershipType, rec.ServiceType, s.now().UTC())
	if err != nil {
		return fmt.Errorf("insert compliance record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewConflictError("compliance record", fmt.Sprintf("%s/%s already exists", rec.EntityID, rec.Domain))
	}
	return nil
}

// Update writes rec when the stored version still equals rec.Version.
func (s *PostgresRecordStore) Update(ctx context.Context, rec models.ComplianceRecord) (*models.ComplianceRecord, error) {
	updatedAt := s.now().UTC()
	var version int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE compliance_records SET
			reference_number = $3, issued_date = $4, expiry_date = $5, status = $6, last_fired_level = $7,
			suspended = $8, suspension_reason = $9, region = $10, ownership_type = $11, service_type = $12,
			version = version + 1, updated_at = $13
		WHERE entity_id = $1 AND domain = $2 AND version = $14
		RETURNING version`,
		rec.EntityID, string(rec.Domain), rec.ReferenceNumber, nullTime(rec.IssuedDate), rec.ExpiryDate,
		string(rec.Status), nullLevel(rec.LastFiredEscalationLevel), rec.Suspended, rec.SuspensionReason,
		rec.Region, rec.OwnershipType, rec.ServiceType, updatedAt, rec.Version,
	).Scan(&version)

	if stderrors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.Get(ctx, rec.EntityID, rec.Domain); getErr != nil {
			return nil, getErr
		}
		return nil, staleVersion(rec)
	}
	if err != nil {
		return nil, fmt.Errorf("update compliance record: %w", err)
	}

	out := rec.Clone()
	out.Version = version
	out.UpdatedAt = updatedAt
	return &out, nil
}
