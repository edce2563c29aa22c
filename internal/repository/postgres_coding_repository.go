package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/models"
)

// PostgresCodingRuleStore keeps each coding rule as a JSONB document keyed by region.
type PostgresCodingRuleStore struct {
	db *sql.DB
}

func NewPostgresCodingRuleStore(db *sql.DB) *PostgresCodingRuleStore {
	return &PostgresCodingRuleStore{db: db}
}

func (s *PostgresCodingRuleStore) ListByRegion(ctx context.Context, regionID string) ([]models.CodingRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT definition FROM coding_rules WHERE region_id = $1 ORDER BY id`, regionID)
	if err != nil {
		return nil, fmt.Errorf("list coding rules: %w", err)
	}
	defer rows.Close()

	var out []models.CodingRule
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan coding rule: %w", err)
		}
		var rule models.CodingRule
		if err := json.Unmarshal(raw, &rule); err != nil {
			return nil, fmt.Errorf("decode coding rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (s *PostgresCodingRuleStore) Save(ctx context.Context, rule models.CodingRule) error {
	raw, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("marshal coding rule: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO coding_rules (id, region_id, definition) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET region_id = EXCLUDED.region_id, definition = EXCLUDED.definition`,
		rule.ID, rule.RegionID, raw)
	if err != nil {
		return fmt.Errorf("save coding rule: %w", err)
	}
	return nil
}

type PostgresExemptionStore struct {
	db *sql.DB
}

func NewPostgresExemptionStore(db *sql.DB) *PostgresExemptionStore {
	return &PostgresExemptionStore{db: db}
}

func (s *PostgresExemptionStore) ListCovering(ctx context.Context, vehicleID, driverID string, now time.Time) ([]models.ExemptionRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vehicle_id, driver_id, exemption_type, period_start, period_end, status, usage_count
		FROM exemption_requests
		WHERE status = 'approved' AND period_start <= $3 AND period_end >= $3
		  AND (vehicle_id = $1 OR ($2 <> '' AND driver_id = $2))
		ORDER BY id`,
		vehicleID, driverID, now)
	if err != nil {
		return nil, fmt.Errorf("list exemptions: %w", err)
	}
	defer rows.Close()

	var out []models.ExemptionRequest
	for rows.Next() {
		var e models.ExemptionRequest
		if err := rows.Scan(&e.ID, &e.VehicleID, &e.DriverID, &e.ExemptionType, &e.PeriodStart, &e.PeriodEnd,
			&e.Status, &e.UsageCount); err != nil {
			return nil, fmt.Errorf("scan exemption: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresExemptionStore) IncrementUsage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE exemption_requests SET usage_count = usage_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment exemption usage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("exemption request", id)
	}
	return nil
}

func (s *PostgresExemptionStore) Save(ctx context.Context, e models.ExemptionRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exemption_requests (id, vehicle_id, driver_id, exemption_type, period_start, period_end, status, usage_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, period_start = EXCLUDED.period_start,
			period_end = EXCLUDED.period_end`,
		e.ID, e.VehicleID, e.DriverID, e.ExemptionType, e.PeriodStart, e.PeriodEnd, string(e.Status), e.UsageCount)
	if err != nil {
		return fmt.Errorf("save exemption: %w", err)
	}
	return nil
}
