package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/models"
)

const ruleColumns = `id, name, domain, trigger_condition, check_frequency, escalation_levels, applicability,
	enabled, next_run_at, last_run_at`

type PostgresRuleStore struct {
	db *sql.DB
}

func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

func scanRule(row rowScanner) (*models.MonitoringRule, error) {
	var (
		r            models.MonitoringRule
		levels, appl []byte
		lastRun      sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Domain, &r.TriggerCondition, &r.CheckFrequency, &levels, &appl,
		&r.Enabled, &r.NextRunAt, &lastRun); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(levels, &r.EscalationLevels); err != nil {
		return nil, fmt.Errorf("rule %s escalation levels: %w", r.ID, err)
	}
	if len(appl) > 0 {
		if err := json.Unmarshal(appl, &r.Applicability); err != nil {
			return nil, fmt.Errorf("rule %s applicability: %w", r.ID, err)
		}
	}
	if lastRun.Valid {
		t := lastRun.Time
		r.LastRunAt = &t
	}
	r.SortLevels()
	return &r, nil
}

func (s *PostgresRuleStore) Get(ctx context.Context, id string) (*models.MonitoringRule, error) {
	rule, err := scanRule(s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM monitoring_rules WHERE id = $1`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("monitoring rule", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get monitoring rule: %w", err)
	}
	return rule, nil
}

func (s *PostgresRuleStore) List(ctx context.Context) ([]models.MonitoringRule, error) {
	return s.list(ctx, `SELECT `+ruleColumns+` FROM monitoring_rules ORDER BY id`)
}

func (s *PostgresRuleStore) ListDue(ctx context.Context, now time.Time) ([]models.MonitoringRule, error) {
	return s.list(ctx, `SELECT `+ruleColumns+` FROM monitoring_rules WHERE enabled AND next_run_at <= $1 ORDER BY id`, now)
}

func (s *PostgresRuleStore) list(ctx context.Context, query string, args ...interface{}) ([]models.MonitoringRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list monitoring rules: %w", err)
	}
	defer rows.Close()

	var out []models.MonitoringRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

func (s *PostgresRuleStore) Save(ctx context.Context, rule models.MonitoringRule) error {
	levels, err := json.Marshal(rule.EscalationLevels)
	if err != nil {
		return fmt.Errorf("marshal escalation levels: %w", err)
	}
	appl, err := json.Marshal(rule.Applicability)
	if err != nil {
		return fmt.Errorf("marshal applicability: %w", err)
	}
	var lastRun sql.NullTime
	if rule.LastRunAt != nil {
		lastRun = sql.NullTime{Time: *rule.LastRunAt, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO monitoring_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, domain = EXCLUDED.domain, trigger_condition = EXCLUDED.trigger_condition,
			check_frequency = EXCLUDED.check_frequency, escalation_levels = EXCLUDED.escalation_levels,
			applicability = EXCLUDED.applicability, enabled = EXCLUDED.enabled, next_run_at = EXCLUDED.next_run_at`,
		rule.ID, rule.Name, string(rule.Domain), string(rule.TriggerCondition), string(rule.CheckFrequency),
		levels, appl, rule.Enabled, rule.NextRunAt, lastRun)
	if err != nil {
		return fmt.Errorf("save monitoring rule: %w", err)
	}
	return nil
}

func (s *PostgresRuleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM monitoring_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete monitoring rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("monitoring rule", id)
	}
	return nil
}

func (s *PostgresRuleStore) MarkRun(ctx context.Context, id string, ranAt, nextRunAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE monitoring_rules SET last_run_at = $2, next_run_at = $3 WHERE id = $1`, id, ranAt, nextRunAt)
	if err != nil {
		return fmt.Errorf("mark rule run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("monitoring rule", id)
	}
	return nil
}
