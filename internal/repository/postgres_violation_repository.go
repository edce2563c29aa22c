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

const violationColumns = `id, entity_id, domain, violation_type, fine_amount, penalty_points, status, violation_date,
	due_date, contest_reason, review_decision, history, coding, created_at`

type PostgresViolationStore struct {
	db *sql.DB
}

func NewPostgresViolationStore(db *sql.DB) *PostgresViolationStore {
	return &PostgresViolationStore{db: db}
}

func scanViolation(row rowScanner) (*models.Violation, error) {
	var (
		v       models.Violation
		history []byte
		coding  []byte
	)
	if err := row.Scan(&v.ID, &v.EntityID, &v.Domain, &v.ViolationType, &v.FineAmount, &v.PenaltyPoints, &v.Status,
		&v.ViolationDate, &v.DueDate, &v.ContestReason, &v.ReviewDecision, &history, &coding, &v.CreatedAt); err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &v.History); err != nil {
			return nil, fmt.Errorf("violation %s history: %w", v.ID, err)
		}
	}
	if len(coding) > 0 {
		v.Coding = &models.CodingDetails{}
		if err := json.Unmarshal(coding, v.Coding); err != nil {
			return nil, fmt.Errorf("violation %s coding: %w", v.ID, err)
		}
	}
	return &v, nil
}

func (s *PostgresViolationStore) Insert(ctx context.Context, v models.Violation) error {
	history, err := json.Marshal(v.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	var coding []byte
	if v.Coding != nil {
		if coding, err = json.Marshal(v.Coding); err != nil {
			return fmt.Errorf("marshal coding details: %w", err)
		}
	}
	var dedup sql.NullString
	if key := v.DedupKey(); key != "" {
		dedup = sql.NullString{String: key, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO violations (`+violationColumns+`, dedup_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT DO NOTHING`,
		v.ID, v.EntityID, string(v.Domain), v.ViolationType, v.FineAmount, v.PenaltyPoints, string(v.Status),
		v.ViolationDate, v.DueDate, v.ContestReason, string(v.ReviewDecision), history, coding, v.CreatedAt, dedup)
	if err != nil {
		return fmt.Errorf("insert violation: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	if dedup.Valid {
		if existing, err := s.FindByDedupKey(ctx, dedup.String); err == nil {
			return errors.NewConflictError("violation", "duplicate of "+existing.ID).WithMetadata("existingId", existing.ID)
		}
	}
	return errors.NewConflictError("violation", "id "+v.ID+" already exists")
}

func (s *PostgresViolationStore) Get(ctx context.Context, id string) (*models.Violation, error) {
	return s.getOne(ctx, `SELECT `+violationColumns+` FROM violations WHERE id = $1`, id)
}

func (s *PostgresViolationStore) FindByDedupKey(ctx context.Context, key string) (*models.Violation, error) {
	return s.getOne(ctx, `SELECT `+violationColumns+` FROM violations WHERE dedup_key = $1`, key)
}

func (s *PostgresViolationStore) getOne(ctx context.Context, query, arg string) (*models.Violation, error) {
	v, err := scanViolation(s.db.QueryRowContext(ctx, query, arg))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("violation", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("get violation: %w", err)
	}
	return v, nil
}

func (s *PostgresViolationStore) Update(ctx context.Context, v models.Violation, from models.ViolationStatus) error {
	history, err := json.Marshal(v.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE violations SET status = $2, fine_amount = $3, contest_reason = $4, review_decision = $5,
			due_date = $6, history = $7
		WHERE id = $1 AND status = $8`,
		v.ID, string(v.Status), v.FineAmount, v.ContestReason, string(v.ReviewDecision), v.DueDate, history, string(from))
	if err != nil {
		return fmt.Errorf("update violation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		current, err := s.Get(ctx, v.ID)
		if err != nil {
			return err
		}
		return errors.NewConflictError("violation", "status changed from "+string(from)+" to "+string(current.Status)).
			WithMetadata("currentStatus", string(current.Status))
	}
	return nil
}

func (s *PostgresViolationStore) ListByEntity(ctx context.Context, entityID string) ([]models.Violation, error) {
	return s.list(ctx, `SELECT `+violationColumns+` FROM violations WHERE entity_id = $1 ORDER BY violation_date`, entityID)
}

func (s *PostgresViolationStore) CountInWindow(ctx context.Context, entityID string, domain models.Domain, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM violations
		WHERE entity_id = $1 AND domain = $2 AND violation_date BETWEEN $3 AND $4 AND status <> 'dismissed'`,
		entityID, string(domain), from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count violations: %w", err)
	}
	return n, nil
}

func (s *PostgresViolationStore) ListPastDue(ctx context.Context, now time.Time) ([]models.Violation, error) {
	return s.list(ctx, `SELECT `+violationColumns+` FROM violations WHERE status = 'pending' AND due_date < $1 ORDER BY due_date`, now)
}

func (s *PostgresViolationStore) list(ctx context.Context, query string, args ...interface{}) ([]models.Violation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	defer rows.Close()

	var out []models.Violation
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}
