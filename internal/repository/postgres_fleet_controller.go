package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresFleetController flips vehicle and driver status rows. The status guard in the
// WHERE clause makes a repeated command a no-op.
type PostgresFleetController struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresFleetController(db *sql.DB) *PostgresFleetController {
	return &PostgresFleetController{db: db, now: time.Now}
}

func (f *PostgresFleetController) DisableVehicle(ctx context.Context, vehicleID, reason string) error {
	_, err := f.db.ExecContext(ctx, `
		INSERT INTO vehicles (id, status, disabled_reason, disabled_at) VALUES ($1, 'disabled', $2, $3)
		ON CONFLICT (id) DO UPDATE SET status = 'disabled', disabled_reason = EXCLUDED.disabled_reason,
			disabled_at = EXCLUDED.disabled_at
		WHERE vehicles.status <> 'disabled'`,
		vehicleID, reason, f.now().UTC())
	if err != nil {
		return fmt.Errorf("disable vehicle %s: %w", vehicleID, err)
	}
	return nil
}

func (f *PostgresFleetController) SuspendDriver(ctx context.Context, driverID, reason string) error {
	_, err := f.db.ExecContext(ctx, `
		INSERT INTO drivers (id, status, suspension_reason, suspended_at) VALUES ($1, 'suspended', $2, $3)
		ON CONFLICT (id) DO UPDATE SET status = 'suspended', suspension_reason = EXCLUDED.suspension_reason,
			suspended_at = EXCLUDED.suspended_at
		WHERE drivers.status <> 'suspended'`,
		driverID, reason, f.now().UTC())
	if err != nil {
		return fmt.Errorf("suspend driver %s: %w", driverID, err)
	}
	return nil
}
