package repository

// Schema is applied by PostgresClient.Migrate at startup. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS compliance_records (
		entity_id         TEXT        NOT NULL,
		domain            TEXT        NOT NULL,
		entity_type       TEXT        NOT NULL DEFAULT 'vehicle',
		reference_number  TEXT        NOT NULL DEFAULT '',
		issued_date       TIMESTAMPTZ,
		expiry_date       TIMESTAMPTZ NOT NULL,
		status            TEXT        NOT NULL DEFAULT 'compliant',
		last_fired_level  INTEGER,
		suspended         BOOLEAN     NOT NULL DEFAULT FALSE,
		suspension_reason TEXT        NOT NULL DEFAULT '',
		region            TEXT        NOT NULL DEFAULT '',
		ownership_type    TEXT        NOT NULL DEFAULT '',
		service_type      TEXT        NOT NULL DEFAULT '',
		version           BIGINT      NOT NULL DEFAULT 1,
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (entity_id, domain)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_compliance_records_domain ON compliance_records (domain)`,
	`CREATE TABLE IF NOT EXISTS monitoring_rules (
		id                TEXT PRIMARY KEY,
		name              TEXT        NOT NULL DEFAULT '',
		domain            TEXT        NOT NULL,
		trigger_condition TEXT        NOT NULL,
		check_frequency   TEXT        NOT NULL,
		escalation_levels JSONB       NOT NULL,
		applicability     JSONB       NOT NULL DEFAULT '{}',
		enabled           BOOLEAN     NOT NULL DEFAULT TRUE,
		next_run_at       TIMESTAMPTZ NOT NULL,
		last_run_at       TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_monitoring_rules_due ON monitoring_rules (next_run_at) WHERE enabled`,
	`CREATE TABLE IF NOT EXISTS violations (
		id              TEXT PRIMARY KEY,
		entity_id       TEXT             NOT NULL,
		domain          TEXT             NOT NULL,
		violation_type  TEXT             NOT NULL,
		fine_amount     DOUBLE PRECISION NOT NULL DEFAULT 0,
		penalty_points  INTEGER          NOT NULL DEFAULT 0,
		status          TEXT             NOT NULL,
		violation_date  TIMESTAMPTZ      NOT NULL,
		due_date        TIMESTAMPTZ      NOT NULL,
		contest_reason  TEXT             NOT NULL DEFAULT '',
		review_decision TEXT             NOT NULL DEFAULT '',
		history         JSONB            NOT NULL DEFAULT '[]',
		coding          JSONB,
		dedup_key       TEXT UNIQUE,
		created_at      TIMESTAMPTZ      NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_violations_entity_date ON violations (entity_id, domain, violation_date)`,
	`CREATE INDEX IF NOT EXISTS idx_violations_pending_due ON violations (due_date) WHERE status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS coding_rules (
		id         TEXT PRIMARY KEY,
		region_id  TEXT  NOT NULL,
		definition JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_coding_rules_region ON coding_rules (region_id)`,
	`CREATE TABLE IF NOT EXISTS exemption_requests (
		id             TEXT PRIMARY KEY,
		vehicle_id     TEXT        NOT NULL DEFAULT '',
		driver_id      TEXT        NOT NULL DEFAULT '',
		exemption_type TEXT        NOT NULL,
		period_start   TIMESTAMPTZ NOT NULL,
		period_end     TIMESTAMPTZ NOT NULL,
		status         TEXT        NOT NULL,
		usage_count    INTEGER     NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_exemptions_vehicle ON exemption_requests (vehicle_id, status)`,
	`CREATE TABLE IF NOT EXISTS recipients (
		entity_id  TEXT NOT NULL,
		role       TEXT NOT NULL,
		contact_id TEXT NOT NULL,
		name       TEXT NOT NULL DEFAULT '',
		email      TEXT NOT NULL DEFAULT '',
		phone      TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (entity_id, role, contact_id)
	)`,
	`CREATE TABLE IF NOT EXISTS in_app_notifications (
		id           TEXT PRIMARY KEY,
		recipient_id TEXT        NOT NULL,
		entity_id    TEXT        NOT NULL,
		type         TEXT        NOT NULL,
		subject      TEXT        NOT NULL DEFAULT '',
		body         TEXT        NOT NULL,
		read_at      TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS vehicles (
		id              TEXT PRIMARY KEY,
		status          TEXT NOT NULL DEFAULT 'active',
		disabled_reason TEXT NOT NULL DEFAULT '',
		disabled_at     TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS drivers (
		id                TEXT PRIMARY KEY,
		status            TEXT NOT NULL DEFAULT 'active',
		suspension_reason TEXT NOT NULL DEFAULT '',
		suspended_at      TIMESTAMPTZ
	)`,
}
