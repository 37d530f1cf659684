package repository

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                     TEXT PRIMARY KEY,
		username               TEXT NOT NULL,
		email                  TEXT NOT NULL DEFAULT '',
		app_language           TEXT NOT NULL DEFAULT 'en',
		e_notifications        BOOLEAN NOT NULL DEFAULT TRUE,
		e_validated            BOOLEAN NOT NULL DEFAULT FALSE,
		pending_requests_count INTEGER NOT NULL DEFAULT 0 CHECK (pending_requests_count >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS units (
		id                     TEXT NOT NULL,
		version                TEXT NOT NULL DEFAULT '',
		title                  TEXT NOT NULL,
		description            TEXT NOT NULL DEFAULT '',
		address                TEXT NOT NULL DEFAULT '',
		unit_type              TEXT NOT NULL DEFAULT '',
		price                  BIGINT NOT NULL DEFAULT 0,
		image                  TEXT NOT NULL DEFAULT '',
		attachments            TEXT[] NOT NULL DEFAULT '{}',
		booked                 BOOLEAN NOT NULL DEFAULT FALSE,
		booked_by              TEXT,
		booked_until           DATE,
		pending_requests_count INTEGER NOT NULL DEFAULT 0 CHECK (pending_requests_count >= 0),
		created_by             TEXT NOT NULL,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		edited_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS requests (
		id         TEXT NOT NULL,
		version    TEXT NOT NULL DEFAULT '',
		parent_id  TEXT NOT NULL,
		message    TEXT NOT NULL DEFAULT '',
		check_in   DATE NOT NULL,
		check_out  DATE NOT NULL,
		status     TEXT NOT NULL DEFAULT 'WAIT' CHECK (status IN ('WAIT', 'APPROVED', 'DENIED')),
		created_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		edited_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (id, version),
		CHECK (check_out > check_in)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_parent_status ON requests (parent_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_created_by_status ON requests (created_by, status)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_active ON requests (status, check_in, check_out)`,
	`CREATE INDEX IF NOT EXISTS idx_units_created_by ON units (created_by)`,
	`CREATE INDEX IF NOT EXISTS idx_units_booked_until ON units (booked_until) WHERE booked_until IS NOT NULL`,
}

// Migrate creates tables and indexes that do not exist yet
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
