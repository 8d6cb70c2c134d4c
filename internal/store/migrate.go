package store

import (
	"context"
	"fmt"
)

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS employees (
	emp_id                TEXT PRIMARY KEY,
	name                  TEXT NOT NULL,
	email                 TEXT NOT NULL,
	phone                 TEXT,
	password_hash         TEXT NOT NULL,
	branch                TEXT NOT NULL DEFAULT '',
	role                  TEXT NOT NULL,
	status                TEXT NOT NULL DEFAULT 'inactive',
	home_lat              DOUBLE PRECISION NOT NULL,
	home_lng              DOUBLE PRECISION NOT NULL,
	reference             vector(128),
	photo_url             TEXT NOT NULL DEFAULT '',
	enrollment            TEXT NOT NULL DEFAULT 'pending',
	total_checkins        INTEGER NOT NULL DEFAULT 0,
	total_checkouts       INTEGER NOT NULL DEFAULT 0,
	total_late_checkins   INTEGER NOT NULL DEFAULT 0,
	total_early_checkouts INTEGER NOT NULL DEFAULT 0,
	registered_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT employees_email_key UNIQUE (email),
	CONSTRAINT employees_phone_key UNIQUE (phone)
);

ALTER TABLE employees ALTER COLUMN phone DROP NOT NULL;
CREATE INDEX IF NOT EXISTS idx_employees_status ON employees(status);

CREATE TABLE IF NOT EXISTS attendance_records (
	id            UUID PRIMARY KEY,
	emp_id        TEXT NOT NULL REFERENCES employees(emp_id),
	type          TEXT NOT NULL CHECK (type IN ('checkin', 'checkout', 'leave')),
	occurred_at   TIMESTAMPTZ NOT NULL,
	work_date     DATE NOT NULL,
	status        TEXT NOT NULL,
	lat           DOUBLE PRECISION,
	lng           DOUBLE PRECISION,
	branch        TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT '',
	clock_source  TEXT NOT NULL DEFAULT '',
	face_distance DOUBLE PRECISION,
	snapshot_url  TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_attendance_emp_day_type ON attendance_records(emp_id, work_date, type);
CREATE INDEX IF NOT EXISTS idx_attendance_branch_date ON attendance_records(branch, work_date);

CREATE TABLE IF NOT EXISTS leave_applications (
	id            UUID PRIMARY KEY,
	emp_id        TEXT NOT NULL REFERENCES employees(emp_id),
	branch        TEXT NOT NULL DEFAULT '',
	leave_date    DATE NOT NULL,
	leave_type    TEXT NOT NULL,
	reason        TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'pending',
	applied_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	decided_at    TIMESTAMPTZ,
	decided_by    TEXT NOT NULL DEFAULT '',
	reject_reason TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_leave_emp_date ON leave_applications(emp_id, leave_date);
`

// Migrate creates the schema if it does not exist.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Client.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
