// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package backup

// Timestamps are stored as TIMESTAMP in UTC. restores.backup_id is not a
// declared foreign key: DuckDB rejects deleting a referenced row, and the
// store removes dependent restores itself in DeleteBackup.
//
// backups has no secondary indexes: DuckDB turns updates of indexed columns
// into delete+insert, and the status/expiry scans are served by zonemaps.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS backups (
		backup_id          VARCHAR PRIMARY KEY,
		backup_type        VARCHAR NOT NULL,
		method             VARCHAR NOT NULL,
		file_path          VARCHAR NOT NULL,
		file_size          BIGINT NOT NULL DEFAULT 0,
		compressed         BOOLEAN NOT NULL DEFAULT FALSE,
		encrypted          BOOLEAN NOT NULL DEFAULT FALSE,
		status             VARCHAR NOT NULL,
		error_message      VARCHAR,
		duration_seconds   DOUBLE NOT NULL DEFAULT 0,
		created_at         TIMESTAMP NOT NULL,
		completed_at       TIMESTAMP,
		expires_at         TIMESTAMP,
		retention_category VARCHAR,
		checksum           VARCHAR,
		created_by_user    VARCHAR NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS restores (
		restore_id       VARCHAR PRIMARY KEY,
		backup_id        VARCHAR NOT NULL,
		restore_type     VARCHAR NOT NULL,
		target_database  VARCHAR NOT NULL,
		status           VARCHAR NOT NULL,
		error_message    VARCHAR,
		duration_seconds DOUBLE NOT NULL DEFAULT 0,
		created_at       TIMESTAMP NOT NULL,
		completed_at     TIMESTAMP,
		created_by_user  VARCHAR NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_restores_backup_id ON restores (backup_id)`,
	`CREATE TABLE IF NOT EXISTS scheduled_jobs (
		job_name         VARCHAR PRIMARY KEY,
		backup_type      VARCHAR NOT NULL,
		schedule_pattern VARCHAR NOT NULL,
		enabled          BOOLEAN NOT NULL DEFAULT TRUE,
		last_run         TIMESTAMP,
		next_run         TIMESTAMP
	)`,
}

const backupColumns = `backup_id, backup_type, method, file_path, file_size, compressed, encrypted,
	status, error_message, duration_seconds, created_at, completed_at, expires_at,
	retention_category, checksum, created_by_user`

const restoreColumns = `restore_id, backup_id, restore_type, target_database, status, error_message,
	duration_seconds, created_at, completed_at, created_by_user`

const jobColumns = `job_name, backup_type, schedule_pattern, enabled, last_run, next_run`
