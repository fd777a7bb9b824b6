// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

/*
store.go - Metadata Store

The engine's private DuckDB database with three relations: backups, restores
and scheduled_jobs. It is independent of the source database.

Single-writer discipline:
  - every write takes writeMu and runs in one short transaction
  - reads are plain queries and see committed snapshots
  - a row's terminal transition (running -> completed|failed) is guarded by
    "WHERE status = 'running'", so terminal rows are immutable

Deletion order is the caller's job: remove the artifact first, then the row,
so a crash in between leaves at worst an artifact without a row (which
Reconcile archives) and never a row pointing at a missing file.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" database/sql driver
)

// Store is the metadata store.
type Store struct {
	db      *sql.DB
	path    string
	writeMu sync.Mutex
}

// errNotRunning is wrapped when a terminal transition targets a row that is
// not running (already terminal, or absent).
var errNotRunning = errors.New("row is not running")

// OpenStore opens (creating if needed) the DuckDB file at path.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, filesystemError("create metadata directory", dir, err)
		}
	}

	connStr := path + "?access_mode=read_write&threads=2&autoinstall_known_extensions=false&autoload_known_extensions=false"
	db, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, metadataError("open metadata store", path, err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(context.Background()); err != nil {
		db.Close() //nolint:errcheck,gosec // already failing
		if isLockConflict(err) {
			return nil, metadataError("open metadata store", path, fmt.Errorf("%w: %v", ErrStoreLocked, err))
		}
		return nil, err
	}
	return s, nil
}

// isLockConflict reports DuckDB's refusal to open a file another process
// holds open for writing.
func isLockConflict(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Could not set lock") || strings.Contains(msg, "Conflicting lock")
}

func (s *Store) migrate(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return metadataError("migrate metadata store", s.path, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the DuckDB file location.
func (s *Store) Path() string {
	return s.path
}

// Ping checks the store is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn in a write transaction under the single-writer lock.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck,gosec // the original error is what matters
		return err
	}
	return tx.Commit()
}

// --- backups ---

// RegisterBackupStart inserts rec as a running row. Fails if the id exists.
func (s *Store) RegisterBackupStart(ctx context.Context, rec *BackupRecord) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM backups WHERE backup_id = ?)`, rec.BackupID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("backup %s already registered", rec.BackupID)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO backups (backup_id, backup_type, method, file_path, compressed, encrypted,
				status, created_at, created_by_user)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.BackupID, string(rec.BackupType), string(rec.Method), rec.FilePath,
			rec.Compressed, rec.Encrypted, string(StatusRunning), rec.CreatedAt.UTC(), rec.CreatedByUser)
		return err
	})
	if err != nil {
		return metadataError("register backup", rec.BackupID, err)
	}
	return nil
}

// CompleteBackup writes the terminal fields of a running row in one statement.
func (s *Store) CompleteBackup(ctx context.Context, id string, c BackupCompletion) error {
	if c.Status != StatusCompleted && c.Status != StatusFailed {
		return newError(KindValidation, "complete backup", fmt.Errorf("status %q is not terminal", c.Status))
	}

	var (
		errMsg    sql.NullString
		checksum  sql.NullString
		category  sql.NullString
		expiresAt sql.NullTime
	)
	if c.Status == StatusFailed {
		msg := c.ErrorMessage
		if msg == "" {
			msg = "backup failed"
		}
		errMsg = sql.NullString{String: msg, Valid: true}
	} else {
		checksum = sql.NullString{String: c.Checksum, Valid: true}
		category = sql.NullString{String: string(c.RetentionCategory), Valid: c.RetentionCategory != ""}
		if c.ExpiresAt != nil {
			expiresAt = sql.NullTime{Time: c.ExpiresAt.UTC(), Valid: true}
		}
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE backups SET
				status = ?,
				file_path = COALESCE(NULLIF(?, ''), file_path),
				file_size = ?,
				compressed = ?,
				error_message = ?,
				duration_seconds = ?,
				completed_at = ?,
				expires_at = ?,
				retention_category = ?,
				checksum = ?
			WHERE backup_id = ? AND status = ?`,
			string(c.Status), c.FilePath, c.FileSize, c.Compressed, errMsg,
			c.Duration.Seconds(), c.CompletedAt.UTC(), expiresAt, category, checksum,
			id, string(StatusRunning))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errNotRunning
		}
		return nil
	})
	if err != nil {
		return metadataError("complete backup", id, err)
	}
	return nil
}

// ListBackups returns up to limit rows, newest first. limit <= 0 means all;
// an empty status means any status.
func (s *Store) ListBackups(ctx context.Context, limit int, status Status) ([]*BackupRecord, error) {
	query := `SELECT ` + backupColumns + ` FROM backups`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, backup_id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	recs, err := s.queryBackups(ctx, query, args...)
	if err != nil {
		return nil, metadataError("list backups", "", err)
	}
	return recs, nil
}

// GetBackup returns the row for id, or a NotFound error.
func (s *Store) GetBackup(ctx context.Context, id string) (*BackupRecord, error) {
	recs, err := s.queryBackups(ctx, `SELECT `+backupColumns+` FROM backups WHERE backup_id = ?`, id)
	if err != nil {
		return nil, metadataError("get backup", id, err)
	}
	if len(recs) == 0 {
		return nil, notFound("get backup", id)
	}
	return recs[0], nil
}

// DeleteBackup removes the row and the restore rows that reference it.
// The caller removes the artifact first.
func (s *Store) DeleteBackup(ctx context.Context, id string) error {
	var deleted int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM restores WHERE backup_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM backups WHERE backup_id = ?`, id)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return metadataError("delete backup", id, err)
	}
	if deleted == 0 {
		return notFound("delete backup", id)
	}
	return nil
}

// ScanExpired returns completed rows with expires_at < now.
func (s *Store) ScanExpired(ctx context.Context, now time.Time) ([]*BackupRecord, error) {
	recs, err := s.queryBackups(ctx, `SELECT `+backupColumns+` FROM backups
		WHERE status = ? AND expires_at < ?
		ORDER BY expires_at`, string(StatusCompleted), now.UTC())
	if err != nil {
		return nil, metadataError("scan expired", "", err)
	}
	return recs, nil
}

// ListRunning returns rows still marked running.
func (s *Store) ListRunning(ctx context.Context) ([]*BackupRecord, error) {
	return s.ListBackups(ctx, 0, StatusRunning)
}

// ArtifactPaths returns the status of every file_path recorded in the
// backups relation.
func (s *Store) ArtifactPaths(ctx context.Context) (map[string]Status, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file_path, status FROM backups WHERE file_path <> ''`)
	if err != nil {
		return nil, metadataError("list artifact paths", "", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	paths := make(map[string]Status)
	for rows.Next() {
		var (
			p      string
			status string
		)
		if err := rows.Scan(&p, &status); err != nil {
			return nil, metadataError("scan artifact path", "", err)
		}
		paths[p] = Status(status)
	}
	if err := rows.Err(); err != nil {
		return nil, metadataError("list artifact paths", "", err)
	}
	return paths, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) queryBackups(ctx context.Context, query string, args ...any) ([]*BackupRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var recs []*BackupRecord
	for rows.Next() {
		rec, err := scanBackup(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanBackup(row rowScanner) (*BackupRecord, error) {
	var (
		rec                        BackupRecord
		backupType, method, status string
		errMsg, category, checksum sql.NullString
		createdAt                  time.Time
		completedAt, expiresAt     sql.NullTime
	)
	if err := row.Scan(&rec.BackupID, &backupType, &method, &rec.FilePath, &rec.FileSize,
		&rec.Compressed, &rec.Encrypted, &status, &errMsg, &rec.DurationSeconds,
		&createdAt, &completedAt, &expiresAt, &category, &checksum, &rec.CreatedByUser); err != nil {
		return nil, err
	}
	rec.BackupType = BackupType(backupType)
	rec.Method = Method(method)
	rec.Status = Status(status)
	rec.ErrorMessage = errMsg.String
	rec.CreatedAt = createdAt.UTC()
	rec.CompletedAt = nullTimePtr(completedAt)
	rec.ExpiresAt = nullTimePtr(expiresAt)
	rec.RetentionCategory = RetentionCategory(category.String)
	rec.Checksum = checksum.String
	return &rec, nil
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func timePtrArg(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// --- restores ---

// RegisterRestoreStart inserts rec as a running row. The referenced backup
// must exist and be completed.
func (s *Store) RegisterRestoreStart(ctx context.Context, rec *RestoreRecord) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM backups WHERE backup_id = ?`, rec.BackupID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("register restore", rec.BackupID)
		}
		if err != nil {
			return err
		}
		if Status(status) != StatusCompleted {
			return newError(KindValidation, "register restore",
				fmt.Errorf("backup %s is %s, not completed", rec.BackupID, status))
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO restores (restore_id, backup_id, restore_type, target_database, status,
				created_at, created_by_user)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.RestoreID, rec.BackupID, string(rec.RestoreType), rec.TargetDatabase,
			string(StatusRunning), rec.CreatedAt.UTC(), rec.CreatedByUser)
		return err
	})
	if err != nil {
		var engineErr *Error
		if errors.As(err, &engineErr) {
			return engineErr
		}
		return metadataError("register restore", rec.RestoreID, err)
	}
	return nil
}

// CompleteRestore finalizes a running restore row.
func (s *Store) CompleteRestore(ctx context.Context, id string, status Status, duration time.Duration, completedAt time.Time, errMsg string) error {
	var msg sql.NullString
	if status == StatusFailed {
		if errMsg == "" {
			errMsg = "restore failed"
		}
		msg = sql.NullString{String: errMsg, Valid: true}
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE restores SET status = ?, error_message = ?, duration_seconds = ?, completed_at = ?
			WHERE restore_id = ? AND status = ?`,
			string(status), msg, duration.Seconds(), completedAt.UTC(), id, string(StatusRunning))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errNotRunning
		}
		return nil
	})
	if err != nil {
		return metadataError("complete restore", id, err)
	}
	return nil
}

// ListRestores returns up to limit restore rows, newest first.
func (s *Store) ListRestores(ctx context.Context, limit int) ([]*RestoreRecord, error) {
	query := `SELECT ` + restoreColumns + ` FROM restores ORDER BY created_at DESC, restore_id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	return s.queryRestores(ctx, "list restores", query)
}

// ListRunningRestores returns restore rows still marked running.
func (s *Store) ListRunningRestores(ctx context.Context) ([]*RestoreRecord, error) {
	return s.queryRestores(ctx, "list running restores",
		`SELECT `+restoreColumns+` FROM restores WHERE status = ?`, string(StatusRunning))
}

func (s *Store) queryRestores(ctx context.Context, op, query string, args ...any) ([]*RestoreRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, metadataError(op, "", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var recs []*RestoreRecord
	for rows.Next() {
		var (
			rec                 RestoreRecord
			restoreType, status string
			errMsg              sql.NullString
			completedAt         sql.NullTime
		)
		if err := rows.Scan(&rec.RestoreID, &rec.BackupID, &restoreType, &rec.TargetDatabase,
			&status, &errMsg, &rec.DurationSeconds, &rec.CreatedAt, &completedAt, &rec.CreatedByUser); err != nil {
			return nil, metadataError(op, "", err)
		}
		rec.RestoreType = RestoreType(restoreType)
		rec.Status = Status(status)
		rec.ErrorMessage = errMsg.String
		rec.CreatedAt = rec.CreatedAt.UTC()
		rec.CompletedAt = nullTimePtr(completedAt)
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, metadataError(op, "", err)
	}
	return recs, nil
}

// --- summary ---

// Summary aggregates the backups relation for status reporting.
type Summary struct {
	TotalCount         int                          `json:"total_count"`
	CountByStatus      map[Status]int               `json:"count_by_status"`
	CountByType        map[BackupType]int           `json:"count_by_type"`
	CountByCategory    map[RetentionCategory]int    `json:"count_by_category"`
	CompletedSizeBytes int64                        `json:"completed_size_bytes"`
	SizeByType         map[BackupType]int64         `json:"size_by_type"`
	RecentByType       map[BackupType]*BackupRecord `json:"recent_by_type"`
	RestoreCount       map[Status]int               `json:"restore_count_by_status"`
}

// Summary computes counts, completed sizes and the latest completed backup per type.
func (s *Store) Summary(ctx context.Context) (*Summary, error) {
	sum := &Summary{
		CountByStatus:   make(map[Status]int),
		CountByType:     make(map[BackupType]int),
		CountByCategory: make(map[RetentionCategory]int),
		SizeByType:      make(map[BackupType]int64),
		RecentByType:    make(map[BackupType]*BackupRecord),
		RestoreCount:    make(map[Status]int),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT backup_type, status, COALESCE(retention_category, ''), count(*),
			COALESCE(sum(CASE WHEN status = 'completed' THEN file_size ELSE 0 END), 0)
		FROM backups
		GROUP BY ALL`)
	if err != nil {
		return nil, metadataError("summarize backups", "", err)
	}
	for rows.Next() {
		var (
			backupType, status, category string
			count                        int
			size                         int64
		)
		if err := rows.Scan(&backupType, &status, &category, &count, &size); err != nil {
			rows.Close() //nolint:errcheck,gosec // already failing
			return nil, metadataError("summarize backups", "", err)
		}
		sum.TotalCount += count
		sum.CountByStatus[Status(status)] += count
		sum.CountByType[BackupType(backupType)] += count
		if category != "" {
			sum.CountByCategory[RetentionCategory(category)] += count
		}
		sum.SizeByType[BackupType(backupType)] += size
		sum.CompletedSizeBytes += size
	}
	if err := rows.Err(); err != nil {
		rows.Close() //nolint:errcheck,gosec // already failing
		return nil, metadataError("summarize backups", "", err)
	}
	rows.Close() //nolint:errcheck,gosec // read-only cursor

	recent, err := s.queryBackups(ctx, `SELECT `+backupColumns+` FROM backups
		WHERE status = 'completed'
		QUALIFY row_number() OVER (PARTITION BY backup_type ORDER BY created_at DESC, backup_id DESC) = 1`)
	if err != nil {
		return nil, metadataError("summarize recent backups", "", err)
	}
	for _, rec := range recent {
		sum.RecentByType[rec.BackupType] = rec
	}

	restoreRows, err := s.db.QueryContext(ctx, `SELECT status, count(*) FROM restores GROUP BY status`)
	if err != nil {
		return nil, metadataError("summarize restores", "", err)
	}
	defer restoreRows.Close() //nolint:errcheck // read-only cursor
	for restoreRows.Next() {
		var (
			status string
			count  int
		)
		if err := restoreRows.Scan(&status, &count); err != nil {
			return nil, metadataError("summarize restores", "", err)
		}
		sum.RestoreCount[Status(status)] = count
	}
	if err := restoreRows.Err(); err != nil {
		return nil, metadataError("summarize restores", "", err)
	}

	return sum, nil
}

// --- scheduled jobs ---

// EnsureJob inserts job if no job with its name exists. Returns true when inserted.
func (s *Store) EnsureJob(ctx context.Context, job *ScheduledJob) (bool, error) {
	var inserted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM scheduled_jobs WHERE job_name = ?)`, job.JobName).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return nil
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scheduled_jobs (job_name, backup_type, schedule_pattern, enabled, last_run, next_run)
			VALUES (?, ?, ?, ?, ?, ?)`,
			job.JobName, string(job.BackupType), job.SchedulePattern, job.Enabled,
			timePtrArg(job.LastRun), timePtrArg(job.NextRun))
		inserted = err == nil
		return err
	})
	if err != nil {
		return false, metadataError("ensure scheduled job", job.JobName, err)
	}
	return inserted, nil
}

// ListJobs returns scheduled jobs ordered by name.
func (s *Store) ListJobs(ctx context.Context, enabledOnly bool) ([]*ScheduledJob, error) {
	query := `SELECT ` + jobColumns + ` FROM scheduled_jobs`
	if enabledOnly {
		query += ` WHERE enabled`
	}
	query += ` ORDER BY job_name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, metadataError("list scheduled jobs", "", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var jobs []*ScheduledJob
	for rows.Next() {
		var (
			job              ScheduledJob
			backupType       string
			lastRun, nextRun sql.NullTime
		)
		if err := rows.Scan(&job.JobName, &backupType, &job.SchedulePattern, &job.Enabled, &lastRun, &nextRun); err != nil {
			return nil, metadataError("scan scheduled job", "", err)
		}
		job.BackupType = BackupType(backupType)
		job.LastRun = nullTimePtr(lastRun)
		job.NextRun = nullTimePtr(nextRun)
		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, metadataError("list scheduled jobs", "", err)
	}
	return jobs, nil
}

// UpdateJobRun records a run: last_run and next_run are written together.
func (s *Store) UpdateJobRun(ctx context.Context, name string, lastRun *time.Time, nextRun time.Time) error {
	return s.execJob(ctx, "update scheduled job", name,
		`UPDATE scheduled_jobs SET last_run = COALESCE(?, last_run), next_run = ? WHERE job_name = ?`,
		timePtrArg(lastRun), nextRun.UTC(), name)
}

// UpdateJobPattern replaces a job's schedule pattern along with its next_run.
func (s *Store) UpdateJobPattern(ctx context.Context, name, pattern string, nextRun time.Time) error {
	return s.execJob(ctx, "update scheduled job pattern", name,
		`UPDATE scheduled_jobs SET schedule_pattern = ?, next_run = ? WHERE job_name = ?`,
		pattern, nextRun.UTC(), name)
}

// SetJobEnabled toggles a job.
func (s *Store) SetJobEnabled(ctx context.Context, name string, enabled bool) error {
	return s.execJob(ctx, "set scheduled job enabled", name,
		`UPDATE scheduled_jobs SET enabled = ? WHERE job_name = ?`, enabled, name)
}

// DeleteJob removes a job definition.
func (s *Store) DeleteJob(ctx context.Context, name string) error {
	return s.execJob(ctx, "delete scheduled job", name,
		`DELETE FROM scheduled_jobs WHERE job_name = ?`, name)
}

func (s *Store) execJob(ctx context.Context, op, name, query string, args ...any) error {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return metadataError(op, name, err)
	}
	if n == 0 {
		return notFound(op, name)
	}
	return nil
}
