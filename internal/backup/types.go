// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package backup

import (
	"fmt"
	"time"
)

// BackupType selects what the dump contains.
type BackupType string

const (
	// TypeFull is a complete logical dump with drop-before-create statements.
	TypeFull BackupType = "full"

	// TypeIncremental and TypeDifferential are produced by the same dump as
	// TypeFull; they differ only in where they are filed and how they are
	// classified.
	TypeIncremental  BackupType = "incremental"
	TypeDifferential BackupType = "differential"

	// TypeSchemaOnly dumps object definitions only.
	TypeSchemaOnly BackupType = "schema_only"

	// TypeDataOnly dumps table contents only.
	TypeDataOnly BackupType = "data_only"
)

// BackupTypes lists every accepted backup type.
var BackupTypes = []BackupType{TypeFull, TypeIncremental, TypeDifferential, TypeSchemaOnly, TypeDataOnly}

// Valid reports whether t is an accepted backup type.
func (t BackupType) Valid() bool {
	for _, v := range BackupTypes {
		if t == v {
			return true
		}
	}
	return false
}

// ParseBackupType converts s into a BackupType or returns a validation error.
func ParseBackupType(s string) (BackupType, error) {
	t := BackupType(s)
	if !t.Valid() {
		return "", newError(KindValidation, "parse backup type", fmt.Errorf("unknown backup type %q", s))
	}
	return t, nil
}

// Method records who started a backup.
type Method string

const (
	MethodManual    Method = "manual"
	MethodScheduled Method = "scheduled"
)

// Valid reports whether m is an accepted method.
func (m Method) Valid() bool {
	return m == MethodManual || m == MethodScheduled
}

// Status is the lifecycle state of a backup or restore row.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// RetentionCategory is the tier that determines an artifact's expiry.
type RetentionCategory string

const (
	RetentionDaily   RetentionCategory = "daily"
	RetentionWeekly  RetentionCategory = "weekly"
	RetentionMonthly RetentionCategory = "monthly"
	RetentionYearly  RetentionCategory = "yearly"
)

// rank orders categories by tier for tie-breaking.
func (c RetentionCategory) rank() int {
	switch c {
	case RetentionWeekly:
		return 1
	case RetentionMonthly:
		return 2
	case RetentionYearly:
		return 3
	default:
		return 0
	}
}

// RestoreType selects restore semantics. Only RestoreFull is executable.
type RestoreType string

const (
	RestoreFull        RestoreType = "full"
	RestoreSelective   RestoreType = "selective"
	RestorePointInTime RestoreType = "point_in_time"
)

// ParseRestoreType converts s into a RestoreType; unknown values are a validation error.
func ParseRestoreType(s string) (RestoreType, error) {
	switch t := RestoreType(s); t {
	case RestoreFull, RestoreSelective, RestorePointInTime:
		return t, nil
	default:
		return "", newError(KindValidation, "parse restore type", fmt.Errorf("unknown restore type %q", s))
	}
}

// BackupRecord is one row of the backups relation.
type BackupRecord struct {
	BackupID          string            `json:"backup_id"`
	BackupType        BackupType        `json:"backup_type"`
	Method            Method            `json:"method"`
	FilePath          string            `json:"file_path"`
	FileSize          int64             `json:"file_size"`
	Compressed        bool              `json:"compressed"`
	Encrypted         bool              `json:"encrypted"`
	Status            Status            `json:"status"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	DurationSeconds   float64           `json:"duration_seconds"`
	CreatedAt         time.Time         `json:"created_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	ExpiresAt         *time.Time        `json:"expires_at,omitempty"`
	RetentionCategory RetentionCategory `json:"retention_category,omitempty"`
	Checksum          string            `json:"checksum,omitempty"`
	CreatedByUser     string            `json:"created_by_user"`
}

// BackupCompletion carries the terminal fields written by Store.CompleteBackup.
type BackupCompletion struct {
	Status            Status
	FileSize          int64
	Compressed        bool
	Duration          time.Duration
	CompletedAt       time.Time
	Checksum          string
	RetentionCategory RetentionCategory
	ExpiresAt         *time.Time
	ErrorMessage      string

	// FilePath, when non-empty, retargets the row (e.g. to the compressed artifact).
	FilePath string
}

// RestoreRecord is one row of the restores relation.
type RestoreRecord struct {
	RestoreID       string      `json:"restore_id"`
	BackupID        string      `json:"backup_id"`
	RestoreType     RestoreType `json:"restore_type"`
	TargetDatabase  string      `json:"target_database"`
	Status          Status      `json:"status"`
	ErrorMessage    string      `json:"error_message,omitempty"`
	DurationSeconds float64     `json:"duration_seconds"`
	CreatedAt       time.Time   `json:"created_at"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	CreatedByUser   string      `json:"created_by_user"`
}

// ScheduledJob is one row of the scheduled_jobs relation.
type ScheduledJob struct {
	JobName         string     `json:"job_name" validate:"required"`
	BackupType      BackupType `json:"backup_type"`
	SchedulePattern string     `json:"schedule_pattern" validate:"required,cronspec"`
	Enabled         bool       `json:"enabled"`
	LastRun         *time.Time `json:"last_run,omitempty"`
	NextRun         *time.Time `json:"next_run,omitempty"`
}

// BackupResult is what CreateBackup returns. It never carries a Go error:
// failures are reported through Success=false, Error and ErrorKind.
type BackupResult struct {
	Success           bool              `json:"success"`
	BackupID          string            `json:"backup_id,omitempty"`
	FilePath          string            `json:"file_path,omitempty"`
	FileSize          int64             `json:"file_size"`
	Duration          time.Duration     `json:"-"`
	DurationSeconds   float64           `json:"duration_seconds"`
	Checksum          string            `json:"checksum,omitempty"`
	RetentionCategory RetentionCategory `json:"retention_category,omitempty"`
	ExpiresAt         *time.Time        `json:"expires_at,omitempty"`
	Error             string            `json:"error,omitempty"`
	ErrorKind         ErrorKind         `json:"error_kind,omitempty"`
}

// RestoreRequest names what to restore and where.
type RestoreRequest struct {
	BackupID    string
	RestoreType RestoreType

	// TargetDatabase defaults to the configured source database.
	TargetDatabase string
	User           string
}

// RestoreResult is what RestoreBackup returns.
type RestoreResult struct {
	Success         bool          `json:"success"`
	RestoreID       string        `json:"restore_id,omitempty"`
	BackupID        string        `json:"backup_id"`
	TargetDatabase  string        `json:"target_database,omitempty"`
	Duration        time.Duration `json:"-"`
	DurationSeconds float64       `json:"duration_seconds"`
	Error           string        `json:"error,omitempty"`
	ErrorKind       ErrorKind     `json:"error_kind,omitempty"`
}

// CleanupResult reports one expiry sweep.
type CleanupResult struct {
	DeletedCount int      `json:"deleted_count"`
	Errors       []string `json:"errors"`
}

// VerifyResult reports an integrity check of one artifact.
type VerifyResult struct {
	BackupID string `json:"backup_id"`
	Valid    bool   `json:"valid"`
	Expected string `json:"expected"`
	Actual   string `json:"actual,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ReconcileResult reports what a startup reconciliation pass repaired.
type ReconcileResult struct {
	StaleRowsFailed        int      `json:"stale_rows_failed"`
	OrphansArchived        int      `json:"orphans_archived"`
	TempFilesRemoved       int      `json:"temp_files_removed"`
	FailedArtifactsRemoved int      `json:"failed_artifacts_removed"`
	Errors                 []string `json:"errors,omitempty"`
}
