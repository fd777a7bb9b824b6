// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

/*
manager_backup.go - Backup Creation

CreateBackup runs one backup from start to finish:

 1. Mint a backup ID and choose the artifact path
 2. Register a running row (the run is now observable)
 3. Dump the source database into the raw artifact
 4. Optionally compress it; the row is retargeted to the .gz path
 5. Checksum, classify retention, finalize the row as completed

Any failure, cancellation or panic after step 2 removes every variant of the
artifact and finalizes the row as failed, so a completed row always has a file
and no failed row does. If the finalizing write itself fails the artifact is
removed anyway and startup reconciliation repairs the stale running row.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/talon/internal/config"
	"github.com/tomtom215/talon/internal/logging"
	"github.com/tomtom215/talon/internal/metrics"
)

// canceledMessage is the error_message of a run stopped through CancelBackup
// or CancelRestore.
const canceledMessage = "canceled"

// CreateBackup creates a new backup. It never returns a Go error: failures are
// reported on the result.
func (m *Manager) CreateBackup(ctx context.Context, backupType BackupType, method Method, user string) *BackupResult {
	result := &BackupResult{}

	if !backupType.Valid() {
		return result.fail(newError(KindValidation, "create backup", fmt.Errorf("unknown backup type %q", backupType)))
	}
	if !method.Valid() {
		return result.fail(newError(KindValidation, "create backup", fmt.Errorf("unknown backup method %q", method)))
	}

	cfg := m.cfg.Get()
	createdAt := m.clock()
	id := newBackupID(backupType, createdAt)
	result.BackupID = id

	rawPath, err := m.repo.ArtifactPath(method, backupType, id, false)
	if err != nil {
		return result.fail(err)
	}

	rec := &BackupRecord{
		BackupID:      id,
		BackupType:    backupType,
		Method:        method,
		FilePath:      rawPath,
		Status:        StatusRunning,
		CreatedAt:     createdAt,
		CreatedByUser: user,
	}
	if err := m.store.RegisterBackupStart(ctx, rec); err != nil {
		return result.fail(err)
	}

	runCtx, release := m.track(ctx, id)
	defer release()
	metrics.TrackInFlight("backup", true)
	defer metrics.TrackInFlight("backup", false)

	log := logging.Ctx(runCtx).With().
		Str("backup_id", id).
		Str("type", string(backupType)).
		Str("method", string(method)).
		Logger()
	log.Info().Str("user", user).Msg("Backup started")

	start := time.Now()
	completion, runErr := m.runBackup(runCtx, &cfg, rec)
	duration := time.Since(start)

	// Finalization must happen even when the run was canceled.
	finalizeCtx := context.WithoutCancel(ctx)

	if runErr != nil {
		if runCtx.Err() != nil && KindOf(runErr) != KindCanceled {
			runErr = &Error{Kind: KindCanceled, Op: "create backup", ID: id, Err: runErr}
		}
		if err := removeArtifact(rawPath); err != nil {
			log.Warn().Err(err).Msg("Failed to remove partial artifact")
		}

		msg := errorText(runErr)
		if KindOf(runErr) == KindCanceled {
			msg = canceledMessage
		}
		failed := BackupCompletion{
			Status:       StatusFailed,
			Duration:     duration,
			CompletedAt:  createdAt.Add(duration),
			ErrorMessage: msg,
		}
		if err := m.store.CompleteBackup(finalizeCtx, id, failed); err != nil {
			log.Error().Err(err).Msg("Failed to finalize failed backup; reconciliation will repair the row")
		}

		log.Error().Err(runErr).Dur("duration", duration).Msg("Backup failed")
		metrics.RecordBackup(string(backupType), string(method), string(StatusFailed), duration, 0)
		result.Duration = duration
		result.DurationSeconds = duration.Seconds()
		return result.fail(runErr)
	}

	category, expiresAt := Classify(cfg.RetentionPolicy, backupType, method, createdAt)
	completion.Status = StatusCompleted
	completion.Duration = duration
	completion.CompletedAt = createdAt.Add(duration)
	completion.RetentionCategory = category
	completion.ExpiresAt = &expiresAt

	if err := m.store.CompleteBackup(finalizeCtx, id, completion); err != nil {
		if rmErr := removeArtifact(completion.FilePath); rmErr != nil {
			log.Warn().Err(rmErr).Msg("Failed to remove artifact of unrecorded backup")
		}
		log.Error().Err(err).Msg("Failed to finalize backup; artifact removed")
		metrics.RecordBackup(string(backupType), string(method), string(StatusFailed), duration, 0)
		return result.fail(err)
	}

	log.Info().
		Str("file", completion.FilePath).
		Int64("size", completion.FileSize).
		Str("retention", string(category)).
		Time("expires_at", expiresAt).
		Dur("duration", duration).
		Msg("Backup completed")
	metrics.RecordBackup(string(backupType), string(method), string(StatusCompleted), duration, completion.FileSize)

	result.Success = true
	result.FilePath = completion.FilePath
	result.FileSize = completion.FileSize
	result.Duration = duration
	result.DurationSeconds = duration.Seconds()
	result.Checksum = completion.Checksum
	result.RetentionCategory = category
	result.ExpiresAt = &expiresAt
	return result
}

// runBackup dumps, compresses and checksums. The returned completion carries
// the artifact fields only; the caller sets status, timing and retention.
func (m *Manager) runBackup(ctx context.Context, cfg *config.Config, rec *BackupRecord) (c BackupCompletion, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError(KindDump, "create backup", fmt.Errorf("panic: %v", r))
		}
	}()

	if _, err := NewDumper(cfg).Dump(ctx, rec.BackupType, rec.FilePath); err != nil {
		return c, err
	}
	if !fileExists(rec.FilePath) {
		return c, newError(KindDump, "dump database", fmt.Errorf("dump tool exited cleanly but wrote no file at %s", rec.FilePath))
	}

	path := rec.FilePath
	size := getFileSize(path)
	if cfg.Compression.Enabled {
		path, size, err = compressArtifact(ctx, rec.FilePath, cfg.Compression.Level)
		if err != nil {
			return c, err
		}
		c.Compressed = true
	}

	checksum, err := calculateFileChecksum(path)
	if err != nil {
		return c, err
	}

	c.FilePath = path
	c.FileSize = size
	c.Checksum = checksum
	return c, nil
}

func (r *BackupResult) fail(err error) *BackupResult {
	r.Success = false
	r.Error = errorText(err)
	r.ErrorKind = KindOf(err)
	if r.ErrorKind == "" {
		r.ErrorKind = KindDump
	}
	return r
}
