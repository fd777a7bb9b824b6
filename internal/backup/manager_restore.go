// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

/*
manager_restore.go - Restore Operations

RestoreBackup loads a completed artifact into the source database or into an
alternate target:

 1. Look up the backup; it must be completed and its file must exist
 2. Register a running restore row
 3. Verify the artifact against its recorded checksum
 4. Inflate a compressed artifact into temp/ under a unique name
 5. Create the target database when it is not the source database
 6. Load the SQL with ON_ERROR_STOP
 7. Remove the temp file (on every exit) and finalize the row

Only full restores are executable. Selective and point-in-time restores are
recognized values and rejected as validation errors.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/tomtom215/talon/internal/config"
	"github.com/tomtom215/talon/internal/logging"
	"github.com/tomtom215/talon/internal/metrics"
)

// RestoreBackup restores a backup. Like CreateBackup it reports failures on
// the result rather than as a Go error.
func (m *Manager) RestoreBackup(ctx context.Context, req RestoreRequest) *RestoreResult {
	result := &RestoreResult{BackupID: req.BackupID}

	restoreType := req.RestoreType
	if restoreType == "" {
		restoreType = RestoreFull
	}
	if _, err := ParseRestoreType(string(restoreType)); err != nil {
		return result.fail(err)
	}
	if restoreType != RestoreFull {
		return result.fail(newError(KindValidation, "restore backup",
			fmt.Errorf("restore type %q is not supported; only %q restores are executable", restoreType, RestoreFull)))
	}

	cfg := m.cfg.Get()
	target := req.TargetDatabase
	if target == "" {
		target = cfg.DBName
	}
	result.TargetDatabase = target
	if err := validateTargetDatabase(target); err != nil {
		return result.fail(err)
	}

	backup, err := m.store.GetBackup(ctx, req.BackupID)
	if err != nil {
		return result.fail(err)
	}
	if backup.Status != StatusCompleted {
		return result.fail(newError(KindValidation, "restore backup",
			fmt.Errorf("backup %s is %s, not completed", backup.BackupID, backup.Status)))
	}
	if !fileExists(backup.FilePath) {
		return result.fail(&Error{Kind: KindNotFound, Op: "restore backup", ID: backup.BackupID,
			Err: fmt.Errorf("artifact missing at %s", backup.FilePath)})
	}

	createdAt := m.clock()
	rec := &RestoreRecord{
		RestoreID:      newRestoreID(createdAt),
		BackupID:       backup.BackupID,
		RestoreType:    restoreType,
		TargetDatabase: target,
		Status:         StatusRunning,
		CreatedAt:      createdAt,
		CreatedByUser:  req.User,
	}
	result.RestoreID = rec.RestoreID
	if err := m.store.RegisterRestoreStart(ctx, rec); err != nil {
		return result.fail(err)
	}

	runCtx, release := m.track(ctx, rec.RestoreID)
	defer release()
	metrics.TrackInFlight("restore", true)
	defer metrics.TrackInFlight("restore", false)

	log := logging.Ctx(runCtx).With().
		Str("restore_id", rec.RestoreID).
		Str("backup_id", backup.BackupID).
		Str("target", target).
		Logger()
	log.Info().Str("user", req.User).Msg("Restore started")

	start := time.Now()
	runErr := m.runRestore(runCtx, &cfg, backup, target)
	duration := time.Since(start)
	result.Duration = duration
	result.DurationSeconds = duration.Seconds()

	if runErr != nil && runCtx.Err() != nil && KindOf(runErr) != KindCanceled {
		runErr = &Error{Kind: KindCanceled, Op: "restore backup", ID: rec.RestoreID, Err: runErr}
	}

	status := StatusCompleted
	msg := ""
	if runErr != nil {
		status = StatusFailed
		msg = errorText(runErr)
		if KindOf(runErr) == KindCanceled {
			msg = canceledMessage
		}
	}

	if err := m.store.CompleteRestore(context.WithoutCancel(ctx), rec.RestoreID, status, duration, createdAt.Add(duration), msg); err != nil {
		log.Error().Err(err).Msg("Failed to finalize restore row")
		if runErr == nil {
			runErr = err
		}
	}
	metrics.RecordRestore(string(status), duration)

	if runErr != nil {
		log.Error().Err(runErr).Dur("duration", duration).Msg("Restore failed")
		return result.fail(runErr)
	}

	log.Info().Dur("duration", duration).Msg("Restore completed")
	result.Success = true
	return result
}

// runRestore verifies, inflates and loads one artifact into target.
func (m *Manager) runRestore(ctx context.Context, cfg *config.Config, backup *BackupRecord, target string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError(KindRestore, "restore backup", fmt.Errorf("panic: %v", r))
		}
	}()

	if backup.Checksum != "" {
		if _, err := verifyChecksum(backup.FilePath, backup.Checksum); err != nil {
			if errors.Is(err, errChecksumMismatch) {
				return &Error{Kind: KindRestore, Op: "verify artifact", ID: backup.BackupID, Err: err}
			}
			return err
		}
	}

	input := backup.FilePath
	if backup.Compressed {
		tmp := m.repo.TempPath("restore_" + backup.BackupID)
		defer func() {
			if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				logging.Ctx(ctx).Warn().Err(rmErr).Str("path", tmp).Msg("Failed to remove restore temp file")
			}
		}()
		if err := inflateArtifact(ctx, backup.FilePath, tmp); err != nil {
			return err
		}
		input = tmp
	}

	if target != cfg.DBName {
		created, err := m.newInspector(cfg).EnsureDatabase(ctx, target)
		if err != nil {
			return &Error{Kind: KindRestore, Op: "prepare target database", ID: target, Err: err}
		}
		if created {
			logging.Ctx(ctx).Info().Str("target", target).Msg("Created restore target")
		}
	}

	_, err = NewDumper(cfg).Restore(ctx, target, input)
	return err
}

func (r *RestoreResult) fail(err error) *RestoreResult {
	r.Success = false
	r.Error = errorText(err)
	r.ErrorKind = KindOf(err)
	if r.ErrorKind == "" {
		r.ErrorKind = KindRestore
	}
	return r
}

// maxDatabaseNameLen is PostgreSQL's identifier limit (NAMEDATALEN - 1).
const maxDatabaseNameLen = 63

// validateTargetDatabase accepts plain database names only. psql reads a -d
// value holding "=" or a URI scheme as a whole connection string, which
// would carry PGPASSWORD to whatever server it names.
func validateTargetDatabase(name string) error {
	var reason string
	lower := strings.ToLower(name)
	switch {
	case name == "":
		reason = "is empty"
	case len(name) > maxDatabaseNameLen:
		reason = fmt.Sprintf("is longer than %d bytes", maxDatabaseNameLen)
	case strings.Contains(name, "="):
		reason = `contains "="`
	case strings.Contains(name, "://"),
		strings.HasPrefix(lower, "postgres:"), strings.HasPrefix(lower, "postgresql:"):
		reason = "is a connection URI"
	case strings.HasPrefix(name, "-"):
		reason = `starts with "-"`
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		reason = "contains control characters"
	default:
		return nil
	}
	return &Error{Kind: KindValidation, Op: "restore backup", ID: name,
		Err: fmt.Errorf("target database name %s", reason)}
}
