// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

/*
reconcile.go - Startup Reconciliation

A crash can leave the metadata store and the artifact tree out of step. Run
once at startup, before the scheduler, Reconcile repairs both directions:

  - temp/ is emptied (leftover inflated restore inputs)
  - running backup rows are finalized failed and their files removed
  - running restore rows are finalized failed
  - files left at a failed row's path are removed; failed backups own no
    artifact
  - artifacts on disk with no row are moved to archive/ for an operator

It must not run while backups are in flight: it would fail their rows.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/tomtom215/talon/internal/logging"
	"github.com/tomtom215/talon/internal/metrics"
)

// interruptedMessage is the error_message of rows repaired by Reconcile.
const interruptedMessage = "interrupted: engine restarted before completion"

// Reconcile repairs state left behind by an unclean shutdown.
func (m *Manager) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	result := &ReconcileResult{}

	removed, err := m.repo.SweepTemp()
	result.TempFilesRemoved = removed
	if err != nil {
		result.Errors = append(result.Errors, errorText(err))
	}

	stale, err := m.store.ListRunning(ctx)
	if err != nil {
		return nil, err
	}
	now := m.clock()
	for _, rec := range stale {
		if err := removeArtifact(rec.FilePath); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", rec.BackupID, errorText(err)))
		}
		completion := BackupCompletion{
			Status:       StatusFailed,
			CompletedAt:  now,
			Duration:     now.Sub(rec.CreatedAt),
			ErrorMessage: interruptedMessage,
		}
		if completion.Duration < 0 {
			completion.Duration = 0
			completion.CompletedAt = rec.CreatedAt
		}
		if err := m.store.CompleteBackup(ctx, rec.BackupID, completion); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", rec.BackupID, errorText(err)))
			continue
		}
		result.StaleRowsFailed++
		logging.Warn().Str("backup_id", rec.BackupID).Msg("Marked interrupted backup as failed")
	}

	restores, err := m.store.ListRunningRestores(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range restores {
		duration := now.Sub(rec.CreatedAt)
		completedAt := now
		if duration < 0 {
			duration = 0
			completedAt = rec.CreatedAt
		}
		if err := m.store.CompleteRestore(ctx, rec.RestoreID, StatusFailed, duration, completedAt, interruptedMessage); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", rec.RestoreID, errorText(err)))
			continue
		}
		logging.Warn().Str("restore_id", rec.RestoreID).Msg("Marked interrupted restore as failed")
	}

	known, err := m.store.ArtifactPaths(ctx)
	if err != nil {
		return nil, err
	}
	err = m.repo.WalkArtifacts(func(path string) error {
		switch owner, ok := artifactOwner(known, path); {
		case ok && owner == StatusFailed:
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				result.Errors = append(result.Errors, errorText(filesystemError("remove failed artifact", path, err)))
				return nil
			}
			result.FailedArtifactsRemoved++
			logging.Warn().Str("path", path).Msg("Removed file left at a failed backup's path")
			return nil
		case ok:
			return nil
		}
		dst, err := m.repo.Archive(path)
		if err != nil {
			result.Errors = append(result.Errors, errorText(err))
			return nil
		}
		result.OrphansArchived++
		logging.Warn().Str("path", path).Str("archived_to", dst).Msg("Archived artifact with no metadata row")
		return nil
	})
	if err != nil {
		result.Errors = append(result.Errors, errorText(err))
	}

	metrics.RecordReconcile(result.StaleRowsFailed, result.OrphansArchived, result.TempFilesRemoved)
	logging.Info().
		Int("stale_rows_failed", result.StaleRowsFailed).
		Int("orphans_archived", result.OrphansArchived).
		Int("temp_files_removed", result.TempFilesRemoved).
		Int("failed_artifacts_removed", result.FailedArtifactsRemoved).
		Int("errors", len(result.Errors)).
		Msg("Startup reconciliation finished")

	return result, nil
}

// artifactOwner finds the row recorded for path under either of its names.
// A completed or running row wins over a failed one.
func artifactOwner(known map[string]Status, path string) (Status, bool) {
	owner, found := Status(""), false
	for _, variant := range artifactVariants(path) {
		status, ok := known[variant]
		if !ok {
			continue
		}
		if status != StatusFailed {
			return status, true
		}
		owner, found = status, true
	}
	return owner, found
}
