// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

/*
manager_crud.go - Backup Listing, Retrieval, and Deletion

Deletion removes the artifact (both the raw and the .gz variant) before the
row, so an interrupted delete never leaves a row pointing at a missing file.
A running backup cannot be deleted: its orchestrator still owns the row.

CleanupExpired is the reaper. It is also run by the scheduler on every tick.
Per-backup failures are collected and the sweep continues.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"fmt"

	"github.com/tomtom215/talon/internal/logging"
	"github.com/tomtom215/talon/internal/metrics"
)

// ListBackups returns up to limit backups, newest first. limit <= 0 returns
// all; an empty status matches any status.
func (m *Manager) ListBackups(ctx context.Context, limit int, status Status) ([]*BackupRecord, error) {
	switch status {
	case "", StatusRunning, StatusCompleted, StatusFailed:
	default:
		return nil, newError(KindValidation, "list backups", fmt.Errorf("unknown status %q", status))
	}
	return m.store.ListBackups(ctx, limit, status)
}

// GetBackupDetails returns a backup by ID. A missing backup is a NotFound error.
func (m *Manager) GetBackupDetails(ctx context.Context, id string) (*BackupRecord, error) {
	return m.store.GetBackup(ctx, id)
}

// ListRestores returns up to limit restores, newest first.
func (m *Manager) ListRestores(ctx context.Context, limit int) ([]*RestoreRecord, error) {
	return m.store.ListRestores(ctx, limit)
}

// DeleteBackup deletes a backup's artifact and row. It returns false with a
// NotFound error when id is unknown.
func (m *Manager) DeleteBackup(ctx context.Context, id, user string) (bool, error) {
	backup, err := m.store.GetBackup(ctx, id)
	if err != nil {
		return false, err
	}
	if backup.Status == StatusRunning {
		return false, newError(KindValidation, "delete backup", fmt.Errorf("backup %s is still running", id))
	}

	if err := m.deleteBackup(ctx, backup); err != nil {
		return false, err
	}

	logging.Info().
		Str("backup_id", id).
		Str("user", user).
		Str("file", backup.FilePath).
		Msg("Backup deleted")
	return true, nil
}

func (m *Manager) deleteBackup(ctx context.Context, backup *BackupRecord) error {
	if err := removeArtifact(backup.FilePath); err != nil {
		return err
	}
	return m.store.DeleteBackup(ctx, backup.BackupID)
}

// CleanupExpired removes every completed backup whose expiry has passed.
func (m *Manager) CleanupExpired(ctx context.Context) *CleanupResult {
	result := &CleanupResult{Errors: []string{}}
	now := m.clock()

	expired, err := m.store.ScanExpired(ctx, now)
	if err != nil {
		result.Errors = append(result.Errors, errorText(err))
		logging.Error().Err(err).Msg("Failed to scan for expired backups")
		metrics.RecordExpirySweep(0, 1)
		return result
	}

	for _, backup := range expired {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, err.Error())
			break
		}
		if err := m.deleteBackup(ctx, backup); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", backup.BackupID, errorText(err)))
			logging.Warn().Err(err).Str("backup_id", backup.BackupID).Msg("Failed to remove expired backup")
			continue
		}
		result.DeletedCount++
		logging.Info().
			Str("backup_id", backup.BackupID).
			Str("retention", string(backup.RetentionCategory)).
			Msg("Expired backup removed")
	}

	metrics.RecordExpirySweep(result.DeletedCount, len(result.Errors))
	if result.DeletedCount > 0 || len(result.Errors) > 0 {
		logging.Info().
			Int("deleted", result.DeletedCount).
			Int("errors", len(result.Errors)).
			Msg("Expiry sweep finished")
	}
	return result
}
