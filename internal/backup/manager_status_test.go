// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestGetSystemStatus(t *testing.T) {
	env := newTestEnv(t)
	m := env.newTestManager(t)
	ctx := context.Background()

	rec := env.createCompleted(t, m)
	env.setControl(t, "dump_fail", true)
	m.CreateBackup(ctx, TypeSchemaOnly, MethodManual, "u1")
	if err := m.PrepareJobs(ctx); err != nil {
		t.Fatal(err)
	}

	status, err := m.GetSystemStatus(ctx)
	if err != nil {
		t.Fatalf("GetSystemStatus() error = %v", err)
	}
	if status.Backups.TotalCount != 2 {
		t.Errorf("TotalCount = %d, want 2", status.Backups.TotalCount)
	}
	if status.Backups.CountByStatus[StatusFailed] != 1 || status.Backups.CountByStatus[StatusCompleted] != 1 {
		t.Errorf("CountByStatus = %v", status.Backups.CountByStatus)
	}
	if status.Backups.CompletedSizeBytes != rec.FileSize {
		t.Errorf("CompletedSizeBytes = %d, want %d", status.Backups.CompletedSizeBytes, rec.FileSize)
	}
	if recent := status.Backups.RecentByType[TypeFull]; recent == nil || recent.BackupID != rec.BackupID {
		t.Errorf("RecentByType[full] = %+v", recent)
	}
	if status.Disk == nil || status.Disk.TotalBytes == 0 {
		t.Errorf("Disk = %+v (error %q)", status.Disk, status.DiskError)
	}
	if status.RetentionPolicy.Daily != 7 || status.ScheduleEnabled || status.SchedulerRunning {
		t.Errorf("policy/schedule = %+v / %v / %v", status.RetentionPolicy, status.ScheduleEnabled, status.SchedulerRunning)
	}
	if len(status.Jobs) != 3 {
		t.Errorf("Jobs = %d, want 3", len(status.Jobs))
	}
}

func TestGetDatabaseStats(t *testing.T) {
	env := newTestEnv(t)
	m := env.newTestManager(t)

	stats, err := m.GetDatabaseStats(context.Background())
	if err != nil {
		t.Fatalf("GetDatabaseStats() error = %v", err)
	}
	if stats.TableCount != 1 || stats.PerTableCounts["entities"] != 2 {
		t.Errorf("stats = %+v", stats)
	}

	env.inspector.err = errors.New("connection refused")
	if _, err := m.GetDatabaseStats(context.Background()); err == nil {
		t.Error("GetDatabaseStats() error = nil with an unreachable server")
	}
}

func TestUpdateConfig(t *testing.T) {
	env := newTestEnv(t)
	m := env.newTestManager(t)
	ctx := context.Background()

	ok, err := m.UpdateConfig(ctx, map[string]any{"retention_policy": map[string]any{"daily": 14}})
	if err != nil || !ok {
		t.Fatalf("UpdateConfig() = %v, %v", ok, err)
	}
	if m.Config().RetentionPolicy.Daily != 14 {
		t.Errorf("daily = %d, want 14", m.Config().RetentionPolicy.Daily)
	}

	before, err := os.ReadFile(env.configPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, partial := range []map[string]any{
		{"compression.level": 12},
		{"no_such_key": true},
		{"schedule.daily_time": "25:99"},
	} {
		ok, err := m.UpdateConfig(ctx, partial)
		if ok || !errors.Is(err, ErrConfiguration) {
			t.Errorf("UpdateConfig(%v) = %v, %v; want configuration error", partial, ok, err)
		}
	}
	after, err := os.ReadFile(env.configPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("rejected update modified the document")
	}
}

func TestUpdateConfigMovesBackupRoot(t *testing.T) {
	env := newTestEnv(t)
	m := env.newTestManager(t)
	newRoot := filepath.Join(env.dir, "moved")

	if _, err := m.UpdateConfig(context.Background(), map[string]any{"backup_root": newRoot}); err != nil {
		t.Fatal(err)
	}
	if m.Repository().Root() != newRoot {
		t.Errorf("Root() = %s, want %s", m.Repository().Root(), newRoot)
	}
	for _, dir := range []string{"full", "manual", "scheduled", "archive", "temp"} {
		if info, err := os.Stat(filepath.Join(newRoot, dir)); err != nil || !info.IsDir() {
			t.Errorf("layout dir %s missing under the new root", dir)
		}
	}

	rec := env.createCompleted(t, m)
	if filepath.Dir(filepath.Dir(filepath.Dir(rec.FilePath))) != newRoot {
		t.Errorf("new backup written to %s, want under %s", rec.FilePath, newRoot)
	}
}

func TestVerifyBackup(t *testing.T) {
	env := newTestEnv(t)
	m := env.newTestManager(t)
	ctx := context.Background()
	rec := env.createCompleted(t, m)

	res, err := m.VerifyBackup(ctx, rec.BackupID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || res.Actual != rec.Checksum {
		t.Errorf("VerifyBackup(intact) = %+v", res)
	}

	writeFile(t, rec.FilePath, "corrupted")
	res, err = m.VerifyBackup(ctx, rec.BackupID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.Actual == rec.Checksum {
		t.Errorf("VerifyBackup(corrupted) = %+v", res)
	}

	if err := os.Remove(rec.FilePath); err != nil {
		t.Fatal(err)
	}
	res, err = m.VerifyBackup(ctx, rec.BackupID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.Error == "" {
		t.Errorf("VerifyBackup(missing) = %+v", res)
	}

	if _, err := m.VerifyBackup(ctx, "full_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("VerifyBackup(unknown) error = %v, want ErrNotFound", err)
	}
}
