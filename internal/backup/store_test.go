// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package backup

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), MetadataFileName))
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func registerRow(t *testing.T, s *Store, id string, createdAt time.Time) *BackupRecord {
	t.Helper()
	rec := &BackupRecord{
		BackupID:      id,
		BackupType:    TypeFull,
		Method:        MethodManual,
		FilePath:      "/backups/manual/full/" + id + ".sql",
		Status:        StatusRunning,
		CreatedAt:     createdAt,
		CreatedByUser: "tester",
	}
	if err := s.RegisterBackupStart(context.Background(), rec); err != nil {
		t.Fatalf("RegisterBackupStart(%s) error = %v", id, err)
	}
	return rec
}

func completeRow(t *testing.T, s *Store, id string, createdAt, expiresAt time.Time) {
	t.Helper()
	err := s.CompleteBackup(context.Background(), id, BackupCompletion{
		Status:            StatusCompleted,
		FilePath:          "/backups/manual/full/" + id + ".sql.gz",
		FileSize:          1234,
		Compressed:        true,
		Duration:          2 * time.Second,
		CompletedAt:       createdAt.Add(2 * time.Second),
		Checksum:          "b1946ac92492d2347c6235b4d2611184",
		RetentionCategory: RetentionDaily,
		ExpiresAt:         &expiresAt,
	})
	if err != nil {
		t.Fatalf("CompleteBackup(%s) error = %v", id, err)
	}
}

func TestStoreBackupLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := at(t, "2025-03-05 10:00")

	registerRow(t, s, "full_a", created)

	got, err := s.GetBackup(ctx, "full_a")
	if err != nil {
		t.Fatalf("GetBackup() error = %v", err)
	}
	if got.Status != StatusRunning || got.CompletedAt != nil || got.ExpiresAt != nil {
		t.Errorf("running row = %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}

	expires := created.AddDate(0, 0, 7)
	completeRow(t, s, "full_a", created, expires)

	got, err = s.GetBackup(ctx, "full_a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCompleted || !got.Compressed || got.FileSize != 1234 {
		t.Errorf("completed row = %+v", got)
	}
	if got.FilePath != "/backups/manual/full/full_a.sql.gz" {
		t.Errorf("FilePath = %s, want retargeted .gz path", got.FilePath)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, expires)
	}
	if got.DurationSeconds != 2 {
		t.Errorf("DurationSeconds = %v, want 2", got.DurationSeconds)
	}
}

func TestStoreTerminalRowsAreImmutable(t *testing.T) {
	s := newTestStore(t)
	created := at(t, "2025-03-05 10:00")
	registerRow(t, s, "full_a", created)
	completeRow(t, s, "full_a", created, created.AddDate(0, 0, 7))

	err := s.CompleteBackup(context.Background(), "full_a", BackupCompletion{
		Status:       StatusFailed,
		CompletedAt:  created,
		ErrorMessage: "late failure",
	})
	if !errors.Is(err, ErrMetadata) {
		t.Fatalf("CompleteBackup(terminal) error = %v, want metadata error", err)
	}

	got, _ := s.GetBackup(context.Background(), "full_a")
	if got.Status != StatusCompleted {
		t.Errorf("terminal row changed to %s", got.Status)
	}
}

func TestStoreRejectsDuplicateID(t *testing.T) {
	s := newTestStore(t)
	registerRow(t, s, "full_a", at(t, "2025-03-05 10:00"))

	err := s.RegisterBackupStart(context.Background(), &BackupRecord{
		BackupID:   "full_a",
		BackupType: TypeFull,
		Method:     MethodManual,
		FilePath:   "/elsewhere.sql",
		CreatedAt:  at(t, "2025-03-05 11:00"),
	})
	if err == nil {
		t.Fatal("RegisterBackupStart() accepted a duplicate id")
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := at(t, "2025-03-01 00:00")
	for i, id := range []string{"full_1", "full_2", "full_3"} {
		registerRow(t, s, id, base.Add(time.Duration(i)*time.Hour))
	}
	completeRow(t, s, "full_2", base.Add(time.Hour), base.AddDate(0, 0, 7))

	all, err := s.ListBackups(ctx, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].BackupID != "full_3" || all[2].BackupID != "full_1" {
		t.Errorf("ListBackups() order = %v", ids(all))
	}

	limited, err := s.ListBackups(ctx, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("ListBackups(limit=2) returned %d rows", len(limited))
	}

	completed, err := s.ListBackups(ctx, 0, StatusCompleted)
	if err != nil {
		t.Fatal(err)
	}
	if len(completed) != 1 || completed[0].BackupID != "full_2" {
		t.Errorf("ListBackups(completed) = %v", ids(completed))
	}

	running, err := s.ListRunning(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(running) != 2 {
		t.Errorf("ListRunning() = %v", ids(running))
	}
}

func TestStoreScanExpired(t *testing.T) {
	s := newTestStore(t)
	now := at(t, "2025-03-10 12:00")

	registerRow(t, s, "full_old", now.AddDate(0, 0, -8))
	completeRow(t, s, "full_old", now.AddDate(0, 0, -8), now.Add(-time.Hour))
	registerRow(t, s, "full_new", now.AddDate(0, 0, -1))
	completeRow(t, s, "full_new", now.AddDate(0, 0, -1), now.AddDate(0, 0, 6))
	registerRow(t, s, "full_running", now.AddDate(0, 0, -9))

	expired, err := s.ScanExpired(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(expired) != 1 || expired[0].BackupID != "full_old" {
		t.Errorf("ScanExpired() = %v, want [full_old]", ids(expired))
	}
}

func TestStoreDeleteBackup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := at(t, "2025-03-05 10:00")
	registerRow(t, s, "full_a", created)
	completeRow(t, s, "full_a", created, created.AddDate(0, 0, 7))

	restore := &RestoreRecord{
		RestoreID:      "restore_1",
		BackupID:       "full_a",
		RestoreType:    RestoreFull,
		TargetDatabase: "talon",
		CreatedAt:      created.Add(time.Hour),
	}
	if err := s.RegisterRestoreStart(ctx, restore); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteBackup(ctx, "full_a"); err != nil {
		t.Fatalf("DeleteBackup() error = %v", err)
	}
	if _, err := s.GetBackup(ctx, "full_a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetBackup(deleted) error = %v, want ErrNotFound", err)
	}
	restores, err := s.ListRestores(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(restores) != 0 {
		t.Errorf("restores referencing a deleted backup remain: %d", len(restores))
	}
	if err := s.DeleteBackup(ctx, "full_a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteBackup(again) error = %v, want ErrNotFound", err)
	}
}

func TestStoreRestoreRequiresCompletedBackup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := at(t, "2025-03-05 10:00")
	registerRow(t, s, "full_running", created)

	tests := []struct {
		name     string
		backupID string
		want     error
	}{
		{"running backup", "full_running", ErrValidation},
		{"missing backup", "full_missing", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.RegisterRestoreStart(ctx, &RestoreRecord{
				RestoreID:      "restore_" + tt.backupID,
				BackupID:       tt.backupID,
				RestoreType:    RestoreFull,
				TargetDatabase: "talon",
				CreatedAt:      created,
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("RegisterRestoreStart() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStoreRestoreLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := at(t, "2025-03-05 10:00")
	registerRow(t, s, "full_a", created)
	completeRow(t, s, "full_a", created, created.AddDate(0, 0, 7))

	rec := &RestoreRecord{
		RestoreID:      "restore_1",
		BackupID:       "full_a",
		RestoreType:    RestoreFull,
		TargetDatabase: "talon_copy",
		CreatedAt:      created.Add(time.Hour),
		CreatedByUser:  "ops",
	}
	if err := s.RegisterRestoreStart(ctx, rec); err != nil {
		t.Fatal(err)
	}

	running, err := s.ListRunningRestores(ctx)
	if err != nil || len(running) != 1 {
		t.Fatalf("ListRunningRestores() = %d rows, err %v", len(running), err)
	}

	if err := s.CompleteRestore(ctx, "restore_1", StatusFailed, 3*time.Second, rec.CreatedAt.Add(3*time.Second), ""); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteRestore(ctx, "restore_1", StatusCompleted, time.Second, rec.CreatedAt, ""); err == nil {
		t.Error("CompleteRestore() finalized a terminal row twice")
	}

	restores, err := s.ListRestores(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(restores) != 1 {
		t.Fatalf("ListRestores() = %d rows", len(restores))
	}
	got := restores[0]
	if got.Status != StatusFailed || got.ErrorMessage != "restore failed" || got.TargetDatabase != "talon_copy" {
		t.Errorf("restore row = %+v", got)
	}
}

func TestStoreSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := at(t, "2025-03-01 00:00")

	registerRow(t, s, "full_1", base)
	completeRow(t, s, "full_1", base, base.AddDate(0, 0, 7))
	registerRow(t, s, "full_2", base.Add(time.Hour))
	completeRow(t, s, "full_2", base.Add(time.Hour), base.AddDate(0, 0, 7))
	registerRow(t, s, "full_3", base.Add(2*time.Hour))

	sum, err := s.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.TotalCount != 3 {
		t.Errorf("TotalCount = %d, want 3", sum.TotalCount)
	}
	if sum.CountByStatus[StatusCompleted] != 2 || sum.CountByStatus[StatusRunning] != 1 {
		t.Errorf("CountByStatus = %v", sum.CountByStatus)
	}
	if sum.CompletedSizeBytes != 2468 {
		t.Errorf("CompletedSizeBytes = %d, want 2468", sum.CompletedSizeBytes)
	}
	if sum.CountByCategory[RetentionDaily] != 2 {
		t.Errorf("CountByCategory = %v", sum.CountByCategory)
	}
	recent := sum.RecentByType[TypeFull]
	if recent == nil || recent.BackupID != "full_2" {
		t.Errorf("RecentByType[full] = %+v, want full_2", recent)
	}
}

func TestStoreJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := &ScheduledJob{JobName: "daily_full", BackupType: TypeFull, SchedulePattern: "0 2 * * *", Enabled: true}
	inserted, err := s.EnsureJob(ctx, job)
	if err != nil || !inserted {
		t.Fatalf("EnsureJob() = %v, %v; want inserted", inserted, err)
	}
	inserted, err = s.EnsureJob(ctx, &ScheduledJob{JobName: "daily_full", BackupType: TypeFull, SchedulePattern: "5 5 * * *"})
	if err != nil || inserted {
		t.Fatalf("EnsureJob(existing) = %v, %v; want no insert", inserted, err)
	}

	last := at(t, "2025-03-05 02:00")
	next := at(t, "2025-03-06 02:00")
	if err := s.UpdateJobRun(ctx, "daily_full", &last, next); err != nil {
		t.Fatal(err)
	}
	if err := s.SetJobEnabled(ctx, "daily_full", false); err != nil {
		t.Fatal(err)
	}

	enabled, err := s.ListJobs(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(enabled) != 0 {
		t.Errorf("ListJobs(enabled) = %d jobs, want 0", len(enabled))
	}

	jobs, err := s.ListJobs(ctx, false)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("ListJobs() = %d jobs, err %v", len(jobs), err)
	}
	got := jobs[0]
	if got.SchedulePattern != "0 2 * * *" {
		t.Errorf("pattern = %q, EnsureJob must not overwrite", got.SchedulePattern)
	}
	if got.LastRun == nil || !got.LastRun.Equal(last) || got.NextRun == nil || !got.NextRun.Equal(next) {
		t.Errorf("last/next = %v/%v, want %v/%v", got.LastRun, got.NextRun, last, next)
	}

	if err := s.DeleteJob(ctx, "daily_full"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetJobEnabled(ctx, "daily_full", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetJobEnabled(deleted) error = %v, want ErrNotFound", err)
	}
}

func TestOpenStoreReopensExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), MetadataFileName)
	s, err := OpenStore(path)
	if err != nil {
		t.Fatal(err)
	}
	registerRow(t, s, "full_a", at(t, "2025-03-05 10:00"))
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore(existing) error = %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.GetBackup(context.Background(), "full_a"); err != nil {
		t.Errorf("row lost across reopen: %v", err)
	}
}

func ids(recs []*BackupRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.BackupID)
	}
	return out
}
