// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package api

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/tomtom215/talon/internal/backup"
)

func newTestClient(t *testing.T, engine *fakeEngine) *Client {
	t.Helper()
	srv := httptest.NewServer(NewRouter(NewHandler(engine)))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.Client())
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"127.0.0.1:9187", "http://127.0.0.1:9187"},
		{":9187", "http://127.0.0.1:9187"},
		{"0.0.0.0:9187", "http://127.0.0.1:9187"},
		{"[::]:9187", "http://127.0.0.1:9187"},
		{"backup-host:80", "http://backup-host:80"},
	}
	for _, tt := range tests {
		if got := BaseURL(tt.addr); got != tt.want {
			t.Errorf("BaseURL(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{
		backups:   []*backup.BackupRecord{completedRecord("full_a")},
		backupRes: &backup.BackupResult{Success: true, BackupID: "full_b", DurationSeconds: 1.5},
		restRes:   &backup.RestoreResult{Success: true, RestoreID: "restore_x", BackupID: "full_a"},
		cleanup:   &backup.CleanupResult{DeletedCount: 1},
		jobs:      []*backup.ScheduledJob{{JobName: "daily_full", SchedulePattern: "0 2 * * *", Enabled: true}},
		status:    &backup.SystemStatus{BackupRoot: "/srv/backups"},
	}
	c := newTestClient(t, engine)

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	res := c.CreateBackup(ctx, backup.TypeFull, backup.MethodManual, "ops")
	if !res.Success || res.BackupID != "full_b" || res.Duration.Seconds() != 1.5 {
		t.Errorf("CreateBackup() = %+v", res)
	}
	if engine.gotUser != "ops" {
		t.Errorf("daemon saw user %q", engine.gotUser)
	}

	list, err := c.ListBackups(ctx, 10, backup.StatusCompleted)
	if err != nil || len(list) != 1 || engine.gotLimit != 10 {
		t.Errorf("ListBackups() = %d rows, %v (limit %d)", len(list), err, engine.gotLimit)
	}

	rec, err := c.GetBackupDetails(ctx, "full_a")
	if err != nil || rec.BackupID != "full_a" {
		t.Errorf("GetBackupDetails() = %+v, %v", rec, err)
	}

	deleted, err := c.DeleteBackup(ctx, "full_a", "ops")
	if err != nil || !deleted {
		t.Errorf("DeleteBackup() = %v, %v", deleted, err)
	}

	restored := c.RestoreBackup(ctx, backup.RestoreRequest{BackupID: "full_a", TargetDatabase: "talon_staging", User: "ops"})
	if !restored.Success || engine.gotRestore.TargetDatabase != "talon_staging" {
		t.Errorf("RestoreBackup() = %+v, daemon saw %+v", restored, engine.gotRestore)
	}

	if swept := c.CleanupExpired(ctx); swept.DeletedCount != 1 || len(swept.Errors) != 0 {
		t.Errorf("CleanupExpired() = %+v", swept)
	}

	if !c.CancelBackup("full_running") || c.CancelRestore("restore_idle") {
		t.Error("cancel answers not carried through")
	}

	if err := c.SetJobEnabled(ctx, "daily_full", false); err != nil || engine.gotEnabled {
		t.Errorf("SetJobEnabled() = %v, daemon saw enabled=%v", err, engine.gotEnabled)
	}
	jobs, err := c.ListJobs(ctx)
	if err != nil || len(jobs) != 1 {
		t.Errorf("ListJobs() = %d, %v", len(jobs), err)
	}

	updated, err := c.UpdateConfig(ctx, map[string]any{"db_password": "007"})
	if err != nil || !updated || engine.gotConfig["db_password"] != "007" {
		t.Errorf("UpdateConfig() = %v, %v; daemon saw %#v", updated, err, engine.gotConfig)
	}

	status, err := c.GetSystemStatus(ctx)
	if err != nil || status.BackupRoot != "/srv/backups" {
		t.Errorf("GetSystemStatus() = %+v, %v", status, err)
	}
}

func TestClientCarriesErrorKinds(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{backupRes: &backup.BackupResult{BackupID: "full_b", Error: "pg_dump exited 1", ErrorKind: backup.KindDump}}
	c := newTestClient(t, engine)

	if _, err := c.GetBackupDetails(ctx, "full_missing"); !errors.Is(err, backup.ErrNotFound) {
		t.Errorf("GetBackupDetails() error = %v, want not found", err)
	}
	if err := c.SetJobEnabled(ctx, "hourly_full", true); backup.KindOf(err) != backup.KindNotFound {
		t.Errorf("SetJobEnabled() kind = %q", backup.KindOf(err))
	}
	if _, err := c.UpdateConfig(ctx, map[string]any{"no_such_key": 1}); backup.KindOf(err) != backup.KindConfiguration {
		t.Errorf("UpdateConfig() kind = %q", backup.KindOf(err))
	}

	res := c.CreateBackup(ctx, backup.TypeFull, backup.MethodManual, "ops")
	if res.Success || res.BackupID != "full_b" || res.ErrorKind != backup.KindDump || res.Error != "pg_dump exited 1" {
		t.Errorf("CreateBackup() = %+v", res)
	}
}

func TestClientWithoutDaemon(t *testing.T) {
	srv := httptest.NewServer(NewRouter(NewHandler(&fakeEngine{})))
	url := srv.URL
	srv.Close()

	c := NewClient(url, nil)
	if err := c.Ping(context.Background()); err == nil {
		t.Error("Ping() = nil error with no daemon listening")
	}
	res := c.CreateBackup(context.Background(), backup.TypeFull, backup.MethodManual, "ops")
	if res.Success || res.Error == "" {
		t.Errorf("CreateBackup() = %+v, want a failure result", res)
	}
	if c.CancelBackup("full_running") {
		t.Error("CancelBackup() = true with no daemon listening")
	}
}
