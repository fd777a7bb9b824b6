// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRestoreBackupCompressed(t *testing.T) {
	env := newTestEnv(t)
	m := env.newTestManager(t)
	rec := env.createCompleted(t, m)

	res := m.RestoreBackup(context.Background(), RestoreRequest{BackupID: rec.BackupID, User: "ops"})
	if !res.Success {
		t.Fatalf("RestoreBackup() failed: %s", res.Error)
	}
	if res.TargetDatabase != "talon" {
		t.Errorf("TargetDatabase = %s, want the source database", res.TargetDatabase)
	}

	if got := env.readControl(t, "restored.sql"); got != sampleDump {
		t.Errorf("loaded SQL differs from the dump:\n%s", got)
	}
	args := env.readControl(t, "load_args")
	for _, want := range []string{"ON_ERROR_STOP=1", "--no-password", "talon"} {
		if !containsArg(args, want) {
			t.Errorf("psql argv %q missing %s", args, want)
		}
	}
	if strings.Contains(args, testPassword) {
		t.Error("password found on psql argv")
	}
	if got := env.readControl(t, "load_password"); got != testPassword {
		t.Errorf("PGPASSWORD = %q, want %q", got, testPassword)
	}
	if files := filesUnder(t, m.Repository().TempDir()); len(files) != 0 {
		t.Errorf("temp files left after restore: %v", files)
	}
	if len(env.inspector.ensured) != 0 {
		t.Errorf("EnsureDatabase called for the source database: %v", env.inspector.ensured)
	}

	restores, err := m.ListRestores(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(restores) != 1 || restores[0].Status != StatusCompleted || restores[0].CreatedByUser != "ops" {
		t.Errorf("restore rows = %+v", restores)
	}
}

func TestRestoreBackupAlternateTarget(t *testing.T) {
	env := newTestEnv(t)
	m := env.newTestManager(t)
	rec := env.createCompleted(t, m)

	res := m.RestoreBackup(context.Background(), RestoreRequest{
		BackupID:       rec.BackupID,
		RestoreType:    RestoreFull,
		TargetDatabase: "talon_staging",
	})
	if !res.Success {
		t.Fatalf("RestoreBackup() failed: %s", res.Error)
	}
	if len(env.inspector.ensured) != 1 || env.inspector.ensured[0] != "talon_staging" {
		t.Errorf("EnsureDatabase calls = %v, want [talon_staging]", env.inspector.ensured)
	}
	if !containsArg(env.readControl(t, "load_args"), "talon_staging") {
		t.Error("psql not pointed at the alternate target")
	}
}

func TestRestoreBackupRejectsConnectionStringTargets(t *testing.T) {
	env := newTestEnv(t)
	m := env.newTestManager(t)
	rec := env.createCompleted(t, m)

	targets := []string{
		"postgresql://attacker.invalid/x",
		"postgres://attacker.invalid/x",
		"POSTGRESQL:dbname=x",
		"dbname=x host=attacker.invalid",
		"host=attacker.invalid",
		"-hattacker.invalid",
		"talon\nhost",
		"talon\x00",
		strings.Repeat("a", 64),
	}
	for _, target := range targets {
		t.Run(target, func(t *testing.T) {
			res := m.RestoreBackup(context.Background(), RestoreRequest{
				BackupID:       rec.BackupID,
				TargetDatabase: target,
			})
			if res.Success || res.ErrorKind != KindValidation {
				t.Errorf("result = %+v, want validation failure", res)
			}
		})
	}

	if len(env.inspector.ensured) != 0 {
		t.Errorf("EnsureDatabase called for rejected targets: %v", env.inspector.ensured)
	}
	if _, err := os.Stat(filepath.Join(env.ctlDir, "load_args")); !os.IsNotExist(err) {
		t.Errorf("psql ran for a rejected target: %v", err)
	}
	if restores, _ := m.ListRestores(context.Background(), 0); len(restores) != 0 {
		t.Errorf("rejected targets registered %d restore rows", len(restores))
	}

	for _, ok := range []string{"talon_staging", "Talon Copy", "talon-2025"} {
		if err := validateTargetDatabase(ok); err != nil {
			t.Errorf("validateTargetDatabase(%q) = %v, want nil", ok, err)
		}
	}
}

func TestRestoreBackupLoadFailure(t *testing.T) {
	env := newTestEnv(t)
	m := env.newTestManager(t)
	rec := env.createCompleted(t, m)
	env.setControl(t, "load_fail", true)

	res := m.RestoreBackup(context.Background(), RestoreRequest{BackupID: rec.BackupID})
	if res.Success {
		t.Fatal("RestoreBackup() succeeded with a failing psql")
	}
	if res.ErrorKind != KindRestore || !strings.Contains(res.Error, "already exists") {
		t.Errorf("result = %+v, want restore error carrying stderr", res)
	}

	restores, err := m.ListRestores(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(restores) != 1 || restores[0].Status != StatusFailed || !strings.Contains(restores[0].ErrorMessage, "already exists") {
		t.Errorf("restore rows = %+v", restores)
	}
	if files := filesUnder(t, m.Repository().TempDir()); len(files) != 0 {
		t.Errorf("temp files left after failed restore: %v", files)
	}
}

func TestRestoreBackupRejections(t *testing.T) {
	env := newTestEnv(t)
	m := env.newTestManager(t)
	rec := env.createCompleted(t, m)

	env.setControl(t, "dump_fail", true)
	failed := m.CreateBackup(context.Background(), TypeFull, MethodManual, "u1")

	tests := []struct {
		name     string
		req      RestoreRequest
		wantKind ErrorKind
	}{
		{"selective", RestoreRequest{BackupID: rec.BackupID, RestoreType: RestoreSelective}, KindValidation},
		{"point in time", RestoreRequest{BackupID: rec.BackupID, RestoreType: RestorePointInTime}, KindValidation},
		{"unknown type", RestoreRequest{BackupID: rec.BackupID, RestoreType: "partial"}, KindValidation},
		{"missing backup", RestoreRequest{BackupID: "full_missing"}, KindNotFound},
		{"failed backup", RestoreRequest{BackupID: failed.BackupID}, KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := m.RestoreBackup(context.Background(), tt.req)
			if res.Success || res.ErrorKind != tt.wantKind {
				t.Errorf("result = %+v, want %s failure", res, tt.wantKind)
			}
		})
	}

	restores, err := m.ListRestores(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(restores) != 0 {
		t.Errorf("rejected restores registered %d rows", len(restores))
	}
}

func TestRestoreBackupMissingArtifact(t *testing.T) {
	env := newTestEnv(t)
	m := env.newTestManager(t)
	rec := env.createCompleted(t, m)

	if err := os.Remove(rec.FilePath); err != nil {
		t.Fatal(err)
	}

	res := m.RestoreBackup(context.Background(), RestoreRequest{BackupID: rec.BackupID})
	if res.Success || res.ErrorKind != KindNotFound {
		t.Errorf("result = %+v, want not_found failure", res)
	}
}

func TestRestoreBackupChecksumMismatch(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.newTestConfig(t)
	if _, err := cfg.Update(map[string]any{"compression": map[string]any{"enabled": false}}); err != nil {
		t.Fatal(err)
	}
	m := env.newTestManagerWith(t, cfg)
	rec := env.createCompleted(t, m)

	writeFile(t, rec.FilePath, sampleDump+"DROP TABLE entities;\n")

	res := m.RestoreBackup(context.Background(), RestoreRequest{BackupID: rec.BackupID})
	if res.Success {
		t.Fatal("RestoreBackup() loaded a tampered artifact")
	}
	if !strings.Contains(res.Error, "checksum mismatch") {
		t.Errorf("Error = %q, want checksum mismatch", res.Error)
	}
	if fileExists(env.ctlDir + "/restored.sql") {
		t.Error("psql ran on a tampered artifact")
	}
}
