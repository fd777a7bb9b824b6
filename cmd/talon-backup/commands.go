// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package main

import (
	"context"
	"os/user"
	"slices"
	"strings"

	"github.com/tomtom215/talon/internal/backup"
	"github.com/tomtom215/talon/internal/config"
)

// currentUser names the operator for created_by_user.
func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "cli"
}

func cmdBackup(ctx context.Context, e *env, args []string) error {
	fs := e.flags("backup")
	backupType := fs.String("type", string(backup.TypeFull), "full, incremental, differential, schema_only or data_only")
	method := fs.String("method", string(backup.MethodManual), "manual or scheduled")
	userName := fs.String("user", currentUser(), "recorded as created_by_user")
	const usage = "talon-backup backup [-type full] [-method manual] [-user name]"
	if err := parse(fs, args, usage); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return usagef(usage)
	}

	m, err := e.engine()
	if err != nil {
		return err
	}
	res := m.CreateBackup(ctx, backup.BackupType(*backupType), backup.Method(*method), *userName)
	if err := e.print(res); err != nil {
		return err
	}
	if !res.Success {
		return errFailed
	}
	return nil
}

func cmdList(ctx context.Context, e *env, args []string) error {
	fs := e.flags("list")
	limit := fs.Int("limit", 50, "maximum rows, 0 for all")
	status := fs.String("status", "", "running, completed or failed")
	const usage = "talon-backup list [-limit 50] [-status completed]"
	if err := parse(fs, args, usage); err != nil {
		return err
	}
	if fs.NArg() != 0 || *limit < 0 {
		return usagef(usage)
	}

	m, err := e.engine()
	if err != nil {
		return err
	}
	backups, err := m.ListBackups(ctx, *limit, backup.Status(*status))
	if err != nil {
		return err
	}
	if backups == nil {
		backups = []*backup.BackupRecord{}
	}
	return e.print(backups)
}

func cmdShow(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return usagef("talon-backup show <backup-id>")
	}
	m, err := e.engine()
	if err != nil {
		return err
	}
	rec, err := m.GetBackupDetails(ctx, args[0])
	if err != nil {
		return err
	}
	return e.print(rec)
}

func cmdDelete(ctx context.Context, e *env, args []string) error {
	fs := e.flags("delete")
	userName := fs.String("user", currentUser(), "logged with the deletion")
	const usage = "talon-backup delete [-user name] <backup-id>"
	if err := parse(fs, args, usage); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef(usage)
	}

	m, err := e.engine()
	if err != nil {
		return err
	}
	deleted, err := m.DeleteBackup(ctx, fs.Arg(0), *userName)
	if err != nil {
		return err
	}
	return e.print(map[string]any{"backup_id": fs.Arg(0), "deleted": deleted})
}

func cmdCleanup(ctx context.Context, e *env, args []string) error {
	if len(args) != 0 {
		return usagef("talon-backup cleanup")
	}
	m, err := e.engine()
	if err != nil {
		return err
	}
	res := m.CleanupExpired(ctx)
	if err := e.print(res); err != nil {
		return err
	}
	if len(res.Errors) > 0 {
		return errFailed
	}
	return nil
}

func cmdRestore(ctx context.Context, e *env, args []string) error {
	fs := e.flags("restore")
	target := fs.String("target", "", "target database (default: the configured source database)")
	restoreType := fs.String("type", string(backup.RestoreFull), "restore type (only full is implemented)")
	userName := fs.String("user", currentUser(), "recorded as created_by_user")
	const usage = "talon-backup restore [-target db] [-type full] [-user name] <backup-id>"
	if err := parse(fs, args, usage); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef(usage)
	}

	m, err := e.engine()
	if err != nil {
		return err
	}
	res := m.RestoreBackup(ctx, backup.RestoreRequest{
		BackupID:       fs.Arg(0),
		RestoreType:    backup.RestoreType(*restoreType),
		TargetDatabase: *target,
		User:           *userName,
	})
	if err := e.print(res); err != nil {
		return err
	}
	if !res.Success {
		return errFailed
	}
	return nil
}

func cmdRestores(ctx context.Context, e *env, args []string) error {
	fs := e.flags("restores")
	limit := fs.Int("limit", 50, "maximum rows, 0 for all")
	const usage = "talon-backup restores [-limit 50]"
	if err := parse(fs, args, usage); err != nil {
		return err
	}
	if fs.NArg() != 0 || *limit < 0 {
		return usagef(usage)
	}

	m, err := e.engine()
	if err != nil {
		return err
	}
	restores, err := m.ListRestores(ctx, *limit)
	if err != nil {
		return err
	}
	if restores == nil {
		restores = []*backup.RestoreRecord{}
	}
	return e.print(restores)
}

func cmdVerify(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return usagef("talon-backup verify <backup-id>")
	}
	m, err := e.engine()
	if err != nil {
		return err
	}
	res, err := m.VerifyBackup(ctx, args[0])
	if err != nil {
		return err
	}
	if err := e.print(res); err != nil {
		return err
	}
	if !res.Valid {
		return errFailed
	}
	return nil
}

func cmdReconcile(ctx context.Context, e *env, args []string) error {
	if len(args) != 0 {
		return usagef("talon-backup reconcile")
	}
	m, err := e.local()
	if err != nil {
		return err
	}
	res, err := m.Reconcile(ctx)
	if err != nil {
		return err
	}
	return e.print(res)
}

func cmdStatus(ctx context.Context, e *env, args []string) error {
	if len(args) != 0 {
		return usagef("talon-backup status")
	}
	m, err := e.engine()
	if err != nil {
		return err
	}
	status, err := m.GetSystemStatus(ctx)
	if err != nil {
		return err
	}
	return e.print(status)
}

func cmdDBStats(ctx context.Context, e *env, args []string) error {
	if len(args) != 0 {
		return usagef("talon-backup db-stats")
	}
	m, err := e.engine()
	if err != nil {
		return err
	}
	stats, err := m.GetDatabaseStats(ctx)
	if err != nil {
		return err
	}
	return e.print(stats)
}

func cmdConfig(ctx context.Context, e *env, args []string) error {
	const usage = "talon-backup config set key=value..."
	if len(args) < 2 || args[0] != "set" {
		return usagef(usage)
	}

	partial := make(map[string]any, len(args)-1)
	for _, kv := range args[1:] {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return usagef(usage)
		}
		typed, err := config.ParseValue(key, value)
		if err != nil {
			return err
		}
		partial[key] = typed
	}

	m, err := e.engine()
	if err != nil {
		return err
	}
	if _, err := m.UpdateConfig(ctx, partial); err != nil {
		return err
	}
	keys := make([]string, 0, len(partial))
	for key := range partial {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return e.print(map[string]any{"updated": keys, "path": e.configPath})
}

func cmdJobs(ctx context.Context, e *env, args []string) error {
	const usage = "talon-backup jobs [enable|disable <name>]"
	m, err := e.engine()
	if err != nil {
		return err
	}

	switch {
	case len(args) == 0:
		// The daemon prepares its own jobs at start and on schedule changes.
		if local, ok := m.(*backup.Manager); ok {
			if err := local.PrepareJobs(ctx); err != nil {
				return err
			}
		}
	case len(args) == 2 && (args[0] == "enable" || args[0] == "disable"):
		if err := m.SetJobEnabled(ctx, args[1], args[0] == "enable"); err != nil {
			return err
		}
	default:
		return usagef(usage)
	}

	jobs, err := m.ListJobs(ctx)
	if err != nil {
		return err
	}
	return e.print(jobs)
}
