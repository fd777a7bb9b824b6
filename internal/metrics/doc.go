// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

/*
Package metrics provides Prometheus metrics for the backup engine.

Metrics are registered with the default registry through promauto and exposed
by `talon-backup serve` at /metrics:

	curl http://127.0.0.1:9187/metrics

# Available Metrics

Backup Metrics:
  - talon_backups_total: Finished backups (counter)
    Labels: type, method, status
  - talon_backup_duration_seconds: Backup wall time (histogram)
    Labels: type
  - talon_backup_size_bytes: Size of the last completed artifact (gauge)
    Labels: type
  - talon_last_backup_success_timestamp_seconds: Unix time of the last completed backup (gauge)
    Labels: type

Restore Metrics:
  - talon_restores_total: Finished restores (counter)
    Labels: status
  - talon_restore_duration_seconds: Restore wall time (histogram)

Engine Metrics:
  - talon_operations_in_flight: Running backups and restores (gauge)
    Labels: operation
  - talon_expired_backups_deleted_total: Backups removed by the expiry reaper (counter)
  - talon_expiry_errors_total: Reaper failures, sweep continues (counter)
  - talon_scheduler_ticks_total: Scheduler loop iterations (counter)
  - talon_scheduled_runs_skipped_total: Due jobs skipped because a run was in flight (counter)
    Labels: job
  - talon_reconcile_repairs_total: Startup reconciliation repairs (counter)
    Labels: kind (stale_row, orphan, temp_file)

# Usage

	start := time.Now()
	// ... run the backup ...
	metrics.RecordBackup("full", "scheduled", "completed", time.Since(start), size)
*/
package metrics
