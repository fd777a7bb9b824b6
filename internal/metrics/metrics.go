// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "talon"

var (
	// Backup Metrics
	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Total number of finished backups",
		},
		[]string{"type", "method", "status"},
	)

	BackupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Backup duration in seconds, dump through finalization",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"type"},
	)

	BackupSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backup_size_bytes",
			Help:      "Size of the most recent completed artifact",
		},
		[]string{"type"},
	)

	LastBackupSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_backup_success_timestamp_seconds",
			Help:      "Unix timestamp of the most recent completed backup",
		},
		[]string{"type"},
	)

	// Restore Metrics
	RestoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restores_total",
			Help:      "Total number of finished restores",
		},
		[]string{"status"},
	)

	RestoreDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "restore_duration_seconds",
			Help:      "Restore duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	// Engine Metrics
	OperationsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "operations_in_flight",
			Help:      "Current number of running backups and restores",
		},
		[]string{"operation"}, // "backup", "restore"
	)

	ExpiredBackupsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_backups_deleted_total",
			Help:      "Total number of backups removed by the expiry reaper",
		},
	)

	ExpiryErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expiry_errors_total",
			Help:      "Total number of failures while removing expired backups",
		},
	)

	SchedulerTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_total",
			Help:      "Total number of scheduler loop iterations",
		},
	)

	ScheduledRunsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_runs_skipped_total",
			Help:      "Due jobs skipped because a previous run was still in flight",
		},
		[]string{"job"},
	)

	ReconcileRepairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_repairs_total",
			Help:      "Total number of repairs made by startup reconciliation",
		},
		[]string{"kind"}, // "stale_row", "orphan", "temp_file"
	)

	// Operator endpoint Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of operator endpoint requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Operator endpoint request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// RecordBackup records a finished backup. size is ignored unless status is "completed".
func RecordBackup(backupType, method, status string, duration time.Duration, size int64) {
	BackupsTotal.WithLabelValues(backupType, method, status).Inc()
	BackupDuration.WithLabelValues(backupType).Observe(duration.Seconds())

	if status == "completed" {
		BackupSize.WithLabelValues(backupType).Set(float64(size))
		LastBackupSuccess.WithLabelValues(backupType).SetToCurrentTime()
	}
}

// RecordRestore records a finished restore.
func RecordRestore(status string, duration time.Duration) {
	RestoresTotal.WithLabelValues(status).Inc()
	RestoreDuration.Observe(duration.Seconds())
}

// TrackInFlight increments or decrements the in-flight gauge for operation.
func TrackInFlight(operation string, inc bool) {
	if inc {
		OperationsInFlight.WithLabelValues(operation).Inc()
	} else {
		OperationsInFlight.WithLabelValues(operation).Dec()
	}
}

// RecordExpirySweep records one pass of the expiry reaper.
func RecordExpirySweep(deleted, failed int) {
	ExpiredBackupsDeleted.Add(float64(deleted))
	ExpiryErrors.Add(float64(failed))
}

// RecordSchedulerTick records one scheduler loop iteration.
func RecordSchedulerTick() {
	SchedulerTicks.Inc()
}

// RecordScheduledRunSkipped records a due job that was not started.
func RecordScheduledRunSkipped(job string) {
	ScheduledRunsSkipped.WithLabelValues(job).Inc()
}

// RecordReconcile records the repairs of one reconciliation pass.
func RecordReconcile(staleRows, orphans, tempFiles int) {
	ReconcileRepairs.WithLabelValues("stale_row").Add(float64(staleRows))
	ReconcileRepairs.WithLabelValues("orphan").Add(float64(orphans))
	ReconcileRepairs.WithLabelValues("temp_file").Add(float64(tempFiles))
}

// RecordHTTPRequest records one operator endpoint request. route is the
// matched pattern, never the raw path, to bound label cardinality.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
