// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

/*
manager_status.go - Status, Statistics, and Configuration

GetSystemStatus is computed on demand from the metadata store and the
filesystem; nothing is cached, so it always reflects the current state.
Disk usage is read with gopsutil for the filesystem holding backup_root.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/tomtom215/talon/internal/config"
	"github.com/tomtom215/talon/internal/database"
	"github.com/tomtom215/talon/internal/logging"
)

// DiskUsage describes the filesystem holding backup_root.
type DiskUsage struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// SystemStatus is the engine's aggregate status.
type SystemStatus struct {
	Timestamp        time.Time                    `json:"timestamp"`
	BackupRoot       string                       `json:"backup_root"`
	MetadataPath     string                       `json:"metadata_path"`
	Backups          *Summary                     `json:"backups"`
	Disk             *DiskUsage                   `json:"disk,omitempty"`
	DiskError        string                       `json:"disk_error,omitempty"`
	RetentionPolicy  config.RetentionPolicyConfig `json:"retention_policy"`
	ScheduleEnabled  bool                         `json:"schedule_enabled"`
	SchedulerRunning bool                         `json:"scheduler_running"`
	Jobs             []*ScheduledJob              `json:"jobs"`
	InFlight         int                          `json:"in_flight"`
}

// GetSystemStatus returns counts, sizes, the latest backup per type, disk
// usage, the retention policy and scheduler state.
func (m *Manager) GetSystemStatus(ctx context.Context) (*SystemStatus, error) {
	cfg := m.cfg.Get()

	summary, err := m.store.Summary(ctx)
	if err != nil {
		return nil, err
	}
	jobs, err := m.store.ListJobs(ctx, false)
	if err != nil {
		return nil, err
	}

	status := &SystemStatus{
		Timestamp:        m.clock(),
		BackupRoot:       m.repo.Root(),
		MetadataPath:     m.store.Path(),
		Backups:          summary,
		RetentionPolicy:  cfg.RetentionPolicy,
		ScheduleEnabled:  cfg.Schedule.Enabled,
		SchedulerRunning: m.IsSchedulerRunning(),
		Jobs:             jobs,
		InFlight:         m.inFlightCount(),
	}

	usage, err := disk.UsageWithContext(ctx, status.BackupRoot)
	if err != nil {
		// Disk usage is informational; the rest of the status is still useful.
		logging.Warn().Err(err).Str("path", status.BackupRoot).Msg("Failed to read disk usage")
		status.DiskError = err.Error()
	} else {
		status.Disk = &DiskUsage{
			Path:        usage.Path,
			TotalBytes:  usage.Total,
			UsedBytes:   usage.Used,
			FreeBytes:   usage.Free,
			UsedPercent: usage.UsedPercent,
		}
	}

	return status, nil
}

func (m *Manager) inFlightCount() int {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()
	return len(m.inflight)
}

// GetDatabaseStats returns size, table count and per-table row counts of the
// source database.
func (m *Manager) GetDatabaseStats(ctx context.Context) (*database.Stats, error) {
	cfg := m.cfg.Get()
	stats, err := m.newInspector(&cfg).Stats(ctx)
	if err != nil {
		return nil, &Error{Kind: KindMetadata, Op: "read database stats", ID: cfg.DBName, Err: err}
	}
	return stats, nil
}

// UpdateConfig merges partial into the configuration document and persists
// it atomically. An invalid or unknown key leaves the document unchanged.
func (m *Manager) UpdateConfig(_ context.Context, partial map[string]any) (bool, error) {
	if _, err := m.cfg.Update(partial); err != nil {
		return false, newError(KindConfiguration, "update configuration", err)
	}
	return true, nil
}

// Ping checks that the metadata store answers.
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.store.Ping(ctx); err != nil {
		return metadataError("ping metadata store", "", err)
	}
	return nil
}
