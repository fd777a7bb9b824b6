// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/talon/internal/backup"
	"github.com/tomtom215/talon/internal/database"
	"github.com/tomtom215/talon/internal/logging"
)

// Engine is the backup engine API. *backup.Manager implements it in process
// and *Client implements it against a running daemon.
type Engine interface {
	Ping(ctx context.Context) error
	GetSystemStatus(ctx context.Context) (*backup.SystemStatus, error)
	GetDatabaseStats(ctx context.Context) (*database.Stats, error)

	CreateBackup(ctx context.Context, backupType backup.BackupType, method backup.Method, user string) *backup.BackupResult
	ListBackups(ctx context.Context, limit int, status backup.Status) ([]*backup.BackupRecord, error)
	GetBackupDetails(ctx context.Context, id string) (*backup.BackupRecord, error)
	DeleteBackup(ctx context.Context, id, user string) (bool, error)
	CleanupExpired(ctx context.Context) *backup.CleanupResult
	VerifyBackup(ctx context.Context, id string) (*backup.VerifyResult, error)
	CancelBackup(id string) bool

	RestoreBackup(ctx context.Context, req backup.RestoreRequest) *backup.RestoreResult
	ListRestores(ctx context.Context, limit int) ([]*backup.RestoreRecord, error)
	CancelRestore(id string) bool

	ListJobs(ctx context.Context) ([]*backup.ScheduledJob, error)
	SetJobEnabled(ctx context.Context, name string, enabled bool) error
	UpdateConfig(ctx context.Context, partial map[string]any) (bool, error)
}

var _ Engine = (*backup.Manager)(nil)

// Handler serves the operator endpoints.
type Handler struct {
	engine    Engine
	startedAt time.Time
}

// NewHandler creates a handler over engine.
func NewHandler(engine Engine) *Handler {
	return &Handler{engine: engine, startedAt: time.Now()}
}

// HealthStatus is the /healthz payload.
type HealthStatus struct {
	Status        string  `json:"status"`
	MetadataStore string  `json:"metadata_store"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Health reports liveness. The daemon is degraded, and the answer is 503,
// when the metadata store does not answer a ping.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := HealthStatus{
		Status:        "healthy",
		MetadataStore: "ok",
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
	}
	status := http.StatusOK
	if err := h.engine.Ping(ctx); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Health check failed")
		health.Status = "degraded"
		health.MetadataStore = err.Error()
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, &Response{
		Status:   "success",
		Data:     health,
		Metadata: Metadata{Timestamp: time.Now().UTC()},
	})
}

// Status returns the engine status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.GetSystemStatus(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to build system status")
		respondEngineError(w, r, err)
		return
	}
	respondSuccess(w, status)
}

// DatabaseStats returns size and row counts of the source database.
func (h *Handler) DatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.GetDatabaseStats(r.Context())
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondSuccess(w, stats)
}
