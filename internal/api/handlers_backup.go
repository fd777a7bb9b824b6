// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

/*
handlers_backup.go - Engine Endpoints

The daemon holds the metadata store exclusively, so while it runs these
routes are the only way to drive the engine:

	POST   /api/v1/backups                create a backup
	GET    /api/v1/backups                list (?limit=&status=)
	GET    /api/v1/backups/{id}           details
	DELETE /api/v1/backups/{id}           delete (?user=)
	POST   /api/v1/backups/{id}/restore   restore
	POST   /api/v1/backups/{id}/verify    re-digest the artifact
	POST   /api/v1/backups/{id}/cancel    cancel an in-flight backup
	POST   /api/v1/cleanup                sweep expired backups
	GET    /api/v1/restores               list (?limit=)
	POST   /api/v1/restores/{id}/cancel   cancel an in-flight restore
	GET    /api/v1/jobs                   scheduled jobs
	PUT    /api/v1/jobs/{name}            enable or disable a job
	PUT    /api/v1/config                 partial configuration update
	GET    /api/v1/database/stats         source database statistics

Backups and restores run on the request goroutine; the request context
cancels them when the client goes away.
*/

//nolint:staticcheck // File documentation, not package doc
package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/talon/internal/backup"
	"github.com/tomtom215/talon/internal/validation"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// CreateBackupRequest is the body of POST /api/v1/backups.
type CreateBackupRequest struct {
	Type   string `json:"type" validate:"omitempty,oneof=full incremental differential schema_only data_only"`
	Method string `json:"method" validate:"omitempty,oneof=manual scheduled"`
	User   string `json:"user" validate:"max=128"`
}

// RestoreBackupRequest is the body of POST /api/v1/backups/{id}/restore.
type RestoreBackupRequest struct {
	RestoreType    string `json:"restore_type" validate:"omitempty,oneof=full selective point_in_time"`
	TargetDatabase string `json:"target_database" validate:"max=63"`
	User           string `json:"user" validate:"max=128"`
}

// SetJobRequest is the body of PUT /api/v1/jobs/{name}.
type SetJobRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// UpdateConfigRequest is the body of PUT /api/v1/config. Keys may be dotted
// paths or nested maps.
type UpdateConfigRequest struct {
	Values map[string]any `json:"values" validate:"required,min=1"`
}

// CancelResponse reports whether a run was found and canceled.
type CancelResponse struct {
	ID       string `json:"id"`
	Canceled bool   `json:"canceled"`
}

// DeleteResponse is the data of DELETE /api/v1/backups/{id}.
type DeleteResponse struct {
	BackupID string `json:"backup_id"`
	Deleted  bool   `json:"deleted"`
}

// decodeBody reads a JSON body into dst and validates it. An empty body
// leaves dst at its zero value. On failure the 400 response is already sent.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	if err := validation.ValidateStruct(dst); err != nil {
		respondError(w, http.StatusBadRequest, kindCode(backup.KindValidation), err.Error())
		return false
	}
	return true
}

// queryLimit parses ?limit=, defaulting to def. Negative or malformed values
// are rejected.
func queryLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(w, http.StatusBadRequest, kindCode(backup.KindValidation), "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}

// CreateBackup runs a backup to completion.
func (h *Handler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	var req CreateBackupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Type == "" {
		req.Type = string(backup.TypeFull)
	}
	if req.Method == "" {
		req.Method = string(backup.MethodManual)
	}
	if req.User == "" {
		req.User = "api"
	}

	res := h.engine.CreateBackup(r.Context(), backup.BackupType(req.Type), backup.Method(req.Method), req.User)
	respondResult(w, true, res, res.Success, res.ErrorKind, res.Error)
}

// ListBackups lists backups newest first.
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, 50)
	if !ok {
		return
	}
	backups, err := h.engine.ListBackups(r.Context(), limit, backup.Status(r.URL.Query().Get("status")))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	if backups == nil {
		backups = []*backup.BackupRecord{}
	}
	respondSuccess(w, backups)
}

// GetBackup returns one backup row.
func (h *Handler) GetBackup(w http.ResponseWriter, r *http.Request) {
	rec, err := h.engine.GetBackupDetails(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondSuccess(w, rec)
}

// DeleteBackup removes a backup's artifact and row.
func (h *Handler) DeleteBackup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user := r.URL.Query().Get("user")
	if user == "" {
		user = "api"
	}
	deleted, err := h.engine.DeleteBackup(r.Context(), id, user)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondSuccess(w, DeleteResponse{BackupID: id, Deleted: deleted})
}

// RestoreBackup loads a backup into its target.
func (h *Handler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	var req RestoreBackupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.User == "" {
		req.User = "api"
	}

	res := h.engine.RestoreBackup(r.Context(), backup.RestoreRequest{
		BackupID:       chi.URLParam(r, "id"),
		RestoreType:    backup.RestoreType(req.RestoreType),
		TargetDatabase: req.TargetDatabase,
		User:           req.User,
	})
	respondResult(w, true, res, res.Success, res.ErrorKind, res.Error)
}

// VerifyBackup re-digests an artifact. A mismatch is reported in the data,
// not as an error.
func (h *Handler) VerifyBackup(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.VerifyBackup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondSuccess(w, res)
}

// CancelBackup cancels an in-flight backup.
func (h *Handler) CancelBackup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	respondSuccess(w, CancelResponse{ID: id, Canceled: h.engine.CancelBackup(id)})
}

// CancelRestore cancels an in-flight restore.
func (h *Handler) CancelRestore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	respondSuccess(w, CancelResponse{ID: id, Canceled: h.engine.CancelRestore(id)})
}

// Cleanup sweeps expired backups.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	res := h.engine.CleanupExpired(r.Context())
	msg := ""
	if len(res.Errors) > 0 {
		msg = fmt.Sprintf("%d expired backups could not be removed", len(res.Errors))
	}
	respondResult(w, false, res, len(res.Errors) == 0, backup.KindFilesystem, msg)
}

// ListRestores lists restores newest first.
func (h *Handler) ListRestores(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, 50)
	if !ok {
		return
	}
	restores, err := h.engine.ListRestores(r.Context(), limit)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	if restores == nil {
		restores = []*backup.RestoreRecord{}
	}
	respondSuccess(w, restores)
}

// ListJobs lists scheduled jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.engine.ListJobs(r.Context())
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*backup.ScheduledJob{}
	}
	respondSuccess(w, jobs)
}

// SetJob enables or disables a scheduled job and returns the job list.
func (h *Handler) SetJob(w http.ResponseWriter, r *http.Request) {
	var req SetJobRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.engine.SetJobEnabled(r.Context(), chi.URLParam(r, "name"), *req.Enabled); err != nil {
		respondEngineError(w, r, err)
		return
	}
	h.ListJobs(w, r)
}

// UpdateConfig merges values into the configuration document.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req UpdateConfigRequest
	if !decodeBody(w, r, &req) {
		return
	}
	updated, err := h.engine.UpdateConfig(r.Context(), req.Values)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondSuccess(w, map[string]bool{"updated": updated})
}
