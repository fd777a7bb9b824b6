// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/talon/internal/backup"
	"github.com/tomtom215/talon/internal/database"
	"github.com/tomtom215/talon/internal/metrics"
)

type fakeEngine struct {
	pingErr   error
	status    *backup.SystemStatus
	statusErr error

	backups   []*backup.BackupRecord
	backupRes *backup.BackupResult
	restRes   *backup.RestoreResult
	cleanup   *backup.CleanupResult
	jobs      []*backup.ScheduledJob
	err       error

	gotType    backup.BackupType
	gotUser    string
	gotLimit   int
	gotStatus  backup.Status
	gotRestore backup.RestoreRequest
	gotJob     string
	gotEnabled bool
	gotConfig  map[string]any
	canceled   []string
}

func (f *fakeEngine) Ping(context.Context) error { return f.pingErr }

func (f *fakeEngine) GetSystemStatus(context.Context) (*backup.SystemStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeEngine) GetDatabaseStats(context.Context) (*database.Stats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &database.Stats{Database: "talon", TableCount: 2}, nil
}

func (f *fakeEngine) CreateBackup(_ context.Context, t backup.BackupType, _ backup.Method, user string) *backup.BackupResult {
	f.gotType, f.gotUser = t, user
	return f.backupRes
}

func (f *fakeEngine) ListBackups(_ context.Context, limit int, status backup.Status) ([]*backup.BackupRecord, error) {
	f.gotLimit, f.gotStatus = limit, status
	return f.backups, f.err
}

func (f *fakeEngine) GetBackupDetails(_ context.Context, id string) (*backup.BackupRecord, error) {
	for _, rec := range f.backups {
		if rec.BackupID == id {
			return rec, nil
		}
	}
	return nil, &backup.Error{Kind: backup.KindNotFound, Op: "get backup", ID: id}
}

func (f *fakeEngine) DeleteBackup(_ context.Context, id, user string) (bool, error) {
	f.gotUser = user
	_, err := f.GetBackupDetails(context.Background(), id)
	return err == nil, err
}

func (f *fakeEngine) CleanupExpired(context.Context) *backup.CleanupResult { return f.cleanup }

func (f *fakeEngine) VerifyBackup(_ context.Context, id string) (*backup.VerifyResult, error) {
	return &backup.VerifyResult{BackupID: id, Valid: true, Expected: "abc", Actual: "abc"}, nil
}

func (f *fakeEngine) CancelBackup(id string) bool {
	f.canceled = append(f.canceled, id)
	return id == "full_running"
}

func (f *fakeEngine) RestoreBackup(_ context.Context, req backup.RestoreRequest) *backup.RestoreResult {
	f.gotRestore = req
	return f.restRes
}

func (f *fakeEngine) ListRestores(_ context.Context, limit int) ([]*backup.RestoreRecord, error) {
	f.gotLimit = limit
	return nil, f.err
}

func (f *fakeEngine) CancelRestore(id string) bool {
	f.canceled = append(f.canceled, id)
	return false
}

func (f *fakeEngine) ListJobs(context.Context) ([]*backup.ScheduledJob, error) { return f.jobs, f.err }

func (f *fakeEngine) SetJobEnabled(_ context.Context, name string, enabled bool) error {
	f.gotJob, f.gotEnabled = name, enabled
	if name != "daily_full" {
		return &backup.Error{Kind: backup.KindNotFound, Op: "set job", ID: name}
	}
	return nil
}

func (f *fakeEngine) UpdateConfig(_ context.Context, partial map[string]any) (bool, error) {
	f.gotConfig = partial
	if _, ok := partial["no_such_key"]; ok {
		return false, &backup.Error{Kind: backup.KindConfiguration, Op: "update configuration", Err: errors.New("unknown configuration key: no_such_key")}
	}
	return true, nil
}

func serve(t *testing.T, engine Engine, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	return serveBody(t, engine, method, path, "")
}

func serveBody(t *testing.T, engine Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	NewRouter(NewHandler(engine)).ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) *Response {
	t.Helper()
	var raw struct {
		Status   string          `json:"status"`
		Data     json.RawMessage `json:"data"`
		Metadata Metadata        `json:"metadata"`
		Error    *APIError       `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("invalid JSON body %q: %v", rec.Body.String(), err)
	}
	if data != nil && len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, data); err != nil {
			t.Fatalf("invalid data: %v", err)
		}
	}
	return &Response{Status: raw.Status, Metadata: raw.Metadata, Error: raw.Error}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantCode   int
		wantStatus string
	}{
		{"store answers", nil, http.StatusOK, "healthy"},
		{"store down", errors.New("database is closed"), http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, &fakeEngine{pingErr: tt.pingErr}, http.MethodGet, "/healthz")
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var health HealthStatus
			decode(t, rec, &health)
			if health.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", health.Status, tt.wantStatus)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	engine := &fakeEngine{status: &backup.SystemStatus{
		BackupRoot: "/var/lib/talon/backups",
		Backups: &backup.Summary{
			TotalCount:    3,
			CountByStatus: map[backup.Status]int{backup.StatusCompleted: 2, backup.StatusFailed: 1},
		},
		ScheduleEnabled: true,
	}}

	rec := serve(t, engine, http.MethodGet, "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var got backup.SystemStatus
	resp := decode(t, rec, &got)
	if resp.Status != "success" || resp.Metadata.Timestamp.IsZero() {
		t.Errorf("envelope = %+v", resp)
	}
	if got.Backups.TotalCount != 3 || got.Backups.CountByStatus[backup.StatusFailed] != 1 || !got.ScheduleEnabled {
		t.Errorf("status = %+v", got)
	}
}

func TestStatusError(t *testing.T) {
	rec := serve(t, &fakeEngine{statusErr: errors.New("metadata: query failed")}, http.MethodGet, "/api/v1/status")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("code = %d, want 500", rec.Code)
	}
	resp := decode(t, rec, nil)
	if resp.Status != "error" || resp.Error == nil || resp.Error.Code != "INTERNAL_ERROR" {
		t.Errorf("envelope = %+v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.RecordSchedulerTick()

	rec := serve(t, &fakeEngine{}, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "talon_scheduler_ticks_total") {
		t.Error("talon metrics missing from exposition")
	}
}

func TestUnknownRoutes(t *testing.T) {
	if rec := serve(t, &fakeEngine{}, http.MethodGet, "/api/v1/nothing"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path code = %d, want 404", rec.Code)
	}
	rec := serve(t, &fakeEngine{}, http.MethodPost, "/api/v1/status")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST code = %d, want 405", rec.Code)
	}
	if resp := decode(t, rec, nil); resp.Error == nil || resp.Error.Code != "METHOD_NOT_ALLOWED" {
		t.Errorf("envelope = %+v", resp)
	}
}

func TestRequestMetricsUseRoutePattern(t *testing.T) {
	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/status", "200")
	before := testutil.ToFloat64(counter)

	serve(t, &fakeEngine{status: &backup.SystemStatus{}}, http.MethodGet, "/api/v1/status")

	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Errorf("http_requests_total{route=/api/v1/status} = %v, want %v", got, before+1)
	}
}
