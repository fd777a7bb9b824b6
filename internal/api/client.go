// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/talon/internal/backup"
	"github.com/tomtom215/talon/internal/database"
)

// Client drives a running daemon over its HTTP API. Engine errors come back
// as *backup.Error with the kind the daemon reported.
type Client struct {
	baseURL string
	hc      *http.Client
}

var _ Engine = (*Client)(nil)

// NewClient creates a client for the daemon at baseURL. A nil hc uses a
// client without a timeout, since backups run on the request.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), hc: hc}
}

// BaseURL turns a listen address into the URL a local client dials.
// Wildcard hosts are dialed on loopback.
func BaseURL(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "http://" + listenAddr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *APIError       `json:"error"`
}

// do sends one request and decodes the envelope's data into out. When the
// daemon answers with an error envelope, data is still decoded and the
// returned error carries the reported kind.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &backup.Error{Kind: backup.KindValidation, Op: op, Err: err}
		}
		reader = bytes.NewReader(buf)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &backup.Error{Kind: backup.KindConfiguration, Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return &backup.Error{Kind: backup.KindCanceled, Op: op, Err: ctx.Err()}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 32<<20)).Decode(&env); err != nil {
		return fmt.Errorf("%s: decode response (HTTP %d): %w", op, resp.StatusCode, err)
	}
	if out != nil && len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s: decode data: %w", op, err)
		}
	}
	if env.Status != "success" {
		if env.Error == nil {
			return fmt.Errorf("%s: HTTP %d", op, resp.StatusCode)
		}
		return &backup.Error{Kind: codeKind(env.Error.Code), Op: op, Err: errors.New(env.Error.Message)}
	}
	return nil
}

// Ping checks that the daemon answers and its metadata store is healthy.
func (c *Client) Ping(ctx context.Context) error {
	var health HealthStatus
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, &health); err != nil {
		return err
	}
	if health.Status != "healthy" {
		return fmt.Errorf("daemon is %s: %s", health.Status, health.MetadataStore)
	}
	return nil
}

func (c *Client) GetSystemStatus(ctx context.Context) (*backup.SystemStatus, error) {
	var status backup.SystemStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) GetDatabaseStats(ctx context.Context) (*database.Stats, error) {
	var stats database.Stats
	if err := c.do(ctx, http.MethodGet, "/api/v1/database/stats", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// CreateBackup asks the daemon to run a backup and waits for it to finish.
func (c *Client) CreateBackup(ctx context.Context, backupType backup.BackupType, method backup.Method, user string) *backup.BackupResult {
	start := time.Now()
	var res backup.BackupResult
	err := c.do(ctx, http.MethodPost, "/api/v1/backups", nil,
		CreateBackupRequest{Type: string(backupType), Method: string(method), User: user}, &res)
	if err != nil {
		res.Success = false
		if res.Error == "" {
			res.Error = err.Error()
			res.ErrorKind = backup.KindOf(err)
		}
		if res.DurationSeconds == 0 {
			res.DurationSeconds = time.Since(start).Seconds()
		}
	}
	res.Duration = time.Duration(res.DurationSeconds * float64(time.Second))
	return &res
}

func (c *Client) ListBackups(ctx context.Context, limit int, status backup.Status) ([]*backup.BackupRecord, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if status != "" {
		q.Set("status", string(status))
	}
	var backups []*backup.BackupRecord
	if err := c.do(ctx, http.MethodGet, "/api/v1/backups", q, nil, &backups); err != nil {
		return nil, err
	}
	return backups, nil
}

func (c *Client) GetBackupDetails(ctx context.Context, id string) (*backup.BackupRecord, error) {
	var rec backup.BackupRecord
	if err := c.do(ctx, http.MethodGet, "/api/v1/backups/"+url.PathEscape(id), nil, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) DeleteBackup(ctx context.Context, id, user string) (bool, error) {
	var res DeleteResponse
	err := c.do(ctx, http.MethodDelete, "/api/v1/backups/"+url.PathEscape(id), url.Values{"user": {user}}, nil, &res)
	if err != nil {
		return false, err
	}
	return res.Deleted, nil
}

// CleanupExpired runs a sweep on the daemon. A transport failure is reported
// in Errors.
func (c *Client) CleanupExpired(ctx context.Context) *backup.CleanupResult {
	var res backup.CleanupResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/cleanup", nil, nil, &res); err != nil && len(res.Errors) == 0 {
		res.Errors = []string{err.Error()}
	}
	return &res
}

func (c *Client) VerifyBackup(ctx context.Context, id string) (*backup.VerifyResult, error) {
	var res backup.VerifyResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/backups/"+url.PathEscape(id)+"/verify", nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CancelBackup asks the daemon to cancel an in-flight backup. It reports
// false when the daemon cannot be reached.
func (c *Client) CancelBackup(id string) bool {
	return c.cancel("/api/v1/backups/" + url.PathEscape(id) + "/cancel")
}

func (c *Client) CancelRestore(id string) bool {
	return c.cancel("/api/v1/restores/" + url.PathEscape(id) + "/cancel")
}

func (c *Client) cancel(path string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var res CancelResponse
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &res); err != nil {
		return false
	}
	return res.Canceled
}

// RestoreBackup asks the daemon to restore and waits for it to finish.
func (c *Client) RestoreBackup(ctx context.Context, req backup.RestoreRequest) *backup.RestoreResult {
	start := time.Now()
	res := backup.RestoreResult{BackupID: req.BackupID}
	err := c.do(ctx, http.MethodPost, "/api/v1/backups/"+url.PathEscape(req.BackupID)+"/restore", nil,
		RestoreBackupRequest{
			RestoreType:    string(req.RestoreType),
			TargetDatabase: req.TargetDatabase,
			User:           req.User,
		}, &res)
	if err != nil {
		res.Success = false
		if res.Error == "" {
			res.Error = err.Error()
			res.ErrorKind = backup.KindOf(err)
		}
		if res.DurationSeconds == 0 {
			res.DurationSeconds = time.Since(start).Seconds()
		}
	}
	res.Duration = time.Duration(res.DurationSeconds * float64(time.Second))
	return &res
}

func (c *Client) ListRestores(ctx context.Context, limit int) ([]*backup.RestoreRecord, error) {
	var restores []*backup.RestoreRecord
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.do(ctx, http.MethodGet, "/api/v1/restores", q, nil, &restores); err != nil {
		return nil, err
	}
	return restores, nil
}

func (c *Client) ListJobs(ctx context.Context) ([]*backup.ScheduledJob, error) {
	var jobs []*backup.ScheduledJob
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs", nil, nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (c *Client) SetJobEnabled(ctx context.Context, name string, enabled bool) error {
	return c.do(ctx, http.MethodPut, "/api/v1/jobs/"+url.PathEscape(name), nil, SetJobRequest{Enabled: &enabled}, nil)
}

func (c *Client) UpdateConfig(ctx context.Context, partial map[string]any) (bool, error) {
	var res map[string]bool
	if err := c.do(ctx, http.MethodPut, "/api/v1/config", nil, UpdateConfigRequest{Values: partial}, &res); err != nil {
		return false, err
	}
	return res["updated"], nil
}
