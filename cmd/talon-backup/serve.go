// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/talon/internal/api"
	"github.com/tomtom215/talon/internal/logging"
	"github.com/tomtom215/talon/internal/supervisor"
	"github.com/tomtom215/talon/internal/supervisor/services"
)

// cmdServe runs the daemon until ctx is canceled:
//
//  1. reconcile state left by a previous unclean shutdown
//  2. start the supervisor tree (scheduler + HTTP endpoint)
//  3. on signal, stop the tree; env.close cancels in-flight runs and
//     closes the metadata store
func cmdServe(ctx context.Context, e *env, args []string) error {
	if len(args) != 0 {
		return usagef("talon-backup serve")
	}

	m, err := e.local()
	if err != nil {
		return err
	}
	cfg := m.Config()

	logging.Info().
		Str("config", e.configPath).
		Str("backup_root", cfg.BackupRoot).
		Str("database", cfg.DBName).
		Bool("schedule_enabled", cfg.Schedule.Enabled).
		Str("listen_addr", cfg.HTTP.ListenAddr).
		Msg("Starting backup daemon")

	res, err := m.Reconcile(ctx)
	if err != nil {
		return err
	}
	for _, msg := range res.Errors {
		logging.Warn().Str("error", msg).Msg("Reconciliation left an item unrepaired")
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return err
	}

	tree.AddEngineService(services.NewSchedulerService(m))

	// No write timeout: backups and restores answer when the run ends.
	server := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           api.NewRouter(api.NewHandler(m)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	err = tree.Serve(ctx)

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within the shutdown timeout")
		}
	}
	logging.Info().Msg("Backup daemon stopped")

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
