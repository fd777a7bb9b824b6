// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

// Package logging provides the zerolog-based structured logger shared by the
// backup engine, its scheduler, and the talon-backup binary.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("backup_id", id).Msg("Backup completed")
//	logging.Error().Err(err).Msg("Dump failed")
//
//	// Per-run logger carried through the context
//	ctx = logging.ContextWithRunID(ctx, id)
//	logging.Ctx(ctx).Info().Msg("Compressing artifact")
//
// # Secrets
//
// The database password is handed to child processes through their
// environment only. Anything that logs a command line or an environment
// must go through RedactArgs / RedactEnv first.
//
// # Suture integration
//
// NewSlogLogger returns an *slog.Logger backed by the global zerolog logger,
// which sutureslog uses to report supervisor events.
package logging
