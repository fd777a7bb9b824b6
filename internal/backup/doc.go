// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

// Package backup is the TALON backup and restore engine.
//
// It takes logical backups of the source PostgreSQL database with pg_dump,
// tracks every artifact in a private DuckDB metadata store, classifies each
// artifact into a retention tier, verifies integrity with checksums, and
// restores artifacts with psql, optionally into another database.
//
// # Architecture
//
//	Manager    - the engine value; owns everything below and exposes the API
//	Repository - artifact tree under backup_root (method/type sub-paths, archive/, temp/)
//	Store      - DuckDB relations: backups, restores, scheduled_jobs
//	Dumper     - pg_dump / psql child processes, password via environment only
//	Pipeline   - gzip compression, inflation and MD5 digests
//	Classify   - pure retention classifier (category, expiry)
//
// # Backup protocol
//
//	1. mint id, choose <root>/<method>/<type>/<id>.sql
//	2. register a running row
//	3. run pg_dump; on failure remove the partial file and mark the row failed
//	4. compress (optional) and retarget the row to <id>.sql.gz
//	5. checksum, classify, mark completed
//
// A row never stays running: every exit path, including panics and
// cancellation, finalizes it. Rows orphaned by a crash are repaired by
// Reconcile at the next start.
//
// # Usage
//
//	m, err := backup.NewManager(store)   // store is a *config.Store
//	if err != nil {
//		return err
//	}
//	defer m.Close()
//
//	if _, err := m.Reconcile(ctx); err != nil {
//		logging.Warn().Err(err).Msg("Reconciliation incomplete")
//	}
//	m.Start(ctx) // scheduler
//
//	res := m.CreateBackup(ctx, backup.TypeFull, backup.MethodManual, "admin")
//	if !res.Success {
//		logging.Error().Str("error", res.Error).Msg("Backup failed")
//	}
package backup
