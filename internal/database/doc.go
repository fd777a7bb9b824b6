// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

// Package database talks to the source PostgreSQL database with pgx.
//
// The backup engine never reads application data itself; dumps and loads are
// done by pg_dump and psql. This package covers the two things the engine does
// need a live connection for:
//
//   - Stats: database size, table count and exact per-table row counts
//     (the engine's get_database_stats operation)
//   - EnsureDatabase: creating a missing target before a restore into an
//     alternate database
//
// Connections are short-lived. Credentials change at runtime through the
// configuration store, and stats calls are rare, so no pool is kept.
package database
