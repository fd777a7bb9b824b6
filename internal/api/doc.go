// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

/*
Package api is the operator HTTP surface of the backup daemon.

It is meant to be bound to loopback. Besides the engine routes listed in
handlers_backup.go it serves:

	GET /healthz        liveness plus a metadata store ping
	GET /metrics        Prometheus exposition
	GET /api/v1/status  engine status (counts, sizes, disk, jobs)

Every JSON body uses the same envelope:

	{"status": "success", "data": {...}, "metadata": {"timestamp": "..."}}
	{"status": "error", "error": {"code": "...", "message": "..."}, "metadata": {...}}

A failed backup or restore answers with the error envelope and keeps the
run's result in data. Error codes are the upper-cased engine error kinds.

The daemon holds the metadata store exclusively. Client implements the same
Engine interface as *backup.Manager over these routes, and the CLI switches
to it when it finds the store locked.
*/
package api
