// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

// Package config owns the backup engine's configuration document.
//
// The document is a YAML file merged over built-in defaults with koanf:
//
//	Layer 1: defaults (structs provider over DefaultConfig())
//	Layer 2: the document (file provider + YAML parser)
//
// The engine deliberately does not read environment variables; the document is
// the single source of configuration.
//
// # Mutation
//
// Store.Update applies a partial document (nested maps or dotted keys),
// validates the merged result, re-emits the whole document through a temp file
// and rename, and only then publishes the new snapshot to readers and to
// observers registered with OnChange. A rejected update leaves both the file and
// the in-memory snapshot untouched.
//
// # Example document
//
//	backup_root: /var/lib/talon/backups
//	dump_path: /usr/bin/pg_dump
//	load_path: /usr/bin/psql
//	db_host: localhost
//	db_port: 5432
//	db_name: talon
//	db_user: talon
//	db_password: change-me
//	retention_policy: {daily: 7, weekly: 4, monthly: 1, yearly: 1}
//	schedule: {enabled: true, daily_time: "02:00", weekly_day: sunday, monthly_day: 1}
//	compression: {enabled: true, level: 6}
package config
