// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

//go:build integration

// Package testinfra starts throwaway PostgreSQL servers for integration tests.
//
// Tests using this package run only with the integration build tag and skip
// themselves when Docker or the PostgreSQL client tools are unavailable:
//
//	go test -tags integration ./internal/...
//
// Example:
//
//	func TestRoundTrip(t *testing.T) {
//	    pg := testinfra.StartPostgres(t)
//	    testinfra.SkipIfNoClientTools(t)
//	    // pg.Host, pg.Port, pg.User, pg.Password, pg.Database
//	}
package testinfra
