// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

//go:build integration

package testinfra

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

// SkipIfNoDocker skips t when no container runtime answers.
func SkipIfNoDocker(t *testing.T) {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
}

// SkipIfNoClientTools returns the host's pg_dump and psql, skipping t when
// either is missing. Backups run the host binaries against the container.
func SkipIfNoClientTools(t *testing.T) (dumpPath, loadPath string) {
	t.Helper()
	paths := make([]string, 2)
	for i, tool := range []string{"pg_dump", "psql"} {
		p, err := exec.LookPath(tool)
		if err != nil {
			t.Skipf("%s not on PATH", tool)
		}
		paths[i] = p
	}
	return paths[0], paths[1]
}

// CleanupContainer terminates ctr. Failures are logged; the test result
// already stands.
func CleanupContainer(t *testing.T, ctr testcontainers.Container) {
	t.Helper()
	if ctr == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := ctr.Terminate(ctx); err != nil {
		t.Logf("terminate container: %v", err)
	}
}
