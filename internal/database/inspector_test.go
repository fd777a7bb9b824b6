// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package database

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

func TestQualifiedName(t *testing.T) {
	tests := []struct {
		in   pgx.Identifier
		want string
	}{
		{pgx.Identifier{"public", "entities"}, "entities"},
		{pgx.Identifier{"audit", "events"}, "audit.events"},
	}
	for _, tt := range tests {
		if got := qualifiedName(tt.in); got != tt.want {
			t.Errorf("qualifiedName(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewInspectorDefaults(t *testing.T) {
	i := NewInspector(ConnConfig{Host: "localhost", Port: 5432, User: "talon", Database: "talon"})
	if i.cfg.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want 10s", i.cfg.ConnectTimeout)
	}
}
