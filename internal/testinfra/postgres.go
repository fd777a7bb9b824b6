// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresImage is the server image used by integration tests.
const PostgresImage = "postgres:16-alpine"

// Postgres describes a running test server.
type Postgres struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	container *postgres.PostgresContainer
}

// StartPostgres starts a server and registers its cleanup with t.
func StartPostgres(t *testing.T) *Postgres {
	t.Helper()
	SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := postgres.Run(ctx,
		PostgresImage,
		postgres.WithDatabase("talon"),
		postgres.WithUsername("talon"),
		postgres.WithPassword("talon-test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { CleanupContainer(t, ctr) })

	host, err := ctr.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}

	return &Postgres{
		Host:      host,
		Port:      port.Int(),
		User:      "talon",
		Password:  "talon-test",
		Database:  "talon",
		container: ctr,
	}
}

// Connect opens a pgx connection to database on the test server.
func (p *Postgres) Connect(ctx context.Context, t *testing.T, database string) *pgx.Conn {
	t.Helper()

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", p.User, p.Password, p.Host, p.Port, database)
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to connect to %s: %v", database, err)
	}
	t.Cleanup(func() { conn.Close(context.Background()) }) //nolint:errcheck // test cleanup
	return conn
}

// Exec runs statements against database and fails the test on error.
func (p *Postgres) Exec(ctx context.Context, t *testing.T, database string, statements ...string) {
	t.Helper()

	conn := p.Connect(ctx, t, database)
	for _, stmt := range statements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
}
