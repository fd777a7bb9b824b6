// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tomtom215/talon/internal/logging"
)

// MaintenanceDatabase is the database connected to when creating other databases.
const MaintenanceDatabase = "postgres"

// ConnConfig identifies the source server. Password is applied to the pgx
// config after parsing so it never appears in a connection string.
type ConnConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// ConnectTimeout bounds each connection attempt. Default: 10s
	ConnectTimeout time.Duration
}

// Stats is a point-in-time summary of the source database.
type Stats struct {
	Database       string           `json:"database"`
	SizeBytes      int64            `json:"size_bytes"`
	TableCount     int              `json:"table_count"`
	PerTableCounts map[string]int64 `json:"per_table_counts"`
	Timestamp      time.Time        `json:"timestamp"`
}

// Inspector reads metadata from, and provisions databases on, the source server.
type Inspector struct {
	cfg ConnConfig
	now func() time.Time
}

// NewInspector creates an inspector for cfg.
func NewInspector(cfg ConnConfig) *Inspector {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Inspector{cfg: cfg, now: time.Now}
}

func (i *Inspector) connect(ctx context.Context, database string) (*pgx.Conn, error) {
	connCfg, err := pgx.ParseConfig(fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=prefer",
		i.cfg.Host, i.cfg.Port, i.cfg.User, database))
	if err != nil {
		return nil, fmt.Errorf("failed to build connection config: %w", err)
	}
	connCfg.Password = i.cfg.Password
	connCfg.ConnectTimeout = i.cfg.ConnectTimeout

	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s@%s:%d/%s: %w", i.cfg.User, i.cfg.Host, i.cfg.Port, database, err)
	}
	return conn, nil
}

func closeConn(conn *pgx.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Close(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to close source database connection")
	}
}

// Stats returns size, table count and exact row counts of every user table.
func (i *Inspector) Stats(ctx context.Context) (*Stats, error) {
	conn, err := i.connect(ctx, i.cfg.Database)
	if err != nil {
		return nil, err
	}
	defer closeConn(conn)

	stats := &Stats{
		Database:       i.cfg.Database,
		PerTableCounts: make(map[string]int64),
		Timestamp:      i.now().UTC(),
	}

	if err := conn.QueryRow(ctx, "SELECT pg_database_size(current_database())").Scan(&stats.SizeBytes); err != nil {
		return nil, fmt.Errorf("failed to read database size: %w", err)
	}

	tables, err := listUserTables(ctx, conn)
	if err != nil {
		return nil, err
	}

	for _, tbl := range tables {
		var n int64
		query := "SELECT count(*) FROM " + tbl.Sanitize()
		if err := conn.QueryRow(ctx, query).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count rows of %s: %w", tbl.Sanitize(), err)
		}
		stats.PerTableCounts[qualifiedName(tbl)] = n
	}
	stats.TableCount = len(tables)

	return stats, nil
}

func listUserTables(ctx context.Context, conn *pgx.Conn) ([]pgx.Identifier, error) {
	rows, err := conn.Query(ctx, `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY table_schema, table_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	tables, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (pgx.Identifier, error) {
		var schema, name string
		err := row.Scan(&schema, &name)
		return pgx.Identifier{schema, name}, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan tables: %w", err)
	}
	return tables, nil
}

// qualifiedName renders schema.table, dropping the schema for public tables.
func qualifiedName(id pgx.Identifier) string {
	if len(id) == 2 && id[0] == "public" {
		return id[1]
	}
	out := id[0]
	for _, part := range id[1:] {
		out += "." + part
	}
	return out
}

// EnsureDatabase creates name on the source server if it does not exist.
// Returns true when the database was created.
func (i *Inspector) EnsureDatabase(ctx context.Context, name string) (bool, error) {
	conn, err := i.connect(ctx, MaintenanceDatabase)
	if err != nil {
		return false, err
	}
	defer closeConn(conn)

	var exists bool
	if err := conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to look up database %s: %w", name, err)
	}
	if exists {
		return false, nil
	}

	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		return false, fmt.Errorf("failed to create database %s: %w", name, err)
	}

	logging.Info().Str("database", name).Msg("Created restore target database")
	return true, nil
}
