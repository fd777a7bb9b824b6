// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/talon/internal/api"
	"github.com/tomtom215/talon/internal/backup"
	"github.com/tomtom215/talon/internal/config"
	"github.com/tomtom215/talon/internal/logging"
)

// env carries what every command needs and opens the engine on first use.
type env struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer

	cfg     *config.Store
	manager *backup.Manager
	client  *api.Client
}

// config loads the document and initializes logging from it.
func (e *env) config() (*config.Store, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	store, err := config.Load(e.configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	cfg := store.Get()
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: e.stderr,
	})
	e.cfg = store
	return store, nil
}

// engine returns the engine a command runs against: the manager in process,
// or the daemon's HTTP endpoint when a running daemon holds the metadata store.
func (e *env) engine() (api.Engine, error) {
	if e.client != nil {
		return e.client, nil
	}
	m, err := e.local()
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, backup.ErrStoreLocked) {
		return nil, err
	}

	base := api.BaseURL(e.cfg.Get().HTTP.ListenAddr)
	client := api.NewClient(base, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if perr := client.Ping(ctx); perr != nil {
		return nil, fmt.Errorf("%w; no daemon answers at %s: %v", err, base, perr)
	}
	logging.Debug().Str("daemon", base).Msg("Metadata store is held by the daemon; sending the command over HTTP")
	e.client = client
	return client, nil
}

// local opens the backup manager in this process. Only one process may hold
// the metadata store, so serve and reconcile fail while a daemon runs.
func (e *env) local() (*backup.Manager, error) {
	if e.manager != nil {
		return e.manager, nil
	}
	store, err := e.config()
	if err != nil {
		return nil, err
	}
	m, err := backup.NewManager(store)
	if err != nil {
		if errors.Is(err, backup.ErrStoreLocked) {
			return nil, fmt.Errorf("open backup engine: another talon-backup process (usually the daemon) holds the metadata store under %s: %w",
				store.Get().BackupRoot, err)
		}
		return nil, fmt.Errorf("open backup engine: %w", err)
	}
	e.manager = m
	return m, nil
}

func (e *env) close() {
	if e.manager == nil {
		return
	}
	if err := e.manager.Close(); err != nil {
		logging.Error().Err(err).Msg("Failed to close backup engine")
	}
}

// print writes v to stdout as indented JSON.
func (e *env) print(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	data = append(data, '\n')
	_, err = e.stdout.Write(data)
	return err
}

// flags returns a flag set that reports errors instead of exiting.
func (e *env) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

// parse parses args into fs and converts a parse failure to a usage error.
func parse(fs *flag.FlagSet, args []string, usage string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usagef("%s", usage)
	}
	return nil
}
