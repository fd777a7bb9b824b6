// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

// Package main is the talon-backup command: the backup daemon and its
// operator CLI.
//
// # Commands
//
//	talon-backup [-config path] serve
//	talon-backup [-config path] backup [-type full] [-method manual] [-user name]
//	talon-backup [-config path] list [-limit 50] [-status completed]
//	talon-backup [-config path] show <backup-id>
//	talon-backup [-config path] delete [-user name] <backup-id>
//	talon-backup [-config path] cleanup
//	talon-backup [-config path] restore [-target db] [-type full] [-user name] <backup-id>
//	talon-backup [-config path] restores [-limit 50]
//	talon-backup [-config path] verify <backup-id>
//	talon-backup [-config path] reconcile
//	talon-backup [-config path] status
//	talon-backup [-config path] db-stats
//	talon-backup [-config path] config set key=value...
//	talon-backup [-config path] jobs [enable|disable <name>]
//
// The configuration document defaults to $TALON_CONFIG, then
// /etc/talon/backup.yaml. Results are printed to stdout as JSON; logs go to
// stderr.
//
// # Running Alongside the Daemon
//
// The metadata store admits one process at a time. While `serve` runs, the
// other commands find the store locked and send their request to the
// daemon's HTTP endpoint (http.listen_addr) instead; `config set` then
// updates the daemon's document. `serve` and `reconcile` always need the
// store and fail with an explanatory error while another process holds it.
//
// # Exit Codes
//
//	0  success
//	1  the operation failed (the error is on stderr)
//	2  usage error
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the running command. A dump or load in progress
// receives SIGTERM, its row is finalized failed with "canceled", and partial
// files are removed. In serve mode the supervisor tree is stopped and
// in-flight scheduled runs are canceled before the metadata store closes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/talon/internal/config"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2

	configEnv = "TALON_CONFIG"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// usageError is reported with exit code 2.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// errFailed marks an operation that ran and reported failure in its
// printed result; nothing more is written to stderr.
var errFailed = errors.New("operation failed")

type command struct {
	run     func(ctx context.Context, e *env, args []string) error
	summary string
}

var commands = map[string]command{
	"serve":     {cmdServe, "Run the scheduler and the operator HTTP endpoint"},
	"backup":    {cmdBackup, "Take a backup now"},
	"list":      {cmdList, "List backups, newest first"},
	"show":      {cmdShow, "Show one backup"},
	"delete":    {cmdDelete, "Delete a backup and its artifact"},
	"cleanup":   {cmdCleanup, "Delete expired backups"},
	"restore":   {cmdRestore, "Restore a completed backup"},
	"restores":  {cmdRestores, "List restore operations"},
	"verify":    {cmdVerify, "Re-check a backup artifact against its checksum"},
	"reconcile": {cmdReconcile, "Repair state left by an unclean shutdown"},
	"status":    {cmdStatus, "Show engine status"},
	"db-stats":  {cmdDBStats, "Show source database statistics"},
	"config":    {cmdConfig, "Change configuration (config set key=value...)"},
	"jobs":      {cmdJobs, "List, enable or disable scheduled jobs"},
}

// commandOrder fixes the usage listing.
var commandOrder = []string{
	"serve", "backup", "list", "show", "delete", "cleanup", "restore", "restores",
	"verify", "reconcile", "status", "db-stats", "config", "jobs",
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("talon-backup", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", configPathDefault(), "configuration document")
	global.Usage = func() { printUsage(stderr) }
	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if global.NArg() == 0 {
		printUsage(stderr)
		return exitUsage
	}
	name := global.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", name)
		printUsage(stderr)
		return exitUsage
	}

	e := &env{configPath: *configPath, stdout: stdout, stderr: stderr}
	defer e.close()

	err := cmd.run(ctx, e, global.Args()[1:])
	var usage *usageError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.As(err, &usage):
		fmt.Fprintf(stderr, "Usage: %s\n", usage.msg)
		return exitUsage
	case errors.Is(err, errFailed):
		return exitFailure
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
}

func configPathDefault() string {
	if p := os.Getenv(configEnv); p != "" {
		return p
	}
	return config.DefaultPath
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "talon-backup - PostgreSQL backup and restore engine")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  talon-backup [-config path] <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "The configuration document defaults to $%s, then %s.\n", configEnv, config.DefaultPath)
}
