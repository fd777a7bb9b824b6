// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

/*
dumper.go - Dump and Load Tools

Runs pg_dump and psql as child processes.

Credentials:
  - the password is passed only through the child's PGPASSWORD
  - argv never carries it, and argv is the only thing logged
  - --no-password keeps the tools from prompting when it is wrong

Cancellation:
Children run under exec.CommandContext. Canceling the context sends SIGTERM;
a child still alive after cancelGracePeriod is killed.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tomtom215/talon/internal/config"
	"github.com/tomtom215/talon/internal/logging"
)

const (
	passwordEnv       = "PGPASSWORD"
	cancelGracePeriod = 10 * time.Second

	// maxStderrBytes bounds the stderr kept from a child.
	maxStderrBytes = 64 * 1024
)

// ExecResult is the outcome of one child process.
type ExecResult struct {
	ExitCode int
	Stderr   string
}

// Dumper drives the dump and load tools for one configuration snapshot.
type Dumper struct {
	dumpPath string
	loadPath string
	host     string
	port     int
	user     string
	password string
	database string
}

// NewDumper captures the tool paths and connection settings of cfg.
func NewDumper(cfg *config.Config) *Dumper {
	return &Dumper{
		dumpPath: cfg.DumpPath,
		loadPath: cfg.LoadPath,
		host:     cfg.DBHost,
		port:     cfg.DBPort,
		user:     cfg.DBUser,
		password: cfg.DBPassword,
		database: cfg.DBName,
	}
}

func (d *Dumper) connArgs(database string) []string {
	return []string{
		"-h", d.host,
		"-p", strconv.Itoa(d.port),
		"-U", d.user,
		"-d", database,
		"--no-password",
	}
}

// DumpArgs returns the pg_dump argv (without the binary) for backupType.
//
// Full-content types get --clean --if-exists so that loading the artifact
// replaces existing objects. --create is not used: it binds the script to the
// source database name, which would defeat restores into another target.
func (d *Dumper) DumpArgs(backupType BackupType, out string) []string {
	args := d.connArgs(d.database)
	args = append(args, "-f", out)

	switch backupType {
	case TypeSchemaOnly:
		args = append(args, "--schema-only")
	case TypeDataOnly:
		args = append(args, "--data-only")
	default:
		args = append(args, "--clean", "--if-exists")
	}
	return args
}

// RestoreArgs returns the psql argv that loads in into target, stopping on the
// first error.
func (d *Dumper) RestoreArgs(target, in string) []string {
	args := d.connArgs(target)
	return append(args, "-v", "ON_ERROR_STOP=1", "-q", "-f", in)
}

// Dump writes a dump of the configured database to out.
func (d *Dumper) Dump(ctx context.Context, backupType BackupType, out string) (*ExecResult, error) {
	res, err := d.run(ctx, d.dumpPath, d.DumpArgs(backupType, out))
	if err != nil {
		return res, classifyExecError(ctx, KindDump, "dump database", d.database, res, err)
	}
	return res, nil
}

// Restore loads the plain SQL file in into target.
func (d *Dumper) Restore(ctx context.Context, target, in string) (*ExecResult, error) {
	res, err := d.run(ctx, d.loadPath, d.RestoreArgs(target, in))
	if err != nil {
		return res, classifyExecError(ctx, KindRestore, "load database", target, res, err)
	}
	return res, nil
}

func (d *Dumper) run(ctx context.Context, binary string, args []string) (*ExecResult, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = childEnv(os.Environ(), d.password)
	cmd.Stdout = nil
	stderr := &limitedBuffer{max: maxStderrBytes}
	cmd.Stderr = stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = cancelGracePeriod

	logging.Ctx(ctx).Debug().
		Str("binary", binary).
		Strs("args", logging.RedactArgs(args)).
		Msg("Running database tool")

	start := time.Now()
	err := cmd.Run()
	res := &ExecResult{Stderr: strings.TrimSpace(stderr.String())}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	} else {
		res.ExitCode = -1
	}

	logging.Ctx(ctx).Debug().
		Str("binary", binary).
		Int("exit_code", res.ExitCode).
		Dur("elapsed", time.Since(start)).
		Msg("Database tool finished")

	return res, err
}

// classifyExecError turns a failed run into an engine error. Cancellation
// wins over the exit status because a signaled child exits non-zero.
func classifyExecError(ctx context.Context, kind ErrorKind, op, id string, res *ExecResult, err error) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Error{Kind: KindCanceled, Op: op, ID: id, Err: ctxErr}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &Error{
			Kind:   kind,
			Op:     op,
			ID:     id,
			Err:    errors.New("exit status " + strconv.Itoa(res.ExitCode)),
			Stderr: res.Stderr,
		}
	}
	return &Error{Kind: kind, Op: op, ID: id, Err: err, Stderr: res.Stderr}
}

// childEnv copies env without any inherited password and adds password when set.
func childEnv(env []string, password string) []string {
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if strings.HasPrefix(kv, passwordEnv+"=") {
			continue
		}
		out = append(out, kv)
	}
	if password != "" {
		out = append(out, passwordEnv+"="+password)
	}
	return out
}

// limitedBuffer keeps the first max bytes written to it and discards the rest.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
