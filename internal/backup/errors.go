// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package backup

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindMetadata      ErrorKind = "metadata"
	KindDump          ErrorKind = "dump"
	KindRestore       ErrorKind = "restore"
	KindFilesystem    ErrorKind = "filesystem"
	KindNotFound      ErrorKind = "not_found"
	KindValidation    ErrorKind = "validation"
	KindCanceled      ErrorKind = "canceled"
)

// Error is the engine's error type. Stderr holds the captured output of a
// failed child process, verbatim.
type Error struct {
	Kind   ErrorKind
	Op     string
	ID     string
	Err    error
	Stderr string
}

func (e *Error) Error() string {
	msg := e.Op
	if e.ID != "" {
		msg += " " + e.ID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind, so errors.Is(err, ErrNotFound) works for any
// not-found error regardless of its operation.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// ErrStoreLocked means another process, normally a running daemon, holds the
// metadata store. It is wrapped inside a KindMetadata error.
var ErrStoreLocked = errors.New("metadata store is locked by another process")

// ErrSchedulerStopped is returned by RunScheduler when Stop or Close ended the
// loop, and by any later attempt to run it on a closed manager.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// Sentinels for errors.Is.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrMetadata      = &Error{Kind: KindMetadata}
	ErrDump          = &Error{Kind: KindDump}
	ErrRestore       = &Error{Kind: KindRestore}
	ErrFilesystem    = &Error{Kind: KindFilesystem}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrCanceled      = &Error{Kind: KindCanceled}
)

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func notFound(op, id string) *Error {
	return &Error{Kind: KindNotFound, Op: op, ID: id, Err: errors.New("not found")}
}

// KindOf returns the kind of err, or "" if err is not an engine error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// metadataError wraps a store failure.
func metadataError(op, id string, err error) *Error {
	return &Error{Kind: KindMetadata, Op: op, ID: id, Err: err}
}

func filesystemError(op, path string, err error) *Error {
	return &Error{Kind: KindFilesystem, Op: op, Err: fmt.Errorf("%s: %w", path, err)}
}
