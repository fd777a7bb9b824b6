// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

/*
manager_helpers.go - Identifiers and Utility Functions

Backup IDs have the form <type>_<YYYYMMDD_HHMMSS>_<seq>_<8 hex>: the type and
creation second make them readable, the process-wide sequence orders IDs minted
in the same second, and the random suffix keeps them unique across processes.
Restore IDs use the same scheme with a "restore" prefix.

Helper Functions:
  - fileExists(): Check if a file exists on disk
  - getFileSize(): Get file size in bytes (0 on error)
  - errorText(): Error text for results and error_message columns
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const idTimeLayout = "20060102_150405"

// idSeq orders IDs minted by this process.
var idSeq atomic.Uint64

func mintID(prefix string, t time.Time) string {
	seq := idSeq.Add(1)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%d_%s", prefix, t.Format(idTimeLayout), seq, suffix)
}

func newBackupID(backupType BackupType, t time.Time) string {
	return mintID(string(backupType), t)
}

func newRestoreID(t time.Time) string {
	return mintID("restore", t)
}

// errorText renders err for a result or an error_message column. Engine
// errors already carry the child's stderr verbatim.
func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Helper functions

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func getFileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
