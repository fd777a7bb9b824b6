// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package backup

import (
	"context"
	"fmt"
)

// VerifyBackup re-digests a completed backup's artifact and compares it with
// the recorded checksum. Operational problems (missing file, unreadable
// artifact) are reported on the result; only lookup failures are returned.
func (m *Manager) VerifyBackup(ctx context.Context, id string) (*VerifyResult, error) {
	backup, err := m.store.GetBackup(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{
		BackupID: id,
		Expected: backup.Checksum,
	}

	if backup.Status != StatusCompleted {
		result.Error = fmt.Sprintf("backup is %s, not completed", backup.Status)
		return result, nil
	}
	if !fileExists(backup.FilePath) {
		result.Error = "artifact missing at " + backup.FilePath
		return result, nil
	}
	if size := getFileSize(backup.FilePath); size != backup.FileSize {
		result.Error = fmt.Sprintf("size mismatch: recorded %d bytes, found %d", backup.FileSize, size)
	}

	actual, err := calculateFileChecksum(backup.FilePath)
	if err != nil {
		result.Error = errorText(err)
		return result, nil
	}
	result.Actual = actual
	result.Valid = actual == backup.Checksum && result.Error == ""
	if actual != backup.Checksum {
		result.Error = "checksum mismatch"
	}
	return result, nil
}
