// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/talon/internal/config"
	"github.com/tomtom215/talon/internal/database"
)

const testPassword = "s3cret-pw"

// fakeDumpScript writes the fixture dump to the -f path. Control files in the
// control directory switch it to failing or hanging, make it occupy the
// compressed path (gz_block), or hold it after writing until dump_release
// appears (dump_wait).
const fakeDumpScript = `#!/bin/sh
ctl=%q
printf '%%s\n' "$*" > "$ctl/dump_args"
printf '%%s' "${PGPASSWORD-}" > "$ctl/dump_password"
out=""
while [ $# -gt 0 ]; do
	if [ "$1" = "-f" ]; then out="$2"; shift; fi
	shift
done
if [ -f "$ctl/dump_fail" ]; then
	printf 'partial' > "$out"
	echo 'pg_dump: error: connection to server failed: FATAL:  password authentication failed' >&2
	exit 1
fi
if [ -f "$ctl/dump_hang" ]; then
	printf 'partial' > "$out"
	exec sleep 30
fi
cat "$ctl/dump.sql" > "$out"
if [ -f "$ctl/gz_block" ]; then
	mkdir "$out.gz"
fi
if [ -f "$ctl/dump_wait" ]; then
	: > "$ctl/dump_started"
	while [ ! -f "$ctl/dump_release" ]; do sleep 0.05; done
fi
`

// fakeLoadScript copies the -f input to restored.sql in the control directory.
const fakeLoadScript = `#!/bin/sh
ctl=%q
printf '%%s\n' "$*" > "$ctl/load_args"
printf '%%s' "${PGPASSWORD-}" > "$ctl/load_password"
in=""
while [ $# -gt 0 ]; do
	if [ "$1" = "-f" ]; then in="$2"; shift; fi
	shift
done
if [ -f "$ctl/load_fail" ]; then
	echo "psql:$in:4: ERROR:  relation \"entities\" already exists" >&2
	exit 3
fi
cat "$in" > "$ctl/restored.sql"
`

// fakeInspector records EnsureDatabase calls.
type fakeInspector struct {
	mu      sync.Mutex
	ensured []string
	stats   *database.Stats
	err     error
}

func (f *fakeInspector) Stats(context.Context) (*database.Stats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stats, nil
}

func (f *fakeInspector) EnsureDatabase(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	f.ensured = append(f.ensured, name)
	return true, nil
}

// testEnv holds the common test environment setup
type testEnv struct {
	dir        string
	backupRoot string
	ctlDir     string
	configPath string
	dumpPath   string
	loadPath   string
	inspector  *fakeInspector

	mu  sync.Mutex
	now time.Time
}

// newTestEnv creates a backup root, fake tools and a fixture dump
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	e := &testEnv{
		dir:        dir,
		backupRoot: filepath.Join(dir, "backups"),
		ctlDir:     filepath.Join(dir, "ctl"),
		configPath: filepath.Join(dir, "backup.yaml"),
		dumpPath:   filepath.Join(dir, "bin", "pg_dump"),
		loadPath:   filepath.Join(dir, "bin", "psql"),
		inspector: &fakeInspector{stats: &database.Stats{
			Database:       "talon",
			SizeBytes:      8 << 20,
			TableCount:     1,
			PerTableCounts: map[string]int64{"entities": 2},
		}},
		now: time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC),
	}

	writeFile(t, filepath.Join(e.ctlDir, "dump.sql"), sampleDump)
	writeScript(t, e.dumpPath, fmt.Sprintf(fakeDumpScript, e.ctlDir))
	writeScript(t, e.loadPath, fmt.Sprintf(fakeLoadScript, e.ctlDir))

	return e
}

func writeScript(t *testing.T, path, body string) {
	t.Helper()
	writeFile(t, path, body)
	if err := os.Chmod(path, 0o700); err != nil {
		t.Fatal(err)
	}
}

// setNow moves the engine clock
func (e *testEnv) setNow(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// setControl creates or removes a control file read by the fake tools
func (e *testEnv) setControl(t *testing.T, name string, on bool) {
	t.Helper()
	path := filepath.Join(e.ctlDir, name)
	if on {
		writeFile(t, path, "")
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
}

func (e *testEnv) readControl(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.ctlDir, name))
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

// newTestConfig writes the configuration document and loads it
func (e *testEnv) newTestConfig(t *testing.T) *config.Store {
	t.Helper()

	doc := fmt.Sprintf(`
backup_root: %s
dump_path: %s
load_path: %s
db_host: localhost
db_port: 5432
db_name: talon
db_user: talon
db_password: %s
schedule:
  enabled: false
compression:
  enabled: true
  level: 6
`, e.backupRoot, e.dumpPath, e.loadPath, testPassword)
	writeFile(t, e.configPath, doc)

	store, err := config.Load(e.configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return store
}

// newTestManager creates a manager over the default test config
func (e *testEnv) newTestManager(t *testing.T) *Manager {
	t.Helper()
	return e.newTestManagerWith(t, e.newTestConfig(t))
}

func (e *testEnv) newTestManagerWith(t *testing.T, cfg *config.Store) *Manager {
	t.Helper()
	m, err := NewManager(cfg,
		WithClock(e.clock),
		WithLocation(time.UTC),
		WithInspectorFactory(func(*config.Config) DatabaseInspector { return e.inspector }),
	)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return m
}

// createCompleted runs a manual full backup and fails the test if it does not complete
func (e *testEnv) createCompleted(t *testing.T, m *Manager) *BackupRecord {
	t.Helper()
	res := m.CreateBackup(context.Background(), TypeFull, MethodManual, "tester")
	if !res.Success {
		t.Fatalf("CreateBackup() failed: %s", res.Error)
	}
	rec, err := m.GetBackupDetails(context.Background(), res.BackupID)
	if err != nil {
		t.Fatalf("GetBackupDetails() error = %v", err)
	}
	return rec
}

// filesUnder lists regular files below dir, relative to it
func filesUnder(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			rel, _ := filepath.Rel(dir, path)
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return files
}

func containsArg(args, want string) bool {
	for _, a := range strings.Fields(args) {
		if a == want {
			return true
		}
	}
	return false
}
