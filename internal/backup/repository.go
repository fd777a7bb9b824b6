// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Fixed sub-paths under backup_root.
const (
	dirArchive = "archive"
	dirTemp    = "temp"

	// MetadataFileName is the DuckDB file holding the metadata relations.
	MetadataFileName = "backup_metadata.duckdb"

	extSQL = ".sql"
	extGz  = ".gz"
)

// layoutDirs are created on initialization.
var layoutDirs = []string{
	string(TypeFull), string(TypeIncremental), string(TypeDifferential),
	string(MethodManual), string(MethodScheduled),
	dirArchive, dirTemp,
}

// Repository is the artifact tree under backup_root. The root can be moved
// at runtime by a configuration change.
type Repository struct {
	mu   sync.RWMutex
	root string
}

// NewRepository creates the layout under root.
func NewRepository(root string) (*Repository, error) {
	r := &Repository{}
	if err := r.SetRoot(root); err != nil {
		return nil, err
	}
	return r, nil
}

// Root returns the current root directory.
func (r *Repository) Root() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.root
}

// SetRoot points the repository at root and ensures its layout.
func (r *Repository) SetRoot(root string) error {
	if root == "" {
		return newError(KindConfiguration, "set backup root", errors.New("backup_root is empty"))
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return filesystemError("resolve backup root", root, err)
	}
	if err := ensureLayout(abs); err != nil {
		return err
	}

	r.mu.Lock()
	r.root = abs
	r.mu.Unlock()
	return nil
}

// EnsureLayout re-creates any missing fixed sub-path.
func (r *Repository) EnsureLayout() error {
	return ensureLayout(r.Root())
}

func ensureLayout(root string) error {
	for _, d := range layoutDirs {
		p := filepath.Join(root, d)
		if err := os.MkdirAll(p, 0o750); err != nil {
			return filesystemError("create layout", p, err)
		}
	}
	return nil
}

// ArtifactPath returns <root>/<method>/<type>/<id>.sql[.gz], creating the parent.
func (r *Repository) ArtifactPath(method Method, backupType BackupType, id string, compressed bool) (string, error) {
	dir := filepath.Join(r.Root(), string(method), string(backupType))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", filesystemError("create artifact directory", dir, err)
	}
	name := id + extSQL
	if compressed {
		name += extGz
	}
	return filepath.Join(dir, name), nil
}

// TempDir returns the temp/ sub-path.
func (r *Repository) TempDir() string {
	return filepath.Join(r.Root(), dirTemp)
}

// TempPath returns a unique, not yet existing path under temp/.
func (r *Repository) TempPath(prefix string) string {
	return filepath.Join(r.TempDir(), fmt.Sprintf("%s-%s%s", prefix, uuid.NewString(), extSQL))
}

// SweepTemp removes everything under temp/ and returns how many entries went.
func (r *Repository) SweepTemp() (int, error) {
	dir := r.TempDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, filesystemError("read temp directory", dir, err)
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, filesystemError("sweep temp directory", dir, errors.Join(errs...))
	}
	return removed, nil
}

// Archive moves path into archive/ keeping its base name, and returns the new path.
func (r *Repository) Archive(path string) (string, error) {
	dst := filepath.Join(r.Root(), dirArchive, filepath.Base(path))
	if _, err := os.Stat(dst); err == nil {
		dst = filepath.Join(r.Root(), dirArchive, uuid.NewString()[:8]+"-"+filepath.Base(path))
	}
	if err := os.Rename(path, dst); err != nil {
		return "", filesystemError("archive artifact", path, err)
	}
	return dst, nil
}

// WalkArtifacts calls fn for every artifact file under <root>/{manual,scheduled}/<type>/.
func (r *Repository) WalkArtifacts(fn func(path string) error) error {
	root := r.Root()
	for _, method := range []Method{MethodManual, MethodScheduled} {
		base := filepath.Join(root, string(method))
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() || !isArtifactName(d.Name()) {
				return nil
			}
			return fn(path)
		})
		if err != nil {
			return filesystemError("walk artifacts", base, err)
		}
	}
	return nil
}

func isArtifactName(name string) bool {
	return strings.HasSuffix(name, extSQL) || strings.HasSuffix(name, extSQL+extGz)
}

// removeArtifact deletes path and its compressed/uncompressed sibling.
// A missing file is not an error.
func removeArtifact(path string) error {
	if path == "" {
		return nil
	}
	var errs []error
	for _, p := range artifactVariants(path) {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return filesystemError("remove artifact", path, errors.Join(errs...))
	}
	return nil
}

func artifactVariants(path string) []string {
	if strings.HasSuffix(path, extGz) {
		return []string{path, strings.TrimSuffix(path, extGz)}
	}
	return []string{path, path + extGz}
}
