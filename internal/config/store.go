// TALON - Backup & Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/talon

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Error reports a missing, malformed or invalid configuration value.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrUnknownKey is wrapped when an update names a key the document does not have.
var ErrUnknownKey = errors.New("unknown configuration key")

// Store holds the loaded document and serializes mutations of it.
type Store struct {
	path string

	mu  sync.RWMutex
	k   *koanf.Koanf
	cfg Config

	observersMu sync.Mutex
	observers   []func(old, updated Config)
}

// Load reads the document at path and merges it over DefaultConfig().
// A missing file is not an error: the defaults are used until the first Update
// writes the document.
func Load(path string) (*Store, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, &Error{Op: "load defaults", Err: err}
	}

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, &Error{Op: "load " + path, Err: err}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, &Error{Op: "stat " + path, Err: err}
	}

	cfg, err := decode(k)
	if err != nil {
		return nil, err
	}

	return &Store{path: path, k: k, cfg: cfg}, nil
}

// decode unmarshals and validates the merged document.
func decode(k *koanf.Koanf) (Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, &Error{Op: "decode", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, &Error{Op: "validate", Err: err}
	}
	return cfg, nil
}

// Path returns the document location.
func (s *Store) Path() string {
	return s.path
}

// Get returns the current snapshot.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// OnChange registers fn to run after every successful Update.
func (s *Store) OnChange(fn func(old, updated Config)) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.observers = append(s.observers, fn)
}

// Update merges partial into the document, validates, persists atomically and
// publishes the result. Keys may be nested maps ({"compression": {"level": 9}})
// or dotted paths ({"compression.level": 9}).
func (s *Store) Update(partial map[string]any) (Config, error) {
	if len(partial) == 0 {
		return s.Get(), nil
	}

	flat := make(map[string]any)
	flatten("", partial, flat)

	s.mu.Lock()

	next := s.k.Copy()
	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !isLeaf(next, key) {
			s.mu.Unlock()
			return Config{}, &Error{Op: "update", Err: fmt.Errorf("%w: %s", ErrUnknownKey, key)}
		}
		if err := next.Set(key, flat[key]); err != nil {
			s.mu.Unlock()
			return Config{}, &Error{Op: "update " + key, Err: err}
		}
	}

	cfg, err := decode(next)
	if err != nil {
		s.mu.Unlock()
		return Config{}, err
	}

	data, err := next.Marshal(yaml.Parser())
	if err != nil {
		s.mu.Unlock()
		return Config{}, &Error{Op: "encode", Err: err}
	}
	if err := writeFileAtomic(s.path, data, 0o600); err != nil {
		s.mu.Unlock()
		return Config{}, &Error{Op: "write " + s.path, Err: err}
	}

	old := s.cfg
	s.k = next
	s.cfg = cfg
	s.mu.Unlock()

	s.observersMu.Lock()
	observers := append([]func(old, updated Config){}, s.observers...)
	s.observersMu.Unlock()
	for _, fn := range observers {
		fn(old, cfg)
	}

	return cfg, nil
}

// ParseValue types a command-line value for key by the type of the key's
// default: booleans and integers are parsed, durations are checked, and
// everything else stays the string it was given, so "007" remains "007".
// Unknown keys come back as given for Update to reject.
func ParseValue(key, raw string) (any, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, &Error{Op: "load defaults", Err: err}
	}
	if !isLeaf(k, key) {
		return raw, nil
	}

	switch k.Get(key).(type) {
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, &Error{Op: "parse " + key, Err: fmt.Errorf("%q is not a boolean", raw)}
		}
		return b, nil
	case int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &Error{Op: "parse " + key, Err: fmt.Errorf("%q is not an integer", raw)}
		}
		return n, nil
	case time.Duration:
		if _, err := time.ParseDuration(raw); err != nil {
			return nil, &Error{Op: "parse " + key, Err: fmt.Errorf("%q is not a duration", raw)}
		}
	}
	return raw, nil
}

// isLeaf reports whether key names a scalar in the defaults-backed document.
func isLeaf(k *koanf.Koanf, key string) bool {
	if !k.Exists(key) {
		return false
	}
	_, isMap := k.Get(key).(map[string]interface{})
	return !isMap
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for key, v := range in {
		full := strings.Trim(prefix+"."+key, ".")
		if nested, ok := v.(map[string]any); ok {
			flatten(full, nested, out)
			continue
		}
		out[full] = v
	}
}

// writeFileAtomic writes data next to path and renames it into place so that
// readers see either the old or the new document, never a partial one.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	// Persist the rename itself.
	d, err := os.Open(dir) //nolint:gosec // dir is derived from the configured document path
	if err != nil {
		return err
	}
	defer d.Close() //nolint:errcheck // read-only handle
	return d.Sync()
}
