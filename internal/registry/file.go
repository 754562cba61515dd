// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CatchAdmin Contributors

package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// FileStore keeps installed-plugin records in a single JSON file, following
// the package manager's records-file convention.
//
// Writes go through a temp file and rename, so readers never observe a
// partial file. Concurrent package-manager invocations are serialized with an
// exclusive lock file; lock contention is retried with fibonacci backoff.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the JSON file at path.
// The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// lockAttempts bounds how long a writer waits for a competing invocation.
const lockAttempts = 20

// Add records a newly installed plugin, replacing any record with the same name.
func (s *FileStore) Add(ctx context.Context, rec Record) error {
	if rec.Name == "" {
		return oops.In("registry").New("record name is required")
	}
	if rec.InstalledAt.IsZero() {
		rec.InstalledAt = time.Now().UTC()
	}

	return s.withLock(ctx, func() error {
		records, err := s.read()
		if err != nil {
			return err
		}

		replaced := false
		for i := range records {
			if records[i].Name == rec.Name {
				records[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			records = append(records, rec)
		}
		return s.write(records)
	})
}

// Update sets the recorded version of an installed plugin.
func (s *FileStore) Update(ctx context.Context, name, version string) error {
	return s.withLock(ctx, func() error {
		records, err := s.read()
		if err != nil {
			return err
		}

		for i := range records {
			if records[i].Name == name {
				records[i].Version = version
				return s.write(records)
			}
		}
		return oops.In("registry").Code("not_found").With("name", name).New("plugin not recorded")
	})
}

// Remove deletes the record for an uninstalled plugin.
func (s *FileStore) Remove(ctx context.Context, name string) error {
	return s.withLock(ctx, func() error {
		records, err := s.read()
		if err != nil {
			return err
		}

		for i := range records {
			if records[i].Name == name {
				records = append(records[:i], records[i+1:]...)
				return s.write(records)
			}
		}
		return oops.In("registry").Code("not_found").With("name", name).New("plugin not recorded")
	})
}

// List returns all records in name order. Reads do not take the lock: the
// rename-based writes guarantee a consistent snapshot.
func (s *FileStore) List(_ context.Context) ([]Record, error) {
	records, err := s.read()
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

func (s *FileStore) withLock(ctx context.Context, fn func() error) error {
	lockPath := s.path + ".lock"

	backoff := retry.WithMaxRetries(lockAttempts, retry.NewFibonacci(10*time.Millisecond))
	err := retry.Do(ctx, backoff, func(_ context.Context) error {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			if os.IsExist(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return f.Close()
	})
	if err != nil {
		return oops.In("registry").With("path", s.path).Hint("another package-manager invocation may hold the lock; remove the stale .lock file if none is running").Wrap(err)
	}
	defer os.Remove(lockPath)

	return fn()
}

func (s *FileStore) read() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, oops.In("registry").With("path", s.path).Wrap(err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, oops.In("registry").With("path", s.path).Hint("records file is corrupt").Wrap(err)
	}
	return records, nil
}

func (s *FileStore) write(records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return oops.In("registry").Wrap(err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".installed-*.json")
	if err != nil {
		return oops.In("registry").With("dir", dir).Wrap(err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return oops.In("registry").With("path", tmpPath).Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return oops.In("registry").With("path", tmpPath).Wrap(err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return oops.In("registry").With("path", s.path).Wrap(err)
	}
	return nil
}
