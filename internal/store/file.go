// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/xdg"
)

// errCorrupt marks a credential file that was read but could not be decoded.
// Its contents have been copied aside by the time it is returned.
var errCorrupt = errors.New("credential file is not valid JSON")

// DefaultFileName is the credential file name inside the data directory.
const DefaultFileName = "users.json"

// DefaultFilePath returns the credential file path under the XDG data directory.
func DefaultFilePath() (string, error) {
	dir, err := xdg.DataDir()
	if err != nil {
		return "", oops.With("operation", "resolve data dir").Wrap(err)
	}
	return filepath.Join(dir, DefaultFileName), nil
}

// FileBackend stores the credential set as a JSON object keyed by username.
// Writes go to a temporary file that is renamed over the target.
type FileBackend struct {
	path string
}

// NewFileBackend creates a FileBackend writing to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the file location.
func (b *FileBackend) Path() string {
	return b.path
}

func (b *FileBackend) String() string {
	return "file:" + b.path
}

// Load reads the credential file. A missing or empty file yields ErrNoData.
// An unreadable file is copied aside with a .corrupt suffix before the error
// is returned, since the caller will overwrite it.
func (b *FileBackend) Load(_ context.Context) ([]*auth.User, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoData
		}
		return nil, oops.Code("STORE_LOAD_FAILED").With("path", b.path).Wrap(err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNoData
	}

	var records map[string]*auth.User
	if err := json.Unmarshal(data, &records); err != nil {
		//nolint:gosec // G306: same permissions as the original file
		if copyErr := os.WriteFile(b.path+".corrupt", data, 0o600); copyErr != nil {
			return nil, oops.Code("STORE_DECODE_FAILED").With("path", b.path).Wrap(errors.Join(err, copyErr))
		}
		return nil, oops.Code("STORE_DECODE_FAILED").With("path", b.path).Wrap(errors.Join(errCorrupt, err))
	}

	users := make([]*auth.User, 0, len(records))
	for key, u := range records {
		if u == nil {
			continue
		}
		// The map key is authoritative for the username.
		u.Username = key
		users = append(users, u)
	}
	return users, nil
}

// Merge applies users and removed to the records currently in the file. A
// missing file, or one already copied aside as corrupt, counts as empty; any
// other read failure is returned without writing.
func (b *FileBackend) Merge(ctx context.Context, users []*auth.User, removed []string) error {
	stored, err := b.Load(ctx)
	if err != nil && !errors.Is(err, ErrNoData) && !errors.Is(err, errCorrupt) {
		return oops.Code("STORE_MERGE_FAILED").With("path", b.path).Wrap(err)
	}

	merged := make(map[string]*auth.User, len(stored)+len(users))
	for _, u := range stored {
		merged[u.Username] = u
	}
	for _, name := range removed {
		delete(merged, name)
	}
	for _, u := range users {
		merged[u.Username] = u
	}

	out := make([]*auth.User, 0, len(merged))
	for _, u := range merged {
		out = append(out, u)
	}
	return b.Save(ctx, out)
}

// Save atomically replaces the credential file.
func (b *FileBackend) Save(_ context.Context, users []*auth.User) error {
	records := make(map[string]*auth.User, len(users))
	for _, u := range users {
		records[u.Username] = u
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return oops.Code("STORE_ENCODE_FAILED").Wrap(err)
	}

	dir := filepath.Dir(b.path)
	if err := xdg.EnsureDir(dir); err != nil {
		return oops.Code("STORE_SAVE_FAILED").With("path", b.path).Wrap(err)
	}

	tmp, err := os.CreateTemp(dir, ".users-*.json")
	if err != nil {
		return oops.Code("STORE_SAVE_FAILED").With("operation", "create temp file").Wrap(err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) } //nolint:errcheck // best effort

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close() //nolint:errcheck // write error takes precedence
		cleanup()
		return oops.Code("STORE_SAVE_FAILED").With("operation", "write temp file").Wrap(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close() //nolint:errcheck // sync error takes precedence
		cleanup()
		return oops.Code("STORE_SAVE_FAILED").With("operation", "sync temp file").Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return oops.Code("STORE_SAVE_FAILED").With("operation", "close temp file").Wrap(err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return oops.Code("STORE_SAVE_FAILED").With("operation", "chmod temp file").Wrap(err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		cleanup()
		return oops.Code("STORE_SAVE_FAILED").With("operation", "rename temp file").Wrap(err)
	}
	return nil
}
