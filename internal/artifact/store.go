// Package artifact persists the session artifact: the serialized browser storage
// state produced by the setup project and read by every dependent test.
//
// There is exactly one writer (the bootstrap) and it writes before any reader starts.
// Writes replace the previous artifact wholesale through a temp file and rename, so a
// reader never observes a partially written document.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kuitang/notifier-e2e/internal/errs"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// ErrMissing is wrapped by LocalPath when no artifact has been written yet.
var ErrMissing = errors.New("session artifact missing; run the setup project first")

// Store is where the bootstrap writes the session artifact and dependent runs find it.
type Store interface {
	// Save replaces the artifact with state.
	Save(ctx context.Context, state []byte) error
	// LocalPath returns a file path the browser can seed a context from.
	LocalPath(ctx context.Context) (string, error)
	// Location describes the artifact for logs and reports.
	Location() string
}

// FileStore keeps the artifact in a single local file.
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the artifact file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Location() string {
	return s.path
}

// Save atomically replaces the artifact file.
func (s *FileStore) Save(ctx context.Context, state []byte) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.IO, "save session artifact", err)
	}
	if len(state) == 0 || !json.Valid(state) {
		return errs.New(errs.IO, "save session artifact: storage state is not a JSON document")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return errs.Wrap(errs.IO, "create artifact directory", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errs.Wrap(errs.IO, "create temp artifact", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(state); err != nil {
		_ = tmp.Close()
		return errs.Wrap(errs.IO, "write temp artifact", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errs.Wrap(errs.IO, "sync temp artifact", err)
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(errs.IO, "close temp artifact", err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		return errs.Wrap(errs.IO, "chmod temp artifact", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errs.Wrap(errs.IO, "install session artifact", err)
	}
	committed = true
	return nil
}

// LocalPath returns the artifact path once it exists.
func (s *FileStore) LocalPath(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errs.Wrap(errs.IO, "locate session artifact", err)
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", errs.Wrap(errs.IO, s.path, ErrMissing)
		}
		return "", errs.Wrap(errs.IO, "stat session artifact", err)
	}
	if info.IsDir() {
		return "", errs.New(errs.IO, fmt.Sprintf("session artifact %s is a directory", s.path))
	}
	return s.path, nil
}

// Exists reports whether an artifact file is present.
func (s *FileStore) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && !info.IsDir()
}
