// Package file stores a document in a single file, replaced atomically on
// every save.
package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jmcleod/fxaccount/storage"
)

// Backend implements storage.Backend on a file path.
type Backend struct {
	path string
}

var _ storage.Backend = (*Backend)(nil)

// New returns a Backend for path. The parent directory is created on the
// first Save.
func New(path string) *Backend {
	return &Backend{path: path}
}

func (b *Backend) Path() string {
	return b.path
}

// Load returns the file contents. A missing or empty file is
// storage.ErrNotFound.
func (b *Backend) Load() ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", b.path, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", b.path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty: %w", b.path, storage.ErrNotFound)
	}
	return data, nil
}

// Save writes data to a temporary file in the same directory, fsyncs it and
// renames it over the target.
func (b *Backend) Save(data []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming into %s: %w", b.path, err)
	}

	// Make the rename durable.
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}
