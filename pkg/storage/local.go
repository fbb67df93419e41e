package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore reads and writes files on the local filesystem
type LocalStore struct{}

// NewLocalStore creates a local filesystem store
func NewLocalStore() *LocalStore {
	return &LocalStore{}
}

// Open opens the file at location
func (s *LocalStore) Open(_ context.Context, location string) (io.ReadCloser, error) {
	f, err := os.Open(localPath(location))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}

		return nil, fmt.Errorf("failed to open %s: %w", location, err)
	}

	return f, nil
}

// Put writes data to a temporary sibling file and renames it over location
func (s *LocalStore) Put(_ context.Context, location string, data []byte) error {
	path := localPath(location)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", location, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", location, err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write %s: %w", location, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", location, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", location, err)
	}

	return nil
}

func localPath(location string) string {
	if strings.HasPrefix(strings.ToLower(location), SchemeFile+"://") {
		return location[len(SchemeFile+"://"):]
	}

	return location
}
