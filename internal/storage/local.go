package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// LocalStore keeps blobs as files below a root directory.
type LocalStore struct {
	root string
	now  func() time.Time
}

// NewLocalStore creates root if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{root: root, now: time.Now}, nil
}

// Write stores content atomically: bytes land in a temp file in the target
// directory which is then renamed into place, so readers never observe a
// partial blob.
func (l *LocalStore) Write(ctx context.Context, content []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	name := NewName(l.now())
	full := l.path(name)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("write blob: %w", err)
	}
	return name, nil
}

// Read returns the bytes stored under name.
func (l *LocalStore) Read(_ context.Context, name string) ([]byte, error) {
	if !validName(name) {
		return nil, fmt.Errorf("read blob %q: %w", name, ErrInvalidPath)
	}
	data, err := os.ReadFile(l.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read blob %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("read blob %s: %w", name, err)
	}
	return data, nil
}

// Exists reports whether name is stored.
func (l *LocalStore) Exists(_ context.Context, name string) (bool, error) {
	if !validName(name) {
		return false, fmt.Errorf("stat blob %q: %w", name, ErrInvalidPath)
	}
	_, err := os.Stat(l.path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat blob %s: %w", name, err)
}

// Delete removes name. A missing file is not an error.
func (l *LocalStore) Delete(_ context.Context, name string) error {
	if !validName(name) {
		return fmt.Errorf("delete blob %q: %w", name, ErrInvalidPath)
	}
	if err := os.Remove(l.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", name, err)
	}
	return nil
}

func (l *LocalStore) path(name string) string {
	return filepath.Join(l.root, filepath.FromSlash(name))
}
