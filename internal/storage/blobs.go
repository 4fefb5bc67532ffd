// Package storage holds the byte storage collaborators. Documents are written
// once under a generated name and addressed by that name afterwards.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is exported so callers elsewhere can compare errors using
	// errors.Is.
	ErrNotFound = errors.New("blob not found")
	// ErrInvalidPath is returned for names that escape the storage root.
	ErrInvalidPath = errors.New("invalid blob path")
)

// Blobs stores raw document bytes.
type Blobs interface {
	// Write stores content under a fresh collision-resistant name and returns
	// that name.
	Write(ctx context.Context, content []byte, contentType string) (string, error)
	Read(ctx context.Context, name string) ([]byte, error)
	Exists(ctx context.Context, name string) (bool, error)
	// Delete removes name. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
}

// NewName returns documents/YYYY/MM/DD/<uuid>. Two concurrent writers never
// receive the same name.
func NewName(now time.Time) string {
	return path.Join("documents", now.UTC().Format("2006/01/02"), uuid.NewString())
}

// validName rejects empty, absolute and parent-relative names.
func validName(name string) bool {
	if name == "" || path.IsAbs(name) || path.Clean(name) != name {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." || part == "." {
			return false
		}
	}
	return true
}
