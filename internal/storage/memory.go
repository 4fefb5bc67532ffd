package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps blobs in a map guarded by a RWMutex. RWMutex lets many
// readers download concurrently while writes take the exclusive lock.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	now   func() time.Time
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string][]byte),
		now:   time.Now,
	}
}

// Write stores a private copy of content.
func (m *MemoryStore) Write(ctx context.Context, content []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	name := NewName(m.now())
	buf := make([]byte, len(content))
	copy(buf, content)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[name] = buf
	return name, nil
}

// Read returns a copy so callers cannot mutate stored bytes.
func (m *MemoryStore) Read(_ context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[name]
	if !ok {
		return nil, fmt.Errorf("read blob %s: %w", name, ErrNotFound)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Exists reports whether name is stored.
func (m *MemoryStore) Exists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[name]
	return ok, nil
}

// Delete removes name.
func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, name)
	return nil
}

// Overwrite replaces the bytes behind an existing name. It exists to
// simulate tampering with stored content.
func (m *MemoryStore) Overwrite(name string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[name]; !ok {
		return fmt.Errorf("overwrite blob %s: %w", name, ErrNotFound)
	}
	m.blobs[name] = append([]byte(nil), content...)
	return nil
}

// Len returns the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
