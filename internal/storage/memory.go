package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryBackend implements Backend with an in-process map. It exists for
// tests and ephemeral development runs; contents vanish with the process.
// Unlike the network adapters it necessarily materializes each artifact.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[string][]byte)}
}

// Exists reports whether the key is present.
func (b *MemoryBackend) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[key]
	return ok, nil
}

// Put reads the body to completion and stores it under key.
func (b *MemoryBackend) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("%w: reading body for %q: %v", ErrUnavailable, key, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

// Get returns a reader over the stored bytes, or ErrNotFound.
func (b *MemoryBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	data, ok := b.objects[key]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Ping always succeeds.
func (b *MemoryBackend) Ping(ctx context.Context) error {
	return nil
}

// Len reports the number of stored objects. Test helper.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

// Ensure MemoryBackend implements Backend at compile time.
var _ Backend = (*MemoryBackend)(nil)
