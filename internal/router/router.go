// Package router resolves tenant context into storage operations: it
// composes namespaced storage keys and enforces the write-once contract.
package router

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cachegate/cachegate/internal/registry"
	"github.com/cachegate/cachegate/internal/storage"
)

// Router fans tenant-scoped cache operations out to the tenant's storage
// adapter. It deliberately does not implement storage.Backend: every
// operation is meaningless without a tenant, so the interface requires one.
type Router struct {
	reg *registry.Registry
}

// New creates a Router over the given registry.
func New(reg *registry.Registry) *Router {
	return &Router{reg: reg}
}

// StorageKey composes the backend key for a tenant prefix and hash. The
// prefix's leading "/" is stripped — object stores treat a leading slash as
// a literal character — so "/ci" + "abc" yields "ci/abc" and an empty
// prefix yields the bare hash.
func StorageKey(prefix, hash string) string {
	p := strings.TrimPrefix(prefix, "/")
	if p == "" {
		return hash
	}
	return p + "/" + hash
}

// Exists reports whether the tenant already stores an artifact for hash.
func (r *Router) Exists(ctx context.Context, tenant *registry.Tenant, hash string) (bool, error) {
	backend := r.reg.Backend(tenant.BackendName)
	return backend.Exists(ctx, StorageKey(tenant.Prefix, hash))
}

// Put streams body to the tenant's key for hash, enforcing write-once: an
// occupied key fails with storage.ErrAlreadyExists before any write is
// attempted.
//
// The exists-then-put sequence is not atomic. Two concurrent PUTs for the
// same key can both observe a miss and both write; the last write wins.
// Content-addressed callers send identical bytes for identical hashes, so
// no locking is layered on top.
func (r *Router) Put(ctx context.Context, tenant *registry.Tenant, hash string, body io.Reader, size int64) error {
	backend := r.reg.Backend(tenant.BackendName)
	key := StorageKey(tenant.Prefix, hash)

	exists, err := backend.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", storage.ErrAlreadyExists, key)
	}
	return backend.Put(ctx, key, body, size)
}

// Get opens the tenant's artifact for hash as a byte stream. Backend errors
// surface unchanged; the Router performs no retries.
func (r *Router) Get(ctx context.Context, tenant *registry.Tenant, hash string) (io.ReadCloser, error) {
	backend := r.reg.Backend(tenant.BackendName)
	return backend.Get(ctx, StorageKey(tenant.Prefix, hash))
}
