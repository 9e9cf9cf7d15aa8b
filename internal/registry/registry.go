// Package registry holds the process-wide tenant registry: the immutable
// mapping from bearer tokens to tenants and from backend names to live
// storage adapters.
//
// The registry is built once before the HTTP server accepts connections and
// never mutated afterward, so it is shared by reference across requests
// without locking.
package registry

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/cachegate/cachegate/internal/config"
	"github.com/cachegate/cachegate/internal/storage"
)

// Tenant is a resolved authorization principal: a bearer token bound to a
// backend and a normalized key prefix.
type Tenant struct {
	// Name is the unique, human-readable tenant name.
	Name string
	// BackendName references the backend this tenant stores into.
	BackendName string
	// Prefix is the canonicalized key prefix ("" or "/…", no trailing "/").
	Prefix string
	// Token is the bearer secret.
	Token string
}

// Registry maps bearer tokens to tenants and backend names to adapters.
type Registry struct {
	tenants  []*Tenant
	backends map[string]storage.Backend
}

// New builds a Registry from resolved configuration and constructed
// adapters. Every tenant's backend reference must resolve; config
// validation guarantees this, but the check is repeated here because the
// registry is the last line before requests flow.
func New(cfg *config.Config, backends map[string]storage.Backend) (*Registry, error) {
	r := &Registry{backends: backends}
	for _, tc := range cfg.Tenants {
		if _, ok := backends[tc.Backend]; !ok {
			return nil, fmt.Errorf("tenant %q references backend %q with no adapter", tc.Name, tc.Backend)
		}
		r.tenants = append(r.tenants, &Tenant{
			Name:        tc.Name,
			BackendName: tc.Backend,
			Prefix:      tc.Prefix,
			Token:       tc.Token,
		})
	}
	if len(r.tenants) == 0 {
		return nil, fmt.Errorf("no tenants configured")
	}
	return r, nil
}

// Lookup resolves a bearer token to its tenant, or nil when no tenant
// matches. Every configured token is compared with a constant-time byte
// equality and the walk never short-circuits, denying timing side-channels
// across tokens.
func (r *Registry) Lookup(token string) *Tenant {
	candidate := []byte(token)
	var matched *Tenant
	for _, t := range r.tenants {
		if subtle.ConstantTimeCompare(candidate, []byte(t.Token)) == 1 && matched == nil {
			matched = t
		}
	}
	return matched
}

// Backend returns the live adapter for a backend name. The name comes from
// a Tenant produced by this registry, so a miss is a programming error.
func (r *Registry) Backend(name string) storage.Backend {
	return r.backends[name]
}

// TenantNames enumerates the configured tenant names, for startup logs and
// metrics.
func (r *Registry) TenantNames() []string {
	names := make([]string, 0, len(r.tenants))
	for _, t := range r.tenants {
		names = append(names, t.Name)
	}
	return names
}

// PingAll probes every configured backend, collecting each failure. It is
// the startup gate: any error aborts boot before the listener binds.
func (r *Registry) PingAll(ctx context.Context) error {
	var errs []error
	for name, b := range r.backends {
		if err := b.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("backend %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
