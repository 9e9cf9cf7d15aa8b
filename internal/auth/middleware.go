// Package auth implements bearer-token authentication for the cache routes.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	cerr "github.com/cachegate/cachegate/internal/errors"
	"github.com/cachegate/cachegate/internal/logging"
	"github.com/cachegate/cachegate/internal/registry"
)

// bearerPrefix is the required Authorization scheme. The token is whatever
// follows it, verbatim.
const bearerPrefix = "Bearer "

// contextKey is a private type for context keys defined in this package.
type contextKey int

// tenantKey carries the authenticated tenant through the request context.
const tenantKey contextKey = iota

// TenantFrom returns the tenant attached to an authenticated request, or
// nil when the request never passed the middleware.
func TenantFrom(ctx context.Context) *registry.Tenant {
	t, _ := ctx.Value(tenantKey).(*registry.Tenant)
	return t
}

// ContextWithTenant attaches the resolved tenant to the request context.
// Exposed for handler tests.
func ContextWithTenant(ctx context.Context, t *registry.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// Middleware returns HTTP middleware enforcing bearer-token authentication
// against the registry. The token walk inside Lookup compares every
// configured token in constant time without short-circuiting. On success
// the resolved tenant rides the request context; on failure the response is
// a generic 401 and the attempted token is never logged.
func Middleware(reg *registry.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				slog.Warn("authentication failed: missing bearer token", "path", r.URL.Path)
				cerr.Write(w, cerr.ErrUnauthorized)
				return
			}

			tenant := reg.Lookup(header[len(bearerPrefix):])
			if tenant == nil {
				slog.Warn("authentication failed: invalid token", "path", r.URL.Path)
				cerr.Write(w, cerr.ErrUnauthorized)
				return
			}

			slog.Info("authenticated request",
				logging.Tenant(tenant.Name, tenant.BackendName, tenant.Prefix))
			next.ServeHTTP(w, r.WithContext(ContextWithTenant(r.Context(), tenant)))
		})
	}
}
