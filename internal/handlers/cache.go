// Package handlers implements the HTTP handlers for the cache API.
package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cachegate/cachegate/internal/auth"
	cerr "github.com/cachegate/cachegate/internal/errors"
	"github.com/cachegate/cachegate/internal/metrics"
	"github.com/cachegate/cachegate/internal/router"
	"github.com/cachegate/cachegate/internal/storage"
)

// maxHashLen is the longest accepted artifact hash.
const maxHashLen = 128

// CacheHandler contains the handlers for artifact storage and retrieval.
type CacheHandler struct {
	router *router.Router
}

// NewCacheHandler creates a CacheHandler over the given router.
func NewCacheHandler(rt *router.Router) *CacheHandler {
	return &CacheHandler{router: rt}
}

// ValidHash reports whether a client-supplied hash is acceptable: non-empty,
// at most 128 bytes, every byte in [A-Za-z0-9_-]. No canonicalization is
// performed.
func ValidHash(hash string) bool {
	if hash == "" || len(hash) > maxHashLen {
		return false
	}
	for i := 0; i < len(hash); i++ {
		c := hash[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}

// StoreArtifact handles PUT /v1/cache/{hash}: it streams the request body
// through the router to the tenant's backend. The body is never buffered
// whole; Content-Length, when the client sent one, is forwarded as an
// upload-path hint only.
func (h *CacheHandler) StoreArtifact(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if !ValidHash(hash) {
		metrics.CacheOperationsTotal.WithLabelValues("put", "bad_request").Inc()
		cerr.Write(w, cerr.ErrBadRequest)
		return
	}

	tenant := auth.TenantFrom(r.Context())
	if tenant == nil {
		cerr.Write(w, cerr.ErrUnauthorized)
		return
	}

	// net/http exposes a parsed Content-Length as >= 0 and -1 when the
	// header is absent or the body is chunked, which matches the adapter's
	// SizeUnknown convention directly.
	size := r.ContentLength

	exists, err := h.router.Exists(r.Context(), tenant, hash)
	if err != nil {
		slog.Error("exists check failed", "tenant", tenant.Name, "hash", hash, "error", err)
		metrics.CacheOperationsTotal.WithLabelValues("put", "error").Inc()
		cerr.Write(w, cerr.ErrInternal)
		return
	}
	if exists {
		metrics.CacheOperationsTotal.WithLabelValues("put", "conflict").Inc()
		cerr.Write(w, cerr.ErrConflict)
		return
	}

	if err := h.router.Put(r.Context(), tenant, hash, r.Body, size); err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyExists):
			metrics.CacheOperationsTotal.WithLabelValues("put", "conflict").Inc()
			cerr.Write(w, cerr.ErrConflict)
		default:
			slog.Error("artifact store failed", "tenant", tenant.Name, "hash", hash, "error", err)
			metrics.CacheOperationsTotal.WithLabelValues("put", "error").Inc()
			cerr.Write(w, cerr.ErrInternal)
		}
		return
	}

	metrics.CacheOperationsTotal.WithLabelValues("put", "success").Inc()
	w.WriteHeader(http.StatusOK)
}

// RetrieveArtifact handles GET /v1/cache/{hash}: it streams the artifact
// from the tenant's backend to the client as application/octet-stream.
func (h *CacheHandler) RetrieveArtifact(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if !ValidHash(hash) {
		metrics.CacheOperationsTotal.WithLabelValues("get", "bad_request").Inc()
		cerr.Write(w, cerr.ErrBadRequest)
		return
	}

	tenant := auth.TenantFrom(r.Context())
	if tenant == nil {
		cerr.Write(w, cerr.ErrUnauthorized)
		return
	}

	body, err := h.router.Get(r.Context(), tenant, hash)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			metrics.CacheOperationsTotal.WithLabelValues("get", "not_found").Inc()
			cerr.Write(w, cerr.ErrNotFound)
		default:
			slog.Error("artifact retrieve failed", "tenant", tenant.Name, "hash", hash, "error", err)
			metrics.CacheOperationsTotal.WithLabelValues("get", "error").Inc()
			cerr.Write(w, cerr.ErrInternal)
		}
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)

	// Stream to the client. A failure mid-copy means the status line is
	// already gone; nothing to do but log.
	if _, err := io.Copy(w, body); err != nil {
		slog.Warn("artifact stream aborted", "tenant", tenant.Name, "hash", hash, "error", err)
		metrics.CacheOperationsTotal.WithLabelValues("get", "error").Inc()
		return
	}
	metrics.CacheOperationsTotal.WithLabelValues("get", "success").Inc()
}

// Health handles GET /health. Public, no auth.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
