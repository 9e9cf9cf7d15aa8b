// Package storage provides the Azure Blob Storage adapter for CacheGate.
//
// Credentials are resolved via a connection string when configured,
// otherwise DefaultAzureCredential (env vars, managed identity, Azure CLI).
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cachegate/cachegate/internal/config"
)

// AzureBlobAPI defines the subset of the Azure Blob Storage client interface
// that the adapter uses. This allows mocking in tests.
type AzureBlobAPI interface {
	// Upload streams data to a blob, overwriting if it already exists.
	Upload(ctx context.Context, blob string, body io.Reader) error
	// Download opens a blob's contents as a stream.
	Download(ctx context.Context, blob string) (io.ReadCloser, error)
	// Exists checks whether a blob exists.
	Exists(ctx context.Context, blob string) (bool, error)
	// PingContainer verifies the configured container is accessible.
	PingContainer(ctx context.Context) error
}

// AzureBackend implements Backend against an Azure Blob Storage container.
type AzureBackend struct {
	// Container is the upstream Azure Blob container name.
	Container string
	// client is the Azure Blob client (satisfying AzureBlobAPI).
	client AzureBlobAPI
	// timeout bounds each storage operation.
	timeout time.Duration
}

// NewAzureBackend creates an AzureBackend from the resolved backend
// configuration. The container name comes from the config's bucket field.
func NewAzureBackend(ctx context.Context, cfg config.BackendConfig) (*AzureBackend, error) {
	client, err := newRealAzureClient(cfg.AccountURL, cfg.ConnectionString, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("creating Azure client for backend %q: %w", cfg.Name, err)
	}

	slog.Info("azure backend initialized",
		"backend", cfg.Name, "container", cfg.Bucket, "account", cfg.AccountURL)
	return NewAzureBackendWithClient(cfg.Bucket, cfg.Timeout(), client), nil
}

// NewAzureBackendWithClient creates an AzureBackend with a pre-configured
// client. This is primarily used for testing with mock clients.
func NewAzureBackendWithClient(container string, timeout time.Duration, client AzureBlobAPI) *AzureBackend {
	return &AzureBackend{Container: container, client: client, timeout: timeout}
}

// Exists checks the blob via a properties fetch.
func (b *AzureBackend) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	ok, err := b.client.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%w: head %q: %v", ErrUnavailable, key, err)
	}
	return ok, nil
}

// Put streams body to the blob via the SDK's block-staging upload, which
// consumes the reader incrementally. The size hint is unused: Azure block
// uploads need no Content-Length up front.
func (b *AzureBackend) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	if err := b.client.Upload(ctx, key, body); err != nil {
		return fmt.Errorf("%w: put %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Get opens the blob as a network stream. The operation timeout stays armed
// until the caller closes the body.
func (b *AzureBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, cancel := opContext(ctx, b.timeout)

	r, err := b.client.Download(ctx, key)
	if err != nil {
		cancel()
		if isAzureNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: get %q: %v", ErrUnavailable, key, err)
	}
	return &cancelReadCloser{ReadCloser: r, cancel: cancel}, nil
}

// Ping verifies that the container is accessible.
func (b *AzureBackend) Ping(ctx context.Context) error {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	if err := b.client.PingContainer(ctx); err != nil {
		return fmt.Errorf("%w: ping container %q: %v", ErrUnavailable, b.Container, err)
	}
	return nil
}

// Ensure AzureBackend implements Backend at compile time.
var _ Backend = (*AzureBackend)(nil)
