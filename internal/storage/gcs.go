// Package storage provides the Google Cloud Storage adapter for CacheGate.
//
// Credentials are resolved via Application Default Credentials
// (GOOGLE_APPLICATION_CREDENTIALS, gcloud auth, metadata server), or a
// service-account JSON file when the backend config names one.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/cachegate/cachegate/internal/config"
)

// GCSAPI defines the subset of the GCS client interface that the adapter
// uses. This allows mocking in tests.
type GCSAPI interface {
	// NewWriter returns a streaming writer for the given object.
	NewWriter(ctx context.Context, object string) io.WriteCloser
	// NewReader returns a streaming reader for the given object.
	NewReader(ctx context.Context, object string) (io.ReadCloser, error)
	// Attrs fetches the attributes of the given object.
	Attrs(ctx context.Context, object string) error
	// BucketAttrs fetches the attributes of the configured bucket.
	BucketAttrs(ctx context.Context) error
}

// realGCSClient wraps the official GCS client to satisfy GCSAPI, pinned to
// one bucket.
type realGCSClient struct {
	bucket *gcs.BucketHandle
}

func (c *realGCSClient) NewWriter(ctx context.Context, object string) io.WriteCloser {
	return c.bucket.Object(object).NewWriter(ctx)
}

func (c *realGCSClient) NewReader(ctx context.Context, object string) (io.ReadCloser, error) {
	return c.bucket.Object(object).NewReader(ctx)
}

func (c *realGCSClient) Attrs(ctx context.Context, object string) error {
	_, err := c.bucket.Object(object).Attrs(ctx)
	return err
}

func (c *realGCSClient) BucketAttrs(ctx context.Context) error {
	_, err := c.bucket.Attrs(ctx)
	return err
}

// GCSBackend implements Backend against a Google Cloud Storage bucket.
type GCSBackend struct {
	// Bucket is the remote GCS bucket name.
	Bucket string
	// client is the GCS client (satisfying the GCSAPI interface).
	client GCSAPI
	// timeout bounds each storage operation.
	timeout time.Duration
}

// NewGCSBackend creates a GCSBackend from the resolved backend
// configuration, using ADC unless a credentials file is configured.
func NewGCSBackend(ctx context.Context, cfg config.BackendConfig) (*GCSBackend, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client for backend %q: %w", cfg.Name, err)
	}

	slog.Info("gcs backend initialized", "backend", cfg.Name, "bucket", cfg.Bucket)
	return NewGCSBackendWithClient(cfg.Bucket, cfg.Timeout(),
		&realGCSClient{bucket: client.Bucket(cfg.Bucket)}), nil
}

// NewGCSBackendWithClient creates a GCSBackend with a pre-configured client.
// This is primarily used for testing with mock clients.
func NewGCSBackendWithClient(bucket string, timeout time.Duration, client GCSAPI) *GCSBackend {
	return &GCSBackend{Bucket: bucket, client: client, timeout: timeout}
}

// Exists checks the key via an attribute fetch.
func (b *GCSBackend) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	err := b.client.Attrs(ctx, key)
	if err != nil {
		if isGCSNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: attrs %q: %v", ErrUnavailable, key, err)
	}
	return true, nil
}

// Put streams body through a GCS object writer. The writer chunks the
// stream internally; the size hint is unused because GCS needs no
// Content-Length up front.
func (b *GCSBackend) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	w := b.client.NewWriter(ctx, key)
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return fmt.Errorf("%w: put %q: %v", ErrUnavailable, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: finalize put %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Get opens the object as a network stream. The operation timeout stays
// armed until the caller closes the body.
func (b *GCSBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, cancel := opContext(ctx, b.timeout)

	r, err := b.client.NewReader(ctx, key)
	if err != nil {
		cancel()
		if isGCSNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: get %q: %v", ErrUnavailable, key, err)
	}
	return &cancelReadCloser{ReadCloser: r, cancel: cancel}, nil
}

// Ping fetches the bucket attributes, verifying reachability and
// credentials.
func (b *GCSBackend) Ping(ctx context.Context) error {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	if err := b.client.BucketAttrs(ctx); err != nil {
		return fmt.Errorf("%w: ping bucket %q: %v", ErrUnavailable, b.Bucket, err)
	}
	return nil
}

// isGCSNotFound checks if a GCS error is a 404/not-found error.
func isGCSNotFound(err error) bool {
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		return true
	}
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "not found") || strings.Contains(msg, "404") {
			return true
		}
	}
	return false
}

// Ensure GCSBackend implements Backend at compile time.
var _ Backend = (*GCSBackend)(nil)
