package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

// mockAzureClient implements AzureBlobAPI for unit testing.
type mockAzureClient struct {
	blobs map[string][]byte
	// pingErr, when set, is returned from PingContainer.
	pingErr error
}

func newMockAzureClient() *mockAzureClient {
	return &mockAzureClient{blobs: make(map[string][]byte)}
}

func (m *mockAzureClient) Upload(ctx context.Context, blob string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.blobs[blob] = data
	return nil
}

func (m *mockAzureClient) Download(ctx context.Context, blob string) (io.ReadCloser, error) {
	data, ok := m.blobs[blob]
	if !ok {
		return nil, errors.New("RESPONSE 404: BlobNotFound")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockAzureClient) Exists(ctx context.Context, blob string) (bool, error) {
	_, ok := m.blobs[blob]
	return ok, nil
}

func (m *mockAzureClient) PingContainer(ctx context.Context) error {
	return m.pingErr
}

func newTestAzureBackend(mock *mockAzureClient) *AzureBackend {
	return NewAzureBackendWithClient("test-container", 30*time.Second, mock)
}

func TestAzureRoundTrip(t *testing.T) {
	mock := newMockAzureClient()
	b := newTestAzureBackend(mock)
	ctx := context.Background()

	payload := []byte("Hello")
	if err := b.Put(ctx, "ci/abc123", bytes.NewReader(payload), int64(len(payload))); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	ok, err := b.Exists(ctx, "ci/abc123")
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v; want true, nil", ok, err)
	}

	r, err := b.Get(ctx, "ci/abc123")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	defer r.Close()
	got, _ := io.ReadAll(r)
	if !bytes.Equal(got, payload) {
		t.Errorf("Get() body = %q, want %q", got, payload)
	}
}

func TestAzureGetNotFound(t *testing.T) {
	b := newTestAzureBackend(newMockAzureClient())
	if _, err := b.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() = %v, want ErrNotFound", err)
	}
}

func TestAzurePingFailure(t *testing.T) {
	mock := newMockAzureClient()
	mock.pingErr = errors.New("AuthorizationFailure")
	b := newTestAzureBackend(mock)

	if err := b.Ping(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Ping() = %v, want ErrUnavailable", err)
	}
}
