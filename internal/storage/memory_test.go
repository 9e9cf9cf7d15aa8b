package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func TestMemoryBackendRoundTrip(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	ok, err := b.Exists(ctx, "h1")
	if err != nil || ok {
		t.Fatalf("Exists() before put = %v, %v; want false, nil", ok, err)
	}

	if err := b.Put(ctx, "h1", bytes.NewReader([]byte("Hello")), 5); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	ok, err = b.Exists(ctx, "h1")
	if err != nil || !ok {
		t.Fatalf("Exists() after put = %v, %v; want true, nil", ok, err)
	}

	r, err := b.Get(ctx, "h1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	defer r.Close()
	got, _ := io.ReadAll(r)
	if string(got) != "Hello" {
		t.Errorf("Get() body = %q, want Hello", got)
	}
}

func TestMemoryBackendGetMissing(t *testing.T) {
	b := NewMemoryBackend()
	if _, err := b.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() = %v, want ErrNotFound", err)
	}
}

func TestMemoryBackendPing(t *testing.T) {
	if err := NewMemoryBackend().Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
}
