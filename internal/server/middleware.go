package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cachegate/cachegate/internal/metrics"
)

// generateRequestID generates a 16-character hexadecimal request ID using
// crypto/rand for randomness.
func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// Fallback: should never happen with crypto/rand, but if it does,
		// use a timestamp-based value rather than panicking.
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// requestIDMiddleware stamps every response with an x-request-id header so
// client-side failures can be correlated with server logs.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-request-id", generateRequestID())
		next.ServeHTTP(w, r)
	})
}

// statusWriter wraps http.ResponseWriter to observe the status code and the
// payload size flowing back to the client. A zero status means the handler
// never wrote; callers treat that as an implicit 200.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

// Flush keeps the wrapped writer streamable: artifact downloads must not
// stall behind the instrumentation.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// metricsMiddleware records the RED metrics for every request and emits a
// debug-level access line. The /metrics endpoint itself passes through
// uninstrumented to avoid self-counting.
//
// Request size is taken from Content-Length rather than counting body
// bytes: the body flows straight to the storage adapter and is not ours to
// re-read.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(sw, r)
		elapsed := time.Since(start)

		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		path := metrics.NormalizePath(r.URL.Path)

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(elapsed.Seconds())
		if r.ContentLength > 0 {
			metrics.HTTPRequestSize.WithLabelValues(r.Method, path).Observe(float64(r.ContentLength))
			metrics.BytesReceivedTotal.Add(float64(r.ContentLength))
		}
		if sw.bytes > 0 {
			metrics.HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(sw.bytes))
			metrics.BytesSentTotal.Add(float64(sw.bytes))
		}

		slog.Debug("request served",
			"method", r.Method, "path", path, "status", sw.status,
			"bytes", sw.bytes, "elapsed", elapsed)
	})
}
