// Package logging configures CacheGate's structured logging and defines the
// canonical log attributes shared across the request path.
package logging

import (
	"io"
	"log/slog"

	"github.com/cachegate/cachegate/internal/config"
)

// Setup installs the process-wide default logger according to the logging
// config and returns it. An unknown level falls back to info, an unknown
// format to text.
func Setup(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// Tenant returns the canonical attribute group identifying a tenant
// (tenant.name, tenant.backend, tenant.prefix), used by the auth
// middleware's log lines.
func Tenant(name, backend, prefix string) slog.Attr {
	return slog.Group("tenant",
		slog.String("name", name),
		slog.String("backend", backend),
		slog.String("prefix", prefix),
	)
}
