// Package main is the entry point for the CacheGate remote build-cache server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cachegate/cachegate/internal/config"
	"github.com/cachegate/cachegate/internal/logging"
	"github.com/cachegate/cachegate/internal/metrics"
	"github.com/cachegate/cachegate/internal/registry"
	"github.com/cachegate/cachegate/internal/server"
	"github.com/cachegate/cachegate/internal/storage"
)

func main() {
	configPath := flag.String("config", "cachegate.yaml", "path to configuration file")
	port := flag.Int("port", 0, "override listening port (default: from config)")
	host := flag.String("host", "", "override listening host (default: from config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags override config file values.
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}

	logging.Setup(cfg.Logging, os.Stderr)

	ctx := context.Background()

	backends, closeAll, err := buildBackends(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize storage backends: %v\n", err)
		os.Exit(1)
	}
	defer closeAll()

	reg, err := registry.New(cfg, backends)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build tenant registry: %v\n", err)
		os.Exit(1)
	}

	slog.Info("tenants configured", "count", len(reg.TenantNames()))
	for _, name := range reg.TenantNames() {
		slog.Info("tenant configured", "tenant", name)
	}

	// Fail-fast gate: every backend must answer before the listener binds.
	slog.Info("probing backend connectivity")
	if err := reg.PingAll(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "backend connectivity probe failed: %v\n\n", err)
		fmt.Fprintf(os.Stderr, "Please verify:\n")
		fmt.Fprintf(os.Stderr, "  - credentials are valid\n")
		fmt.Fprintf(os.Stderr, "  - bucket names are correct\n")
		fmt.Fprintf(os.Stderr, "  - buckets exist and are accessible\n")
		fmt.Fprintf(os.Stderr, "  - region is correct\n")
		fmt.Fprintf(os.Stderr, "  - network connectivity to the endpoint\n")
		os.Exit(1)
	}
	slog.Info("all backend connectivity probes passed")

	if cfg.Observability.Metrics {
		metrics.Register()
	}

	srv := server.New(cfg, reg)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("cachegate listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		slog.Info("server stopped")

	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}
}

// buildBackends constructs one storage adapter per configured backend and
// returns them keyed by name, plus a teardown closing any that hold local
// resources.
func buildBackends(ctx context.Context, cfg *config.Config) (map[string]storage.Backend, func(), error) {
	backends := make(map[string]storage.Backend, len(cfg.Backends))
	var closers []func() error

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("closing backend", "error", err)
			}
		}
	}

	for _, bc := range cfg.Backends {
		var (
			backend storage.Backend
			err     error
		)
		switch bc.Kind {
		case config.KindS3:
			backend, err = storage.NewS3Backend(ctx, bc)
		case config.KindGCS:
			backend, err = storage.NewGCSBackend(ctx, bc)
		case config.KindAzure:
			backend, err = storage.NewAzureBackend(ctx, bc)
		case config.KindSQLite:
			var sb *storage.SQLiteBackend
			sb, err = storage.NewSQLiteBackend(bc.Path)
			if err == nil {
				closers = append(closers, sb.Close)
				backend = sb
			}
		case config.KindMemory:
			backend = storage.NewMemoryBackend()
		default:
			err = fmt.Errorf("unknown backend kind %q", bc.Kind)
		}
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("backend %q: %w", bc.Name, err)
		}
		backends[bc.Name] = backend
		slog.Info("backend initialized", "backend", bc.Name, "kind", bc.Kind)
	}

	return backends, closeAll, nil
}
