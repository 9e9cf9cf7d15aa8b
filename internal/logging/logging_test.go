package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/cachegate/cachegate/internal/config"
)

func TestSetupLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(config.LoggingConfig{Level: "warn", Format: "text"}, &buf)

	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(out, "visible") {
		t.Error("warn line should pass at warn level")
	}
}

func TestSetupUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(config.LoggingConfig{Level: "loud", Format: "text"}, &buf)

	logger.Debug("hidden")
	logger.Info("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug line should be filtered at the info fallback level")
	}
	if !strings.Contains(out, "visible") {
		t.Error("info line should pass at the info fallback level")
	}
}

func TestSetupJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	logger.Info("hello")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("json format should emit JSON objects, got %q", buf.String())
	}
}

func TestTenantAttr(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	logger.Info("authenticated", Tenant("ci", "primary", "/ci"))

	out := buf.String()
	for _, want := range []string{"tenant.name=ci", "tenant.backend=primary", "tenant.prefix=/ci"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %q missing %q", out, want)
		}
	}
}
