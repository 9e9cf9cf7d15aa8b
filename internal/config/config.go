// Package config handles loading and validation of CacheGate configuration.
//
// The YAML file declares storage backends and tenants. Secrets (tenant
// tokens, backend credentials) may be given literally or indirected through
// environment variables via the *_env fields; Load resolves everything so
// the rest of the process only ever sees final strings.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend kinds accepted in the "kind" field.
const (
	KindS3     = "s3"
	KindGCS    = "gcs"
	KindAzure  = "azure"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// Config is the top-level, fully resolved CacheGate configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
	Backends      []BackendConfig     `yaml:"backends"`
	Tenants       []TenantConfig      `yaml:"tenants"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// ShutdownTimeout is the graceful shutdown drain window in seconds.
	ShutdownTimeout int `yaml:"shutdown_timeout"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `yaml:"level"`
	// Format is the log output format: "text" or "json".
	Format string `yaml:"format"`
}

// ObservabilityConfig holds settings for the metrics endpoint.
type ObservabilityConfig struct {
	// Metrics enables the /metrics Prometheus endpoint.
	Metrics bool `yaml:"metrics"`
}

// BackendConfig describes one storage endpoint. Name must be unique; kind
// selects the adapter. Credential fields come in value/env pairs: the
// literal value wins, otherwise the named environment variable is read.
type BackendConfig struct {
	// Name is the unique logical name tenants reference.
	Name string `yaml:"name"`
	// Kind selects the adapter: "s3" (default), "gcs", "azure", "sqlite", "memory".
	Kind string `yaml:"kind"`
	// Bucket is the remote bucket (s3/gcs) or container (azure) name.
	Bucket string `yaml:"bucket"`
	// Region is the AWS region; auto-discovered when empty.
	Region string `yaml:"region"`
	// EndpointURL is a custom S3-compatible endpoint (MinIO, RustFS, Garage, …).
	EndpointURL string `yaml:"endpoint_url"`
	// ForcePathStyle forces path-style addressing, required by most
	// S3-compatible services.
	ForcePathStyle bool `yaml:"force_path_style"`

	AccessKeyID        string `yaml:"access_key_id"`
	AccessKeyIDEnv     string `yaml:"access_key_id_env"`
	SecretAccessKey    string `yaml:"secret_access_key"`
	SecretAccessKeyEnv string `yaml:"secret_access_key_env"`
	SessionToken       string `yaml:"session_token"`
	SessionTokenEnv    string `yaml:"session_token_env"`

	// CredentialsFile is a GCS service-account JSON path (kind gcs).
	CredentialsFile string `yaml:"credentials_file"`
	// AccountURL is the Azure storage account URL (kind azure).
	AccountURL string `yaml:"account_url"`
	// ConnectionString is Azure connection-string auth (kind azure).
	ConnectionString string `yaml:"connection_string"`
	// Path is the database file path (kind sqlite).
	Path string `yaml:"path"`

	// TimeoutSeconds bounds every storage operation against this backend
	// (kinds s3, gcs and azure; the sqlite and memory backends do not use it).
	TimeoutSeconds int `yaml:"timeout"`
}

// Timeout returns the per-operation timeout as a duration.
func (b *BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// TenantConfig describes one authorization principal: a bearer token bound
// to a backend and a key prefix.
type TenantConfig struct {
	// Name is the unique, human-readable tenant name.
	Name string `yaml:"name"`
	// Backend references a BackendConfig by its logical name.
	Backend string `yaml:"backend"`
	// Prefix namespaces the tenant's keys; normalized by Load.
	Prefix string `yaml:"prefix"`
	// Token is the bearer secret; TokenEnv names an env var holding it.
	Token    string `yaml:"token"`
	TokenEnv string `yaml:"token_env"`
}

// Load reads a YAML configuration file, resolves environment-variable
// indirections, applies defaults, normalizes prefixes, and validates the
// result. The returned Config is final: no field still references an
// environment variable.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read; exposed for tests.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)

	if err := resolve(cfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in any fields still at their zero value after YAML
// unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		if b.Kind == "" {
			b.Kind = KindS3
		}
		if b.TimeoutSeconds == 0 {
			b.TimeoutSeconds = 30
		}
	}
}

// resolve replaces env-var indirections with their values and normalizes
// tenant prefixes.
func resolve(cfg *Config) error {
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		b.AccessKeyID = resolveOptional(b.AccessKeyID, b.AccessKeyIDEnv)
		b.SecretAccessKey = resolveOptional(b.SecretAccessKey, b.SecretAccessKeyEnv)
		b.SessionToken = resolveOptional(b.SessionToken, b.SessionTokenEnv)
	}
	for i := range cfg.Tenants {
		t := &cfg.Tenants[i]
		tok, err := resolveRequired(t.Token, t.TokenEnv, fmt.Sprintf("tenant %q token", t.Name))
		if err != nil {
			return err
		}
		t.Token = tok
		t.Prefix = NormalizePrefix(t.Prefix)
	}
	return nil
}

// resolveOptional returns the literal value if set, otherwise the named
// environment variable's value. An unset env var is fine for optional
// fields: the adapter falls back to its ambient credential chain.
func resolveOptional(value, envName string) string {
	if value != "" {
		return value
	}
	if envName != "" {
		return os.Getenv(envName)
	}
	return ""
}

// resolveRequired returns the literal value if set, otherwise the named
// environment variable's value, erroring when neither yields one.
func resolveRequired(value, envName, field string) (string, error) {
	if value != "" {
		return value, nil
	}
	if envName != "" {
		v, ok := os.LookupEnv(envName)
		if !ok {
			return "", fmt.Errorf("%s: environment variable %q not set", field, envName)
		}
		if v == "" {
			return "", fmt.Errorf("%s: environment variable %q is empty", field, envName)
		}
		return v, nil
	}
	return "", fmt.Errorf("%s: must be provided via value or env reference", field)
}

// NormalizePrefix canonicalizes a tenant key prefix: the empty string (or a
// prefix of only slashes) becomes empty; anything else gets exactly one
// leading "/" and loses any trailing "/".
func NormalizePrefix(prefix string) string {
	trimmed := strings.Trim(strings.TrimSpace(prefix), "/")
	if trimmed == "" {
		return ""
	}
	return "/" + trimmed
}

// validate enforces the structural invariants: non-empty lists, unique
// names, resolvable backend references, complete credential pairs, and
// unique tenant tokens.
func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", cfg.Server.Port)
	}

	if len(cfg.Backends) == 0 {
		return fmt.Errorf("at least one backend must be configured")
	}
	backendNames := make(map[string]bool, len(cfg.Backends))
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		if b.Name == "" {
			return fmt.Errorf("backend name cannot be empty")
		}
		if backendNames[b.Name] {
			return fmt.Errorf("duplicate backend name %q", b.Name)
		}
		backendNames[b.Name] = true

		switch b.Kind {
		case KindS3, KindGCS, KindAzure:
			if b.Bucket == "" {
				return fmt.Errorf("backend %q: bucket is required for kind %q", b.Name, b.Kind)
			}
		case KindSQLite:
			if b.Path == "" {
				return fmt.Errorf("backend %q: path is required for kind sqlite", b.Name)
			}
		case KindMemory:
		default:
			return fmt.Errorf("backend %q: unknown kind %q", b.Name, b.Kind)
		}

		if b.EndpointURL != "" &&
			!strings.HasPrefix(b.EndpointURL, "http://") && !strings.HasPrefix(b.EndpointURL, "https://") {
			return fmt.Errorf("backend %q: endpoint URL must start with http:// or https://", b.Name)
		}

		// Static credentials are all-or-nothing: a half pair silently falling
		// back to the ambient chain would mask a config mistake.
		if (b.AccessKeyID == "") != (b.SecretAccessKey == "") {
			return fmt.Errorf("backend %q: access_key_id and secret_access_key must be provided together", b.Name)
		}
	}

	if len(cfg.Tenants) == 0 {
		return fmt.Errorf("at least one tenant must be configured")
	}
	tenantNames := make(map[string]bool, len(cfg.Tenants))
	tokens := make(map[string]string, len(cfg.Tenants))
	for i := range cfg.Tenants {
		t := &cfg.Tenants[i]
		if t.Name == "" {
			return fmt.Errorf("tenant name cannot be empty")
		}
		if tenantNames[t.Name] {
			return fmt.Errorf("duplicate tenant name %q", t.Name)
		}
		tenantNames[t.Name] = true

		if !backendNames[t.Backend] {
			return fmt.Errorf("tenant %q references unknown backend %q", t.Name, t.Backend)
		}
		if other, dup := tokens[t.Token]; dup {
			return fmt.Errorf("tenant %q shares its token with tenant %q", t.Name, other)
		}
		tokens[t.Token] = t.Name
	}

	return nil
}
