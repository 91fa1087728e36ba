// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/vectorgate/config.toml",
	"configs/config.toml",
}

// GatewayPrefix is the path prefix reserved for the gateway's own endpoints.
// Everything else belongs to the datastore.
const GatewayPrefix = "/_gateway"

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config         string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host           string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port           int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	InferenceURL   string `kong:"help='Inference engine base URL (overrides config).',env='INFERENCE_URL'"`
	RerankURL      string `kong:"help='Rerank endpoint base URL if not served by the inference engine.',env='RERANK_URL'"`
	DatastoreURL   string `kong:"help='Vector datastore base URL (overrides config).',env='DATASTORE_URL'"`
	BatchSize      int    `kong:"help='Rerank batch size (overrides config).',env='RERANK_BATCH_SIZE'"`
	EmbeddingModel string `kong:"help='Embedding model id (overrides config).',env='EMBEDDING_MODEL'"`
	RerankModel    string `kong:"help='Rerank model id (overrides config).',env='RERANK_MODEL'"`
	LogLevel       string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Inference InferenceConfig `toml:"inference"`
	Datastore DatastoreConfig `toml:"datastore"`
	Models    ModelsConfig    `toml:"models"`
	Search    SearchConfig    `toml:"search"`
	Rerank    RerankConfig    `toml:"rerank"`
	Log       LogConfig       `toml:"log"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Tracing   TracingConfig   `toml:"tracing"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (1335)
	BodyMaxBytes int64           `toml:"body_max_bytes"` // buffered routes only
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// BackendConfig holds connection settings shared by both backends.
type BackendConfig struct {
	BaseURL         string `toml:"base_url"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	IdleConnections int    `toml:"idle_connections"`
}

// InferenceConfig describes the embedding/rerank inference engine.
type InferenceConfig struct {
	BackendConfig
	// RerankURL overrides BaseURL for /v1/rerank when the reranker runs as a
	// separate service.
	RerankURL string `toml:"rerank_url"`
	APIKey    string `toml:"api_key"`
}

// DatastoreConfig describes the vector datastore.
type DatastoreConfig struct {
	BackendConfig
	// GRPCPort enables the gRPC readiness probe when non-zero.
	GRPCPort int    `toml:"grpc_port"`
	APIKey   string `toml:"api_key"`
}

// ModelsConfig holds the logical model identifiers and role prefixes.
type ModelsConfig struct {
	EmbeddingID   string `toml:"embedding_id"`
	RerankID      string `toml:"rerank_id"`
	QueryPrefix   string `toml:"query_prefix"`
	PassagePrefix string `toml:"passage_prefix"`
}

// SearchConfig controls search request inflation.
type SearchConfig struct {
	DefaultLimit   int `toml:"default_limit"`
	CandidateLimit int `toml:"candidate_limit"`
}

// RerankConfig controls the augmentation pipeline.
type RerankConfig struct {
	Disabled  bool `toml:"disabled"`
	BatchSize int  `toml:"batch_size"`
	Workers   int  `toml:"workers"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `toml:"enabled"`
	Endpoint    string `toml:"endpoint"`
	ServiceName string `toml:"service_name"`
}

// Load reads the TOML config file (if any) and applies CLI/env overrides.
// An explicit path that cannot be read is an error; with no explicit path the
// search paths are tried and the file is optional, so the gateway can be
// configured from the environment alone.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.InferenceURL != "" {
		c.Inference.BaseURL = cli.InferenceURL
	}
	if cli.RerankURL != "" {
		c.Inference.RerankURL = cli.RerankURL
	}
	if cli.DatastoreURL != "" {
		c.Datastore.BaseURL = cli.DatastoreURL
	}
	if cli.BatchSize != 0 {
		c.Rerank.BatchSize = cli.BatchSize
	}
	if cli.EmbeddingModel != "" {
		c.Models.EmbeddingID = cli.EmbeddingModel
	}
	if cli.RerankModel != "" {
		c.Models.RerankID = cli.RerankModel
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Backend URLs: required, http or https.
	if err := validateBaseURL("inference.base_url", c.Inference.BaseURL, true); err != nil {
		return err
	}
	if err := validateBaseURL("inference.rerank_url", c.Inference.RerankURL, false); err != nil {
		return err
	}
	if err := validateBaseURL("datastore.base_url", c.Datastore.BaseURL, true); err != nil {
		return err
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Datastore.GRPCPort < 0 || c.Datastore.GRPCPort > 65535 {
		return fmt.Errorf("datastore.grpc_port must be 0–65535; got %d", c.Datastore.GRPCPort)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"inference.timeout_seconds", c.Inference.TimeoutSeconds},
		{"inference.idle_connections", c.Inference.IdleConnections},
		{"datastore.timeout_seconds", c.Datastore.TimeoutSeconds},
		{"datastore.idle_connections", c.Datastore.IdleConnections},
		{"search.default_limit", c.Search.DefaultLimit},
		{"search.candidate_limit", c.Search.CandidateLimit},
		{"rerank.batch_size", c.Rerank.BatchSize},
		{"rerank.workers", c.Rerank.Workers},
	} {
		if f.v < 0 {
			return fmt.Errorf("%s must be non-negative; got %d", f.name, f.v)
		}
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// The metrics endpoint must not shadow datastore paths, which would break
	// proxy transparency.
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if !strings.HasPrefix(p, GatewayPrefix+"/") {
			return fmt.Errorf("metrics.path must live under %s/; got %q", GatewayPrefix, p)
		}
		for _, reserved := range []string{"/healthz", "/readyz", "/status"} {
			if p == GatewayPrefix+reserved {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, GatewayPrefix+reserved)
			}
		}
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint != "" {
		if err := validateBaseURL("tracing.endpoint", c.Tracing.Endpoint, false); err != nil {
			return err
		}
	}
	return nil
}

func validateBaseURL(field, raw string, required bool) error {
	if raw == "" {
		if required {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https; got %q", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host; got %q", field, raw)
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields zero means "unset" because TOML cannot distinguish between
// an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 1335
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 64 * 1024 * 1024 // 64 MB
	}
	c.Inference.BackendConfig.setDefaults(360)
	c.Datastore.BackendConfig.setDefaults(60)
	if c.Inference.RerankURL == "" {
		c.Inference.RerankURL = c.Inference.BaseURL
	}
	if c.Models.EmbeddingID == "" {
		c.Models.EmbeddingID = "jina-code-embeddings"
	}
	if c.Models.RerankID == "" {
		c.Models.RerankID = "jina-reranker-v3"
	}
	if c.Models.QueryPrefix == "" {
		c.Models.QueryPrefix = "Find the most relevant code snippet given the following query:\n"
	}
	if c.Models.PassagePrefix == "" {
		c.Models.PassagePrefix = "Candidate code snippet:\n"
	}
	if c.Search.DefaultLimit == 0 {
		c.Search.DefaultLimit = 20
	}
	if c.Search.CandidateLimit == 0 {
		c.Search.CandidateLimit = 100
	}
	if c.Rerank.BatchSize == 0 {
		c.Rerank.BatchSize = 16
	}
	if c.Rerank.Workers == 0 {
		c.Rerank.Workers = 4
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = GatewayPrefix + "/metrics"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "vectorgate"
	}
}

func (b *BackendConfig) setDefaults(timeoutSeconds int) {
	b.BaseURL = strings.TrimRight(b.BaseURL, "/")
	if b.TimeoutSeconds == 0 {
		b.TimeoutSeconds = timeoutSeconds
	}
	if b.IdleConnections == 0 {
		b.IdleConnections = 100
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
