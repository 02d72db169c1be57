// Package config provides configuration loading for ledgerd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration tree for ledgerd.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Logging     LoggingConfig     `koanf:"logging"`
	Extraction  ExtractionConfig  `koanf:"extraction"`
	Vendor      VendorConfig      `koanf:"vendor"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address. Default: 127.0.0.1
	Host string `koanf:"host"`
	// Port is the HTTP listen port. Default: 8420
	Port int `koanf:"port"`
	// ShutdownTimeout bounds graceful shutdown. Default: 10s
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds relational storage settings.
type DatabaseConfig struct {
	// DSN is the Postgres connection string.
	DSN Secret `koanf:"dsn"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string `koanf:"level"`
	// Format is "json" or "console". Default: json
	Format string `koanf:"format"`
}

// ExtractionConfig holds field-extraction pipeline settings.
type ExtractionConfig struct {
	// ConfidenceThreshold below which a template match falls through to
	// the generative extractor. Default: 0.8
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`
	// TemplatesDir is an optional directory of user-supplied templates.
	TemplatesDir string `koanf:"templates_dir"`
	// Generative configures the LLM extraction collaborator.
	Generative GenerativeConfig `koanf:"generative"`
}

// GenerativeConfig holds LLM extraction client settings.
type GenerativeConfig struct {
	// BaseURL of the completion API. Default: https://api.anthropic.com
	BaseURL string `koanf:"base_url"`
	// Model name. Default: claude-3-5-haiku-latest
	Model string `koanf:"model"`
	// APIKey for the completion API. Empty disables the generative stage.
	APIKey Secret `koanf:"api_key"`
	// Timeout per request. Default: 30s
	Timeout Duration `koanf:"timeout"`
	// MaxRetries for transient failures. Default: 3
	MaxRetries int `koanf:"max_retries"`
}

// VendorConfig holds vendor canonicalization settings.
type VendorConfig struct {
	// FuzzyThreshold is the minimum similarity ratio (0-1) for reusing an
	// existing canonical vendor. Default: 0.85
	FuzzyThreshold float64 `koanf:"fuzzy_threshold"`
}

// EmbeddingsConfig holds embedding generation settings.
type EmbeddingsConfig struct {
	// Provider is the primary provider: "fastembed" or "tei". Default: fastembed
	Provider string `koanf:"provider"`
	// Fallback is an optional secondary provider used when the primary is
	// exhausted. Empty disables fallback.
	Fallback string `koanf:"fallback"`
	// Model is the embedding model name. Default: BAAI/bge-small-en-v1.5
	Model string `koanf:"model"`
	// BaseURL is the TEI endpoint (tei provider only).
	BaseURL string `koanf:"base_url"`
	// CacheDir caches downloaded model files (fastembed provider only).
	CacheDir string `koanf:"cache_dir"`
	// MaxRetries per provider before falling back. Default: 3
	MaxRetries int `koanf:"max_retries"`
	// BaseBackoff is the initial retry backoff. Default: 500ms
	BaseBackoff Duration `koanf:"base_backoff"`
}

// VectorStoreConfig holds vector storage and index settings.
type VectorStoreConfig struct {
	// Backend is "pgvector" or "chromem". Default: pgvector
	Backend string `koanf:"backend"`
	// Metric is "cosine", "l2" or "ip". Applied consistently within one
	// deployment. Default: cosine
	Metric string `koanf:"metric"`
	// Path is the persistence directory (chromem backend only).
	Path string `koanf:"path"`
	// MaintenanceInterval between ANN index rebuild checks. Default: 10m
	MaintenanceInterval Duration `koanf:"maintenance_interval"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8420
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Extraction.ConfidenceThreshold == 0 {
		c.Extraction.ConfidenceThreshold = 0.8
	}
	if c.Extraction.Generative.BaseURL == "" {
		c.Extraction.Generative.BaseURL = "https://api.anthropic.com"
	}
	if c.Extraction.Generative.Model == "" {
		c.Extraction.Generative.Model = "claude-3-5-haiku-latest"
	}
	if c.Extraction.Generative.Timeout == 0 {
		c.Extraction.Generative.Timeout = Duration(30 * time.Second)
	}
	if c.Extraction.Generative.MaxRetries == 0 {
		c.Extraction.Generative.MaxRetries = 3
	}
	if c.Vendor.FuzzyThreshold == 0 {
		c.Vendor.FuzzyThreshold = 0.85
	}
	if c.Embeddings.Provider == "" {
		c.Embeddings.Provider = "fastembed"
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if c.Embeddings.MaxRetries == 0 {
		c.Embeddings.MaxRetries = 3
	}
	if c.Embeddings.BaseBackoff == 0 {
		c.Embeddings.BaseBackoff = Duration(500 * time.Millisecond)
	}
	if c.VectorStore.Backend == "" {
		c.VectorStore.Backend = "pgvector"
	}
	if c.VectorStore.Metric == "" {
		c.VectorStore.Metric = "cosine"
	}
	if c.VectorStore.MaintenanceInterval == 0 {
		c.VectorStore.MaintenanceInterval = Duration(10 * time.Minute)
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level invalid: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format invalid: %q", c.Logging.Format)
	}
	if c.Extraction.ConfidenceThreshold < 0 || c.Extraction.ConfidenceThreshold > 1 {
		return fmt.Errorf("extraction.confidence_threshold out of range: %f", c.Extraction.ConfidenceThreshold)
	}
	if c.Vendor.FuzzyThreshold < 0 || c.Vendor.FuzzyThreshold > 1 {
		return fmt.Errorf("vendor.fuzzy_threshold out of range: %f", c.Vendor.FuzzyThreshold)
	}
	switch c.Embeddings.Provider {
	case "fastembed", "tei":
	default:
		return fmt.Errorf("embeddings.provider invalid: %q", c.Embeddings.Provider)
	}
	switch c.Embeddings.Fallback {
	case "", "fastembed", "tei":
	default:
		return fmt.Errorf("embeddings.fallback invalid: %q", c.Embeddings.Fallback)
	}
	if c.Embeddings.Fallback == c.Embeddings.Provider && c.Embeddings.Fallback != "" {
		return fmt.Errorf("embeddings.fallback duplicates primary provider %q", c.Embeddings.Provider)
	}
	switch c.VectorStore.Backend {
	case "pgvector", "chromem":
	default:
		return fmt.Errorf("vectorstore.backend invalid: %q", c.VectorStore.Backend)
	}
	switch c.VectorStore.Metric {
	case "cosine", "l2", "ip":
	default:
		return fmt.Errorf("vectorstore.metric invalid: %q", c.VectorStore.Metric)
	}
	if c.VectorStore.Backend == "pgvector" && !c.Database.DSN.IsSet() {
		return fmt.Errorf("database.dsn required for pgvector backend")
	}
	return nil
}
