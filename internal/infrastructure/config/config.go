// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml), ${VAR} references expanded
//  2. Environment variables (fallback), prefixed RECONCILE_
//
// Values missing from the YAML file keep their environment or default value.
//
// Example usage:
//
//	cfg, err := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	tolerance := cfg.Reconciliation.AmountTolerance
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv
const EnvPrefix = "RECONCILE"

// Config represents the entire application configuration
type Config struct {
	Storage        StorageConfig        `yaml:"storage" envconfig:"STORAGE"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation" envconfig:"MATCH"`
	Sync           SyncConfig           `yaml:"sync" envconfig:"SYNC"`
	Columns        ColumnsConfig        `yaml:"columns" envconfig:"COLUMNS"`
	Ingest         IngestConfig         `yaml:"ingest" envconfig:"INGEST"`
	Lock           LockConfig           `yaml:"lock" envconfig:"LOCK"`
	API            APIConfig            `yaml:"api" envconfig:"API"`
	Observability  ObservabilityConfig  `yaml:"observability" envconfig:"OBS"`
}

// StorageConfig selects the record store
type StorageConfig struct {
	Driver       string `yaml:"driver" envconfig:"DRIVER" default:"sqlite"` // sqlite | postgres
	DatabasePath string `yaml:"database_path" envconfig:"DB_PATH" default:"reconcile.db"`
	PostgresDSN  string `yaml:"postgres_dsn" envconfig:"PG_DSN"`
}

// ReconciliationConfig holds matching settings
type ReconciliationConfig struct {
	AmountTolerance float64 `yaml:"amount_tolerance" envconfig:"TOLERANCE" default:"0.05"`
}

// SyncConfig holds store read/write settings
type SyncConfig struct {
	PageSize     int           `yaml:"page_size" envconfig:"PAGE_SIZE" default:"1000"`
	BatchSize    int           `yaml:"batch_size" envconfig:"BATCH_SIZE" default:"100"`
	BatchDelay   time.Duration `yaml:"batch_delay" envconfig:"BATCH_DELAY" default:"50ms"`
	MaxRetries   int           `yaml:"max_retries" envconfig:"MAX_RETRIES" default:"2"`
	RetryBackoff time.Duration `yaml:"retry_backoff" envconfig:"RETRY_BACKOFF" default:"200ms"`
}

// ColumnsConfig names the identity columns of each export. Empty fields
// take the built-in export layout.
type ColumnsConfig struct {
	Invoice ledger.Columns `yaml:"invoice" envconfig:"INVOICE"`
	Bank    ledger.Columns `yaml:"bank" envconfig:"BANK"`
}

// IngestConfig controls CSV reading
type IngestConfig struct {
	Encoding  string `yaml:"encoding" envconfig:"ENCODING" default:"utf-8"`
	Delimiter string `yaml:"delimiter" envconfig:"DELIMITER"` // empty: detect
}

// LockConfig selects the busy gate
type LockConfig struct {
	Driver    string        `yaml:"driver" envconfig:"DRIVER" default:"local"` // local | redis
	RedisAddr string        `yaml:"redis_addr" envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Key       string        `yaml:"key" envconfig:"KEY" default:"reconcile:state:lock"`
	TTL       time.Duration `yaml:"ttl" envconfig:"TTL" default:"2m"`
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	Port           int      `yaml:"port" envconfig:"PORT" default:"8080"`
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
	// RateLimit is mutation requests per minute per client; 0 disables it.
	RateLimit int `yaml:"rate_limit" envconfig:"RATE_LIMIT" default:"60"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" envconfig:"LOG"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format string `yaml:"format" envconfig:"FORMAT" default:"text"` // text | json
}

// Load reads and parses the config file. Environment and defaults fill
// whatever the file leaves out.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${RECONCILE_PG_PASSWORD})
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() (*Config, error) {
	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	return &cfg, nil
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() (*Config, error) {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from the specified path. A missing file
// falls back to environment variables; an unreadable or invalid one is an error.
func LoadOrEnvWithPath(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return LoadFromEnv()
	}
	return cfg, err
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	var problems []string

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.DatabasePath == "" {
			problems = append(problems, "storage.database_path is required for sqlite")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			problems = append(problems, "storage.postgres_dsn is required for postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("storage.driver %q is not sqlite or postgres", c.Storage.Driver))
	}

	if c.Reconciliation.AmountTolerance < 0 {
		problems = append(problems, "reconciliation.amount_tolerance must not be negative")
	}
	if c.Sync.MaxRetries < 0 {
		problems = append(problems, "sync.max_retries must not be negative")
	}
	if n := utf8.RuneCountInString(c.Ingest.Delimiter); n > 1 && c.Ingest.Delimiter != `\t` {
		problems = append(problems, "ingest.delimiter must be a single character")
	}

	switch c.Lock.Driver {
	case "local":
	case "redis":
		if c.Lock.RedisAddr == "" {
			problems = append(problems, "lock.redis_addr is required for redis")
		}
	default:
		problems = append(problems, fmt.Sprintf("lock.driver %q is not local or redis", c.Lock.Driver))
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DelimiterRune returns the configured CSV delimiter, or 0 to detect it
func (c IngestConfig) DelimiterRune() rune {
	if c.Delimiter == "" {
		return 0
	}
	if c.Delimiter == `\t` {
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}
