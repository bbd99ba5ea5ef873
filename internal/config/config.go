// Package config provides unified configuration for the settld engine and
// its server, REPL, and backup front ends.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the unified configuration for all settld components.
type Config struct {
	// DataDir is the base directory for table and index files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// REPL configuration for the interactive console
	REPL REPLConfig `json:"repl" yaml:"repl"`

	// Audit configuration for the statement log
	Audit AuditConfig `json:"audit" yaml:"audit"`

	// Bloom configuration for scan-skip filters
	Bloom BloomConfig `json:"bloom" yaml:"bloom"`

	// Backup configuration for snapshot archives
	Backup BackupConfig `json:"backup" yaml:"backup"`

	// Settlement configuration for the merchant domain service
	Settlement SettlementConfig `json:"settlement" yaml:"settlement"`

	// Maintenance configuration for background retention jobs
	Maintenance MaintenanceConfig `json:"maintenance" yaml:"maintenance"`

	// Shutdown configuration
	Shutdown ShutdownConfig `json:"shutdown" yaml:"shutdown"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the listen address for the API server
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// REPLConfig holds interactive console configuration.
type REPLConfig struct {
	// Prompt is printed before each new statement
	Prompt string `json:"prompt" yaml:"prompt"`

	// HistorySize is how many entries \history shows without an explicit count
	HistorySize int `json:"history_size" yaml:"history_size"`
}

// AuditConfig holds statement-log configuration.
type AuditConfig struct {
	// Enabled controls whether executed statements are recorded
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the SQLite file holding the statement log
	Path string `json:"path" yaml:"path"`
}

// BloomConfig holds scan-skip filter configuration.
type BloomConfig struct {
	// Enabled controls whether per-column filters are maintained
	Enabled bool `json:"enabled" yaml:"enabled"`

	// FalsePositiveRate is the target false-positive rate per filter
	FalsePositiveRate float64 `json:"false_positive_rate" yaml:"false_positive_rate"`
}

// BackupConfig holds snapshot configuration.
type BackupConfig struct {
	// SnapshotDir is the directory holding local snapshot archives
	SnapshotDir string `json:"snapshot_dir" yaml:"snapshot_dir"`

	// Keep is the number of snapshots retained by pruning
	Keep int `json:"keep" yaml:"keep"`

	// Remote configures an optional off-host copy of each snapshot
	Remote RemoteConfig `json:"remote" yaml:"remote"`
}

// RemoteConfig holds remote snapshot storage configuration.
type RemoteConfig struct {
	// Type is the remote storage type: none, local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the destination directory (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Prefix is prepended to every object key
	Prefix string `json:"prefix" yaml:"prefix"`
}

// SettlementConfig holds merchant settlement configuration.
type SettlementConfig struct {
	// Bootstrap creates the merchants and transactions tables at startup
	Bootstrap bool `json:"bootstrap" yaml:"bootstrap"`

	// FeePercent is the settlement fee charged on gross volume
	FeePercent float64 `json:"fee_percent" yaml:"fee_percent"`
}

// MaintenanceConfig holds background retention configuration.
type MaintenanceConfig struct {
	// Enabled controls whether the retention loop runs inside the server
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Interval is how often retention jobs run
	Interval time.Duration `json:"interval" yaml:"interval"`

	// AuditTTL is how long audit entries are kept; zero keeps them forever
	AuditTTL time.Duration `json:"audit_ttl" yaml:"audit_ttl"`
}

// ShutdownConfig holds graceful shutdown configuration.
type ShutdownConfig struct {
	// Timeout is the overall shutdown deadline
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// DrainTimeout is the deadline for in-flight requests to finish
	DrainTimeout time.Duration `json:"drain_timeout" yaml:"drain_timeout"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/settld",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		REPL: REPLConfig{
			Prompt:      "settld> ",
			HistorySize: 20,
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    "",
		},
		Bloom: BloomConfig{
			Enabled:           true,
			FalsePositiveRate: 0.01,
		},
		Backup: BackupConfig{
			SnapshotDir: "",
			Keep:        5,
			Remote: RemoteConfig{
				Type: "none",
			},
		},
		Settlement: SettlementConfig{
			Bootstrap:  false,
			FeePercent: 2.5,
		},
		Maintenance: MaintenanceConfig{
			Enabled:  true,
			Interval: time.Hour,
			AuditTTL: 30 * 24 * time.Hour,
		},
		Shutdown: ShutdownConfig{
			Timeout:      30 * time.Second,
			DrainTimeout: 15 * time.Second,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/settld"
	}

	if c.Audit.Path == "" {
		c.Audit.Path = filepath.Join(c.DataDir, "audit.db")
	}

	if c.Backup.SnapshotDir == "" {
		c.Backup.SnapshotDir = filepath.Join(c.DataDir, "snapshots")
	}
}

// TableDir returns the directory holding table and index files.
func (c *Config) TableDir() string {
	return filepath.Join(c.DataDir, "tables")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch c.Backup.Remote.Type {
	case "", "none", "local", "s3":
		// Valid remote types
	default:
		return fmt.Errorf("invalid backup remote type: %s (must be none, local, or s3)", c.Backup.Remote.Type)
	}

	if c.Backup.Remote.Type == "s3" && c.Backup.Remote.S3.Bucket == "" {
		return fmt.Errorf("backup.remote.s3.bucket is required when remote type is s3")
	}

	if c.Backup.Remote.Type == "local" && c.Backup.Remote.Path == "" {
		return fmt.Errorf("backup.remote.path is required when remote type is local")
	}

	if c.Backup.Keep < 1 {
		return fmt.Errorf("backup.keep must be at least 1, got %d", c.Backup.Keep)
	}

	if c.Bloom.FalsePositiveRate <= 0 || c.Bloom.FalsePositiveRate >= 0.5 {
		return fmt.Errorf("bloom.false_positive_rate must be in (0, 0.5), got %g", c.Bloom.FalsePositiveRate)
	}

	if c.REPL.HistorySize < 1 {
		return fmt.Errorf("repl.history_size must be at least 1, got %d", c.REPL.HistorySize)
	}

	if c.Settlement.FeePercent < 0 || c.Settlement.FeePercent > 100 {
		return fmt.Errorf("settlement.fee_percent must be between 0 and 100, got %g", c.Settlement.FeePercent)
	}

	if c.Maintenance.Enabled && c.Maintenance.Interval <= 0 {
		return fmt.Errorf("maintenance.interval must be positive, got %v", c.Maintenance.Interval)
	}
	if c.Maintenance.AuditTTL < 0 {
		return fmt.Errorf("maintenance.audit_ttl must not be negative, got %v", c.Maintenance.AuditTTL)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the SETTLD_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SETTLD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// HTTP configuration
	if v := os.Getenv("SETTLD_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("SETTLD_HTTP_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.ReadTimeout = d
		}
	}
	if v := os.Getenv("SETTLD_HTTP_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.WriteTimeout = d
		}
	}

	// REPL configuration
	if v := os.Getenv("SETTLD_REPL_PROMPT"); v != "" {
		cfg.REPL.Prompt = v
	}
	if v := os.Getenv("SETTLD_REPL_HISTORY_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.REPL.HistorySize)
	}

	// Audit configuration
	if v := os.Getenv("SETTLD_AUDIT_ENABLED"); v != "" {
		cfg.Audit.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SETTLD_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}

	// Bloom configuration
	if v := os.Getenv("SETTLD_BLOOM_ENABLED"); v != "" {
		cfg.Bloom.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SETTLD_BLOOM_FPR"); v != "" {
		fmt.Sscanf(v, "%g", &cfg.Bloom.FalsePositiveRate)
	}

	// Backup configuration
	if v := os.Getenv("SETTLD_BACKUP_DIR"); v != "" {
		cfg.Backup.SnapshotDir = v
	}
	if v := os.Getenv("SETTLD_BACKUP_KEEP"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Backup.Keep)
	}
	if v := os.Getenv("SETTLD_BACKUP_REMOTE_TYPE"); v != "" {
		cfg.Backup.Remote.Type = v
	}
	if v := os.Getenv("SETTLD_BACKUP_REMOTE_PATH"); v != "" {
		cfg.Backup.Remote.Path = v
	}
	if v := os.Getenv("SETTLD_S3_BUCKET"); v != "" {
		cfg.Backup.Remote.S3.Bucket = v
	}
	if v := os.Getenv("SETTLD_S3_REGION"); v != "" {
		cfg.Backup.Remote.S3.Region = v
	}
	if v := os.Getenv("SETTLD_S3_ENDPOINT"); v != "" {
		cfg.Backup.Remote.S3.Endpoint = v
	}
	if v := os.Getenv("SETTLD_S3_PREFIX"); v != "" {
		cfg.Backup.Remote.S3.Prefix = v
	}

	// Settlement configuration
	if v := os.Getenv("SETTLD_SETTLEMENT_BOOTSTRAP"); v != "" {
		cfg.Settlement.Bootstrap = v == "true" || v == "1"
	}
	if v := os.Getenv("SETTLD_SETTLEMENT_FEE_PERCENT"); v != "" {
		fmt.Sscanf(v, "%g", &cfg.Settlement.FeePercent)
	}

	// Maintenance configuration
	if v := os.Getenv("SETTLD_MAINTENANCE_ENABLED"); v != "" {
		cfg.Maintenance.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SETTLD_MAINTENANCE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Maintenance.Interval = d
		}
	}
	if v := os.Getenv("SETTLD_AUDIT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Maintenance.AuditTTL = d
		}
	}

	// Shutdown configuration
	if v := os.Getenv("SETTLD_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Shutdown.Timeout = d
		}
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.TableDir(),
		c.Backup.SnapshotDir,
	}
	if c.Backup.Remote.Type == "local" {
		dirs = append(dirs, c.Backup.Remote.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
