package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr = %q, want :8080", cfg.HTTP.Addr)
	}
	if !cfg.Audit.Enabled {
		t.Error("audit should be enabled by default")
	}
	if cfg.REPL.Prompt != "settld> " || cfg.REPL.HistorySize != 20 {
		t.Errorf("repl defaults = %+v", cfg.REPL)
	}
	if cfg.Bloom.FalsePositiveRate != 0.01 {
		t.Errorf("Bloom.FalsePositiveRate = %g, want 0.01", cfg.Bloom.FalsePositiveRate)
	}
	if cfg.Backup.Keep != 5 {
		t.Errorf("Backup.Keep = %d, want 5", cfg.Backup.Keep)
	}
	if cfg.Backup.Remote.Type != "none" {
		t.Errorf("Backup.Remote.Type = %q, want none", cfg.Backup.Remote.Type)
	}
	if cfg.Settlement.Bootstrap {
		t.Error("settlement bootstrap should be off by default")
	}
	if cfg.Settlement.FeePercent != 2.5 {
		t.Errorf("Settlement.FeePercent = %g, want 2.5", cfg.Settlement.FeePercent)
	}
	if !cfg.Maintenance.Enabled || cfg.Maintenance.Interval != time.Hour {
		t.Errorf("maintenance defaults = %+v", cfg.Maintenance)
	}
	if cfg.Shutdown.Timeout != 30*time.Second || cfg.Shutdown.DrainTimeout != 15*time.Second {
		t.Errorf("shutdown defaults = %+v", cfg.Shutdown)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestResolveDerivesPathsFromDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/data/settld"
	cfg.Resolve()

	if cfg.Audit.Path != filepath.Join("/data/settld", "audit.db") {
		t.Errorf("Audit.Path = %q", cfg.Audit.Path)
	}
	if cfg.Backup.SnapshotDir != filepath.Join("/data/settld", "snapshots") {
		t.Errorf("Backup.SnapshotDir = %q", cfg.Backup.SnapshotDir)
	}
	if cfg.TableDir() != filepath.Join("/data/settld", "tables") {
		t.Errorf("TableDir() = %q", cfg.TableDir())
	}
}

func TestResolveKeepsExplicitPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/data/settld"
	cfg.Audit.Path = "/var/log/settld/audit.db"
	cfg.Backup.SnapshotDir = "/backups/settld"
	cfg.Resolve()

	if cfg.Audit.Path != "/var/log/settld/audit.db" {
		t.Errorf("explicit Audit.Path overridden: %q", cfg.Audit.Path)
	}
	if cfg.Backup.SnapshotDir != "/backups/settld" {
		t.Errorf("explicit SnapshotDir overridden: %q", cfg.Backup.SnapshotDir)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "default is valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty data dir",
			mutate:  func(c *Config) { c.DataDir = "" },
			wantErr: "data_dir is required",
		},
		{
			name:    "unknown remote type",
			mutate:  func(c *Config) { c.Backup.Remote.Type = "ftp" },
			wantErr: "invalid backup remote type",
		},
		{
			name:    "s3 remote without bucket",
			mutate:  func(c *Config) { c.Backup.Remote.Type = "s3" },
			wantErr: "bucket is required",
		},
		{
			name:    "local remote without path",
			mutate:  func(c *Config) { c.Backup.Remote.Type = "local" },
			wantErr: "path is required",
		},
		{
			name:    "keep below one",
			mutate:  func(c *Config) { c.Backup.Keep = 0 },
			wantErr: "backup.keep",
		},
		{
			name:    "bloom rate too high",
			mutate:  func(c *Config) { c.Bloom.FalsePositiveRate = 0.5 },
			wantErr: "bloom.false_positive_rate",
		},
		{
			name:    "history size below one",
			mutate:  func(c *Config) { c.REPL.HistorySize = 0 },
			wantErr: "repl.history_size",
		},
		{
			name:    "negative fee",
			mutate:  func(c *Config) { c.Settlement.FeePercent = -1 },
			wantErr: "settlement.fee_percent",
		},
		{
			name:    "maintenance interval zero while enabled",
			mutate:  func(c *Config) { c.Maintenance.Interval = 0 },
			wantErr: "maintenance.interval",
		},
		{
			name: "maintenance disabled skips interval check",
			mutate: func(c *Config) {
				c.Maintenance.Enabled = false
				c.Maintenance.Interval = 0
			},
		},
		{
			name:    "negative audit ttl",
			mutate:  func(c *Config) { c.Maintenance.AuditTTL = -time.Hour },
			wantErr: "maintenance.audit_ttl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settld.yaml")
	content := `
data_dir: /data/settld
http:
  addr: ":9090"
repl:
  history_size: 5
audit:
  enabled: false
backup:
  keep: 3
  remote:
    type: local
    path: /backups/mirror
settlement:
  bootstrap: true
  fee_percent: 1.75
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.DataDir != "/data/settld" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("HTTP.Addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Audit.Enabled {
		t.Error("audit should be disabled by the file")
	}
	if cfg.Backup.Keep != 3 || cfg.Backup.Remote.Type != "local" || cfg.Backup.Remote.Path != "/backups/mirror" {
		t.Errorf("backup section = %+v", cfg.Backup)
	}
	if !cfg.Settlement.Bootstrap || cfg.Settlement.FeePercent != 1.75 {
		t.Errorf("settlement section = %+v", cfg.Settlement)
	}

	// Untouched sections and fields keep their defaults.
	if cfg.Bloom.FalsePositiveRate != 0.01 {
		t.Errorf("Bloom.FalsePositiveRate = %g, want default 0.01", cfg.Bloom.FalsePositiveRate)
	}
	if cfg.REPL.HistorySize != 5 || cfg.REPL.Prompt != "settld> " {
		t.Errorf("repl section = %+v", cfg.REPL)
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settld.json")
	content := `{"data_dir": "/data/json", "http": {"addr": ":7070"}, "bloom": {"enabled": false, "false_positive_rate": 0.05}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.DataDir != "/data/json" || cfg.HTTP.Addr != ":7070" {
		t.Errorf("overrides not applied: %q %q", cfg.DataDir, cfg.HTTP.Addr)
	}
	if cfg.Bloom.Enabled || cfg.Bloom.FalsePositiveRate != 0.05 {
		t.Errorf("bloom section = %+v", cfg.Bloom)
	}
}

func TestLoadFromFileUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settld.toml")
	if err := os.WriteFile(path, []byte("data_dir = \"/x\""), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SETTLD_DATA_DIR", "/env/data")
	t.Setenv("SETTLD_HTTP_ADDR", ":6060")
	t.Setenv("SETTLD_HTTP_READ_TIMEOUT", "45s")
	t.Setenv("SETTLD_AUDIT_ENABLED", "false")
	t.Setenv("SETTLD_BLOOM_FPR", "0.02")
	t.Setenv("SETTLD_BACKUP_KEEP", "7")
	t.Setenv("SETTLD_BACKUP_REMOTE_TYPE", "s3")
	t.Setenv("SETTLD_S3_BUCKET", "settld-snapshots")
	t.Setenv("SETTLD_S3_PREFIX", "prod")
	t.Setenv("SETTLD_REPL_PROMPT", "pay> ")
	t.Setenv("SETTLD_REPL_HISTORY_SIZE", "50")
	t.Setenv("SETTLD_SETTLEMENT_BOOTSTRAP", "1")
	t.Setenv("SETTLD_MAINTENANCE_INTERVAL", "30m")
	t.Setenv("SETTLD_AUDIT_TTL", "168h")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.DataDir != "/env/data" || cfg.HTTP.Addr != ":6060" {
		t.Errorf("string vars not applied: %q %q", cfg.DataDir, cfg.HTTP.Addr)
	}
	if cfg.HTTP.ReadTimeout != 45*time.Second {
		t.Errorf("ReadTimeout = %v, want 45s", cfg.HTTP.ReadTimeout)
	}
	if cfg.Audit.Enabled {
		t.Error("SETTLD_AUDIT_ENABLED=false not applied")
	}
	if cfg.Bloom.FalsePositiveRate != 0.02 {
		t.Errorf("FalsePositiveRate = %g, want 0.02", cfg.Bloom.FalsePositiveRate)
	}
	if cfg.Backup.Keep != 7 {
		t.Errorf("Keep = %d, want 7", cfg.Backup.Keep)
	}
	if cfg.Backup.Remote.Type != "s3" || cfg.Backup.Remote.S3.Bucket != "settld-snapshots" || cfg.Backup.Remote.S3.Prefix != "prod" {
		t.Errorf("remote section = %+v", cfg.Backup.Remote)
	}
	if cfg.REPL.Prompt != "pay> " || cfg.REPL.HistorySize != 50 {
		t.Errorf("repl section = %+v", cfg.REPL)
	}
	if !cfg.Settlement.Bootstrap {
		t.Error("SETTLD_SETTLEMENT_BOOTSTRAP=1 not applied")
	}
	if cfg.Maintenance.Interval != 30*time.Minute {
		t.Errorf("Maintenance.Interval = %v, want 30m", cfg.Maintenance.Interval)
	}
	if cfg.Maintenance.AuditTTL != 168*time.Hour {
		t.Errorf("Maintenance.AuditTTL = %v, want 168h", cfg.Maintenance.AuditTTL)
	}
}

func TestLoadFromEnvIgnoresInvalidDuration(t *testing.T) {
	t.Setenv("SETTLD_HTTP_READ_TIMEOUT", "not-a-duration")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.HTTP.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout = %v, want default 30s", cfg.HTTP.ReadTimeout)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(base, "data")
	cfg.Backup.Remote.Type = "local"
	cfg.Backup.Remote.Path = filepath.Join(base, "mirror")
	cfg.Resolve()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.DataDir, cfg.TableDir(), cfg.Backup.SnapshotDir, cfg.Backup.Remote.Path} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("directory %s missing: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}
