package app

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/jbdura/settlement-project/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Resolve()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("failed to create directories: %v", err)
	}
	return cfg
}

func TestOpenEngineBootstrapsSettlement(t *testing.T) {
	cfg := testConfig(t)
	cfg.Settlement.Bootstrap = true

	eng, err := OpenEngine(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to open engine: %v", err)
	}
	defer eng.Close()

	tables := eng.Catalog.ListTables()
	want := []string{"fees", "merchants", "settlements", "transactions"}
	if !reflect.DeepEqual(tables, want) {
		t.Fatalf("tables mismatch: got %v, want %v", tables, want)
	}

	// Every payment method starts at the configured default rate.
	res := eng.Executor.Execute(context.Background(), "SELECT method, percentage FROM fees")
	if !res.Success || len(res.Rows) != 3 {
		t.Fatalf("fee rows mismatch: %+v", res)
	}
	for _, row := range res.Rows {
		if row["percentage"].Dec != cfg.Settlement.FeePercent {
			t.Errorf("default fee mismatch: %v", row)
		}
	}
}

func TestOpenEngineAuditOptional(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Enabled = false

	eng, err := OpenEngine(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to open engine: %v", err)
	}
	defer eng.Close()

	if eng.Audit != nil {
		t.Error("audit log should be nil when disabled")
	}
	if res := eng.Executor.Execute(context.Background(), "CREATE TABLE t (a INT)"); !res.Success {
		t.Errorf("statement failed without audit: %s", res.Message)
	}
	if _, err := os.Stat(cfg.Audit.Path); !os.IsNotExist(err) {
		t.Errorf("audit file should not exist, stat err: %v", err)
	}
}

func TestOpenEngineMirrorsSnapshots(t *testing.T) {
	cfg := testConfig(t)
	remoteDir := t.TempDir()
	cfg.Backup.Remote.Type = "local"
	cfg.Backup.Remote.Path = remoteDir

	eng, err := OpenEngine(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to open engine: %v", err)
	}
	defer eng.Close()

	ctx := context.Background()
	if res := eng.Executor.Execute(ctx, "CREATE TABLE t (a INT)"); !res.Success {
		t.Fatalf("create failed: %s", res.Message)
	}

	meta, err := eng.Backups.Create(ctx)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	mirrored := filepath.Join(remoteDir, "snapshots", meta.SnapshotID+".snap")
	if _, err := os.Stat(mirrored); err != nil {
		t.Errorf("snapshot not mirrored to remote dir: %v", err)
	}
}

func TestOpenEngineRejectsUnknownRemote(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup.Remote.Type = "ftp"

	if _, err := OpenEngine(context.Background(), cfg); err == nil {
		t.Fatal("expected an error for an unknown remote type")
	}
}
