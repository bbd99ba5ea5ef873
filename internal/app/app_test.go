package app

import (
	"context"
	"testing"

	"github.com/jbdura/settlement-project/internal/config"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	// An ephemeral port keeps parallel test runs from colliding.
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Maintenance.Enabled = true

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return a
}

func TestAppStartStop(t *testing.T) {
	a := newTestApp(t)

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if a.Engine() == nil {
		t.Fatal("engine should be available after start")
	}
	if a.Engine().Executor == nil || a.Engine().Backups == nil {
		t.Error("engine components missing after start")
	}

	if err := a.Start(ctx); err == nil {
		t.Error("second start should fail")
	}

	if err := a.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := a.Stop(ctx); err != nil {
		t.Errorf("repeated stop should be a no-op: %v", err)
	}
}

func TestAppWaitForShutdownStopsOnContextCancel(t *testing.T) {
	a := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	cancel()
	if err := a.WaitForShutdown(ctx); err != nil {
		t.Errorf("wait returned error: %v", err)
	}
}

func TestAppRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Backup.Remote.Type = "ftp"

	if _, err := New(cfg); err == nil {
		t.Fatal("expected configuration error")
	}
}
