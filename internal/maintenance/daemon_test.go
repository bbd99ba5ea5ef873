package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jbdura/settlement-project/internal/audit"
	"github.com/jbdura/settlement-project/internal/backup"
	"github.com/jbdura/settlement-project/internal/catalog"
	"github.com/jbdura/settlement-project/internal/observability"
	"github.com/jbdura/settlement-project/internal/storage"
)

func TestRunOncePrunesAudit(t *testing.T) {
	ctx := context.Background()
	log, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("failed to open audit log: %v", err)
	}
	defer log.Close()

	old := audit.Entry{Source: "repl", SQL: "SELECT 1", Success: true,
		Timestamp: time.Now().UTC().Add(-48 * time.Hour)}
	recent := audit.Entry{Source: "repl", SQL: "SELECT 2", Success: true}
	if err := log.Record(ctx, old); err != nil {
		t.Fatalf("failed to record entry: %v", err)
	}
	if err := log.Record(ctx, recent); err != nil {
		t.Fatalf("failed to record entry: %v", err)
	}

	d := NewDaemon(Config{AuditTTL: 24 * time.Hour}, WithAudit(log))
	d.RunOnce(ctx)

	count, err := log.Count(ctx)
	if err != nil {
		t.Fatalf("failed to count entries: %v", err)
	}
	if count != 1 {
		t.Errorf("entries after prune = %d, want 1", count)
	}
}

func TestRunOncePrunesSnapshots(t *testing.T) {
	ctx := context.Background()
	cat, err := catalog.Open(t.TempDir(), storage.Options{Bloom: true, BloomFPR: 0.01})
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	mgr, err := backup.NewManager(cat, t.TempDir())
	if err != nil {
		t.Fatalf("failed to create backup manager: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := mgr.Create(ctx); err != nil {
			t.Fatalf("failed to create snapshot: %v", err)
		}
	}

	d := NewDaemon(Config{SnapshotKeep: 1}, WithBackups(mgr))
	d.RunOnce(ctx)

	metas, err := mgr.List()
	if err != nil {
		t.Fatalf("failed to list snapshots: %v", err)
	}
	if len(metas) != 1 {
		t.Errorf("snapshots after prune = %d, want 1", len(metas))
	}
}

func TestRunOncePrunesStats(t *testing.T) {
	stats := observability.NewCollector()
	stats.RecordPredicate("status", "=")

	time.Sleep(5 * time.Millisecond)

	d := NewDaemon(Config{StatsTTL: time.Millisecond}, WithStats(stats))
	d.RunOnce(context.Background())

	if got := len(stats.TopPredicates(0)); got != 0 {
		t.Errorf("predicate columns after prune = %d, want 0", got)
	}
}

func TestRunOnceWithoutDependencies(t *testing.T) {
	d := NewDaemon(DefaultConfig())
	// Nothing attached, every job skips.
	d.RunOnce(context.Background())
}

func TestStartStop(t *testing.T) {
	d := NewDaemon(Config{Interval: 10 * time.Millisecond})

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := d.Start(context.Background()); err == nil {
		t.Error("second start should fail")
	}

	time.Sleep(25 * time.Millisecond)

	if err := d.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Errorf("repeated stop should be a no-op: %v", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	d := NewDaemon(DefaultConfig())
	if err := d.Stop(); err != nil {
		t.Errorf("stop before start should be a no-op: %v", err)
	}
}
