// Package maintenance runs the engine's retention jobs on one background
// ticker: audit entries past their TTL, snapshots beyond the keep count, and
// predicate statistics gone stale.
package maintenance

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jbdura/settlement-project/internal/audit"
	"github.com/jbdura/settlement-project/internal/backup"
	"github.com/jbdura/settlement-project/internal/observability"
)

// Config holds the retention settings for the daemon.
type Config struct {
	// Interval is how often the jobs run.
	Interval time.Duration

	// AuditTTL is how long audit entries are kept. Zero disables the job.
	AuditTTL time.Duration

	// StatsTTL is how long unused predicate statistics are kept. Zero
	// disables the job.
	StatsTTL time.Duration

	// SnapshotKeep is how many snapshots pruning retains. Zero disables
	// the job.
	SnapshotKeep int
}

// DefaultConfig returns the default retention settings.
func DefaultConfig() Config {
	return Config{
		Interval:     time.Hour,
		AuditTTL:     30 * 24 * time.Hour,
		StatsTTL:     24 * time.Hour,
		SnapshotKeep: 5,
	}
}

// Daemon runs the retention jobs. Every dependency is optional; a job whose
// dependency is absent is skipped.
type Daemon struct {
	config  Config
	audit   *audit.Log
	backups *backup.Manager
	stats   *observability.Collector

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option attaches a dependency to the daemon.
type Option func(*Daemon)

// WithAudit attaches the statement log for TTL pruning.
func WithAudit(log *audit.Log) Option {
	return func(d *Daemon) { d.audit = log }
}

// WithBackups attaches the snapshot manager for retention pruning.
func WithBackups(m *backup.Manager) Option {
	return func(d *Daemon) { d.backups = m }
}

// WithStats attaches the collector for predicate statistics pruning.
func WithStats(c *observability.Collector) Option {
	return func(d *Daemon) { d.stats = c }
}

// NewDaemon creates a daemon with the given retention settings.
func NewDaemon(config Config, opts ...Option) *Daemon {
	d := &Daemon{config: config}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start begins the retention loop. It runs until the context is canceled or
// Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("maintenance: daemon is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.done = make(chan struct{})
	d.mu.Unlock()

	go d.run(ctx)
	return nil
}

// Stop stops the retention loop and waits for an in-progress cycle to
// finish.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}

	d.cancel()
	<-d.done
	d.running = false
	return nil
}

func (d *Daemon) run(ctx context.Context) {
	defer close(d.done)

	// One cycle right away; a process restarted after a long gap should
	// not wait a full interval to trim its backlog.
	d.runOnce(ctx)

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runOnce(ctx)
		}
	}
}

// runOnce performs a single retention cycle. Each job logs its own failure
// and the cycle continues with the next job.
func (d *Daemon) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if d.audit != nil && d.config.AuditTTL > 0 {
		if n, err := d.audit.Prune(ctx, d.config.AuditTTL); err != nil {
			log.Printf("[WARN] maintenance: audit prune failed: %v", err)
		} else if n > 0 {
			log.Printf("[INFO] maintenance: pruned %d audit entries older than %v", n, d.config.AuditTTL)
		}
	}

	if ctx.Err() != nil {
		return
	}

	if d.backups != nil && d.config.SnapshotKeep > 0 {
		if removed, err := d.backups.Prune(ctx, d.config.SnapshotKeep); err != nil {
			log.Printf("[WARN] maintenance: snapshot prune failed: %v", err)
		} else if len(removed) > 0 {
			log.Printf("[INFO] maintenance: pruned %d snapshots, keeping the %d most recent", len(removed), d.config.SnapshotKeep)
		}
	}

	if d.stats != nil && d.config.StatsTTL > 0 {
		if n := d.stats.Prune(time.Now().Add(-d.config.StatsTTL)); n > 0 {
			log.Printf("[INFO] maintenance: dropped predicate statistics for %d idle columns", n)
		}
	}
}

// RunOnce performs a single retention cycle immediately.
func (d *Daemon) RunOnce(ctx context.Context) {
	d.runOnce(ctx)
}
