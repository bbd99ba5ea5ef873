package app

import (
	"context"
	"fmt"
	"log"

	"github.com/jbdura/settlement-project/internal/audit"
	"github.com/jbdura/settlement-project/internal/backup"
	"github.com/jbdura/settlement-project/internal/catalog"
	"github.com/jbdura/settlement-project/internal/config"
	"github.com/jbdura/settlement-project/internal/objstore"
	"github.com/jbdura/settlement-project/internal/observability"
	"github.com/jbdura/settlement-project/internal/query/executor"
	"github.com/jbdura/settlement-project/internal/settlement"
	"github.com/jbdura/settlement-project/internal/storage"
)

// Engine bundles the components every settld front end runs on: catalog,
// executor, audit log, settlement service, and backup manager. The server
// and the REPL wire the same stack.
type Engine struct {
	Stats      *observability.Collector
	Catalog    *catalog.Catalog
	Audit      *audit.Log // nil when auditing is disabled
	Executor   *executor.Executor
	Settlement *settlement.Service
	Backups    *backup.Manager
}

// OpenEngine builds the component stack from resolved configuration. The
// caller must Close the engine when done with it.
func OpenEngine(ctx context.Context, cfg *config.Config) (*Engine, error) {
	stats := observability.NewCollector()

	cat, err := catalog.Open(cfg.TableDir(), storage.Options{
		Bloom:    cfg.Bloom.Enabled,
		BloomFPR: cfg.Bloom.FalsePositiveRate,
		Stats:    stats,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	eng := &Engine{Stats: stats, Catalog: cat}

	execOpts := []executor.Option{executor.WithStats(stats)}
	if cfg.Audit.Enabled {
		auditLog, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		eng.Audit = auditLog
		execOpts = append(execOpts, executor.WithAudit(auditLog))
	}
	eng.Executor = executor.New(cat, execOpts...)
	eng.Settlement = settlement.NewService(eng.Executor)

	remote, err := openRemoteStore(ctx, cfg)
	if err != nil {
		eng.Close()
		return nil, err
	}
	var backupOpts []backup.Option
	if remote != nil {
		backupOpts = append(backupOpts, backup.WithRemote(remote))
	}
	eng.Backups, err = backup.NewManager(cat, cfg.Backup.SnapshotDir, backupOpts...)
	if err != nil {
		eng.Close()
		return nil, err
	}

	if cfg.Settlement.Bootstrap {
		if err := eng.Settlement.Bootstrap(ctx); err != nil {
			eng.Close()
			return nil, err
		}
		if err := eng.Settlement.SeedDefaultFees(ctx, cfg.Settlement.FeePercent); err != nil {
			eng.Close()
			return nil, err
		}
		log.Printf("[INFO] app: settlement tables ready, default fee %.2f%%", cfg.Settlement.FeePercent)
	}

	return eng, nil
}

// openRemoteStore builds the snapshot mirror configured under backup.remote.
// A "none" type returns nil, meaning snapshots stay local only.
func openRemoteStore(ctx context.Context, cfg *config.Config) (objstore.Store, error) {
	switch cfg.Backup.Remote.Type {
	case "", "none":
		return nil, nil
	case "local":
		store, err := objstore.NewLocalStore(cfg.Backup.Remote.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open local remote store: %w", err)
		}
		return store, nil
	case "s3":
		s3cfg := objstore.DefaultS3Config()
		if cfg.Backup.Remote.S3.Region != "" {
			s3cfg.Region = cfg.Backup.Remote.S3.Region
		}
		if cfg.Backup.Remote.S3.Endpoint != "" {
			// Custom endpoints are S3-compatible services that expect
			// path-style addressing.
			s3cfg.Endpoint = cfg.Backup.Remote.S3.Endpoint
			s3cfg.UsePathStyle = true
		}
		store, err := objstore.NewS3Store(ctx, cfg.Backup.Remote.S3.Bucket, s3cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open s3 remote store: %w", err)
		}
		return objstore.WithPrefix(store, cfg.Backup.Remote.S3.Prefix), nil
	default:
		return nil, fmt.Errorf("unsupported backup remote type: %s", cfg.Backup.Remote.Type)
	}
}

// Close releases the engine's resources. Table data needs no teardown, every
// statement persists atomically.
func (e *Engine) Close() error {
	if e.Audit != nil {
		return e.Audit.Close()
	}
	return nil
}
