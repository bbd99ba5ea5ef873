// Package app manages the settld process lifecycle: one engine instance and
// the HTTP API server in front of it.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	httpapi "github.com/jbdura/settlement-project/internal/api/http"
	"github.com/jbdura/settlement-project/internal/config"
	"github.com/jbdura/settlement-project/internal/maintenance"
	"github.com/jbdura/settlement-project/internal/server"
)

// App runs the engine behind the HTTP API.
type App struct {
	cfg *config.Config

	engine   *Engine
	shutdown *server.ShutdownManager
	janitor  *maintenance.Daemon

	httpServer *http.Server

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an App with the given configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return &App{cfg: cfg}, nil
}

// Engine returns the running engine, or nil before Start.
func (a *App) Engine() *Engine { return a.engine }

// Start opens the engine and starts the HTTP server.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.shutdown = server.NewShutdownManager(server.ShutdownConfig{
		Timeout:      a.cfg.Shutdown.Timeout,
		DrainTimeout: a.cfg.Shutdown.DrainTimeout,
	})

	engine, err := OpenEngine(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("failed to open engine: %w", err)
	}
	a.engine = engine
	a.shutdown.RegisterCloser(engine)

	a.startHTTP()

	if err := a.startJanitor(ctx); err != nil {
		return err
	}

	log.Printf("[INFO] app: settld started: data_dir=%s addr=%s", a.cfg.DataDir, a.cfg.HTTP.Addr)
	return nil
}

// startJanitor runs the retention daemon when maintenance is enabled. Its
// closer registers last, so shutdown stops retention before the listener
// and the engine.
func (a *App) startJanitor(ctx context.Context) error {
	if !a.cfg.Maintenance.Enabled {
		return nil
	}

	mcfg := maintenance.DefaultConfig()
	mcfg.Interval = a.cfg.Maintenance.Interval
	mcfg.AuditTTL = a.cfg.Maintenance.AuditTTL
	mcfg.SnapshotKeep = a.cfg.Backup.Keep

	opts := []maintenance.Option{
		maintenance.WithBackups(a.engine.Backups),
		maintenance.WithStats(a.engine.Stats),
	}
	if a.engine.Audit != nil {
		opts = append(opts, maintenance.WithAudit(a.engine.Audit))
	}

	a.janitor = maintenance.NewDaemon(mcfg, opts...)
	if err := a.janitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start maintenance daemon: %w", err)
	}
	a.shutdown.RegisterCloser(server.CloserFunc(a.janitor.Stop))
	return nil
}

// startHTTP assembles the API routes behind the middleware chain and starts
// the listener. The server's own closer registers after the engine, so on
// shutdown the listener stops before the engine closes.
func (a *App) startHTTP() {
	mux := httpapi.NewMux(httpapi.Deps{
		Engine:     a.engine.Executor,
		Catalog:    a.engine.Catalog,
		Settlement: a.engine.Settlement,
		Backups:    a.engine.Backups,
		Stats:      a.engine.Stats,
		Audit:      a.engine.Audit,
	})
	handler := server.ShutdownMiddleware(a.shutdown)(httpapi.DefaultMiddleware()(mux))

	a.httpServer = &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	a.shutdown.RegisterCloser(server.CloserFunc(func() error {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(closeCtx)
	}))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("[INFO] app: HTTP server listening on %s", a.cfg.HTTP.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[ERROR] app: HTTP server error: %v", err)
		}
	}()
}

// Stop gracefully stops the HTTP server and closes the engine.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
	}

	err := a.shutdown.Shutdown(ctx, "stop requested")
	a.wg.Wait()
	log.Printf("[INFO] app: settld stopped")
	return err
}

// WaitForShutdown blocks until a termination signal arrives or the context
// is canceled, runs the shutdown, and waits for the server to finish.
func (a *App) WaitForShutdown(ctx context.Context) error {
	err := a.shutdown.ListenForSignals(ctx)
	a.wg.Wait()
	return err
}
