// Package main implements the settld-backup binary: snapshot maintenance
// for a settld data directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jbdura/settlement-project/internal/app"
	"github.com/jbdura/settlement-project/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		keep        int
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.IntVar(&keep, "keep", 0, "Snapshots to keep when pruning (defaults to the configured value)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "settld-backup - snapshot maintenance for settld\n\n")
		fmt.Fprintf(os.Stderr, "Usage: settld-backup [options] <command>\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  create                 take a snapshot of the data directory\n")
		fmt.Fprintf(os.Stderr, "  list                   list recorded snapshots, newest first\n")
		fmt.Fprintf(os.Stderr, "  restore <snapshot-id>  replace the data directory with a snapshot\n")
		fmt.Fprintf(os.Stderr, "  prune                  remove all but the most recent snapshots\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  settld-backup --data-dir /data/settld create\n")
		fmt.Fprintf(os.Stderr, "  settld-backup --data-dir /data/settld restore 3f8a...\n")
		fmt.Fprintf(os.Stderr, "  settld-backup --data-dir /data/settld --keep 3 prune\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("settld-backup version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	command := flag.Arg(0)
	if command == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(configFile, dataDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	eng, err := app.OpenEngine(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open engine: %v", err)
	}
	defer eng.Close()

	switch command {
	case "create":
		runCreate(ctx, eng)
	case "list":
		runList(eng)
	case "restore":
		id := flag.Arg(1)
		if id == "" {
			log.Fatalf("Usage: settld-backup restore <snapshot-id>")
		}
		runRestore(ctx, eng, id)
	case "prune":
		if keep <= 0 {
			keep = cfg.Backup.Keep
		}
		runPrune(ctx, eng, keep)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		flag.Usage()
		os.Exit(2)
	}
}

// loadConfig layers configuration sources: file or defaults, then
// environment, then flags. Settlement bootstrap is forced off; a
// maintenance run must not create tables.
func loadConfig(configFile, dataDir string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	cfg.Settlement.Bootstrap = false

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runCreate(ctx context.Context, eng *app.Engine) {
	meta, err := eng.Backups.Create(ctx)
	if err != nil {
		log.Fatalf("Failed to create snapshot: %v", err)
	}
	log.Printf("Snapshot '%s' created: %d table(s), %d row(s), %s compressed to %s",
		meta.SnapshotID, meta.TableCount, meta.RowCount,
		formatBytes(meta.RawBytes), formatBytes(meta.CompressedBytes))
}

func runList(eng *app.Engine) {
	metas, err := eng.Backups.List()
	if err != nil {
		log.Fatalf("Failed to list snapshots: %v", err)
	}
	if len(metas) == 0 {
		fmt.Println("No snapshots recorded.")
		return
	}
	fmt.Printf("%-36s  %-19s  %6s  %8s  %10s\n", "SNAPSHOT", "CREATED", "TABLES", "ROWS", "SIZE")
	for _, m := range metas {
		fmt.Printf("%-36s  %-19s  %6d  %8d  %10s\n",
			m.SnapshotID, m.CreatedAt.Format("2006-01-02 15:04:05"),
			m.TableCount, m.RowCount, formatBytes(m.CompressedBytes))
	}
}

func runRestore(ctx context.Context, eng *app.Engine, id string) {
	meta, err := eng.Backups.Restore(ctx, id)
	if err != nil {
		log.Fatalf("Failed to restore snapshot: %v", err)
	}
	log.Printf("Snapshot '%s' restored: %d table(s), %d row(s)",
		meta.SnapshotID, meta.TableCount, meta.RowCount)
}

func runPrune(ctx context.Context, eng *app.Engine, keep int) {
	removed, err := eng.Backups.Prune(ctx, keep)
	if err != nil {
		log.Fatalf("Failed to prune snapshots: %v", err)
	}
	if len(removed) == 0 {
		log.Printf("Nothing to prune, keeping the %d most recent snapshot(s)", keep)
		return
	}
	for _, m := range removed {
		log.Printf("Removed snapshot '%s' from %s", m.SnapshotID, m.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	log.Printf("Removed %d snapshot(s), keeping the %d most recent", len(removed), keep)
}

// formatBytes renders a byte count in the nearest binary unit.
func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
