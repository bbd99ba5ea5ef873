// Package main implements the settld server binary: the relational engine
// behind the JSON API, with optional settlement bootstrap, statement audit,
// and snapshot backups.
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
		httpAddr    string
		bootstrap   bool
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address")
	flag.BoolVar(&bootstrap, "bootstrap", false, "Create the settlement tables on startup")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "settld - Payment Settlement Data Engine\n\n")
		fmt.Fprintf(os.Stderr, "Usage: settld [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  settld --data-dir /data/settld\n")
		fmt.Fprintf(os.Stderr, "  settld --data-dir /data/settld --bootstrap\n")
		fmt.Fprintf(os.Stderr, "  settld --config /etc/settld/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  SETTLD_DATA_DIR             Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  SETTLD_HTTP_ADDR            HTTP listen address\n")
		fmt.Fprintf(os.Stderr, "  SETTLD_AUDIT_ENABLED        Record statements in the audit log\n")
		fmt.Fprintf(os.Stderr, "  SETTLD_BACKUP_REMOTE_TYPE   Snapshot mirror (none, local, s3)\n")
		fmt.Fprintf(os.Stderr, "  SETTLD_SETTLEMENT_BOOTSTRAP Create the settlement tables on startup\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("settld version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(configFile, dataDir, httpAddr, bootstrap)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	printBanner(cfg)

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	// Blocks until SIGTERM or SIGINT, then drains and closes in order.
	if err := application.WaitForShutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

// loadConfig layers configuration sources: file or defaults, then
// environment, then flags.
func loadConfig(configFile, dataDir, httpAddr string, bootstrap bool) (*config.Config, error) {
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
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if bootstrap {
		cfg.Settlement.Bootstrap = true
	}

	return cfg, nil
}

// printBanner prints the startup banner with a configuration summary.
func printBanner(cfg *config.Config) {
	log.Printf("╔════════════════════════════════════════════╗")
	log.Printf("║                   settld                   ║")
	log.Printf("║       Payment Settlement Data Engine       ║")
	log.Printf("╚════════════════════════════════════════════╝")
	log.Printf("")
	log.Printf("Configuration:")
	log.Printf("  Data Dir: %s", cfg.DataDir)
	log.Printf("  HTTP:     %s", cfg.HTTP.Addr)
	log.Printf("  Audit:    %s", onOff(cfg.Audit.Enabled))
	log.Printf("  Bloom:    %s (fpr %.3f)", onOff(cfg.Bloom.Enabled), cfg.Bloom.FalsePositiveRate)
	log.Printf("  Backups:  keep %d, remote %s", cfg.Backup.Keep, remoteLabel(cfg))
	if cfg.Settlement.Bootstrap {
		log.Printf("  Settlement: bootstrap on, default fee %.2f%%", cfg.Settlement.FeePercent)
	}
	log.Printf("")
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}

func remoteLabel(cfg *config.Config) string {
	switch cfg.Backup.Remote.Type {
	case "", "none":
		return "none"
	case "s3":
		return fmt.Sprintf("s3 (%s)", cfg.Backup.Remote.S3.Bucket)
	default:
		return cfg.Backup.Remote.Type
	}
}
