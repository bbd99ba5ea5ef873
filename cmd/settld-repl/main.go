// Package main implements the settld-repl binary: an interactive SQL
// console over a data directory, sharing the engine wiring with the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jbdura/settlement-project/internal/app"
	"github.com/jbdura/settlement-project/internal/config"
	"github.com/jbdura/settlement-project/internal/repl"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "settld-repl - interactive SQL console for settld\n\n")
		fmt.Fprintf(os.Stderr, "Usage: settld-repl [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  settld-repl --data-dir /data/settld\n")
		fmt.Fprintf(os.Stderr, "  echo 'SELECT * FROM merchants;' | settld-repl --data-dir /data/settld\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("settld-repl version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}
	config.LoadFromEnv(cfg)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("Failed to create data directories: %v", err)
	}

	ctx := context.Background()
	eng, err := app.OpenEngine(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open engine: %v", err)
	}
	defer eng.Close()

	console := repl.New(eng.Executor,
		repl.WithAudit(eng.Audit),
		repl.WithStats(eng.Stats),
		repl.WithPrompt(cfg.REPL.Prompt),
		repl.WithHistorySize(cfg.REPL.HistorySize),
	)
	if err := console.Run(ctx); err != nil {
		log.Fatalf("Console error: %v", err)
	}
}
