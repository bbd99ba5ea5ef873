package benchmark

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"github.com/jbdura/settlement-project/internal/catalog"
	"github.com/jbdura/settlement-project/internal/objstore"
	"github.com/jbdura/settlement-project/internal/query/executor"
	"github.com/jbdura/settlement-project/internal/storage"
)

// newBenchEngine opens an executor over a throwaway data directory.
func newBenchEngine(b *testing.B) *executor.Executor {
	b.Helper()

	dir, err := os.MkdirTemp("", "settld-bench-*")
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { os.RemoveAll(dir) })

	cat, err := catalog.Open(dir, storage.Options{Bloom: true, BloomFPR: 0.01})
	if err != nil {
		b.Fatalf("failed to open catalog: %v", err)
	}
	return executor.New(cat)
}

func mustRun(b *testing.B, e *executor.Executor, sql string) {
	b.Helper()
	if res := e.Execute(context.Background(), sql); !res.Success {
		b.Fatalf("statement failed: %s\n  %s", sql, res.Message)
	}
}

// getBenchmarkStore returns the object store the snapshot benchmarks mirror
// to. SETTLD_STORAGE_TYPE=s3, from the environment or a .env at the repo
// root, runs them against a real bucket under a unique per-run prefix;
// anything else uses a local directory store.
func getBenchmarkStore(b *testing.B, benchName string) (objstore.Store, func()) {
	b.Helper()

	// Try loading .env from the repo root (two levels up from test/benchmark).
	_ = godotenv.Load("../../.env")

	if os.Getenv("SETTLD_STORAGE_TYPE") == "s3" {
		// Map prefixed credentials onto the names the SDK reads.
		if v := os.Getenv("SETTLD_AWS_ACCESS_KEY_ID"); v != "" {
			os.Setenv("AWS_ACCESS_KEY_ID", v)
		}
		if v := os.Getenv("SETTLD_AWS_SECRET_ACCESS_KEY"); v != "" {
			os.Setenv("AWS_SECRET_ACCESS_KEY", v)
		}

		bucket := os.Getenv("SETTLD_S3_BUCKET")
		if bucket == "" {
			b.Fatal("SETTLD_S3_BUCKET is required for s3 benchmarks")
		}

		cfg := objstore.DefaultS3Config()
		if v := os.Getenv("SETTLD_S3_REGION"); v != "" {
			cfg.Region = v
		}
		if v := os.Getenv("SETTLD_S3_ENDPOINT"); v != "" {
			cfg.Endpoint = v
			cfg.UsePathStyle = true
		}

		store, err := objstore.NewS3Store(context.Background(), bucket, cfg)
		if err != nil {
			b.Fatalf("failed to initialize S3 store: %v", err)
		}

		prefix := fmt.Sprintf("bench/%s/%d", benchName, time.Now().UnixNano())
		b.Logf("running against s3://%s/%s", bucket, prefix)

		// Uploaded objects are left in place so a failed run can be
		// inspected; the per-run prefix keeps runs apart.
		return objstore.WithPrefix(store, prefix), func() {}
	}

	dir, err := os.MkdirTemp("", "settld-bench-store-"+benchName+"-*")
	if err != nil {
		b.Fatal(err)
	}
	store, err := objstore.NewLocalStore(dir)
	if err != nil {
		os.RemoveAll(dir)
		b.Fatalf("failed to initialize local store: %v", err)
	}
	return store, func() { os.RemoveAll(dir) }
}
