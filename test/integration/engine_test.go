package integration

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/jbdura/settlement-project/internal/app"
	"github.com/jbdura/settlement-project/internal/config"
	"github.com/jbdura/settlement-project/pkg/types"
)

// setupEngineTestEnv opens the full component stack over a throwaway data
// directory.
func setupEngineTestEnv(t *testing.T) (*app.Engine, *config.Config, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "settld-integration-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.DataDir = tempDir
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("invalid config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("failed to prepare directories: %v", err)
	}

	eng, err := app.OpenEngine(context.Background(), cfg)
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("failed to open engine: %v", err)
	}

	cleanup := func() {
		eng.Close()
		os.RemoveAll(tempDir)
	}
	return eng, cfg, cleanup
}

func mustExec(t *testing.T, eng *app.Engine, sql string) types.Result {
	t.Helper()
	res := eng.Executor.Execute(context.Background(), sql)
	if !res.Success {
		t.Fatalf("statement failed: %s\n  %s", sql, res.Message)
	}
	return res
}

// TestPrimaryKeyRoundTrip covers the core write path end to end: create a
// table, insert through the primary key index, reject the duplicate, and
// read the row back.
func TestPrimaryKeyRoundTrip(t *testing.T) {
	eng, _, cleanup := setupEngineTestEnv(t)
	defer cleanup()

	mustExec(t, eng, "CREATE TABLE t (id INT PRIMARY KEY, name VARCHAR(50) NOT NULL)")

	res := mustExec(t, eng, "INSERT INTO t (id, name) VALUES (1, 'a')")
	if res.InsertedID == nil || *res.InsertedID != 1 {
		t.Fatalf("expected inserted id 1, got %v", res.InsertedID)
	}

	dup := eng.Executor.Execute(context.Background(), "INSERT INTO t (id, name) VALUES (1, 'b')")
	if dup.Success {
		t.Fatal("expected duplicate insert to fail")
	}
	if !strings.Contains(dup.Message, "Unique constraint violation on column 'id'") {
		t.Errorf("unexpected duplicate message: %s", dup.Message)
	}

	sel := mustExec(t, eng, "SELECT * FROM t WHERE id = 1")
	if len(sel.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(sel.Rows))
	}
	row := sel.Rows[0]
	if row[types.IDColumn].Int != 1 || row["id"].Int != 1 || row["name"].Str != "a" {
		t.Errorf("unexpected row: %v", row)
	}

	// The rejected duplicate must not have grown the table.
	all := mustExec(t, eng, "SELECT * FROM t")
	if len(all.Rows) != 1 {
		t.Errorf("expected 1 row after rejected duplicate, got %d", len(all.Rows))
	}
}

// TestMerchantTransactionJoin joins transactions onto their merchants and
// verifies every combined row carries the right merchant name.
func TestMerchantTransactionJoin(t *testing.T) {
	eng, _, cleanup := setupEngineTestEnv(t)
	defer cleanup()

	mustExec(t, eng, "CREATE TABLE merchants (id INT PRIMARY KEY, name VARCHAR(100) NOT NULL)")
	mustExec(t, eng, "CREATE TABLE transactions (id INT PRIMARY KEY, merchant_id INT NOT NULL, amount DECIMAL)")

	mustExec(t, eng, "INSERT INTO merchants (id, name) VALUES (1, 'Acme Store')")
	mustExec(t, eng, "INSERT INTO merchants (id, name) VALUES (2, 'Beta Mart')")
	mustExec(t, eng, "INSERT INTO transactions (id, merchant_id, amount) VALUES (10, 1, 100.00)")
	mustExec(t, eng, "INSERT INTO transactions (id, merchant_id, amount) VALUES (11, 1, 250.00)")
	mustExec(t, eng, "INSERT INTO transactions (id, merchant_id, amount) VALUES (12, 2, 75.00)")

	res := mustExec(t, eng,
		"SELECT merchants.name, transactions.amount FROM merchants JOIN transactions ON merchants.id = transactions.merchant_id")
	if len(res.Rows) != 3 {
		t.Fatalf("expected 3 combined rows, got %d", len(res.Rows))
	}

	names := map[string]int{}
	for _, row := range res.Rows {
		names[row["merchants.name"].Str]++
	}
	if names["Acme Store"] != 2 || names["Beta Mart"] != 1 {
		t.Errorf("unexpected name distribution: %v", names)
	}
}

// TestRowsSurviveReopen closes the engine and reopens the same data
// directory: rows, indexes, and the identifier sequence must all survive.
func TestRowsSurviveReopen(t *testing.T) {
	eng, cfg, cleanup := setupEngineTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	mustExec(t, eng, "CREATE TABLE accounts (id INT PRIMARY KEY, holder VARCHAR(50) NOT NULL)")
	mustExec(t, eng, "INSERT INTO accounts (id, holder) VALUES (1, 'ada')")
	mustExec(t, eng, "INSERT INTO accounts (id, holder) VALUES (2, 'grace')")
	mustExec(t, eng, "DELETE FROM accounts WHERE id = 2")

	if err := eng.Close(); err != nil {
		t.Fatalf("failed to close engine: %v", err)
	}

	reopened, err := app.OpenEngine(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to reopen engine: %v", err)
	}
	defer reopened.Close()

	sel := reopened.Executor.Execute(ctx, "SELECT * FROM accounts")
	if !sel.Success || len(sel.Rows) != 1 {
		t.Fatalf("expected 1 surviving row, got %d (%s)", len(sel.Rows), sel.Message)
	}
	if sel.Rows[0]["holder"].Str != "ada" {
		t.Errorf("unexpected surviving row: %v", sel.Rows[0])
	}

	// The unique index is rebuilt from the reloaded rows.
	dup := reopened.Executor.Execute(ctx, "INSERT INTO accounts (id, holder) VALUES (1, 'clone')")
	if dup.Success {
		t.Error("expected rebuilt index to reject the duplicate")
	}

	// Row identifiers never reuse the deleted slot.
	ins := reopened.Executor.Execute(ctx, "INSERT INTO accounts (id, holder) VALUES (3, 'katherine')")
	if !ins.Success {
		t.Fatalf("insert after reopen failed: %s", ins.Message)
	}
	if ins.InsertedID == nil || *ins.InsertedID != 3 {
		t.Errorf("expected inserted id 3, got %v", ins.InsertedID)
	}
}

// TestStatementsAudited verifies every executed statement lands in the
// audit trail tagged with its source, newest first.
func TestStatementsAudited(t *testing.T) {
	eng, _, cleanup := setupEngineTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	mustExec(t, eng, "CREATE TABLE t (id INT PRIMARY KEY)")
	eng.Executor.ExecuteFrom(ctx, "http", "INSERT INTO t (id) VALUES (1)")
	eng.Executor.Execute(ctx, "SELEKT nonsense")

	n, err := eng.Audit.Count(ctx)
	if err != nil {
		t.Fatalf("failed to count audit entries: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 audit entries, got %d", n)
	}

	entries, err := eng.Audit.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("failed to read audit entries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Success || entries[0].ErrorCategory == "" {
		t.Errorf("expected a categorized failure first, got %+v", entries[0])
	}
	if entries[1].Source != "http" {
		t.Errorf("expected source http, got %q", entries[1].Source)
	}
	if entries[2].Source != "direct" {
		t.Errorf("expected source direct, got %q", entries[2].Source)
	}
}

// TestUnfilteredMutationsRejected verifies the whole-table safety net holds
// across the executor boundary.
func TestUnfilteredMutationsRejected(t *testing.T) {
	eng, _, cleanup := setupEngineTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	mustExec(t, eng, "CREATE TABLE t (id INT PRIMARY KEY, note VARCHAR(20))")
	mustExec(t, eng, "INSERT INTO t (id, note) VALUES (1, 'keep')")

	for _, sql := range []string{
		"UPDATE t SET note = 'gone'",
		"DELETE FROM t",
	} {
		res := eng.Executor.Execute(ctx, sql)
		if res.Success {
			t.Errorf("expected %q to be rejected", sql)
		}
	}

	all := mustExec(t, eng, "SELECT * FROM t")
	if len(all.Rows) != 1 || all.Rows[0]["note"].Str != "keep" {
		t.Errorf("rejected statements must not touch rows: %v", all.Rows)
	}
}
