package storage

import (
	"errors"
	"os"
	"strings"
	"testing"

	errs "github.com/jbdura/settlement-project/internal/errors"
	"github.com/jbdura/settlement-project/internal/observability"
	"github.com/jbdura/settlement-project/pkg/types"
)

func testOptions() Options {
	return Options{
		Bloom:    true,
		BloomFPR: 0.01,
		Stats:    observability.NewCollector(),
	}
}

func usersSchema() []types.ColumnDefinition {
	return []types.ColumnDefinition{
		{Name: "id", Type: types.TypeInteger, PrimaryKey: true},
		{Name: "email", Type: types.TypeVarchar, Size: 50, Unique: true, Nullable: true},
		{Name: "name", Type: types.TypeVarchar, Size: 50},
		{Name: "age", Type: types.TypeInteger, Nullable: true},
	}
}

func newUsersTable(t *testing.T) (*Table, string) {
	t.Helper()
	dir := t.TempDir()
	tbl, err := Create(dir, "users", usersSchema(), testOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return tbl, dir
}

func mustInsert(t *testing.T, tbl *Table, values map[string]types.Value) int64 {
	t.Helper()
	id, err := tbl.Insert(values)
	if err != nil {
		t.Fatalf("Insert(%v): %v", values, err)
	}
	return id
}

func TestCreateRejectsBadSchemas(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		table    string
		columns  []types.ColumnDefinition
		category errs.Category
	}{
		{
			"duplicate column",
			"t1",
			[]types.ColumnDefinition{
				{Name: "a", Type: types.TypeInteger},
				{Name: "a", Type: types.TypeVarchar},
			},
			errs.CategorySchema,
		},
		{
			"two primary keys",
			"t2",
			[]types.ColumnDefinition{
				{Name: "a", Type: types.TypeInteger, PrimaryKey: true},
				{Name: "b", Type: types.TypeInteger, PrimaryKey: true},
			},
			errs.CategorySchema,
		},
		{
			"reserved column name",
			"t3",
			[]types.ColumnDefinition{{Name: "_id", Type: types.TypeInteger}},
			errs.CategorySchema,
		},
		{
			"invalid table name",
			"../escape",
			[]types.ColumnDefinition{{Name: "a", Type: types.TypeInteger}},
			errs.CategorySchema,
		},
		{
			"no columns",
			"t4",
			nil,
			errs.CategorySchema,
		},
	}

	for _, tt := range tests {
		_, err := Create(dir, tt.table, tt.columns, testOptions())
		if err == nil {
			t.Errorf("%s: expected error, got none", tt.name)
			continue
		}
		if errs.GetCategory(err) != tt.category {
			t.Errorf("%s: category = %s, want %s", tt.name, errs.GetCategory(err), tt.category)
		}
	}
}

func TestPrimaryKeyImpliesUniqueNotNull(t *testing.T) {
	tbl, _ := newUsersTable(t)

	cols := tbl.Columns()
	if cols[0].Name != "id" || !cols[0].Unique || cols[0].Nullable {
		t.Errorf("primary key column not normalized: %+v", cols[0])
	}
}

func TestInsertAssignsIncreasingIDs(t *testing.T) {
	tbl, _ := newUsersTable(t)

	for i := int64(1); i <= 3; i++ {
		id := mustInsert(t, tbl, map[string]types.Value{
			"id":   types.NewInteger(i * 10),
			"name": types.NewText("user"),
		})
		if id != i {
			t.Errorf("insert %d: id = %d, want %d", i, id, i)
		}
	}
	if tbl.RowCount() != 3 {
		t.Errorf("RowCount = %d, want 3", tbl.RowCount())
	}
}

func TestIDsNeverReusedAfterDelete(t *testing.T) {
	tbl, _ := newUsersTable(t)

	mustInsert(t, tbl, map[string]types.Value{"id": types.NewInteger(1), "name": types.NewText("a")})
	mustInsert(t, tbl, map[string]types.Value{"id": types.NewInteger(2), "name": types.NewText("b")})

	n, err := tbl.Delete([]types.Predicate{{Column: "id", Op: types.OpEq, Value: types.NewInteger(2)}})
	if err != nil || n != 1 {
		t.Fatalf("Delete = (%d, %v), want (1, nil)", n, err)
	}

	id := mustInsert(t, tbl, map[string]types.Value{"id": types.NewInteger(3), "name": types.NewText("c")})
	if id != 3 {
		t.Errorf("id after delete = %d, want 3 (ids are never reused)", id)
	}
}

func TestInsertMissingNotNullFails(t *testing.T) {
	tbl, dir := newUsersTable(t)

	mustInsert(t, tbl, map[string]types.Value{"id": types.NewInteger(1), "name": types.NewText("a")})

	_, err := tbl.Insert(map[string]types.Value{"id": types.NewInteger(2)})
	if errs.GetCategory(err) != errs.CategoryConstraint {
		t.Fatalf("expected CONSTRAINT error, got %v", err)
	}

	// Persisted state must be untouched by the failed insert.
	reloaded, err := Load(dir, "users", testOptions())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.RowCount() != 1 {
		t.Errorf("persisted row count = %d, want 1", reloaded.RowCount())
	}
}

func TestInsertExplicitNullIntoNotNullFails(t *testing.T) {
	tbl, _ := newUsersTable(t)

	_, err := tbl.Insert(map[string]types.Value{
		"id":   types.NewInteger(1),
		"name": types.Null(),
	})
	if errs.GetCategory(err) != errs.CategoryConstraint {
		t.Errorf("expected CONSTRAINT error, got %v", err)
	}
}

func TestInsertDuplicateKeyFails(t *testing.T) {
	tbl, _ := newUsersTable(t)

	mustInsert(t, tbl, map[string]types.Value{"id": types.NewInteger(1), "name": types.NewText("a")})

	_, err := tbl.Insert(map[string]types.Value{"id": types.NewInteger(1), "name": types.NewText("b")})
	if errs.GetCategory(err) != errs.CategoryDuplicateKey {
		t.Fatalf("expected DUPLICATE_KEY error, got %v", err)
	}
	if tbl.RowCount() != 1 {
		t.Errorf("row count after failed insert = %d, want 1", tbl.RowCount())
	}
	if tbl.NextID() != 2 {
		t.Errorf("next id after failed insert = %d, want 2", tbl.NextID())
	}
}

func TestInsertDuplicateUniqueFails(t *testing.T) {
	tbl, _ := newUsersTable(t)

	mustInsert(t, tbl, map[string]types.Value{
		"id": types.NewInteger(1), "email": types.NewText("a@x.io"), "name": types.NewText("a"),
	})
	_, err := tbl.Insert(map[string]types.Value{
		"id": types.NewInteger(2), "email": types.NewText("a@x.io"), "name": types.NewText("b"),
	})
	if errs.GetCategory(err) != errs.CategoryDuplicateKey {
		t.Errorf("expected DUPLICATE_KEY error, got %v", err)
	}
}

func TestUniqueColumnAllowsMultipleNulls(t *testing.T) {
	tbl, _ := newUsersTable(t)

	mustInsert(t, tbl, map[string]types.Value{"id": types.NewInteger(1), "name": types.NewText("a")})
	mustInsert(t, tbl, map[string]types.Value{"id": types.NewInteger(2), "name": types.NewText("b")})

	if tbl.RowCount() != 2 {
		t.Errorf("two rows with NULL email should coexist, got %d rows", tbl.RowCount())
	}
}

func TestInsertTypeMismatchFails(t *testing.T) {
	tbl, _ := newUsersTable(t)

	_, err := tbl.Insert(map[string]types.Value{
		"id":   types.NewText("not a number"),
		"name": types.NewText("a"),
	})
	if errs.GetCategory(err) != errs.CategoryType {
		t.Errorf("expected TYPE error, got %v", err)
	}
}

func TestInsertUnknownColumnFails(t *testing.T) {
	tbl, _ := newUsersTable(t)

	_, err := tbl.Insert(map[string]types.Value{
		"id":      types.NewInteger(1),
		"name":    types.NewText("a"),
		"unknown": types.NewInteger(1),
	})
	if errs.GetCategory(err) != errs.CategoryNotFound {
		t.Errorf("expected NOT_FOUND error, got %v", err)
	}
}

func TestInsertRejectsExplicitID(t *testing.T) {
	tbl, _ := newUsersTable(t)

	_, err := tbl.Insert(map[string]types.Value{
		types.IDColumn: types.NewInteger(99),
		"id":           types.NewInteger(1),
		"name":         types.NewText("a"),
	})
	if errs.GetCategory(err) != errs.CategorySchema {
		t.Errorf("expected SCHEMA error for explicit _id, got %v", err)
	}
}

func TestSelectByIndexAndByScanAgree(t *testing.T) {
	tbl, _ := newUsersTable(t)

	for i := int64(1); i <= 5; i++ {
		mustInsert(t, tbl, map[string]types.Value{
			"id":   types.NewInteger(i),
			"name": types.NewText("user"),
			"age":  types.NewInteger(20 + i),
		})
	}

	// id is indexed, age is not; both single-term conjunctions must agree
	// with a manual filter over a full select.
	all, err := tbl.Select(nil)
	if err != nil {
		t.Fatalf("Select(nil): %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("Select(nil) returned %d rows, want 5", len(all))
	}

	indexed, err := tbl.Select([]types.Predicate{{Column: "id", Op: types.OpEq, Value: types.NewInteger(3)}})
	if err != nil {
		t.Fatalf("indexed select: %v", err)
	}
	scanned, err := tbl.Select([]types.Predicate{{Column: "age", Op: types.OpEq, Value: types.NewInteger(23)}})
	if err != nil {
		t.Fatalf("scanned select: %v", err)
	}
	if len(indexed) != 1 || len(scanned) != 1 {
		t.Fatalf("selects returned %d and %d rows, want 1 and 1", len(indexed), len(scanned))
	}
	if indexed[0].ID() != scanned[0].ID() {
		t.Errorf("index path and scan path found different rows: %d vs %d",
			indexed[0].ID(), scanned[0].ID())
	}
}

func TestSelectMissingIndexedValueReturnsEmpty(t *testing.T) {
	tbl, _ := newUsersTable(t)
	mustInsert(t, tbl, map[string]types.Value{"id": types.NewInteger(1), "name": types.NewText("a")})

	rows, err := tbl.Select([]types.Predicate{{Column: "id", Op: types.OpEq, Value: types.NewInteger(42)}})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}

func TestSelectRangeAndConjunction(t *testing.T) {
	tbl, _ := newUsersTable(t)

	for i := int64(1); i <= 10; i++ {
		mustInsert(t, tbl, map[string]types.Value{
			"id":   types.NewInteger(i),
			"name": types.NewText("user"),
			"age":  types.NewInteger(i * 10),
		})
	}

	rows, err := tbl.Select([]types.Predicate{
		{Column: "age", Op: types.OpGe, Value: types.NewInteger(30)},
		{Column: "age", Op: types.OpLt, Value: types.NewInteger(70)},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("range select returned %d rows, want 4", len(rows))
	}
	// Insertion order must be preserved.
	for i := 1; i < len(rows); i++ {
		if rows[i].ID() <= rows[i-1].ID() {
			t.Errorf("rows out of insertion order: %d before %d", rows[i-1].ID(), rows[i].ID())
		}
	}
}

func TestSelectUnknownColumnFails(t *testing.T) {
	tbl, _ := newUsersTable(t)

	_, err := tbl.Select([]types.Predicate{{Column: "ghost", Op: types.OpEq, Value: types.NewInteger(1)}})
	if errs.GetCategory(err) != errs.CategoryNotFound {
		t.Errorf("expected NOT_FOUND error, got %v", err)
	}
}

func TestSelectReturnsCopies(t *testing.T) {
	tbl, _ := newUsersTable(t)
	mustInsert(t, tbl, map[string]types.Value{"id": types.NewInteger(1), "name": types.NewText("a")})

	rows, err := tbl.Select(nil)
	if err != nil {
		t.Fatal(err)
	}
	rows[0]["name"] = types.NewText("tampered")

	again, err := tbl.Select(nil)
	if err != nil {
		t.Fatal(err)
	}
	if again[0]["name"].Str != "a" {
		t.Error("mutating a returned row leaked into the table")
	}
}

func TestUpdateRekeysIndexes(t *testing.T) {
	tbl, _ := newUsersTable(t)
	mustInsert(t, tbl, map[string]types.Value{
		"id": types.NewInteger(1), "email": types.NewText("old@x.io"), "name": types.NewText("a"),
	})

	n, err := tbl.Update(
		[]types.Predicate{{Column: "id", Op: types.OpEq, Value: types.NewInteger(1)}},
		map[string]types.Value{"email": types.NewText("new@x.io")},
	)
	if err != nil || n != 1 {
		t.Fatalf("Update = (%d, %v), want (1, nil)", n, err)
	}

	if _, ok := tbl.IndexLookup("email", types.NewText("old@x.io")); ok {
		t.Error("old email still indexed after update")
	}
	if id, ok := tbl.IndexLookup("email", types.NewText("new@x.io")); !ok || id != 1 {
		t.Errorf("new email lookup = (%d, %v), want (1, true)", id, ok)
	}
}

func TestUpdateDuplicateKeyRollsBackWholeStatement(t *testing.T) {
	tbl, dir := newUsersTable(t)
	mustInsert(t, tbl, map[string]types.Value{"id": types.NewInteger(1), "name": types.NewText("a"), "age": types.NewInteger(30)})
	mustInsert(t, tbl, map[string]types.Value{"id": types.NewInteger(2), "name": types.NewText("b"), "age": types.NewInteger(30)})

	// Both rows match; re-keying both ids to 7 must collide on the second
	// and leave neither changed.
	n, err := tbl.Update(
		[]types.Predicate{{Column: "age", Op: types.OpEq, Value: types.NewInteger(30)}},
		map[string]types.Value{"id": types.NewInteger(7)},
	)
	if errs.GetCategory(err) != errs.CategoryDuplicateKey {
		t.Fatalf("expected DUPLICATE_KEY error, got (%d, %v)", n, err)
	}

	for _, want := range []int64{1, 2} {
		if _, ok := tbl.IndexLookup("id", types.NewInteger(want)); !ok {
			t.Errorf("id %d missing from index after rollback", want)
		}
	}

	// Disk must still hold the pre-statement state.
	reloaded, err := Load(dir, "users", testOptions())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rows, err := reloaded.Select(nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range rows {
		if row["id"].Int == 7 {
			t.Error("failed update leaked to disk")
		}
	}
}

func TestUpdateWithoutPredicateFails(t *testing.T) {
	tbl, _ := newUsersTable(t)
	mustInsert(t, tbl, map[string]types.Value{"id": types.NewInteger(1), "name": types.NewText("a")})

	_, err := tbl.Update(nil, map[string]types.Value{"name": types.NewText("x")})
	if errs.GetCategory(err) != errs.CategorySafety {
		t.Fatalf("expected SAFETY error, got %v", err)
	}

	rows, _ := tbl.Select(nil)
	if rows[0]["name"].Str != "a" {
		t.Error("row changed despite safety rejection")
	}
}

func TestUpdateNullIntoNotNullFails(t *testing.T) {
	tbl, _ := newUsersTable(t)
	mustInsert(t, tbl, map[string]types.Value{"id": types.NewInteger(1), "name": types.NewText("a")})

	_, err := tbl.Update(
		[]types.Predicate{{Column: "id", Op: types.OpEq, Value: types.NewInteger(1)}},
		map[string]types.Value{"name": types.Null()},
	)
	if errs.GetCategory(err) != errs.CategoryConstraint {
		t.Errorf("expected CONSTRAINT error, got %v", err)
	}
}

func TestUpdateCannotTouchRowID(t *testing.T) {
	tbl, _ := newUsersTable(t)
	mustInsert(t, tbl, map[string]types.Value{"id": types.NewInteger(1), "name": types.NewText("a")})

	_, err := tbl.Update(
		[]types.Predicate{{Column: "id", Op: types.OpEq, Value: types.NewInteger(1)}},
		map[string]types.Value{types.IDColumn: types.NewInteger(99)},
	)
	if errs.GetCategory(err) != errs.CategorySchema {
		t.Errorf("expected SCHEMA error, got %v", err)
	}
}

func TestDeleteRemovesRowsAndIndexEntries(t *testing.T) {
	tbl, _ := newUsersTable(t)
	mustInsert(t, tbl, map[string]types.Value{
		"id": types.NewInteger(1), "email": types.NewText("a@x.io"), "name": types.NewText("a"),
	})
	mustInsert(t, tbl, map[string]types.Value{
		"id": types.NewInteger(2), "email": types.NewText("b@x.io"), "name": types.NewText("b"),
	})

	n, err := tbl.Delete([]types.Predicate{{Column: "id", Op: types.OpEq, Value: types.NewInteger(1)}})
	if err != nil || n != 1 {
		t.Fatalf("Delete = (%d, %v), want (1, nil)", n, err)
	}
	if tbl.RowCount() != 1 {
		t.Errorf("RowCount = %d, want 1", tbl.RowCount())
	}
	if _, ok := tbl.IndexLookup("id", types.NewInteger(1)); ok {
		t.Error("deleted row still present in id index")
	}
	if _, ok := tbl.IndexLookup("email", types.NewText("a@x.io")); ok {
		t.Error("deleted row still present in email index")
	}
}

func TestDeleteWithoutPredicateFails(t *testing.T) {
	tbl, _ := newUsersTable(t)
	mustInsert(t, tbl, map[string]types.Value{"id": types.NewInteger(1), "name": types.NewText("a")})

	_, err := tbl.Delete(nil)
	if errs.GetCategory(err) != errs.CategorySafety {
		t.Fatalf("expected SAFETY error, got %v", err)
	}
	if tbl.RowCount() != 1 {
		t.Error("rows removed despite safety rejection")
	}
}

func TestRoundTripPreservesRowsAndIndexes(t *testing.T) {
	tbl, dir := newUsersTable(t)

	mustInsert(t, tbl, map[string]types.Value{
		"id": types.NewInteger(1), "email": types.NewText("a@x.io"),
		"name": types.NewText("alice"), "age": types.NewInteger(30),
	})
	mustInsert(t, tbl, map[string]types.Value{
		"id": types.NewInteger(2), "name": types.NewText("bob"),
	})

	reloaded, err := Load(dir, "users", testOptions())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	orig, _ := tbl.Select(nil)
	loaded, err := reloaded.Select(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != len(orig) {
		t.Fatalf("reloaded %d rows, want %d", len(loaded), len(orig))
	}
	for i := range orig {
		for name, want := range orig[i] {
			got, ok := loaded[i][name]
			if !ok {
				t.Errorf("row %d missing column %s after reload", i, name)
				continue
			}
			eq, err := want.Equal(got)
			if want.IsNull() || got.IsNull() {
				if want.Kind != got.Kind {
					t.Errorf("row %d column %s: null mismatch", i, name)
				}
				continue
			}
			if err != nil || !eq {
				t.Errorf("row %d column %s: %v != %v", i, name, want, got)
			}
		}
	}

	// Index lookups must agree for every existing key.
	for _, key := range []int64{1, 2} {
		a, aok := tbl.IndexLookup("id", types.NewInteger(key))
		b, bok := reloaded.IndexLookup("id", types.NewInteger(key))
		if aok != bok || a != b {
			t.Errorf("id index lookup %d: (%d,%v) vs (%d,%v)", key, a, aok, b, bok)
		}
	}
	if id, ok := reloaded.IndexLookup("email", types.NewText("a@x.io")); !ok || id != 1 {
		t.Errorf("email index lookup after reload = (%d, %v), want (1, true)", id, ok)
	}
}

func TestLoadMissingTableFails(t *testing.T) {
	_, err := Load(t.TempDir(), "ghost", testOptions())
	if errs.GetCategory(err) != errs.CategoryNotFound {
		t.Errorf("expected NOT_FOUND error, got %v", err)
	}
}

func TestLoadCorruptFileFails(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(TableFilePath(dir, "bad"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(dir, "bad", testOptions())
	var ee *errs.EngineError
	if !errors.As(err, &ee) || ee.Code != errs.CodeCorruptFile {
		t.Errorf("expected CORRUPT_FILE error, got %v", err)
	}
}

func TestLoadAdvancesStaleNextID(t *testing.T) {
	tbl, dir := newUsersTable(t)
	mustInsert(t, tbl, map[string]types.Value{"id": types.NewInteger(1), "name": types.NewText("a")})
	mustInsert(t, tbl, map[string]types.Value{"id": types.NewInteger(2), "name": types.NewText("b")})

	// Corrupt the counter backwards and confirm load repairs it.
	data, err := os.ReadFile(TableFilePath(dir, "users"))
	if err != nil {
		t.Fatal(err)
	}
	tampered := replaceOnce(t, data, `"next_id": 3`, `"next_id": 1`)
	if err := os.WriteFile(TableFilePath(dir, "users"), tampered, 0644); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Load(dir, "users", testOptions())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.NextID() != 3 {
		t.Errorf("NextID after repair = %d, want 3", reloaded.NextID())
	}
}

func replaceOnce(t *testing.T, data []byte, marker, repl string) []byte {
	t.Helper()
	s := string(data)
	i := strings.Index(s, marker)
	if i < 0 {
		t.Fatalf("marker %q not found in table file", marker)
	}
	return []byte(s[:i] + repl + s[i+len(marker):])
}

func TestDropRemovesFiles(t *testing.T) {
	tbl, dir := newUsersTable(t)
	mustInsert(t, tbl, map[string]types.Value{"id": types.NewInteger(1), "name": types.NewText("a")})

	if err := tbl.Drop(); err != nil {
		t.Fatalf("Drop: %v", err)
	}

	if _, err := os.Stat(TableFilePath(dir, "users")); !os.IsNotExist(err) {
		t.Error("table file still present after drop")
	}
	for _, col := range []string{"id", "email"} {
		if _, err := os.Stat(IndexFilePath(dir, "users", col)); !os.IsNotExist(err) {
			t.Errorf("index file for %s still present after drop", col)
		}
	}
}

func TestDatetimeColumnRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Create(dir, "events", []types.ColumnDefinition{
		{Name: "id", Type: types.TypeInteger, PrimaryKey: true},
		{Name: "at", Type: types.TypeDatetime, Nullable: true},
	}, testOptions())
	if err != nil {
		t.Fatal(err)
	}

	mustInsert(t, tbl, map[string]types.Value{
		"id": types.NewInteger(1),
		"at": types.NewText("2024-06-01 12:00:00"),
	})

	reloaded, err := Load(dir, "events", testOptions())
	if err != nil {
		t.Fatal(err)
	}
	rows, err := reloaded.Select([]types.Predicate{
		{Column: "at", Op: types.OpEq, Value: types.NewText("2024-06-01 12:00:00")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("datetime equality after reload returned %d rows, want 1", len(rows))
	}
	if rows[0]["at"].Kind != types.KindTimestamp {
		t.Errorf("reloaded kind = %v, want TIMESTAMP", rows[0]["at"].Kind)
	}
}
