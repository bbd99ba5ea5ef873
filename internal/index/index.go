// Package index maintains the unique per-column indexes that back PRIMARY
// KEY and UNIQUE constraints. An index maps a column value's canonical key
// to the single row that owns it; the storage engine keeps every index in
// step with row mutations and rewrites its persisted form after each one.
package index

import (
	"fmt"
	"sort"

	errs "github.com/jbdura/settlement-project/internal/errors"
	"github.com/jbdura/settlement-project/pkg/types"
)

// Index is a one-to-one mapping from column value to owning row id.
// It is not safe for concurrent use; the owning table serializes access.
type Index struct {
	column  string
	entries map[string]int64
}

// New returns an empty index over the named column.
func New(column string) *Index {
	return &Index{
		column:  column,
		entries: make(map[string]int64),
	}
}

// Column returns the indexed column name.
func (ix *Index) Column() string { return ix.column }

// Len returns the number of indexed values.
func (ix *Index) Len() int { return len(ix.entries) }

// Lookup returns the row id owning the value, if present. NULL is never
// indexed and never matches.
func (ix *Index) Lookup(v types.Value) (int64, bool) {
	if v.IsNull() {
		return 0, false
	}
	id, ok := ix.entries[v.Key()]
	return id, ok
}

// Insert records a value as owned by the given row. Inserting a value that
// is already present fails with a duplicate-key error and leaves the index
// unchanged. NULL values are skipped: uniqueness constrains values, not
// absence.
func (ix *Index) Insert(v types.Value, id int64) error {
	if v.IsNull() {
		return nil
	}
	key := v.Key()
	if _, exists := ix.entries[key]; exists {
		return errs.NewDuplicateKeyError(
			fmt.Sprintf("Unique constraint violation on column '%s'", ix.column))
	}
	ix.entries[key] = id
	return nil
}

// Remove drops the value's entry. Removing an absent value is a no-op.
func (ix *Index) Remove(v types.Value) {
	if v.IsNull() {
		return
	}
	delete(ix.entries, v.Key())
}

// Update re-keys a row from its old value to a new one. If the new value
// collides with another row's entry, the old entry is restored and the
// collision reported, leaving the index as it was before the call.
func (ix *Index) Update(oldVal, newVal types.Value, id int64) error {
	same, err := oldVal.Equal(newVal)
	if err == nil && same {
		return nil
	}
	ix.Remove(oldVal)
	if err := ix.Insert(newVal, id); err != nil {
		if ierr := ix.Insert(oldVal, id); ierr != nil {
			return errs.NewInternalError(
				fmt.Sprintf("index on column '%s' failed to restore entry during rollback", ix.column), ierr)
		}
		return err
	}
	return nil
}

// Rebuild discards all entries and re-derives the index from a row set.
// The result is identical to having applied every insert incrementally.
func (ix *Index) Rebuild(rows []types.Row) error {
	fresh := make(map[string]int64, len(rows))
	for _, row := range rows {
		v, ok := row[ix.column]
		if !ok || v.IsNull() {
			continue
		}
		key := v.Key()
		if _, exists := fresh[key]; exists {
			return errs.NewDuplicateKeyError(
				fmt.Sprintf("Unique constraint violation on column '%s'", ix.column))
		}
		fresh[key] = row.ID()
	}
	ix.entries = fresh
	return nil
}

// Entries returns a copy of the key-to-row mapping in the form persisted to
// the index file.
func (ix *Index) Entries() map[string]int64 {
	out := make(map[string]int64, len(ix.entries))
	for k, v := range ix.entries {
		out[k] = v
	}
	return out
}

// Restore replaces the mapping with entries loaded from a persisted index
// file.
func (ix *Index) Restore(entries map[string]int64) {
	ix.entries = make(map[string]int64, len(entries))
	for k, v := range entries {
		ix.entries[k] = v
	}
}

// Keys returns the indexed keys in sorted order, for deterministic
// diagnostics output.
func (ix *Index) Keys() []string {
	keys := make([]string, 0, len(ix.entries))
	for k := range ix.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
