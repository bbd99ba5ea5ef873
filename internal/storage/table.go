package storage

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"sync"

	"github.com/jbdura/settlement-project/internal/bloom"
	errs "github.com/jbdura/settlement-project/internal/errors"
	"github.com/jbdura/settlement-project/internal/index"
	"github.com/jbdura/settlement-project/internal/observability"
	"github.com/jbdura/settlement-project/pkg/types"
)

// identPattern constrains table and column names. Names become file path
// components, so anything outside this set is rejected before it reaches
// the filesystem.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Options control per-table behavior shared by every table in a catalog.
type Options struct {
	// Bloom enables membership filters on non-indexed columns.
	Bloom bool

	// BloomFPR is the target false-positive rate for those filters.
	BloomFPR float64

	// Stats receives execution counters; required.
	Stats *observability.Collector
}

// bloomCapacity is the initial sizing estimate for a column filter; filters
// are rebuilt as tables grow past it.
const bloomCapacity = 4096

// Table is one relation: its schema, rows in insertion order, the unique
// indexes backing its constraints, and optional per-column bloom filters.
// A single mutex serializes mutations; the lock is held across the whole
// mutate-then-persist sequence so the persisted file never interleaves
// concurrent writers.
type Table struct {
	mu      sync.RWMutex
	dir     string
	name    string
	columns []types.ColumnDefinition
	colIdx  map[string]int
	nextID  int64
	rows    []types.Row
	byID    map[int64]int
	indexes map[string]*index.Index
	filters map[string]*bloom.Filter
	opts    Options
}

// Create validates a schema, builds an empty table, and persists its
// initial file. It fails with a schema error on a duplicate column, more
// than one PRIMARY KEY, a reserved name, or an invalid identifier.
func Create(dir, name string, columns []types.ColumnDefinition, opts Options) (*Table, error) {
	normalized, err := validateSchema(name, columns)
	if err != nil {
		return nil, err
	}

	t := newTable(dir, name, normalized, 1, opts)
	if err := t.persistLocked(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load reads a table's persisted file, rehydrates its rows, and rebuilds
// every index and filter from the row set. Rebuilt indexes are equivalent
// to the incrementally maintained ones the previous process held.
func Load(dir, name string, opts Options) (*Table, error) {
	data, err := os.ReadFile(TableFilePath(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NewNotFoundError(errs.CodeTableNotFound,
				fmt.Sprintf("Table '%s' does not exist", name))
		}
		return nil, errs.NewIOError(fmt.Sprintf("cannot read table '%s'", name), err)
	}

	tf, rows, err := decodeTableFile(data)
	if err != nil {
		return nil, err
	}
	if tf.Name != name {
		return nil, errs.New(errs.CategoryInternal, errs.CodeCorruptFile,
			fmt.Sprintf("table file for '%s' declares name '%s'", name, tf.Name))
	}
	normalized, err := validateSchema(tf.Name, tf.Columns)
	if err != nil {
		return nil, errs.Wrap(errs.CategoryInternal, errs.CodeCorruptFile,
			fmt.Sprintf("table file for '%s' declares an invalid schema", name), err)
	}

	t := newTable(dir, tf.Name, normalized, tf.NextID, opts)
	t.rows = rows
	for pos, row := range rows {
		t.byID[row.ID()] = pos
	}

	for _, ix := range t.indexes {
		if err := ix.Rebuild(rows); err != nil {
			return nil, errs.Wrap(errs.CategoryInternal, errs.CodeCorruptFile,
				fmt.Sprintf("table file for '%s' violates a unique constraint", name), err)
		}
	}
	t.rebuildFiltersLocked()

	var maxID int64
	for _, row := range rows {
		if id := row.ID(); id > maxID {
			maxID = id
		}
	}
	if t.nextID <= maxID {
		log.Printf("[WARN] table %s: next_id %d is behind max row id %d, advancing", name, t.nextID, maxID)
		t.nextID = maxID + 1
	}

	return t, nil
}

// newTable builds the in-memory structure shared by Create and Load.
func newTable(dir, name string, columns []types.ColumnDefinition, nextID int64, opts Options) *Table {
	t := &Table{
		dir:     dir,
		name:    name,
		columns: columns,
		colIdx:  make(map[string]int, len(columns)),
		nextID:  nextID,
		byID:    make(map[int64]int),
		indexes: make(map[string]*index.Index),
		filters: make(map[string]*bloom.Filter),
		opts:    opts,
	}
	for i, col := range columns {
		t.colIdx[col.Name] = i
		if col.Indexed() {
			t.indexes[col.Name] = index.New(col.Name)
		} else if opts.Bloom {
			t.filters[col.Name] = bloom.NewWithEstimates(bloomCapacity, opts.BloomFPR)
		}
	}
	return t
}

// validateSchema checks identifiers, duplicate columns, and the single
// PRIMARY KEY rule, returning the normalized column list.
func validateSchema(name string, columns []types.ColumnDefinition) ([]types.ColumnDefinition, error) {
	if !identPattern.MatchString(name) {
		return nil, errs.NewSchemaError(errs.CodeReservedColumn,
			fmt.Sprintf("Invalid table name '%s'", name))
	}
	if len(columns) == 0 {
		return nil, errs.NewSchemaError(errs.CodeDuplicateColumn,
			fmt.Sprintf("Table '%s' must have at least one column", name))
	}

	normalized := make([]types.ColumnDefinition, 0, len(columns))
	seen := make(map[string]bool, len(columns))
	pkCount := 0
	for _, col := range columns {
		if col.Name == types.IDColumn {
			return nil, errs.NewSchemaError(errs.CodeReservedColumn,
				fmt.Sprintf("Column name '%s' is reserved", types.IDColumn))
		}
		if !identPattern.MatchString(col.Name) {
			return nil, errs.NewSchemaError(errs.CodeReservedColumn,
				fmt.Sprintf("Invalid column name '%s'", col.Name))
		}
		if seen[col.Name] {
			return nil, errs.NewSchemaError(errs.CodeDuplicateColumn,
				fmt.Sprintf("Duplicate column '%s' in table definition", col.Name))
		}
		seen[col.Name] = true
		if col.Type.Kind() == types.KindNull {
			return nil, errs.NewSchemaError(errs.CodeDuplicateColumn,
				fmt.Sprintf("Column '%s' has unknown type '%s'", col.Name, col.Type))
		}
		if col.PrimaryKey {
			pkCount++
		}
		normalized = append(normalized, col.Normalize())
	}
	if pkCount > 1 {
		return nil, errs.NewSchemaError(errs.CodeMultiplePrimaryKeys,
			"Only one PRIMARY KEY column is allowed per table")
	}
	return normalized, nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Columns returns a copy of the declared schema in declaration order.
func (t *Table) Columns() []types.ColumnDefinition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.ColumnDefinition, len(t.columns))
	copy(out, t.columns)
	return out
}

// Column returns the definition of a named column.
func (t *Table) Column(name string) (types.ColumnDefinition, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.colIdx[name]
	if !ok {
		return types.ColumnDefinition{}, false
	}
	return t.columns[i], true
}

// RowCount returns the number of rows.
func (t *Table) RowCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// NextID returns the next identifier the table will assign.
func (t *Table) NextID() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nextID
}

// IndexedColumns returns the names of columns backed by a unique index.
func (t *Table) IndexedColumns() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.indexes))
	for _, col := range t.columns {
		if _, ok := t.indexes[col.Name]; ok {
			out = append(out, col.Name)
		}
	}
	return out
}

// IndexLookup resolves a value through a column's unique index, returning
// the owning row id. The second result is false when the column is not
// indexed or the value is absent.
func (t *Table) IndexLookup(column string, v types.Value) (int64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ix, ok := t.indexes[column]
	if !ok {
		return 0, false
	}
	return ix.Lookup(v)
}

// Insert validates values against the schema, assigns the next row id,
// updates every index and filter, and persists the table. On any
// validation failure nothing is written and the table is unchanged.
func (t *Table) Insert(values map[string]types.Value) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	row, err := t.buildRowLocked(values)
	if err != nil {
		return 0, err
	}

	// Pre-check every unique index so the apply phase cannot fail.
	for name, ix := range t.indexes {
		v := row[name]
		if v.IsNull() {
			continue
		}
		if _, exists := ix.Lookup(v); exists {
			return 0, errs.NewDuplicateKeyError(
				fmt.Sprintf("Unique constraint violation on column '%s'", name))
		}
	}

	id := t.nextID
	t.nextID++
	row[types.IDColumn] = types.NewInteger(id)

	t.rows = append(t.rows, row)
	t.byID[id] = len(t.rows) - 1
	for name, ix := range t.indexes {
		if err := ix.Insert(row[name], id); err != nil {
			// Unreachable after the pre-check; restore and surface.
			t.removeRowLocked(id)
			t.nextID = id
			return 0, err
		}
	}
	for name, f := range t.filters {
		f.Add(row[name])
	}

	if err := t.persistLocked(); err != nil {
		t.removeRowLocked(id)
		t.nextID = id
		return 0, err
	}
	return id, nil
}

// buildRowLocked assembles a full row in declared-column order, enforcing
// NOT NULL and coercing every supplied value to its column type.
func (t *Table) buildRowLocked(values map[string]types.Value) (types.Row, error) {
	for name := range values {
		if name == types.IDColumn {
			return nil, errs.NewSchemaError(errs.CodeReservedColumn,
				fmt.Sprintf("Column '%s' is assigned by the engine and cannot be written", types.IDColumn))
		}
		if _, ok := t.colIdx[name]; !ok {
			return nil, errs.NewNotFoundError(errs.CodeColumnNotFound,
				fmt.Sprintf("Column '%s' does not exist in table '%s'", name, t.name))
		}
	}

	row := make(types.Row, len(t.columns)+1)
	for _, col := range t.columns {
		v, present := values[col.Name]
		if !present {
			v = types.Null()
		}
		if v.IsNull() {
			if !col.Nullable {
				return nil, errs.NewConstraintError(
					fmt.Sprintf("Column '%s' cannot be NULL", col.Name))
			}
			row[col.Name] = types.Null()
			continue
		}
		coerced, err := types.Coerce(v, col)
		if err != nil {
			return nil, errs.NewTypeError(errs.CodeTypeMismatch,
				fmt.Sprintf("Invalid value for column '%s': %v", col.Name, err))
		}
		row[col.Name] = coerced
	}
	return row, nil
}

// removeRowLocked drops a row and its index entries by id, rebuilding row
// positions. Used for rollback after a failed persist.
func (t *Table) removeRowLocked(id int64) {
	pos, ok := t.byID[id]
	if !ok {
		return
	}
	row := t.rows[pos]
	for name, ix := range t.indexes {
		ix.Remove(row[name])
	}
	t.rows = append(t.rows[:pos], t.rows[pos+1:]...)
	delete(t.byID, id)
	for i := pos; i < len(t.rows); i++ {
		t.byID[t.rows[i].ID()] = i
	}
}

// Select returns copies of all rows satisfying the conjunction, in
// insertion order. An equality term on an indexed column resolves through
// the index; an equality term on a filtered column can rule the scan out
// entirely; otherwise the whole table is scanned. All paths return the
// same row set.
func (t *Table) Select(preds []types.Predicate) ([]types.Row, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	preds, err := t.preparePredicatesLocked(preds)
	if err != nil {
		return nil, err
	}

	rows, err := t.selectLocked(preds)
	if err != nil {
		return nil, err
	}

	out := make([]types.Row, 0, len(rows))
	for _, pos := range rows {
		out = append(out, t.rows[pos].Clone())
	}
	t.opts.Stats.RecordTableAccess(t.name)
	return out, nil
}

// preparePredicatesLocked validates predicate columns and coerces each
// literal to its column's type, so index lookups and comparisons see the
// value as stored.
func (t *Table) preparePredicatesLocked(preds []types.Predicate) ([]types.Predicate, error) {
	if len(preds) == 0 {
		return preds, nil
	}
	prepared := make([]types.Predicate, len(preds))
	for i, p := range preds {
		pos, ok := t.colIdx[p.Column]
		if !ok && p.Column != types.IDColumn {
			return nil, errs.NewNotFoundError(errs.CodeColumnNotFound,
				fmt.Sprintf("Column '%s' does not exist in table '%s'", p.Column, t.name))
		}
		if ok {
			if coerced, err := types.Coerce(p.Value, t.columns[pos]); err == nil {
				p.Value = coerced
			}
		}
		t.opts.Stats.RecordPredicate(t.name+"."+p.Column, string(p.Op))
		prepared[i] = p
	}
	return prepared, nil
}

// selectLocked evaluates a prepared conjunction and returns matching row
// positions in insertion order.
func (t *Table) selectLocked(preds []types.Predicate) ([]int, error) {
	// Index path: one equality term on an indexed column narrows the
	// candidate set to at most one row.
	for _, p := range preds {
		if p.Op != types.OpEq || p.Value.IsNull() {
			continue
		}
		ix, ok := t.indexes[p.Column]
		if !ok {
			continue
		}
		t.opts.Stats.RecordIndexHit()
		id, found := ix.Lookup(p.Value)
		if !found {
			return nil, nil
		}
		pos, present := t.byID[id]
		if !present {
			return nil, errs.New(errs.CategoryInternal, errs.CodeUnexpected,
				fmt.Sprintf("index on '%s' references missing row %d", p.Column, id))
		}
		match, err := t.matchesLocked(preds, pos)
		if err != nil {
			return nil, err
		}
		if !match {
			return nil, nil
		}
		return []int{pos}, nil
	}

	// Bloom path: an equality term whose value was never inserted rules
	// out every row without touching them.
	for _, p := range preds {
		if p.Op != types.OpEq || p.Value.IsNull() {
			continue
		}
		f, ok := t.filters[p.Column]
		if !ok {
			continue
		}
		if !f.MightContain(p.Value) {
			t.opts.Stats.RecordBloomSkip()
			return nil, nil
		}
	}

	if len(preds) > 0 {
		t.opts.Stats.RecordFullScan()
	}
	var out []int
	for pos := range t.rows {
		match, err := t.matchesLocked(preds, pos)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, pos)
		}
	}
	return out, nil
}

// matchesLocked evaluates the conjunction against one row, translating
// comparison failures into the type-error taxonomy.
func (t *Table) matchesLocked(preds []types.Predicate, pos int) (bool, error) {
	ok, err := types.MatchesAll(preds, t.rows[pos])
	if err != nil {
		return false, errs.NewTypeError(errs.CodeNotComparable,
			fmt.Sprintf("Cannot evaluate predicate on table '%s': %v", t.name, err))
	}
	return ok, nil
}

// Update applies assignments to every row matching the conjunction,
// re-validating constraints exactly as insert does and re-keying affected
// indexes. The whole statement applies or none of it does: any collision
// or persist failure restores rows and indexes before returning. An empty
// conjunction is rejected.
func (t *Table) Update(preds []types.Predicate, assignments map[string]types.Value) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(preds) == 0 {
		return 0, errs.NewSafetyError("UPDATE without WHERE clause is not allowed (safety measure)")
	}
	preds, err := t.preparePredicatesLocked(preds)
	if err != nil {
		return 0, err
	}

	coerced, err := t.coerceAssignmentsLocked(assignments)
	if err != nil {
		return 0, err
	}

	matches, err := t.selectLocked(preds)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, nil
	}

	undo := t.snapshotLocked(matches)

	for _, pos := range matches {
		row := t.rows[pos]
		id := row.ID()
		for name, newVal := range coerced {
			if ix, ok := t.indexes[name]; ok {
				if err := ix.Update(row[name], newVal, id); err != nil {
					t.restoreLocked(undo)
					return 0, err
				}
			}
			row[name] = newVal
			if f, ok := t.filters[name]; ok {
				f.Add(newVal)
			}
		}
	}

	if err := t.persistLocked(); err != nil {
		t.restoreLocked(undo)
		return 0, err
	}
	t.opts.Stats.RecordTableAccess(t.name)
	return len(matches), nil
}

// coerceAssignmentsLocked validates assignment targets and coerces each
// value to its column's declared type, enforcing NOT NULL.
func (t *Table) coerceAssignmentsLocked(assignments map[string]types.Value) (map[string]types.Value, error) {
	if len(assignments) == 0 {
		return nil, errs.NewSyntaxError(errs.CodeUnexpectedToken, "UPDATE requires at least one assignment")
	}
	out := make(map[string]types.Value, len(assignments))
	for name, v := range assignments {
		if name == types.IDColumn {
			return nil, errs.NewSchemaError(errs.CodeReservedColumn,
				fmt.Sprintf("Column '%s' is immutable", types.IDColumn))
		}
		pos, ok := t.colIdx[name]
		if !ok {
			return nil, errs.NewNotFoundError(errs.CodeColumnNotFound,
				fmt.Sprintf("Column '%s' does not exist in table '%s'", name, t.name))
		}
		col := t.columns[pos]
		if v.IsNull() {
			if !col.Nullable {
				return nil, errs.NewConstraintError(
					fmt.Sprintf("Column '%s' cannot be NULL", col.Name))
			}
			out[name] = types.Null()
			continue
		}
		cv, err := types.Coerce(v, col)
		if err != nil {
			return nil, errs.NewTypeError(errs.CodeTypeMismatch,
				fmt.Sprintf("Invalid value for column '%s': %v", col.Name, err))
		}
		out[name] = cv
	}
	return out, nil
}

// tableSnapshot captures the state a failed statement must restore.
type tableSnapshot struct {
	rows    map[int]types.Row
	indexes map[string]map[string]int64
}

// snapshotLocked clones the rows about to change and every index mapping.
func (t *Table) snapshotLocked(positions []int) tableSnapshot {
	snap := tableSnapshot{
		rows:    make(map[int]types.Row, len(positions)),
		indexes: make(map[string]map[string]int64, len(t.indexes)),
	}
	for _, pos := range positions {
		snap.rows[pos] = t.rows[pos].Clone()
	}
	for name, ix := range t.indexes {
		snap.indexes[name] = ix.Entries()
	}
	return snap
}

// restoreLocked reinstates a snapshot taken by snapshotLocked.
func (t *Table) restoreLocked(snap tableSnapshot) {
	for pos, row := range snap.rows {
		t.rows[pos] = row
	}
	for name, entries := range snap.indexes {
		t.indexes[name].Restore(entries)
	}
}

// Delete removes every row matching the conjunction along with its index
// entries, then persists. An empty conjunction is rejected.
func (t *Table) Delete(preds []types.Predicate) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(preds) == 0 {
		return 0, errs.NewSafetyError("DELETE without WHERE clause is not allowed (safety measure)")
	}
	preds, err := t.preparePredicatesLocked(preds)
	if err != nil {
		return 0, err
	}

	matches, err := t.selectLocked(preds)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, nil
	}

	oldRows := t.rows
	oldByID := t.byID
	indexSnap := make(map[string]map[string]int64, len(t.indexes))
	for name, ix := range t.indexes {
		indexSnap[name] = ix.Entries()
	}

	doomed := make(map[int]bool, len(matches))
	for _, pos := range matches {
		doomed[pos] = true
	}

	kept := make([]types.Row, 0, len(t.rows)-len(matches))
	byID := make(map[int64]int, len(t.rows)-len(matches))
	for pos, row := range t.rows {
		if doomed[pos] {
			for name, ix := range t.indexes {
				ix.Remove(row[name])
			}
			continue
		}
		byID[row.ID()] = len(kept)
		kept = append(kept, row)
	}
	t.rows = kept
	t.byID = byID

	if err := t.persistLocked(); err != nil {
		t.rows = oldRows
		t.byID = oldByID
		for name, entries := range indexSnap {
			t.indexes[name].Restore(entries)
		}
		return 0, err
	}

	// Deleted values linger in the filters as potential false positives
	// until the next rebuild; correctness only needs no false negatives.
	t.opts.Stats.RecordTableAccess(t.name)
	return len(matches), nil
}

// Drop removes the table's persisted file and every index file. The
// in-memory structure is left to be discarded by the catalog.
func (t *Table) Drop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.Remove(TableFilePath(t.dir, t.name)); err != nil && !os.IsNotExist(err) {
		return errs.NewIOError(fmt.Sprintf("cannot remove table file for '%s'", t.name), err)
	}
	for name := range t.indexes {
		path := IndexFilePath(t.dir, t.name, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errs.NewIOError(fmt.Sprintf("cannot remove index file for '%s.%s'", t.name, name), err)
		}
	}
	return nil
}

// rebuildFiltersLocked repopulates every bloom filter from the current row
// set, clearing entries left by deleted rows.
func (t *Table) rebuildFiltersLocked() {
	for name, f := range t.filters {
		f.Reset()
		for _, row := range t.rows {
			f.Add(row[name])
		}
	}
}

// persistLocked rewrites the table file and every index file. The table
// file is written first; index files are derivable from it, so a crash
// between writes loses nothing a reload cannot rebuild.
func (t *Table) persistLocked() error {
	data, err := encodeTableFile(t.name, t.columns, t.nextID, t.rows)
	if err != nil {
		return errs.NewInternalError(fmt.Sprintf("cannot encode table '%s'", t.name), err)
	}
	if err := writeFileAtomic(TableFilePath(t.dir, t.name), data); err != nil {
		return errs.NewIOError(fmt.Sprintf("cannot persist table '%s'", t.name), err)
	}

	for name, ix := range t.indexes {
		data, err := encodeIndexFile(name, ix.Entries())
		if err != nil {
			return errs.NewInternalError(fmt.Sprintf("cannot encode index '%s.%s'", t.name, name), err)
		}
		if err := writeFileAtomic(IndexFilePath(t.dir, t.name, name), data); err != nil {
			return errs.NewIOError(fmt.Sprintf("cannot persist index '%s.%s'", t.name, name), err)
		}
	}
	return nil
}
