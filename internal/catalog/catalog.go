// Package catalog tracks the tables living in a data directory and hands out
// live handles to them. All DDL goes through the catalog so that the set of
// open tables always matches the set of table files on disk.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"sync"

	errs "github.com/jbdura/settlement-project/internal/errors"
	"github.com/jbdura/settlement-project/internal/observability"
	"github.com/jbdura/settlement-project/internal/storage"
	"github.com/jbdura/settlement-project/pkg/types"
)

// Catalog is the registry of open tables. It serializes DDL; per-row
// operations are serialized by the tables themselves.
type Catalog struct {
	mu     sync.RWMutex
	dir    string
	opts   storage.Options
	tables map[string]*storage.Table
}

// Open loads every table found in dir. The directory is created if it does
// not exist yet. A table file that fails to load aborts the open; a data
// directory with corrupt members should be repaired, not silently skipped.
func Open(dir string, opts storage.Options) (*Catalog, error) {
	if opts.Stats == nil {
		opts.Stats = observability.NewCollector()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errs.NewIOError(fmt.Sprintf("catalog: failed to create data dir %s", dir), err)
	}

	tables, err := loadTables(dir, opts)
	if err != nil {
		return nil, err
	}
	return &Catalog{dir: dir, opts: opts, tables: tables}, nil
}

// loadTables opens every table file found in dir.
func loadTables(dir string, opts storage.Options) (map[string]*storage.Table, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.NewIOError(fmt.Sprintf("catalog: failed to read data dir %s", dir), err)
	}

	tables := make(map[string]*storage.Table)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := storage.IsTableFile(entry.Name())
		if !ok {
			continue
		}
		tbl, err := storage.Load(dir, name, opts)
		if err != nil {
			return nil, errs.Wrap(errs.CategoryInternal, errs.CodeCorruptFile,
				fmt.Sprintf("catalog: failed to load table '%s'", name), err)
		}
		tables[name] = tbl
	}
	return tables, nil
}

// Reload discards the in-memory registry and reopens every table from the
// data directory. Callers that rewrite the table files, such as a snapshot
// restore, must reload before serving further statements.
func (c *Catalog) Reload() error {
	tables, err := loadTables(c.dir, c.opts)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.tables = tables
	c.mu.Unlock()
	return nil
}

// CreateTable creates and registers a new table.
func (c *Catalog) CreateTable(name string, columns []types.ColumnDefinition) (*storage.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tables[name]; ok {
		return nil, errs.NewSchemaError(errs.CodeTableExists,
			fmt.Sprintf("Table '%s' already exists", name))
	}
	tbl, err := storage.Create(c.dir, name, columns, c.opts)
	if err != nil {
		return nil, err
	}
	c.tables[name] = tbl
	return tbl, nil
}

// Table returns the handle for name.
func (c *Catalog) Table(name string) (*storage.Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tbl, ok := c.tables[name]
	if !ok {
		return nil, errs.NewNotFoundError(errs.CodeTableNotFound,
			fmt.Sprintf("Table '%s' does not exist", name))
	}
	return tbl, nil
}

// DropTable removes the table and its files.
func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tbl, ok := c.tables[name]
	if !ok {
		return errs.NewNotFoundError(errs.CodeTableNotFound,
			fmt.Sprintf("Table '%s' does not exist", name))
	}
	if err := tbl.Drop(); err != nil {
		return err
	}
	delete(c.tables, name)
	return nil
}

// ListTables returns the registered table names in sorted order.
func (c *Catalog) ListTables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a table with the given name is registered.
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tables[name]
	return ok
}

// Dir returns the data directory backing this catalog.
func (c *Catalog) Dir() string {
	return c.dir
}

// Stats returns the shared query statistics collector.
func (c *Catalog) Stats() *observability.Collector {
	return c.opts.Stats
}

// TotalRows sums the row counts of all registered tables.
func (c *Catalog) TotalRows() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for _, tbl := range c.tables {
		total += tbl.RowCount()
	}
	return total
}
