// Package storage implements the table engine: schema-validated rows held
// in memory, unique indexes and bloom filters kept in step with every
// mutation, and a whole-file JSON representation rewritten atomically after
// each successful write.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	errs "github.com/jbdura/settlement-project/internal/errors"
	"github.com/jbdura/settlement-project/pkg/types"
)

// tableFile is the persisted form of a table: schema, row data, and the
// auto-increment counter, in one JSON document.
type tableFile struct {
	Name    string                   `json:"name"`
	Columns []types.ColumnDefinition `json:"columns"`
	NextID  int64                    `json:"next_id"`
	Rows    []map[string]interface{} `json:"rows"`
}

// indexFile is the persisted form of one unique index. Entries map the
// canonical key of each indexed value to the owning row id.
type indexFile struct {
	Column  string           `json:"column"`
	Entries map[string]int64 `json:"entries"`
}

// TableFilePath returns the path of a table's data file inside dir.
func TableFilePath(dir, table string) string {
	return filepath.Join(dir, table+".table.json")
}

// IndexFilePath returns the path of one column's index file inside dir.
func IndexFilePath(dir, table, column string) string {
	return filepath.Join(dir, table+"."+column+".idx.json")
}

// IsTableFile reports whether a directory entry name is a table data file,
// returning the table name when it is.
func IsTableFile(name string) (string, bool) {
	const suffix = ".table.json"
	if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
		return name[:len(name)-len(suffix)], true
	}
	return "", false
}

// IsIndexFile reports whether a directory entry name is an index file.
func IsIndexFile(name string) bool {
	const suffix = ".idx.json"
	return len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix
}

// writeFileAtomic replaces path with data via a temp file and rename, so a
// reader never observes a partially written file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".settld-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// encodeTableFile renders the persisted JSON document for a table.
func encodeTableFile(name string, columns []types.ColumnDefinition, nextID int64, rows []types.Row) ([]byte, error) {
	tf := tableFile{
		Name:    name,
		Columns: columns,
		NextID:  nextID,
		Rows:    make([]map[string]interface{}, 0, len(rows)),
	}
	for _, row := range rows {
		tf.Rows = append(tf.Rows, row.Native())
	}
	return json.MarshalIndent(tf, "", "  ")
}

// decodeTableFile parses a persisted table document and rehydrates its rows
// into typed values using the declared schema.
func decodeTableFile(data []byte) (tableFile, []types.Row, error) {
	var tf tableFile
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&tf); err != nil {
		return tableFile{}, nil, errs.Wrap(errs.CategoryInternal, errs.CodeCorruptFile,
			"table file is not valid JSON", err)
	}

	byName := make(map[string]types.ColumnDefinition, len(tf.Columns))
	for _, col := range tf.Columns {
		byName[col.Name] = col
	}

	rows := make([]types.Row, 0, len(tf.Rows))
	for i, raw := range tf.Rows {
		row := make(types.Row, len(raw))
		for name, cell := range raw {
			if name == types.IDColumn {
				id, err := decodeID(cell)
				if err != nil {
					return tableFile{}, nil, errs.Wrap(errs.CategoryInternal, errs.CodeCorruptFile,
						fmt.Sprintf("row %d has a malformed row id", i), err)
				}
				row[types.IDColumn] = types.NewInteger(id)
				continue
			}
			col, ok := byName[name]
			if !ok {
				return tableFile{}, nil, errs.New(errs.CategoryInternal, errs.CodeCorruptFile,
					fmt.Sprintf("row %d carries undeclared column '%s'", i, name))
			}
			v, err := decodeValue(cell, col)
			if err != nil {
				return tableFile{}, nil, errs.Wrap(errs.CategoryInternal, errs.CodeCorruptFile,
					fmt.Sprintf("row %d column '%s' cannot be decoded", i, name), err)
			}
			row[name] = v
		}
		if _, ok := row[types.IDColumn]; !ok {
			return tableFile{}, nil, errs.New(errs.CategoryInternal, errs.CodeCorruptFile,
				fmt.Sprintf("row %d is missing its row id", i))
		}
		rows = append(rows, row)
	}
	return tf, rows, nil
}

// decodeID parses a row identifier cell.
func decodeID(cell interface{}) (int64, error) {
	n, ok := cell.(json.Number)
	if !ok {
		return 0, fmt.Errorf("expected a number, got %T", cell)
	}
	return n.Int64()
}

// decodeValue rehydrates one JSON cell into a typed value according to the
// column's declared type.
func decodeValue(cell interface{}, col types.ColumnDefinition) (types.Value, error) {
	if cell == nil {
		return types.Null(), nil
	}
	switch col.Type {
	case types.TypeInteger:
		n, ok := cell.(json.Number)
		if !ok {
			return types.Value{}, fmt.Errorf("expected a number, got %T", cell)
		}
		i, err := n.Int64()
		if err != nil {
			return types.Value{}, err
		}
		return types.NewInteger(i), nil
	case types.TypeDecimal:
		n, ok := cell.(json.Number)
		if !ok {
			return types.Value{}, fmt.Errorf("expected a number, got %T", cell)
		}
		f, err := n.Float64()
		if err != nil {
			return types.Value{}, err
		}
		return types.NewDecimal(f), nil
	case types.TypeBoolean:
		b, ok := cell.(bool)
		if !ok {
			return types.Value{}, fmt.Errorf("expected a boolean, got %T", cell)
		}
		return types.NewBoolean(b), nil
	case types.TypeVarchar:
		s, ok := cell.(string)
		if !ok {
			return types.Value{}, fmt.Errorf("expected a string, got %T", cell)
		}
		return types.NewText(s), nil
	case types.TypeDatetime:
		s, ok := cell.(string)
		if !ok {
			return types.Value{}, fmt.Errorf("expected a string, got %T", cell)
		}
		t, err := types.ParseTimestamp(s)
		if err != nil {
			return types.Value{}, err
		}
		return types.NewTimestamp(t), nil
	default:
		return types.Value{}, fmt.Errorf("unknown column type %q", col.Type)
	}
}

// encodeIndexFile renders the persisted JSON document for one index.
func encodeIndexFile(column string, entries map[string]int64) ([]byte, error) {
	return json.MarshalIndent(indexFile{Column: column, Entries: entries}, "", "  ")
}
