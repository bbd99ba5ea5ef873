package types

import "strings"

// ColumnType is a declared column type. The five canonical types cover the
// full value model; parser-level aliases (INT, TEXT, BOOL, FLOAT,
// TIMESTAMP) normalize to these.
type ColumnType string

const (
	TypeInteger  ColumnType = "INTEGER"
	TypeVarchar  ColumnType = "VARCHAR"
	TypeBoolean  ColumnType = "BOOLEAN"
	TypeDecimal  ColumnType = "DECIMAL"
	TypeDatetime ColumnType = "DATETIME"
)

// typeAliases maps accepted type names, upper-cased, to canonical types.
var typeAliases = map[string]ColumnType{
	"INTEGER":   TypeInteger,
	"INT":       TypeInteger,
	"VARCHAR":   TypeVarchar,
	"TEXT":      TypeVarchar,
	"STRING":    TypeVarchar,
	"BOOLEAN":   TypeBoolean,
	"BOOL":      TypeBoolean,
	"DECIMAL":   TypeDecimal,
	"FLOAT":     TypeDecimal,
	"DATETIME":  TypeDatetime,
	"TIMESTAMP": TypeDatetime,
}

// ParseColumnType resolves a type name from SQL text to its canonical
// column type. The second result is false for unknown names.
func ParseColumnType(name string) (ColumnType, bool) {
	ct, ok := typeAliases[strings.ToUpper(name)]
	return ct, ok
}

// Kind returns the value kind stored in columns of this type.
func (ct ColumnType) Kind() Kind {
	switch ct {
	case TypeInteger:
		return KindInteger
	case TypeVarchar:
		return KindText
	case TypeBoolean:
		return KindBoolean
	case TypeDecimal:
		return KindDecimal
	case TypeDatetime:
		return KindTimestamp
	default:
		return KindNull
	}
}

// ColumnDefinition describes one column of a table schema.
type ColumnDefinition struct {
	// Name is the column name, unique within its table.
	Name string `json:"name"`

	// Type is the canonical declared type.
	Type ColumnType `json:"type"`

	// Size is the maximum text length for VARCHAR columns; zero means
	// unbounded and is omitted for non-text types.
	Size int `json:"size,omitempty"`

	// PrimaryKey marks the table's row key. A primary key column is
	// implicitly unique and non-nullable.
	PrimaryKey bool `json:"primary_key"`

	// Unique enforces a one-to-one index over the column's values.
	Unique bool `json:"unique"`

	// Nullable permits NULL in place of a typed value.
	Nullable bool `json:"nullable"`
}

// Indexed reports whether the column carries a unique index.
func (c ColumnDefinition) Indexed() bool {
	return c.PrimaryKey || c.Unique
}

// Normalize applies the implications of the PRIMARY KEY flag: a primary key
// column is always unique and never nullable.
func (c ColumnDefinition) Normalize() ColumnDefinition {
	if c.PrimaryKey {
		c.Unique = true
		c.Nullable = false
	}
	return c
}

// IDColumn is the reserved name of the internal row identifier present in
// every row. It is assigned by the storage engine and never user-writable.
const IDColumn = "_id"
