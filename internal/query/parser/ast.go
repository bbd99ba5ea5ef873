package parser

import (
	"fmt"
	"strings"

	"github.com/jbdura/settlement-project/pkg/types"
)

// Statement represents a parsed SQL statement.
type Statement interface {
	statementNode()
	String() string
}

// ColumnRef represents a column reference, optionally qualified with a
// table name.
type ColumnRef struct {
	Table  string
	Column string
}

// String returns the SQL representation of the column reference.
func (c ColumnRef) String() string {
	if c.Table != "" {
		return fmt.Sprintf("%s.%s", c.Table, c.Column)
	}
	return c.Column
}

// Condition represents one comparison in a WHERE clause.
type Condition struct {
	Table  string // Optional table qualifier
	Column string
	Op     types.Operator
	Value  types.Value
}

// String returns the SQL representation of the condition.
func (c Condition) String() string {
	ref := ColumnRef{Table: c.Table, Column: c.Column}
	return fmt.Sprintf("%s %s %s", ref.String(), c.Op, literalSQL(c.Value))
}

// Assignment represents one column = value pair in a SET clause.
type Assignment struct {
	Column string
	Value  types.Value
}

// String returns the SQL representation of the assignment.
func (a Assignment) String() string {
	return fmt.Sprintf("%s = %s", a.Column, literalSQL(a.Value))
}

// JoinClause represents an inner join between the FROM table and a second
// table, as written in the statement.
type JoinClause struct {
	Table       string // Joined table name
	LeftTable   string
	LeftColumn  string
	RightTable  string
	RightColumn string
}

// String returns the SQL representation of the join clause.
func (j *JoinClause) String() string {
	return fmt.Sprintf("JOIN %s ON %s.%s = %s.%s",
		j.Table, j.LeftTable, j.LeftColumn, j.RightTable, j.RightColumn)
}

// CreateTableStatement represents a CREATE TABLE statement.
type CreateTableStatement struct {
	Table   string
	Columns []types.ColumnDefinition
}

func (s *CreateTableStatement) statementNode() {}

// String returns the SQL representation of the CREATE TABLE statement.
func (s *CreateTableStatement) String() string {
	cols := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		cols[i] = columnDefSQL(col)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", s.Table, strings.Join(cols, ", "))
}

// InsertStatement represents an INSERT statement.
type InsertStatement struct {
	Table   string
	Columns []string
	Values  []types.Value
}

func (s *InsertStatement) statementNode() {}

// String returns the SQL representation of the INSERT statement.
func (s *InsertStatement) String() string {
	vals := make([]string, len(s.Values))
	for i, v := range s.Values {
		vals[i] = literalSQL(v)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.Table, strings.Join(s.Columns, ", "), strings.Join(vals, ", "))
}

// SelectStatement represents a SELECT statement, optionally with a join.
type SelectStatement struct {
	Star    bool
	Columns []ColumnRef
	Table   string
	Join    *JoinClause
	Where   []Condition
}

func (s *SelectStatement) statementNode() {}

// String returns the SQL representation of the SELECT statement.
func (s *SelectStatement) String() string {
	var sb strings.Builder

	sb.WriteString("SELECT ")
	if s.Star {
		sb.WriteString("*")
	} else {
		cols := make([]string, len(s.Columns))
		for i, col := range s.Columns {
			cols[i] = col.String()
		}
		sb.WriteString(strings.Join(cols, ", "))
	}

	sb.WriteString(" FROM ")
	sb.WriteString(s.Table)

	if s.Join != nil {
		sb.WriteString(" ")
		sb.WriteString(s.Join.String())
	}

	writeWhere(&sb, s.Where)
	return sb.String()
}

// UpdateStatement represents an UPDATE statement.
type UpdateStatement struct {
	Table       string
	Assignments []Assignment
	Where       []Condition
}

func (s *UpdateStatement) statementNode() {}

// String returns the SQL representation of the UPDATE statement.
func (s *UpdateStatement) String() string {
	var sb strings.Builder

	sb.WriteString("UPDATE ")
	sb.WriteString(s.Table)
	sb.WriteString(" SET ")
	assigns := make([]string, len(s.Assignments))
	for i, a := range s.Assignments {
		assigns[i] = a.String()
	}
	sb.WriteString(strings.Join(assigns, ", "))

	writeWhere(&sb, s.Where)
	return sb.String()
}

// DeleteStatement represents a DELETE statement.
type DeleteStatement struct {
	Table string
	Where []Condition
}

func (s *DeleteStatement) statementNode() {}

// String returns the SQL representation of the DELETE statement.
func (s *DeleteStatement) String() string {
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(s.Table)
	writeWhere(&sb, s.Where)
	return sb.String()
}

// DropTableStatement represents a DROP TABLE statement.
type DropTableStatement struct {
	Table string
}

func (s *DropTableStatement) statementNode() {}

// String returns the SQL representation of the DROP TABLE statement.
func (s *DropTableStatement) String() string {
	return fmt.Sprintf("DROP TABLE %s", s.Table)
}

// writeWhere appends a WHERE clause to sb when conditions are present.
func writeWhere(sb *strings.Builder, conds []Condition) {
	if len(conds) == 0 {
		return
	}
	sb.WriteString(" WHERE ")
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = c.String()
	}
	sb.WriteString(strings.Join(parts, " AND "))
}

// literalSQL renders a value as a SQL literal.
func literalSQL(v types.Value) string {
	switch v.Kind {
	case types.KindNull:
		return "NULL"
	case types.KindText:
		// Escape single quotes
		escaped := strings.ReplaceAll(v.Str, "'", "''")
		return fmt.Sprintf("'%s'", escaped)
	case types.KindBoolean:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	case types.KindTimestamp:
		return fmt.Sprintf("'%s'", v.Key())
	default:
		return v.Key()
	}
}

// columnDefSQL renders a column definition as it appears in CREATE TABLE.
func columnDefSQL(col types.ColumnDefinition) string {
	var sb strings.Builder
	sb.WriteString(col.Name)
	sb.WriteString(" ")
	sb.WriteString(string(col.Type))
	if col.Type == types.TypeVarchar && col.Size > 0 {
		sb.WriteString(fmt.Sprintf("(%d)", col.Size))
	}
	if col.PrimaryKey {
		sb.WriteString(" PRIMARY KEY")
	}
	if col.Unique && !col.PrimaryKey {
		sb.WriteString(" UNIQUE")
	}
	if !col.Nullable && !col.PrimaryKey {
		sb.WriteString(" NOT NULL")
	}
	return sb.String()
}
