package types

import "fmt"

// Operator is a comparison operator usable in a predicate term.
type Operator string

const (
	OpEq Operator = "="
	OpNe Operator = "<>"
	OpLt Operator = "<"
	OpGt Operator = ">"
	OpLe Operator = "<="
	OpGe Operator = ">="
)

// ValidOperator reports whether s is one of the supported comparison
// operators.
func ValidOperator(s string) bool {
	switch Operator(s) {
	case OpEq, OpNe, OpLt, OpGt, OpLe, OpGe:
		return true
	}
	return false
}

// Predicate is a single comparison term: column <op> value. A WHERE clause
// compiles to a conjunction of predicates; an empty slice matches every row.
type Predicate struct {
	// Column is the row key the term tests. For joined rows it is the
	// qualified form "table.column".
	Column string

	// Op is the comparison operator.
	Op Operator

	// Value is the literal the column value is compared against.
	Value Value
}

// String renders the term as it would appear in a WHERE clause.
func (p Predicate) String() string {
	if p.Value.Kind == KindText {
		return fmt.Sprintf("%s %s '%s'", p.Column, p.Op, p.Value.Str)
	}
	return fmt.Sprintf("%s %s %s", p.Column, p.Op, p.Value)
}

// Matches evaluates the term against a row. Equality against NULL is false
// rather than an error; ordered comparisons involving NULL and comparisons
// across incompatible kinds report ErrNotComparable.
func (p Predicate) Matches(row Row) (bool, error) {
	cell, ok := row[p.Column]
	if !ok {
		cell = Null()
	}
	switch p.Op {
	case OpEq:
		return cell.Equal(p.Value)
	case OpNe:
		eq, err := cell.Equal(p.Value)
		return !eq, err
	case OpLt, OpGt, OpLe, OpGe:
		c, err := cell.Compare(p.Value)
		if err != nil {
			return false, err
		}
		switch p.Op {
		case OpLt:
			return c < 0, nil
		case OpGt:
			return c > 0, nil
		case OpLe:
			return c <= 0, nil
		default:
			return c >= 0, nil
		}
	default:
		return false, fmt.Errorf("unsupported operator %q", p.Op)
	}
}

// MatchesAll evaluates a conjunction of terms against a row. An empty
// conjunction matches.
func MatchesAll(preds []Predicate, row Row) (bool, error) {
	for _, p := range preds {
		ok, err := p.Matches(row)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
