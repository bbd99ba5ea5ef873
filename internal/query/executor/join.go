package executor

import (
	"fmt"
	"strconv"
	"strings"

	errs "github.com/jbdura/settlement-project/internal/errors"
	"github.com/jbdura/settlement-project/internal/query/parser"
	"github.com/jbdura/settlement-project/internal/storage"
	"github.com/jbdura/settlement-project/pkg/types"
)

// Join runs a hash equi-join between two tables without going through SQL.
// The HTTP join endpoint and the settlement service call this directly.
// Column names in columns and conditions may be table-qualified; bare names
// must be unambiguous across the two tables.
func (e *Executor) Join(leftTable, rightTable, leftKey, rightKey string,
	columns []string, conditions []parser.Condition) types.Result {
	res, err := e.join(leftTable, rightTable, leftKey, rightKey, columns, conditions)
	if e.stats != nil {
		e.stats.RecordStatement("JOIN")
		if err != nil {
			e.stats.RecordError(string(errs.GetCategory(err)))
		}
	}
	if err != nil {
		return types.Failure(errs.UserMessage(err))
	}
	return res
}

// executeJoinSelect maps a parsed SELECT ... JOIN onto the join engine. The
// ON sides may appear in either order; they are normalized so the FROM table
// drives the probe phase.
func (e *Executor) executeJoinSelect(s *parser.SelectStatement) (types.Result, error) {
	j := s.Join

	for _, tbl := range []string{j.LeftTable, j.RightTable} {
		if tbl != s.Table && tbl != j.Table {
			return types.Result{}, errs.NewNotFoundError(errs.CodeTableNotFound,
				fmt.Sprintf("Table '%s' is not part of this join", tbl))
		}
	}
	if j.LeftTable == j.RightTable {
		return types.Result{}, errs.NewSchemaError(errs.CodeSelfJoin,
			"Join condition must reference both joined tables")
	}

	leftKey, rightKey := j.LeftColumn, j.RightColumn
	if j.LeftTable == j.Table {
		leftKey, rightKey = j.RightColumn, j.LeftColumn
	}

	var columns []string
	if !s.Star {
		columns = make([]string, len(s.Columns))
		for i, ref := range s.Columns {
			columns[i] = ref.String()
		}
	}

	return e.join(s.Table, j.Table, leftKey, rightKey, columns, s.Where)
}

func (e *Executor) join(leftTable, rightTable, leftKey, rightKey string,
	columns []string, conditions []parser.Condition) (types.Result, error) {
	if leftTable == rightTable {
		return types.Result{}, errs.NewSchemaError(errs.CodeSelfJoin,
			"Cannot join a table with itself")
	}

	lt, err := e.catalog.Table(leftTable)
	if err != nil {
		return types.Result{}, err
	}
	rt, err := e.catalog.Table(rightTable)
	if err != nil {
		return types.Result{}, err
	}
	sc := joinScope{leftName: leftTable, left: lt, rightName: rightTable, right: rt}

	if !sc.has(lt, leftKey) {
		return types.Result{}, errs.NewNotFoundError(errs.CodeColumnNotFound,
			fmt.Sprintf("Column '%s' does not exist in table '%s'", leftKey, leftTable))
	}
	if !sc.has(rt, rightKey) {
		return types.Result{}, errs.NewNotFoundError(errs.CodeColumnNotFound,
			fmt.Sprintf("Column '%s' does not exist in table '%s'", rightKey, rightTable))
	}

	preds, err := sc.predicates(conditions)
	if err != nil {
		return types.Result{}, err
	}
	outColumns, err := sc.projection(columns)
	if err != nil {
		return types.Result{}, err
	}

	leftRows, err := lt.Select(nil)
	if err != nil {
		return types.Result{}, err
	}
	rightRows, err := rt.Select(nil)
	if err != nil {
		return types.Result{}, err
	}

	// Build phase: bucket the right table by canonical key.
	buckets := make(map[string][]types.Row, len(rightRows))
	for _, row := range rightRows {
		k := joinKey(row[rightKey])
		buckets[k] = append(buckets[k], row)
	}

	// Probe phase: walk the left table in row order so output order follows
	// the left table, with ties in right insertion order. Bucket mates are
	// re-checked with Equal, so a key collision cannot produce a false pair.
	var matched []types.Row
	for _, lrow := range leftRows {
		lval := lrow[leftKey]
		for _, rrow := range buckets[joinKey(lval)] {
			eq, err := lval.Equal(rrow[rightKey])
			if err != nil || !eq {
				continue
			}
			combined := mergeRows(leftTable, lrow, rightTable, rrow)
			ok, err := types.MatchesAll(preds, combined)
			if err != nil {
				return types.Result{}, errs.NewTypeError(errs.CodeNotComparable,
					fmt.Sprintf("Cannot evaluate predicate in join query: %v", err))
			}
			if ok {
				matched = append(matched, combined)
			}
		}
	}
	if e.stats != nil {
		e.stats.RecordJoin(len(rightRows), len(leftRows))
		e.stats.RecordRowsReturned(len(matched))
	}

	projected := projectRows(outColumns, matched)
	return types.OK(fmt.Sprintf("JOIN returned %d row(s)", len(projected))).
		WithRows(outColumns, projected), nil
}

// joinKey canonicalizes a value for hash bucketing. INTEGER and DECIMAL
// collapse into one numeric keyspace so 5 and 5.0 share a bucket; every
// other kind is prefixed so equal key strings across kinds (the text 'NULL'
// and the NULL value) stay apart.
func joinKey(v types.Value) string {
	switch v.Kind {
	case types.KindInteger:
		return "n:" + strconv.FormatFloat(float64(v.Int), 'g', -1, 64)
	case types.KindDecimal:
		return "n:" + strconv.FormatFloat(v.Dec, 'g', -1, 64)
	default:
		return fmt.Sprintf("%s:%s", v.Kind, v.Key())
	}
}

// mergeRows builds the combined row with every column, the row identifiers
// included, qualified as "table.column".
func mergeRows(leftTable string, left types.Row, rightTable string, right types.Row) types.Row {
	out := make(types.Row, len(left)+len(right))
	for col, v := range left {
		out[leftTable+"."+col] = v
	}
	for col, v := range right {
		out[rightTable+"."+col] = v
	}
	return out
}

// joinScope resolves column references against the two tables of a join.
type joinScope struct {
	leftName  string
	left      *storage.Table
	rightName string
	right     *storage.Table
}

func (sc joinScope) has(tbl *storage.Table, column string) bool {
	if column == types.IDColumn {
		return true
	}
	_, ok := tbl.Column(column)
	return ok
}

// resolve maps a possibly qualified column reference to its name in the
// combined row.
func (sc joinScope) resolve(table, column string) (string, error) {
	if table != "" {
		switch table {
		case sc.leftName:
			if !sc.has(sc.left, column) {
				return "", errs.NewNotFoundError(errs.CodeColumnNotFound,
					fmt.Sprintf("Column '%s' does not exist in table '%s'", column, table))
			}
		case sc.rightName:
			if !sc.has(sc.right, column) {
				return "", errs.NewNotFoundError(errs.CodeColumnNotFound,
					fmt.Sprintf("Column '%s' does not exist in table '%s'", column, table))
			}
		default:
			return "", errs.NewNotFoundError(errs.CodeTableNotFound,
				fmt.Sprintf("Table '%s' is not part of this join", table))
		}
		return table + "." + column, nil
	}

	inLeft := sc.has(sc.left, column)
	inRight := sc.has(sc.right, column)
	switch {
	case inLeft && inRight:
		return "", errs.NewNotFoundError(errs.CodeAmbiguousColumn,
			fmt.Sprintf("Ambiguous column '%s' in join query", column))
	case inLeft:
		return sc.leftName + "." + column, nil
	case inRight:
		return sc.rightName + "." + column, nil
	default:
		return "", errs.NewNotFoundError(errs.CodeColumnNotFound,
			fmt.Sprintf("Column '%s' does not exist in joined tables", column))
	}
}

// predicates resolves WHERE conditions against the combined row shape.
func (sc joinScope) predicates(conditions []parser.Condition) ([]types.Predicate, error) {
	preds := make([]types.Predicate, 0, len(conditions))
	for _, c := range conditions {
		qualified, err := sc.resolve(c.Table, c.Column)
		if err != nil {
			return nil, err
		}
		preds = append(preds, types.Predicate{Column: qualified, Op: c.Op, Value: c.Value})
	}
	return preds, nil
}

// projection resolves the output column list. A nil list expands to every
// column of both tables, left table first, each preceded by its row
// identifier.
func (sc joinScope) projection(columns []string) ([]string, error) {
	if columns == nil {
		out := make([]string, 0, len(sc.left.Columns())+len(sc.right.Columns())+2)
		out = append(out, sc.leftName+"."+types.IDColumn)
		for _, def := range sc.left.Columns() {
			out = append(out, sc.leftName+"."+def.Name)
		}
		out = append(out, sc.rightName+"."+types.IDColumn)
		for _, def := range sc.right.Columns() {
			out = append(out, sc.rightName+"."+def.Name)
		}
		return out, nil
	}

	out := make([]string, 0, len(columns))
	for _, c := range columns {
		table, column, found := strings.Cut(c, ".")
		if !found {
			table, column = "", c
		}
		qualified, err := sc.resolve(table, column)
		if err != nil {
			return nil, err
		}
		out = append(out, qualified)
	}
	return out, nil
}
