package executor

import (
	"fmt"

	errs "github.com/jbdura/settlement-project/internal/errors"
	"github.com/jbdura/settlement-project/internal/query/parser"
	"github.com/jbdura/settlement-project/internal/storage"
	"github.com/jbdura/settlement-project/pkg/types"
)

// Select returns every row of one table matching the given conditions,
// mirroring SELECT *. The HTTP row listing calls this directly instead of
// assembling SQL text.
func (e *Executor) Select(table string, conditions []parser.Condition) types.Result {
	res, err := e.executeSelect(&parser.SelectStatement{Table: table, Star: true, Where: conditions})
	if e.stats != nil {
		e.stats.RecordStatement("SELECT")
		if err != nil {
			e.stats.RecordError(string(errs.GetCategory(err)))
		}
	}
	if err != nil {
		return types.Failure(errs.UserMessage(err))
	}
	return res
}

func (e *Executor) executeSelect(s *parser.SelectStatement) (types.Result, error) {
	tbl, err := e.catalog.Table(s.Table)
	if err != nil {
		return types.Result{}, err
	}

	columns, err := selectColumns(tbl, s)
	if err != nil {
		return types.Result{}, err
	}
	preds, err := conditionsToPredicates(s.Table, s.Where)
	if err != nil {
		return types.Result{}, err
	}

	rows, err := tbl.Select(preds)
	if err != nil {
		return types.Result{}, err
	}
	if e.stats != nil {
		e.stats.RecordRowsReturned(len(rows))
	}

	projected := projectRows(columns, rows)
	return types.OK(fmt.Sprintf("Query returned %d row(s)", len(projected))).
		WithRows(columns, projected), nil
}

// selectColumns resolves the projection list. SELECT * expands to the row
// identifier followed by the declared columns in schema order.
func selectColumns(tbl *storage.Table, s *parser.SelectStatement) ([]string, error) {
	if s.Star {
		defs := tbl.Columns()
		columns := make([]string, 0, len(defs)+1)
		columns = append(columns, types.IDColumn)
		for _, def := range defs {
			columns = append(columns, def.Name)
		}
		return columns, nil
	}

	columns := make([]string, 0, len(s.Columns))
	for _, ref := range s.Columns {
		if ref.Table != "" && ref.Table != s.Table {
			return nil, errs.NewNotFoundError(errs.CodeTableNotFound,
				fmt.Sprintf("Table '%s' is not part of this query", ref.Table))
		}
		if ref.Column != types.IDColumn {
			if _, ok := tbl.Column(ref.Column); !ok {
				return nil, errs.NewNotFoundError(errs.CodeColumnNotFound,
					fmt.Sprintf("Column '%s' does not exist in table '%s'", ref.Column, s.Table))
			}
		}
		columns = append(columns, ref.Column)
	}
	return columns, nil
}

// projectRows narrows each row to the projection columns. Rows coming out
// of storage are already copies, so the narrowed maps are safe to hand to
// callers.
func projectRows(columns []string, rows []types.Row) []types.Row {
	projected := make([]types.Row, len(rows))
	for i, row := range rows {
		out := make(types.Row, len(columns))
		for _, col := range columns {
			if v, ok := row[col]; ok {
				out[col] = v
			}
		}
		projected[i] = out
	}
	return projected
}
