// Package executor runs parsed statements against the catalog and shapes
// uniform results for every caller. Statement-level failures never surface
// as Go errors: they are folded into the Result envelope so the REPL and
// HTTP layers need no per-command branching.
package executor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jbdura/settlement-project/internal/audit"
	"github.com/jbdura/settlement-project/internal/catalog"
	errs "github.com/jbdura/settlement-project/internal/errors"
	"github.com/jbdura/settlement-project/internal/observability"
	"github.com/jbdura/settlement-project/internal/query/parser"
	"github.com/jbdura/settlement-project/pkg/types"
)

// Executor executes SQL statements against a catalog.
type Executor struct {
	catalog *catalog.Catalog
	audit   *audit.Log
	stats   *observability.Collector
}

// Option configures an Executor.
type Option func(*Executor)

// WithAudit attaches a statement audit log. Recording is best effort and
// never fails the statement.
func WithAudit(log *audit.Log) Option {
	return func(e *Executor) { e.audit = log }
}

// WithStats attaches a statistics collector.
func WithStats(stats *observability.Collector) Option {
	return func(e *Executor) { e.stats = stats }
}

// New creates an Executor over the given catalog.
func New(cat *catalog.Catalog, opts ...Option) *Executor {
	e := &Executor{catalog: cat}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the catalog this executor operates on.
func (e *Executor) Catalog() *catalog.Catalog {
	return e.catalog
}

// Execute parses and runs a single SQL statement.
func (e *Executor) Execute(ctx context.Context, sql string) types.Result {
	return e.ExecuteFrom(ctx, "direct", sql)
}

// ExecuteFrom is Execute with a caller-supplied source tag for the audit
// trail ("repl", "http", "settlement").
func (e *Executor) ExecuteFrom(ctx context.Context, source, sql string) types.Result {
	start := time.Now()

	res, kind, err := e.run(sql)
	if e.stats != nil {
		e.stats.RecordStatement(kind)
		if err != nil {
			e.stats.RecordError(string(errs.GetCategory(err)))
		}
		if res.AffectedRows != nil {
			e.stats.RecordRowsAffected(*res.AffectedRows)
		}
	}
	if err != nil {
		res = types.Failure(errs.UserMessage(err))
	}

	if e.audit != nil {
		entry := audit.Entry{
			Source:     source,
			SQL:        sql,
			Success:    res.Success,
			DurationUS: time.Since(start).Microseconds(),
		}
		if err != nil {
			entry.ErrorCategory = string(errs.GetCategory(err))
		}
		if res.AffectedRows != nil {
			entry.RowsAffected = *res.AffectedRows
		}
		if aerr := e.audit.Record(ctx, entry); aerr != nil {
			log.Printf("[WARN] audit: failed to record statement: %v", aerr)
		}
	}

	return res
}

// run parses and dispatches one statement, returning the statement kind
// for bookkeeping.
func (e *Executor) run(sql string) (types.Result, string, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return types.Result{}, "INVALID", asSyntaxError(err)
	}

	switch s := stmt.(type) {
	case *parser.CreateTableStatement:
		res, err := e.executeCreate(s)
		return res, "CREATE", err
	case *parser.InsertStatement:
		res, err := e.executeInsert(s)
		return res, "INSERT", err
	case *parser.SelectStatement:
		if s.Join != nil {
			res, err := e.executeJoinSelect(s)
			return res, "JOIN", err
		}
		res, err := e.executeSelect(s)
		return res, "SELECT", err
	case *parser.UpdateStatement:
		res, err := e.executeUpdate(s)
		return res, "UPDATE", err
	case *parser.DeleteStatement:
		res, err := e.executeDelete(s)
		return res, "DELETE", err
	case *parser.DropTableStatement:
		res, err := e.executeDrop(s)
		return res, "DROP", err
	default:
		return types.Result{}, "INVALID",
			errs.NewInternalError(fmt.Sprintf("unhandled statement type %T", stmt), nil)
	}
}

// asSyntaxError converts a parser error into the engine taxonomy.
func asSyntaxError(err error) error {
	perr, ok := err.(*parser.ParseError)
	if !ok {
		return errs.NewSyntaxError(errs.CodeUnexpectedToken, err.Error())
	}
	code := errs.CodeUnexpectedToken
	switch {
	case strings.Contains(perr.Message, "unknown column type"):
		code = errs.CodeUnknownType
	case perr.Token.Literal == "unterminated string":
		code = errs.CodeUnterminatedString
	}
	return errs.NewSyntaxError(code, perr.Error())
}

func (e *Executor) executeCreate(s *parser.CreateTableStatement) (types.Result, error) {
	if _, err := e.catalog.CreateTable(s.Table, s.Columns); err != nil {
		return types.Result{}, err
	}
	return types.OK(fmt.Sprintf("Table '%s' created successfully", s.Table)), nil
}

func (e *Executor) executeInsert(s *parser.InsertStatement) (types.Result, error) {
	if len(s.Columns) != len(s.Values) {
		return types.Result{}, errs.NewSyntaxError(errs.CodeValueCountMismatch,
			"Column count doesn't match value count")
	}

	tbl, err := e.catalog.Table(s.Table)
	if err != nil {
		return types.Result{}, err
	}

	values := make(map[string]types.Value, len(s.Columns))
	for i, col := range s.Columns {
		if _, dup := values[col]; dup {
			return types.Result{}, errs.NewSchemaError(errs.CodeDuplicateColumn,
				fmt.Sprintf("Column '%s' specified more than once", col))
		}
		values[col] = s.Values[i]
	}

	id, err := tbl.Insert(values)
	if err != nil {
		return types.Result{}, err
	}
	return types.OK(fmt.Sprintf("Row inserted successfully with ID %d", id)).
		WithInsertedID(id), nil
}

func (e *Executor) executeUpdate(s *parser.UpdateStatement) (types.Result, error) {
	tbl, err := e.catalog.Table(s.Table)
	if err != nil {
		return types.Result{}, err
	}
	preds, err := conditionsToPredicates(s.Table, s.Where)
	if err != nil {
		return types.Result{}, err
	}

	assignments := make(map[string]types.Value, len(s.Assignments))
	for _, a := range s.Assignments {
		assignments[a.Column] = a.Value
	}

	n, err := tbl.Update(preds, assignments)
	if err != nil {
		return types.Result{}, err
	}
	return types.OK(fmt.Sprintf("Updated %d row(s)", n)).WithAffected(n), nil
}

func (e *Executor) executeDelete(s *parser.DeleteStatement) (types.Result, error) {
	tbl, err := e.catalog.Table(s.Table)
	if err != nil {
		return types.Result{}, err
	}
	preds, err := conditionsToPredicates(s.Table, s.Where)
	if err != nil {
		return types.Result{}, err
	}

	n, err := tbl.Delete(preds)
	if err != nil {
		return types.Result{}, err
	}
	return types.OK(fmt.Sprintf("Deleted %d row(s)", n)).WithAffected(n), nil
}

func (e *Executor) executeDrop(s *parser.DropTableStatement) (types.Result, error) {
	if err := e.catalog.DropTable(s.Table); err != nil {
		return types.Result{}, err
	}
	return types.OK(fmt.Sprintf("Table '%s' dropped successfully", s.Table)), nil
}

// ListTables reports the catalog's table names, one row per table.
func (e *Executor) ListTables() types.Result {
	names := e.catalog.ListTables()
	rows := make([]types.Row, len(names))
	for i, name := range names {
		rows[i] = types.Row{"table": types.NewText(name)}
	}
	return types.OK(fmt.Sprintf("Found %d table(s)", len(names))).
		WithRows([]string{"table"}, rows)
}

// DescribeTable reports a table's column definitions, one row per column.
func (e *Executor) DescribeTable(name string) types.Result {
	tbl, err := e.catalog.Table(name)
	if err != nil {
		return types.Failure(errs.UserMessage(err))
	}

	columns := []string{"column", "type", "size", "primary_key", "unique", "nullable"}
	cols := tbl.Columns()
	rows := make([]types.Row, len(cols))
	for i, col := range cols {
		size := types.Null()
		if col.Size > 0 {
			size = types.NewInteger(int64(col.Size))
		}
		rows[i] = types.Row{
			"column":      types.NewText(col.Name),
			"type":        types.NewText(string(col.Type)),
			"size":        size,
			"primary_key": types.NewBoolean(col.PrimaryKey),
			"unique":      types.NewBoolean(col.Unique),
			"nullable":    types.NewBoolean(col.Nullable),
		}
	}
	return types.OK(fmt.Sprintf("Schema for table '%s'", name)).
		WithRows(columns, rows)
}

// conditionsToPredicates converts WHERE conditions to storage predicates,
// rejecting qualifiers that name a table outside the statement.
func conditionsToPredicates(table string, conds []parser.Condition) ([]types.Predicate, error) {
	preds := make([]types.Predicate, 0, len(conds))
	for _, c := range conds {
		if c.Table != "" && c.Table != table {
			return nil, errs.NewNotFoundError(errs.CodeTableNotFound,
				fmt.Sprintf("Table '%s' is not part of this query", c.Table))
		}
		preds = append(preds, types.Predicate{Column: c.Column, Op: c.Op, Value: c.Value})
	}
	return preds, nil
}
