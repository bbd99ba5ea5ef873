package http

import (
	"context"
	"net/http"

	"github.com/jbdura/settlement-project/internal/audit"
	"github.com/jbdura/settlement-project/internal/backup"
	"github.com/jbdura/settlement-project/internal/catalog"
	"github.com/jbdura/settlement-project/internal/observability"
	"github.com/jbdura/settlement-project/internal/query/parser"
	"github.com/jbdura/settlement-project/internal/settlement"
	"github.com/jbdura/settlement-project/pkg/types"
)

// Engine is the statement surface the handlers drive. *executor.Executor
// satisfies it.
type Engine interface {
	ExecuteFrom(ctx context.Context, source, sql string) types.Result
	Select(table string, conditions []parser.Condition) types.Result
	Join(leftTable, rightTable, leftKey, rightKey string, columns []string, conditions []parser.Condition) types.Result
	DescribeTable(name string) types.Result
}

// Deps bundles everything the API serves. Audit may be nil when the audit
// log is disabled.
type Deps struct {
	Engine     Engine
	Catalog    *catalog.Catalog
	Settlement *settlement.Service
	Backups    *backup.Manager
	Stats      *observability.Collector
	Audit      *audit.Log
}

// NewMux registers every API route on a fresh mux. Handlers enforce their
// own methods so misses inside /api return the JSON error envelope rather
// than the mux's plain-text responses.
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/health", NewHealthHandler(d.Catalog))
	mux.Handle("/api/query", NewQueryHandler(d.Engine))
	mux.Handle("/api/join", NewJoinHandler(d.Engine))
	mux.Handle("/api/tables", NewTablesHandler(d.Catalog))
	mux.Handle("/api/tables/{name}", NewSchemaHandler(d.Engine))
	mux.Handle("/api/tables/{name}/rows", NewTableRowsHandler(d.Engine))
	mux.Handle("/api/merchants/report", NewReportHandler(d.Settlement))
	mux.Handle("/api/stats", NewStatsHandler(d.Stats))
	mux.Handle("/api/history", NewHistoryHandler(d.Audit))
	mux.Handle("/api/backup", NewBackupHandler(d.Backups))
	mux.Handle("/api/backups", NewBackupListHandler(d.Backups))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Endpoint not found", GetRequestID(r.Context()))
	})
	return mux
}
