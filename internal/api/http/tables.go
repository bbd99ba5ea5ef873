package http

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/jbdura/settlement-project/internal/catalog"
	"github.com/jbdura/settlement-project/internal/query/parser"
	"github.com/jbdura/settlement-project/pkg/types"
)

// TableInfo summarizes one table.
type TableInfo struct {
	Name     string `json:"name"`
	RowCount int    `json:"row_count"`
}

// TablesResponse lists every table with its row count.
type TablesResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Tables  []TableInfo `json:"tables"`
	Count   int         `json:"count"`
}

// TablesHandler handles GET /api/tables requests.
type TablesHandler struct {
	catalog *catalog.Catalog
}

// NewTablesHandler creates a new table listing handler.
func NewTablesHandler(c *catalog.Catalog) *TablesHandler {
	return &TablesHandler{catalog: c}
}

func (h *TablesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", GetRequestID(r.Context()))
		return
	}

	names := h.catalog.ListTables()
	tables := make([]TableInfo, 0, len(names))
	for _, name := range names {
		tbl, err := h.catalog.Table(name)
		if err != nil {
			// Dropped between listing and lookup.
			continue
		}
		tables = append(tables, TableInfo{Name: name, RowCount: tbl.RowCount()})
	}

	writeJSON(w, http.StatusOK, TablesResponse{
		Success: true,
		Message: fmt.Sprintf("Found %d table(s)", len(tables)),
		Tables:  tables,
		Count:   len(tables),
	})
}

// SchemaHandler handles GET /api/tables/{name} requests.
type SchemaHandler struct {
	engine Engine
}

// NewSchemaHandler creates a new schema handler.
func NewSchemaHandler(engine Engine) *SchemaHandler {
	return &SchemaHandler{engine: engine}
}

func (h *SchemaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", GetRequestID(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, h.engine.DescribeTable(r.PathValue("name")))
}

// TableRowsHandler handles GET /api/tables/{name}/rows requests. Query
// parameters act as equality filters: /api/tables/transactions/rows?status=success.
type TableRowsHandler struct {
	engine Engine
}

// NewTableRowsHandler creates a new row listing handler.
func NewTableRowsHandler(engine Engine) *TableRowsHandler {
	return &TableRowsHandler{engine: engine}
}

func (h *TableRowsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", GetRequestID(r.Context()))
		return
	}

	query := r.URL.Query()
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conditions := make([]parser.Condition, 0, len(keys))
	for _, k := range keys {
		conditions = append(conditions, parser.Condition{
			Column: k,
			Op:     types.OpEq,
			Value:  literalValue(query.Get(k)),
		})
	}

	writeJSON(w, http.StatusOK, h.engine.Select(r.PathValue("name"), conditions))
}

// literalValue interprets a query parameter the way a SQL literal would be:
// integers and decimals as numbers, true/false as booleans, null as NULL,
// anything else as text.
func literalValue(s string) types.Value {
	switch {
	case strings.EqualFold(s, "null"):
		return types.Null()
	case strings.EqualFold(s, "true"):
		return types.NewBoolean(true)
	case strings.EqualFold(s, "false"):
		return types.NewBoolean(false)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return types.NewInteger(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return types.NewDecimal(f)
	}
	return types.NewText(s)
}
