package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/jbdura/settlement-project/internal/query/parser"
	"github.com/jbdura/settlement-project/pkg/types"
)

// JoinRequest names the two tables and key columns to join. Conditions are
// optional equality filters keyed by column name, with an optional table
// qualifier ("transactions.status").
type JoinRequest struct {
	LeftTable  string         `json:"left_table"`
	RightTable string         `json:"right_table"`
	LeftKey    string         `json:"left_key"`
	RightKey   string         `json:"right_key"`
	Columns    []string       `json:"columns"`
	Conditions map[string]any `json:"conditions"`
}

// JoinHandler handles POST /api/join requests.
type JoinHandler struct {
	engine Engine
}

// NewJoinHandler creates a new join handler.
func NewJoinHandler(engine Engine) *JoinHandler {
	return &JoinHandler{engine: engine}
}

func (h *JoinHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	// UseNumber keeps integer condition values intact instead of forcing
	// every JSON number through float64.
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var req JoinRequest
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"left_table", req.LeftTable},
		{"right_table", req.RightTable},
		{"left_key", req.LeftKey},
		{"right_key", req.RightKey},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Missing required fields: %s", strings.Join(missing, ", ")), requestID)
		return
	}

	conditions, err := decodeConditions(req.Conditions)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	result := h.engine.Join(req.LeftTable, req.RightTable, req.LeftKey, req.RightKey,
		req.Columns, conditions)
	writeJSON(w, http.StatusOK, result)
}

// decodeConditions turns the request's condition map into parser conditions,
// splitting "table.column" keys into their qualifier. Keys are sorted so the
// produced filter order is stable.
func decodeConditions(raw map[string]any) ([]parser.Condition, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conditions := make([]parser.Condition, 0, len(keys))
	for _, key := range keys {
		value, err := jsonValue(raw[key])
		if err != nil {
			return nil, fmt.Errorf("invalid condition value for '%s': %v", key, err)
		}
		cond := parser.Condition{Column: key, Op: types.OpEq, Value: value}
		if table, column, ok := strings.Cut(key, "."); ok {
			cond.Table = table
			cond.Column = column
		}
		conditions = append(conditions, cond)
	}
	return conditions, nil
}

// jsonValue converts a decoded JSON literal into an engine value. Numbers
// without a fractional part become integers so they compare cleanly against
// integer columns.
func jsonValue(v any) (types.Value, error) {
	switch x := v.(type) {
	case nil:
		return types.Null(), nil
	case bool:
		return types.NewBoolean(x), nil
	case string:
		return types.NewText(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return types.NewInteger(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return types.Value{}, fmt.Errorf("invalid number %q", x.String())
		}
		return types.NewDecimal(f), nil
	default:
		return types.Value{}, fmt.Errorf("unsupported value type %T", v)
	}
}
