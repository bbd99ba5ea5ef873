package http

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// querySource tags statements arriving over HTTP in the audit log.
const querySource = "http"

// QueryRequest represents a query request.
type QueryRequest struct {
	SQL string `json:"sql"`
}

// QueryHandler handles POST /api/query requests.
type QueryHandler struct {
	engine Engine
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(engine Engine) *QueryHandler {
	return &QueryHandler{engine: engine}
}

// ServeHTTP executes one SQL statement and returns its result envelope.
// Statement failures keep HTTP 200; the envelope's success flag carries the
// outcome.
func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}

	if req.SQL == "" {
		writeError(w, http.StatusBadRequest, "Missing SQL query in request body", requestID)
		return
	}

	result := h.engine.ExecuteFrom(r.Context(), querySource, req.SQL)
	writeJSON(w, http.StatusOK, result)
}
