package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jbdura/settlement-project/internal/audit"
)

// historyDefaultLimit is how many entries /api/history returns when the
// request names no limit.
const historyDefaultLimit = 20

// HistoryEntry is one audited statement as the API reports it.
type HistoryEntry struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"`
	SQL           string    `json:"sql"`
	Success       bool      `json:"success"`
	ErrorCategory string    `json:"error_category,omitempty"`
	RowsAffected  int       `json:"rows_affected"`
	DurationUS    int64     `json:"duration_us"`
}

// HistoryResponse lists recent audited statements, newest first.
type HistoryResponse struct {
	Success bool           `json:"success"`
	Entries []HistoryEntry `json:"entries"`
	Count   int            `json:"count"`
}

// HistoryHandler handles GET /api/history requests. The query accepts
// limit=<n> and failed=true to narrow the listing to failed statements.
type HistoryHandler struct {
	log *audit.Log
}

// NewHistoryHandler creates a statement history handler. A nil log means
// auditing is disabled; requests then fail with 503.
func NewHistoryHandler(l *audit.Log) *HistoryHandler {
	return &HistoryHandler{log: l}
}

func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}
	if h.log == nil {
		writeError(w, http.StatusServiceUnavailable, "the audit log is disabled", requestID)
		return
	}

	limit := historyDefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", requestID)
			return
		}
		limit = n
	}

	var entries []audit.Entry
	var err error
	if r.URL.Query().Get("failed") == "true" {
		entries, err = h.log.Failures(r.Context(), limit)
	} else {
		entries, err = h.log.Recent(r.Context(), limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to read history: %v", err), requestID)
		return
	}

	out := make([]HistoryEntry, len(entries))
	for i, e := range entries {
		out[i] = HistoryEntry{
			ID:            e.ID,
			Timestamp:     e.Timestamp,
			Source:        e.Source,
			SQL:           e.SQL,
			Success:       e.Success,
			ErrorCategory: e.ErrorCategory,
			RowsAffected:  e.RowsAffected,
			DurationUS:    e.DurationUS,
		}
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		Success: true,
		Entries: out,
		Count:   len(out),
	})
}
