package http

import (
	"fmt"
	"net/http"

	"github.com/jbdura/settlement-project/internal/backup"
	"github.com/jbdura/settlement-project/internal/observability"
)

// BackupResponse reports one created snapshot.
type BackupResponse struct {
	Success  bool        `json:"success"`
	Message  string      `json:"message"`
	Snapshot backup.Meta `json:"snapshot"`
}

// BackupHandler handles POST /api/backup requests.
type BackupHandler struct {
	manager *backup.Manager
}

// NewBackupHandler creates a new snapshot trigger handler.
func NewBackupHandler(m *backup.Manager) *BackupHandler {
	return &BackupHandler{manager: m}
}

// ServeHTTP creates a snapshot synchronously. The write amounts to
// recompressing the data directory, small enough to finish within the
// request.
func (h *BackupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	meta, err := h.manager.Create(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to create snapshot: %v", err), requestID)
		return
	}

	writeJSON(w, http.StatusCreated, BackupResponse{
		Success:  true,
		Message:  fmt.Sprintf("Snapshot '%s' created", meta.SnapshotID),
		Snapshot: meta,
	})
}

// BackupListResponse lists recorded snapshots, most recent first.
type BackupListResponse struct {
	Success   bool          `json:"success"`
	Snapshots []backup.Meta `json:"snapshots"`
	Count     int           `json:"count"`
}

// BackupListHandler handles GET /api/backups requests.
type BackupListHandler struct {
	manager *backup.Manager
}

// NewBackupListHandler creates a new snapshot listing handler.
func NewBackupListHandler(m *backup.Manager) *BackupListHandler {
	return &BackupListHandler{manager: m}
}

func (h *BackupListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	metas, err := h.manager.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to list snapshots: %v", err), requestID)
		return
	}
	if metas == nil {
		metas = []backup.Meta{}
	}

	writeJSON(w, http.StatusOK, BackupListResponse{
		Success:   true,
		Snapshots: metas,
		Count:     len(metas),
	})
}

// StatsResponse carries the engine's execution counters.
type StatsResponse struct {
	Success       bool                        `json:"success"`
	Stats         observability.Stats         `json:"stats"`
	TopPredicates []observability.ColumnStats `json:"top_predicates"`
}

// StatsHandler handles GET /api/stats requests.
type StatsHandler struct {
	stats *observability.Collector
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(c *observability.Collector) *StatsHandler {
	return &StatsHandler{stats: c}
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", GetRequestID(r.Context()))
		return
	}

	top := h.stats.TopPredicates(5)
	if top == nil {
		top = []observability.ColumnStats{}
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		Success:       true,
		Stats:         h.stats.Snapshot(),
		TopPredicates: top,
	})
}
