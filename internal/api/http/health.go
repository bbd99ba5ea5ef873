package http

import (
	"net/http"

	"github.com/jbdura/settlement-project/internal/catalog"
)

// HealthResponse reports liveness and the number of tables in the catalog.
type HealthResponse struct {
	Status string `json:"status"`
	Tables int    `json:"tables"`
}

// HealthHandler handles GET /api/health requests.
type HealthHandler struct {
	catalog *catalog.Catalog
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(c *catalog.Catalog) *HealthHandler {
	return &HealthHandler{catalog: c}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", GetRequestID(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Tables: len(h.catalog.ListTables()),
	})
}
