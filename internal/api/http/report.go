package http

import (
	"fmt"
	"net/http"

	"github.com/jbdura/settlement-project/internal/settlement"
)

// ReportResponse carries the per-merchant settlement report.
type ReportResponse struct {
	Success  bool                         `json:"success"`
	Data     []settlement.MerchantSummary `json:"data"`
	RowCount int                          `json:"row_count"`
}

// ReportHandler handles GET /api/merchants/report requests.
type ReportHandler struct {
	service *settlement.Service
}

// NewReportHandler creates a new merchant report handler.
func NewReportHandler(s *settlement.Service) *ReportHandler {
	return &ReportHandler{service: s}
}

func (h *ReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	report, err := h.service.MerchantReport(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to build merchant report: %v", err), requestID)
		return
	}
	if report == nil {
		report = []settlement.MerchantSummary{}
	}

	writeJSON(w, http.StatusOK, ReportResponse{
		Success:  true,
		Data:     report,
		RowCount: len(report),
	})
}
