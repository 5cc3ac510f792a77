package handlers

import (
	"net/http"

	"github.com/Dosada05/esports-betting/services"
)

type ReportHandler struct {
	reportService services.ReportService
}

func NewReportHandler(reportService services.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// Export собирает отчёт по игре и выгружает его в объектное хранилище.
func (h *ReportHandler) Export(w http.ResponseWriter, r *http.Request) {
	tournamentID, gameID, problems := readPairParams(r)
	if problems != nil {
		failedValidationResponse(w, r, problems)
		return
	}
	ref, err := h.reportService.ExportReport(r.Context(), tournamentID, gameID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, ref)
}
