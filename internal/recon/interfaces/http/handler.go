package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	facts "settlement-recon/internal/facts/domain"
	"settlement-recon/internal/observability/metrics"
	"settlement-recon/internal/recon/application"
	recon "settlement-recon/internal/recon/domain"
	"settlement-recon/internal/recon/interfaces"
)

// Handler exposes the reconciliation engine over HTTP.
type Handler struct {
	controller *application.Controller
	detector   *application.Detector
	statements *interfaces.StatementBuilder
	logger     *zap.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(controller *application.Controller, detector *application.Detector, statements *interfaces.StatementBuilder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{controller: controller, detector: detector, statements: statements, logger: logger}
}

// Register mounts the reconciliation routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/reconcile/{date}", h.reconcileDate)
	r.Post("/v1/reconcile-range", h.reconcileRange)
	r.Get("/v1/classify/{date}", h.classify)
	r.Get("/v1/reports/{month}.xlsx", h.reportXLSX)
	r.Get("/v1/reports/{month}.pdf", h.reportPDF)
}

type reconcileRangeRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type periodClassificationDTO struct {
	Period         int    `json:"period"`
	Status         string `json:"status"`
	RemoteCount    int    `json:"remoteCount"`
	RemoteQuantity string `json:"remoteQuantity"`
	RemotePayment  string `json:"remotePayment"`
	LocalCount     int    `json:"localCount"`
	LocalQuantity  string `json:"localQuantity"`
	LocalPayment   string `json:"localPayment"`
	Error          string `json:"error,omitempty"`
}

type dateReportDTO struct {
	Date            string                    `json:"date"`
	Status          string                    `json:"status"`
	Skipped         bool                      `json:"skipped,omitempty"`
	PeriodsRepaired []int                     `json:"periodsRepaired,omitempty"`
	PeriodsFailed   []int                     `json:"periodsFailed,omitempty"`
	StillDiverged   []int                     `json:"stillDiverged,omitempty"`
	DerivedFailures map[string]string         `json:"derivedFailures,omitempty"`
	Classification  []periodClassificationDTO `json:"classification,omitempty"`
	Error           string                    `json:"error,omitempty"`
}

type batchReportDTO struct {
	From           string          `json:"from"`
	To             string          `json:"to"`
	DatesProcessed int             `json:"datesProcessed"`
	DatesRepaired  int             `json:"datesRepaired"`
	DatesFailed    int             `json:"datesFailed"`
	Reports        []dateReportDTO `json:"reports"`
}

func (h *Handler) reconcileDate(w http.ResponseWriter, r *http.Request) {
	date, err := facts.ParseSettlementDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	report, err := h.controller.ReconcileDate(r.Context(), date)
	if err != nil {
		h.logger.Error("reconcile date failed", zap.String("date", date.Key()), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, dateReportToDTO(report))
}

func (h *Handler) reconcileRange(w http.ResponseWriter, r *http.Request) {
	var request reconcileRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	from, err := facts.ParseSettlementDate(request.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
		return
	}
	to, err := facts.ParseSettlementDate(request.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
		return
	}
	if from.After(to) {
		writeError(w, http.StatusBadRequest, "from must not be after to")
		return
	}
	batch, err := h.controller.ReconcileRange(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dto := batchReportDTO{
		From:           batch.From.Key(),
		To:             batch.To.Key(),
		DatesProcessed: batch.DatesProcessed,
		DatesRepaired:  batch.DatesRepaired,
		DatesFailed:    batch.DatesFailed,
	}
	for _, report := range batch.Reports {
		dto.Reports = append(dto.Reports, dateReportToDTO(report))
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) classify(w http.ResponseWriter, r *http.Request) {
	date, err := facts.ParseSettlementDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	classification, err := h.detector.Classify(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, classificationToDTO(classification))
}

func (h *Handler) reportXLSX(w http.ResponseWriter, r *http.Request) {
	statement, ok := h.buildStatement(w, r)
	if !ok {
		return
	}
	payload, err := interfaces.BuildStatementXLSX(statement)
	if err != nil {
		metrics.IncReportExport("xlsx", metrics.ResultError)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.IncReportExport("xlsx", metrics.ResultSuccess)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="statement-`+statement.MonthKey+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *Handler) reportPDF(w http.ResponseWriter, r *http.Request) {
	statement, ok := h.buildStatement(w, r)
	if !ok {
		return
	}
	payload, err := interfaces.BuildStatementPDF(statement)
	if err != nil {
		metrics.IncReportExport("pdf", metrics.ResultError)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.IncReportExport("pdf", metrics.ResultSuccess)
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="statement-`+statement.MonthKey+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *Handler) buildStatement(w http.ResponseWriter, r *http.Request) (*interfaces.MonthlyStatement, bool) {
	monthKey := chi.URLParam(r, "month")
	if len(monthKey) != len("2006-01") {
		writeError(w, http.StatusBadRequest, "invalid month, expected YYYY-MM")
		return nil, false
	}
	statement, err := h.statements.Build(r.Context(), monthKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return statement, true
}

func dateReportToDTO(report recon.DateReport) dateReportDTO {
	dto := dateReportDTO{
		Date:            report.Date.Key(),
		Status:          string(report.Status),
		Skipped:         report.Skipped,
		PeriodsRepaired: periodsToInts(report.PeriodsRepaired),
		PeriodsFailed:   periodsToInts(report.PeriodsFailed),
		StillDiverged:   periodsToInts(report.StillDiverged),
		Classification:  classificationToDTO(report.Classification),
		Error:           report.Err,
	}
	if len(report.DerivedFailures) > 0 {
		dto.DerivedFailures = make(map[string]string, len(report.DerivedFailures))
		for parameter, message := range report.DerivedFailures {
			dto.DerivedFailures[string(parameter)] = message
		}
	}
	return dto
}

func classificationToDTO(classification recon.Classification) []periodClassificationDTO {
	if len(classification) == 0 {
		return nil
	}
	dtos := make([]periodClassificationDTO, 0, len(classification))
	for number := 1; number <= facts.PeriodsPerDay; number++ {
		period := facts.Period(number)
		entry, ok := classification[period]
		if !ok {
			continue
		}
		dto := periodClassificationDTO{
			Period:         number,
			Status:         string(entry.Status),
			RemoteCount:    entry.Remote.Count,
			RemoteQuantity: entry.Remote.TotalQuantity.String(),
			RemotePayment:  entry.Remote.TotalPayment.String(),
			LocalCount:     entry.Local.Count,
			LocalQuantity:  entry.Local.TotalQuantity.String(),
			LocalPayment:   entry.Local.TotalPayment.String(),
		}
		if entry.Err != nil {
			dto.Error = entry.Err.Error()
		}
		dtos = append(dtos, dto)
	}
	return dtos
}

func periodsToInts(periods []facts.Period) []int {
	if len(periods) == 0 {
		return nil
	}
	out := make([]int, len(periods))
	for i, period := range periods {
		out[i] = int(period)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
