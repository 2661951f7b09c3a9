package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cmms-backend/services/adaptation-service/internal/fmea"
	"cmms-backend/services/adaptation-service/internal/review"
	"cmms-backend/services/adaptation-service/internal/storage"
)

type reviewCreateRequest struct {
	SystemID string `json:"system_id"`
	Leader   string `json:"leader"`
	Type     string `json:"type"`
}

type assessmentRequest struct {
	FailureModeID string `json:"failure_mode_id"`
	Severity      int    `json:"severity"`
	Occurrence    int    `json:"occurrence"`
	Detection     int    `json:"detection"`
	Justification string `json:"justification"`
}

type reviewDetailResponse struct {
	Review      storage.ReviewRecord       `json:"review"`
	Assessments []storage.AssessmentRecord `json:"assessments"`
}

func (h *Handler) handleReviewCreate(w http.ResponseWriter, r *http.Request) {
	var req reviewCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	var rec storage.ReviewRecord
	var err error
	switch req.Type {
	case review.TypeEventDriven:
		rec, err = h.Reviews.CreateEventDriven(ctx, req.SystemID, req.Leader)
	case "", review.TypeScheduled:
		rec, err = h.Reviews.CreateScheduled(ctx, req.SystemID, req.Leader)
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "INVALID_TYPE", Message: "type must be SCHEDULED or EVENT_DRIVEN"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleReviewsList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	filter := storage.ReviewFilter{
		SystemID: r.URL.Query().Get("system"),
		Status:   r.URL.Query().Get("status"),
	}
	reviews, err := h.Store.ListReviews(ctx, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (h *Handler) handleReviewGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	id := chi.URLParam(r, "id")
	rec, err := h.Store.GetReview(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	assessments, err := h.Store.ListAssessments(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewDetailResponse{Review: rec, Assessments: assessments})
}

func (h *Handler) handleAssessmentAdd(w http.ResponseWriter, r *http.Request) {
	var req assessmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	scores := fmea.Scores{Severity: req.Severity, Occurrence: req.Occurrence, Detection: req.Detection}
	rec, err := h.Reviews.AddAssessment(ctx, chi.URLParam(r, "id"), req.FailureModeID, scores, req.Justification)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleReviewSubmit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	rec, err := h.Reviews.Submit(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleReviewApprove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		By string `json:"by"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	rec, recommendations, err := h.Reviews.Approve(ctx, chi.URLParam(r, "id"), req.By)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"review": rec, "recommendations": recommendations})
}

func (h *Handler) handleReviewReject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		By   string `json:"by"`
		Note string `json:"note"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	rec, err := h.Reviews.Reject(ctx, chi.URLParam(r, "id"), req.By, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleReviewReopen(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	rec, err := h.Reviews.Reopen(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleSystemRPN(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	rpns, err := h.Store.ListSystemRPNs(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fmea.Summarize(rpns))
}

func (h *Handler) handleFailureModesList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	modes, err := h.Store.ListFailureModes(ctx, r.URL.Query().Get("system"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modes)
}
