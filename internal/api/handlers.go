package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cmms-backend/services/adaptation-service/internal/engine"
	"cmms-backend/services/adaptation-service/internal/review"
	"cmms-backend/services/adaptation-service/internal/storage"
	"cmms-backend/services/adaptation-service/internal/strategy"
)

// Store is the read/write surface the HTTP layer needs. Satisfied by
// *storage.Repository and *storage.Memory.
type Store interface {
	ListParameters(ctx context.Context) ([]storage.ParameterRecord, error)
	GetParameter(ctx context.Context, id string) (storage.ParameterRecord, error)
	ListRules(ctx context.Context) ([]storage.TriggerRuleRecord, error)
	ListTriggerEvents(ctx context.Context, filter storage.TriggerEventFilter) ([]storage.TriggerEventRecord, error)
	GetTriggerEvent(ctx context.Context, id string) (storage.TriggerEventRecord, error)
	AcknowledgeEvent(ctx context.Context, id, by string, at time.Time) (storage.TriggerEventRecord, error)
	ResolveEvent(ctx context.Context, id string, at time.Time) (storage.TriggerEventRecord, error)
	ListReviews(ctx context.Context, filter storage.ReviewFilter) ([]storage.ReviewRecord, error)
	GetReview(ctx context.Context, id string) (storage.ReviewRecord, error)
	ListAssessments(ctx context.Context, reviewID string) ([]storage.AssessmentRecord, error)
	ListFailureModes(ctx context.Context, systemID string) ([]storage.FailureModeRecord, error)
	ListSystemRPNs(ctx context.Context, systemID string) ([]int, error)
	ListRecommendations(ctx context.Context, filter storage.RecommendationFilter) ([]storage.RecommendationRecord, error)
	GetRecommendation(ctx context.Context, id string) (storage.RecommendationRecord, error)
}

type Publisher interface {
	Publish(subject string, payload any) error
}

type Handler struct {
	Store      Store
	Engine     *engine.Registry
	Reviews    *review.Orchestrator
	Dispatcher *strategy.Dispatcher
	Bus        Publisher
	Timeout    time.Duration
}

type errorResponse struct {
	Ok      bool                 `json:"ok"`
	Code    string               `json:"code"`
	Message string               `json:"message"`
	Details []engine.ErrorDetail `json:"details,omitempty"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/process/monitor", h.handleMonitor)
	r.Get("/parameters", h.handleParametersList)
	r.Get("/parameters/{id}", h.handleParameterGet)
	r.Get("/rules", h.handleRulesList)
	r.Route("/triggers", func(r chi.Router) {
		r.Get("/", h.handleTriggersList)
		r.Get("/{id}", h.handleTriggerGet)
		r.Post("/{id}/acknowledge", h.handleTriggerAcknowledge)
		r.Post("/{id}/resolve", h.handleTriggerResolve)
	})
	r.Route("/reviews", func(r chi.Router) {
		r.Post("/", h.handleReviewCreate)
		r.Get("/", h.handleReviewsList)
		r.Get("/{id}", h.handleReviewGet)
		r.Post("/{id}/assessments", h.handleAssessmentAdd)
		r.Post("/{id}/submit", h.handleReviewSubmit)
		r.Post("/{id}/approve", h.handleReviewApprove)
		r.Post("/{id}/reject", h.handleReviewReject)
		r.Post("/{id}/reopen", h.handleReviewReopen)
	})
	r.Get("/systems/{id}/rpn", h.handleSystemRPN)
	r.Get("/failure-modes", h.handleFailureModesList)
	r.Route("/recommendations", func(r chi.Router) {
		r.Get("/", h.handleRecommendationsList)
		r.Get("/{id}", h.handleRecommendationGet)
		r.Post("/{id}/apply", h.handleRecommendationApply)
	})
}

func (h *Handler) context(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := h.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(r.Context(), timeout)
}

func (h *Handler) handleParametersList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	params, err := h.Store.ListParameters(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, params)
}

func (h *Handler) handleParameterGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	param, err := h.Store.GetParameter(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, param)
}

func (h *Handler) handleRulesList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	rules, err := h.Store.ListRules(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func writeError(w http.ResponseWriter, err error) {
	var validation *review.ValidationError
	var ruleErr *engine.RuleError
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: validation.Code, Message: validation.Message})
	case errors.As(err, &ruleErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: ruleErr.Code, Message: ruleErr.Message, Details: ruleErr.Details})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "resource not found"})
	case errors.Is(err, storage.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, strategy.ErrNotApproved):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "NOT_APPROVED", Message: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "INTERNAL", Message: "internal error"})
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
