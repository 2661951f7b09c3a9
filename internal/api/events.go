package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cmms-backend/services/adaptation-service/internal/storage"
)

func (h *Handler) handleTriggersList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	filter := storage.TriggerEventFilter{
		State:    r.URL.Query().Get("state"),
		Severity: r.URL.Query().Get("severity"),
		SystemID: r.URL.Query().Get("system"),
	}
	events, err := h.Store.ListTriggerEvents(ctx, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) handleTriggerGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	evt, err := h.Store.GetTriggerEvent(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evt)
}

func (h *Handler) handleTriggerAcknowledge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		By string `json:"by"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}
	if req.By == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "ACK_IDENTITY_REQUIRED", Message: "acknowledging identity is required"})
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	evt, err := h.Store.AcknowledgeEvent(ctx, chi.URLParam(r, "id"), req.By, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evt)
}

// handleTriggerResolve closes an event by operator action. The
// evaluator is told so its latched state clears and a fresh breach can
// open a new event without waiting for recovery.
func (h *Handler) handleTriggerResolve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	evt, err := h.Store.ResolveEvent(ctx, chi.URLParam(r, "id"), time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	if h.Engine != nil {
		h.Engine.MarkResolved(evt.ParameterID, evt.RuleID)
	}
	if h.Bus != nil {
		_ = h.Bus.Publish("trigger.resolved", map[string]any{"event_id": evt.ID, "rule_id": evt.RuleID, "parameter_id": evt.ParameterID})
	}
	writeJSON(w, http.StatusOK, evt)
}
