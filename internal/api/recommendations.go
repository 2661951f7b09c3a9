package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cmms-backend/services/adaptation-service/internal/storage"
)

func (h *Handler) handleRecommendationsList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	filter := storage.RecommendationFilter{
		Status:   r.URL.Query().Get("status"),
		ReviewID: r.URL.Query().Get("review"),
	}
	recs, err := h.Store.ListRecommendations(ctx, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) handleRecommendationGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	rec, err := h.Store.GetRecommendation(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleRecommendationApply pushes one recommendation to the equipment
// strategy store. Applying an APPLIED recommendation returns the record
// unchanged; FAILED recommendations may be retried here.
func (h *Handler) handleRecommendationApply(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()
	rec, err := h.Dispatcher.Apply(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if rec.ID != "" && rec.Status == "FAILED" {
			// The failure is recorded on the recommendation itself.
			writeJSON(w, http.StatusBadGateway, map[string]any{"ok": false, "recommendation": rec})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
