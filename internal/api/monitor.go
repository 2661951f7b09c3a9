package api

import (
	"net/http"

	"cmms-backend/services/adaptation-service/internal/engine"
)

// The plant DCS pushes batches under a "data" key; "readings" is also
// accepted for callers that name the field after its contents.
type monitorRequest struct {
	Data     []engine.Reading `json:"data"`
	Readings []engine.Reading `json:"readings"`
}

func (r monitorRequest) batch() []engine.Reading {
	if len(r.Data) > 0 {
		return r.Data
	}
	return r.Readings
}

type monitorResponse struct {
	Processed        int `json:"processed"`
	Skipped          int `json:"skipped"`
	TriggersDetected int `json:"triggers_detected"`
}

const maxBatchReadings = 10000

// handleMonitor ingests a batch of process readings and evaluates them
// in order. The response counts readings accepted, readings skipped
// for quality or unknown parameters, and rules that fired.
func (h *Handler) handleMonitor(w http.ResponseWriter, r *http.Request) {
	var req monitorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}
	readings := req.batch()
	if len(readings) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "EMPTY_BATCH", Message: "at least one reading is required"})
		return
	}
	if len(readings) > maxBatchReadings {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BATCH_TOO_LARGE", Message: "too many readings in one batch"})
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	resp := monitorResponse{}
	for _, reading := range readings {
		if reading.ParameterID == "" {
			resp.Skipped++
			continue
		}
		fired, ok := h.Engine.Process(ctx, reading)
		if !ok {
			resp.Skipped++
			continue
		}
		resp.Processed++
		resp.TriggersDetected += fired
	}
	writeJSON(w, http.StatusOK, resp)
}
