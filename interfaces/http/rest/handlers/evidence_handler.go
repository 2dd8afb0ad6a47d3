package handlers

import (
	"net/http"
	"strconv"

	"mindscape/application/evidence"

	"go.uber.org/zap"
)

// EvidenceHandler handles lens analytics HTTP requests
type EvidenceHandler struct {
	service *evidence.Service
	logger  *zap.Logger
}

// NewEvidenceHandler creates a new evidence handler
func NewEvidenceHandler(service *evidence.Service, logger *zap.Logger) *EvidenceHandler {
	return &EvidenceHandler{service: service, logger: logger}
}

// PresetDiff handles GET /lens/evidence/preset-diff
func (h *EvidenceHandler) PresetDiff(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		respondError(w, h.logger, http.StatusBadRequest, "from and to preset ids are required")
		return
	}

	diff, err := h.service.DiffPresets(r.Context(), from, to)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, diff)
}

// Drift handles GET /lens/evidence/drift
func (h *EvidenceHandler) Drift(w http.ResponseWriter, r *http.Request) {
	profileID := r.URL.Query().Get("profile_id")
	if profileID == "" {
		respondError(w, h.logger, http.StatusBadRequest, "profile_id is required")
		return
	}

	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(w, h.logger, http.StatusBadRequest, "days must be a non-negative integer")
			return
		}
		days = parsed
	}

	report, err := h.service.DriftReport(r.Context(), profileID, days)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, report)
}
