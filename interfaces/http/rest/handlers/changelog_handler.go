package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	appchangelog "mindscape/application/changelog"
	"mindscape/domain/changelog"
	"mindscape/pkg/auth"
	"mindscape/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ChangelogHandler handles changelog-related HTTP requests
type ChangelogHandler struct {
	service *appchangelog.Service
	logger  *zap.Logger
}

// NewChangelogHandler creates a new changelog handler
func NewChangelogHandler(service *appchangelog.Service, logger *zap.Logger) *ChangelogHandler {
	return &ChangelogHandler{service: service, logger: logger}
}

// SubmitChangeRequest represents the request body for proposing a change
type SubmitChangeRequest struct {
	Operation    string         `json:"operation" validate:"required,oneof=create_node update_node delete_node create_edge delete_edge update_overlay"`
	TargetID     string         `json:"target_id" validate:"required"`
	BeforeState  map[string]any `json:"before_state,omitempty"`
	AfterState   map[string]any `json:"after_state,omitempty"`
	Actor        string         `json:"actor" validate:"required,oneof=user llm system playbook"`
	ActorContext string         `json:"actor_context,omitempty" validate:"omitempty,max=2000"`
}

// SubmitChange handles POST /changelog/pending/{workspace_id}
func (h *ChangelogHandler) SubmitChange(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")

	var req SubmitChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	change, err := h.service.Submit(r.Context(), workspaceID,
		changelog.Operation(req.Operation), req.TargetID,
		req.BeforeState, req.AfterState,
		changelog.Actor(req.Actor), req.ActorContext)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, change)
}

// ListPending handles GET /changelog/pending/{workspace_id}
func (h *ChangelogHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	actorFilter := changelog.Actor(r.URL.Query().Get("actor_filter"))

	changes, err := h.service.ListPending(r.Context(), workspaceID, actorFilter)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]any{
		"total_pending": len(changes),
		"changes":       changes,
	})
}

// ProcessRequest represents the request body for a batch approve/reject
type ProcessRequest struct {
	ChangeIDs []string `json:"change_ids" validate:"required,min=1,max=100,dive,required"`
	Action    string   `json:"action" validate:"required,oneof=approve reject"`
}

// Process handles POST /changelog/pending/{workspace_id}/approve
func (h *ChangelogHandler) Process(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")

	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	processedBy := auth.UserIDOr(r.Context(), "anonymous")
	result, err := h.service.Process(r.Context(), workspaceID, req.ChangeIDs,
		appchangelog.Action(req.Action), processedBy)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, result)
}

// UndoRequest represents the request body for undoing an applied change
type UndoRequest struct {
	ChangeID string `json:"change_id" validate:"required"`
}

// Undo handles POST /changelog/undo
func (h *ChangelogHandler) Undo(w http.ResponseWriter, r *http.Request) {
	var req UndoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	undoneBy := auth.UserIDOr(r.Context(), "anonymous")
	version, err := h.service.Undo(r.Context(), req.ChangeID, undoneBy)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]any{
		"success": true,
		"message": "change undone",
		"version": version,
	})
}

// History handles GET /changelog/history/{workspace_id}
func (h *ChangelogHandler) History(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(w, h.logger, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	includePending := r.URL.Query().Get("include_pending") == "true"

	result, err := h.service.History(r.Context(), workspaceID, limit, includePending)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, result)
}

// Version handles GET /changelog/version/{workspace_id}
func (h *ChangelogHandler) Version(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")

	version, err := h.service.CurrentVersion(r.Context(), workspaceID)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]any{
		"current_version": version,
	})
}
