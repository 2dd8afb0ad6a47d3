package handlers

import (
	"encoding/json"
	"net/http"

	"mindscape/application/graphstore"
	"mindscape/domain/changelog"
	"mindscape/domain/graph"
	"mindscape/pkg/auth"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// GraphHandler handles execution-graph HTTP requests
type GraphHandler struct {
	service *graphstore.Service
	logger  *zap.Logger
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(service *graphstore.Service, logger *zap.Logger) *GraphHandler {
	return &GraphHandler{service: service, logger: logger}
}

// GetGraph handles GET /execution-graph/graph.
// Exactly one of workspace_id and workspace_group_id selects the scope.
func (h *GraphHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace_id")
	groupID := r.URL.Query().Get("workspace_group_id")

	var scopeType graph.ScopeType
	var scopeID string
	switch {
	case workspaceID != "" && groupID != "":
		respondError(w, h.logger, http.StatusBadRequest, "workspace_id and workspace_group_id are mutually exclusive")
		return
	case workspaceID != "":
		scopeType, scopeID = graph.ScopeWorkspace, workspaceID
	case groupID != "":
		scopeType, scopeID = graph.ScopeWorkspaceGroup, groupID
	default:
		respondError(w, h.logger, http.StatusBadRequest, "workspace_id or workspace_group_id is required")
		return
	}

	projection, err := h.service.ComputeGraph(r.Context(), scopeType, scopeID)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, projection)
}

// UpdateOverlayRequest represents the request body for an overlay update.
// Each present top-level section replaces the stored section wholesale.
type UpdateOverlayRequest struct {
	Positions map[string]any `json:"positions,omitempty"`
	Collapsed map[string]any `json:"collapsed,omitempty"`
	Viewport  map[string]any `json:"viewport,omitempty"`
}

// UpdateOverlay handles PUT /execution-graph/overlay/{workspace_id}
func (h *GraphHandler) UpdateOverlay(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")

	var req UpdateOverlayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	state := map[string]any{}
	if req.Positions != nil {
		state["positions"] = req.Positions
	}
	if req.Collapsed != nil {
		state["collapsed"] = req.Collapsed
	}
	if req.Viewport != nil {
		state["viewport"] = req.Viewport
	}

	updatedBy := auth.UserIDOr(r.Context(), "anonymous")
	version, err := h.service.UpdateOverlay(r.Context(), workspaceID, state, changelog.ActorUser, updatedBy)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]any{
		"success": true,
		"version": version,
	})
}

// GetOverlay handles GET /execution-graph/overlay/{workspace_id}
func (h *GraphHandler) GetOverlay(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")

	overlay, err := h.service.GetOverlay(r.Context(), workspaceID)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, overlay)
}
