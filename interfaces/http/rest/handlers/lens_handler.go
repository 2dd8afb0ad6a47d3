package handlers

import (
	"encoding/json"
	"net/http"

	applens "mindscape/application/lens"
	"mindscape/domain/lens"
	"mindscape/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// LensHandler handles lens resolution HTTP requests
type LensHandler struct {
	service *applens.Service
	logger  *zap.Logger
}

// NewLensHandler creates a new lens handler
func NewLensHandler(service *applens.Service, logger *zap.Logger) *LensHandler {
	return &LensHandler{service: service, logger: logger}
}

// GetEffectiveLens handles GET /lens/effective-lens
func (h *LensHandler) GetEffectiveLens(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resolved, err := h.service.ComputeEffectiveLens(r.Context(),
		query.Get("profile_id"), query.Get("workspace_id"), query.Get("session_id"))
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, resolved)
}

// SetOverrideRequest represents the request body for setting an override
type SetOverrideRequest struct {
	State  string   `json:"state" validate:"required,oneof=off keep emphasize"`
	Weight *float64 `json:"weight,omitempty" validate:"omitempty,gte=0"`
}

// SetWorkspaceOverride handles PUT /lens/workspaces/{workspace_id}/lens-overrides/{node_id}
func (h *LensHandler) SetWorkspaceOverride(w http.ResponseWriter, r *http.Request) {
	h.setOverride(w, r, lens.ScopeWorkspace, chi.URLParam(r, "workspaceID"))
}

// RemoveWorkspaceOverride handles DELETE /lens/workspaces/{workspace_id}/lens-overrides/{node_id}
func (h *LensHandler) RemoveWorkspaceOverride(w http.ResponseWriter, r *http.Request) {
	h.removeOverride(w, r, lens.ScopeWorkspace, chi.URLParam(r, "workspaceID"))
}

// SetSessionOverride handles PUT /lens/session/{session_id}/overrides/{node_id}
func (h *LensHandler) SetSessionOverride(w http.ResponseWriter, r *http.Request) {
	h.setOverride(w, r, lens.ScopeSession, chi.URLParam(r, "sessionID"))
}

// RemoveSessionOverride handles DELETE /lens/session/{session_id}/overrides/{node_id}
func (h *LensHandler) RemoveSessionOverride(w http.ResponseWriter, r *http.Request) {
	h.removeOverride(w, r, lens.ScopeSession, chi.URLParam(r, "sessionID"))
}

// ReplaceSessionOverrides handles PUT /lens/session/{session_id}/overrides.
// The body is the full node->setting map; it replaces the session's overrides
// wholesale.
func (h *LensHandler) ReplaceSessionOverrides(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req map[string]SetOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	overrides := make(map[string]lens.Setting, len(req))
	for nodeID, item := range req {
		if err := utils.ValidateStruct(item); err != nil {
			respondError(w, h.logger, http.StatusBadRequest, "Validation error for node "+nodeID+": "+err.Error())
			return
		}
		setting := lens.Setting{State: lens.State(item.State), Weight: lens.DefaultWeight(lens.State(item.State))}
		if item.Weight != nil {
			setting.Weight = *item.Weight
		}
		overrides[nodeID] = setting
	}

	if err := h.service.ReplaceSessionOverrides(r.Context(), sessionID, overrides); err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(overrides),
	})
}

// ClearSessionOverrides handles DELETE /lens/session/{session_id}/overrides
func (h *LensHandler) ClearSessionOverrides(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.service.ClearSessionOverrides(r.Context(), sessionID); err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]any{"success": true})
}

func (h *LensHandler) setOverride(w http.ResponseWriter, r *http.Request, scope lens.Scope, scopeID string) {
	nodeID := chi.URLParam(r, "nodeID")

	var req SetOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	setting, err := h.service.SetOverride(r.Context(), scope, scopeID, nodeID, lens.State(req.State), req.Weight)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]any{
		"node_id": nodeID,
		"scope":   scope,
		"state":   setting.State,
		"weight":  setting.Weight,
	})
}

func (h *LensHandler) removeOverride(w http.ResponseWriter, r *http.Request, scope lens.Scope, scopeID string) {
	nodeID := chi.URLParam(r, "nodeID")
	if err := h.service.RemoveOverride(r.Context(), scope, scopeID, nodeID); err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]any{"success": true})
}

// CreateChangeSetRequest represents the request body for bundling a changeset
type CreateChangeSetRequest struct {
	ProfileID   string `json:"profile_id" validate:"required"`
	SessionID   string `json:"session_id" validate:"required"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// CreateChangeSet handles POST /lens/changesets
func (h *LensHandler) CreateChangeSet(w http.ResponseWriter, r *http.Request) {
	var req CreateChangeSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	changeSet, err := h.service.CreateChangeSet(r.Context(), req.ProfileID, req.WorkspaceID, req.SessionID)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, changeSet)
}

// ApplyChangeSetRequest represents the request body for consuming a changeset.
// TargetWorkspaceID directs a workspace promotion; it defaults to the
// changeset's own workspace.
type ApplyChangeSetRequest struct {
	ChangeSetID       string `json:"changeset_id" validate:"required"`
	ApplyTo           string `json:"apply_to" validate:"required,oneof=session_only workspace preset"`
	TargetWorkspaceID string `json:"target_workspace_id,omitempty"`
	PresetName        string `json:"preset_name,omitempty" validate:"omitempty,max=200"`
}

// ApplyChangeSet handles POST /lens/changesets/apply
func (h *LensHandler) ApplyChangeSet(w http.ResponseWriter, r *http.Request) {
	var req ApplyChangeSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	changeSet, err := h.service.ApplyChangeSet(r.Context(), req.ChangeSetID, lens.ApplyTarget(req.ApplyTo), req.TargetWorkspaceID, req.PresetName)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]any{
		"success":   true,
		"changeset": changeSet,
	})
}

// SnapshotPresetRequest represents the request body for materializing a preset
type SnapshotPresetRequest struct {
	ProfileID   string `json:"profile_id" validate:"required"`
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Description string `json:"description,omitempty" validate:"omitempty,max=2000"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

// SnapshotPreset handles POST /lens/profiles/snapshot
func (h *LensHandler) SnapshotPreset(w http.ResponseWriter, r *http.Request) {
	var req SnapshotPresetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	preset, err := h.service.SnapshotPreset(r.Context(), req.ProfileID, req.WorkspaceID, req.SessionID, req.Name, req.Description)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, preset)
}

// ActivatePresetRequest represents the request body for switching the active preset
type ActivatePresetRequest struct {
	PresetID string `json:"preset_id" validate:"required"`
}

// ActivatePreset handles PUT /lens/profiles/{profile_id}/active-preset
func (h *LensHandler) ActivatePreset(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")

	var req ActivatePresetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	if err := h.service.ActivatePreset(r.Context(), profileID, req.PresetID); err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]any{"success": true})
}

// GetPreset handles GET /lens/presets/{preset_id}
func (h *LensHandler) GetPreset(w http.ResponseWriter, r *http.Request) {
	preset, err := h.service.GetPreset(r.Context(), chi.URLParam(r, "presetID"))
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, preset)
}
