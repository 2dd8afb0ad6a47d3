package lens

import (
	"time"

	pkgerrors "mindscape/pkg/errors"

	"github.com/google/uuid"
)

// Profile is a lens profile. The active preset pointer is the only mutable
// field; presets themselves are immutable snapshots.
type Profile struct {
	ID             string    `json:"id"`
	ActivePresetID string    `json:"active_preset_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Preset is a named, immutable snapshot of lens node settings usable as a
// baseline for resolution.
type Preset struct {
	ID          string             `json:"id"`
	ProfileID   string             `json:"profile_id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Nodes       map[string]Setting `json:"nodes"`
	WorkspaceID string             `json:"workspace_id,omitempty"`
	SessionID   string             `json:"session_id,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// NewPreset materializes a preset snapshot from a resolved node map.
func NewPreset(profileID, name, description string, nodes map[string]Setting) (*Preset, error) {
	if profileID == "" {
		return nil, pkgerrors.NewValidationError("profile_id cannot be empty")
	}
	if name == "" {
		return nil, pkgerrors.NewValidationError("preset name cannot be empty")
	}
	for nodeID, setting := range nodes {
		if err := setting.Validate(); err != nil {
			return nil, pkgerrors.Wrapf(err, "invalid setting for node %s", nodeID)
		}
	}

	snapshot := make(map[string]Setting, len(nodes))
	for nodeID, setting := range nodes {
		snapshot[nodeID] = setting
	}
	now := time.Now().UTC()
	return &Preset{
		ID:          uuid.New().String(),
		ProfileID:   profileID,
		Name:        name,
		Description: description,
		Nodes:       snapshot,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// SettingsCopy returns a copy of the preset's node map, or an empty map for a
// nil preset so that resolution always has a global layer.
func (p *Preset) SettingsCopy() map[string]Setting {
	if p == nil {
		return map[string]Setting{}
	}
	settings := make(map[string]Setting, len(p.Nodes))
	for nodeID, setting := range p.Nodes {
		settings[nodeID] = setting
	}
	return settings
}
