package lens

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NodeChange is one node's from→to transition inside a changeset.
type NodeChange struct {
	NodeID    string  `json:"node_id"`
	FromState Setting `json:"from_state"`
	ToState   Setting `json:"to_state"`
}

// ChangeSet is a reviewable bundle of session-scoped lens changes promotable
// to a wider scope. A changeset is consumed exactly once by apply; afterwards
// it is immutable history.
type ChangeSet struct {
	ID          string       `json:"id"`
	ProfileID   string       `json:"profile_id"`
	SessionID   string       `json:"session_id"`
	WorkspaceID string       `json:"workspace_id,omitempty"`
	Changes     []NodeChange `json:"changes"`
	Summary     string       `json:"summary"`
	Consumed    bool         `json:"consumed"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ApplyTarget selects where a changeset's node changes land
type ApplyTarget string

const (
	ApplySessionOnly ApplyTarget = "session_only"
	ApplyWorkspace   ApplyTarget = "workspace"
	ApplyPreset      ApplyTarget = "preset"
)

// Valid reports whether the apply target is known.
func (t ApplyTarget) Valid() bool {
	return t == ApplySessionOnly || t == ApplyWorkspace || t == ApplyPreset
}

// NewChangeSet diffs the session overrides against the effective state one
// scope down and bundles the differences. The base map is the resolved
// workspace-or-global state; session overrides equal to their base value are
// dropped.
func NewChangeSet(profileID, sessionID, workspaceID string, base, session map[string]Setting) *ChangeSet {
	nodeIDs := make([]string, 0, len(session))
	for nodeID := range session {
		nodeIDs = append(nodeIDs, nodeID)
	}
	sort.Strings(nodeIDs)

	changes := make([]NodeChange, 0, len(nodeIDs))
	for _, nodeID := range nodeIDs {
		to := session[nodeID]
		from, ok := base[nodeID]
		if !ok {
			from = DefaultSetting()
		}
		if from == to {
			continue
		}
		changes = append(changes, NodeChange{NodeID: nodeID, FromState: from, ToState: to})
	}

	return &ChangeSet{
		ID:          uuid.New().String(),
		ProfileID:   profileID,
		SessionID:   sessionID,
		WorkspaceID: workspaceID,
		Changes:     changes,
		Summary:     summarize(changes),
		CreatedAt:   time.Now().UTC(),
	}
}

// summarize renders a human-readable per-node from→to summary.
func summarize(changes []NodeChange) string {
	if len(changes) == 0 {
		return "no changes"
	}
	parts := make([]string, 0, len(changes))
	for _, change := range changes {
		parts = append(parts, fmt.Sprintf("%s: %s/%g -> %s/%g",
			change.NodeID,
			change.FromState.State, change.FromState.Weight,
			change.ToState.State, change.ToState.Weight,
		))
	}
	return fmt.Sprintf("%d change(s): %s", len(changes), strings.Join(parts, ", "))
}
