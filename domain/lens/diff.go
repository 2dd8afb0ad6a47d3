package lens

import "sort"

// DiffKind classifies one node's transition between two presets
type DiffKind string

const (
	DiffStrengthened DiffKind = "strengthened"
	DiffWeakened     DiffKind = "weakened"
	DiffDisabled     DiffKind = "disabled"
	DiffEnabled      DiffKind = "enabled"
	DiffChanged      DiffKind = "changed"
)

// DiffEntry is one node's classified transition.
type DiffEntry struct {
	NodeID string   `json:"node_id"`
	From   Setting  `json:"from"`
	To     Setting  `json:"to"`
	Kind   DiffKind `json:"kind"`
}

// PresetDiff is the structural diff between two presets.
type PresetDiff struct {
	FromPresetID string           `json:"from_preset_id"`
	ToPresetID   string           `json:"to_preset_id"`
	Changes      []DiffEntry      `json:"changes"`
	Counts       map[DiffKind]int `json:"counts"`
}

// DiffPresets diffs two presets over the union of node ids referenced by
// either. Nodes absent from a preset fall back to the global default, which
// keeps the diff order-independent. The classes partition the transitions:
// crossing the off boundary is enabled/disabled, weight movement between
// non-off states is strengthened/weakened, and everything else is changed.
func DiffPresets(from, to *Preset) *PresetDiff {
	fromNodes := from.SettingsCopy()
	toNodes := to.SettingsCopy()

	union := make(map[string]bool, len(fromNodes)+len(toNodes))
	for nodeID := range fromNodes {
		union[nodeID] = true
	}
	for nodeID := range toNodes {
		union[nodeID] = true
	}
	nodeIDs := make([]string, 0, len(union))
	for nodeID := range union {
		nodeIDs = append(nodeIDs, nodeID)
	}
	sort.Strings(nodeIDs)

	diff := &PresetDiff{
		Changes: []DiffEntry{},
		Counts:  map[DiffKind]int{},
	}
	if from != nil {
		diff.FromPresetID = from.ID
	}
	if to != nil {
		diff.ToPresetID = to.ID
	}

	for _, nodeID := range nodeIDs {
		a, ok := fromNodes[nodeID]
		if !ok {
			a = DefaultSetting()
		}
		b, ok := toNodes[nodeID]
		if !ok {
			b = DefaultSetting()
		}
		if a == b {
			continue
		}
		entry := DiffEntry{NodeID: nodeID, From: a, To: b, Kind: classify(a, b)}
		diff.Changes = append(diff.Changes, entry)
		diff.Counts[entry.Kind]++
	}
	return diff
}

func classify(a, b Setting) DiffKind {
	switch {
	case a.State != StateOff && b.State == StateOff:
		return DiffDisabled
	case a.State == StateOff && b.State != StateOff:
		return DiffEnabled
	case a.State != StateOff && b.State != StateOff && b.Weight > a.Weight:
		return DiffStrengthened
	case a.State != StateOff && b.State != StateOff && b.Weight < a.Weight:
		return DiffWeakened
	default:
		return DiffChanged
	}
}
