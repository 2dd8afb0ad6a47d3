package memory

import (
	"sync"
	"time"

	"mindscape/domain/changelog"
	"mindscape/domain/graph"
	"mindscape/domain/lens"
)

// Store is the in-memory implementation of every persistence port. It backs
// development and tests; the access patterns mirror the DynamoDB layout so
// either backend satisfies the same semantics.
//
// One RWMutex guards the whole store. Version allocation correctness does not
// depend on it (the workspace locker serializes writers); the mutex only keeps
// individual reads and writes internally consistent.
type Store struct {
	mu sync.RWMutex

	scopes  map[string]*scopeData
	changes map[string]*changelog.PendingChange

	profiles           map[string]*lens.Profile
	presets            map[string]*lens.Preset
	workspaceOverrides map[string]map[string]lens.Setting
	sessionOverrides   map[string]map[string]lens.Setting
	changeSets         map[string]*lens.ChangeSet
	receipts           map[string][]lens.ExecutionReceipt
}

// scopeData is one scope's materialized graph plus its committed history.
type scopeData struct {
	nodes   map[string]*graph.Node
	edges   map[string]*graph.Edge
	overlay *graph.Overlay
	version int64
	history []changelog.HistoryEntry
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		scopes:             make(map[string]*scopeData),
		changes:            make(map[string]*changelog.PendingChange),
		profiles:           make(map[string]*lens.Profile),
		presets:            make(map[string]*lens.Preset),
		workspaceOverrides: make(map[string]map[string]lens.Setting),
		sessionOverrides:   make(map[string]map[string]lens.Setting),
		changeSets:         make(map[string]*lens.ChangeSet),
		receipts:           make(map[string][]lens.ExecutionReceipt),
	}
}

// scope returns the scope's data, creating it lazily. Caller holds s.mu.
func (s *Store) scope(scopeID string) *scopeData {
	data, ok := s.scopes[scopeID]
	if !ok {
		data = &scopeData{
			nodes:   make(map[string]*graph.Node),
			edges:   make(map[string]*graph.Edge),
			overlay: graph.NewOverlay(),
		}
		s.scopes[scopeID] = data
	}
	return data
}

// SeedReceipts loads execution receipts for a profile. Receipts are external
// evidence in production; this hook exists for development and tests.
func (s *Store) SeedReceipts(profileID string, receipts []lens.ExecutionReceipt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[profileID] = append(s.receipts[profileID], receipts...)
}

func cloneChange(change *changelog.PendingChange) *changelog.PendingChange {
	cloned := *change
	cloned.BeforeState = changelog.NormalizeState(change.BeforeState)
	cloned.AfterState = changelog.NormalizeState(change.AfterState)
	return &cloned
}

func cloneSettings(settings map[string]lens.Setting) map[string]lens.Setting {
	cloned := make(map[string]lens.Setting, len(settings))
	for nodeID, setting := range settings {
		cloned[nodeID] = setting
	}
	return cloned
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
