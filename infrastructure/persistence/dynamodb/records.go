package dynamodb

import "fmt"

// Single-table layout. Every entity lives in one table partitioned by scope:
//
//	SCOPE#<id>      NODE#<node_id>        materialized node
//	SCOPE#<id>      EDGE#<edge_id>        materialized edge
//	SCOPE#<id>      OVERLAY               presentation overlay
//	SCOPE#<id>      VERSION               version counter
//	SCOPE#<id>      HISTORY#<version>     committed history entry
//	SCOPE#<id>      LOCK                  writer lock
//	CHANGE#<id>     METADATA              pending/applied change
//	PROFILE#<id>    METADATA              lens profile
//	PRESET#<id>     METADATA              lens preset snapshot
//	LENS#<scope>#<id>  NODE#<node_id>     lens override
//	CHANGESET#<id>  METADATA              lens changeset
//	RECEIPTS#<id>   TS#<rfc3339>#<id>     execution receipt
//
// GSI1 indexes changes by workspace for pending listing and target conflict
// checks: GSI1PK = WS#<workspace_id>, GSI1SK = CHANGE#<created_at>#<id>.

const (
	skMetadata = "METADATA"
	skOverlay  = "OVERLAY"
	skVersion  = "VERSION"
	skLock     = "LOCK"

	gsi1Name = "GSI1"

	entityNode      = "NODE"
	entityEdge      = "EDGE"
	entityOverlay   = "OVERLAY"
	entityVersion   = "VERSION"
	entityHistory   = "HISTORY"
	entityChange    = "CHANGE"
	entityProfile   = "PROFILE"
	entityPreset    = "PRESET"
	entityOverride  = "OVERRIDE"
	entityChangeSet = "CHANGESET"
	entityReceipt   = "RECEIPT"
)

func scopePK(scopeID string) string      { return fmt.Sprintf("SCOPE#%s", scopeID) }
func nodeSK(nodeID string) string        { return fmt.Sprintf("NODE#%s", nodeID) }
func edgeSK(edgeID string) string        { return fmt.Sprintf("EDGE#%s", edgeID) }
func historySK(version int64) string     { return fmt.Sprintf("HISTORY#%012d", version) }
func changePK(changeID string) string    { return fmt.Sprintf("CHANGE#%s", changeID) }
func changeGSI1PK(wsID string) string    { return fmt.Sprintf("WS#%s", wsID) }
func profilePK(profileID string) string  { return fmt.Sprintf("PROFILE#%s", profileID) }
func presetPK(presetID string) string    { return fmt.Sprintf("PRESET#%s", presetID) }
func overridePK(scope, id string) string { return fmt.Sprintf("LENS#%s#%s", scope, id) }
func changeSetPK(id string) string       { return fmt.Sprintf("CHANGESET#%s", id) }
func receiptsPK(profileID string) string { return fmt.Sprintf("RECEIPTS#%s", profileID) }

// nodeItem is the DynamoDB item for a materialized node
type nodeItem struct {
	PK         string         `dynamodbav:"PK"`
	SK         string         `dynamodbav:"SK"`
	EntityType string         `dynamodbav:"EntityType"`
	NodeID     string         `dynamodbav:"NodeID"`
	NodeType   string         `dynamodbav:"NodeType"`
	Label      string         `dynamodbav:"Label"`
	Status     string         `dynamodbav:"Status"`
	Metadata   map[string]any `dynamodbav:"Metadata,omitempty"`
	CreatedAt  string         `dynamodbav:"CreatedAt"`
}

// edgeItem is the DynamoDB item for a materialized edge
type edgeItem struct {
	PK         string         `dynamodbav:"PK"`
	SK         string         `dynamodbav:"SK"`
	EntityType string         `dynamodbav:"EntityType"`
	EdgeID     string         `dynamodbav:"EdgeID"`
	FromID     string         `dynamodbav:"FromID"`
	ToID       string         `dynamodbav:"ToID"`
	EdgeType   string         `dynamodbav:"EdgeType"`
	Origin     string         `dynamodbav:"Origin"`
	Confidence float64        `dynamodbav:"Confidence"`
	Status     string         `dynamodbav:"Status"`
	Metadata   map[string]any `dynamodbav:"Metadata,omitempty"`
}

// overlayItem is the DynamoDB item for a scope's overlay
type overlayItem struct {
	PK         string         `dynamodbav:"PK"`
	SK         string         `dynamodbav:"SK"`
	EntityType string         `dynamodbav:"EntityType"`
	State      map[string]any `dynamodbav:"State"`
	Version    int64          `dynamodbav:"Version"`
}

// versionItem is the scope's version counter
type versionItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	Version    int64  `dynamodbav:"Version"`
}

// changeItem is the DynamoDB item for a change in any lifecycle status
type changeItem struct {
	PK           string         `dynamodbav:"PK"`
	SK           string         `dynamodbav:"SK"`
	GSI1PK       string         `dynamodbav:"GSI1PK"`
	GSI1SK       string         `dynamodbav:"GSI1SK"`
	EntityType   string         `dynamodbav:"EntityType"`
	ChangeID     string         `dynamodbav:"ChangeID"`
	WorkspaceID  string         `dynamodbav:"WorkspaceID"`
	Version      int64          `dynamodbav:"Version,omitempty"`
	Operation    string         `dynamodbav:"Operation"`
	TargetType   string         `dynamodbav:"TargetType"`
	TargetID     string         `dynamodbav:"TargetID"`
	BeforeState  map[string]any `dynamodbav:"BeforeState,omitempty"`
	AfterState   map[string]any `dynamodbav:"AfterState,omitempty"`
	Actor        string         `dynamodbav:"Actor"`
	ActorContext string         `dynamodbav:"ActorContext,omitempty"`
	Status       string         `dynamodbav:"Status"`
	CreatedAt    string         `dynamodbav:"CreatedAt"`
}

// historyItem is the DynamoDB item for one committed version
type historyItem struct {
	PK               string `dynamodbav:"PK"`
	SK               string `dynamodbav:"SK"`
	EntityType       string `dynamodbav:"EntityType"`
	EntryID          string `dynamodbav:"EntryID"`
	WorkspaceID      string `dynamodbav:"WorkspaceID"`
	Version          int64  `dynamodbav:"Version"`
	Kind             string `dynamodbav:"Kind"`
	Operation        string `dynamodbav:"Operation"`
	TargetType       string `dynamodbav:"TargetType"`
	TargetID         string `dynamodbav:"TargetID"`
	Actor            string `dynamodbav:"Actor"`
	ChangeID         string `dynamodbav:"ChangeID"`
	OriginalChangeID string `dynamodbav:"OriginalChangeID,omitempty"`
	CreatedAt        string `dynamodbav:"CreatedAt"`
	AppliedAt        string `dynamodbav:"AppliedAt"`
	AppliedBy        string `dynamodbav:"AppliedBy"`
}

// profileItem is the DynamoDB item for a lens profile
type profileItem struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	EntityType     string `dynamodbav:"EntityType"`
	ProfileID      string `dynamodbav:"ProfileID"`
	ActivePresetID string `dynamodbav:"ActivePresetID,omitempty"`
	CreatedAt      string `dynamodbav:"CreatedAt"`
	UpdatedAt      string `dynamodbav:"UpdatedAt"`
}

// presetItem is the DynamoDB item for an immutable preset snapshot
type presetItem struct {
	PK          string                 `dynamodbav:"PK"`
	SK          string                 `dynamodbav:"SK"`
	EntityType  string                 `dynamodbav:"EntityType"`
	PresetID    string                 `dynamodbav:"PresetID"`
	ProfileID   string                 `dynamodbav:"ProfileID"`
	Name        string                 `dynamodbav:"Name"`
	Description string                 `dynamodbav:"Description,omitempty"`
	Nodes       map[string]settingItem `dynamodbav:"Nodes"`
	WorkspaceID string                 `dynamodbav:"WorkspaceID,omitempty"`
	SessionID   string                 `dynamodbav:"SessionID,omitempty"`
	CreatedAt   string                 `dynamodbav:"CreatedAt"`
	UpdatedAt   string                 `dynamodbav:"UpdatedAt"`
}

// settingItem is one node's lens setting
type settingItem struct {
	State  string  `dynamodbav:"State"`
	Weight float64 `dynamodbav:"Weight"`
}

// overrideItem is the DynamoDB item for one scope override
type overrideItem struct {
	PK         string  `dynamodbav:"PK"`
	SK         string  `dynamodbav:"SK"`
	EntityType string  `dynamodbav:"EntityType"`
	NodeID     string  `dynamodbav:"NodeID"`
	State      string  `dynamodbav:"State"`
	Weight     float64 `dynamodbav:"Weight"`
}

// changeSetItem is the DynamoDB item for a lens changeset
type changeSetItem struct {
	PK          string           `dynamodbav:"PK"`
	SK          string           `dynamodbav:"SK"`
	EntityType  string           `dynamodbav:"EntityType"`
	ChangeSetID string           `dynamodbav:"ChangeSetID"`
	ProfileID   string           `dynamodbav:"ProfileID"`
	SessionID   string           `dynamodbav:"SessionID"`
	WorkspaceID string           `dynamodbav:"WorkspaceID,omitempty"`
	Changes     []nodeChangeItem `dynamodbav:"Changes"`
	Summary     string           `dynamodbav:"Summary"`
	Consumed    bool             `dynamodbav:"Consumed"`
	CreatedAt   string           `dynamodbav:"CreatedAt"`
}

// nodeChangeItem is one node transition inside a changeset
type nodeChangeItem struct {
	NodeID    string      `dynamodbav:"NodeID"`
	FromState settingItem `dynamodbav:"FromState"`
	ToState   settingItem `dynamodbav:"ToState"`
}

// receiptItem is the DynamoDB item for an execution receipt
type receiptItem struct {
	PK         string   `dynamodbav:"PK"`
	SK         string   `dynamodbav:"SK"`
	EntityType string   `dynamodbav:"EntityType"`
	ReceiptID  string   `dynamodbav:"ReceiptID"`
	ProfileID  string   `dynamodbav:"ProfileID"`
	NodeIDs    []string `dynamodbav:"NodeIDs"`
	ExecutedAt string   `dynamodbav:"ExecutedAt"`
}
