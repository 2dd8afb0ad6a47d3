package dynamodb

import (
	"context"
	"errors"
	"time"

	"mindscape/domain/lens"
	pkgerrors "mindscape/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// LensRepository persists profiles, presets, overrides, changesets and
// receipts in the single table.
type LensRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewLensRepository creates a DynamoDB-backed lens repository
func NewLensRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) *LensRepository {
	return &LensRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// GetOrCreateProfile returns the profile, creating it on first reference with
// a conditional put so concurrent first references converge on one item.
func (r *LensRepository) GetOrCreateProfile(ctx context.Context, profileID string) (*lens.Profile, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       metadataKey(profilePK(profileID)),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get profile", err)
	}
	if result.Item != nil {
		var item profileItem
		if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
			return nil, pkgerrors.NewDatabaseError("unmarshal profile", err)
		}
		return profileFromItem(item), nil
	}

	now := time.Now().UTC()
	profile := &lens.Profile{ID: profileID, CreatedAt: now, UpdatedAt: now}
	av, err := attributevalue.MarshalMap(profileToItem(profile))
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("marshal profile", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			// Lost the race; the other writer's profile is the real one.
			return r.GetOrCreateProfile(ctx, profileID)
		}
		return nil, pkgerrors.NewDatabaseError("create profile", err)
	}
	return profile, nil
}

// SaveProfile persists the profile's mutable fields.
func (r *LensRepository) SaveProfile(ctx context.Context, profile *lens.Profile) error {
	av, err := attributevalue.MarshalMap(profileToItem(profile))
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal profile", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		return pkgerrors.NewDatabaseError("save profile", err)
	}
	return nil
}

// SavePreset persists an immutable preset snapshot. Presets are write-once;
// overwriting is a conflict.
func (r *LensRepository) SavePreset(ctx context.Context, preset *lens.Preset) error {
	av, err := attributevalue.MarshalMap(presetToItem(preset))
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal preset", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return pkgerrors.NewConflictError("preset already exists: " + preset.ID)
		}
		return pkgerrors.NewDatabaseError("save preset", err)
	}
	return nil
}

// GetPreset retrieves a preset by id.
func (r *LensRepository) GetPreset(ctx context.Context, presetID string) (*lens.Preset, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       metadataKey(presetPK(presetID)),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get preset", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError("preset")
	}
	var item presetItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal preset", err)
	}
	return presetFromItem(item), nil
}

// WorkspaceOverrides returns the workspace's override map.
func (r *LensRepository) WorkspaceOverrides(ctx context.Context, workspaceID string) (map[string]lens.Setting, error) {
	return r.overrides(ctx, overridePK(string(lens.ScopeWorkspace), workspaceID))
}

// SetWorkspaceOverride upserts one workspace override.
func (r *LensRepository) SetWorkspaceOverride(ctx context.Context, workspaceID, nodeID string, setting lens.Setting) error {
	return r.setOverride(ctx, overridePK(string(lens.ScopeWorkspace), workspaceID), nodeID, setting)
}

// RemoveWorkspaceOverride deletes one workspace override.
func (r *LensRepository) RemoveWorkspaceOverride(ctx context.Context, workspaceID, nodeID string) error {
	return r.removeOverride(ctx, overridePK(string(lens.ScopeWorkspace), workspaceID), nodeID)
}

// SessionOverrides returns the session's override map.
func (r *LensRepository) SessionOverrides(ctx context.Context, sessionID string) (map[string]lens.Setting, error) {
	return r.overrides(ctx, overridePK(string(lens.ScopeSession), sessionID))
}

// SetSessionOverride upserts one session override.
func (r *LensRepository) SetSessionOverride(ctx context.Context, sessionID, nodeID string, setting lens.Setting) error {
	return r.setOverride(ctx, overridePK(string(lens.ScopeSession), sessionID), nodeID, setting)
}

// RemoveSessionOverride deletes one session override.
func (r *LensRepository) RemoveSessionOverride(ctx context.Context, sessionID, nodeID string) error {
	return r.removeOverride(ctx, overridePK(string(lens.ScopeSession), sessionID), nodeID)
}

// ClearSessionOverrides deletes all of a session's overrides in batches.
func (r *LensRepository) ClearSessionOverrides(ctx context.Context, sessionID string) error {
	pk := overridePK(string(lens.ScopeSession), sessionID)
	overrides, err := r.overrides(ctx, pk)
	if err != nil {
		return err
	}
	for nodeID := range overrides {
		if err := r.removeOverride(ctx, pk, nodeID); err != nil {
			return err
		}
	}
	return nil
}

func (r *LensRepository) overrides(ctx context.Context, pk string) (map[string]lens.Setting, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
			":sk": &types.AttributeValueMemberS{Value: "NODE#"},
		},
	}

	settings := make(map[string]lens.Setting)
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("query overrides", err)
		}
		for _, raw := range page.Items {
			var item overrideItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				r.logger.Warn("Failed to unmarshal override item", zap.Error(err))
				continue
			}
			settings[item.NodeID] = lens.Setting{State: lens.State(item.State), Weight: item.Weight}
		}
	}
	return settings, nil
}

func (r *LensRepository) setOverride(ctx context.Context, pk, nodeID string, setting lens.Setting) error {
	av, err := attributevalue.MarshalMap(overrideItem{
		PK:         pk,
		SK:         nodeSK(nodeID),
		EntityType: entityOverride,
		NodeID:     nodeID,
		State:      string(setting.State),
		Weight:     setting.Weight,
	})
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal override", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		return pkgerrors.NewDatabaseError("set override", err)
	}
	return nil
}

func (r *LensRepository) removeOverride(ctx context.Context, pk, nodeID string) error {
	if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: nodeSK(nodeID)},
		},
	}); err != nil {
		return pkgerrors.NewDatabaseError("remove override", err)
	}
	return nil
}

// SaveChangeSet persists a new changeset.
func (r *LensRepository) SaveChangeSet(ctx context.Context, changeSet *lens.ChangeSet) error {
	av, err := attributevalue.MarshalMap(changeSetToItem(changeSet))
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal changeset", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return pkgerrors.NewConflictError("changeset already exists: " + changeSet.ID)
		}
		return pkgerrors.NewDatabaseError("save changeset", err)
	}
	return nil
}

// GetChangeSet retrieves a changeset by id.
func (r *LensRepository) GetChangeSet(ctx context.Context, changeSetID string) (*lens.ChangeSet, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       metadataKey(changeSetPK(changeSetID)),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get changeset", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError("changeset")
	}
	var item changeSetItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal changeset", err)
	}
	return changeSetFromItem(item), nil
}

// ConsumeChangeSet flips the consumed flag with a conditional update, so a
// changeset is applied exactly once even under concurrent applies.
func (r *LensRepository) ConsumeChangeSet(ctx context.Context, changeSetID string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 metadataKey(changeSetPK(changeSetID)),
		UpdateExpression:    aws.String("SET Consumed = :true"),
		ConditionExpression: aws.String("attribute_exists(PK) AND Consumed = :false"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true":  &types.AttributeValueMemberBOOL{Value: true},
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return pkgerrors.NewStateError("changeset already consumed")
		}
		return pkgerrors.NewDatabaseError("consume changeset", err)
	}
	return nil
}

// ListReceipts returns a profile's receipts executed at or after since. The
// RFC3339 timestamp in the sort key makes the range query chronological.
func (r *LensRepository) ListReceipts(ctx context.Context, profileID string, since time.Time) ([]lens.ExecutionReceipt, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND SK >= :since"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":    &types.AttributeValueMemberS{Value: receiptsPK(profileID)},
			":since": &types.AttributeValueMemberS{Value: "TS#" + since.UTC().Format(time.RFC3339)},
		},
	}

	receipts := []lens.ExecutionReceipt{}
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("query receipts", err)
		}
		for _, raw := range page.Items {
			var item receiptItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				r.logger.Warn("Failed to unmarshal receipt item", zap.Error(err))
				continue
			}
			receipt := lens.ExecutionReceipt{
				ID:        item.ReceiptID,
				ProfileID: item.ProfileID,
				NodeIDs:   item.NodeIDs,
			}
			if parsed, err := time.Parse(time.RFC3339, item.ExecutedAt); err == nil {
				receipt.ExecutedAt = parsed
			}
			receipts = append(receipts, receipt)
		}
	}
	return receipts, nil
}

func metadataKey(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: skMetadata},
	}
}

func profileToItem(profile *lens.Profile) profileItem {
	return profileItem{
		PK:             profilePK(profile.ID),
		SK:             skMetadata,
		EntityType:     entityProfile,
		ProfileID:      profile.ID,
		ActivePresetID: profile.ActivePresetID,
		CreatedAt:      profile.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:      profile.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func profileFromItem(item profileItem) *lens.Profile {
	profile := &lens.Profile{
		ID:             item.ProfileID,
		ActivePresetID: item.ActivePresetID,
	}
	if parsed, err := time.Parse(time.RFC3339Nano, item.CreatedAt); err == nil {
		profile.CreatedAt = parsed
	}
	if parsed, err := time.Parse(time.RFC3339Nano, item.UpdatedAt); err == nil {
		profile.UpdatedAt = parsed
	}
	return profile
}

func presetToItem(preset *lens.Preset) presetItem {
	nodes := make(map[string]settingItem, len(preset.Nodes))
	for nodeID, setting := range preset.Nodes {
		nodes[nodeID] = settingItem{State: string(setting.State), Weight: setting.Weight}
	}
	return presetItem{
		PK:          presetPK(preset.ID),
		SK:          skMetadata,
		EntityType:  entityPreset,
		PresetID:    preset.ID,
		ProfileID:   preset.ProfileID,
		Name:        preset.Name,
		Description: preset.Description,
		Nodes:       nodes,
		WorkspaceID: preset.WorkspaceID,
		SessionID:   preset.SessionID,
		CreatedAt:   preset.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   preset.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func presetFromItem(item presetItem) *lens.Preset {
	nodes := make(map[string]lens.Setting, len(item.Nodes))
	for nodeID, setting := range item.Nodes {
		nodes[nodeID] = lens.Setting{State: lens.State(setting.State), Weight: setting.Weight}
	}
	preset := &lens.Preset{
		ID:          item.PresetID,
		ProfileID:   item.ProfileID,
		Name:        item.Name,
		Description: item.Description,
		Nodes:       nodes,
		WorkspaceID: item.WorkspaceID,
		SessionID:   item.SessionID,
	}
	if parsed, err := time.Parse(time.RFC3339Nano, item.CreatedAt); err == nil {
		preset.CreatedAt = parsed
	}
	if parsed, err := time.Parse(time.RFC3339Nano, item.UpdatedAt); err == nil {
		preset.UpdatedAt = parsed
	}
	return preset
}

func changeSetToItem(changeSet *lens.ChangeSet) changeSetItem {
	changes := make([]nodeChangeItem, 0, len(changeSet.Changes))
	for _, change := range changeSet.Changes {
		changes = append(changes, nodeChangeItem{
			NodeID:    change.NodeID,
			FromState: settingItem{State: string(change.FromState.State), Weight: change.FromState.Weight},
			ToState:   settingItem{State: string(change.ToState.State), Weight: change.ToState.Weight},
		})
	}
	return changeSetItem{
		PK:          changeSetPK(changeSet.ID),
		SK:          skMetadata,
		EntityType:  entityChangeSet,
		ChangeSetID: changeSet.ID,
		ProfileID:   changeSet.ProfileID,
		SessionID:   changeSet.SessionID,
		WorkspaceID: changeSet.WorkspaceID,
		Changes:     changes,
		Summary:     changeSet.Summary,
		Consumed:    changeSet.Consumed,
		CreatedAt:   changeSet.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func changeSetFromItem(item changeSetItem) *lens.ChangeSet {
	changes := make([]lens.NodeChange, 0, len(item.Changes))
	for _, change := range item.Changes {
		changes = append(changes, lens.NodeChange{
			NodeID:    change.NodeID,
			FromState: lens.Setting{State: lens.State(change.FromState.State), Weight: change.FromState.Weight},
			ToState:   lens.Setting{State: lens.State(change.ToState.State), Weight: change.ToState.Weight},
		})
	}
	changeSet := &lens.ChangeSet{
		ID:          item.ChangeSetID,
		ProfileID:   item.ProfileID,
		SessionID:   item.SessionID,
		WorkspaceID: item.WorkspaceID,
		Changes:     changes,
		Summary:     item.Summary,
		Consumed:    item.Consumed,
	}
	if parsed, err := time.Parse(time.RFC3339Nano, item.CreatedAt); err == nil {
		changeSet.CreatedAt = parsed
	}
	return changeSet
}
