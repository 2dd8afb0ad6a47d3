package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mindscape/application/ports"
	"mindscape/domain/changelog"
	pkgerrors "mindscape/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// ChangelogRepository persists changes and history in the single table.
// Applied commits go through one TransactWriteItems call conditioned on the
// version counter, which is what makes the counter gapless even if a second
// writer slips past the workspace lock.
type ChangelogRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewChangelogRepository creates a DynamoDB-backed changelog repository
func NewChangelogRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) *ChangelogRepository {
	return &ChangelogRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// SavePending appends a new pending change. The condition rejects id reuse.
func (r *ChangelogRepository) SavePending(ctx context.Context, change *changelog.PendingChange) error {
	av, err := attributevalue.MarshalMap(changeToItem(change))
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal change", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return pkgerrors.NewConflictError("change already exists: " + change.ID)
		}
		return pkgerrors.NewDatabaseError("save pending change", err)
	}
	return nil
}

// GetChange retrieves a change by id.
func (r *ChangelogRepository) GetChange(ctx context.Context, changeID string) (*changelog.PendingChange, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: changePK(changeID)},
			"SK": &types.AttributeValueMemberS{Value: skMetadata},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get change", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError("change")
	}

	var item changeItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal change", err)
	}
	return changeFromItem(item), nil
}

// ListPending queries GSI1 for a workspace's changes in created_at order and
// filters to pending status, optionally narrowed by actor.
func (r *ChangelogRepository) ListPending(ctx context.Context, workspaceID string, actorFilter changelog.Actor) ([]*changelog.PendingChange, error) {
	filter := expression.Name("Status").Equal(expression.Value(string(changelog.StatusPending)))
	if actorFilter != "" {
		filter = filter.And(expression.Name("Actor").Equal(expression.Value(string(actorFilter))))
	}
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("GSI1PK").Equal(expression.Value(changeGSI1PK(workspaceID)))).
		WithFilter(filter).
		Build()
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("build pending filter", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(gsi1Name),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	pending := []*changelog.PendingChange{}
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("query pending changes", err)
		}
		for _, raw := range page.Items {
			var item changeItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				r.logger.Warn("Failed to unmarshal change item", zap.Error(err))
				continue
			}
			pending = append(pending, changeFromItem(item))
		}
	}
	return pending, nil
}

// MarkRejected transitions a pending change to rejected. The condition keeps
// a concurrently applied change from being clobbered.
func (r *ChangelogRepository) MarkRejected(ctx context.Context, change *changelog.PendingChange) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: changePK(change.ID)},
			"SK": &types.AttributeValueMemberS{Value: skMetadata},
		},
		UpdateExpression:    aws.String("SET #status = :rejected"),
		ConditionExpression: aws.String("#status = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#status": "Status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rejected": &types.AttributeValueMemberS{Value: string(changelog.StatusRejected)},
			":pending":  &types.AttributeValueMemberS{Value: string(changelog.StatusPending)},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return pkgerrors.NewStateError("change is no longer pending")
		}
		return pkgerrors.NewDatabaseError("mark change rejected", err)
	}
	return nil
}

// CommitApplied writes the version bump, history entry, change transition and
// graph mutation in one transaction. The version counter update is conditioned
// on the current value, so a stale commit fails with no side effects.
func (r *ChangelogRepository) CommitApplied(ctx context.Context, commit ports.Commit) error {
	workspaceID := commit.Entry.WorkspaceID
	version := commit.Entry.Version

	items := []types.TransactWriteItem{
		{
			Update: &types.Update{
				TableName: aws.String(r.tableName),
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: scopePK(workspaceID)},
					"SK": &types.AttributeValueMemberS{Value: skVersion},
				},
				UpdateExpression:    aws.String("SET Version = :next, EntityType = :entity"),
				ConditionExpression: aws.String("attribute_not_exists(Version) OR Version = :current"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":next":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", version)},
					":current": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", version-1)},
					":entity":  &types.AttributeValueMemberS{Value: entityVersion},
				},
			},
		},
	}

	entryAV, err := attributevalue.MarshalMap(historyToItem(commit.Entry))
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal history entry", err)
	}
	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(r.tableName),
			Item:                entryAV,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		},
	})

	changeAV, err := attributevalue.MarshalMap(changeToItem(commit.Change))
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal change", err)
	}
	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			TableName: aws.String(r.tableName),
			Item:      changeAV,
		},
	})

	mutationItems, err := r.mutationWrites(workspaceID, commit)
	if err != nil {
		return err
	}
	items = append(items, mutationItems...)

	if _, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	}); err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			return pkgerrors.NewConflictError("commit version is not the next version")
		}
		return pkgerrors.NewDatabaseError("commit applied change", err)
	}

	r.logger.Debug("Change committed",
		zap.String("workspaceID", workspaceID),
		zap.String("changeID", commit.Change.ID),
		zap.Int64("version", version),
	)
	return nil
}

func (r *ChangelogRepository) mutationWrites(workspaceID string, commit ports.Commit) ([]types.TransactWriteItem, error) {
	items := []types.TransactWriteItem{}

	for _, node := range commit.Mutation.PutNodes {
		av, err := attributevalue.MarshalMap(nodeToItem(workspaceID, node))
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("marshal node", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(r.tableName), Item: av},
		})
	}
	for _, nodeID := range commit.Mutation.DeleteNodeIDs {
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(r.tableName),
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: scopePK(workspaceID)},
					"SK": &types.AttributeValueMemberS{Value: nodeSK(nodeID)},
				},
			},
		})
	}
	for _, edge := range commit.Mutation.PutEdges {
		av, err := attributevalue.MarshalMap(edgeToItem(workspaceID, edge))
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("marshal edge", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(r.tableName), Item: av},
		})
	}
	for _, edgeID := range commit.Mutation.DeleteEdgeIDs {
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(r.tableName),
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: scopePK(workspaceID)},
					"SK": &types.AttributeValueMemberS{Value: edgeSK(edgeID)},
				},
			},
		})
	}
	if commit.Mutation.Overlay != nil {
		av, err := attributevalue.MarshalMap(overlayItem{
			PK:         scopePK(workspaceID),
			SK:         skOverlay,
			EntityType: entityOverlay,
			State:      commit.Mutation.Overlay.State(),
			Version:    commit.Mutation.Overlay.Version,
		})
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("marshal overlay", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(r.tableName), Item: av},
		})
	}
	return items, nil
}

// CurrentVersion returns the workspace's committed version counter.
func (r *ChangelogRepository) CurrentVersion(ctx context.Context, workspaceID string) (int64, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: scopePK(workspaceID)},
			"SK": &types.AttributeValueMemberS{Value: skVersion},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, pkgerrors.NewDatabaseError("get version counter", err)
	}
	if result.Item == nil {
		return 0, nil
	}
	var item versionItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return 0, pkgerrors.NewDatabaseError("unmarshal version counter", err)
	}
	return item.Version, nil
}

// History returns committed entries newest-first. The zero-padded version in
// the sort key makes the descending query order correct lexically.
func (r *ChangelogRepository) History(ctx context.Context, workspaceID string, limit int) ([]changelog.HistoryEntry, int, error) {
	countInput := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: scopePK(workspaceID)},
			":sk": &types.AttributeValueMemberS{Value: "HISTORY#"},
		},
		Select: types.SelectCount,
	}
	countResult, err := r.client.Query(ctx, countInput)
	if err != nil {
		return nil, 0, pkgerrors.NewDatabaseError("count history", err)
	}
	total := int(countResult.Count)

	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: scopePK(workspaceID)},
			":sk": &types.AttributeValueMemberS{Value: "HISTORY#"},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	entries := []changelog.HistoryEntry{}
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, 0, pkgerrors.NewDatabaseError("query history", err)
		}
		for _, raw := range page.Items {
			var item historyItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				r.logger.Warn("Failed to unmarshal history item", zap.Error(err))
				continue
			}
			entries = append(entries, historyFromItem(item))
			if limit > 0 && len(entries) >= limit {
				return entries, total, nil
			}
		}
	}
	return entries, total, nil
}

// LaterAppliedExists queries the workspace's changes and reports whether one
// in applied status with a higher version touches the same target.
func (r *ChangelogRepository) LaterAppliedExists(ctx context.Context, workspaceID, targetID string, afterVersion int64) (bool, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("GSI1PK").Equal(expression.Value(changeGSI1PK(workspaceID)))).
		WithFilter(expression.Name("TargetID").Equal(expression.Value(targetID)).
			And(expression.Name("Status").Equal(expression.Value(string(changelog.StatusApplied)))).
			And(expression.Name("Version").GreaterThan(expression.Value(afterVersion)))).
		Build()
	if err != nil {
		return false, pkgerrors.NewDatabaseError("build conflict filter", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(gsi1Name),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return false, pkgerrors.NewDatabaseError("query later changes", err)
		}
		if len(page.Items) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func changeToItem(change *changelog.PendingChange) changeItem {
	createdAt := change.CreatedAt.UTC().Format(time.RFC3339Nano)
	return changeItem{
		PK:           changePK(change.ID),
		SK:           skMetadata,
		GSI1PK:       changeGSI1PK(change.WorkspaceID),
		GSI1SK:       fmt.Sprintf("CHANGE#%s#%s", createdAt, change.ID),
		EntityType:   entityChange,
		ChangeID:     change.ID,
		WorkspaceID:  change.WorkspaceID,
		Version:      change.Version,
		Operation:    string(change.Operation),
		TargetType:   string(change.TargetType),
		TargetID:     change.TargetID,
		BeforeState:  change.BeforeState,
		AfterState:   change.AfterState,
		Actor:        string(change.Actor),
		ActorContext: change.ActorContext,
		Status:       string(change.Status),
		CreatedAt:    createdAt,
	}
}

func changeFromItem(item changeItem) *changelog.PendingChange {
	change := &changelog.PendingChange{
		ID:           item.ChangeID,
		WorkspaceID:  item.WorkspaceID,
		Version:      item.Version,
		Operation:    changelog.Operation(item.Operation),
		TargetType:   changelog.TargetType(item.TargetType),
		TargetID:     item.TargetID,
		BeforeState:  item.BeforeState,
		AfterState:   item.AfterState,
		Actor:        changelog.Actor(item.Actor),
		ActorContext: item.ActorContext,
		Status:       changelog.Status(item.Status),
	}
	if parsed, err := time.Parse(time.RFC3339Nano, item.CreatedAt); err == nil {
		change.CreatedAt = parsed
	}
	return change
}

func historyToItem(entry changelog.HistoryEntry) historyItem {
	return historyItem{
		PK:               scopePK(entry.WorkspaceID),
		SK:               historySK(entry.Version),
		EntityType:       entityHistory,
		EntryID:          entry.ID,
		WorkspaceID:      entry.WorkspaceID,
		Version:          entry.Version,
		Kind:             string(entry.Kind),
		Operation:        string(entry.Operation),
		TargetType:       string(entry.TargetType),
		TargetID:         entry.TargetID,
		Actor:            string(entry.Actor),
		ChangeID:         entry.ChangeID,
		OriginalChangeID: entry.OriginalChangeID,
		CreatedAt:        entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		AppliedAt:        entry.AppliedAt.UTC().Format(time.RFC3339Nano),
		AppliedBy:        entry.AppliedBy,
	}
}

func historyFromItem(item historyItem) changelog.HistoryEntry {
	entry := changelog.HistoryEntry{
		ID:               item.EntryID,
		WorkspaceID:      item.WorkspaceID,
		Version:          item.Version,
		Kind:             changelog.EntryKind(item.Kind),
		Operation:        changelog.Operation(item.Operation),
		TargetType:       changelog.TargetType(item.TargetType),
		TargetID:         item.TargetID,
		Actor:            changelog.Actor(item.Actor),
		ChangeID:         item.ChangeID,
		OriginalChangeID: item.OriginalChangeID,
		AppliedBy:        item.AppliedBy,
	}
	if parsed, err := time.Parse(time.RFC3339Nano, item.CreatedAt); err == nil {
		entry.CreatedAt = parsed
	}
	if parsed, err := time.Parse(time.RFC3339Nano, item.AppliedAt); err == nil {
		entry.AppliedAt = parsed
	}
	return entry
}
