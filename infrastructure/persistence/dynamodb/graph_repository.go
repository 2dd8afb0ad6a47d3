package dynamodb

import (
	"context"
	"time"

	"mindscape/domain/graph"
	pkgerrors "mindscape/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// GraphRepository reads the materialized graph from the single table.
// All writes go through the changelog repository's transactional commit; this
// repository never mutates graph items.
type GraphRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewGraphRepository creates a DynamoDB-backed graph repository
func NewGraphRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) *GraphRepository {
	return &GraphRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// GetProjection returns the scope's committed graph by querying the whole
// scope partition and splitting items by entity type.
func (r *GraphRepository) GetProjection(ctx context.Context, scopeType graph.ScopeType, scopeID string) (*graph.Projection, error) {
	projection := &graph.Projection{
		ScopeType: scopeType,
		ScopeID:   scopeID,
		Nodes:     []*graph.Node{},
		Edges:     []*graph.Edge{},
		Overlay:   graph.NewOverlay(),
		DerivedAt: time.Now().UTC(),
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: scopePK(scopeID)},
		},
	}

	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("query scope", err)
		}
		for _, raw := range page.Items {
			entityType := itemEntityType(raw)
			switch entityType {
			case entityNode:
				var item nodeItem
				if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
					r.logger.Warn("Failed to unmarshal node item", zap.Error(err))
					continue
				}
				projection.Nodes = append(projection.Nodes, nodeFromItem(item))
			case entityEdge:
				var item edgeItem
				if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
					r.logger.Warn("Failed to unmarshal edge item", zap.Error(err))
					continue
				}
				projection.Edges = append(projection.Edges, edgeFromItem(item))
			case entityOverlay:
				var item overlayItem
				if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
					r.logger.Warn("Failed to unmarshal overlay item", zap.Error(err))
					continue
				}
				overlay := graph.NewOverlay()
				if err := overlay.ApplyState(item.State); err != nil {
					r.logger.Warn("Failed to restore overlay state", zap.Error(err))
					continue
				}
				overlay.Version = item.Version
				projection.Overlay = overlay
			case entityVersion:
				var item versionItem
				if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
					continue
				}
				projection.Version = item.Version
			}
		}
	}
	return projection, nil
}

// GetNode retrieves a single committed node.
func (r *GraphRepository) GetNode(ctx context.Context, scopeID, nodeID string) (*graph.Node, error) {
	raw, err := r.getItem(ctx, scopePK(scopeID), nodeSK(nodeID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, pkgerrors.NewNotFoundError("node")
	}
	var item nodeItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal node", err)
	}
	return nodeFromItem(item), nil
}

// GetEdge retrieves a single committed edge.
func (r *GraphRepository) GetEdge(ctx context.Context, scopeID, edgeID string) (*graph.Edge, error) {
	raw, err := r.getItem(ctx, scopePK(scopeID), edgeSK(edgeID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, pkgerrors.NewNotFoundError("edge")
	}
	var item edgeItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal edge", err)
	}
	return edgeFromItem(item), nil
}

// EdgesTouching returns the committed edges incident to a node, filtered
// server-side on either endpoint.
func (r *GraphRepository) EdgesTouching(ctx context.Context, scopeID, nodeID string) ([]*graph.Edge, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("PK").Equal(expression.Value(scopePK(scopeID))).
			And(expression.Key("SK").BeginsWith("EDGE#"))).
		WithFilter(expression.Name("FromID").Equal(expression.Value(nodeID)).
			Or(expression.Name("ToID").Equal(expression.Value(nodeID)))).
		Build()
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("build edge filter", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	edges := []*graph.Edge{}
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("query edges", err)
		}
		for _, raw := range page.Items {
			var item edgeItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				r.logger.Warn("Failed to unmarshal edge item", zap.Error(err))
				continue
			}
			edges = append(edges, edgeFromItem(item))
		}
	}
	return edges, nil
}

// GetOverlay returns the committed overlay for a scope. A scope never written
// has an empty overlay at version zero.
func (r *GraphRepository) GetOverlay(ctx context.Context, scopeID string) (*graph.Overlay, error) {
	raw, err := r.getItem(ctx, scopePK(scopeID), skOverlay)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return graph.NewOverlay(), nil
	}
	var item overlayItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal overlay", err)
	}
	overlay := graph.NewOverlay()
	if err := overlay.ApplyState(item.State); err != nil {
		return nil, pkgerrors.NewDatabaseError("restore overlay", err)
	}
	overlay.Version = item.Version
	return overlay, nil
}

func (r *GraphRepository) getItem(ctx context.Context, pk, sk string) (map[string]types.AttributeValue, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get item", err)
	}
	if result.Item == nil {
		return nil, nil
	}
	return result.Item, nil
}

func itemEntityType(raw map[string]types.AttributeValue) string {
	if av, ok := raw["EntityType"].(*types.AttributeValueMemberS); ok {
		return av.Value
	}
	return ""
}

func nodeFromItem(item nodeItem) *graph.Node {
	node := &graph.Node{
		ID:       item.NodeID,
		Type:     graph.NodeType(item.NodeType),
		Label:    item.Label,
		Status:   graph.NodeStatus(item.Status),
		Metadata: item.Metadata,
	}
	if parsed, err := time.Parse(time.RFC3339Nano, item.CreatedAt); err == nil {
		node.CreatedAt = parsed
	}
	return node
}

func edgeFromItem(item edgeItem) *graph.Edge {
	return &graph.Edge{
		ID:         item.EdgeID,
		FromID:     item.FromID,
		ToID:       item.ToID,
		Type:       graph.EdgeType(item.EdgeType),
		Origin:     graph.EdgeOrigin(item.Origin),
		Confidence: item.Confidence,
		Status:     graph.NodeStatus(item.Status),
		Metadata:   item.Metadata,
	}
}

func nodeToItem(scopeID string, node *graph.Node) nodeItem {
	return nodeItem{
		PK:         scopePK(scopeID),
		SK:         nodeSK(node.ID),
		EntityType: entityNode,
		NodeID:     node.ID,
		NodeType:   string(node.Type),
		Label:      node.Label,
		Status:     string(node.Status),
		Metadata:   node.Metadata,
		CreatedAt:  node.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func edgeToItem(scopeID string, edge *graph.Edge) edgeItem {
	return edgeItem{
		PK:         scopePK(scopeID),
		SK:         edgeSK(edge.ID),
		EntityType: entityEdge,
		EdgeID:     edge.ID,
		FromID:     edge.FromID,
		ToID:       edge.ToID,
		EdgeType:   string(edge.Type),
		Origin:     string(edge.Origin),
		Confidence: edge.Confidence,
		Status:     string(edge.Status),
		Metadata:   edge.Metadata,
	}
}
