package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "mindscape/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	lockDuration  = 30 * time.Second
	retryInterval = 50 * time.Millisecond
)

// WriterLock serializes workspace writers across processes using DynamoDB
// conditional writes. The lock item carries a TTL so a crashed holder's lock
// expires instead of wedging the workspace.
type WriterLock struct {
	client    *dynamodb.Client
	tableName string
	ownerID   string
	logger    *zap.Logger
}

// lockRecord is the DynamoDB item for a held workspace lock
type lockRecord struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	LockID    string `dynamodbav:"LockID"`
	Owner     string `dynamodbav:"Owner"`
	ExpiresAt string `dynamodbav:"ExpiresAt"`
	TTL       int64  `dynamodbav:"TTL"`
}

// NewWriterLock creates a DynamoDB-backed workspace locker
func NewWriterLock(client *dynamodb.Client, tableName string, logger *zap.Logger) *WriterLock {
	return &WriterLock{
		client:    client,
		tableName: tableName,
		ownerID:   uuid.New().String(),
		logger:    logger,
	}
}

// Acquire blocks until the workspace write lock is held or ctx ends. The
// returned release function deletes the lock item; releasing a lock that
// already expired is a no-op.
func (l *WriterLock) Acquire(ctx context.Context, workspaceID string) (func(), error) {
	lockID := fmt.Sprintf("%s_%d", l.ownerID, time.Now().UnixNano())
	interval := retryInterval

	for {
		acquired, err := l.tryAcquire(ctx, workspaceID, lockID)
		if err != nil {
			return nil, err
		}
		if acquired {
			return func() { l.release(workspaceID, lockID) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
			if interval < time.Second {
				interval = time.Duration(float64(interval) * 1.5)
			}
		}
	}
}

func (l *WriterLock) tryAcquire(ctx context.Context, workspaceID, lockID string) (bool, error) {
	now := time.Now()
	expiresAt := now.Add(lockDuration)

	item := map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: scopePK(workspaceID)},
		"SK":        &types.AttributeValueMemberS{Value: skLock},
		"LockID":    &types.AttributeValueMemberS{Value: lockID},
		"Owner":     &types.AttributeValueMemberS{Value: l.ownerID},
		"ExpiresAt": &types.AttributeValueMemberS{Value: expiresAt.Format(time.RFC3339)},
		"TTL":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expiresAt.Unix())},
	}

	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR ExpiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return false, nil
		}
		return false, pkgerrors.NewDatabaseError("acquire writer lock", err)
	}
	return true, nil
}

// release deletes the lock item if this holder still owns it. It runs with a
// fresh context so a canceled request still releases its lock.
func (l *WriterLock) release(workspaceID, lockID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := l.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: scopePK(workspaceID)},
			"SK": &types.AttributeValueMemberS{Value: skLock},
		},
		ConditionExpression: aws.String("LockID = :lockId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lockId": &types.AttributeValueMemberS{Value: lockID},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			// Lock expired and was taken over; nothing to release.
			return
		}
		l.logger.Warn("Failed to release writer lock",
			zap.String("workspaceID", workspaceID),
			zap.Error(err),
		)
	}
}
