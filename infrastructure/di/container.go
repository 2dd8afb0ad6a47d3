package di

import (
	"context"
	"fmt"

	appchangelog "mindscape/application/changelog"
	"mindscape/application/evidence"
	"mindscape/application/graphstore"
	applens "mindscape/application/lens"
	"mindscape/application/ports"
	"mindscape/infrastructure/concurrency"
	"mindscape/infrastructure/config"
	"mindscape/infrastructure/messaging/eventbridge"
	dynamopersistence "mindscape/infrastructure/persistence/dynamodb"
	"mindscape/infrastructure/persistence/memory"
	"mindscape/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config           *config.Config
	Logger           *zap.Logger
	GraphRepo        ports.GraphRepository
	ChangelogRepo    ports.ChangelogRepository
	LensRepo         ports.LensRepository
	Receipts         ports.ReceiptSource
	Locker           ports.WorkspaceLocker
	Publisher        ports.EventPublisher
	Metrics          *observability.Metrics
	ChangelogService *appchangelog.Service
	GraphService     *graphstore.Service
	LensService      *applens.Service
	EvidenceService  *evidence.Service
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// InitializeContainer wires all dependencies for the configured store
// backend. The memory backend needs no AWS access at all.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	switch cfg.StoreBackend {
	case config.BackendMemory:
		store := memory.NewStore()
		c.GraphRepo = store
		c.ChangelogRepo = store
		c.LensRepo = store
		c.Receipts = store
		c.Locker = concurrency.NewKeyedLocker()
		c.Publisher = eventbridge.NewNoopPublisher()
		c.Metrics = observability.NewNoopMetrics()

	case config.BackendDynamoDB:
		awsCfg, err := ProvideAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		dynamoClient := ProvideDynamoDBClient(awsCfg)

		c.GraphRepo = dynamopersistence.NewGraphRepository(dynamoClient, cfg.TableName, logger)
		c.ChangelogRepo = dynamopersistence.NewChangelogRepository(dynamoClient, cfg.TableName, logger)
		lensRepo := dynamopersistence.NewLensRepository(dynamoClient, cfg.TableName, logger)
		c.LensRepo = lensRepo
		c.Receipts = lensRepo
		c.Locker = dynamopersistence.NewWriterLock(dynamoClient, cfg.TableName, logger)

		if cfg.EnableEvents {
			c.Publisher = eventbridge.NewPublisher(ProvideEventBridgeClient(awsCfg), cfg.EventBusName, logger)
		} else {
			c.Publisher = eventbridge.NewNoopPublisher()
		}

		if cfg.EnableMetrics {
			namespace := fmt.Sprintf("%s/%s", cfg.MetricsPrefix, cfg.Environment)
			c.Metrics = observability.NewMetrics(namespace, ProvideCloudWatchClient(awsCfg), logger)
		} else {
			c.Metrics = observability.NewNoopMetrics()
		}

	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}

	c.ChangelogService = appchangelog.NewService(c.ChangelogRepo, c.GraphRepo, c.Locker, c.Publisher, c.Metrics, logger)
	c.GraphService = graphstore.NewService(c.GraphRepo, c.ChangelogService, logger)
	c.LensService = applens.NewService(c.LensRepo, c.Publisher, logger)
	c.EvidenceService = evidence.NewService(c.LensRepo, c.Receipts, logger)

	return c, nil
}
