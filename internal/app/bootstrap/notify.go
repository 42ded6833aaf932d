package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/karthik-ak-dev/pulse-ops/internal/config"
	"github.com/karthik-ak-dev/pulse-ops/internal/events"
	"github.com/karthik-ak-dev/pulse-ops/internal/notify"
	"github.com/karthik-ak-dev/pulse-ops/internal/queue"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

// NotifyRuntime is the assembled notification worker.
type NotifyRuntime struct {
	Consumer *notify.Consumer

	// Redis is nil when no Redis address is configured. The caller
	// closes it on shutdown.
	Redis *redis.Client
}

// BuildNotifyWorker assembles the SQS-driven notification consumer. The
// worker only makes sense against a real queue; single-binary setups use
// the in-memory relay inside BuildAPI instead.
func BuildNotifyWorker(ctx context.Context, awsCfg aws.Config, cfg *appconfig.Config, logger *logging.Logger) (*NotifyRuntime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.NotificationQueueURL == "" {
		return nil, fmt.Errorf("bootstrap: notify worker requires NOTIFICATION_QUEUE_URL")
	}

	relay := events.NewSQSRelay(sqs.NewFromConfig(awsCfg), cfg.NotificationQueueURL)

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	store := queue.NewDynamoStore(dynamoClient, cfg.QueuesTable, cfg.TokensTable, logger)

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	clinicStore := BuildClinicStore(redisClient)

	dispatcher := buildDispatcher(awsCfg, cfg, store, clinicStore, logger)

	opts := []notify.ConsumerOption{notify.WithConsumerCount(cfg.WorkerCount)}
	if cfg.ProcessedEventsTable != "" {
		opts = append(opts, notify.WithProcessedLedger(events.NewProcessedStore(dynamoClient, cfg.ProcessedEventsTable)))
		logger.Info("envelope dedupe enabled", "table", cfg.ProcessedEventsTable)
	} else {
		logger.Warn("envelope dedupe disabled, redelivered events may notify patients twice")
	}

	return &NotifyRuntime{
		Consumer: notify.NewConsumer(relay, dispatcher, logger, opts...),
		Redis:    redisClient,
	}, nil
}
