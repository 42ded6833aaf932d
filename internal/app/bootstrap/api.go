package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/karthik-ak-dev/pulse-ops/internal/api/router"
	"github.com/karthik-ak-dev/pulse-ops/internal/archive"
	"github.com/karthik-ak-dev/pulse-ops/internal/billing"
	"github.com/karthik-ak-dev/pulse-ops/internal/clinic"
	appconfig "github.com/karthik-ak-dev/pulse-ops/internal/config"
	"github.com/karthik-ak-dev/pulse-ops/internal/events"
	"github.com/karthik-ak-dev/pulse-ops/internal/notify"
	"github.com/karthik-ak-dev/pulse-ops/internal/observability/metrics"
	"github.com/karthik-ak-dev/pulse-ops/internal/queue"
	"github.com/karthik-ak-dev/pulse-ops/internal/realtime"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

// APIRuntime is the assembled serving stack. The HTTP server and the
// Lambda entrypoint both run the same Handler.
type APIRuntime struct {
	Handler http.Handler
	Engine  *queue.Controller
	Hub     *realtime.Hub

	// Consumer is set only when the in-memory relay is active; the
	// caller starts it and cancels its context on shutdown.
	Consumer *notify.Consumer

	// Redis is nil when no Redis address is configured. The caller
	// closes it on shutdown.
	Redis *redis.Client
}

// BuildAPI assembles the queue engine, its collaborators and the HTTP
// router from configuration.
func BuildAPI(ctx context.Context, awsCfg aws.Config, cfg *appconfig.Config, logger *logging.Logger) (*APIRuntime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	store := queue.NewDynamoStore(dynamoClient, cfg.QueuesTable, cfg.TokensTable, logger)

	var gate billing.Gate = billing.AllowAll{}
	if cfg.BillingEnforced {
		if cfg.SubscriptionsTable == "" {
			return nil, fmt.Errorf("bootstrap: billing enforcement requires SUBSCRIPTIONS_TABLE")
		}
		gate = billing.NewSubscriptionGate(dynamoClient, cfg.SubscriptionsTable, logger)
		logger.Info("billing gate enabled", "table", cfg.SubscriptionsTable)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	clinicStore := BuildClinicStore(redisClient)

	hub := realtime.NewHub(m, logger)
	sinks := []queue.Sink{hub}

	var consumer *notify.Consumer
	switch {
	case cfg.UseMemoryRelay:
		// Single-binary mode: events loop back through an in-process
		// consumer instead of SQS, so notifications work without AWS.
		relay := events.NewMemoryRelay(0)
		sinks = append(sinks, events.NewRelaySink(relay, logger))
		consumer = notify.NewConsumer(relay, buildDispatcher(awsCfg, cfg, store, clinicStore, logger), logger,
			notify.WithConsumerCount(1),
			notify.WithReceiveWaitSeconds(1),
		)
		logger.Info("notification relay selected", "mode", "memory")
	case cfg.NotificationQueueURL != "":
		relay := events.NewSQSRelay(sqs.NewFromConfig(awsCfg), cfg.NotificationQueueURL)
		sinks = append(sinks, events.NewRelaySink(relay, logger))
		logger.Info("notification relay selected", "mode", "sqs", "queue_url", cfg.NotificationQueueURL)
	default:
		logger.Warn("no notification relay configured, queue events reach websocket subscribers only")
	}

	publisher := queue.NewFanoutPublisher(logger, m, sinks...)

	engineCfg := queue.ControllerConfig{
		Store:     store,
		Billing:   gate,
		Publisher: publisher,
		Archiver:  archive.NewStore(s3.NewFromConfig(awsCfg), cfg.ArchiveBucket, logger),
		Metrics:   m,
		Logger:    logger,
		Defaults: queue.Defaults{
			Timezone:             cfg.ClinicTimezone,
			OpensAt:              cfg.QueueOpensAt,
			ClosesAt:             cfg.QueueClosesAt,
			LunchStart:           cfg.LunchBreakStart,
			LunchEnd:             cfg.LunchBreakEnd,
			ConsultationDuration: cfg.ConsultationDuration,
			MaxTokens:            cfg.DefaultMaxTokens,
		},
	}
	if snapCache := BuildSnapshotCache(redisClient, cfg.SnapshotCacheTTL, logger); snapCache != nil {
		engineCfg.Cache = snapCache
	}
	engine := queue.NewController(engineCfg)

	handler := router.New(&router.Config{
		Logger:             logger,
		QueueHandler:       queue.NewHandler(engine, logger),
		ClinicHandler:      clinic.NewHandler(clinicStore, engine, logger),
		WSHandler:          realtime.NewWSHandler(hub, store, logger),
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AuthSecret:         cfg.AuthJWTSecret,
		InternalToken:      cfg.InternalAPIToken,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	return &APIRuntime{
		Handler:  handler,
		Engine:   engine,
		Hub:      hub,
		Consumer: consumer,
		Redis:    redisClient,
	}, nil
}

// buildDispatcher wires the notification dispatcher with whichever
// senders configuration enables.
func buildDispatcher(awsCfg aws.Config, cfg *appconfig.Config, store notify.QueueReader, profiles notify.ClinicDirectory, logger *logging.Logger) *notify.Dispatcher {
	whatsapp, waProvider, waReason := BuildWhatsAppSender(cfg, logger)
	if waReason != "" {
		logger.Info("whatsapp sender fallback", "provider", waProvider, "reason", waReason)
	} else {
		logger.Info("whatsapp sender selected", "provider", waProvider)
	}

	email, emailProvider, emailReason := BuildEmailSender(awsCfg, cfg, logger)
	if emailReason != "" {
		logger.Info("email sender fallback", "provider", emailProvider, "reason", emailReason)
	} else {
		logger.Info("email sender selected", "provider", emailProvider)
	}

	return notify.NewDispatcher(store, profiles, whatsapp, email, logger)
}
