package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/karthik-ak-dev/pulse-ops/internal/events"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

const (
	// consumerName keys this consumer's rows in the processed ledger.
	consumerName = "notify"

	defaultConsumerCount = 2
	defaultWaitSeconds   = 20
	defaultBatchSize     = 10
	maxWaitSeconds       = 20
	maxBatchSize         = 10
	deleteTimeout        = 5 * time.Second
)

// processedLedger dedupes envelope deliveries across consumer restarts.
type processedLedger interface {
	AlreadyProcessed(ctx context.Context, consumer, envelopeID string) (bool, error)
	MarkProcessed(ctx context.Context, consumer, envelopeID string) (bool, error)
}

type consumerConfig struct {
	workers   int
	waitSecs  int
	batchSize int
	processed processedLedger
}

// ConsumerOption customizes consumer behavior.
type ConsumerOption func(*consumerConfig)

// WithConsumerCount sets the number of concurrent poll goroutines.
func WithConsumerCount(count int) ConsumerOption {
	return func(cfg *consumerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) ConsumerOption {
	return func(cfg *consumerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.waitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) ConsumerOption {
	return func(cfg *consumerConfig) {
		if size <= 0 {
			return
		}
		if size > maxBatchSize {
			size = maxBatchSize
		}
		cfg.batchSize = size
	}
}

// WithProcessedLedger enables cross-delivery dedupe.
func WithProcessedLedger(ledger processedLedger) ConsumerOption {
	return func(cfg *consumerConfig) {
		cfg.processed = ledger
	}
}

// Consumer polls the event relay and feeds envelopes to the dispatcher.
// Failed dispatches are left on the relay so the visibility timeout
// drives the retry.
type Consumer struct {
	relay      events.Relay
	dispatcher *Dispatcher
	logger     *logging.Logger

	cfg consumerConfig
	wg  sync.WaitGroup
}

// NewConsumer creates a notification consumer.
func NewConsumer(relay events.Relay, dispatcher *Dispatcher, logger *logging.Logger, opts ...ConsumerOption) *Consumer {
	if relay == nil {
		panic("notify: relay cannot be nil")
	}
	if dispatcher == nil {
		panic("notify: dispatcher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := consumerConfig{
		workers:   defaultConsumerCount,
		waitSecs:  defaultWaitSeconds,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return &Consumer{
		relay:      relay,
		dispatcher: dispatcher,
		logger:     logger.Component("notify_consumer"),
		cfg:        cfg,
	}
}

// Start launches the poll goroutines. They exit when ctx is canceled.
func (c *Consumer) Start(ctx context.Context) {
	for i := 0; i < c.cfg.workers; i++ {
		c.wg.Add(1)
		go c.run(ctx, i+1)
	}
}

// Wait blocks until all poll goroutines exit.
func (c *Consumer) Wait() {
	c.wg.Wait()
}

func (c *Consumer) run(ctx context.Context, workerID int) {
	defer c.wg.Done()
	c.logger.Debug("notify consumer started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("notify consumer stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := c.relay.Receive(ctx, c.cfg.batchSize, c.cfg.waitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Error("failed to receive notification events", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			c.handleMessage(ctx, msg)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg events.Message) {
	env, err := events.DecodeEnvelope(msg.Body)
	if err != nil {
		// Undecodable bodies can never succeed; drop them.
		c.logger.Error("failed to decode event envelope", "error", err, "msg_id", msg.ID)
		c.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	if c.cfg.processed != nil {
		already, err := c.cfg.processed.AlreadyProcessed(ctx, consumerName, env.EnvelopeID)
		if err != nil {
			c.logger.Warn("failed to check envelope dedupe", "error", err, "envelope_id", env.EnvelopeID)
		} else if already {
			c.logger.Info("skipping duplicate envelope", "envelope_id", env.EnvelopeID, "event_type", env.EventType)
			c.deleteMessage(context.Background(), msg.ReceiptHandle)
			return
		}
	}

	evt, err := env.Event()
	if err != nil {
		c.logger.Error("failed to unpack event envelope", "error", err, "envelope_id", env.EnvelopeID)
		c.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	if err := c.dispatcher.Dispatch(ctx, evt); err != nil {
		// Leave the message on the relay; redelivery retries it.
		c.logger.Error("notification dispatch failed",
			"error", err,
			"envelope_id", env.EnvelopeID,
			"event_type", env.EventType,
			"queue_id", env.QueueID,
		)
		return
	}

	if c.cfg.processed != nil {
		if _, err := c.cfg.processed.MarkProcessed(ctx, consumerName, env.EnvelopeID); err != nil {
			c.logger.Warn("failed to mark envelope processed", "error", err, "envelope_id", env.EnvelopeID)
		}
	}

	c.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (c *Consumer) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeout)
	defer cancel()

	if err := c.relay.Delete(deleteCtx, receiptHandle); err != nil {
		c.logger.Error("failed to delete relay message", "error", err)
	}
}
