package queue

import (
	"context"
	"sync"

	"github.com/karthik-ak-dev/pulse-ops/internal/observability/metrics"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

// Sink receives engine events. Deliver runs on the publishing operation's
// goroutine and must not block: sinks with slow backends buffer internally
// and drop rather than stall the queue.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event *QueueEvent) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, event *QueueEvent) error
}

func (s SinkFunc) Name() string { return s.SinkName }

func (s SinkFunc) Deliver(ctx context.Context, event *QueueEvent) error {
	return s.Fn(ctx, event)
}

// Publisher fans engine events out to interested parties. Delivery is
// best-effort: failures are counted and logged, never surfaced to the
// operation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, event *QueueEvent)
}

// FanoutPublisher delivers each event to an ordered list of sinks.
type FanoutPublisher struct {
	sinks   []Sink
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewFanoutPublisher builds a publisher over the given sinks.
func NewFanoutPublisher(logger *logging.Logger, m *metrics.Metrics, sinks ...Sink) *FanoutPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &FanoutPublisher{
		sinks:   sinks,
		logger:  logger.Component("publisher"),
		metrics: m,
	}
}

// Publish delivers the event to every sink in order.
func (p *FanoutPublisher) Publish(ctx context.Context, event *QueueEvent) {
	if event == nil {
		return
	}
	p.metrics.EventPublished(string(event.EventType))
	for _, sink := range p.sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			p.metrics.EventDropped(sink.Name())
			p.logger.Warn("event delivery failed",
				"sink", sink.Name(),
				"event_id", event.EventID,
				"event_type", event.EventType,
				"queue_id", event.QueueID,
				"error", err,
			)
		}
	}
	p.logger.Debug("event published",
		"event_id", event.EventID,
		"event_type", event.EventType,
		"queue_id", event.QueueID,
		"sequence", event.Sequence,
	)
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *QueueEvent) {}

// CollectingSink retains delivered events for inspection, serving local
// development and tests the way an in-memory queue stands in for SQS.
type CollectingSink struct {
	mu     sync.Mutex
	events []*QueueEvent
}

func (c *CollectingSink) Name() string { return "collect" }

func (c *CollectingSink) Deliver(_ context.Context, event *QueueEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

// Events returns the delivered events in order.
func (c *CollectingSink) Events() []*QueueEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*QueueEvent, len(c.events))
	copy(out, c.events)
	return out
}
