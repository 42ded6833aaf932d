package events

import (
	"context"
	"fmt"

	"github.com/karthik-ak-dev/pulse-ops/internal/queue"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

// Relay moves envelope bodies between the engine and the notify worker.
// SQSRelay backs it in deployments; MemoryRelay backs it in development
// and tests.
type Relay interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is one received relay message.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// RelaySink adapts a Relay to the engine's publisher sink, so queue events
// flow to the notification pipeline like any other subscriber.
type RelaySink struct {
	relay  Relay
	logger *logging.Logger
}

// NewRelaySink creates the sink.
func NewRelaySink(relay Relay, logger *logging.Logger) *RelaySink {
	if relay == nil {
		panic("events: relay cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RelaySink{
		relay:  relay,
		logger: logger.Component("relay_sink"),
	}
}

var _ queue.Sink = (*RelaySink)(nil)

// Name identifies the sink in drop metrics.
func (s *RelaySink) Name() string { return "relay" }

// Deliver envelopes the event and hands it to the relay.
func (s *RelaySink) Deliver(ctx context.Context, evt *queue.QueueEvent) error {
	env, err := NewEnvelope(evt)
	if err != nil {
		return err
	}
	body, err := env.Encode()
	if err != nil {
		return err
	}
	if err := s.relay.Send(ctx, body); err != nil {
		return fmt.Errorf("events: relay send %s: %w", env.EnvelopeID, err)
	}
	return nil
}
