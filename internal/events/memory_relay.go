package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MemoryRelay is a Relay backed by an in-memory buffered channel. It keeps
// single-process deployments and tests off SQS.
type MemoryRelay struct {
	ch chan Message
}

// NewMemoryRelay creates a MemoryRelay with the provided buffer capacity.
func NewMemoryRelay(buffer int) *MemoryRelay {
	if buffer <= 0 {
		buffer = 128
	}
	return &MemoryRelay{
		ch: make(chan Message, buffer),
	}
}

var _ Relay = (*MemoryRelay)(nil)

// Send enqueues a body or blocks until ctx is done.
func (r *MemoryRelay) Send(ctx context.Context, body string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	msg := Message{
		ID:            uuid.NewString(),
		Body:          body,
		ReceiptHandle: uuid.NewString(),
	}

	select {
	case r.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a message is available, ctx is done, or waitSeconds
// elapses.
func (r *MemoryRelay) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxMessages <= 0 {
		maxMessages = 1
	}

	var timer *time.Timer
	if waitSeconds > 0 {
		timer = time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
	}

	for {
		if timer == nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case msg := <-r.ch:
				return r.collect(ctx, msg, maxMessages), nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case msg := <-r.ch:
			return r.collect(ctx, msg, maxMessages), nil
		}
	}
}

// Delete is a no-op for the in-memory relay.
func (r *MemoryRelay) Delete(_ context.Context, _ string) error {
	return nil
}

func (r *MemoryRelay) collect(ctx context.Context, first Message, max int) []Message {
	if ctx == nil {
		ctx = context.Background()
	}
	messages := make([]Message, 0, max)
	messages = append(messages, first)

	for len(messages) < max {
		select {
		case <-ctx.Done():
			return messages
		case msg := <-r.ch:
			messages = append(messages, msg)
		default:
			return messages
		}
	}
	return messages
}
