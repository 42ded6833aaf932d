package queue

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Snapshot returns the dashboard view of one queue: current consultation,
// waiting line in call order with estimates, and status tallies. Reads are
// served from cache when one is wired and never take the queue lock.
func (c *Controller) Snapshot(ctx context.Context, queueID string) (snap *QueueSnapshot, err error) {
	ctx, span := tracer.Start(ctx, "queue.snapshot")
	defer span.End()
	span.SetAttributes(attribute.String("pulseops.queue_id", queueID))
	defer c.instrument("snapshot", &err)()
	defer recordSpanErr(span, &err)

	snap, err = c.snapshotFor(ctx, queueID, false)
	return snap, err
}

// TokenPosition returns the patient view of one token: its place in line,
// how many consultations sit ahead of it, and the wait estimate. Tokens
// past waiting report a zero position.
func (c *Controller) TokenPosition(ctx context.Context, tokenID string) (pos *TokenPosition, err error) {
	ctx, span := tracer.Start(ctx, "queue.token_position")
	defer span.End()
	span.SetAttributes(attribute.String("pulseops.token_id", tokenID))
	defer c.instrument("token_position", &err)()
	defer recordSpanErr(span, &err)

	t, err := c.store.GetToken(ctx, tokenID)
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	if err = guardClinic(ctx, t.ClinicID, ErrTokenNotFound, "token"); err != nil {
		return nil, err
	}

	snap, err := c.snapshotFor(ctx, t.QueueID, false)
	if err != nil {
		return nil, err
	}

	pos = &TokenPosition{Token: t, ServingNumber: snap.ServingNumber}
	if t.Status == TokenCurrent {
		pos.EstimatedAt = snap.GeneratedAt
		return pos, nil
	}
	if !t.Status.Waiting() {
		return pos, nil
	}

	if !locateInLine(pos, snap) {
		// A cached snapshot can predate this token. Rebuild from the store.
		snap, err = c.snapshotFor(ctx, t.QueueID, true)
		if err != nil {
			return nil, err
		}
		locateInLine(pos, snap)
		pos.ServingNumber = snap.ServingNumber
	}
	return pos, nil
}

// ListOpenQueues returns the clinic's open queues, most recent service
// date first.
func (c *Controller) ListOpenQueues(ctx context.Context, clinicID string) (queues []*Queue, err error) {
	ctx, span := tracer.Start(ctx, "queue.list_open")
	defer span.End()
	span.SetAttributes(attribute.String("pulseops.clinic_id", clinicID))
	defer c.instrument("list_open_queues", &err)()
	defer recordSpanErr(span, &err)

	if clinicID == "" {
		return nil, Invalid("clinicId required")
	}
	if err = guardClinic(ctx, clinicID, ErrQueueNotFound, "clinic"); err != nil {
		return nil, err
	}
	queues, err = c.store.ListOpenQueuesByClinic(ctx, clinicID)
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	return queues, nil
}

// snapshotFor serves a snapshot from cache unless told to skip it, falling
// back to a fresh build from the store.
func (c *Controller) snapshotFor(ctx context.Context, queueID string, skipCache bool) (*QueueSnapshot, error) {
	if c.cache != nil && !skipCache {
		if cached, ok := c.cache.Get(ctx, queueID); ok && cached.Queue != nil {
			if err := guardClinic(ctx, cached.Queue.ClinicID, ErrQueueNotFound, "queue"); err != nil {
				return nil, err
			}
			return cached, nil
		}
	}

	q, err := c.loadQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	tokens, err := c.store.ListQueueTokens(ctx, queueID)
	if err != nil {
		return nil, classifyStoreErr(err)
	}

	snap := c.buildSnapshot(q, tokens, c.now())
	if c.cache != nil {
		c.cache.Set(ctx, snap)
	}
	return snap, nil
}

// buildSnapshot assembles the view. An in-progress consultation counts as
// one slot ahead of every waiting token.
func (c *Controller) buildSnapshot(q *Queue, tokens []*Token, now time.Time) *QueueSnapshot {
	counts := make(map[TokenStatus]int, len(tokens))
	var current *Token
	for _, t := range tokens {
		counts[t.Status]++
		if q.CurrentTokenID != "" && t.TokenID == q.CurrentTokenID {
			current = t
		}
	}

	ordered := OrderWaiting(tokens)
	offset := 0
	if current != nil {
		offset = 1
	}
	waiting := make([]WaitingToken, 0, len(ordered))
	for i, t := range ordered {
		waiting = append(waiting, WaitingToken{
			Token:       t,
			Position:    i + 1,
			EstimatedAt: c.estimator.Estimate(q, i+offset, now),
		})
	}

	serving := 0
	if current != nil {
		serving = current.TokenNumber
	}
	return &QueueSnapshot{
		Queue:         q,
		CurrentToken:  current,
		Waiting:       waiting,
		StatusCounts:  counts,
		ServingNumber: serving,
		GeneratedAt:   now,
	}
}

// locateInLine fills position fields from the snapshot's waiting line,
// reporting whether the token was found.
func locateInLine(pos *TokenPosition, snap *QueueSnapshot) bool {
	for _, w := range snap.Waiting {
		if w.Token.TokenID != pos.Token.TokenID {
			continue
		}
		pos.Position = w.Position
		pos.EstimatedAt = w.EstimatedAt
		pos.Ahead = w.Position - 1
		if snap.CurrentToken != nil {
			pos.Ahead++
		}
		return true
	}
	return false
}
