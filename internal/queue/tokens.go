package queue

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// CreateToken issues the next number in the queue. The capacity policy and
// the clinic's billing gate both have to admit the booking; the token and
// the queue's high-water mark land in one atomic write.
func (c *Controller) CreateToken(ctx context.Context, in CreateTokenInput) (t *Token, err error) {
	ctx, span := tracer.Start(ctx, "queue.create_token")
	defer span.End()
	span.SetAttributes(attribute.String("pulseops.queue_id", in.QueueID))
	defer c.instrument("create_token", &err)()
	defer recordSpanErr(span, &err)

	if err = in.Validate(); err != nil {
		return nil, err
	}

	unlock := c.locks.lock(in.QueueID)
	defer unlock()

	q, err := c.loadQueue(ctx, in.QueueID)
	if err != nil {
		return nil, err
	}
	if in.ClinicID != "" && in.ClinicID != q.ClinicID {
		return nil, NotFound(ErrQueueNotFound, "queue not found")
	}

	now := c.now()
	priority := in.ConsultationType.Priority()
	if d := c.capacity.Admit(q, q.LastTokenNumber, priority, now); d.Denied() {
		return nil, d.Err()
	}
	if gateErr := c.billing.CanBookToken(ctx, q.ClinicID, q.LastTokenNumber); gateErr != nil {
		err = billingDenied(gateErr)
		return nil, err
	}

	t = &Token{
		TokenID:          NewTokenID(),
		QueueID:          q.QueueID,
		ClinicID:         q.ClinicID,
		PatientID:        in.PatientID,
		PatientName:      in.PatientName,
		PatientPhone:     in.PatientPhone,
		TokenNumber:      NextTokenNumber(q),
		Status:           TokenPending,
		Priority:         priority,
		ConsultationType: in.ConsultationType,
		PaymentStatus:    PaymentPending,
		IssuedAt:         now,
		UpdatedAt:        now,
	}
	q.LastTokenNumber = t.TokenNumber
	q.UpdatedAt = now
	event := c.nextEvent(q, EventTokenCreated, now).forToken(t).
		with("priority", string(priority)).
		with("consultationType", string(in.ConsultationType))

	if err = c.store.IssueToken(ctx, q, t); err != nil {
		return nil, classifyStoreErr(err)
	}
	c.invalidate(ctx, q.QueueID)
	c.publish(ctx, event)
	c.metrics.TokenIssued(string(priority))
	c.logger.Info("token issued",
		"queue_id", q.QueueID,
		"token_id", t.TokenID,
		"token_number", t.TokenNumber,
		"priority", priority,
	)
	return t, nil
}

// ConfirmToken moves a PENDING token to CONFIRMED, making it callable.
func (c *Controller) ConfirmToken(ctx context.Context, tokenID string) (t *Token, err error) {
	ctx, span := tracer.Start(ctx, "queue.confirm_token")
	defer span.End()
	span.SetAttributes(attribute.String("pulseops.token_id", tokenID))
	defer c.instrument("confirm_token", &err)()
	defer recordSpanErr(span, &err)

	t, err = c.withToken(ctx, tokenID, func(q *Queue, t *Token, now time.Time) ([]*QueueEvent, error) {
		if !CanTokenTransition(t.Status, TokenConfirmed) {
			return nil, TokenTransitionErr(t.Status, TokenConfirmed)
		}
		t.Status = TokenConfirmed
		t.ConfirmedAt = &now
		return []*QueueEvent{c.nextEvent(q, EventTokenConfirmed, now).forToken(t)}, nil
	})
	return t, err
}

// MarkArrived records that a confirmed patient checked in at the clinic.
func (c *Controller) MarkArrived(ctx context.Context, tokenID string) (t *Token, err error) {
	ctx, span := tracer.Start(ctx, "queue.mark_arrived")
	defer span.End()
	span.SetAttributes(attribute.String("pulseops.token_id", tokenID))
	defer c.instrument("mark_arrived", &err)()
	defer recordSpanErr(span, &err)

	t, err = c.withToken(ctx, tokenID, func(q *Queue, t *Token, now time.Time) ([]*QueueEvent, error) {
		if !CanTokenTransition(t.Status, TokenArrived) {
			return nil, TokenTransitionErr(t.Status, TokenArrived)
		}
		t.Status = TokenArrived
		t.ArrivedAt = &now
		return []*QueueEvent{c.nextEvent(q, EventTokenArrived, now).forToken(t)}, nil
	})
	return t, err
}

// CancelToken withdraws a waiting token. A token already in consultation
// cannot be cancelled; it has to complete or skip.
func (c *Controller) CancelToken(ctx context.Context, tokenID, reason string) (t *Token, err error) {
	ctx, span := tracer.Start(ctx, "queue.cancel_token")
	defer span.End()
	span.SetAttributes(attribute.String("pulseops.token_id", tokenID))
	defer c.instrument("cancel_token", &err)()
	defer recordSpanErr(span, &err)

	if reason == "" {
		reason = "cancelled by request"
	}
	t, err = c.withToken(ctx, tokenID, func(q *Queue, t *Token, now time.Time) ([]*QueueEvent, error) {
		if t.Status == TokenCurrent {
			return nil, InProgress("token %s is in consultation; complete or skip it", t.TokenID)
		}
		if !CanTokenTransition(t.Status, TokenCancelled) {
			return nil, TokenTransitionErr(t.Status, TokenCancelled)
		}
		t.Status = TokenCancelled
		t.StatusReason = reason
		return []*QueueEvent{c.nextEvent(q, EventTokenCancelled, now).forToken(t).with("reason", reason)}, nil
	})
	return t, err
}

// MarkNoShow records that a confirmed or arrived patient never turned up
// when called for. PENDING tokens cancel instead.
func (c *Controller) MarkNoShow(ctx context.Context, tokenID, reason string) (t *Token, err error) {
	ctx, span := tracer.Start(ctx, "queue.mark_no_show")
	defer span.End()
	span.SetAttributes(attribute.String("pulseops.token_id", tokenID))
	defer c.instrument("mark_no_show", &err)()
	defer recordSpanErr(span, &err)

	if reason == "" {
		reason = "patient did not arrive"
	}
	t, err = c.withToken(ctx, tokenID, func(q *Queue, t *Token, now time.Time) ([]*QueueEvent, error) {
		if !CanTokenTransition(t.Status, TokenNoShow) {
			return nil, TokenTransitionErr(t.Status, TokenNoShow)
		}
		t.Status = TokenNoShow
		t.StatusReason = reason
		return []*QueueEvent{c.nextEvent(q, EventTokenNoShow, now).forToken(t).with("reason", reason)}, nil
	})
	return t, err
}

// CallNext promotes the first callable token to CURRENT. The queue must be
// ACTIVE and the chair empty.
func (c *Controller) CallNext(ctx context.Context, queueID string) (t *Token, err error) {
	ctx, span := tracer.Start(ctx, "queue.call_next")
	defer span.End()
	span.SetAttributes(attribute.String("pulseops.queue_id", queueID))
	defer c.instrument("call_next", &err)()
	defer recordSpanErr(span, &err)

	unlock := c.locks.lock(queueID)
	defer unlock()

	q, err := c.loadQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if q.Status != QueueActive {
		return nil, InvalidState("queue must be ACTIVE to call the next token; status is %s", q.Status)
	}
	if q.CurrentTokenID != "" {
		return nil, InProgress("token %s is already in consultation", q.CurrentTokenID)
	}

	tokens, err := c.store.ListQueueTokens(ctx, queueID)
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	t = NextCallable(tokens)
	if t == nil {
		return nil, Empty("no confirmed or arrived tokens are waiting")
	}

	now := c.now()
	t.Status = TokenCurrent
	t.CalledAt = &now
	t.UpdatedAt = now
	q.CurrentTokenID = t.TokenID
	q.UpdatedAt = now
	event := c.nextEvent(q, EventTokenCalled, now).forToken(t)

	if err = c.store.SaveTokenAndQueue(ctx, q, t); err != nil {
		return nil, classifyStoreErr(err)
	}
	c.invalidate(ctx, q.QueueID)
	c.publish(ctx, event)
	c.logger.Info("token called",
		"queue_id", q.QueueID,
		"token_id", t.TokenID,
		"token_number", t.TokenNumber,
	)
	return t, nil
}

// CompleteCurrent finishes the in-progress consultation. Allowed in any
// non-closed status so a consultation can wrap up during a pause.
func (c *Controller) CompleteCurrent(ctx context.Context, queueID string) (*Token, error) {
	return c.finishCurrent(ctx, queueID, "queue.complete_current", "complete_current",
		TokenCompleted, EventTokenCompleted, "")
}

// SkipCurrent abandons the in-progress consultation when the patient has
// wandered off. Skipped tokens do not return to the line.
func (c *Controller) SkipCurrent(ctx context.Context, queueID, reason string) (*Token, error) {
	if reason == "" {
		reason = "skipped while in consultation"
	}
	return c.finishCurrent(ctx, queueID, "queue.skip_current", "skip_current",
		TokenSkipped, EventTokenSkipped, reason)
}

func (c *Controller) finishCurrent(ctx context.Context, queueID, spanName, op string, target TokenStatus, eventType EventType, reason string) (t *Token, err error) {
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()
	span.SetAttributes(attribute.String("pulseops.queue_id", queueID))
	defer c.instrument(op, &err)()
	defer recordSpanErr(span, &err)

	unlock := c.locks.lock(queueID)
	defer unlock()

	q, err := c.loadQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if q.CurrentTokenID == "" {
		return nil, Empty("no token is in consultation")
	}

	t, err = c.store.GetToken(ctx, q.CurrentTokenID)
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	if !CanTokenTransition(t.Status, target) {
		return nil, TokenTransitionErr(t.Status, target)
	}

	now := c.now()
	t.Status = target
	t.UpdatedAt = now
	if target == TokenCompleted {
		t.CompletedAt = &now
	} else {
		t.StatusReason = reason
	}
	q.CurrentTokenID = ""
	q.UpdatedAt = now
	event := c.nextEvent(q, eventType, now).forToken(t)
	if reason != "" {
		event = event.with("reason", reason)
	}

	if err = c.store.SaveTokenAndQueue(ctx, q, t); err != nil {
		return nil, classifyStoreErr(err)
	}
	c.invalidate(ctx, q.QueueID)
	c.publish(ctx, event)
	c.logger.Info("consultation finished",
		"queue_id", q.QueueID,
		"token_id", t.TokenID,
		"token_number", t.TokenNumber,
		"status", t.Status,
	)
	return t, nil
}

// HandlePaymentResult records a payment outcome against a token. A paid
// PENDING token confirms itself; a failed or abandoned payment cancels the
// booking. Results for tokens already past PENDING only update the payment
// record. Safe to call repeatedly with the same result.
func (c *Controller) HandlePaymentResult(ctx context.Context, tokenID string, result PaymentStatus, reference string) (t *Token, err error) {
	ctx, span := tracer.Start(ctx, "queue.payment_result")
	defer span.End()
	span.SetAttributes(
		attribute.String("pulseops.token_id", tokenID),
		attribute.String("pulseops.payment_status", string(result)),
	)
	defer c.instrument("payment_result", &err)()
	defer recordSpanErr(span, &err)

	if !result.Valid() || result == PaymentPending {
		return nil, Invalid("payment result must be PAID, FAILED, REFUNDED or CANCELLED")
	}

	t, err = c.withToken(ctx, tokenID, func(q *Queue, t *Token, now time.Time) ([]*QueueEvent, error) {
		t.PaymentStatus = result
		if reference != "" {
			t.PaymentReference = reference
		}

		if t.Status != TokenPending {
			return nil, nil
		}
		switch result {
		case PaymentPaid:
			t.Status = TokenConfirmed
			t.ConfirmedAt = &now
			return []*QueueEvent{c.nextEvent(q, EventTokenConfirmed, now).forToken(t).with("via", "payment")}, nil
		case PaymentFailed, PaymentCancelled:
			reason := "payment failed"
			if result == PaymentCancelled {
				reason = "payment cancelled"
			}
			t.Status = TokenCancelled
			t.StatusReason = reason
			return []*QueueEvent{c.nextEvent(q, EventTokenCancelled, now).forToken(t).with("reason", reason)}, nil
		}
		return nil, nil
	})
	return t, err
}

// withToken runs a token mutation under its queue's lock against fresh
// state, then persists both records atomically and publishes the events.
func (c *Controller) withToken(ctx context.Context, tokenID string, fn func(q *Queue, t *Token, now time.Time) ([]*QueueEvent, error)) (*Token, error) {
	seed, err := c.store.GetToken(ctx, tokenID)
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	if err := guardClinic(ctx, seed.ClinicID, ErrTokenNotFound, "token"); err != nil {
		return nil, err
	}

	unlock := c.locks.lock(seed.QueueID)
	defer unlock()

	// Reload under the lock; the seed may be stale by now.
	t, err := c.store.GetToken(ctx, tokenID)
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	q, err := c.store.GetQueue(ctx, t.QueueID)
	if err != nil {
		return nil, classifyStoreErr(err)
	}

	now := c.now()
	events, err := fn(q, t, now)
	if err != nil {
		return nil, err
	}
	t.UpdatedAt = now
	q.UpdatedAt = now
	if err := c.store.SaveTokenAndQueue(ctx, q, t); err != nil {
		return nil, classifyStoreErr(err)
	}
	c.invalidate(ctx, q.QueueID)
	for _, event := range events {
		c.publish(ctx, event)
	}
	c.logger.Debug("token updated", "queue_id", q.QueueID, "token_id", t.TokenID, "status", t.Status)
	return t, nil
}
