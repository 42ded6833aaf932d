package queue

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/karthik-ak-dev/pulse-ops/internal/billing"
	"github.com/karthik-ak-dev/pulse-ops/internal/observability/metrics"
	"github.com/karthik-ak-dev/pulse-ops/internal/tenancy"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

var tracer = otel.Tracer("pulseops.internal.queue")

const (
	fallbackOpensAt      = "09:00"
	fallbackClosesAt     = "17:00"
	fallbackLunchStart   = "13:00"
	fallbackLunchEnd     = "14:00"
	fallbackConsultation = 15 * time.Minute
)

// Defaults seed queue settings left empty at creation time.
type Defaults struct {
	Timezone             string
	OpensAt              string
	ClosesAt             string
	LunchStart           string
	LunchEnd             string
	ConsultationDuration time.Duration
	MaxTokens            int
}

func (d Defaults) orFallbacks() Defaults {
	if d.OpensAt == "" {
		d.OpensAt = fallbackOpensAt
	}
	if d.ClosesAt == "" {
		d.ClosesAt = fallbackClosesAt
	}
	if d.LunchStart == "" {
		d.LunchStart = fallbackLunchStart
	}
	if d.LunchEnd == "" {
		d.LunchEnd = fallbackLunchEnd
	}
	if d.ConsultationDuration <= 0 {
		d.ConsultationDuration = fallbackConsultation
	}
	return d
}

// SnapshotCache serves read-side queue snapshots. Implementations must
// treat misses as cheap; the controller always falls back to the store.
type SnapshotCache interface {
	Get(ctx context.Context, queueID string) (*QueueSnapshot, bool)
	Set(ctx context.Context, snapshot *QueueSnapshot)
	Invalidate(ctx context.Context, queueID string)
}

// Archiver receives end-of-day close summaries. Archival is best-effort;
// a failure never blocks the close.
type Archiver interface {
	ArchiveCloseSummary(ctx context.Context, summary *CloseSummary) error
}

// ControllerConfig wires a Controller's collaborators. Store is required;
// everything else degrades to a safe default.
type ControllerConfig struct {
	Store     Store
	Billing   billing.Gate
	Publisher Publisher
	Cache     SnapshotCache
	Archiver  Archiver
	Metrics   *metrics.Metrics
	Logger    *logging.Logger
	Clock     func() time.Time
	Defaults  Defaults
}

// Controller is the engine's only write path. Every mutation of a queue
// or its tokens runs under that queue's mutex: load fresh state, validate
// the transition, persist, then publish. Reads bypass the lock.
type Controller struct {
	store     Store
	billing   billing.Gate
	capacity  CapacityPolicy
	estimator Estimator
	publisher Publisher
	cache     SnapshotCache
	archiver  Archiver
	locks     *keyedMutex
	clock     func() time.Time
	defaults  Defaults
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// NewController builds a Controller.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Store == nil {
		panic("queue: store cannot be nil")
	}
	if cfg.Billing == nil {
		cfg.Billing = billing.AllowAll{}
	}
	if cfg.Publisher == nil {
		cfg.Publisher = NopPublisher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Controller{
		store:     cfg.Store,
		billing:   cfg.Billing,
		publisher: cfg.Publisher,
		cache:     cfg.Cache,
		archiver:  cfg.Archiver,
		locks:     newKeyedMutex(),
		clock:     cfg.Clock,
		defaults:  cfg.Defaults.orFallbacks(),
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.Component("controller"),
	}
}

// CreateQueue provisions the day's queue in NOT_STARTED.
func (c *Controller) CreateQueue(ctx context.Context, in CreateQueueInput) (q *Queue, err error) {
	ctx, span := tracer.Start(ctx, "queue.create")
	defer span.End()
	defer c.instrument("create_queue", &err)()
	defer recordSpanErr(span, &err)

	if err = in.Validate(); err != nil {
		return nil, err
	}
	if err = guardClinic(ctx, in.ClinicID, ErrQueueNotFound, "clinic"); err != nil {
		return nil, err
	}
	if gateErr := c.billing.CanCreateQueue(ctx, in.ClinicID); gateErr != nil {
		err = billingDenied(gateErr)
		return nil, err
	}

	// One open queue per doctor per service date. The lock only covers
	// this instance; the day-scoped key keeps concurrent creates honest.
	unlock := c.locks.lock("create:" + in.ClinicID + ":" + in.DoctorID + ":" + in.ServiceDate)
	defer unlock()

	open, err := c.store.ListOpenQueuesByClinic(ctx, in.ClinicID)
	if err != nil {
		return nil, err
	}
	for _, existing := range open {
		if existing.DoctorID == in.DoctorID && existing.ServiceDate == in.ServiceDate {
			return nil, InvalidState("doctor %s already has an open queue for %s", in.DoctorID, in.ServiceDate)
		}
	}

	now := c.now()
	q = &Queue{
		QueueID:     NewQueueID(),
		ClinicID:    in.ClinicID,
		DoctorID:    in.DoctorID,
		ServiceDate: in.ServiceDate,
		Status:      QueueNotStarted,
		Settings:    c.applyDefaults(in.Settings),
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	span.SetAttributes(attribute.String("pulseops.queue_id", q.QueueID))

	if err = c.store.CreateQueue(ctx, q); err != nil {
		return nil, err
	}
	c.logger.Info("queue created",
		"queue_id", q.QueueID,
		"clinic_id", q.ClinicID,
		"doctor_id", q.DoctorID,
		"service_date", q.ServiceDate,
	)
	return q, nil
}

// StartQueue opens the day: NOT_STARTED to ACTIVE.
func (c *Controller) StartQueue(ctx context.Context, queueID string) (q *Queue, err error) {
	ctx, span := tracer.Start(ctx, "queue.start")
	defer span.End()
	span.SetAttributes(attribute.String("pulseops.queue_id", queueID))
	defer c.instrument("start_queue", &err)()
	defer recordSpanErr(span, &err)

	unlock := c.locks.lock(queueID)
	defer unlock()

	q, err = c.loadQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}

	switch {
	case q.Status == QueueNotStarted && CanQueueTransition(q.Status, QueueActive):
	case q.Status.Halted():
		return nil, InvalidState("cannot start queue in status %s; resume it instead", q.Status)
	default:
		return nil, QueueTransitionErr(q.Status, QueueActive)
	}

	now := c.now()
	q.Status = QueueActive
	q.StartedAt = &now
	q.UpdatedAt = now
	event := c.nextEvent(q, EventQueueStarted, now)

	if err = c.persistQueue(ctx, q); err != nil {
		return nil, err
	}
	c.publish(ctx, event)
	c.logger.Info("queue started", "queue_id", q.QueueID, "clinic_id", q.ClinicID)
	return q, nil
}

// PauseQueue halts calling. A pause with reason EMERGENCY moves the queue
// to EMERGENCY, where only emergency tokens book.
func (c *Controller) PauseQueue(ctx context.Context, queueID string, reason PauseReason) (q *Queue, err error) {
	ctx, span := tracer.Start(ctx, "queue.pause")
	defer span.End()
	span.SetAttributes(
		attribute.String("pulseops.queue_id", queueID),
		attribute.String("pulseops.pause_reason", string(reason)),
	)
	defer c.instrument("pause_queue", &err)()
	defer recordSpanErr(span, &err)

	if !reason.Valid() {
		return nil, Invalid("unknown pause reason " + strconv.Quote(string(reason)))
	}

	unlock := c.locks.lock(queueID)
	defer unlock()

	q, err = c.loadQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}

	target := QueuePaused
	if reason == PauseEmergency {
		target = QueueEmergency
	}
	if !CanQueueTransition(q.Status, target) {
		return nil, QueueTransitionErr(q.Status, target)
	}

	now := c.now()
	q.Status = target
	q.PauseReason = reason
	q.PausedAt = &now
	q.UpdatedAt = now
	event := c.nextEvent(q, EventQueuePaused, now).with("reason", string(reason))

	if err = c.persistQueue(ctx, q); err != nil {
		return nil, err
	}
	c.publish(ctx, event)
	c.logger.Info("queue paused", "queue_id", q.QueueID, "reason", reason)
	return q, nil
}

// ResumeQueue returns a halted queue to ACTIVE.
func (c *Controller) ResumeQueue(ctx context.Context, queueID string) (q *Queue, err error) {
	ctx, span := tracer.Start(ctx, "queue.resume")
	defer span.End()
	span.SetAttributes(attribute.String("pulseops.queue_id", queueID))
	defer c.instrument("resume_queue", &err)()
	defer recordSpanErr(span, &err)

	unlock := c.locks.lock(queueID)
	defer unlock()

	q, err = c.loadQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}

	switch {
	case q.Status.Halted():
	case q.Status == QueueNotStarted:
		return nil, InvalidState("cannot resume queue in status %s; start it first", q.Status)
	default:
		return nil, QueueTransitionErr(q.Status, QueueActive)
	}

	now := c.now()
	prior := q.PauseReason
	q.Status = QueueActive
	q.PauseReason = ""
	q.ResumedAt = &now
	q.UpdatedAt = now
	event := c.nextEvent(q, EventQueueResumed, now).with("priorReason", string(prior))

	if err = c.persistQueue(ctx, q); err != nil {
		return nil, err
	}
	c.publish(ctx, event)
	c.logger.Info("queue resumed", "queue_id", q.QueueID)
	return q, nil
}

// CloseQueue ends the day. Every waiting token is cancelled; a token in
// consultation blocks the close until it completes or skips.
func (c *Controller) CloseQueue(ctx context.Context, queueID string) (q *Queue, err error) {
	ctx, span := tracer.Start(ctx, "queue.close")
	defer span.End()
	span.SetAttributes(attribute.String("pulseops.queue_id", queueID))
	defer c.instrument("close_queue", &err)()
	defer recordSpanErr(span, &err)

	unlock := c.locks.lock(queueID)
	defer unlock()

	q, err = c.loadQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}

	if !CanQueueTransition(q.Status, QueueClosed) {
		return nil, QueueTransitionErr(q.Status, QueueClosed)
	}
	if q.CurrentTokenID != "" {
		return nil, InProgress("token %s is in consultation; complete or skip it before closing", q.CurrentTokenID)
	}

	tokens, err := c.store.ListQueueTokens(ctx, queueID)
	if err != nil {
		return nil, err
	}

	now := c.now()
	events := make([]*QueueEvent, 0, len(tokens)+1)
	cancelled := 0
	for _, t := range tokens {
		if !t.Status.Waiting() {
			continue
		}
		if !CanTokenTransition(t.Status, TokenCancelled) {
			return nil, TokenTransitionErr(t.Status, TokenCancelled)
		}
		prior := t.Status
		t.Status = TokenCancelled
		t.StatusReason = "queue closed"
		t.UpdatedAt = now
		if updateErr := c.store.UpdateToken(ctx, t); updateErr != nil {
			// Tokens cancelled so far stay cancelled; the close can rerun.
			err = updateErr
			return nil, err
		}
		cancelled++
		events = append(events, c.nextEvent(q, EventTokenCancelled, now).forToken(t).
			with("reason", "queue closed").
			with("priorStatus", string(prior)))
	}

	q.Status = QueueClosed
	q.PauseReason = ""
	q.ClosedAt = &now
	q.UpdatedAt = now
	events = append(events, c.nextEvent(q, EventQueueClosed, now).
		with("cancelledWaiting", strconv.Itoa(cancelled)))

	if err = c.persistQueue(ctx, q); err != nil {
		return nil, err
	}
	for _, event := range events {
		c.publish(ctx, event)
	}
	c.archive(ctx, buildCloseSummary(q, tokens, now))
	c.logger.Info("queue closed",
		"queue_id", q.QueueID,
		"clinic_id", q.ClinicID,
		"cancelled_waiting", cancelled,
		"tokens_issued", q.LastTokenNumber,
	)
	return q, nil
}

// loadQueue fetches fresh queue state and applies the tenant guard.
func (c *Controller) loadQueue(ctx context.Context, queueID string) (*Queue, error) {
	q, err := c.store.GetQueue(ctx, queueID)
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	if err := guardClinic(ctx, q.ClinicID, ErrQueueNotFound, "queue"); err != nil {
		return nil, err
	}
	return q, nil
}

// persistQueue writes the queue and drops its cached snapshot.
func (c *Controller) persistQueue(ctx context.Context, q *Queue) error {
	if err := c.store.UpdateQueue(ctx, q); err != nil {
		return classifyStoreErr(err)
	}
	c.invalidate(ctx, q.QueueID)
	return nil
}

func (c *Controller) invalidate(ctx context.Context, queueID string) {
	if c.cache != nil {
		c.cache.Invalidate(ctx, queueID)
	}
}

// nextEvent assigns the next slot in the queue's event sequence. The
// sequence rides on the queue record, so it survives restarts and stays
// aligned with the serialized operation order.
func (c *Controller) nextEvent(q *Queue, eventType EventType, now time.Time) *QueueEvent {
	q.EventSeq++
	event := newQueueEvent(eventType, q, now)
	event.Sequence = q.EventSeq
	return event
}

func (c *Controller) publish(ctx context.Context, event *QueueEvent) {
	c.publisher.Publish(ctx, event)
}

func (c *Controller) archive(ctx context.Context, summary *CloseSummary) {
	if c.archiver == nil || summary == nil {
		return
	}
	if err := c.archiver.ArchiveCloseSummary(ctx, summary); err != nil {
		c.logger.Warn("close summary archive failed", "queue_id", summary.QueueID, "error", err)
	}
}

func (c *Controller) applyDefaults(s Settings) Settings {
	d := c.defaults
	if s.Timezone == "" {
		s.Timezone = d.Timezone
	}
	if s.OpensAt == "" {
		s.OpensAt = d.OpensAt
	}
	if s.ClosesAt == "" {
		s.ClosesAt = d.ClosesAt
	}
	if s.ConsultationDuration <= 0 {
		s.ConsultationDuration = d.ConsultationDuration
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = d.MaxTokens
	}
	if s.Breaks == nil {
		s.Breaks = []BreakWindow{{Label: "Lunch", From: d.LunchStart, To: d.LunchEnd}}
	}
	return s
}

func (c *Controller) now() time.Time {
	return c.clock().UTC()
}

// instrument records the operation counter and latency once the op ends.
func (c *Controller) instrument(op string, err *error) func() {
	start := time.Now()
	return func() {
		outcome := "ok"
		if *err != nil {
			outcome = strings.ToLower(string(CodeOf(*err)))
		}
		c.metrics.ObserveOperation(op, outcome, time.Since(start).Seconds())
	}
}

func recordSpanErr(span trace.Span, err *error) {
	if *err != nil {
		span.RecordError(*err)
	}
}

// guardClinic hides records that belong to another tenant. Requests with
// no actor (internal pipelines, workers) bypass the check.
func guardClinic(ctx context.Context, clinicID string, sentinel error, what string) error {
	actor, ok := tenancy.ActorFromContext(ctx)
	if ok && actor.ClinicID != clinicID {
		return NotFound(sentinel, "%s not found", what)
	}
	return nil
}

func billingDenied(err error) error {
	return &Error{Code: CodeCapacityExceeded, Message: "clinic subscription does not permit this operation", Err: err}
}

// classifyStoreErr lifts bare store sentinels into the taxonomy so API
// callers see stable codes.
func classifyStoreErr(err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	switch {
	case errors.Is(err, ErrQueueNotFound):
		return NotFound(ErrQueueNotFound, "queue not found")
	case errors.Is(err, ErrTokenNotFound):
		return NotFound(ErrTokenNotFound, "token not found")
	case errors.Is(err, ErrVersionConflict):
		return Conflict("queue was modified concurrently; retry")
	}
	return err
}

func buildCloseSummary(q *Queue, tokens []*Token, closedAt time.Time) *CloseSummary {
	counts := make(map[TokenStatus]int, len(tokens))
	for _, t := range tokens {
		counts[t.Status]++
	}
	return &CloseSummary{
		QueueID:      q.QueueID,
		ClinicID:     q.ClinicID,
		DoctorID:     q.DoctorID,
		ServiceDate:  q.ServiceDate,
		TokensIssued: q.LastTokenNumber,
		StatusCounts: counts,
		StartedAt:    q.StartedAt,
		ClosedAt:     closedAt,
		Settings:     q.Settings,
	}
}
