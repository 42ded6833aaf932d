// Package notify turns queue events into patient and clinic
// notifications: WhatsApp messages for token milestones and a close
// summary email when a queue shuts for the day.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/karthik-ak-dev/pulse-ops/internal/clinic"
	"github.com/karthik-ak-dev/pulse-ops/internal/queue"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

// queueUpdateFanout is how many waiting patients hear about each call.
const queueUpdateFanout = 3

// QueueReader is the slice of the queue store the dispatcher reads.
type QueueReader interface {
	GetQueue(ctx context.Context, queueID string) (*queue.Queue, error)
	GetToken(ctx context.Context, tokenID string) (*queue.Token, error)
	ListQueueTokens(ctx context.Context, queueID string) ([]*queue.Token, error)
}

// ClinicDirectory retrieves clinic profiles.
type ClinicDirectory interface {
	Get(ctx context.Context, clinicID string) (*clinic.Profile, error)
}

// Dispatcher composes and sends notifications for queue events.
type Dispatcher struct {
	store     QueueReader
	profiles  ClinicDirectory
	whatsapp  WhatsAppSender
	email     EmailSender
	estimator queue.Estimator
	logger    *logging.Logger
}

// NewDispatcher creates a notification dispatcher. Missing senders fall
// back to log-only implementations so wiring gaps never panic mid-event.
func NewDispatcher(store QueueReader, profiles ClinicDirectory, whatsapp WhatsAppSender, email EmailSender, logger *logging.Logger) *Dispatcher {
	if store == nil {
		panic("notify: queue reader cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if whatsapp == nil {
		whatsapp = NewLogSender(logger)
	}
	if email == nil {
		email = NewStubEmailSender(logger)
	}
	return &Dispatcher{
		store:    store,
		profiles: profiles,
		whatsapp: whatsapp,
		email:    email,
		logger:   logger.Component("notify"),
	}
}

// Dispatch routes one queue event to its notification handler. Events
// with no notification are skipped silently; a returned error means the
// delivery should be retried.
func (d *Dispatcher) Dispatch(ctx context.Context, evt *queue.QueueEvent) error {
	if evt == nil {
		return errors.New("notify: event required")
	}

	switch evt.EventType {
	case queue.EventTokenCreated:
		return d.tokenLifecycle(ctx, evt, TokenBookedMessage)
	case queue.EventTokenConfirmed:
		return d.tokenLifecycle(ctx, evt, TokenConfirmedMessage)
	case queue.EventTokenCalled:
		return d.tokenCalled(ctx, evt)
	case queue.EventQueueClosed:
		return d.queueClosed(ctx, evt)
	default:
		d.logger.Debug("no notification for event", "event_type", evt.EventType, "queue_id", evt.QueueID)
		return nil
	}
}

// tokenLifecycle messages the token's patient about a booking or
// confirmation.
func (d *Dispatcher) tokenLifecycle(ctx context.Context, evt *queue.QueueEvent, template func(int, string, string) string) error {
	profile, err := d.profile(ctx, evt.ClinicID)
	if err != nil {
		return err
	}
	if !profile.Notifications.WhatsAppEnabled {
		d.logger.Debug("whatsapp disabled for clinic", "clinic_id", evt.ClinicID)
		return nil
	}

	t, err := d.store.GetToken(ctx, evt.TokenID)
	if errors.Is(err, queue.ErrTokenNotFound) {
		d.logger.Warn("token gone before notification", "token_id", evt.TokenID, "event_type", evt.EventType)
		return nil
	}
	if err != nil {
		return fmt.Errorf("notify: load token: %w", err)
	}
	if t.PatientPhone == "" {
		d.logger.Debug("token has no patient phone", "token_id", t.TokenID)
		return nil
	}

	q, err := d.store.GetQueue(ctx, evt.QueueID)
	if errors.Is(err, queue.ErrQueueNotFound) {
		d.logger.Warn("queue gone before notification", "queue_id", evt.QueueID, "event_type", evt.EventType)
		return nil
	}
	if err != nil {
		return fmt.Errorf("notify: load queue: %w", err)
	}

	body := template(t.TokenNumber, profile.DoctorName(q.DoctorID), q.ServiceDate)
	if err := d.whatsapp.SendText(ctx, t.PatientPhone, body); err != nil {
		return fmt.Errorf("notify: send %s message: %w", evt.EventType, err)
	}
	return nil
}

// tokenCalled tells the called patient their turn has come, then updates
// the next few waiting patients on where the line stands.
func (d *Dispatcher) tokenCalled(ctx context.Context, evt *queue.QueueEvent) error {
	profile, err := d.profile(ctx, evt.ClinicID)
	if err != nil {
		return err
	}
	if !profile.Notifications.WhatsAppEnabled {
		d.logger.Debug("whatsapp disabled for clinic", "clinic_id", evt.ClinicID)
		return nil
	}

	q, err := d.store.GetQueue(ctx, evt.QueueID)
	if errors.Is(err, queue.ErrQueueNotFound) {
		d.logger.Warn("queue gone before notification", "queue_id", evt.QueueID, "event_type", evt.EventType)
		return nil
	}
	if err != nil {
		return fmt.Errorf("notify: load queue: %w", err)
	}

	tokens, err := d.store.ListQueueTokens(ctx, evt.QueueID)
	if err != nil {
		return fmt.Errorf("notify: list tokens: %w", err)
	}

	now := time.Now()

	// The called patient's message is the one that matters; its failure
	// retries the whole delivery.
	for _, t := range tokens {
		if t.TokenID != evt.TokenID {
			continue
		}
		if t.PatientPhone == "" {
			break
		}
		if err := d.whatsapp.SendText(ctx, t.PatientPhone, TokenCalledMessage(t.TokenNumber)); err != nil {
			return fmt.Errorf("notify: send called message: %w", err)
		}
		break
	}

	// Position updates to the next few in line are best-effort. One
	// consultation is now in progress, so position i waits behind i+1
	// slots.
	waiting := queue.OrderWaiting(tokens)
	for i, w := range waiting {
		if i >= queueUpdateFanout {
			break
		}
		if w.PatientPhone == "" {
			continue
		}
		estimated := d.estimator.Estimate(q, i+1, now)
		body := QueueUpdateMessage(evt.TokenNumber, waitMinutes(estimated, now), w.TokenNumber)
		if err := d.whatsapp.SendText(ctx, w.PatientPhone, body); err != nil {
			d.logger.Warn("queue update send failed", "token_id", w.TokenID, "error", err)
		}
	}
	return nil
}

// queueClosed emails the clinic its end-of-day summary.
func (d *Dispatcher) queueClosed(ctx context.Context, evt *queue.QueueEvent) error {
	profile, err := d.profile(ctx, evt.ClinicID)
	if err != nil {
		return err
	}
	if !profile.Notifications.EmailEnabled || !profile.Notifications.NotifyOnClose {
		d.logger.Debug("close summary email disabled for clinic", "clinic_id", evt.ClinicID)
		return nil
	}
	recipients := profile.Notifications.Recipients(profile.Email)
	if len(recipients) == 0 {
		d.logger.Warn("close summary email has no recipients", "clinic_id", evt.ClinicID)
		return nil
	}

	q, err := d.store.GetQueue(ctx, evt.QueueID)
	if errors.Is(err, queue.ErrQueueNotFound) {
		d.logger.Warn("queue gone before notification", "queue_id", evt.QueueID, "event_type", evt.EventType)
		return nil
	}
	if err != nil {
		return fmt.Errorf("notify: load queue: %w", err)
	}

	tokens, err := d.store.ListQueueTokens(ctx, evt.QueueID)
	if err != nil {
		return fmt.Errorf("notify: list tokens: %w", err)
	}
	counts := make(map[queue.TokenStatus]int, len(tokens))
	for _, t := range tokens {
		counts[t.Status]++
	}

	msg := CloseSummaryEmail(profile.DisplayName(), profile.DoctorName(q.DoctorID), q, counts)

	var lastErr error
	sent := 0
	for _, to := range recipients {
		msg.To = to
		if err := d.email.Send(ctx, msg); err != nil {
			d.logger.Warn("close summary email failed", "to", to, "error", err)
			lastErr = err
			continue
		}
		sent++
	}
	if sent == 0 && lastErr != nil {
		return fmt.Errorf("notify: close summary email: %w", lastErr)
	}
	d.logger.Info("close summary emailed", "clinic_id", evt.ClinicID, "queue_id", evt.QueueID, "recipients", sent)
	return nil
}

// profile fetches the clinic profile, falling back to defaults when no
// directory is wired so an unconfigured deployment stays silent.
func (d *Dispatcher) profile(ctx context.Context, clinicID string) (*clinic.Profile, error) {
	if d.profiles == nil {
		return clinic.DefaultProfile(clinicID), nil
	}
	p, err := d.profiles.Get(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("notify: load clinic profile: %w", err)
	}
	return p, nil
}
