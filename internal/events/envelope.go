// Package events carries queue events across process boundaries: a
// versioned transport envelope, SQS and in-memory relays, and the
// processed-event ledger consumers use to dedupe redeliveries.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/karthik-ak-dev/pulse-ops/internal/queue"
)

// SchemaV1 is the only envelope schema currently written or accepted.
const SchemaV1 = "pulseops.queue.event.v1"

// Envelope wraps one queue event for transport. The envelope ID defaults
// to the event's own ID, so redeliveries of the same event dedupe no
// matter how many times the relay retried.
type Envelope struct {
	EnvelopeID      string          `json:"envelope_id"`
	SchemaVersion   string          `json:"schema_version"`
	EventType       string          `json:"event_type"`
	QueueID         string          `json:"queue_id"`
	ClinicID        string          `json:"clinic_id"`
	Sequence        int64           `json:"sequence"`
	TimestampMicros int64           `json:"timestamp"`
	Payload         json.RawMessage `json:"payload"`
}

// EnvelopeOption customizes the generated envelope (useful in tests).
type EnvelopeOption func(*Envelope)

// WithEnvelopeID overrides the envelope id.
func WithEnvelopeID(id string) EnvelopeOption {
	return func(e *Envelope) {
		if id != "" {
			e.EnvelopeID = id
		}
	}
}

// WithTimestamp overrides the timestamp stored in microseconds.
func WithTimestamp(ts time.Time) EnvelopeOption {
	return func(e *Envelope) {
		if ts.IsZero() {
			return
		}
		e.TimestampMicros = ts.UTC().UnixMicro()
	}
}

var errNilEvent = errors.New("events: queue event required")

// NewEnvelope wraps evt for transport.
func NewEnvelope(evt *queue.QueueEvent, opts ...EnvelopeOption) (Envelope, error) {
	if evt == nil {
		return Envelope{}, errNilEvent
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal event payload: %w", err)
	}

	env := Envelope{
		EnvelopeID:      evt.EventID,
		SchemaVersion:   SchemaV1,
		EventType:       string(evt.EventType),
		QueueID:         evt.QueueID,
		ClinicID:        evt.ClinicID,
		Sequence:        evt.Sequence,
		TimestampMicros: evt.OccurredAt.UTC().UnixMicro(),
		Payload:         append([]byte(nil), payload...),
	}
	if env.EnvelopeID == "" {
		env.EnvelopeID = uuid.NewString()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&env)
		}
	}
	return env, nil
}

// Encode serializes the envelope for a relay body.
func (e Envelope) Encode() (string, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("events: marshal envelope: %w", err)
	}
	return string(body), nil
}

// DecodeEnvelope parses a relay body back into an envelope.
func DecodeEnvelope(body string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return Envelope{}, fmt.Errorf("events: unmarshal envelope: %w", err)
	}
	if strings.TrimSpace(env.EnvelopeID) == "" {
		return Envelope{}, errors.New("events: envelope missing id")
	}
	return env, nil
}

// Event unpacks the wrapped queue event. Unknown schema versions are
// rejected rather than half-parsed.
func (e Envelope) Event() (*queue.QueueEvent, error) {
	if e.SchemaVersion != SchemaV1 {
		return nil, fmt.Errorf("events: unsupported schema %q", e.SchemaVersion)
	}
	var evt queue.QueueEvent
	if err := json.Unmarshal(e.Payload, &evt); err != nil {
		return nil, fmt.Errorf("events: unmarshal event payload: %w", err)
	}
	return &evt, nil
}
