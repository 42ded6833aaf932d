package queue

import "time"

// EventType identifies what happened to a queue or token.
type EventType string

const (
	EventQueueStarted   EventType = "QUEUE_STARTED"
	EventQueuePaused    EventType = "QUEUE_PAUSED"
	EventQueueResumed   EventType = "QUEUE_RESUMED"
	EventQueueClosed    EventType = "QUEUE_CLOSED"
	EventTokenCreated   EventType = "TOKEN_CREATED"
	EventTokenConfirmed EventType = "TOKEN_CONFIRMED"
	EventTokenArrived   EventType = "TOKEN_ARRIVED"
	EventTokenCalled    EventType = "TOKEN_CALLED"
	EventTokenCompleted EventType = "TOKEN_COMPLETED"
	EventTokenSkipped   EventType = "TOKEN_SKIPPED"
	EventTokenCancelled EventType = "TOKEN_CANCELLED"
	EventTokenNoShow    EventType = "TOKEN_NO_SHOW"
)

// QueueEvent is one entry in a queue's ordered event history. Sequence is
// assigned under the queue lock, so per-queue ordering matches operation
// order exactly.
type QueueEvent struct {
	EventID     string            `json:"eventId"`
	EventType   EventType         `json:"eventType"`
	QueueID     string            `json:"queueId"`
	ClinicID    string            `json:"clinicId"`
	TokenID     string            `json:"tokenId,omitempty"`
	TokenNumber int               `json:"tokenNumber,omitempty"`
	Sequence    int64             `json:"sequence"`
	OccurredAt  time.Time         `json:"occurredAt"`
	Data        map[string]string `json:"data,omitempty"`
}

// newQueueEvent stamps identity and clock; the controller fills Sequence.
func newQueueEvent(eventType EventType, q *Queue, now time.Time) *QueueEvent {
	return &QueueEvent{
		EventID:    NewEventID(),
		EventType:  eventType,
		QueueID:    q.QueueID,
		ClinicID:   q.ClinicID,
		OccurredAt: now,
	}
}

// forToken annotates the event with the subject token.
func (e *QueueEvent) forToken(t *Token) *QueueEvent {
	e.TokenID = t.TokenID
	e.TokenNumber = t.TokenNumber
	return e
}

// with adds one annotation to the event's data map.
func (e *QueueEvent) with(key, value string) *QueueEvent {
	if value == "" {
		return e
	}
	if e.Data == nil {
		e.Data = make(map[string]string, 2)
	}
	e.Data[key] = value
	return e
}
