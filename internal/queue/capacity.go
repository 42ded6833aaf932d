package queue

import (
	"fmt"
	"time"
)

// Denial is a rejected booking decision. The zero value admits.
type Denial struct {
	Code   Code
	Reason string
}

// Denied reports whether the booking was rejected.
func (d Denial) Denied() bool { return d.Code != "" }

// Err converts the denial into a taxonomy error, nil when admitted.
func (d Denial) Err() error {
	if !d.Denied() {
		return nil
	}
	return &Error{Code: d.Code, Message: d.Reason}
}

// CapacityPolicy decides whether a queue admits one more token. It is a
// pure decision over queue state, the issued-token count, the candidate's
// priority, and the clock; it performs no I/O.
type CapacityPolicy struct{}

// Admit evaluates a booking. issued counts every token ever numbered for
// the day, cancelled ones included, because numbers are never reclaimed.
func (CapacityPolicy) Admit(q *Queue, issued int, priority Priority, now time.Time) Denial {
	now = now.In(q.Settings.Location())

	switch q.Status {
	case QueueClosed:
		return Denial{Code: CodeInvalidState, Reason: "queue is closed"}
	case QueueEmergency:
		if priority != PriorityEmergency {
			return Denial{Code: CodeInvalidState, Reason: "queue is handling an emergency; only emergency tokens are accepted"}
		}
	case QueueNotStarted, QueueActive, QueuePaused:
		// Booking stays open through ordinary pauses.
	default:
		return Denial{Code: CodeInvalidState, Reason: fmt.Sprintf("queue status %s does not accept bookings", q.Status)}
	}

	if d := admitSchedule(q, priority, now); d.Denied() {
		return d
	}

	if q.Settings.MaxTokens > 0 && issued >= q.Settings.MaxTokens {
		if priority == PriorityEmergency && q.Settings.AllowEmergencyOverbook {
			return Denial{}
		}
		return Denial{
			Code:   CodeCapacityExceeded,
			Reason: fmt.Sprintf("queue is full (%d tokens)", q.Settings.MaxTokens),
		}
	}

	return Denial{}
}

// admitSchedule enforces the booking window. Emergencies bypass it; a
// NOT_STARTED queue accepts bookings from midnight on the service date.
func admitSchedule(q *Queue, priority Priority, now time.Time) Denial {
	if priority == PriorityEmergency {
		return Denial{}
	}

	day, err := q.ServiceDay()
	if err != nil {
		return Denial{}
	}

	if q.Status == QueueNotStarted {
		if now.Before(day) {
			return Denial{
				Code:   CodeCapacityExceeded,
				Reason: fmt.Sprintf("booking opens on %s", q.ServiceDate),
			}
		}
		return Denial{}
	}

	opens, closes, err := q.Settings.OpenWindowOn(day)
	if err != nil {
		return Denial{}
	}
	if now.Before(opens) || !now.Before(closes) {
		return Denial{
			Code:   CodeCapacityExceeded,
			Reason: fmt.Sprintf("booking window %s-%s is closed", q.Settings.OpensAt, q.Settings.ClosesAt),
		}
	}
	return Denial{}
}
