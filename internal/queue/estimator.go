package queue

import (
	"sort"
	"time"
)

// Estimator predicts call times. It is a pure function of queue state and
// the supplied clock; it never reads time itself and never mutates inputs.
type Estimator struct{}

// Estimate returns when a token with the given number of consultations
// ahead of it is expected to be called. An in-progress consultation counts
// as one full slot. Configured break windows that intersect the projected
// wait push the estimate out; the result is never before now.
func (Estimator) Estimate(q *Queue, ahead int, now time.Time) time.Time {
	if ahead < 0 {
		ahead = 0
	}
	now = now.In(q.Settings.Location())
	serve := time.Duration(ahead) * q.Settings.ConsultationDuration
	if serve <= 0 {
		return now
	}

	day, err := q.ServiceDay()
	if err != nil {
		return now.Add(serve)
	}

	// Breaks stretch the wait, which can drag the window across further
	// breaks, so iterate until the overlap stops growing.
	end := now.Add(serve)
	for range q.Settings.Breaks {
		var pause time.Duration
		for _, w := range q.Settings.Breaks {
			from, to := w.On(day)
			pause += overlap(now, end, from, to)
		}
		next := now.Add(serve + pause)
		if !next.After(end) {
			break
		}
		end = next
	}
	return end
}

// overlap returns the length of the intersection of [start,end) and [from,to).
func overlap(start, end, from, to time.Time) time.Duration {
	if from.IsZero() || to.IsZero() {
		return 0
	}
	if from.Before(start) {
		from = start
	}
	if to.After(end) {
		to = end
	}
	if d := to.Sub(from); d > 0 {
		return d
	}
	return 0
}

// OrderWaiting returns the waiting tokens (PENDING included) in call
// order: emergencies first, then by token number. The input is not
// modified.
func OrderWaiting(tokens []*Token) []*Token {
	waiting := make([]*Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Status.Waiting() {
			waiting = append(waiting, t)
		}
	}
	sort.SliceStable(waiting, func(i, j int) bool {
		a, b := waiting[i], waiting[j]
		if (a.Priority == PriorityEmergency) != (b.Priority == PriorityEmergency) {
			return a.Priority == PriorityEmergency
		}
		return a.TokenNumber < b.TokenNumber
	})
	return waiting
}

// NextCallable returns the token CallNext would serve, nil when no
// CONFIRMED or ARRIVED token waits.
func NextCallable(tokens []*Token) *Token {
	for _, t := range OrderWaiting(tokens) {
		if t.Status.Callable() {
			return t
		}
	}
	return nil
}
