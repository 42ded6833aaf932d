package queue

// queueTransitions is the only authority on legal queue status edges.
// Operations consult it through CanQueueTransition; nothing hand-checks
// statuses.
var queueTransitions = map[QueueStatus][]QueueStatus{
	QueueNotStarted: {QueueActive, QueueClosed},
	QueueActive:     {QueuePaused, QueueEmergency, QueueClosed},
	QueuePaused:     {QueueActive, QueueClosed},
	QueueEmergency:  {QueueActive, QueueClosed},
	QueueClosed:     {},
}

// tokenTransitions is the only authority on legal token status edges.
var tokenTransitions = map[TokenStatus][]TokenStatus{
	TokenPending:   {TokenConfirmed, TokenCancelled},
	TokenConfirmed: {TokenArrived, TokenCurrent, TokenCancelled, TokenNoShow},
	TokenArrived:   {TokenCurrent, TokenCancelled, TokenNoShow},
	TokenCurrent:   {TokenCompleted, TokenSkipped},
	TokenCompleted: {},
	TokenCancelled: {},
	TokenSkipped:   {},
	TokenNoShow:    {},
}

// CanQueueTransition reports whether a queue may move from one status to
// another.
func CanQueueTransition(from, to QueueStatus) bool {
	for _, allowed := range queueTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CanTokenTransition reports whether a token may move from one status to
// another.
func CanTokenTransition(from, to TokenStatus) bool {
	for _, allowed := range tokenTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// QueueTransitionErr names the rejected edge.
func QueueTransitionErr(from, to QueueStatus) error {
	return &Error{
		Code:    CodeInvalidTransition,
		Message: "cannot transition queue from " + string(from) + " to " + string(to),
	}
}

// TokenTransitionErr names the rejected edge.
func TokenTransitionErr(from, to TokenStatus) error {
	return &Error{
		Code:    CodeInvalidTransition,
		Message: "cannot transition token from " + string(from) + " to " + string(to),
	}
}

// NextTokenNumber returns the number the next issued token will take.
// Numbers are dense and never reused, so this is the high-water mark
// plus one regardless of cancellations.
func NextTokenNumber(q *Queue) int {
	return q.LastTokenNumber + 1
}
