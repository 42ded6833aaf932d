package queue

import "context"

// Store is the persistence port for queues and tokens. Implementations
// return the package sentinels for missing and conflicting records so
// callers can branch with errors.Is.
type Store interface {
	// CreateQueue inserts a new queue, failing with ErrQueueExists when the
	// queue ID is already taken.
	CreateQueue(ctx context.Context, q *Queue) error
	// GetQueue fetches a queue by ID, failing with ErrQueueNotFound.
	GetQueue(ctx context.Context, queueID string) (*Queue, error)
	// UpdateQueue persists q and bumps its Version. It fails with
	// ErrVersionConflict when the stored version differs from q.Version,
	// leaving the store untouched.
	UpdateQueue(ctx context.Context, q *Queue) error

	// CreateToken inserts a new token, failing with ErrTokenExists when the
	// token ID is already taken.
	CreateToken(ctx context.Context, t *Token) error
	// IssueToken persists a new token and the queue's bumped high-water
	// mark as one atomic write, so a failure can never leave the token
	// numbering split between the two records. The queue follows the same
	// version rules as UpdateQueue.
	IssueToken(ctx context.Context, q *Queue, t *Token) error
	// SaveTokenAndQueue persists an existing token together with its queue
	// as one atomic write. Fails with ErrTokenNotFound when the token is
	// missing; the queue follows the same version rules as UpdateQueue.
	SaveTokenAndQueue(ctx context.Context, q *Queue, t *Token) error
	// GetToken fetches a token by ID, failing with ErrTokenNotFound.
	GetToken(ctx context.Context, tokenID string) (*Token, error)
	// UpdateToken persists t.
	UpdateToken(ctx context.Context, t *Token) error
	// ListQueueTokens returns every token of a queue in ascending token
	// number order.
	ListQueueTokens(ctx context.Context, queueID string) ([]*Token, error)

	// ListOpenQueuesByClinic returns the clinic's queues that are not yet
	// CLOSED, most recent service date first.
	ListOpenQueuesByClinic(ctx context.Context, clinicID string) ([]*Queue, error)
}
