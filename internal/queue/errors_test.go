package queue

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"taxonomy error", Invalid("bad"), CodeValidation},
		{"wrapped taxonomy error", fmt.Errorf("handler: %w", Empty("nothing waiting")), CodeQueueEmpty},
		{"bare queue sentinel", ErrQueueNotFound, CodeNotFound},
		{"wrapped token sentinel", fmt.Errorf("store: %w", ErrTokenNotFound), CodeNotFound},
		{"version conflict", fmt.Errorf("store: %w", ErrVersionConflict), CodeConcurrencyConflict},
		{"queue exists", ErrQueueExists, CodeConcurrencyConflict},
		{"token exists", ErrTokenExists, CodeConcurrencyConflict},
		{"unknown", errors.New("disk on fire"), CodeInternal},
	}
	for _, tt := range tests {
		if got := CodeOf(tt.err); got != tt.want {
			t.Errorf("%s: CodeOf = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestMessageOf(t *testing.T) {
	if got := MessageOf(InvalidState("queue is closed")); got != "queue is closed" {
		t.Fatalf("unexpected message: %q", got)
	}
	if got := MessageOf(fmt.Errorf("store: %w", ErrQueueNotFound)); got != "queue not found" {
		t.Fatalf("bare sentinel should map to a client message, got %q", got)
	}
	if got := MessageOf(errors.New("pq: connection reset")); got != "internal error" {
		t.Fatalf("internals must not leak to clients, got %q", got)
	}
}

func TestNotFoundKeepsSentinel(t *testing.T) {
	err := NotFound(ErrTokenNotFound, "token %s not found", "t_1")
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatal("errors.Is must see the sentinel through the taxonomy wrapper")
	}
	if CodeOf(err) != CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", CodeOf(err))
	}
	if MessageOf(err) != "token t_1 not found" {
		t.Fatalf("unexpected message: %q", MessageOf(err))
	}
}

func TestConflictWrapsVersionSentinel(t *testing.T) {
	err := Conflict("queue was modified concurrently; retry")
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatal("conflict errors must satisfy errors.Is(ErrVersionConflict)")
	}
	if CodeOf(err) != CodeConcurrencyConflict {
		t.Fatalf("expected CONCURRENCY_CONFLICT, got %s", CodeOf(err))
	}
}

func TestErrorString(t *testing.T) {
	plain := &Error{Code: CodeQueueEmpty, Message: "no token is in consultation"}
	if got := plain.Error(); got != "queue: QUEUE_EMPTY: no token is in consultation" {
		t.Fatalf("unexpected format: %q", got)
	}

	wrapped := &Error{Code: CodeInternal, Message: "archive failed", Err: errors.New("s3 timeout")}
	if got := wrapped.Error(); got != "queue: INTERNAL_ERROR: archive failed: s3 timeout" {
		t.Fatalf("unexpected format: %q", got)
	}
	if errors.Unwrap(wrapped) == nil {
		t.Fatal("wrapped cause must unwrap")
	}
}
