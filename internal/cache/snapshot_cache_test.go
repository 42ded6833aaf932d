package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/karthik-ak-dev/pulse-ops/internal/queue"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

func testSnapshot(queueID string) *queue.QueueSnapshot {
	return &queue.QueueSnapshot{
		Queue: &queue.Queue{
			QueueID:         queueID,
			ClinicID:        "clinic-1",
			DoctorID:        "doc-1",
			ServiceDate:     "2026-03-02",
			Status:          queue.QueueActive,
			LastTokenNumber: 4,
		},
		ServingNumber: 2,
		StatusCounts:  map[queue.TokenStatus]int{queue.TokenConfirmed: 2},
		GeneratedAt:   time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func newTestCache(t *testing.T, ttl time.Duration) (*SnapshotCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewSnapshotCache(client, ttl, logging.Default()), mr
}

func TestSnapshotCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "q_missing"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Set(ctx, testSnapshot("q_1"))

	got, ok := c.Get(ctx, "q_1")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if got.Queue.QueueID != "q_1" || got.Queue.LastTokenNumber != 4 {
		t.Fatalf("unexpected snapshot: %+v", got.Queue)
	}
	if got.StatusCounts[queue.TokenConfirmed] != 2 {
		t.Fatalf("status counts lost: %+v", got.StatusCounts)
	}
	if !got.GeneratedAt.Equal(testSnapshot("q_1").GeneratedAt) {
		t.Fatalf("generatedAt mismatch: %v", got.GeneratedAt)
	}
}

func TestSnapshotCacheInvalidate(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	c.Set(ctx, testSnapshot("q_1"))
	c.Invalidate(ctx, "q_1")

	if _, ok := c.Get(ctx, "q_1"); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestSnapshotCacheExpiry(t *testing.T) {
	c, mr := newTestCache(t, 30*time.Second)
	ctx := context.Background()

	c.Set(ctx, testSnapshot("q_1"))
	mr.FastForward(31 * time.Second)

	if _, ok := c.Get(ctx, "q_1"); ok {
		t.Fatal("expected miss after TTL")
	}
}

func TestSnapshotCacheCorruptEntryMisses(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)

	if err := mr.Set("pulseops:queue:snapshot:q_1", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok := c.Get(context.Background(), "q_1"); ok {
		t.Fatal("corrupt entry must read as a miss")
	}
}

func TestSnapshotCacheNilClient(t *testing.T) {
	c := NewSnapshotCache(nil, time.Minute, logging.Default())
	ctx := context.Background()

	c.Set(ctx, testSnapshot("q_1"))
	c.Invalidate(ctx, "q_1")
	if _, ok := c.Get(ctx, "q_1"); ok {
		t.Fatal("disabled cache must always miss")
	}
}
