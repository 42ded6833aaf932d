package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/karthik-ak-dev/pulse-ops/internal/queue"
	"github.com/karthik-ak-dev/pulse-ops/internal/tenancy"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

type stubLookup struct {
	q   *queue.Queue
	err error
}

func (s *stubLookup) GetQueue(context.Context, string) (*queue.Queue, error) {
	return s.q, s.err
}

func wsTestServer(t *testing.T, hub *Hub, lookup queueLookup, actor *tenancy.Actor) *httptest.Server {
	t.Helper()
	h := NewWSHandler(hub, lookup, logging.Default())

	r := chi.NewRouter()
	if actor != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(tenancy.WithActor(req.Context(), *actor)))
			})
		})
	}
	r.Get("/v1/ws/queues/{queueID}", h.Subscribe)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestSubscribeRejectsUnknownQueue(t *testing.T) {
	hub := newTestHub()
	srv := wsTestServer(t, hub, &stubLookup{err: queue.ErrQueueNotFound}, nil)

	resp, err := http.Get(srv.URL + "/v1/ws/queues/q_missing")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSubscribeRejectsForeignClinic(t *testing.T) {
	hub := newTestHub()
	lookup := &stubLookup{q: &queue.Queue{QueueID: "q_1", ClinicID: "clinic-1"}}
	actor := &tenancy.Actor{ClinicID: "clinic-2", Role: tenancy.RoleStaff}
	srv := wsTestServer(t, hub, lookup, actor)

	resp, err := http.Get(srv.URL + "/v1/ws/queues/q_1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign clinic, got %d", resp.StatusCode)
	}
}

func TestSubscribeStreamsEvents(t *testing.T) {
	hub := newTestHub()
	lookup := &stubLookup{q: &queue.Queue{QueueID: "q_1", ClinicID: "clinic-1"}}
	actor := &tenancy.Actor{ClinicID: "clinic-1", Role: tenancy.RoleStaff}
	srv := wsTestServer(t, hub, lookup, actor)

	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1) + "/v1/ws/queues/q_1"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		defer resp.Body.Close()
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers("q_1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := hub.Deliver(context.Background(), testEvent("q_1", 7)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var evt queue.QueueEvent
	if err := json.Unmarshal(frame, &evt); err != nil {
		t.Fatalf("frame is not an event: %v", err)
	}
	if evt.QueueID != "q_1" || evt.Sequence != 7 {
		t.Fatalf("unexpected event: %+v", evt)
	}
}
