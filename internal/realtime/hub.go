// Package realtime pushes queue events to WebSocket subscribers, one
// subscription per queue.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/karthik-ak-dev/pulse-ops/internal/observability/metrics"
	"github.com/karthik-ak-dev/pulse-ops/internal/queue"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

const clientSendBuffer = 16

// Client is one connected subscriber. Frames arrive on Send; the hub
// closes it on unregister.
type Client struct {
	ID      string
	QueueID string
	Send    chan []byte
}

// Hub fans queue events out to subscribers. A subscriber that cannot keep
// up loses frames rather than stalling the rest; every frame carries the
// event sequence so clients detect the gap and re-fetch the snapshot.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewHub creates an empty hub.
func NewHub(m *metrics.Metrics, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		clients: make(map[string]*Client),
		metrics: m,
		logger:  logger.Component("realtime_hub"),
	}
}

var _ queue.Sink = (*Hub)(nil)

// Register adds a subscriber for the queue and returns its client.
func (h *Hub) Register(queueID string) *Client {
	client := &Client{
		ID:      uuid.NewString(),
		QueueID: queueID,
		Send:    make(chan []byte, clientSendBuffer),
	}
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	h.metrics.RealtimeClientConnected()
	h.logger.Debug("client subscribed", "client_id", client.ID, "queue_id", queueID)
	return client
}

// Unregister removes the subscriber and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	if client == nil {
		return
	}
	h.mu.Lock()
	_, ok := h.clients[client.ID]
	if ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.mu.Unlock()
	if ok {
		h.metrics.RealtimeClientDisconnected()
		h.logger.Debug("client unsubscribed", "client_id", client.ID, "queue_id", client.QueueID)
	}
}

// Name identifies the hub in publisher drop metrics.
func (h *Hub) Name() string { return "realtime" }

// Deliver broadcasts the event to the queue's subscribers. Slow clients
// are not a delivery failure.
func (h *Hub) Deliver(_ context.Context, evt *queue.QueueEvent) error {
	frame, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	h.broadcast(evt.QueueID, frame)
	return nil
}

func (h *Hub) broadcast(queueID string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.QueueID != queueID {
			continue
		}
		select {
		case client.Send <- frame:
		default:
			h.metrics.EventDropped("realtime_client")
			h.logger.Warn("frame dropped for slow client", "client_id", client.ID, "queue_id", queueID)
		}
	}
}

// Subscribers reports how many clients follow the queue.
func (h *Hub) Subscribers(queueID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, client := range h.clients {
		if client.QueueID == queueID {
			n++
		}
	}
	return n
}
