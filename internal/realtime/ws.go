package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/karthik-ak-dev/pulse-ops/internal/queue"
	"github.com/karthik-ak-dev/pulse-ops/internal/tenancy"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	readLimit  = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// queueLookup is the slice of the queue store the WS handler needs to
// verify a subscription target.
type queueLookup interface {
	GetQueue(ctx context.Context, queueID string) (*queue.Queue, error)
}

// WSHandler upgrades subscribers onto the hub.
type WSHandler struct {
	hub    *Hub
	queues queueLookup
	logger *logging.Logger
}

// NewWSHandler creates the WebSocket subscribe handler.
func NewWSHandler(hub *Hub, queues queueLookup, logger *logging.Logger) *WSHandler {
	if hub == nil {
		panic("realtime: hub cannot be nil")
	}
	if queues == nil {
		panic("realtime: queue lookup cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WSHandler{
		hub:    hub,
		queues: queues,
		logger: logger.Component("realtime_ws"),
	}
}

// Subscribe handles GET /v1/ws/queues/{queueID}. The queue must exist and
// belong to the actor's clinic before the connection upgrades.
func (h *WSHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	queueID := chi.URLParam(r, "queueID")
	q, err := h.queues.GetQueue(r.Context(), queueID)
	if err != nil {
		http.Error(w, "queue not found", http.StatusNotFound)
		return
	}
	if actor, ok := tenancy.ActorFromContext(r.Context()); ok && actor.ClinicID != q.ClinicID {
		http.Error(w, "queue not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "queue_id", queueID, "error", err)
		return
	}

	client := h.hub.Register(queueID)
	go h.writePump(conn, client)
	h.readPump(conn, client)
}

// readPump drains inbound frames until the peer goes away. Subscriptions
// are fixed by the URL, so client messages only feed the pong handler.
func (h *WSHandler) readPump(conn *websocket.Conn, client *Client) {
	defer func() {
		h.hub.Unregister(client)
		_ = conn.Close()
	}()

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pushes hub frames to the peer and keeps the connection alive
// with pings. It exits when the hub closes the client's channel.
func (h *WSHandler) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame, ok := <-client.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
