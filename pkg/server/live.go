package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/robotnikz/sunflow/pkg/log"
	"github.com/robotnikz/sunflow/pkg/types"
)

const (
	liveWriteTimeout = 5 * time.Second
	// liveSendBuffer is per client; a client that cannot keep up with one
	// sample a minute is dropped rather than backing up the poller.
	liveSendBuffer   = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the dashboard is served from the same origin, or from the dev proxy
	// during development
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans each polled power sample out to the connected live clients. It
// satisfies the collector's Broadcaster interface.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan []byte)}
}

// Broadcast queues the sample for every connected client. Slow clients are
// disconnected instead of blocking.
func (h *Hub) Broadcast(sample types.PowerSample) {
	payload, err := json.Marshal(sample)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, send := range h.clients {
		select {
		case send <- payload:
		default:
			delete(h.clients, conn)
			close(send)
			conn.Close()
		}
	}
}

func (h *Hub) register(conn *websocket.Conn) chan []byte {
	send := make(chan []byte, liveSendBuffer)
	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()
	return send
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if send, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(send)
	}
	h.mu.Unlock()
}

// ClientCount reports the connected live clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		log.Ctx(ctx).WarnContext(ctx, "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	send := s.hub.register(conn)
	log.Ctx(ctx).DebugContext(ctx, "live client connected", "clients", s.hub.ClientCount())

	// writer: samples queued by the hub
	done := make(chan struct{})
	go func() {
		defer close(done)
		for payload := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}()

	// reader: the client never sends data, this just surfaces disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	// closing the send channel stops the writer
	s.hub.unregister(conn)
	<-done
}
