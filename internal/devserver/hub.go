package devserver

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/class-reserve/client/internal/metrics"
	"github.com/class-reserve/client/internal/stream"
)

// Hub maintains the set of connected storefront clients and fans
// reservation events out to them. Per-connection delivery is FIFO: each
// client drains its own buffered channel in order.
type Hub struct {
	log *zap.Logger

	clients    map[*hubClient]bool
	broadcast  chan []byte
	register   chan *hubClient
	unregister chan *hubClient

	mu sync.RWMutex
}

// NewHub creates a new hub.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:        log,
		clients:    make(map[*hubClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
	}
}

// Run starts the hub's main event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client connected",
				zap.String("conn_id", client.id), zap.Int("total", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client disconnected",
				zap.String("conn_id", client.id), zap.Int("total", n))

		case frame := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- frame:
				default:
					// Send buffer full, drop the connection.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastEvent wraps ev in the wire envelope and sends it to every
// connected client.
func (h *Hub) BroadcastEvent(ev stream.LiveEvent) {
	frame, err := stream.MarshalFrame(ev)
	if err != nil {
		h.log.Error("encoding event frame", zap.Error(err))
		return
	}
	metrics.EventsBroadcastTotal.Inc()
	select {
	case h.broadcast <- frame:
	default:
		h.log.Warn("broadcast channel full, dropping event")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// hubClient is one connected storefront client.
type hubClient struct {
	id   string
	send chan []byte
}

func newHubClient() *hubClient {
	return &hubClient{
		id:   uuid.NewString(),
		send: make(chan []byte, 256),
	}
}
