package http

import (
	"sync"

	"go.uber.org/zap"
)

// Hub maintains roomID -> set of clients and fans events out to a
// room's channel. Per-client send buffers keep one slow reader from
// blocking a broadcast.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*Client
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:  make(map[string]map[string]*Client),
		logger: logger,
	}
}

// Join subscribes a client to a room's broadcast channel.
func (h *Hub) Join(roomID string, c *Client) {
	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined channel",
		zap.String("conn_id", c.ID),
		zap.String("room_id", roomID))
}

// Leave unsubscribes a client.
func (h *Hub) Leave(roomID string, c *Client) {
	h.mu.Lock()
	if clients, ok := h.rooms[roomID]; ok {
		delete(clients, c.ID)
		if len(clients) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()
}

// CloseRoom drops the whole channel, e.g. after a room-deleted broadcast.
func (h *Hub) CloseRoom(roomID string) {
	h.mu.Lock()
	delete(h.rooms, roomID)
	h.mu.Unlock()
}

// Broadcast sends an event to every client in a room.
func (h *Hub) Broadcast(roomID, event string, payload any) {
	h.broadcast(roomID, "", event, payload)
}

// BroadcastExcept sends to everyone in a room but the named connection.
func (h *Hub) BroadcastExcept(roomID, exceptConnID, event string, payload any) {
	h.broadcast(roomID, exceptConnID, event, payload)
}

func (h *Hub) broadcast(roomID, exceptConnID, event string, payload any) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[roomID]))
	for _, c := range h.rooms[roomID] {
		if c.ID != exceptConnID {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.enqueue(outbound{Type: event, Payload: payload})
	}
}
