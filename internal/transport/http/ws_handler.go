package http

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"classquiz-service/internal/app"
)

// WSHandler upgrades HTTP requests to websockets and wires each
// connection into the event router.
type WSHandler struct {
	router   *Router
	registry *app.Registry
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(router *Router, registry *app.Registry, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		router:   router,
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS runs one connection: a writer goroutine plus a read loop that
// feeds the router until the peer goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	client := newClient(uuid.New().String(), conn, h.logger)
	go client.writePump()
	client.readPump(h.router)
}

// ServeActiveRooms is the read-only dashboard projection of live rooms.
func (h *WSHandler) ServeActiveRooms(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.registry.ActiveRooms()); err != nil {
		h.logger.Warn("write active rooms failed", zap.Error(err))
	}
}
