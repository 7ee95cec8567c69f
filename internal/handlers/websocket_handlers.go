package handlers

import (
	"context"
	"net/http"

	ws "ridematch/internal/websocket"
	"ridematch/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	gateway         *ws.Gateway
	maxMessageBytes int64
	upgrader        websocket.Upgrader
	// base outlives individual requests so sessions are not tied to the
	// upgrade request's context.
	base context.Context
}

func NewWebSocketHandlers(base context.Context, gateway *ws.Gateway, maxMessageBytes int64) *WebSocketHandlers {
	return &WebSocketHandlers{
		gateway:         gateway,
		maxMessageBytes: maxMessageBytes,
		base:            base,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Any origin may connect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket upgrades the connection and runs the gateway session until
// the transport closes. Identity arrives later in the register frame.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(conn, h.maxMessageBytes)
	logger.Debug().Str("conn_id", client.ID()).Str("remote_addr", r.RemoteAddr).Msg("websocket connected")

	go client.WritePump()
	h.gateway.Serve(h.base, client)
	client.Close()

	logger.Debug().Str("conn_id", client.ID()).Msg("websocket disconnected")
}
