package gateway

import (
	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/nexo-chat/internal/config"
)

// NewHertzWebSocketClientConn wraps a hertz-contrib connection
func NewHertzWebSocketClientConn(conn *websocket.Conn, cfg *config.WebSocketConfig) ClientConn {
	return newQueuedConn(conn, cfg)
}
