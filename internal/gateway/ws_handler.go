package gateway

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/kit/log"
)

// HandleHertzConnection serves GET /ws/chat/:conversation_id on hertz.
// Failed authentication still completes the upgrade, then closes with 4401, 4403 or 4404.
func (s *WsServer) HandleHertzConnection(ctx context.Context, c *app.RequestContext, upgrader *websocket.HertzUpgrader) {
	if s.onlineConnNum.Load() >= s.maxConnNum {
		c.String(503, "connection limit exceeded")
		return
	}

	token := bearerToken(string(c.Query(QueryToken)), string(c.GetHeader("Authorization")))
	userId, conversationId, rej := s.authenticate(ctx, token, c.Param(ParamConversationId))
	bindCtx := context.WithoutCancel(ctx)

	err := upgrader.Upgrade(c, func(conn *websocket.Conn) {
		if rej != nil {
			s.recordReject(bindCtx, rej)
			reject(conn, rej.code, rej.reason, s.cfg.WebSocket.WriteWait)
			return
		}

		wsConn := NewHertzWebSocketClientConn(conn, &s.cfg.WebSocket)
		client := s.bind(bindCtx, wsConn, userId, conversationId)

		// Blocking - handles message loop
		client.readLoop()
	})

	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
		return
	}
}
