package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbeoliero/nexo-chat/internal/config"
	"github.com/mbeoliero/nexo-chat/internal/gateway"
	"github.com/mbeoliero/nexo-chat/internal/handler"
	"github.com/mbeoliero/nexo-chat/internal/metrics"
	"github.com/mbeoliero/nexo-chat/internal/middleware"
	"github.com/mbeoliero/nexo-chat/internal/service"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	Message      *handler.MessageHandler
	Conversation *handler.ConversationHandler
}

// SetupRouter sets up all routes
func SetupRouter(h *server.Hertz, cfg *config.Config, handlers *Handlers, guard *service.Guard, wsServer *gateway.WsServer) {
	h.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
	})
	h.GET("/metrics", metrics.Handler(prometheus.DefaultGatherer))

	auth := middleware.JWTAuth(cfg.JWT.Secret)
	write := middleware.WriteGuard(guard)

	chat := h.Group("/chat", auth)
	{
		chat.GET("/inbox", handlers.Conversation.Inbox)
		chat.POST("/direct/:user_id", write, handlers.Conversation.OpenDirect)
		chat.POST("/media", write, handlers.Message.CreateMedia)
	}

	conv := chat.Group("/conversations/:conversation_id")
	{
		conv.GET("/messages", handlers.Message.History)
		conv.GET("/unseen", handlers.Message.Unseen)
		conv.POST("/pin", write, handlers.Conversation.TogglePin)
	}

	msg := chat.Group("/messages/:message_id")
	{
		msg.DELETE("", write, handlers.Message.Delete)
		msg.GET("/seen", handlers.Message.SeenBy)
		msg.POST("/seen", write, handlers.Message.MarkSeen)
		msg.POST("/reaction", write, handlers.Message.SetReaction)
	}

	groups := chat.Group("/groups")
	{
		groups.POST("", write, handlers.Conversation.CreateGroup)
		groups.GET("/:conversation_id", handlers.Conversation.GroupDetail)
		groups.PUT("/:conversation_id", write, handlers.Conversation.UpdateGroup)
		groups.POST("/:conversation_id/members", write, handlers.Conversation.AddMembers)
	}

	// WebSocket route using hertz-contrib/websocket with origin validation
	allowedOrigins := cfg.Server.AllowedOrigins
	upgrader := &websocket.HertzUpgrader{
		CheckOrigin: func(ctx *app.RequestContext) bool {
			return checkOrigin(ctx, allowedOrigins)
		},
	}

	h.GET("/ws/chat/:conversation_id", func(ctx context.Context, c *app.RequestContext) {
		wsServer.HandleHertzConnection(ctx, c, upgrader)
	})
}

// checkOrigin validates the Origin header against allowed origins.
// Requests without an Origin header come from non-browser clients and pass.
func checkOrigin(ctx *app.RequestContext, allowedOrigins []string) bool {
	origin := string(ctx.Request.Header.Peek("Origin"))
	if origin == "" {
		return true
	}
	return middleware.OriginAllowed(origin, allowedOrigins)
}
