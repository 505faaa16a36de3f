package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/codec"
	"github.com/mbeoliero/nexo-chat/internal/config"
	"github.com/mbeoliero/nexo-chat/internal/gateway"
	"github.com/mbeoliero/nexo-chat/internal/handler"
	"github.com/mbeoliero/nexo-chat/internal/metrics"
	"github.com/mbeoliero/nexo-chat/internal/notify"
	"github.com/mbeoliero/nexo-chat/internal/repository"
	"github.com/mbeoliero/nexo-chat/internal/router"
	"github.com/mbeoliero/nexo-chat/internal/service"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/mbeoliero/nexo-chat/pkg/idgen"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		log.CtxError(ctx, "failed to load config: %v", err)
		panic(err)
	}

	log.CtxInfo(ctx, "config loaded: mode=%s", cfg.Server.Mode)

	// Missing or malformed content key is fatal
	contentCodec, err := codec.NewFromBase64(cfg.Crypto.ContentKey)
	if err != nil {
		log.CtxError(ctx, "failed to load content key: %v", err)
		panic(err)
	}

	constant.InitRedisKeyPrefix(cfg.Redis.KeyPrefix)
	log.CtxInfo(ctx, "redis key prefix: %s", constant.GetRedisKeyPrefix())

	gen, err := idgen.NewSonyflakeGenerator(cfg.Server.MachineId)
	if err != nil {
		log.CtxError(ctx, "failed to create id generator: %v", err)
		panic(err)
	}
	idgen.SetDefaultGenerator(gen)

	metrics.Register()

	// Initialize repositories
	repos, err := repository.NewRepositories(cfg)
	if err != nil {
		log.CtxError(ctx, "failed to initialize repositories: %v", err)
		panic(err)
	}
	defer repos.Close()

	if err := repos.CheckConnection(ctx); err != nil {
		log.CtxError(ctx, "database connection check failed: %v", err)
		panic(err)
	}
	log.CtxInfo(ctx, "database connection established")

	// Initialize services
	msgService := service.NewMessageService(repos, contentCodec)
	deliveryService := service.NewDeliveryService(repos)
	convService := service.NewConversationService(repos)
	inboxService := service.NewInboxService(repos, contentCodec)
	guard := service.NewGuard(service.NewRestrictionAuthority(repos))

	// Initialize WebSocket server, which is also the event publisher
	wsServer := gateway.NewWsServer(cfg, repos.Redis, &gateway.Services{
		Message:      msgService,
		Delivery:     deliveryService,
		Conversation: convService,
		Guard:        guard,
	})
	msgService.SetPublisher(wsServer)
	deliveryService.SetPublisher(wsServer)

	if cfg.Notify.Enabled {
		queueKey := constant.GetRedisKeyPrefix() + cfg.Notify.QueueKey
		wsServer.SetNotifier(notify.NewRedisQueue(repos.Redis, queueKey))
		log.CtxInfo(ctx, "offline notifications enabled: queue=%s", queueKey)
	}

	wsServer.Run(ctx)
	log.CtxInfo(ctx, "websocket server started")

	handlers := &router.Handlers{
		Message:      handler.NewMessageHandler(msgService, deliveryService, wsServer),
		Conversation: handler.NewConversationHandler(convService, msgService, inboxService),
	}

	h := server.Default(
		server.WithHostPorts(fmt.Sprintf(":%d", cfg.Server.HTTPPort)),
	)
	// hijacked websocket connections must not return to the pool
	h.NoHijackConnPool = true

	router.SetupRouter(h, cfg, handlers, guard, wsServer)

	log.CtxInfo(ctx, "server starting on port %d", cfg.Server.HTTPPort)

	go func() {
		h.Spin()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.CtxInfo(ctx, "shutting down server...")

	if err := h.Shutdown(ctx); err != nil {
		log.CtxError(ctx, "server shutdown error: %v", err)
	}
	cancel()

	log.CtxInfo(ctx, "server stopped")
}
