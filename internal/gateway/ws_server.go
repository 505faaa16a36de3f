package gateway

import (
	"context"
	"errors"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/config"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/event"
	"github.com/mbeoliero/nexo-chat/internal/metrics"
	"github.com/mbeoliero/nexo-chat/internal/notify"
	"github.com/mbeoliero/nexo-chat/internal/service"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
	"github.com/mbeoliero/nexo-chat/pkg/jwt"
	"github.com/redis/go-redis/v9"
)

const previewMaxRunes = 100

// Services are the messaging core operations the gateway drives
type Services struct {
	Message      *service.MessageService
	Delivery     *service.DeliveryService
	Conversation *service.ConversationService
	Guard        *service.Guard
}

// WsServer is the WebSocket server and the fan-out broker's delivery side
type WsServer struct {
	upgrader      *websocket.Upgrader
	cfg           *config.Config
	broker        *Broker
	presence      *Presence
	shards        []chan *pushTask
	msgService    *service.MessageService
	delivery      *service.DeliveryService
	convService   *service.ConversationService
	guard         *service.Guard
	notifier      notify.Notifier
	onlineConnNum atomic.Int64
	maxConnNum    int64
}

// pushTask is one encoded event waiting for fan-out
type pushTask struct {
	groupKey string
	evType   string
	data     []byte
}

// rejection is why a connection is closed right after the upgrade
type rejection struct {
	code   int
	reason string
}

// NewWsServer creates a new WebSocket server
func NewWsServer(cfg *config.Config, rdb *redis.Client, svc *Services) *WsServer {
	upgrader := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	shardNum := cfg.WebSocket.PushWorkerNum
	if shardNum <= 0 {
		shardNum = 10
	}
	shards := make([]chan *pushTask, shardNum)
	for i := range shards {
		shards[i] = make(chan *pushTask, cfg.WebSocket.PushChannelSize)
	}

	return &WsServer{
		upgrader:    upgrader,
		cfg:         cfg,
		broker:      NewBroker(),
		presence:    NewPresence(rdb),
		shards:      shards,
		msgService:  svc.Message,
		delivery:    svc.Delivery,
		convService: svc.Conversation,
		guard:       svc.Guard,
		notifier:    notify.Nop{},
		maxConnNum:  cfg.WebSocket.MaxConnNum,
	}
}

// SetNotifier sets where offline notification jobs go
func (s *WsServer) SetNotifier(n notify.Notifier) {
	s.notifier = n
}

// Broker returns the subscription registry
func (s *WsServer) Broker() *Broker {
	return s.broker
}

// Presence returns the live connection tracker
func (s *WsServer) Presence() *Presence {
	return s.presence
}

// Run starts one push worker per shard
func (s *WsServer) Run(ctx context.Context) {
	for _, shard := range s.shards {
		go s.pushLoop(ctx, shard)
	}
	log.Info("started %d push workers", len(s.shards))
}

// pushLoop drains one shard in FIFO order
func (s *WsServer) pushLoop(ctx context.Context, shard chan *pushTask) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-shard:
			s.processPushTask(task)
		}
	}
}

// processPushTask delivers to a snapshot of the group. A failing subscriber only loses its own copy.
func (s *WsServer) processPushTask(task *pushTask) {
	for _, client := range s.broker.Subscribers(task.groupKey) {
		if err := client.Deliver(task.data); err != nil {
			metrics.DeliveryDropped.Inc()
			log.Debug("deliver failed: group=%s, user_id=%d, conn_id=%s, type=%s, error=%v",
				task.groupKey, client.UserId, client.ConnId, task.evType, err)
		}
	}
}

// Publish encodes ev once and queues it on the group's shard without blocking.
// Events of one group always land on the same shard, which keeps their order.
func (s *WsServer) Publish(groupKey string, ev event.Outbound) {
	evType := event.TypeOf(ev)
	data, err := event.Encode(ev)
	if err != nil {
		log.Warn("encode event failed: group=%s, type=%s, error=%v", groupKey, evType, err)
		return
	}

	task := &pushTask{groupKey: groupKey, evType: evType, data: data}
	select {
	case s.shards[shardIndex(groupKey, len(s.shards))] <- task:
		metrics.PublishedEvents.WithLabelValues(evType).Inc()
	default:
		metrics.ShardQueueFull.Inc()
		log.Warn("push shard full, event dropped: group=%s, type=%s", groupKey, evType)
	}
}

func shardIndex(groupKey string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(groupKey))
	return int(h.Sum32() % uint32(n))
}

// GetOnlineConnCount returns online connection count
func (s *WsServer) GetOnlineConnCount() int64 {
	return s.onlineConnNum.Load()
}

// GetOnlineUserCount returns online user count
func (s *WsServer) GetOnlineUserCount() int {
	return s.presence.OnlineUserCount()
}

// authenticate resolves the token and target conversation of a handshake
func (s *WsServer) authenticate(ctx context.Context, token, conversationIdStr string) (int64, int64, *rejection) {
	if token == "" {
		return 0, 0, &rejection{code: CloseUnauthorized, reason: errcode.ErrTokenMissing.Msg}
	}
	claims, err := jwt.ParseToken(token, s.cfg.JWT.Secret)
	if err != nil {
		log.CtxDebug(ctx, "token validation failed: error=%v", err)
		return 0, 0, &rejection{code: CloseUnauthorized, reason: errcode.ErrTokenInvalid.Msg}
	}

	conversationId, err := strconv.ParseInt(conversationIdStr, 10, 64)
	if err != nil || conversationId <= 0 {
		return 0, 0, &rejection{code: CloseNotFound, reason: errcode.ErrConvNotFound.Msg}
	}

	if err := s.convService.IsMember(ctx, conversationId, claims.UserId); err != nil {
		switch {
		case errors.Is(err, errcode.ErrConvNotFound):
			return 0, 0, &rejection{code: CloseNotFound, reason: errcode.ErrConvNotFound.Msg}
		case errors.Is(err, errcode.ErrNotConversationMember):
			return 0, 0, &rejection{code: CloseForbidden, reason: errcode.ErrNotConversationMember.Msg}
		default:
			return 0, 0, &rejection{code: websocket.CloseInternalServerErr, reason: errcode.ErrInternalServer.Msg}
		}
	}
	return claims.UserId, conversationId, nil
}

func (s *WsServer) recordReject(ctx context.Context, rej *rejection) {
	metrics.HandshakeRejects.WithLabelValues(strconv.Itoa(rej.code)).Inc()
	log.CtxInfo(ctx, "connection rejected: code=%d, reason=%s", rej.code, rej.reason)
}

// bind registers a fresh client in presence and in its conversation group
func (s *WsServer) bind(ctx context.Context, conn ClientConn, userId, conversationId int64) *Client {
	client := NewClient(conn, userId, conversationId, uuid.New().String(), s)

	first := s.presence.Add(ctx, client)
	s.broker.Subscribe(client.GroupKey, client)
	s.onlineConnNum.Add(1)
	metrics.OnlineConns.Inc()

	log.CtxInfo(ctx, "client bound: user_id=%d, conversation_id=%d, conn_id=%s, first_conn=%v, online_conns=%d",
		userId, conversationId, client.ConnId, first, s.onlineConnNum.Load())
	return client
}

// unregisterClient undoes bind
func (s *WsServer) unregisterClient(client *Client) {
	ctx := context.WithoutCancel(client.ctx)

	s.broker.Unsubscribe(client.GroupKey, client)
	offline := s.presence.Remove(ctx, client)
	s.onlineConnNum.Add(-1)
	metrics.OnlineConns.Dec()

	log.CtxInfo(ctx, "client unregistered: user_id=%d, conversation_id=%d, conn_id=%s, user_offline=%v, online_conns=%d, reason=%v",
		client.UserId, client.ConversationId, client.ConnId, offline, s.onlineConnNum.Load(), client.closedErr)
}

// HandleConnection serves the websocket route on net/http. The conversation id comes from the
// {conversation_id} path wildcard.
func (s *WsServer) HandleConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.onlineConnNum.Load() >= s.maxConnNum {
		http.Error(w, "connection limit exceeded", http.StatusServiceUnavailable)
		return
	}

	token := bearerToken(r.URL.Query().Get(QueryToken), r.Header.Get("Authorization"))
	userId, conversationId, rej := s.authenticate(ctx, token, r.PathValue(ParamConversationId))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
		return
	}

	if rej != nil {
		s.recordReject(ctx, rej)
		reject(conn, rej.code, rej.reason, s.cfg.WebSocket.WriteWait)
		return
	}

	wsConn := NewWebSocketClientConn(conn, &s.cfg.WebSocket)
	client := s.bind(context.WithoutCancel(ctx), wsConn, userId, conversationId)
	go client.readLoop()
}

// bearerToken prefers the query token, then an Authorization: Bearer header
func bearerToken(query, header string) string {
	if query != "" {
		return query
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// ========== Frame Handlers ==========

// HandleMessage persists and publishes a text message, then queues offline notifications
func (s *WsServer) HandleMessage(ctx context.Context, client *Client, f *MessageFrame) error {
	text := f.Message
	msg, err := s.msgService.Create(ctx, client.ConversationId, client.UserId, &text, f.MediaUrl)
	if err != nil {
		return err
	}
	s.NotifyOffline(ctx, msg, previewOf(text))
	return nil
}

// HandleMediaMessage republishes a message whose media was uploaded out of band
func (s *WsServer) HandleMediaMessage(ctx context.Context, client *Client, f *MediaMessageFrame) error {
	_, err := s.msgService.NotifyMedia(ctx, client.ConversationId, client.UserId, f.MessageId)
	return err
}

// HandleSeen marks a message seen for the connection's user
func (s *WsServer) HandleSeen(ctx context.Context, client *Client, f *SeenFrame) error {
	_, err := s.delivery.MarkSeen(ctx, f.MessageId, client.UserId)
	return err
}

// HandleReaction sets the connection user's reaction on a message
func (s *WsServer) HandleReaction(ctx context.Context, client *Client, f *ReactionFrame) error {
	_, err := s.delivery.SetReaction(ctx, f.MessageId, client.UserId, f.Reaction)
	return err
}

// NotifyOffline queues a notification for every member of the message's conversation,
// other than the sender, that has no live connection anywhere
func (s *WsServer) NotifyOffline(ctx context.Context, msg *entity.Message, preview string) {
	memberIds, err := s.convService.MemberIds(ctx, msg.ConversationId)
	if err != nil {
		return
	}
	for _, userId := range memberIds {
		if userId == msg.SenderId || s.presence.IsOnline(ctx, userId) {
			continue
		}
		job := &notify.Job{
			UserId:         userId,
			ConversationId: msg.ConversationId,
			MessageId:      msg.Id,
			SenderId:       msg.SenderId,
			Preview:        preview,
			HasMedia:       msg.MediaUrl != nil,
		}
		if err := s.notifier.Notify(ctx, job); err != nil {
			log.CtxWarn(ctx, "notify offline member failed: user_id=%d, message_id=%d, error=%v", userId, msg.Id, err)
		}
	}
}

func previewOf(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= previewMaxRunes {
		return text
	}
	return string([]rune(text)[:previewMaxRunes])
}
