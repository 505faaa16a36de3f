package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/mbeoliero/nexo-chat/internal/codec"
	"github.com/mbeoliero/nexo-chat/internal/config"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/event"
	"github.com/mbeoliero/nexo-chat/internal/notify"
	"github.com/mbeoliero/nexo-chat/internal/repository"
	"github.com/mbeoliero/nexo-chat/internal/service"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
	"github.com/mbeoliero/nexo-chat/pkg/jwt"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "gateway-test-secret"

var dbSeq atomic.Int64

type gatewayEnv struct {
	repos  *repository.Repositories
	svc    *Services
	server *WsServer
	queue  *notify.RedisQueue
	ts     *httptest.Server
}

func newGatewayEnv(t *testing.T) *gatewayEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:gateway_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repository.AutoMigrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repos := repository.NewRepositoriesWith(db, rdb, time.Minute)
	t.Cleanup(func() { _ = repos.Close() })

	key, err := codec.GenerateKey()
	require.NoError(t, err)
	c, err := codec.NewFromBase64(key)
	require.NoError(t, err)

	svc := &Services{
		Message:      service.NewMessageService(repos, c),
		Delivery:     service.NewDeliveryService(repos),
		Conversation: service.NewConversationService(repos),
		Guard:        service.NewGuard(service.NewRestrictionAuthority(repos)),
	}

	cfg := &config.Config{}
	cfg.JWT.Secret = testSecret
	cfg.ApplyDefaults()

	server := NewWsServer(cfg, rdb, svc)
	svc.Message.SetPublisher(server)
	svc.Delivery.SetPublisher(server)
	queue := notify.NewRedisQueue(rdb, "test:push:queue")
	server.SetNotifier(queue)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	server.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/chat/{conversation_id}", server.HandleConnection)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &gatewayEnv{repos: repos, svc: svc, server: server, queue: queue, ts: ts}
}

func (e *gatewayEnv) seedUsers(t *testing.T, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, e.repos.User.Create(context.Background(), &entity.User{
			Id:       id,
			Nickname: fmt.Sprintf("user%d", id),
		}))
	}
}

func (e *gatewayEnv) dialRaw(t *testing.T, conversationId int64, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + fmt.Sprintf("/ws/chat/%d?token=%s", conversationId, token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// dial connects userId and waits until the connection is subscribed
func (e *gatewayEnv) dial(t *testing.T, conversationId, userId int64) *websocket.Conn {
	t.Helper()
	token, err := jwt.GenerateToken(userId, testSecret, time.Hour)
	require.NoError(t, err)

	key := event.GroupKey(conversationId)
	before := e.server.Broker().SubscriberCount(key)
	conn := e.dialRaw(t, conversationId, token)
	require.Eventually(t, func() bool {
		return e.server.Broker().SubscriberCount(key) == before+1
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, v any) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var header struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(data, &header))
	if v != nil {
		require.NoError(t, json.Unmarshal(data, v))
	}
	return header.Type
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func TestGateway_DirectMessageSeenFlow(t *testing.T) {
	ctx := context.Background()
	env := newGatewayEnv(t)
	env.seedUsers(t, 1, 2)

	conv, err := env.svc.Conversation.GetOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)

	a := env.dial(t, conv.Id, 1)
	b := env.dial(t, conv.Id, 2)

	writeFrame(t, a, `{"type":"message","message":"hi","sender_id":1}`)

	var got event.Message
	require.Equal(t, event.TypeMessage, readFrame(t, b, &got))
	assert.Equal(t, "hi", got.Message)
	assert.Equal(t, int64(1), got.SenderId)
	assert.Equal(t, conv.Id, got.ConversationId)
	assert.NotZero(t, got.MessageId)
	_, err = time.Parse(time.RFC3339, got.Timestamp)
	assert.NoError(t, err)

	// the sender's own connection gets the echo too
	var echo event.Message
	require.Equal(t, event.TypeMessage, readFrame(t, a, &echo))
	assert.Equal(t, got.MessageId, echo.MessageId)

	unseen, err := env.svc.Delivery.UnseenCount(ctx, conv.Id, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unseen)

	writeFrame(t, b, fmt.Sprintf(`{"type":"seen","message_id":%d,"user_id":2}`, got.MessageId))

	var seen event.Seen
	require.Equal(t, event.TypeSeen, readFrame(t, a, &seen))
	assert.Equal(t, got.MessageId, seen.MessageId)
	assert.Equal(t, int64(2), seen.UserId)

	unseen, err = env.svc.Delivery.UnseenCount(ctx, conv.Id, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unseen)
}

func TestGateway_ReactionBroadcast(t *testing.T) {
	ctx := context.Background()
	env := newGatewayEnv(t)
	env.seedUsers(t, 1, 2)
	conv, err := env.svc.Conversation.GetOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)
	text := "pic"
	msg, err := env.svc.Message.Create(ctx, conv.Id, 1, &text, nil)
	require.NoError(t, err)

	a := env.dial(t, conv.Id, 1)
	b := env.dial(t, conv.Id, 2)

	writeFrame(t, b, fmt.Sprintf(`{"type":"reaction","message_id":%d,"user_id":2,"reaction":"laugh"}`, msg.Id))

	var reaction event.Reaction
	require.Equal(t, event.TypeReaction, readFrame(t, a, &reaction))
	assert.Equal(t, "laugh", reaction.Reaction)
	assert.Equal(t, "😂", reaction.Emoji)
}

func TestGateway_BadFramesKeepConnectionOpen(t *testing.T) {
	ctx := context.Background()
	env := newGatewayEnv(t)
	env.seedUsers(t, 1, 2)
	conv, err := env.svc.Conversation.GetOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)

	a := env.dial(t, conv.Id, 1)
	b := env.dial(t, conv.Id, 2)

	writeFrame(t, a, `not json`)
	writeFrame(t, a, `{"type":"typing","user_id":1}`)

	// foreign sender is dropped and reported only to the origin
	writeFrame(t, a, `{"type":"message","message":"spoof","sender_id":2,"ref":"r1"}`)
	var rejected event.Error
	require.Equal(t, event.TypeError, readFrame(t, a, &rejected))
	assert.Equal(t, errcode.ErrSenderMismatch.Code, rejected.Code)
	assert.Equal(t, "r1", rejected.Ref)

	// validation failure
	writeFrame(t, a, `{"type":"message","message":"   ","sender_id":1}`)
	require.Equal(t, event.TypeError, readFrame(t, a, &rejected))
	assert.Equal(t, errcode.ErrEmptyMessage.Code, rejected.Code)

	// not found
	writeFrame(t, b, `{"type":"seen","message_id":99999,"user_id":2}`)
	require.Equal(t, event.TypeError, readFrame(t, b, &rejected))
	assert.Equal(t, errcode.ErrMessageNotFound.Code, rejected.Code)

	writeFrame(t, a, `{"type":"message","message":"still here","sender_id":1}`)
	var got event.Message
	require.Equal(t, event.TypeMessage, readFrame(t, b, &got))
	assert.Equal(t, "still here", got.Message)
}

func TestGateway_SuspendedUserCannotWrite(t *testing.T) {
	ctx := context.Background()
	env := newGatewayEnv(t)
	env.seedUsers(t, 1, 2)
	conv, err := env.svc.Conversation.GetOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)
	require.NoError(t, env.repos.Restriction.Upsert(ctx, &entity.AccountRestriction{
		UserId:           1,
		IsSuspended:      true,
		SuspensionReason: "spam",
	}))

	a := env.dial(t, conv.Id, 1)
	writeFrame(t, a, `{"type":"message","message":"hi","sender_id":1}`)

	var rejected event.Error
	require.Equal(t, event.TypeError, readFrame(t, a, &rejected))
	assert.Equal(t, errcode.ErrAccountSuspended.Code, rejected.Code)
	assert.Contains(t, rejected.Msg, "spam")

	page, err := env.svc.Message.List(ctx, conv.Id, 2, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
}

func TestGateway_HandshakeRejections(t *testing.T) {
	ctx := context.Background()
	env := newGatewayEnv(t)
	env.seedUsers(t, 1, 2, 3)
	conv, err := env.svc.Conversation.GetOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)

	outsider, err := jwt.GenerateToken(3, testSecret, time.Hour)
	require.NoError(t, err)
	member, err := jwt.GenerateToken(1, testSecret, time.Hour)
	require.NoError(t, err)
	expired, err := jwt.GenerateToken(1, testSecret, -time.Minute)
	require.NoError(t, err)

	cases := []struct {
		name   string
		convId int64
		token  string
		code   int
	}{
		{"garbage token", conv.Id, "not-a-token", CloseUnauthorized},
		{"missing token", conv.Id, "", CloseUnauthorized},
		{"expired token", conv.Id, expired, CloseUnauthorized},
		{"non member", conv.Id, outsider, CloseForbidden},
		{"unknown conversation", 424242, member, CloseNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := env.dialRaw(t, tc.convId, tc.token)
			require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
			_, _, err := conn.ReadMessage()
			require.Error(t, err)
			assert.True(t, websocket.IsCloseError(err, tc.code), "got %v", err)
		})
	}
	assert.Equal(t, 0, env.server.Broker().SubscriberCount(event.GroupKey(conv.Id)))
}

func TestGateway_DisconnectCleansUp(t *testing.T) {
	ctx := context.Background()
	env := newGatewayEnv(t)
	env.seedUsers(t, 1, 2)
	conv, err := env.svc.Conversation.GetOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)

	a := env.dial(t, conv.Id, 1)
	assert.True(t, env.server.Presence().IsOnline(ctx, 1))

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool {
		return env.server.Broker().SubscriberCount(event.GroupKey(conv.Id)) == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return !env.server.Presence().IsOnline(ctx, 1)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), env.server.GetOnlineConnCount())
}

func TestGateway_OfflineMemberGetsNotifyJob(t *testing.T) {
	ctx := context.Background()
	env := newGatewayEnv(t)
	env.seedUsers(t, 1, 2)
	conv, err := env.svc.Conversation.GetOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)

	a := env.dial(t, conv.Id, 1)
	writeFrame(t, a, `{"type":"message","message":"are you there?","sender_id":1}`)

	var echo event.Message
	require.Equal(t, event.TypeMessage, readFrame(t, a, &echo))

	require.Eventually(t, func() bool {
		n, err := env.queue.Len(ctx)
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)

	job, err := env.queue.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, int64(2), job.UserId)
	assert.Equal(t, echo.MessageId, job.MessageId)
	assert.Equal(t, "are you there?", job.Preview)
}

func TestPreviewOf(t *testing.T) {
	assert.Equal(t, "hi", previewOf("  hi "))
	long := strings.Repeat("é", previewMaxRunes+10)
	assert.Equal(t, previewMaxRunes, len([]rune(previewOf(long))))
}
