package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/mbeoliero/nexo-chat/internal/codec"
	"github.com/mbeoliero/nexo-chat/internal/config"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/gateway"
	"github.com/mbeoliero/nexo-chat/internal/handler"
	"github.com/mbeoliero/nexo-chat/internal/metrics"
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

const testSecret = "router-test-secret"

var dbSeq atomic.Int64

// apiResponse mirrors the response envelope
type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data,omitempty"`
}

type apiEnv struct {
	h     *server.Hertz
	repos *repository.Repositories
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:router_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
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

	cfg := &config.Config{}
	cfg.JWT.Secret = testSecret
	cfg.ApplyDefaults()

	msgService := service.NewMessageService(repos, c)
	deliveryService := service.NewDeliveryService(repos)
	convService := service.NewConversationService(repos)
	inboxService := service.NewInboxService(repos, c)
	guard := service.NewGuard(service.NewRestrictionAuthority(repos))

	wsServer := gateway.NewWsServer(cfg, rdb, &gateway.Services{
		Message:      msgService,
		Delivery:     deliveryService,
		Conversation: convService,
		Guard:        guard,
	})
	msgService.SetPublisher(wsServer)
	deliveryService.SetPublisher(wsServer)

	handlers := &Handlers{
		Message:      handler.NewMessageHandler(msgService, deliveryService, wsServer),
		Conversation: handler.NewConversationHandler(convService, msgService, inboxService),
	}

	h := server.Default(server.WithHostPorts("127.0.0.1:0"))
	SetupRouter(h, cfg, handlers, guard, wsServer)

	return &apiEnv{h: h, repos: repos}
}

func (e *apiEnv) seedUsers(t *testing.T, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, e.repos.User.Create(context.Background(), &entity.User{
			Id:       id,
			Nickname: fmt.Sprintf("user%d", id),
		}))
	}
}

// do performs a request as userId (0 means anonymous) and decodes the envelope
func (e *apiEnv) do(t *testing.T, method, path string, userId int64, body interface{}) (int, *apiResponse) {
	t.Helper()

	headers := []ut.Header{{Key: "Content-Type", Value: "application/json"}}
	if userId != 0 {
		token, err := jwt.GenerateToken(userId, testSecret, time.Hour)
		require.NoError(t, err)
		headers = append(headers, ut.Header{Key: "Authorization", Value: "Bearer " + token})
	}

	var reqBody *ut.Body
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = &ut.Body{Body: bytes.NewReader(data), Len: len(data)}
	}

	w := ut.PerformRequest(e.h.Engine, method, path, reqBody, headers...)
	resp := w.Result()

	var out apiResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &out), "body: %s", resp.Body())
	return resp.StatusCode(), &out
}

func decodeData(t *testing.T, resp *apiResponse, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestHealth(t *testing.T) {
	env := newAPIEnv(t)
	w := ut.PerformRequest(env.h.Engine, "GET", "/health", nil)
	assert.Equal(t, 200, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), "ok")
}

func TestMetricsRoute(t *testing.T) {
	env := newAPIEnv(t)
	metrics.Register()
	metrics.OnlineConns.Set(0)

	w := ut.PerformRequest(env.h.Engine, "GET", "/metrics", nil)
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode())
	assert.Contains(t, string(resp.Header.ContentType()), "text/plain")
	assert.Contains(t, string(resp.Body()), "chat_online_conns 0")
}

func TestAuthRequired(t *testing.T) {
	env := newAPIEnv(t)

	status, resp := env.do(t, "GET", "/chat/inbox", 0, nil)
	assert.Equal(t, 401, status)
	assert.Equal(t, errcode.ErrTokenMissing.Code, resp.Code)

	w := ut.PerformRequest(env.h.Engine, "GET", "/chat/inbox", nil, ut.Header{Key: "Authorization", Value: "Bearer junk"})
	assert.Equal(t, 401, w.Result().StatusCode())
}

func TestGroupLifecycle(t *testing.T) {
	env := newAPIEnv(t)
	env.seedUsers(t, 10, 11, 12, 13)

	status, resp := env.do(t, "POST", "/chat/groups", 10, map[string]interface{}{
		"name":       "team",
		"member_ids": []int64{11},
	})
	assert.Equal(t, 200, status)
	assert.Equal(t, errcode.ErrGroupTooSmall.Code, resp.Code)

	_, resp = env.do(t, "POST", "/chat/groups", 10, map[string]interface{}{
		"name":       "team",
		"member_ids": []int64{11, 12},
	})
	require.Equal(t, 0, resp.Code, resp.Msg)
	var group entity.Conversation
	decodeData(t, resp, &group)
	require.NotZero(t, group.Id)
	assert.True(t, group.IsGroup)

	membersPath := fmt.Sprintf("/chat/groups/%d/members", group.Id)

	_, resp = env.do(t, "POST", membersPath, 11, map[string]interface{}{"member_ids": []int64{13}})
	assert.Equal(t, errcode.ErrNotGroupOwner.Code, resp.Code)

	_, resp = env.do(t, "POST", membersPath, 10, map[string]interface{}{"member_ids": []int64{13, 9999}})
	require.Equal(t, 0, resp.Code, resp.Msg)
	var added handler.AddMembersResp
	decodeData(t, resp, &added)
	assert.Equal(t, 1, added.Count)
	require.Len(t, added.Added, 1)
	assert.Equal(t, int64(13), added.Added[0].Id)

	_, resp = env.do(t, "GET", fmt.Sprintf("/chat/groups/%d", group.Id), 12, nil)
	require.Equal(t, 0, resp.Code, resp.Msg)
	var detail entity.GroupDetail
	decodeData(t, resp, &detail)
	assert.Len(t, detail.Members, 4)

	_, resp = env.do(t, "PUT", fmt.Sprintf("/chat/groups/%d", group.Id), 11, map[string]interface{}{"name": "mine"})
	assert.Equal(t, errcode.ErrNotGroupOwner.Code, resp.Code)

	_, resp = env.do(t, "PUT", fmt.Sprintf("/chat/groups/%d", group.Id), 10, map[string]interface{}{"name": "renamed"})
	require.Equal(t, 0, resp.Code, resp.Msg)

	_, resp = env.do(t, "GET", "/chat/inbox", 13, nil)
	require.Equal(t, 0, resp.Code, resp.Msg)
	var inbox entity.Inbox
	decodeData(t, resp, &inbox)
	require.Len(t, inbox.Group, 1)
	assert.Equal(t, "renamed", inbox.Group[0].Name)
	assert.Equal(t, int64(4), inbox.Group[0].MemberCount)
}

func TestDirectMediaSeenFlow(t *testing.T) {
	env := newAPIEnv(t)
	env.seedUsers(t, 1, 2)

	_, resp := env.do(t, "POST", "/chat/direct/2", 1, nil)
	require.Equal(t, 0, resp.Code, resp.Msg)
	var opened handler.OpenDirectResp
	decodeData(t, resp, &opened)
	require.NotNil(t, opened.Conversation)
	assert.Equal(t, int64(2), opened.OtherUser.Id)
	assert.Empty(t, opened.History.Messages)
	convId := opened.Conversation.Id

	_, resp = env.do(t, "POST", "/chat/media", 1, map[string]interface{}{
		"conversation_id": convId,
		"media_url":       "https://cdn.example.com/a.png",
		"message":         "look",
	})
	require.Equal(t, 0, resp.Code, resp.Msg)
	var media entity.MessageInfo
	decodeData(t, resp, &media)
	require.NotNil(t, media.Message)
	assert.Equal(t, "look", *media.Message)

	_, resp = env.do(t, "GET", fmt.Sprintf("/chat/conversations/%d/messages", convId), 2, nil)
	require.Equal(t, 0, resp.Code, resp.Msg)
	var page entity.MessagePage
	decodeData(t, resp, &page)
	require.Len(t, page.Messages, 1)
	require.NotNil(t, page.Messages[0].MediaUrl)
	assert.Equal(t, "https://cdn.example.com/a.png", *page.Messages[0].MediaUrl)
	assert.False(t, page.Messages[0].IsSeen)

	unseenPath := fmt.Sprintf("/chat/conversations/%d/unseen", convId)
	_, resp = env.do(t, "GET", unseenPath, 2, nil)
	var unseen handler.UnseenResp
	decodeData(t, resp, &unseen)
	assert.Equal(t, int64(1), unseen.UnseenCount)

	_, resp = env.do(t, "POST", fmt.Sprintf("/chat/messages/%d/seen", media.Id), 2, nil)
	require.Equal(t, 0, resp.Code, resp.Msg)

	_, resp = env.do(t, "GET", unseenPath, 2, nil)
	decodeData(t, resp, &unseen)
	assert.Equal(t, int64(0), unseen.UnseenCount)

	_, resp = env.do(t, "POST", fmt.Sprintf("/chat/messages/%d/reaction", media.Id), 2, map[string]string{"reaction": "wow"})
	assert.Equal(t, errcode.ErrInvalidReaction.Code, resp.Code)

	_, resp = env.do(t, "POST", fmt.Sprintf("/chat/messages/%d/reaction", media.Id), 2, map[string]string{"reaction": "love"})
	require.Equal(t, 0, resp.Code, resp.Msg)

	_, resp = env.do(t, "POST", fmt.Sprintf("/chat/conversations/%d/pin", convId), 2, nil)
	var pin handler.PinResp
	decodeData(t, resp, &pin)
	assert.True(t, pin.Pinned)

	_, resp = env.do(t, "DELETE", fmt.Sprintf("/chat/messages/%d?for_everyone=true", media.Id), 2, nil)
	assert.Equal(t, errcode.ErrNotMessageSender.Code, resp.Code)

	_, resp = env.do(t, "DELETE", fmt.Sprintf("/chat/messages/%d?for_everyone=true", media.Id), 1, nil)
	require.Equal(t, 0, resp.Code, resp.Msg)

	_, resp = env.do(t, "DELETE", fmt.Sprintf("/chat/messages/%d?for_everyone=true", media.Id), 1, nil)
	assert.Equal(t, errcode.ErrMessageNotFound.Code, resp.Code)
}

func TestSuspendedUserReadsButCannotWrite(t *testing.T) {
	env := newAPIEnv(t)
	env.seedUsers(t, 1, 2)
	require.NoError(t, env.repos.Restriction.Upsert(context.Background(), &entity.AccountRestriction{
		UserId:           1,
		IsSuspended:      true,
		SuspensionReason: "abuse",
	}))

	conv, err := env.repos.Conversation.GetOrCreateDirect(context.Background(), 1, 2)
	require.NoError(t, err)

	status, resp := env.do(t, "POST", "/chat/direct/2", 1, nil)
	assert.Equal(t, 403, status)
	assert.Equal(t, errcode.ErrAccountSuspended.Code, resp.Code)
	var suspension entity.Suspension
	decodeData(t, resp, &suspension)
	assert.True(t, suspension.Suspended)
	assert.Equal(t, "abuse", suspension.Reason)

	status, resp = env.do(t, "POST", fmt.Sprintf("/chat/conversations/%d/pin", conv.Id), 1, nil)
	assert.Equal(t, 403, status)
	assert.Equal(t, errcode.ErrAccountSuspended.Code, resp.Code)
	pinned, err := env.repos.Inbox.PinnedSet(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, pinned)

	status, resp = env.do(t, "GET", "/chat/inbox", 1, nil)
	assert.Equal(t, 200, status)
	assert.Equal(t, 0, resp.Code)
}

func TestSeenAndUnseenRequireMembership(t *testing.T) {
	env := newAPIEnv(t)
	env.seedUsers(t, 1, 2, 3)

	_, resp := env.do(t, "POST", "/chat/direct/2", 1, nil)
	require.Equal(t, 0, resp.Code, resp.Msg)
	var opened handler.OpenDirectResp
	decodeData(t, resp, &opened)
	convId := opened.Conversation.Id

	_, resp = env.do(t, "POST", "/chat/media", 1, map[string]interface{}{
		"conversation_id": convId,
		"media_url":       "https://cdn.example.com/a.png",
	})
	require.Equal(t, 0, resp.Code, resp.Msg)
	var media entity.MessageInfo
	decodeData(t, resp, &media)

	_, resp = env.do(t, "GET", fmt.Sprintf("/chat/messages/%d/seen", media.Id), 3, nil)
	assert.Equal(t, errcode.ErrNotConversationMember.Code, resp.Code)

	_, resp = env.do(t, "GET", fmt.Sprintf("/chat/conversations/%d/unseen", convId), 3, nil)
	assert.Equal(t, errcode.ErrNotConversationMember.Code, resp.Code)

	_, resp = env.do(t, "GET", fmt.Sprintf("/chat/messages/%d/seen", media.Id), 2, nil)
	assert.Equal(t, 0, resp.Code, resp.Msg)
}
