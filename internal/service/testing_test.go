package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mbeoliero/nexo-chat/internal/codec"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/event"
	"github.com/mbeoliero/nexo-chat/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

type published struct {
	key string
	ev  event.Outbound
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(groupKey string, ev event.Outbound) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{key: groupKey, ev: ev})
}

func (p *recordingPublisher) last() published {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return published{}
	}
	return p.events[len(p.events)-1]
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type testEnv struct {
	repos    *repository.Repositories
	codec    *codec.Codec
	pub      *recordingPublisher
	msg      *MessageService
	delivery *DeliveryService
	conv     *ConversationService
	inbox    *InboxService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:service_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
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

	env := &testEnv{
		repos:    repos,
		codec:    c,
		pub:      &recordingPublisher{},
		msg:      NewMessageService(repos, c),
		delivery: NewDeliveryService(repos),
		conv:     NewConversationService(repos),
		inbox:    NewInboxService(repos, c),
	}
	env.msg.SetPublisher(env.pub)
	env.delivery.SetPublisher(env.pub)
	return env
}

func (e *testEnv) seedUsers(t *testing.T, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, e.repos.User.Create(context.Background(), &entity.User{
			Id:       id,
			Nickname: fmt.Sprintf("user%d", id),
		}))
	}
}

func (e *testEnv) direct(t *testing.T, a, b int64) *entity.Conversation {
	t.Helper()
	conv, err := e.conv.GetOrCreateDirect(context.Background(), a, b)
	require.NoError(t, err)
	return conv
}

func (e *testEnv) send(t *testing.T, convId, senderId int64, text string) *entity.Message {
	t.Helper()
	msg, err := e.msg.Create(context.Background(), convId, senderId, &text, nil)
	require.NoError(t, err)
	return msg
}

func strPtr(s string) *string { return &s }
