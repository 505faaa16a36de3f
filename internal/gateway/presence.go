package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/redis/go-redis/v9"
)

// Presence tracks live connections per user on this instance and mirrors
// online state to redis for other instances
type Presence struct {
	mu    sync.RWMutex
	users map[int64]map[string]*Client // userId -> connId -> client
	rdb   *redis.Client
}

// NewPresence creates a new Presence
func NewPresence(rdb *redis.Client) *Presence {
	return &Presence{
		users: make(map[int64]map[string]*Client),
		rdb:   rdb,
	}
}

// Add records a bound connection. It reports whether this is the user's first live connection.
func (p *Presence) Add(ctx context.Context, client *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns, exists := p.users[client.UserId]
	if !exists {
		conns = make(map[string]*Client, 4)
		p.users[client.UserId] = conns
	}
	conns[client.ConnId] = client

	p.setOnline(ctx, client.UserId)
	return !exists
}

// Remove drops a connection. It reports whether the user has no live connection left.
func (p *Presence) Remove(ctx context.Context, client *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns, exists := p.users[client.UserId]
	if !exists {
		return false
	}
	delete(conns, client.ConnId)

	if len(conns) == 0 {
		delete(p.users, client.UserId)
		p.setOffline(ctx, client.UserId)
		return true
	}
	return false
}

// HasConnection checks if user has any connection on this instance
func (p *Presence) HasConnection(userId int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.users[userId]) > 0
}

// ConnCount returns the number of live connections of a user on this instance
func (p *Presence) ConnCount(userId int64) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.users[userId])
}

// OnlineUserCount returns the number of users with a live connection on this instance
func (p *Presence) OnlineUserCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.users)
}

// IsOnline checks local connections first, then redis for other instances
func (p *Presence) IsOnline(ctx context.Context, userId int64) bool {
	if p.HasConnection(userId) {
		return true
	}

	if p.rdb != nil {
		key := fmt.Sprintf(constant.RedisKeyOnline(), userId)
		exists, err := p.rdb.Exists(ctx, key).Result()
		if err != nil {
			log.CtxWarn(ctx, "check online status failed: user_id=%d, error=%v", userId, err)
			return false
		}
		return exists > 0
	}

	return false
}

// Refresh extends the online marker TTL while the user stays connected
func (p *Presence) Refresh(ctx context.Context, userId int64) {
	if p.rdb == nil || !p.HasConnection(userId) {
		return
	}
	key := fmt.Sprintf(constant.RedisKeyOnline(), userId)
	p.rdb.Expire(ctx, key, onlineTTL)
}

func (p *Presence) setOnline(ctx context.Context, userId int64) {
	if p.rdb == nil {
		return
	}
	key := fmt.Sprintf(constant.RedisKeyOnline(), userId)
	p.rdb.Set(ctx, key, "1", onlineTTL)
}

func (p *Presence) setOffline(ctx context.Context, userId int64) {
	if p.rdb == nil {
		return
	}
	key := fmt.Sprintf(constant.RedisKeyOnline(), userId)
	p.rdb.Del(ctx, key)
}
