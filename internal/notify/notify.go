package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// Job is a message summary addressed to a user without a live connection.
// Delivery to devices is owned by the push service consuming the queue.
type Job struct {
	UserId         int64  `json:"user_id"`
	ConversationId int64  `json:"conversation_id"`
	MessageId      int64  `json:"message_id"`
	SenderId       int64  `json:"sender_id"`
	Preview        string `json:"preview"`
	HasMedia       bool   `json:"has_media"`
	CreatedAt      int64  `json:"created_at"`
}

// Notifier enqueues offline notifications
type Notifier interface {
	Notify(ctx context.Context, job *Job) error
}

// Nop drops every job
type Nop struct{}

func (Nop) Notify(context.Context, *Job) error { return nil }

// RedisQueue pushes jobs as JSON onto a redis list
type RedisQueue struct {
	rdb *redis.Client
	key string
}

// NewRedisQueue creates a queue writing to key
func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: key}
}

// Key returns the list key jobs are pushed to
func (q *RedisQueue) Key() string {
	return q.key
}

// Notify enqueues job
func (q *RedisQueue) Notify(ctx context.Context, job *Job) error {
	if job.CreatedAt == 0 {
		job.CreatedAt = time.Now().UnixMilli()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal notify job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, data).Err(); err != nil {
		metrics.NotifyJobs.WithLabelValues("error").Inc()
		log.CtxWarn(ctx, "enqueue notify job failed: user_id=%d, message_id=%d, error=%v", job.UserId, job.MessageId, err)
		return err
	}
	metrics.NotifyJobs.WithLabelValues("queued").Inc()
	return nil
}

// Pop removes the oldest job, waiting up to timeout. It returns nil, nil when the queue stays empty.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("unmarshal notify job: %w", err)
	}
	return &job, nil
}

// Len returns the number of pending jobs
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
