package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// RestrictionRepo reads account restrictions owned by the admin service, with a short redis cache
type RestrictionRepo struct {
	db  *gorm.DB
	rdb *redis.Client
	ttl time.Duration
}

// NewRestrictionRepo creates a new RestrictionRepo
func NewRestrictionRepo(db *gorm.DB, rdb *redis.Client, ttl time.Duration) *RestrictionRepo {
	return &RestrictionRepo{db: db, rdb: rdb, ttl: ttl}
}

// Get gets the restriction row of userId. Users without a row get an unrestricted zero row.
func (r *RestrictionRepo) Get(ctx context.Context, userId int64) (*entity.AccountRestriction, error) {
	key := fmt.Sprintf(constant.RedisKeySuspension(), userId)

	if r.ttl > 0 {
		raw, err := r.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var cached entity.AccountRestriction
			if jerr := json.Unmarshal(raw, &cached); jerr == nil {
				return &cached, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			log.CtxWarn(ctx, "suspension cache read failed: user_id=%d, error=%v", userId, err)
		}
	}

	var row entity.AccountRestriction
	err := r.db.WithContext(ctx).Where("user_id = ?", userId).First(&row).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		row = entity.AccountRestriction{UserId: userId}
	}

	if r.ttl > 0 {
		if raw, jerr := json.Marshal(&row); jerr == nil {
			if err := r.rdb.Set(ctx, key, raw, r.ttl).Err(); err != nil {
				log.CtxWarn(ctx, "suspension cache write failed: user_id=%d, error=%v", userId, err)
			}
		}
	}
	return &row, nil
}

// Upsert writes a restriction row and drops the cached copy.
// The engine only reads restrictions; moderation tooling owns the rows, and this
// is the seeding entry point for that tooling and for tests.
func (r *RestrictionRepo) Upsert(ctx context.Context, row *entity.AccountRestriction) error {
	err := upsert(r.db.WithContext(ctx), row, []string{"user_id"},
		"is_suspended", "suspension_reason", "suspension_until").Error
	if err != nil {
		return err
	}
	r.Invalidate(ctx, row.UserId)
	return nil
}

// Invalidate drops the cached restriction of userId
func (r *RestrictionRepo) Invalidate(ctx context.Context, userId int64) {
	key := fmt.Sprintf(constant.RedisKeySuspension(), userId)
	r.rdb.Del(ctx, key)
}
