package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/mbeoliero/nexo-chat/pkg/idgen"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const memberCacheTTL = 10 * time.Minute

// ConversationRepo is the repository for conversation operations
type ConversationRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewConversationRepo creates a new ConversationRepo
func NewConversationRepo(db *gorm.DB, rdb *redis.Client) *ConversationRepo {
	return &ConversationRepo{db: db, rdb: rdb}
}

// GetById gets conversation by Id, returns nil when absent
func (r *ConversationRepo) GetById(ctx context.Context, id int64) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// GetOrCreateDirect returns the direct conversation of the pair, creating it on first contact.
// The insert is keyed on direct_key so concurrent callers converge on one row.
func (r *ConversationRepo) GetOrCreateDirect(ctx context.Context, userA, userB int64) (*entity.Conversation, error) {
	key := entity.GenDirectKey(userA, userB)

	var conv entity.Conversation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := idgen.NextID()
		if err != nil {
			return err
		}

		now := entity.NowUnixMilli()
		candidate := &entity.Conversation{
			Id:        id,
			IsGroup:   false,
			CreatorId: userA,
			DirectKey: &key,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := insertIgnore(tx, candidate, "direct_key").Error; err != nil {
			return err
		}

		if err := tx.Where("direct_key = ?", key).First(&conv).Error; err != nil {
			return err
		}

		for _, uid := range []int64{userA, userB} {
			member := &entity.ConversationMember{ConversationId: conv.Id, UserId: uid, JoinedAt: now}
			if err := insertIgnore(tx, member, "conversation_id", "user_id").Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateGroup creates a group conversation with creator and members in one transaction
func (r *ConversationRepo) CreateGroup(ctx context.Context, conv *entity.Conversation, memberIds []int64) error {
	now := entity.NowUnixMilli()
	conv.IsGroup = true
	conv.DirectKey = nil
	conv.CreatedAt = now
	conv.UpdatedAt = now
	if conv.Id == 0 {
		id, err := idgen.NextID()
		if err != nil {
			return err
		}
		conv.Id = id
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		for _, uid := range append([]int64{conv.CreatorId}, memberIds...) {
			member := &entity.ConversationMember{ConversationId: conv.Id, UserId: uid, JoinedAt: now}
			if err := insertIgnore(tx, member, "conversation_id", "user_id").Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// AddMembers adds users to a conversation and returns the ids that were not already members
func (r *ConversationRepo) AddMembers(ctx context.Context, conversationId int64, userIds []int64) ([]int64, error) {
	var added []int64
	now := entity.NowUnixMilli()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, uid := range userIds {
			member := &entity.ConversationMember{ConversationId: conversationId, UserId: uid, JoinedAt: now}
			result := insertIgnore(tx, member, "conversation_id", "user_id")
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				added = append(added, uid)
			}
		}
		return tx.Model(&entity.Conversation{}).Where("id = ?", conversationId).
			Update("updated_at", now).Error
	})
	if err != nil {
		return nil, err
	}

	r.invalidateMemberCache(ctx, conversationId)
	return added, nil
}

// Update updates group metadata
func (r *ConversationRepo) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	updates["updated_at"] = entity.NowUnixMilli()
	return r.db.WithContext(ctx).Model(&entity.Conversation{}).Where("id = ?", id).Updates(updates).Error
}

// GetMembers gets all members of a conversation in join order
func (r *ConversationRepo) GetMembers(ctx context.Context, conversationId int64) ([]*entity.ConversationMember, error) {
	var members []*entity.ConversationMember
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationId).
		Order("id ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

// GetMemberIds gets member user ids, served from redis when cached
func (r *ConversationRepo) GetMemberIds(ctx context.Context, conversationId int64) ([]int64, error) {
	key := fmt.Sprintf(constant.RedisKeyConvMember(), conversationId)

	cached, err := r.rdb.SMembers(ctx, key).Result()
	if err == nil && len(cached) > 0 {
		ids := make([]int64, 0, len(cached))
		for _, v := range cached {
			id, perr := strconv.ParseInt(v, 10, 64)
			if perr != nil {
				continue
			}
			ids = append(ids, id)
		}
		return ids, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		log.CtxWarn(ctx, "member cache read failed: conversation_id=%d, error=%v", conversationId, err)
	}

	var ids []int64
	err = r.db.WithContext(ctx).
		Model(&entity.ConversationMember{}).
		Where("conversation_id = ?", conversationId).
		Order("id ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		values := make([]interface{}, 0, len(ids))
		for _, id := range ids {
			values = append(values, id)
		}
		pipe := r.rdb.TxPipeline()
		pipe.SAdd(ctx, key, values...)
		pipe.Expire(ctx, key, memberCacheTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			log.CtxWarn(ctx, "member cache write failed: conversation_id=%d, error=%v", conversationId, err)
		}
	}
	return ids, nil
}

// IsMember checks if user belongs to the conversation
func (r *ConversationRepo) IsMember(ctx context.Context, conversationId, userId int64) (bool, error) {
	ids, err := r.GetMemberIds(ctx, conversationId)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == userId {
			return true, nil
		}
	}
	return false, nil
}

// TogglePin removes the pin when present, otherwise creates it. Returns the new pinned state.
func (r *ConversationRepo) TogglePin(ctx context.Context, userId, conversationId int64) (bool, error) {
	var pinned bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("user_id = ? AND conversation_id = ?", userId, conversationId).
			Delete(&entity.PinnedChat{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			pinned = false
			return nil
		}

		pin := &entity.PinnedChat{UserId: userId, ConversationId: conversationId, PinnedAt: entity.NowUnixMilli()}
		if err := insertIgnore(tx, pin, "user_id", "conversation_id").Error; err != nil {
			return err
		}
		pinned = true
		return nil
	})
	return pinned, err
}

// invalidateMemberCache invalidates the conversation members cache
func (r *ConversationRepo) invalidateMemberCache(ctx context.Context, conversationId int64) {
	key := fmt.Sprintf(constant.RedisKeyConvMember(), conversationId)
	r.rdb.Del(ctx, key)
}
