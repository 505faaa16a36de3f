package repository

import (
	"context"

	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// DeliveryRepo stores seen receipts and reactions
type DeliveryRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewDeliveryRepo creates a new DeliveryRepo
func NewDeliveryRepo(db *gorm.DB, rdb *redis.Client) *DeliveryRepo {
	return &DeliveryRepo{db: db, rdb: rdb}
}

// UpsertSeen records that userId saw messageId at seenAt, overwriting any earlier record
func (r *DeliveryRepo) UpsertSeen(ctx context.Context, messageId, userId, seenAt int64) (*entity.SeenRecord, error) {
	rec := &entity.SeenRecord{MessageId: messageId, UserId: userId, SeenAt: seenAt}
	if err := upsert(r.db.WithContext(ctx), rec, []string{"message_id", "user_id"}, "seen_at").Error; err != nil {
		return nil, err
	}

	var stored entity.SeenRecord
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", messageId, userId).
		First(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// UpsertReaction sets the reaction of userId on messageId, replacing any prior one
func (r *DeliveryRepo) UpsertReaction(ctx context.Context, messageId, userId int64, kind string) (*entity.Reaction, error) {
	rec := &entity.Reaction{MessageId: messageId, UserId: userId, Reaction: kind, ReactedAt: entity.NowUnixMilli()}
	if err := upsert(r.db.WithContext(ctx), rec, []string{"message_id", "user_id"}, "reaction", "reacted_at").Error; err != nil {
		return nil, err
	}

	var stored entity.Reaction
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", messageId, userId).
		First(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// SeenBy lists seen receipts of a message, earliest first
func (r *DeliveryRepo) SeenBy(ctx context.Context, messageId int64) ([]*entity.SeenRecord, error) {
	return r.SeenByMessages(ctx, []int64{messageId})
}

// SeenByMessages lists seen receipts for several messages, earliest first
func (r *DeliveryRepo) SeenByMessages(ctx context.Context, messageIds []int64) ([]*entity.SeenRecord, error) {
	if len(messageIds) == 0 {
		return nil, nil
	}
	var records []*entity.SeenRecord
	err := r.db.WithContext(ctx).
		Where("message_id IN ?", messageIds).
		Order("seen_at ASC").
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ReactionsByMessages lists reactions for several messages
func (r *DeliveryRepo) ReactionsByMessages(ctx context.Context, messageIds []int64) ([]*entity.Reaction, error) {
	if len(messageIds) == 0 {
		return nil, nil
	}
	var reactions []*entity.Reaction
	err := r.db.WithContext(ctx).
		Where("message_id IN ?", messageIds).
		Order("id ASC").
		Find(&reactions).Error
	if err != nil {
		return nil, err
	}
	return reactions, nil
}

// IsSeenBy checks if userId has a seen receipt on messageId
func (r *DeliveryRepo) IsSeenBy(ctx context.Context, messageId, userId int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.SeenRecord{}).
		Where("message_id = ? AND user_id = ?", messageId, userId).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// notHiddenFor excludes messages the given user hid for themselves
const notHiddenFor = "NOT EXISTS (SELECT 1 FROM message_hides h WHERE h.message_id = messages.id AND h.user_id = ?)"

// UnseenCount counts messages in the conversation not sent by userId, not hidden by userId
// and without a receipt from userId
func (r *DeliveryRepo) UnseenCount(ctx context.Context, conversationId, userId int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Message{}).
		Where("conversation_id = ? AND sender_id <> ?", conversationId, userId).
		Where("NOT EXISTS (SELECT 1 FROM message_seen s WHERE s.message_id = messages.id AND s.user_id = ?)", userId).
		Where(notHiddenFor, userId).
		Count(&count).Error
	return count, err
}

// UnseenCounts is UnseenCount for many conversations in one query.
// Conversations with nothing unseen are absent from the result.
func (r *DeliveryRepo) UnseenCounts(ctx context.Context, conversationIds []int64, userId int64) (map[int64]int64, error) {
	counts := make(map[int64]int64, len(conversationIds))
	if len(conversationIds) == 0 {
		return counts, nil
	}

	var rows []entity.CountRow
	err := r.db.WithContext(ctx).
		Model(&entity.Message{}).
		Select("conversation_id, COUNT(*) AS cnt").
		Where("conversation_id IN ? AND sender_id <> ?", conversationIds, userId).
		Where("NOT EXISTS (SELECT 1 FROM message_seen s WHERE s.message_id = messages.id AND s.user_id = ?)", userId).
		Where(notHiddenFor, userId).
		Group("conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.ConversationId] = row.Count
	}
	return counts, nil
}
