package repository

import (
	"context"
	"errors"

	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// MessageRepo is the repository for message operations
type MessageRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewMessageRepo creates a new MessageRepo
func NewMessageRepo(db *gorm.DB, rdb *redis.Client) *MessageRepo {
	return &MessageRepo{db: db, rdb: rdb}
}

// Create creates a new message. send_at is assigned here when unset.
func (r *MessageRepo) Create(ctx context.Context, msg *entity.Message) error {
	if msg.SendAt == 0 {
		msg.SendAt = entity.NowUnixMilli()
	}
	return r.db.WithContext(ctx).Create(msg).Error
}

// GetById gets message by Id, returns nil when absent
func (r *MessageRepo) GetById(ctx context.Context, id int64) (*entity.Message, error) {
	var msg entity.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// ListBefore returns up to limit+1 messages visible to userId with id < cursor (0 = newest),
// ordered newest first. The extra row lets callers detect another page.
func (r *MessageRepo) ListBefore(ctx context.Context, conversationId, userId, cursor int64, limit int) ([]*entity.Message, error) {
	query := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationId).
		Where(notHiddenFor, userId)
	if cursor > 0 {
		query = query.Where("id < ?", cursor)
	}

	var messages []*entity.Message
	err := query.
		Order("send_at DESC").
		Order("id DESC").
		Limit(limit + 1).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Delete permanently removes a message with its seen, reaction and hide rows.
// Returns false when the message does not exist.
func (r *MessageRepo) Delete(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&entity.SeenRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&entity.Reaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&entity.MessageHide{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&entity.Message{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	return deleted, err
}

// Hide hides a message for one user
func (r *MessageRepo) Hide(ctx context.Context, messageId, userId int64) error {
	hide := &entity.MessageHide{MessageId: messageId, UserId: userId, HiddenAt: entity.NowUnixMilli()}
	return upsert(r.db.WithContext(ctx), hide, []string{"message_id", "user_id"}, "hidden_at").Error
}
