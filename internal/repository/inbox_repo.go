package repository

import (
	"context"

	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// InboxRepo holds the bulk read queries behind the inbox overview
type InboxRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewInboxRepo creates a new InboxRepo
func NewInboxRepo(db *gorm.DB, rdb *redis.Client) *InboxRepo {
	return &InboxRepo{db: db, rdb: rdb}
}

// UserConversations gets every conversation userId is a member of
func (r *InboxRepo) UserConversations(ctx context.Context, userId int64) ([]*entity.Conversation, error) {
	var convs []*entity.Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN conversation_members cm ON cm.conversation_id = conversations.id").
		Where("cm.user_id = ?", userId).
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// LatestMessages gets, per conversation, the newest message visible to userId, keyed by conversation id.
// Newest follows history order (send_at, then id). Conversations without visible messages are absent.
func (r *InboxRepo) LatestMessages(ctx context.Context, conversationIds []int64, userId int64) (map[int64]*entity.Message, error) {
	latest := make(map[int64]*entity.Message, len(conversationIds))
	if len(conversationIds) == 0 {
		return latest, nil
	}

	var messages []*entity.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id IN ?", conversationIds).
		Where(`id = (SELECT m2.id FROM messages m2
			WHERE m2.conversation_id = messages.conversation_id
			AND NOT EXISTS (SELECT 1 FROM message_hides h WHERE h.message_id = m2.id AND h.user_id = ?)
			ORDER BY m2.send_at DESC, m2.id DESC LIMIT 1)`, userId).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		latest[m.ConversationId] = m
	}
	return latest, nil
}

// MemberCounts gets the member count of each conversation
func (r *InboxRepo) MemberCounts(ctx context.Context, conversationIds []int64) (map[int64]int64, error) {
	counts := make(map[int64]int64, len(conversationIds))
	if len(conversationIds) == 0 {
		return counts, nil
	}

	var rows []entity.CountRow
	err := r.db.WithContext(ctx).
		Model(&entity.ConversationMember{}).
		Select("conversation_id, COUNT(*) AS cnt").
		Where("conversation_id IN ?", conversationIds).
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

// OtherMembers gets, per conversation, the members other than userId
func (r *InboxRepo) OtherMembers(ctx context.Context, conversationIds []int64, userId int64) (map[int64][]int64, error) {
	others := make(map[int64][]int64, len(conversationIds))
	if len(conversationIds) == 0 {
		return others, nil
	}

	var rows []entity.MemberPair
	err := r.db.WithContext(ctx).
		Model(&entity.ConversationMember{}).
		Select("conversation_id, user_id").
		Where("conversation_id IN ? AND user_id <> ?", conversationIds, userId).
		Order("id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		others[row.ConversationId] = append(others[row.ConversationId], row.UserId)
	}
	return others, nil
}

// PinnedSet gets the ids of conversations userId has pinned
func (r *InboxRepo) PinnedSet(ctx context.Context, userId int64) (map[int64]bool, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&entity.PinnedChat{}).
		Where("user_id = ?", userId).
		Pluck("conversation_id", &ids).Error
	if err != nil {
		return nil, err
	}
	pinned := make(map[int64]bool, len(ids))
	for _, id := range ids {
		pinned[id] = true
	}
	return pinned, nil
}
