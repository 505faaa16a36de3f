package service

import (
	"context"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/event"
	"github.com/mbeoliero/nexo-chat/internal/repository"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
)

// DeliveryService tracks seen receipts and reactions
type DeliveryService struct {
	deliveryRepo *repository.DeliveryRepo
	msgRepo      *repository.MessageRepo
	convRepo     *repository.ConversationRepo
	publisher    Publisher
}

// NewDeliveryService creates a new DeliveryService
func NewDeliveryService(repos *repository.Repositories) *DeliveryService {
	return &DeliveryService{
		deliveryRepo: repos.Delivery,
		msgRepo:      repos.Message,
		convRepo:     repos.Conversation,
	}
}

// SetPublisher sets the event publisher
func (s *DeliveryService) SetPublisher(p Publisher) {
	s.publisher = p
}

// MarkSeen records that userId has seen messageId. Repeated calls advance seen_at.
func (s *DeliveryService) MarkSeen(ctx context.Context, messageId, userId int64) (*entity.SeenRecord, error) {
	msg, err := s.loadForMember(ctx, messageId, userId)
	if err != nil {
		return nil, err
	}

	rec, err := s.deliveryRepo.UpsertSeen(ctx, messageId, userId, entity.NowUnixMilli())
	if err != nil {
		log.CtxError(ctx, "mark seen failed: message_id=%d, user_id=%d, error=%v", messageId, userId, err)
		return nil, errcode.ErrInternalServer
	}

	s.publish(msg.ConversationId, &event.Seen{
		MessageId: messageId,
		UserId:    userId,
		SeenAt:    entity.FormatTimestamp(rec.SeenAt),
	})
	return rec, nil
}

// SetReaction sets the reaction of userId on messageId, replacing the prior one
func (s *DeliveryService) SetReaction(ctx context.Context, messageId, userId int64, kind string) (*entity.Reaction, error) {
	if !constant.IsValidReaction(kind) {
		return nil, errcode.ErrInvalidReaction.WithMsg("%q", kind)
	}

	msg, err := s.loadForMember(ctx, messageId, userId)
	if err != nil {
		return nil, err
	}

	rec, err := s.deliveryRepo.UpsertReaction(ctx, messageId, userId, kind)
	if err != nil {
		log.CtxError(ctx, "set reaction failed: message_id=%d, user_id=%d, error=%v", messageId, userId, err)
		return nil, errcode.ErrInternalServer
	}

	s.publish(msg.ConversationId, &event.Reaction{
		MessageId: messageId,
		UserId:    userId,
		Reaction:  rec.Reaction,
		Emoji:     constant.ReactionEmoji(rec.Reaction),
	})
	return rec, nil
}

// SeenBy lists who has seen messageId. The requester must belong to the message's conversation.
func (s *DeliveryService) SeenBy(ctx context.Context, messageId, requesterId int64) ([]*entity.SeenRecord, error) {
	if _, err := s.loadForMember(ctx, messageId, requesterId); err != nil {
		return nil, err
	}

	records, err := s.deliveryRepo.SeenBy(ctx, messageId)
	if err != nil {
		log.CtxError(ctx, "get seen records failed: message_id=%d, error=%v", messageId, err)
		return nil, errcode.ErrInternalServer
	}
	return records, nil
}

// IsSeenBy checks if userId has seen messageId
func (s *DeliveryService) IsSeenBy(ctx context.Context, messageId, userId int64) (bool, error) {
	seen, err := s.deliveryRepo.IsSeenBy(ctx, messageId, userId)
	if err != nil {
		log.CtxError(ctx, "check seen failed: message_id=%d, user_id=%d, error=%v", messageId, userId, err)
		return false, errcode.ErrInternalServer
	}
	return seen, nil
}

// UnseenCount counts messages of the conversation userId has not seen, own messages excluded
func (s *DeliveryService) UnseenCount(ctx context.Context, conversationId, userId int64) (int64, error) {
	if err := checkMember(ctx, s.convRepo, conversationId, userId); err != nil {
		return 0, err
	}

	count, err := s.deliveryRepo.UnseenCount(ctx, conversationId, userId)
	if err != nil {
		log.CtxError(ctx, "count unseen failed: conversation_id=%d, user_id=%d, error=%v", conversationId, userId, err)
		return 0, errcode.ErrInternalServer
	}
	return count, nil
}

func (s *DeliveryService) loadForMember(ctx context.Context, messageId, userId int64) (*entity.Message, error) {
	msg, err := s.msgRepo.GetById(ctx, messageId)
	if err != nil {
		log.CtxError(ctx, "get message failed: message_id=%d, error=%v", messageId, err)
		return nil, errcode.ErrInternalServer
	}
	if msg == nil {
		return nil, errcode.ErrMessageNotFound
	}
	if err := checkMember(ctx, s.convRepo, msg.ConversationId, userId); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *DeliveryService) publish(conversationId int64, ev event.Outbound) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(event.GroupKey(conversationId), ev)
}
