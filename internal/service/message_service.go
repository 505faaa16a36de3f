package service

import (
	"context"
	"strings"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/codec"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/event"
	"github.com/mbeoliero/nexo-chat/internal/repository"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
)

// Publisher fans an event out to every live connection of a broadcast group
type Publisher interface {
	Publish(groupKey string, ev event.Outbound)
}

// MessageService handles message-related business logic
type MessageService struct {
	msgRepo      *repository.MessageRepo
	deliveryRepo *repository.DeliveryRepo
	convRepo     *repository.ConversationRepo
	codec        *codec.Codec
	publisher    Publisher
}

// NewMessageService creates a new MessageService
func NewMessageService(repos *repository.Repositories, c *codec.Codec) *MessageService {
	return &MessageService{
		msgRepo:      repos.Message,
		deliveryRepo: repos.Delivery,
		convRepo:     repos.Conversation,
		codec:        c,
	}
}

// SetPublisher sets the event publisher
func (s *MessageService) SetPublisher(p Publisher) {
	s.publisher = p
}

// Create persists a message and then publishes it to the conversation.
// Blank text counts as absent; a message needs text or media.
func (s *MessageService) Create(ctx context.Context, conversationId, senderId int64, text, mediaUrl *string) (*entity.Message, error) {
	text = normalize(text)
	mediaUrl = normalize(mediaUrl)
	if text == nil && mediaUrl == nil {
		return nil, errcode.ErrEmptyMessage
	}

	if err := checkMember(ctx, s.convRepo, conversationId, senderId); err != nil {
		return nil, err
	}

	msg := &entity.Message{
		ConversationId: conversationId,
		SenderId:       senderId,
		MediaUrl:       mediaUrl,
	}
	if text != nil {
		blob, err := s.codec.Encrypt(*text)
		if err != nil {
			log.CtxError(ctx, "encrypt message failed: conversation_id=%d, error=%v", conversationId, err)
			return nil, errcode.ErrSendFailed
		}
		msg.ContentEncrypted = &blob
	}

	if err := s.msgRepo.Create(ctx, msg); err != nil {
		log.CtxError(ctx, "create message failed: conversation_id=%d, sender_id=%d, error=%v", conversationId, senderId, err)
		return nil, errcode.ErrSendFailed
	}

	if mediaUrl != nil {
		s.publish(conversationId, s.mediaEvent(msg))
	} else {
		s.publish(conversationId, &event.Message{
			ConversationId: conversationId,
			MessageId:      msg.Id,
			SenderId:       senderId,
			Message:        *text,
			Timestamp:      entity.FormatTimestamp(msg.SendAt),
		})
	}

	log.CtxInfo(ctx, "message sent: conversation_id=%d, sender_id=%d, message_id=%d", conversationId, senderId, msg.Id)
	return msg, nil
}

// NotifyMedia re-announces a stored media message whose upload happened elsewhere
func (s *MessageService) NotifyMedia(ctx context.Context, conversationId, senderId, messageId int64) (*entity.Message, error) {
	msg, err := s.getMessage(ctx, messageId)
	if err != nil {
		return nil, err
	}
	if msg.ConversationId != conversationId {
		return nil, errcode.ErrMessageNotFound
	}
	if msg.SenderId != senderId {
		return nil, errcode.ErrSenderMismatch
	}
	if msg.MediaUrl == nil {
		return nil, errcode.ErrInvalidParam.WithMsg("message %d has no media", messageId)
	}

	s.publish(conversationId, s.mediaEvent(msg))
	return msg, nil
}

// DecryptedText returns the plaintext of msg, nil when it has none
func (s *MessageService) DecryptedText(msg *entity.Message) *string {
	if msg == nil || msg.ContentEncrypted == nil {
		return nil
	}
	text := s.codec.DecryptOrPlaceholder(*msg.ContentEncrypted)
	return &text
}

// List returns one page of history, oldest to newest, with seen and reaction state.
// cursor selects messages with id < cursor; 0 starts from the newest.
func (s *MessageService) List(ctx context.Context, conversationId, userId, cursor int64, limit int) (*entity.MessagePage, error) {
	if err := checkMember(ctx, s.convRepo, conversationId, userId); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = constant.DefaultPageSize
	}
	if limit > constant.MaxPageSize {
		limit = constant.MaxPageSize
	}

	messages, err := s.msgRepo.ListBefore(ctx, conversationId, userId, cursor, limit)
	if err != nil {
		log.CtxError(ctx, "list messages failed: conversation_id=%d, error=%v", conversationId, err)
		return nil, errcode.ErrPullFailed
	}

	page := &entity.MessagePage{}
	if len(messages) > limit {
		page.HasMore = true
		messages = messages[:limit]
	}

	// Reverse to ascending order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	if page.HasMore && len(messages) > 0 {
		page.NextCursor = messages[0].Id
	}

	infos, err := s.annotate(ctx, messages, userId)
	if err != nil {
		log.CtxError(ctx, "load delivery state failed: conversation_id=%d, error=%v", conversationId, err)
		return nil, errcode.ErrPullFailed
	}
	page.Messages = infos
	return page, nil
}

// Delete removes a message. forEveryone hard-deletes it and is allowed only for the sender;
// otherwise the message is hidden for the requester alone.
func (s *MessageService) Delete(ctx context.Context, messageId, requesterId int64, forEveryone bool) error {
	msg, err := s.getMessage(ctx, messageId)
	if err != nil {
		return err
	}

	if !forEveryone {
		if err := checkMember(ctx, s.convRepo, msg.ConversationId, requesterId); err != nil {
			return err
		}
		if err := s.msgRepo.Hide(ctx, messageId, requesterId); err != nil {
			log.CtxError(ctx, "hide message failed: message_id=%d, user_id=%d, error=%v", messageId, requesterId, err)
			return errcode.ErrInternalServer
		}
		uid := requesterId
		s.publish(msg.ConversationId, &event.MessageDeleted{
			MessageId:        messageId,
			DeletedForUserId: &uid,
		})
		return nil
	}

	if msg.SenderId != requesterId {
		return errcode.ErrNotMessageSender
	}

	deleted, err := s.msgRepo.Delete(ctx, messageId)
	if err != nil {
		log.CtxError(ctx, "delete message failed: message_id=%d, error=%v", messageId, err)
		return errcode.ErrInternalServer
	}
	if !deleted {
		return errcode.ErrMessageNotFound
	}

	s.publish(msg.ConversationId, &event.MessageDeleted{
		MessageId:         messageId,
		DeleteForEveryone: true,
	})
	log.CtxInfo(ctx, "message deleted: message_id=%d, conversation_id=%d", messageId, msg.ConversationId)
	return nil
}

func (s *MessageService) getMessage(ctx context.Context, messageId int64) (*entity.Message, error) {
	msg, err := s.msgRepo.GetById(ctx, messageId)
	if err != nil {
		log.CtxError(ctx, "get message failed: message_id=%d, error=%v", messageId, err)
		return nil, errcode.ErrInternalServer
	}
	if msg == nil {
		return nil, errcode.ErrMessageNotFound
	}
	return msg, nil
}

func (s *MessageService) annotate(ctx context.Context, messages []*entity.Message, userId int64) ([]*entity.MessageInfo, error) {
	ids := make([]int64, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.Id)
	}

	seen, err := s.deliveryRepo.SeenByMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	reactions, err := s.deliveryRepo.ReactionsByMessages(ctx, ids)
	if err != nil {
		return nil, err
	}

	seenByMsg := make(map[int64][]*entity.SeenInfo, len(ids))
	seenByUser := make(map[int64]bool, len(ids))
	for _, r := range seen {
		seenByMsg[r.MessageId] = append(seenByMsg[r.MessageId], &entity.SeenInfo{
			UserId: r.UserId,
			SeenAt: entity.FormatTimestamp(r.SeenAt),
		})
		if r.UserId == userId {
			seenByUser[r.MessageId] = true
		}
	}
	reactionsByMsg := make(map[int64][]*entity.ReactionInfo, len(ids))
	for _, r := range reactions {
		reactionsByMsg[r.MessageId] = append(reactionsByMsg[r.MessageId], &entity.ReactionInfo{
			UserId:   r.UserId,
			Reaction: r.Reaction,
			Emoji:    constant.ReactionEmoji(r.Reaction),
		})
	}

	infos := make([]*entity.MessageInfo, 0, len(messages))
	for _, m := range messages {
		info := &entity.MessageInfo{
			Id:             m.Id,
			ConversationId: m.ConversationId,
			SenderId:       m.SenderId,
			Message:        s.DecryptedText(m),
			MediaUrl:       m.MediaUrl,
			Timestamp:      entity.FormatTimestamp(m.SendAt),
			SendAt:         m.SendAt,
			IsSeen:         m.SenderId == userId || seenByUser[m.Id],
			SeenBy:         seenByMsg[m.Id],
			Reactions:      reactionsByMsg[m.Id],
		}
		if info.SeenBy == nil {
			info.SeenBy = []*entity.SeenInfo{}
		}
		if info.Reactions == nil {
			info.Reactions = []*entity.ReactionInfo{}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (s *MessageService) mediaEvent(msg *entity.Message) *event.MediaMessage {
	ev := &event.MediaMessage{
		ConversationId: msg.ConversationId,
		MessageId:      msg.Id,
		SenderId:       msg.SenderId,
		Message:        s.DecryptedText(msg),
		Timestamp:      entity.FormatTimestamp(msg.SendAt),
	}
	if msg.MediaUrl != nil {
		ev.MediaUrl = *msg.MediaUrl
	}
	return ev
}

func (s *MessageService) publish(conversationId int64, ev event.Outbound) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(event.GroupKey(conversationId), ev)
}

// normalize maps nil and whitespace-only strings to nil
func normalize(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

// checkMember resolves the conversation and verifies userId belongs to it
func checkMember(ctx context.Context, convRepo *repository.ConversationRepo, conversationId, userId int64) error {
	conv, err := convRepo.GetById(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get conversation failed: conversation_id=%d, error=%v", conversationId, err)
		return errcode.ErrInternalServer
	}
	if conv == nil {
		return errcode.ErrConvNotFound
	}

	ok, err := convRepo.IsMember(ctx, conversationId, userId)
	if err != nil {
		log.CtxError(ctx, "check membership failed: conversation_id=%d, user_id=%d, error=%v", conversationId, userId, err)
		return errcode.ErrInternalServer
	}
	if !ok {
		return errcode.ErrNotConversationMember
	}
	return nil
}
