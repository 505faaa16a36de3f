package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/middleware"
	"github.com/mbeoliero/nexo-chat/internal/service"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
	"github.com/mbeoliero/nexo-chat/pkg/response"
)

// OfflineNotifier queues push notifications for members without a live connection
type OfflineNotifier interface {
	NotifyOffline(ctx context.Context, msg *entity.Message, preview string)
}

// MessageHandler handles message history and the HTTP fallbacks of socket operations
type MessageHandler struct {
	msgService *service.MessageService
	delivery   *service.DeliveryService
	notifier   OfflineNotifier
}

// NewMessageHandler creates a new MessageHandler. notifier may be nil.
func NewMessageHandler(msgService *service.MessageService, delivery *service.DeliveryService, notifier OfflineNotifier) *MessageHandler {
	return &MessageHandler{msgService: msgService, delivery: delivery, notifier: notifier}
}

// MediaMessageReq registers a message whose media was already stored by the upload service
type MediaMessageReq struct {
	ConversationId int64   `json:"conversation_id"`
	MediaUrl       string  `json:"media_url"`
	Message        *string `json:"message,omitempty"`
}

// ReactionReq sets a reaction
type ReactionReq struct {
	Reaction string `json:"reaction"`
}

// UnseenResp is a conversation's unseen count for the requester
type UnseenResp struct {
	ConversationId int64 `json:"conversation_id"`
	UnseenCount    int64 `json:"unseen_count"`
}

// History returns one page of :conversation_id messages. cursor is the oldest id already held.
func (h *MessageHandler) History(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == 0 {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	conversationId, ok := pathId(c, "conversation_id")
	if !ok {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}
	cursor, ok := queryInt64(c, "cursor", 0)
	if !ok {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}
	limit, ok := queryInt64(c, "limit", constant.DefaultPageSize)
	if !ok {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	page, err := h.msgService.List(ctx, conversationId, userId, cursor, int(limit))
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, page)
}

// Unseen returns how many messages in :conversation_id the requester has not seen
func (h *MessageHandler) Unseen(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == 0 {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	conversationId, ok := pathId(c, "conversation_id")
	if !ok {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	count, err := h.delivery.UnseenCount(ctx, conversationId, userId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, &UnseenResp{ConversationId: conversationId, UnseenCount: count})
}

// Delete removes :message_id. for_everyone=true is a sender-only hard delete; otherwise it is hidden for the requester.
func (h *MessageHandler) Delete(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == 0 {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	messageId, ok := pathId(c, "message_id")
	if !ok {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}
	forEveryone := c.Query("for_everyone") == "true"

	if err := h.msgService.Delete(ctx, messageId, userId, forEveryone); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// MarkSeen marks :message_id seen by the requester
func (h *MessageHandler) MarkSeen(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == 0 {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	messageId, ok := pathId(c, "message_id")
	if !ok {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	rec, err := h.delivery.MarkSeen(ctx, messageId, userId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, &entity.SeenInfo{UserId: rec.UserId, SeenAt: entity.FormatTimestamp(rec.SeenAt)})
}

// SeenBy lists who has seen :message_id
func (h *MessageHandler) SeenBy(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == 0 {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	messageId, ok := pathId(c, "message_id")
	if !ok {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	records, err := h.delivery.SeenBy(ctx, messageId, userId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	infos := make([]*entity.SeenInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, &entity.SeenInfo{UserId: rec.UserId, SeenAt: entity.FormatTimestamp(rec.SeenAt)})
	}
	response.Success(ctx, c, infos)
}

// SetReaction sets the requester's reaction on :message_id
func (h *MessageHandler) SetReaction(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == 0 {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	messageId, ok := pathId(c, "message_id")
	if !ok {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	var req ReactionReq
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	r, err := h.delivery.SetReaction(ctx, messageId, userId, req.Reaction)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, &entity.ReactionInfo{UserId: r.UserId, Reaction: r.Reaction, Emoji: constant.ReactionEmoji(r.Reaction)})
}

// CreateMedia registers an uploaded media reference as a message and publishes it
func (h *MessageHandler) CreateMedia(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == 0 {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req MediaMessageReq
	if err := c.BindAndValidate(&req); err != nil || req.ConversationId <= 0 || req.MediaUrl == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	mediaUrl := req.MediaUrl
	msg, err := h.msgService.Create(ctx, req.ConversationId, userId, req.Message, &mediaUrl)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	text := h.msgService.DecryptedText(msg)
	preview := ""
	if text != nil {
		preview = *text
	}
	if h.notifier != nil {
		h.notifier.NotifyOffline(ctx, msg, preview)
	}

	response.Success(ctx, c, &entity.MessageInfo{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		SenderId:       msg.SenderId,
		Message:        text,
		MediaUrl:       msg.MediaUrl,
		Timestamp:      entity.FormatTimestamp(msg.SendAt),
		SendAt:         msg.SendAt,
	})
}
