package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/middleware"
	"github.com/mbeoliero/nexo-chat/internal/service"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
	"github.com/mbeoliero/nexo-chat/pkg/response"
)

// ConversationHandler handles conversation, group and inbox requests
type ConversationHandler struct {
	convService  *service.ConversationService
	msgService   *service.MessageService
	inboxService *service.InboxService
}

// NewConversationHandler creates a new ConversationHandler
func NewConversationHandler(convService *service.ConversationService, msgService *service.MessageService, inboxService *service.InboxService) *ConversationHandler {
	return &ConversationHandler{
		convService:  convService,
		msgService:   msgService,
		inboxService: inboxService,
	}
}

// OpenDirectResp is the direct conversation with the peer and the latest history page
type OpenDirectResp struct {
	Conversation *entity.Conversation `json:"conversation"`
	OtherUser    *entity.UserInfo     `json:"other_user"`
	History      *entity.MessagePage  `json:"history"`
}

// PinResp reports the pin state after a toggle
type PinResp struct {
	Pinned bool `json:"pinned"`
}

// AddMembersReq lists users to add to a group
type AddMembersReq struct {
	MemberIds []int64 `json:"member_ids"`
}

// AddMembersResp lists the users actually added
type AddMembersResp struct {
	Added []*entity.UserInfo `json:"added"`
	Count int                `json:"count"`
}

// Inbox handles the inbox overview request
func (h *ConversationHandler) Inbox(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == 0 {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	inbox, err := h.inboxService.Overview(ctx, userId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, inbox)
}

// OpenDirect gets or creates the direct conversation with :user_id and returns its latest history
func (h *ConversationHandler) OpenDirect(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == 0 {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	peerId, ok := pathId(c, "user_id")
	if !ok {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	conv, err := h.convService.GetOrCreateDirect(ctx, userId, peerId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	other, err := h.convService.GetOtherMember(ctx, conv.Id, userId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	page, err := h.msgService.List(ctx, conv.Id, userId, 0, 0)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, &OpenDirectResp{Conversation: conv, OtherUser: other, History: page})
}

// TogglePin flips the requester's pin on :conversation_id
func (h *ConversationHandler) TogglePin(ctx context.Context, c *app.RequestContext) {
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

	pinned, err := h.convService.TogglePin(ctx, userId, conversationId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, &PinResp{Pinned: pinned})
}

// CreateGroup handles create group request
func (h *ConversationHandler) CreateGroup(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == 0 {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req service.CreateGroupRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	conv, err := h.convService.CreateGroup(ctx, userId, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, conv)
}

// GroupDetail returns group metadata with its members
func (h *ConversationHandler) GroupDetail(ctx context.Context, c *app.RequestContext) {
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

	detail, err := h.convService.GroupDetail(ctx, conversationId, userId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, detail)
}

// UpdateGroup handles group name/avatar changes by the creator
func (h *ConversationHandler) UpdateGroup(ctx context.Context, c *app.RequestContext) {
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

	var req service.UpdateGroupRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	conv, err := h.convService.UpdateGroup(ctx, conversationId, userId, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, conv)
}

// AddMembers handles add group members request by the creator
func (h *ConversationHandler) AddMembers(ctx context.Context, c *app.RequestContext) {
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

	var req AddMembersReq
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	added, err := h.convService.AddMembers(ctx, conversationId, userId, req.MemberIds)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, &AddMembersResp{Added: added, Count: len(added)})
}
