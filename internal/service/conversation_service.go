package service

import (
	"context"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/repository"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
)

// ConversationService handles direct and group conversations
type ConversationService struct {
	convRepo *repository.ConversationRepo
	userRepo *repository.UserRepo
}

// NewConversationService creates a new ConversationService
func NewConversationService(repos *repository.Repositories) *ConversationService {
	return &ConversationService{
		convRepo: repos.Conversation,
		userRepo: repos.User,
	}
}

// GetOrCreateDirect returns the single direct conversation between userA and userB
func (s *ConversationService) GetOrCreateDirect(ctx context.Context, userA, userB int64) (*entity.Conversation, error) {
	if userA <= 0 || userB <= 0 || userA == userB {
		return nil, errcode.ErrInvalidParam.WithMsg("direct chat needs two distinct users")
	}

	exists, err := s.userRepo.Exists(ctx, userB)
	if err != nil {
		log.CtxError(ctx, "check user exists failed: user_id=%d, error=%v", userB, err)
		return nil, errcode.ErrInternalServer
	}
	if !exists {
		return nil, errcode.ErrUserNotFound
	}

	conv, err := s.convRepo.GetOrCreateDirect(ctx, userA, userB)
	if err != nil {
		log.CtxError(ctx, "get or create direct failed: user_a=%d, user_b=%d, error=%v", userA, userB, err)
		return nil, errcode.ErrInternalServer
	}
	return conv, nil
}

// CreateGroupRequest represents create group request
type CreateGroupRequest struct {
	Name      string  `json:"name"`
	Avatar    string  `json:"avatar"`
	MemberIds []int64 `json:"member_ids"`
}

// CreateGroup creates a group owned by creatorId. It needs at least two other distinct members.
func (s *ConversationService) CreateGroup(ctx context.Context, creatorId int64, req *CreateGroupRequest) (*entity.Conversation, error) {
	memberIds := distinctExcept(req.MemberIds, creatorId)
	if len(memberIds) < constant.GroupMinMembers {
		return nil, errcode.ErrGroupTooSmall
	}

	users, err := s.userRepo.GetByIds(ctx, memberIds)
	if err != nil {
		log.CtxError(ctx, "get users failed: error=%v", err)
		return nil, errcode.ErrInternalServer
	}
	if len(users) != len(memberIds) {
		return nil, errcode.ErrUserNotFound
	}

	conv := &entity.Conversation{
		Name:      req.Name,
		Avatar:    req.Avatar,
		CreatorId: creatorId,
	}
	if err := s.convRepo.CreateGroup(ctx, conv, memberIds); err != nil {
		log.CtxError(ctx, "create group failed: creator_id=%d, error=%v", creatorId, err)
		return nil, errcode.ErrInternalServer
	}

	log.CtxInfo(ctx, "group created: conversation_id=%d, creator_id=%d, members=%d", conv.Id, creatorId, len(memberIds)+1)
	return conv, nil
}

// AddMembers adds users to a group. Only the creator may do this.
// Unknown ids are skipped and existing members are not reported again.
func (s *ConversationService) AddMembers(ctx context.Context, conversationId, requesterId int64, memberIds []int64) ([]*entity.UserInfo, error) {
	conv, err := s.getGroupForAdmin(ctx, conversationId, requesterId)
	if err != nil {
		return nil, err
	}

	ids := distinctExcept(memberIds, conv.CreatorId)
	if len(ids) == 0 {
		return nil, errcode.ErrEmptyMemberList
	}

	known, err := s.userRepo.GetMapByIds(ctx, ids)
	if err != nil {
		log.CtxError(ctx, "get users failed: error=%v", err)
		return nil, errcode.ErrInternalServer
	}

	candidates := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := known[id]; ok {
			candidates = append(candidates, id)
		}
	}

	added, err := s.convRepo.AddMembers(ctx, conversationId, candidates)
	if err != nil {
		log.CtxError(ctx, "add members failed: conversation_id=%d, error=%v", conversationId, err)
		return nil, errcode.ErrInternalServer
	}

	result := make([]*entity.UserInfo, 0, len(added))
	for _, id := range added {
		result = append(result, known[id].ToUserInfo())
	}

	log.CtxInfo(ctx, "group members added: conversation_id=%d, added=%d, skipped=%d", conversationId, len(added), len(ids)-len(added))
	return result, nil
}

// UpdateGroupRequest represents update group request. Nil fields are left unchanged.
type UpdateGroupRequest struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
}

// UpdateGroup updates group name or avatar. Only the creator may do this.
func (s *ConversationService) UpdateGroup(ctx context.Context, conversationId, requesterId int64, req *UpdateGroupRequest) (*entity.Conversation, error) {
	conv, err := s.getGroupForAdmin(ctx, conversationId, requesterId)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
		conv.Name = *req.Name
	}
	if req.Avatar != nil {
		updates["avatar"] = *req.Avatar
		conv.Avatar = *req.Avatar
	}
	if len(updates) == 0 {
		return conv, nil
	}

	if err := s.convRepo.Update(ctx, conversationId, updates); err != nil {
		log.CtxError(ctx, "update group failed: conversation_id=%d, error=%v", conversationId, err)
		return nil, errcode.ErrInternalServer
	}
	return conv, nil
}

// GroupDetail returns group metadata with members. Only members may read it.
func (s *ConversationService) GroupDetail(ctx context.Context, conversationId, requesterId int64) (*entity.GroupDetail, error) {
	conv, err := s.getConversation(ctx, conversationId)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup {
		return nil, errcode.ErrNotGroupConversation
	}

	members, err := s.convRepo.GetMembers(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get members failed: conversation_id=%d, error=%v", conversationId, err)
		return nil, errcode.ErrInternalServer
	}

	ids := make([]int64, 0, len(members))
	isMember := false
	for _, m := range members {
		ids = append(ids, m.UserId)
		if m.UserId == requesterId {
			isMember = true
		}
	}
	if !isMember {
		return nil, errcode.ErrNotConversationMember
	}

	users, err := s.userRepo.GetMapByIds(ctx, ids)
	if err != nil {
		log.CtxError(ctx, "get users failed: error=%v", err)
		return nil, errcode.ErrInternalServer
	}

	detail := &entity.GroupDetail{
		Id:        conv.Id,
		Name:      conv.Name,
		Avatar:    conv.Avatar,
		CreatorId: conv.CreatorId,
		CreatedAt: conv.CreatedAt,
		Members:   make([]*entity.GroupMemberInfo, 0, len(members)),
	}
	for _, m := range members {
		info := &entity.GroupMemberInfo{
			UserId:   m.UserId,
			IsAdmin:  m.UserId == conv.CreatorId,
			JoinedAt: m.JoinedAt,
		}
		if u, ok := users[m.UserId]; ok {
			info.Nickname = u.Nickname
			info.Avatar = u.Avatar
		}
		detail.Members = append(detail.Members, info)
	}
	return detail, nil
}

// TogglePin pins or unpins a conversation for userId and returns the new state
func (s *ConversationService) TogglePin(ctx context.Context, userId, conversationId int64) (bool, error) {
	if err := checkMember(ctx, s.convRepo, conversationId, userId); err != nil {
		return false, err
	}

	pinned, err := s.convRepo.TogglePin(ctx, userId, conversationId)
	if err != nil {
		log.CtxError(ctx, "toggle pin failed: user_id=%d, conversation_id=%d, error=%v", userId, conversationId, err)
		return false, errcode.ErrInternalServer
	}
	return pinned, nil
}

// GetOtherMember returns the peer of userId in a two-member conversation
func (s *ConversationService) GetOtherMember(ctx context.Context, conversationId, userId int64) (*entity.UserInfo, error) {
	ids, err := s.convRepo.GetMemberIds(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get member ids failed: conversation_id=%d, error=%v", conversationId, err)
		return nil, errcode.ErrInternalServer
	}
	if len(ids) != 2 {
		return nil, errcode.ErrNotDirectConversation
	}

	var other int64
	switch userId {
	case ids[0]:
		other = ids[1]
	case ids[1]:
		other = ids[0]
	default:
		return nil, errcode.ErrNotConversationMember
	}

	user, err := s.userRepo.GetById(ctx, other)
	if err != nil {
		log.CtxError(ctx, "get user failed: user_id=%d, error=%v", other, err)
		return nil, errcode.ErrInternalServer
	}
	if user == nil {
		return &entity.UserInfo{Id: other}, nil
	}
	return user.ToUserInfo(), nil
}

// IsMember reports whether userId belongs to the conversation.
// A missing conversation yields ErrConvNotFound.
func (s *ConversationService) IsMember(ctx context.Context, conversationId, userId int64) error {
	return checkMember(ctx, s.convRepo, conversationId, userId)
}

// MemberIds lists the member ids of a conversation
func (s *ConversationService) MemberIds(ctx context.Context, conversationId int64) ([]int64, error) {
	ids, err := s.convRepo.GetMemberIds(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get member ids failed: conversation_id=%d, error=%v", conversationId, err)
		return nil, errcode.ErrInternalServer
	}
	return ids, nil
}

func (s *ConversationService) getConversation(ctx context.Context, conversationId int64) (*entity.Conversation, error) {
	conv, err := s.convRepo.GetById(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get conversation failed: conversation_id=%d, error=%v", conversationId, err)
		return nil, errcode.ErrInternalServer
	}
	if conv == nil {
		return nil, errcode.ErrConvNotFound
	}
	return conv, nil
}

func (s *ConversationService) getGroupForAdmin(ctx context.Context, conversationId, requesterId int64) (*entity.Conversation, error) {
	conv, err := s.getConversation(ctx, conversationId)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup {
		return nil, errcode.ErrNotGroupConversation
	}
	if conv.CreatorId != requesterId {
		return nil, errcode.ErrNotGroupOwner
	}
	return conv, nil
}

// distinctExcept dedupes ids, dropping non-positive ids and skip
func distinctExcept(ids []int64, skip int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || id == skip {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
