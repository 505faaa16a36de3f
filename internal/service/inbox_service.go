package service

import (
	"context"
	"sort"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/codec"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/repository"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
)

// InboxService builds the aggregated conversation overview of a user
type InboxService struct {
	inboxRepo    *repository.InboxRepo
	deliveryRepo *repository.DeliveryRepo
	userRepo     *repository.UserRepo
	codec        *codec.Codec
}

// NewInboxService creates a new InboxService
func NewInboxService(repos *repository.Repositories, c *codec.Codec) *InboxService {
	return &InboxService{
		inboxRepo:    repos.Inbox,
		deliveryRepo: repos.Delivery,
		userRepo:     repos.User,
		codec:        c,
	}
}

// Overview lists the direct and group conversations of userId, newest activity first.
// Direct conversations without messages are left out; empty groups are kept and
// follow the active ones by creation time. Pin state never affects order.
func (s *InboxService) Overview(ctx context.Context, userId int64) (*entity.Inbox, error) {
	convs, err := s.inboxRepo.UserConversations(ctx, userId)
	if err != nil {
		log.CtxError(ctx, "get user conversations failed: user_id=%d, error=%v", userId, err)
		return nil, errcode.ErrInternalServer
	}

	inbox := &entity.Inbox{
		Direct: []*entity.DirectEntry{},
		Group:  []*entity.GroupEntry{},
	}
	if len(convs) == 0 {
		return inbox, nil
	}

	ids := make([]int64, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.Id)
	}

	latest, err := s.inboxRepo.LatestMessages(ctx, ids, userId)
	if err != nil {
		return nil, s.fail(ctx, "latest messages", userId, err)
	}
	unseen, err := s.deliveryRepo.UnseenCounts(ctx, ids, userId)
	if err != nil {
		return nil, s.fail(ctx, "unseen counts", userId, err)
	}
	pinned, err := s.inboxRepo.PinnedSet(ctx, userId)
	if err != nil {
		return nil, s.fail(ctx, "pins", userId, err)
	}

	var directIds, groupIds []int64
	for _, c := range convs {
		if c.IsGroup {
			groupIds = append(groupIds, c.Id)
		} else if _, ok := latest[c.Id]; ok {
			directIds = append(directIds, c.Id)
		}
	}

	memberCounts, err := s.inboxRepo.MemberCounts(ctx, groupIds)
	if err != nil {
		return nil, s.fail(ctx, "member counts", userId, err)
	}
	others, err := s.inboxRepo.OtherMembers(ctx, directIds, userId)
	if err != nil {
		return nil, s.fail(ctx, "other members", userId, err)
	}

	peerIds := make([]int64, 0, len(others))
	for _, convId := range directIds {
		if o := others[convId]; len(o) == 1 {
			peerIds = append(peerIds, o[0])
		}
	}
	peers, err := s.userRepo.GetMapByIds(ctx, peerIds)
	if err != nil {
		return nil, s.fail(ctx, "peer users", userId, err)
	}

	lastSendAt := func(convId int64) int64 {
		if m, ok := latest[convId]; ok {
			return m.SendAt
		}
		return 0
	}
	lastId := func(convId int64) int64 {
		if m, ok := latest[convId]; ok {
			return m.Id
		}
		return 0
	}

	for _, c := range convs {
		if c.IsGroup {
			inbox.Group = append(inbox.Group, &entity.GroupEntry{
				ConversationId: c.Id,
				Name:           c.Name,
				Avatar:         c.Avatar,
				MemberCount:    memberCounts[c.Id],
				LastMessage:    s.preview(latest[c.Id]),
				UnseenCount:    unseen[c.Id],
				IsPinned:       pinned[c.Id],
				CreatedAt:      c.CreatedAt,
			})
			continue
		}

		msg, ok := latest[c.Id]
		if !ok {
			continue
		}
		// get_other_member is only defined for exactly two members
		o := others[c.Id]
		if len(o) != 1 {
			log.CtxWarn(ctx, "direct conversation without a single peer: conversation_id=%d, peers=%d", c.Id, len(o))
			continue
		}
		other := &entity.UserInfo{Id: o[0]}
		if u, ok := peers[o[0]]; ok {
			other = u.ToUserInfo()
		}
		inbox.Direct = append(inbox.Direct, &entity.DirectEntry{
			ConversationId: c.Id,
			OtherUser:      other,
			LastMessage:    s.preview(msg),
			UnseenCount:    unseen[c.Id],
			IsPinned:       pinned[c.Id],
		})
	}

	sort.SliceStable(inbox.Direct, func(i, j int) bool {
		a, b := inbox.Direct[i].ConversationId, inbox.Direct[j].ConversationId
		if lastSendAt(a) != lastSendAt(b) {
			return lastSendAt(a) > lastSendAt(b)
		}
		return lastId(a) > lastId(b)
	})
	sort.SliceStable(inbox.Group, func(i, j int) bool {
		a, b := inbox.Group[i], inbox.Group[j]
		ta, tb := lastSendAt(a.ConversationId), lastSendAt(b.ConversationId)
		if (ta == 0) != (tb == 0) {
			return ta != 0
		}
		if ta == 0 {
			if a.CreatedAt != b.CreatedAt {
				return a.CreatedAt > b.CreatedAt
			}
			return a.ConversationId > b.ConversationId
		}
		if ta != tb {
			return ta > tb
		}
		return lastId(a.ConversationId) > lastId(b.ConversationId)
	})

	return inbox, nil
}

func (s *InboxService) preview(msg *entity.Message) *entity.LastMessage {
	if msg == nil {
		return nil
	}
	last := &entity.LastMessage{
		Id:        msg.Id,
		SenderId:  msg.SenderId,
		MediaUrl:  msg.MediaUrl,
		Timestamp: entity.FormatTimestamp(msg.SendAt),
	}
	if msg.ContentEncrypted != nil {
		text := s.codec.DecryptOrPlaceholder(*msg.ContentEncrypted)
		last.Message = &text
	}
	return last
}

func (s *InboxService) fail(ctx context.Context, step string, userId int64, err error) error {
	log.CtxError(ctx, "inbox %s failed: user_id=%d, error=%v", step, userId, err)
	return errcode.ErrInternalServer
}
