package entity

// LastMessage is the preview of the newest message in a conversation
type LastMessage struct {
	Id        int64   `json:"id"`
	SenderId  int64   `json:"sender_id"`
	Message   *string `json:"message"`
	MediaUrl  *string `json:"media_url"`
	Timestamp string  `json:"timestamp"`
}

// DirectEntry is one direct conversation in the inbox
type DirectEntry struct {
	ConversationId int64        `json:"conversation_id"`
	OtherUser      *UserInfo    `json:"other_user"`
	LastMessage    *LastMessage `json:"last_message"`
	UnseenCount    int64        `json:"unseen_count"`
	IsPinned       bool         `json:"is_pinned"`
}

// GroupEntry is one group conversation in the inbox
type GroupEntry struct {
	ConversationId int64        `json:"conversation_id"`
	Name           string       `json:"name"`
	Avatar         string       `json:"avatar"`
	MemberCount    int64        `json:"member_count"`
	LastMessage    *LastMessage `json:"last_message"`
	UnseenCount    int64        `json:"unseen_count"`
	IsPinned       bool         `json:"is_pinned"`
	CreatedAt      int64        `json:"created_at"`
}

// Inbox is the aggregated overview of a user's conversations
type Inbox struct {
	Direct []*DirectEntry `json:"direct"`
	Group  []*GroupEntry  `json:"group"`
}

// CountRow is a (conversation_id, count) aggregate row
type CountRow struct {
	ConversationId int64 `gorm:"column:conversation_id"`
	Count          int64 `gorm:"column:cnt"`
}

// MemberPair is a (conversation_id, user_id) row
type MemberPair struct {
	ConversationId int64 `gorm:"column:conversation_id"`
	UserId         int64 `gorm:"column:user_id"`
}
