package entity

// Conversation represents a direct or group conversation
type Conversation struct {
	Id        int64   `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	IsGroup   bool    `json:"is_group" gorm:"column:is_group;index"`
	Name      string  `json:"name" gorm:"column:name;size:255"`
	Avatar    string  `json:"avatar" gorm:"column:avatar;size:512"`
	CreatorId int64   `json:"creator_id" gorm:"column:creator_id"`
	DirectKey *string `json:"-" gorm:"column:direct_key;size:64;uniqueIndex:uk_direct_key"`
	CreatedAt int64   `json:"created_at" gorm:"column:created_at"`
	UpdatedAt int64   `json:"updated_at" gorm:"column:updated_at"`
}

// TableName returns the table name for Conversation
func (Conversation) TableName() string {
	return "conversations"
}

// ConversationMember represents membership of a user in a conversation
type ConversationMember struct {
	Id             int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ConversationId int64 `json:"conversation_id" gorm:"column:conversation_id;uniqueIndex:uk_conv_user"`
	UserId         int64 `json:"user_id" gorm:"column:user_id;uniqueIndex:uk_conv_user;index:idx_member_user"`
	JoinedAt       int64 `json:"joined_at" gorm:"column:joined_at"`
}

// TableName returns the table name for ConversationMember
func (ConversationMember) TableName() string {
	return "conversation_members"
}

// PinnedChat marks a conversation as pinned by one user
type PinnedChat struct {
	Id             int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	UserId         int64 `json:"user_id" gorm:"column:user_id;uniqueIndex:uk_user_conv"`
	ConversationId int64 `json:"conversation_id" gorm:"column:conversation_id;uniqueIndex:uk_user_conv"`
	PinnedAt       int64 `json:"pinned_at" gorm:"column:pinned_at"`
}

// TableName returns the table name for PinnedChat
func (PinnedChat) TableName() string {
	return "pinned_chats"
}

// GroupMemberInfo represents a member in group detail
type GroupMemberInfo struct {
	UserId   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
	IsAdmin  bool   `json:"is_admin"`
	JoinedAt int64  `json:"joined_at"`
}

// GroupDetail represents a group conversation with its members
type GroupDetail struct {
	Id        int64              `json:"id"`
	Name      string             `json:"name"`
	Avatar    string             `json:"avatar"`
	CreatorId int64              `json:"creator_id"`
	CreatedAt int64              `json:"created_at"`
	Members   []*GroupMemberInfo `json:"members"`
}
