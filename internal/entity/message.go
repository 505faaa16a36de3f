package entity

// Message represents a persisted message. Text is stored encrypted.
type Message struct {
	Id               int64   `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ConversationId   int64   `json:"conversation_id" gorm:"column:conversation_id;index:idx_conv_send,priority:1"`
	SenderId         int64   `json:"sender_id" gorm:"column:sender_id"`
	ContentEncrypted *string `json:"-" gorm:"column:content_encrypted;type:text"`
	MediaUrl         *string `json:"media_url" gorm:"column:media_url;size:1024"`
	SendAt           int64   `json:"send_at" gorm:"column:send_at;index:idx_conv_send,priority:2"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}

// SeenRecord marks that a user has viewed a message
type SeenRecord struct {
	Id        int64 `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	MessageId int64 `json:"message_id" gorm:"column:message_id;uniqueIndex:uk_seen_msg_user"`
	UserId    int64 `json:"user_id" gorm:"column:user_id;uniqueIndex:uk_seen_msg_user"`
	SeenAt    int64 `json:"seen_at" gorm:"column:seen_at"`
}

// TableName returns the table name for SeenRecord
func (SeenRecord) TableName() string {
	return "message_seen"
}

// Reaction is one user's reaction to a message
type Reaction struct {
	Id        int64  `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	MessageId int64  `json:"message_id" gorm:"column:message_id;uniqueIndex:uk_reaction_msg_user"`
	UserId    int64  `json:"user_id" gorm:"column:user_id;uniqueIndex:uk_reaction_msg_user"`
	Reaction  string `json:"reaction" gorm:"column:reaction;size:16"`
	ReactedAt int64  `json:"reacted_at" gorm:"column:reacted_at"`
}

// TableName returns the table name for Reaction
func (Reaction) TableName() string {
	return "message_reactions"
}

// MessageHide hides a message for a single user
type MessageHide struct {
	Id        int64 `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	MessageId int64 `json:"message_id" gorm:"column:message_id;uniqueIndex:uk_hide_msg_user"`
	UserId    int64 `json:"user_id" gorm:"column:user_id;uniqueIndex:uk_hide_msg_user"`
	HiddenAt  int64 `json:"hidden_at" gorm:"column:hidden_at"`
}

// TableName returns the table name for MessageHide
func (MessageHide) TableName() string {
	return "message_hides"
}

// SeenInfo represents a seen receipt in API responses
type SeenInfo struct {
	UserId int64  `json:"user_id"`
	SeenAt string `json:"seen_at"`
}

// ReactionInfo represents a reaction in API responses
type ReactionInfo struct {
	UserId   int64  `json:"user_id"`
	Reaction string `json:"reaction"`
	Emoji    string `json:"emoji"`
}

// MessageInfo represents a decrypted message for API responses
type MessageInfo struct {
	Id             int64           `json:"id"`
	ConversationId int64           `json:"conversation_id"`
	SenderId       int64           `json:"sender_id"`
	Message        *string         `json:"message"`
	MediaUrl       *string         `json:"media_url"`
	Timestamp      string          `json:"timestamp"`
	SendAt         int64           `json:"send_at"`
	IsSeen         bool            `json:"is_seen"`
	SeenBy         []*SeenInfo     `json:"seen_by"`
	Reactions      []*ReactionInfo `json:"reactions"`
}

// MessagePage is one page of history, oldest first
type MessagePage struct {
	Messages   []*MessageInfo `json:"messages"`
	NextCursor int64          `json:"next_cursor,omitempty"`
	HasMore    bool           `json:"has_more"`
}
