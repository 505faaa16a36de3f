package event

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mbeoliero/nexo-chat/pkg/constant"
)

// Outbound frame types
const (
	TypeMessage        = "message"
	TypeMediaMessage   = "media_message"
	TypeSeen           = "seen"
	TypeReaction       = "reaction"
	TypeMessageDeleted = "message_deleted"
	TypeError          = "error"
)

// Outbound is an event sent from the server to live connections.
// The set of implementations is closed to this package.
type Outbound interface {
	outbound()
}

// Message announces a newly persisted text message
type Message struct {
	Type           string  `json:"type"`
	ConversationId int64   `json:"conversation_id"`
	MessageId      int64   `json:"message_id"`
	SenderId       int64   `json:"sender_id"`
	Message        string  `json:"message"`
	MediaUrl       *string `json:"media_url,omitempty"`
	Timestamp      string  `json:"timestamp"`
}

// MediaMessage announces a message carrying a media reference
type MediaMessage struct {
	Type           string  `json:"type"`
	ConversationId int64   `json:"conversation_id"`
	MessageId      int64   `json:"message_id"`
	SenderId       int64   `json:"sender_id"`
	Message        *string `json:"message"`
	MediaUrl       string  `json:"media_url"`
	Timestamp      string  `json:"timestamp"`
}

// Seen announces a seen receipt
type Seen struct {
	Type      string `json:"type"`
	MessageId int64  `json:"message_id"`
	UserId    int64  `json:"user_id"`
	SeenAt    string `json:"seen_at"`
}

// Reaction announces a reaction change
type Reaction struct {
	Type      string `json:"type"`
	MessageId int64  `json:"message_id"`
	UserId    int64  `json:"user_id"`
	Reaction  string `json:"reaction"`
	Emoji     string `json:"emoji"`
}

// MessageDeleted announces a removed message
type MessageDeleted struct {
	Type              string `json:"type"`
	MessageId         int64  `json:"message_id"`
	DeleteForEveryone bool   `json:"delete_for_everyone"`
	DeletedForUserId  *int64 `json:"deleted_for_user_id"`
}

// Error reports a rejected inbound frame to its origin connection only
type Error struct {
	Type string `json:"type"`
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Ref  string `json:"ref,omitempty"`
}

func (*Message) outbound()        {}
func (*MediaMessage) outbound()   {}
func (*Seen) outbound()           {}
func (*Reaction) outbound()       {}
func (*MessageDeleted) outbound() {}
func (*Error) outbound()          {}

// TypeOf returns the type discriminator of an outbound event, or "" when unknown
func TypeOf(e Outbound) string {
	switch e.(type) {
	case *Message:
		return TypeMessage
	case *MediaMessage:
		return TypeMediaMessage
	case *Seen:
		return TypeSeen
	case *Reaction:
		return TypeReaction
	case *MessageDeleted:
		return TypeMessageDeleted
	case *Error:
		return TypeError
	}
	return ""
}

// Encode stamps the type discriminator and marshals the event
func Encode(e Outbound) ([]byte, error) {
	switch ev := e.(type) {
	case *Message:
		ev.Type = TypeMessage
	case *MediaMessage:
		ev.Type = TypeMediaMessage
	case *Seen:
		ev.Type = TypeSeen
	case *Reaction:
		ev.Type = TypeReaction
	case *MessageDeleted:
		ev.Type = TypeMessageDeleted
	case *Error:
		ev.Type = TypeError
	default:
		return nil, fmt.Errorf("event: unsupported outbound %T", e)
	}
	return json.Marshal(e)
}

// GroupKey is the broadcast group of a conversation
func GroupKey(conversationId int64) string {
	return constant.ChatGroupKeyPrefix + strconv.FormatInt(conversationId, 10)
}
