package gateway

import (
	"encoding/json"
	"fmt"
)

// Inbound frame types
const (
	FrameMessage      = "message"
	FrameMediaMessage = "media_message"
	FrameSeen         = "seen"
	FrameReaction     = "reaction"
)

// Inbound is a frame sent by a client. The set of implementations is closed to this package.
type Inbound interface {
	inbound()
	// Actor is the user id the frame claims to act as
	Actor() int64
}

// MessageFrame sends a new text message
type MessageFrame struct {
	Message  string  `json:"message"`
	SenderId int64   `json:"sender_id"`
	MediaUrl *string `json:"media_url,omitempty"`
}

// MediaMessageFrame tells peers about a message whose media was already uploaded
type MediaMessageFrame struct {
	MessageId int64   `json:"message_id"`
	SenderId  int64   `json:"sender_id"`
	Message   *string `json:"message,omitempty"`
	MediaUrl  string  `json:"media_url"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// SeenFrame marks a message seen
type SeenFrame struct {
	MessageId int64 `json:"message_id"`
	UserId    int64 `json:"user_id"`
}

// ReactionFrame sets the user's reaction on a message
type ReactionFrame struct {
	MessageId int64  `json:"message_id"`
	UserId    int64  `json:"user_id"`
	Reaction  string `json:"reaction"`
}

func (*MessageFrame) inbound()      {}
func (*MediaMessageFrame) inbound() {}
func (*SeenFrame) inbound()         {}
func (*ReactionFrame) inbound()     {}

func (f *MessageFrame) Actor() int64      { return f.SenderId }
func (f *MediaMessageFrame) Actor() int64 { return f.SenderId }
func (f *SeenFrame) Actor() int64         { return f.UserId }
func (f *ReactionFrame) Actor() int64     { return f.UserId }

// FrameHeader carries the discriminator and the optional client reference echoed in error frames
type FrameHeader struct {
	Type string `json:"type"`
	Ref  string `json:"ref"`
}

// DecodeFrame parses a raw frame into its typed form.
// It returns the frame type and ref even when the body fails to decode.
func DecodeFrame(data []byte) (Inbound, *FrameHeader, error) {
	var header FrameHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, &header, fmt.Errorf("%w: %v", ErrInvalidProtocol, err)
	}

	var frame Inbound
	switch header.Type {
	case FrameMessage:
		frame = &MessageFrame{}
	case FrameMediaMessage:
		frame = &MediaMessageFrame{}
	case FrameSeen:
		frame = &SeenFrame{}
	case FrameReaction:
		frame = &ReactionFrame{}
	default:
		return nil, &header, fmt.Errorf("%w: %q", ErrUnknownFrame, header.Type)
	}

	if err := json.Unmarshal(data, frame); err != nil {
		return nil, &header, fmt.Errorf("%w: %v", ErrInvalidProtocol, err)
	}
	return frame, &header, nil
}

// frameLabel bounds metric label values to the known frame types
func frameLabel(frameType string) string {
	switch frameType {
	case FrameMessage, FrameMediaMessage, FrameSeen, FrameReaction:
		return frameType
	}
	return "unknown"
}
