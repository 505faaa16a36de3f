package errcode

import (
	"errors"
	"fmt"
)

// Error represents a business error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("errcode: %d, msg: %s", e.Code, e.Msg)
}

// Is reports whether target carries the same code, so wrapped errors still match
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// New creates a new error with code and message
func New(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap wraps an error with additional context
func (e *Error) Wrap(err error) *Error {
	if err == nil {
		return e
	}
	return &Error{
		Code: e.Code,
		Msg:  fmt.Sprintf("%s: %v", e.Msg, err),
	}
}

// WithMsg returns a copy of e with a detailed message
func (e *Error) WithMsg(format string, args ...interface{}) *Error {
	return &Error{
		Code: e.Code,
		Msg:  fmt.Sprintf("%s: %s", e.Msg, fmt.Sprintf(format, args...)),
	}
}

// Kind groups codes into the rejection categories clients care about
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindPermission
	KindNotFound
	KindAuth
)

// KindOf classifies err by its code range
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return KindInternal
	}
	switch e.Code {
	case ErrNotFound.Code, ErrUserNotFound.Code, ErrConvNotFound.Code, ErrMessageNotFound.Code:
		return KindNotFound
	case ErrNoPermission.Code, ErrForbidden.Code, ErrNotConversationMember.Code, ErrNotGroupOwner.Code,
		ErrNotMessageSender.Code, ErrAccountSuspended.Code:
		return KindPermission
	case ErrUnauthorized.Code, ErrTokenInvalid.Code, ErrTokenExpired.Code, ErrTokenMissing.Code:
		return KindAuth
	case ErrInternalServer.Code:
		return KindInternal
	}
	if e.Code >= 1000 && e.Code < 7000 {
		return KindValidation
	}
	return KindInternal
}

// Common error codes
var (
	// Success
	ErrSuccess = New(0, "success")

	// Common errors (1xxx)
	ErrInvalidParam    = New(1001, "invalid parameter")
	ErrInternalServer  = New(1002, "internal server error")
	ErrUnauthorized    = New(1003, "unauthorized")
	ErrForbidden       = New(1004, "forbidden")
	ErrNotFound        = New(1005, "not found")
	ErrTooManyRequests = New(1006, "too many requests")
	ErrNoPermission    = New(1007, "no permission to access this resource")

	// Auth errors (2xxx)
	ErrTokenInvalid = New(2001, "token invalid")
	ErrTokenExpired = New(2002, "token expired")
	ErrTokenMissing = New(2003, "token missing")
	ErrUserNotFound = New(2006, "user not found")

	// Conversation errors (3xxx)
	ErrConvNotFound          = New(3001, "conversation not found")
	ErrNotConversationMember = New(3003, "not a conversation member")
	ErrNotGroupOwner         = New(3006, "only the group admin can do this")
	ErrGroupTooSmall         = New(3009, "group must have at least 2 members")
	ErrNotGroupConversation  = New(3010, "not a group conversation")
	ErrNotDirectConversation = New(3011, "not a direct conversation")
	ErrEmptyMemberList       = New(3012, "member list is empty")

	// Message errors (4xxx)
	ErrMessageNotFound  = New(4001, "message not found")
	ErrEmptyMessage     = New(4007, "message needs text or media")
	ErrNotMessageSender = New(4008, "only the sender can delete this message")
	ErrInvalidReaction  = New(4009, "unknown reaction")
	ErrSendFailed       = New(4005, "message send failed")
	ErrPullFailed       = New(4006, "message pull failed")

	// WebSocket errors (5xxx)
	ErrConnOverLimit   = New(5001, "connection over max limit")
	ErrConnClosed      = New(5002, "connection closed")
	ErrInvalidProtocol = New(5003, "invalid protocol")
	ErrPushFailed      = New(5004, "push message failed")
	ErrSenderMismatch  = New(5005, "frame sender does not match connection user")

	// Account errors (6xxx)
	ErrAccountSuspended = New(6001, "your account is suspended")
)
