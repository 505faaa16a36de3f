package gateway

import "errors"

// Gateway errors
var (
	ErrConnClosed       = errors.New("connection closed")
	ErrWriteChannelFull = errors.New("write channel full")
	ErrInvalidProtocol  = errors.New("invalid protocol")
	ErrUnknownFrame     = errors.New("unknown frame type")
	ErrPanic            = errors.New("panic error")
)
