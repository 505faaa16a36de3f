package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/event"
	"github.com/mbeoliero/nexo-chat/internal/metrics"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
)

// Client is a connection bound to one conversation
type Client struct {
	mu             sync.Mutex
	conn           ClientConn
	UserId         int64
	ConversationId int64
	GroupKey       string
	ConnId         string
	server         *WsServer
	closed         atomic.Bool
	closedErr      error
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewClient creates a new client
func NewClient(conn ClientConn, userId, conversationId int64, connId string, server *WsServer) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:           conn,
		UserId:         userId,
		ConversationId: conversationId,
		GroupKey:       event.GroupKey(conversationId),
		ConnId:         connId,
		server:         server,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// readLoop reads frames until the connection ends. Cleanup runs on every exit path.
func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			c.closedErr = ErrPanic
			log.CtxError(c.ctx, "client read loop panic: user_id=%d, conn_id=%s, error=%v", c.UserId, c.ConnId, r)
		}
		c.close()
	}()

	for {
		message, err := c.conn.ReadMessage()
		if err != nil {
			log.CtxDebug(c.ctx, "read message error: user_id=%d, conn_id=%s, error=%v", c.UserId, c.ConnId, err)
			c.closedErr = err
			return
		}

		if c.closed.Load() {
			c.closedErr = ErrConnClosed
			return
		}

		c.server.presence.Refresh(c.ctx, c.UserId)
		c.handleMessage(message)
	}
}

// handleMessage decodes and dispatches one frame. No frame error ends the connection.
func (c *Client) handleMessage(message []byte) {
	frame, header, err := DecodeFrame(message)
	label := frameLabel(header.Type)
	if err != nil {
		metrics.InboundFrames.WithLabelValues(label, "dropped").Inc()
		log.CtxDebug(c.ctx, "drop frame: user_id=%d, conn_id=%s, error=%v", c.UserId, c.ConnId, err)
		return
	}

	if frame.Actor() != c.UserId {
		metrics.InboundFrames.WithLabelValues(label, "dropped").Inc()
		log.CtxWarn(c.ctx, "drop frame with foreign actor: user_id=%d, actor=%d, type=%s", c.UserId, frame.Actor(), header.Type)
		c.replyError(header.Ref, errcode.ErrSenderMismatch)
		return
	}

	// Detached: closing the connection must not abort a write or its publish
	ctx := context.WithoutCancel(c.ctx)

	if _, err := c.server.guard.CheckWrite(ctx, c.UserId); err != nil {
		metrics.InboundFrames.WithLabelValues(label, "rejected").Inc()
		c.replyError(header.Ref, err)
		return
	}

	switch f := frame.(type) {
	case *MessageFrame:
		err = c.server.HandleMessage(ctx, c, f)
	case *MediaMessageFrame:
		err = c.server.HandleMediaMessage(ctx, c, f)
	case *SeenFrame:
		err = c.server.HandleSeen(ctx, c, f)
	case *ReactionFrame:
		err = c.server.HandleReaction(ctx, c, f)
	}

	if err != nil {
		metrics.InboundFrames.WithLabelValues(label, "rejected").Inc()
		log.CtxDebug(ctx, "frame rejected: user_id=%d, type=%s, error=%v", c.UserId, header.Type, err)
		c.replyError(header.Ref, err)
		return
	}
	metrics.InboundFrames.WithLabelValues(label, "handled").Inc()
}

// replyError sends an error frame to this connection only
func (c *Client) replyError(ref string, err error) {
	var e *errcode.Error
	if !errors.As(err, &e) {
		e = errcode.ErrInternalServer
	}

	data, encErr := event.Encode(&event.Error{Code: e.Code, Msg: e.Msg, Ref: ref})
	if encErr != nil {
		log.CtxError(c.ctx, "encode error frame failed: %v", encErr)
		return
	}
	if werr := c.Deliver(data); werr != nil {
		log.CtxDebug(c.ctx, "reply error frame failed: conn_id=%s, error=%v", c.ConnId, werr)
	}
}

// Deliver queues an encoded frame without blocking
func (c *Client) Deliver(data []byte) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	return c.conn.WriteMessage(data)
}

// Close closes the client connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	c.closed.Store(true)
	c.cancel()
	return c.conn.Close()
}

// close handles cleanup when connection is closed
func (c *Client) close() {
	c.Close()
	c.server.unregisterClient(c)
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}
