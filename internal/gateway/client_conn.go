package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/config"
)

// ClientConn represents a WebSocket connection wrapper
type ClientConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// frameConn is the connection API gorilla/websocket and hertz-contrib/websocket have in common.
// Both use the RFC 6455 opcode values, so the gorilla message type constants apply to either.
type frameConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// queuedConn owns the only writer goroutine of a connection. Writers enqueue without blocking.
type queuedConn struct {
	conn       frameConn
	writeChan  chan []byte
	writeMu    sync.Mutex
	closeOnce  sync.Once
	closed     bool
	pingPeriod time.Duration
	pongWait   time.Duration
	writeWait  time.Duration
}

// NewWebSocketClientConn wraps a gorilla connection
func NewWebSocketClientConn(conn *websocket.Conn, cfg *config.WebSocketConfig) ClientConn {
	return newQueuedConn(conn, cfg)
}

func newQueuedConn(conn frameConn, cfg *config.WebSocketConfig) *queuedConn {
	c := &queuedConn{
		conn:       conn,
		writeChan:  make(chan []byte, cfg.WriteChannelSize),
		pingPeriod: cfg.PingPeriod,
		pongWait:   cfg.PongWait,
		writeWait:  cfg.WriteWait,
	}

	conn.SetReadLimit(cfg.MaxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	go c.writeLoop()
	return c
}

// writeLoop drains the queue in order, pings on idle and closes the socket when the queue is closed
func (c *queuedConn) writeLoop() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		if r := recover(); r != nil {
			log.Debug("write loop recovered: %v", r)
		}
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.writeChan:
			if !ok {
				_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.write(websocket.TextMessage, message); err != nil {
				log.Debug("write frame failed: %v", err)
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				log.Debug("ping failed: %v", err)
				return
			}
		}
	}
}

func (c *queuedConn) write(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// ReadMessage reads the next frame, allowing pongWait for it to arrive
func (c *queuedConn) ReadMessage() ([]byte, error) {
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	_, message, err := c.conn.ReadMessage()
	return message, err
}

// WriteMessage queues a text frame. It fails fast when the queue is full or closed.
func (c *queuedConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return ErrConnClosed
	}

	select {
	case c.writeChan <- data:
		return nil
	default:
		return ErrWriteChannelFull
	}
}

// Close stops accepting frames and returns at once. The write loop still sends what was
// already queued, then a normal close frame, then closes the socket.
func (c *queuedConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		close(c.writeChan)
		c.writeMu.Unlock()
	})
	return nil
}

// SetReadDeadline sets the read deadline
func (c *queuedConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline
func (c *queuedConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// reject writes a close control frame carrying code and drops the connection
func reject(conn frameConn, code int, reason string, writeWait time.Duration) {
	deadline := time.Now().Add(writeWait)
	if err := conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline); err != nil {
		log.Debug("write close frame failed: code=%d, error=%v", code, err)
	}
	conn.Close()
}
