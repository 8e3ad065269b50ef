package realtime

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 << 10
	closeFlushWait = time.Second
)

// Conn is a websocket connection used as a Handle. Outbound frames go
// through a bounded FIFO queue drained by writePump, so Send never touches
// the socket and frames leave in the order they were queued.
type Conn struct {
	id          string
	ws          *websocket.Conn
	send        chan []byte
	done        chan struct{}
	sendTimeout time.Duration
	logger      *zap.Logger

	closeOnce sync.Once
	closeMu   sync.Mutex
	closeCode int
	closeText string
}

var _ Handle = (*Conn)(nil)

func newConn(ws *websocket.Conn, buffer int, sendTimeout time.Duration, logger *zap.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:          id,
		ws:          ws,
		send:        make(chan []byte, buffer),
		done:        make(chan struct{}),
		sendTimeout: sendTimeout,
		logger:      logger.With(zap.String("conn_id", id)),
		closeCode:   websocket.CloseNormalClosure,
	}
}

func (c *Conn) ID() string { return c.id }

// Send queues payload. It fails with ErrConnClosed once the connection is
// closing. If the queue stays full for the whole send timeout the client
// is considered stalled: the connection is closed and ErrSendTimeout
// returned.
func (c *Conn) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
	}

	timer := time.NewTimer(c.sendTimeout)
	defer timer.Stop()

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnClosed
	case <-timer.C:
		c.CloseWithReason(websocket.CloseTryAgainLater, "send queue full")
		return ErrSendTimeout
	}
}

// Close starts an orderly shutdown: frames already queued are flushed,
// then a close frame is sent and the socket closed. It never blocks.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// CloseWithReason is Close with a specific close frame. Only the first
// close decides the code.
func (c *Conn) CloseWithReason(code int, text string) {
	c.closeMu.Lock()
	select {
	case <-c.done:
	default:
		c.closeCode, c.closeText = code, text
	}
	c.closeMu.Unlock()
	c.Close()
}

// Done is closed once the connection starts shutting down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// readPump delivers inbound text frames to onFrame in arrival order until
// the peer goes away, a read fails, or onFrame returns false.
func (c *Conn) readPump(onFrame func([]byte) bool) {
	c.ws.SetReadLimit(maxFrameSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Debug("set read deadline", zap.Error(err))
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, frame, err := c.ws.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if !onFrame(frame) {
			return
		}
	}
}

func (c *Conn) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Info("frame exceeded read limit", zap.Int("limit", maxFrameSize))
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.logger.Debug("peer closed connection", zap.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Debug("connection closed", zap.Error(err))
	default:
		c.logger.Info("read failed", zap.Error(err))
	}
}

// writePump is the only goroutine that writes to the socket.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			if !c.write(websocket.TextMessage, payload) {
				c.Close()
				return
			}
		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			return
		}
	}
}

// flush drains what was queued before the close and ends with a close
// frame, so a client that failed authentication still reads auth_failed.
func (c *Conn) flush() {
	deadline := time.Now().Add(closeFlushWait)
	for len(c.send) > 0 && time.Now().Before(deadline) {
		if !c.write(websocket.TextMessage, <-c.send) {
			return
		}
	}

	c.closeMu.Lock()
	code, text := c.closeCode, c.closeText
	c.closeMu.Unlock()

	msg := websocket.FormatCloseMessage(code, text)
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil && !isExpectedCloseError(err) {
		c.logger.Debug("write close frame", zap.Error(err))
	}
}

func (c *Conn) write(msgType int, payload []byte) bool {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Debug("set write deadline", zap.Error(err))
		return false
	}
	if err := c.ws.WriteMessage(msgType, payload); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Info("write failed", zap.Error(err))
		}
		return false
	}
	return true
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}
