package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/hazlamahedich/trade/cmd/gateway/internal/hub"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/protocol"
	"github.com/hazlamahedich/trade/cmd/gateway/internal/repository"
	"github.com/hazlamahedich/trade/pkg/models"
)

const (
	maxMessageSize = 64 * 1024
	maxDiscard     = 1 << 20 // oversized payload drained before the close frame
	sendBuffer     = 256
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("client send buffer full")
)

// Timeouts bound the per-connection loops.
type Timeouts struct {
	WriteWait   time.Duration
	ReadTimeout time.Duration
	Heartbeat   time.Duration
}

// ClientAdapter is one viewer connection. It runs three goroutines: the read
// loop, the write loop and the liveness loop. All writes to the socket happen
// on the write loop.
type ClientAdapter struct {
	conn      net.Conn
	hub       *hub.Hub
	states    repository.StateStore
	sessionID string
	send      chan []byte
	logger    *zap.Logger
	timeouts  Timeouts

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeCode ws.StatusCode
	closeMsg  string
}

func NewClient(conn net.Conn, h *hub.Hub, states repository.StateStore, sessionID string, logger *zap.Logger, t Timeouts) *ClientAdapter {
	ctx, cancel := context.WithCancel(context.Background())
	return &ClientAdapter{
		conn:      conn,
		hub:       h,
		states:    states,
		sessionID: sessionID,
		send:      make(chan []byte, sendBuffer),
		logger:    logger.With(zap.String("session_id", sessionID), zap.String("client", conn.RemoteAddr().String())),
		timeouts:  t,
		ctx:       ctx,
		cancel:    cancel,
		closeCode: ws.StatusNormalClosure,
	}
}

// Start queues the greeting, subscribes to the session and starts the loops.
// The greeting is queued before Join so it is always the first event.
func (c *ClientAdapter) Start(status models.SessionStatus) {
	c.SendEvent(protocol.ActionConnected, protocol.ConnectedPayload{DebateID: c.sessionID, Status: status})
	c.hub.Join(c.sessionID, c)

	go c.writePump()
	go c.readPump()
	go c.livenessLoop()
}

func (c *ClientAdapter) ID() string { return c.conn.RemoteAddr().String() }

// Send never blocks. A full buffer is reported so the hub can drop the viewer.
func (c *ClientAdapter) Send(b []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *ClientAdapter) SendEvent(typ string, payload interface{}) error {
	b, err := json.Marshal(protocol.NewEvent(typ, payload))
	if err != nil {
		return err
	}
	return c.Send(b)
}

// Close is idempotent. The write loop sends the close frame and releases the
// socket.
func (c *ClientAdapter) Close(code ws.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeMsg = reason
		c.cancel()
	})
}

// Done is closed once the connection is shutting down.
func (c *ClientAdapter) Done() <-chan struct{} { return c.ctx.Done() }

func (c *ClientAdapter) readPump() {
	defer func() {
		c.hub.Leave(c.sessionID, c)
		c.Close(ws.StatusNormalClosure, "")
	}()

	for {
		c.conn.SetReadDeadline(time.Now().Add(c.timeouts.ReadTimeout))

		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() && c.ctx.Err() == nil {
				continue
			}
			return
		}

		if header.Length > int64(maxMessageSize) {
			c.logger.Warn("Msg too big", zap.Int64("size", header.Length))
			io.CopyN(io.Discard, c.conn, min(header.Length, maxDiscard))
			c.Close(ws.StatusMessageTooBig, "Message too big")
			return
		}

		if !header.Fin {
			c.logger.Warn("Client sent fragmented message (not supported)")
			c.Close(ws.StatusUnsupportedData, "Fragmented messages not supported")
			return
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			return
		}

		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		switch header.OpCode {
		case ws.OpClose:
			return
		case ws.OpText, ws.OpBinary:
			c.handle(payload)
		}
	}
}

func (c *ClientAdapter) handle(payload []byte) {
	var msg protocol.Inbound
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Type == "" {
		c.SendEvent(protocol.ActionError, protocol.ErrorPayload{
			Code:    protocol.ErrCodeInvalidMessage,
			Message: "Invalid JSON",
		})
		return
	}

	switch msg.Type {
	case protocol.ActionPong:
	case protocol.ActionGetState:
		c.SendEvent(protocol.ActionStatusUpdate, protocol.StatusPayload{
			DebateID: c.sessionID,
			Status:   c.currentStatus(),
		})
	default:
		c.logger.Debug("Ignoring unknown action", zap.String("type", msg.Type))
	}
}

func (c *ClientAdapter) currentStatus() models.SessionStatus {
	ctx, cancel := context.WithTimeout(c.ctx, c.timeouts.WriteWait)
	defer cancel()
	return SessionStatus(ctx, c.states, c.sessionID, c.logger)
}

func (c *ClientAdapter) writePump() {
	defer c.conn.Close()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.timeouts.WriteWait))
			if err := wsutil.WriteServerText(c.conn, msg); err != nil {
				c.logger.Debug("Write failed", zap.Error(err))
				c.hub.Leave(c.sessionID, c)
				c.Close(ws.StatusGoingAway, "")
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(c.timeouts.WriteWait))
			writeClose(c.conn, c.closeCode, c.closeMsg)
			return
		}
	}
}

// livenessLoop queues a PING event every heartbeat. It stops silently when the
// connection is gone.
func (c *ClientAdapter) livenessLoop() {
	ticker := time.NewTicker(c.timeouts.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.SendEvent(protocol.ActionPing, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func writeClose(conn net.Conn, code ws.StatusCode, reason string) error {
	return ws.WriteFrame(conn, ws.NewCloseFrame(ws.NewCloseFrameBody(code, reason)))
}

// SessionStatus reads the stored status, treating a store failure as absent.
func SessionStatus(ctx context.Context, states repository.StateStore, sessionID string, logger *zap.Logger) models.SessionStatus {
	state, err := states.Get(ctx, sessionID)
	if err != nil {
		logger.Warn("Failed to load session state", zap.String("session_id", sessionID), zap.Error(err))
		return models.StatusReady
	}
	if state == nil {
		return models.StatusReady
	}
	return state.Status
}
