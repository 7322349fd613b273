package signaling

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/swapychat/pairing-relay/internal/auth"
	"github.com/swapychat/pairing-relay/internal/metrics"
	"github.com/swapychat/pairing-relay/internal/pairing"
	"github.com/swapychat/pairing-relay/internal/ratelimit"
)

// wsConn is one WebSocket session. The HTTP handler goroutine reads; writeLoop
// owns all data frames. Control frames go through WriteControl, which gorilla
// allows concurrently with other writers.
type wsConn struct {
	srv     *Server
	ws      *websocket.Conn
	ident   auth.Identity
	id      pairing.ConnID
	queue   *sendQueue
	limiter *ratelimit.MessageLimiter
	done    chan struct{}
	log     *slog.Logger
}

func (c *wsConn) run() {
	cfg := c.srv.cfg
	svc := cfg.Service

	go c.writeLoop()
	go c.pingLoop()
	defer c.finish()

	if cfg.RequireIdentity && c.ident.Anonymous() {
		c.srv.metrics.Inc(metrics.SignalingUnauthed)
		c.fail("unauthorized", "a signed-in account is required", websocket.ClosePolicyViolation, "unauthorized")
		return
	}

	id, err := svc.Register(pairing.Peer{
		UserID:      c.ident.UserID,
		DisplayName: c.ident.Name,
		Sink:        c,
	})
	if err != nil {
		if errors.Is(err, pairing.ErrTooManyConnections) {
			c.fail("too_many_connections", "server is at capacity", websocket.CloseTryAgainLater, "too many connections")
			return
		}
		c.log.Error("register connection", "err", err)
		c.fail("internal_error", "internal error", websocket.CloseInternalServerErr, "internal error")
		return
	}
	c.id = id
	c.log = c.log.With("conn_id", id)
	defer svc.Unregister(id)
	c.log.Debug("connection registered", "anonymous", c.ident.Anonymous())

	if cfg.AutoInit {
		if err := svc.Init(id, pairing.Attributes{}); err != nil {
			c.log.Warn("auto init failed", "err", err)
		}
	}

	c.readLoop()
}

// finish flushes the send queue and waits for the writer, forcing the socket
// closed if the peer stops reading.
func (c *wsConn) finish() {
	c.queue.CloseWith(0, "")
	select {
	case <-c.done:
	case <-time.After(2 * wsWriteWait):
		_ = c.ws.Close()
		<-c.done
	}
}

func (c *wsConn) readLoop() {
	cfg := c.srv.cfg
	c.ws.SetReadLimit(cfg.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				// gorilla has already sent 1009.
				c.srv.metrics.Inc(metrics.SignalingTooLarge)
				c.log.Debug("inbound message too large", "limit", cfg.MaxMessageBytes)
			case isTimeout(err):
				c.log.Debug("websocket idle timeout")
				c.queue.CloseWith(websocket.CloseNormalClosure, "idle timeout")
			case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				c.log.Debug("websocket closed", "err", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))

		if !c.limiter.Allow() {
			c.srv.metrics.Inc(metrics.SignalingRateLimited)
			c.fail("rate_limited", "too many messages", websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		c.handleFrame(msgType, data)
	}
}

func (c *wsConn) handleFrame(msgType int, data []byte) {
	svc := c.srv.cfg.Service

	kind, attrs, err := parseFrame(msgType, data)
	if err != nil {
		c.srv.metrics.Inc(metrics.SignalingMalformed)
		c.log.Debug("dropping malformed control message", "err", err)
		return
	}

	switch kind {
	case frameInit:
		err := svc.Init(c.id, attrs)
		if errors.Is(err, pairing.ErrAlreadyPaired) {
			c.log.Debug("ignoring init while paired")
			return
		}
		if err != nil {
			c.log.Warn("init failed", "err", err)
		}
	case frameSkip:
		if err := svc.Skip(c.id); err != nil {
			c.log.Warn("skip failed", "err", err)
		}
	default:
		svc.Forward(c.id, pairing.Payload{Data: data, Binary: msgType == websocket.BinaryMessage})
	}
}

// Deliver implements pairing.Sink. It runs under the matching service lock.
func (c *wsConn) Deliver(ev pairing.Event) bool {
	f, err := encodeEvent(ev)
	if err != nil {
		c.log.Error("encode event", "kind", ev.Kind, "err", err)
		return false
	}
	if c.queue.Enqueue(f) {
		return true
	}
	if c.queue.Closed() {
		return false
	}

	dropped := c.queue.Abort(websocket.ClosePolicyViolation, "send queue overflow") + len(f.data)
	c.srv.metrics.Inc(metrics.SendQueueOverflow)
	c.srv.metrics.AddDroppedBytes(dropped)
	c.log.Warn("send queue overflow, closing connection", "dropped_bytes", dropped)
	return false
}

// fail sends an error message followed by a close frame.
func (c *wsConn) fail(code, message string, closeCode int, closeReason string) {
	c.queue.Enqueue(encodeError(code, message))
	c.queue.CloseWith(closeCode, closeReason)
}

func (c *wsConn) writeLoop() {
	defer close(c.done)
	defer c.ws.Close()

	for {
		f, ok := c.queue.Dequeue()
		if !ok {
			break
		}
		_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.ws.WriteMessage(f.msgType, f.data); err != nil {
			c.queue.Abort(0, "")
			return
		}
	}

	if req := c.queue.pendingClose(); req.code != 0 {
		writeClose(c.ws, req.code, req.reason)
	}
}

func (c *wsConn) pingLoop() {
	t := time.NewTicker(c.srv.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeClose(ws *websocket.Conn, code int, reason string) {
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}
