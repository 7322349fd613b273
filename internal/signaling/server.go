package signaling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/swapychat/pairing-relay/internal/auth"
	"github.com/swapychat/pairing-relay/internal/metrics"
	"github.com/swapychat/pairing-relay/internal/origin"
	"github.com/swapychat/pairing-relay/internal/pairing"
	"github.com/swapychat/pairing-relay/internal/ratelimit"
)

const (
	wsWriteWait = 1 * time.Second

	defaultIdleTimeout       = 60 * time.Second
	defaultPingInterval      = 20 * time.Second
	defaultMaxMessageBytes   = 64 * 1024
	defaultSendQueueBytes    = 1 << 20
	defaultMessagesPerSecond = 50
)

type Config struct {
	Service  *pairing.Service
	Identity auth.IdentityProvider
	Origins  origin.Policy
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// RequireIdentity refuses anonymous connections.
	RequireIdentity bool
	// AutoInit enters every new connection into matching without attributes.
	AutoInit bool

	IdleTimeout       time.Duration
	PingInterval      time.Duration
	MaxMessageBytes   int64
	MessagesPerSecond int
	SendQueueBytes    int

	Clock ratelimit.Clock
}

// Server upgrades HTTP requests to WebSocket sessions and binds each one to
// the matching service.
type Server struct {
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*wsConn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewServer(cfg Config) *Server {
	if cfg.Identity == nil {
		cfg.Identity = auth.AnonymousProvider{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Metrics == nil && cfg.Service != nil {
		cfg.Metrics = cfg.Service.Metrics()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PingInterval >= cfg.IdleTimeout {
		cfg.PingInterval = cfg.IdleTimeout / 2
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	if cfg.SendQueueBytes <= 0 {
		cfg.SendQueueBytes = defaultSendQueueBytes
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = defaultMessagesPerSecond
	}
	if cfg.Clock == nil {
		cfg.Clock = ratelimit.RealClock{}
	}

	s := &Server{
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		conns:   make(map[*wsConn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			_, _, ok := cfg.Origins.CheckRequest(r)
			return ok
		},
	}
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /ws", s)
}

// ConnectionCount returns the number of live WebSocket sessions.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close sends a going-away close frame to every session and waits for their
// handlers to return or ctx to expire.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for c := range s.conns {
		c.queue.CloseWith(websocket.CloseGoingAway, "server shutting down")
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for c := range s.conns {
			_ = c.ws.Close()
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Service == nil {
		http.Error(w, "signaling not configured", http.StatusInternalServerError)
		return
	}

	id, err := auth.Resolve(s.cfg.Identity, r)
	if err != nil {
		s.log.Debug("ignoring invalid credentials on websocket upgrade", "err", err)
		id = auth.Identity{}
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response.
		return
	}

	c := &wsConn{
		srv:     s,
		ws:      ws,
		ident:   id,
		queue:   newSendQueue(s.cfg.SendQueueBytes),
		limiter: ratelimit.NewMessageLimiter(s.cfg.Clock, s.cfg.MessagesPerSecond, s.cfg.MessagesPerSecond),
		done:    make(chan struct{}),
		log:     s.log.With("remote_addr", remoteIP(r)),
	}

	if !s.track(c) {
		c.queue.CloseWith(websocket.CloseGoingAway, "server shutting down")
		go c.writeLoop()
		<-c.done
		return
	}
	defer s.untrack(c)

	c.run()
}

func (s *Server) track(c *wsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
