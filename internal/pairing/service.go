package pairing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/swapychat/pairing-relay/internal/metrics"
)

// Entitlements reports whether a user may use premium features.
type Entitlements interface {
	IsEntitled(ctx context.Context, userID string) (bool, error)
}

type Config struct {
	// MaxConnections caps registered connections. <= 0 means unlimited.
	MaxConnections int

	Tracker      *Tracker
	Entitlements Entitlements
	Metrics      *metrics.Metrics
	Logger       *slog.Logger

	// NewID overrides connection id generation (tests).
	NewID func() ConnID
}

// Service is the matching service: connection registry, waiting pool,
// matcher and relay behind a single lock.
type Service struct {
	mu    sync.Mutex
	conns map[ConnID]*conn
	pool  waitingPool
	pairs int

	maxConns     int
	tracker      *Tracker
	entitlements Entitlements
	metrics      *metrics.Metrics
	log          *slog.Logger
	newID        func() ConnID
}

func NewService(cfg Config) *Service {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.NewID == nil {
		cfg.NewID = newConnID
	}
	return &Service{
		conns:        make(map[ConnID]*conn),
		maxConns:     cfg.MaxConnections,
		tracker:      cfg.Tracker,
		entitlements: cfg.Entitlements,
		metrics:      cfg.Metrics,
		log:          cfg.Logger,
		newID:        cfg.NewID,
	}
}

func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// Register adds a connection. It starts idle: registered, not yet matching.
func (s *Service) Register(p Peer) (ConnID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxConns > 0 && len(s.conns) >= s.maxConns {
		s.metrics.Inc(metrics.ConnectionsRejected)
		return "", ErrTooManyConnections
	}

	id := s.newID()
	for _, exists := s.conns[id]; exists; _, exists = s.conns[id] {
		id = s.newID()
	}
	sink := p.Sink
	if sink == nil {
		sink = SinkFunc(func(Event) bool { return false })
	}
	s.conns[id] = &conn{
		id:     id,
		userID: p.UserID,
		name:   p.DisplayName,
		sink:   sink,
	}
	s.metrics.Inc(metrics.ConnectionsRegistered)
	s.publishLocked()
	return id, nil
}

// Unregister removes a connection in any state and reports whether it had a
// live partner, who is then sent exactly one partner-left event and left idle.
// Unknown ids are ignored.
func (s *Service) Unregister(id ConnID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[id]
	if !ok {
		return false
	}
	delete(s.conns, id)

	hadPartner := false
	switch c.state {
	case stateWaiting:
		s.pool.remove(id)
	case statePaired:
		hadPartner = s.releaseLocked(c)
	}
	c.sink = nil
	s.publishLocked()
	s.log.Debug("connection unregistered", "conn_id", id, "had_partner", hadPartner)
	return hadPartner
}

// Init enters a connection into matching with the given attributes. A paired
// connection must be released with Skip first. A waiting connection has its
// attributes replaced and is matched again.
func (s *Service) Init(id ConnID, attrs Attributes) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	switch c.state {
	case statePaired:
		return ErrAlreadyPaired
	case stateWaiting:
		s.pool.remove(id)
		c.state = stateIdle
	}
	c.attrs = attrs
	s.matchLocked(c)
	s.publishLocked()
	return nil
}

// Skip releases the current pairing, if any, and requests a new match with the
// connection's current attributes. Waiting connections are left in place.
func (s *Service) Skip(id ConnID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	switch c.state {
	case stateWaiting:
		return nil
	case statePaired:
		s.releaseLocked(c)
		s.metrics.Inc(metrics.PairingsSkipped)
	}
	s.matchLocked(c)
	s.publishLocked()
	return nil
}

// Forward relays payload to the sender's partner. It reports whether the
// payload was handed to the partner's sink; drops are silent to the sender.
func (s *Service) Forward(from ConnID, payload Payload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[from]
	if !ok || c.state != statePaired {
		s.metrics.Inc(metrics.RelayDropped)
		return false
	}
	p, ok := s.conns[c.partner]
	if !ok || !p.sink.Deliver(Event{Kind: EventRelayed, Payload: payload}) {
		s.metrics.Inc(metrics.RelayDropped)
		return false
	}
	s.metrics.Inc(metrics.RelayForwarded)
	return true
}

// Stats is a point-in-time view of the service.
type Stats struct {
	Connections int
	Waiting     int
	Pairings    int
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Service) statsLocked() Stats {
	return Stats{
		Connections: len(s.conns),
		Waiting:     s.pool.len(),
		Pairings:    s.pairs,
	}
}

func (s *Service) publishLocked() {
	st := s.statsLocked()
	s.metrics.SetPool(st.Connections, st.Waiting, st.Pairings)
}

// matchLocked pairs c with the longest-waiting compatible connection or parks
// it at the tail of the pool.
func (s *Service) matchLocked(c *conn) {
	for i, pid := range s.pool.ids {
		if pid == c.id {
			continue
		}
		p, ok := s.conns[pid]
		if !ok || !compatible(c, p) {
			continue
		}

		s.pool.removeAt(i)
		c.partner, p.partner = p.id, c.id
		c.state, p.state = statePaired, statePaired
		s.pairs++

		s.emitLocked(p, Event{Kind: EventPairingEstablished})
		s.emitLocked(c, Event{Kind: EventPairingEstablished})
		if c.attrs.Tag != "" && p.attrs.Tag != "" {
			s.emitLocked(p, Event{Kind: EventPartnerDescriptor, Tag: c.attrs.Tag})
			s.emitLocked(c, Event{Kind: EventPartnerDescriptor, Tag: p.attrs.Tag})
		}
		s.tracker.RecordPairing(c.userID, p.userID)

		s.metrics.Inc(metrics.PairingsEstablished)
		s.log.Debug("pairing established", "conn_id", c.id, "partner_id", p.id)
		return
	}

	c.state = stateWaiting
	s.pool.push(c.id)
	s.emitLocked(c, Event{Kind: EventPairingPending})
	s.metrics.Inc(metrics.PairingsPending)
}

// releaseLocked clears the pairing edge on both sides and notifies the
// partner. c ends up idle regardless of whether it is still registered.
func (s *Service) releaseLocked(c *conn) bool {
	pid := c.partner
	c.partner = ""
	c.state = stateIdle

	p, ok := s.conns[pid]
	if !ok || p.partner != c.id {
		return false
	}
	p.partner = ""
	p.state = stateIdle
	s.pairs--

	s.emitLocked(p, Event{Kind: EventPartnerLeft})
	s.metrics.Inc(metrics.PartnerLeft)
	s.log.Debug("pairing released", "conn_id", c.id, "partner_id", p.id)
	return true
}

func (s *Service) emitLocked(c *conn, ev Event) {
	if c.sink == nil || !c.sink.Deliver(ev) {
		s.metrics.Inc(metrics.EventsUndeliverable)
	}
}

// RequestReconnect returns the user id of the requester's most recent partner.
// Checks run in order: identity, entitlement, recorded partner. It does not
// re-establish a live pairing.
func (s *Service) RequestReconnect(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		s.metrics.Inc(metrics.ReconnectUnauthenticated)
		return "", ErrUnauthenticated
	}
	if s.entitlements == nil {
		s.metrics.Inc(metrics.ReconnectEntitlementRequired)
		return "", ErrEntitlementRequired
	}
	entitled, err := s.entitlements.IsEntitled(ctx, userID)
	if err != nil {
		s.metrics.Inc(metrics.ReconnectFailed)
		return "", fmt.Errorf("check entitlement: %w", err)
	}
	if !entitled {
		s.metrics.Inc(metrics.ReconnectEntitlementRequired)
		return "", ErrEntitlementRequired
	}
	partner, ok := s.tracker.LastPartner(userID)
	if !ok {
		s.metrics.Inc(metrics.ReconnectNoPriorPartner)
		return "", ErrNoPriorPartner
	}
	s.metrics.Inc(metrics.ReconnectGranted)
	return partner, nil
}
