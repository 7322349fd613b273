package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/swapychat/pairing-relay/internal/auth"
	"github.com/swapychat/pairing-relay/internal/config"
	"github.com/swapychat/pairing-relay/internal/metrics"
	"github.com/swapychat/pairing-relay/internal/origin"
	"github.com/swapychat/pairing-relay/internal/turnrest"
)

const readyCheckTimeout = 2 * time.Second

type BuildInfo struct {
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
}

type Server struct {
	log    *slog.Logger
	cfg    config.Config
	build  BuildInfo
	origin origin.Policy

	ready atomic.Bool
	// readyCheck is consulted by /readyz once serving, e.g. a database ping.
	readyCheck func(context.Context) error

	metrics  *metrics.Metrics
	identity auth.IdentityProvider
	turn     *turnrest.Generator
	upgrade  http.Handler
	static   http.Handler

	mux *http.ServeMux
	srv *http.Server
}

func New(cfg config.Config, logger *slog.Logger, build BuildInfo) *Server {
	s := &Server{
		log:      logger,
		cfg:      cfg,
		build:    build,
		origin:   origin.Policy{Allowed: cfg.AllowedOrigins},
		identity: auth.AnonymousProvider{},
		mux:      http.NewServeMux(),
	}

	if cfg.TURNREST.Enabled() {
		gen, err := turnrest.NewGenerator(turnrest.GeneratorConfig{
			SharedSecret:   cfg.TURNREST.SharedSecret,
			TTLSeconds:     cfg.TURNREST.TTLSeconds,
			UsernamePrefix: cfg.TURNREST.UsernamePrefix,
		})
		if err != nil {
			logger.Error("turn rest disabled", "err", err)
		} else {
			s.turn = gen
		}
	}
	if cfg.StaticDir != "" {
		s.static = http.FileServer(http.Dir(cfg.StaticDir))
	}

	s.registerRoutes()

	handler := chain(s.mux,
		recoverMiddleware(s.log),
		requestIDMiddleware(),
		requestLoggerMiddleware(s.log),
		s.originMiddleware(),
	)

	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		// Other timeouts stay zero: /ws connections are long-lived.
	}

	return s
}

// Mux returns the underlying ServeMux for registering additional routes.
// It must only be used during startup before Serve is called.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// Handler returns the full middleware chain, for tests using httptest.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// SetMetrics exposes m on /metrics.
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetReadinessCheck makes /readyz report 503 while check fails.
func (s *Server) SetReadinessCheck(check func(context.Context) error) {
	s.readyCheck = check
}

// SetIdentityProvider is used to name TURN REST credentials after the caller.
func (s *Server) SetIdentityProvider(p auth.IdentityProvider) {
	if p != nil {
		s.identity = p
	}
}

// SetUpgradeHandler routes WebSocket upgrades on "/" to h, for clients that
// connect to the site root rather than /ws.
func (s *Server) SetUpgradeHandler(h http.Handler) {
	s.upgrade = h
}

func (s *Server) Serve(l net.Listener) error {
	s.ready.Store(true)
	s.log.Info("http server serving", "addr", l.Addr().String())
	return s.srv.Serve(l)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	return s.srv.Shutdown(ctx)
}

func (s *Server) Close() error {
	s.ready.Store(false)
	return s.srv.Close()
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	s.mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false})
			return
		}
		if err := s.cfg.ICEConfigError(); err != nil {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "error": err.Error()})
			return
		}
		if s.readyCheck != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
			defer cancel()
			if err := s.readyCheck(ctx); err != nil {
				s.log.Warn("readiness check failed", "err", err)
				WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "error": err.Error()})
				return
			}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"ready": true})
	})

	s.mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, s.build)
	})

	s.mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	s.mux.HandleFunc("GET /webrtc/ice", s.handleICE)

	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleICE(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.ICEConfigError(); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		return
	}
	servers := s.cfg.ICEServers
	if servers == nil {
		servers = []webrtc.ICEServer{}
	}
	if s.turn != nil {
		id, err := auth.Resolve(s.identity, r)
		if err != nil {
			// A stale token still gets anonymous credentials.
			id = auth.Identity{}
		}
		creds, err := s.turn.GenerateFor(id.UserID)
		if err != nil {
			s.log.Error("turn rest credentials", "err", err)
			WriteJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
			return
		}
		servers = turnrest.Inject(servers, creds)
		w.Header().Set("Cache-Control", "no-store")
	}
	WriteJSON(w, http.StatusOK, map[string]any{"iceServers": servers})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if s.upgrade != nil && r.URL.Path == "/" && websocket.IsWebSocketUpgrade(r) {
		s.upgrade.ServeHTTP(w, r)
		return
	}
	if s.static != nil && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		s.static.ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

// WriteJSON writes a JSON response body and sets the Content-Type header.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}
