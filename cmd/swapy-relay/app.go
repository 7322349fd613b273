package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/swapychat/pairing-relay/internal/account"
	"github.com/swapychat/pairing-relay/internal/auth"
	"github.com/swapychat/pairing-relay/internal/config"
	"github.com/swapychat/pairing-relay/internal/entitlement"
	"github.com/swapychat/pairing-relay/internal/httpserver"
	"github.com/swapychat/pairing-relay/internal/metrics"
	"github.com/swapychat/pairing-relay/internal/origin"
	"github.com/swapychat/pairing-relay/internal/pairing"
	"github.com/swapychat/pairing-relay/internal/signaling"
)

// app is the wired service: one matching service shared by the WebSocket
// transport and the account endpoints.
type app struct {
	http    *httpserver.Server
	sig     *signaling.Server
	pairing *pairing.Service
	store   *entitlement.SQLiteStore
	log     *slog.Logger

	closeOnce sync.Once
}

func newApp(cfg config.Config, logger *slog.Logger, build httpserver.BuildInfo) (*app, error) {
	store, err := entitlement.OpenSQLite(cfg.EntitlementDBPath)
	if err != nil {
		return nil, err
	}
	tracker, err := pairing.NewTracker(cfg.ReconnectCapacity)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("reconnect tracker: %w", err)
	}

	var identity auth.IdentityProvider = auth.AnonymousProvider{}
	if cfg.JWTSecret != "" {
		identity = auth.NewJWTIdentityProvider(cfg.JWTSecret)
	}

	m := metrics.New()
	svc := pairing.NewService(pairing.Config{
		MaxConnections: cfg.MaxConnections,
		Tracker:        tracker,
		Entitlements:   store,
		Metrics:        m,
		Logger:         logger.With("component", "pairing"),
	})

	srv := httpserver.New(cfg, logger, build)
	srv.SetMetrics(m)
	srv.SetIdentityProvider(identity)
	srv.SetReadinessCheck(store.Ping)

	sig := signaling.NewServer(signaling.Config{
		Service:           svc,
		Identity:          identity,
		Origins:           origin.Policy{Allowed: cfg.AllowedOrigins},
		Metrics:           m,
		Logger:            logger.With("component", "signaling"),
		RequireIdentity:   cfg.RequireIdentity,
		AutoInit:          cfg.AutoInit,
		IdleTimeout:       cfg.SignalingWSIdleTimeout,
		PingInterval:      cfg.SignalingWSPingInterval,
		MaxMessageBytes:   cfg.MaxSignalingMessageBytes,
		MessagesPerSecond: cfg.MaxSignalingMessagesPerSecond,
		SendQueueBytes:    cfg.SignalingSendQueueBytes,
	})
	sig.RegisterRoutes(srv.Mux())
	srv.SetUpgradeHandler(sig)

	account.New(account.Config{
		Pairing:     svc,
		Identity:    identity,
		Store:       store,
		AdminAPIKey: cfg.AdminAPIKey,
		Logger:      logger.With("component", "account"),
	}).RegisterRoutes(srv.Mux())

	return &app{
		http:    srv,
		sig:     sig,
		pairing: svc,
		store:   store,
		log:     logger,
	}, nil
}

// shutdown stops accepting requests, closes live WebSocket sessions and
// releases the entitlement store.
func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if err := a.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.sig.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close websocket sessions: %w", err))
	}
	a.close()
	return errors.Join(errs...)
}

func (a *app) close() {
	a.closeOnce.Do(func() {
		if err := a.store.Close(); err != nil {
			a.log.Warn("close entitlement store", "err", err)
		}
	})
}
