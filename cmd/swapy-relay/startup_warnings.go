package main

import (
	"log/slog"
	"slices"

	"github.com/swapychat/pairing-relay/internal/config"
	"github.com/swapychat/pairing-relay/internal/turnrest"
)

const minAdminAPIKeyLen = 16

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if slices.Contains(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.JWTSecret == "" {
		logger.Warn("startup security warning: JWT_SECRET is unset while --mode=prod (every client is anonymous; premium reconnect is unavailable)",
			"warning_code", "jwt_secret_unset_in_prod",
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxConnections <= 0 {
		logger.Warn("startup security warning: MAX_CONNECTIONS is unset/0 (unlimited) while --mode=prod",
			"warning_code", "max_connections_unlimited_in_prod",
			"max_connections", cfg.MaxConnections,
			"mode", cfg.Mode,
		)
	}

	if cfg.AdminAPIKey != "" && len(cfg.AdminAPIKey) < minAdminAPIKeyLen {
		logger.Warn("startup security warning: ADMIN_API_KEY is short (easy to guess)",
			"warning_code", "admin_api_key_short",
			"min_length", minAdminAPIKeyLen,
			"mode", cfg.Mode,
		)
	}

	if cfg.TURNREST.Enabled() && !slices.ContainsFunc(cfg.ICEServers, turnrest.HasTURNURL) {
		logger.Warn("startup warning: TURN_REST_SHARED_SECRET is set but no TURN URLs are configured (credentials will never be used)",
			"warning_code", "turn_rest_without_turn_urls",
			"ice_servers", len(cfg.ICEServers),
			"mode", cfg.Mode,
		)
	}
}
