package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// fileKeys maps TOML keys to the environment variables they stand in for.
// A file value applies only when the variable is not set in the environment.
var fileKeys = map[string]string{
	"listen_addr":      envVarListenAddr,
	"public_base_url":  envVarPublicBaseURL,
	"allowed_origins":  envVarAllowedOrigins,
	"mode":             envVarMode,
	"log_format":       envVarLogFormat,
	"log_level":        envVarLogLevel,
	"shutdown_timeout": envVarShutdownTimeout,

	"ice_servers":     envICEServersJSON,
	"stun_urls":       envStunURLs,
	"turn_urls":       envTurnURLs,
	"turn_username":   envTurnUsername,
	"turn_credential": envTurnCredential,

	"turn_rest_shared_secret":   envVarTURNRESTSharedSecret,
	"turn_rest_ttl_seconds":     envVarTURNRESTTTLSeconds,
	"turn_rest_username_prefix": envVarTURNRESTUsernamePrefix,

	"jwt_secret":         envVarJWTSecret,
	"require_identity":   envVarRequireIdentity,
	"admin_api_key":      envVarAdminAPIKey,
	"entitlement_db":     envVarEntitlementDB,
	"reconnect_capacity": envVarReconnectCapacity,
	"max_connections":    envVarMaxConnections,
	"auto_init":          envVarAutoInit,
	"static_dir":         envVarStaticDir,

	"signaling_ws_idle_timeout":         envVarSignalingWSIdleTimeout,
	"signaling_ws_ping_interval":        envVarSignalingWSPingInterval,
	"max_signaling_message_bytes":       envVarMaxSignalingMessageBytes,
	"max_signaling_messages_per_second": envVarMaxSignalingMessagesPerSecond,
	"signaling_send_queue_bytes":        envVarSignalingSendQueueBytes,
}

// loadFile decodes a TOML config file into env-style string values so the
// rest of load treats file settings and environment variables the same way.
func loadFile(path string) (map[string]string, error) {
	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(raw))
	for _, key := range keys {
		env, ok := fileKeys[key]
		if !ok {
			return nil, fmt.Errorf("config file %s: unknown key %q", path, key)
		}
		v, err := fileValueString(key, raw[key])
		if err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		out[env] = v
	}
	return out, nil
}

func fileValueString(key string, v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool, int64, float64:
		return fmt.Sprint(val), nil
	case []any:
		if key == "ice_servers" {
			b, err := json.Marshal(val)
			if err != nil {
				return "", fmt.Errorf("%s: %w", key, err)
			}
			return string(b), nil
		}
		parts := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return "", fmt.Errorf("%s: expected a list of strings", key)
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	case []map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("%s: %w", key, err)
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("%s: unsupported value type %T", key, v)
	}
}

// configPathFromArgs finds -config/--config before flag parsing, since the
// file supplies defaults for every other flag.
func configPathFromArgs(args []string) (string, bool) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != flagConfig {
			continue
		}
		if hasValue {
			return value, true
		}
		if i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

// layered returns a lookup that consults env first and then file values.
func layered(env func(string) (string, bool), file map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
		v, ok := file[key]
		return v, ok
	}
}
