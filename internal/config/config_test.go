package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func noEnv(string) (string, bool) { return "", false }

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swapy-relay.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultsDev(t *testing.T) {
	cfg, err := load(noEnv, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeDev)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("logLevel=%v, want debug", cfg.LogLevel)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("ListenAddr=%q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.EntitlementDBPath != DefaultEntitlementDB {
		t.Fatalf("EntitlementDBPath=%q, want %q", cfg.EntitlementDBPath, DefaultEntitlementDB)
	}
	if cfg.ReconnectCapacity != DefaultReconnectCapacity {
		t.Fatalf("ReconnectCapacity=%d, want %d", cfg.ReconnectCapacity, DefaultReconnectCapacity)
	}
	if cfg.MaxConnections != 0 || cfg.AutoInit || cfg.RequireIdentity {
		t.Fatalf("unexpected matching defaults: %+v", cfg)
	}
	if cfg.SignalingSendQueueBytes != DefaultSignalingSendQueueBytes {
		t.Fatalf("SignalingSendQueueBytes=%d, want %d", cfg.SignalingSendQueueBytes, DefaultSignalingSendQueueBytes)
	}
	if cfg.TURNREST.Enabled() {
		t.Fatalf("TURN REST enabled by default")
	}
	if cfg.TURNREST.UsernamePrefix != DefaultTURNRESTUsernamePrefix {
		t.Fatalf("TURN REST prefix=%q, want %q", cfg.TURNREST.UsernamePrefix, DefaultTURNRESTUsernamePrefix)
	}
	if err := cfg.ICEConfigError(); err != nil {
		t.Fatalf("ICEConfigError=%v", err)
	}
}

func TestDefaultsProdWhenModeFlagSet(t *testing.T) {
	cfg, err := load(noEnv, []string{"--mode", "prod"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeProd {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeProd)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatJSON)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("logLevel=%v, want info", cfg.LogLevel)
	}
}

func TestLogFormatExplicitOverride(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarMode:      "prod",
		envVarLogFormat: "text",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarListenAddr:     "0.0.0.0:1",
		envVarMaxConnections: "10",
		envVarAutoInit:       "true",
	}), []string{"--listen-addr", "0.0.0.0:2", "--max-connections=20", "--auto-init=false"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:2" {
		t.Fatalf("ListenAddr=%q", cfg.ListenAddr)
	}
	if cfg.MaxConnections != 20 {
		t.Fatalf("MaxConnections=%d, want 20", cfg.MaxConnections)
	}
	if cfg.AutoInit {
		t.Fatalf("AutoInit=true, want false")
	}
}

func TestConfigFileLayering(t *testing.T) {
	path := writeConfigFile(t, `
listen_addr = "0.0.0.0:9000"
max_connections = 5
auto_init = true
allowed_origins = ["https://app.example.com", "http://localhost:5173"]
signaling_ws_ping_interval = "5s"
stun_urls = ["stun:stun.example.com:3478"]
`)

	t.Run("file over defaults", func(t *testing.T) {
		cfg, err := load(lookupMap(map[string]string{envVarConfigFile: path}), nil)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.ConfigFile != path {
			t.Fatalf("ConfigFile=%q, want %q", cfg.ConfigFile, path)
		}
		if cfg.ListenAddr != "0.0.0.0:9000" || cfg.MaxConnections != 5 || !cfg.AutoInit {
			t.Fatalf("file values not applied: %+v", cfg)
		}
		if cfg.SignalingWSPingInterval != 5*time.Second {
			t.Fatalf("SignalingWSPingInterval=%v, want 5s", cfg.SignalingWSPingInterval)
		}
		if got := strings.Join(cfg.AllowedOrigins, ","); got != "https://app.example.com,http://localhost:5173" {
			t.Fatalf("AllowedOrigins=%q", got)
		}
		if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].URLs[0] != "stun:stun.example.com:3478" {
			t.Fatalf("ICEServers=%#v", cfg.ICEServers)
		}
	})

	t.Run("env over file", func(t *testing.T) {
		cfg, err := load(lookupMap(map[string]string{
			envVarConfigFile:     path,
			envVarMaxConnections: "7",
		}), nil)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.MaxConnections != 7 {
			t.Fatalf("MaxConnections=%d, want 7", cfg.MaxConnections)
		}
		if cfg.ListenAddr != "0.0.0.0:9000" {
			t.Fatalf("ListenAddr=%q, want file value", cfg.ListenAddr)
		}
	})

	t.Run("flag over env and file", func(t *testing.T) {
		cfg, err := load(lookupMap(map[string]string{
			envVarMaxConnections: "7",
		}), []string{"-config", path, "-max-connections", "9"})
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.MaxConnections != 9 {
			t.Fatalf("MaxConnections=%d, want 9", cfg.MaxConnections)
		}
		if !cfg.AutoInit {
			t.Fatalf("AutoInit from file lost")
		}
	})
}

func TestConfigFileICEServersTable(t *testing.T) {
	path := writeConfigFile(t, `
[[ice_servers]]
urls = "stun:stun.example.com:3478"

[[ice_servers]]
urls = ["turn:turn.example.com:3478?transport=udp"]
username = "user"
credential = "pass"
`)
	cfg, err := load(noEnv, []string{"--config=" + path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.ICEConfigError(); err != nil {
		t.Fatalf("ICEConfigError=%v", err)
	}
	if len(cfg.ICEServers) != 2 {
		t.Fatalf("ICEServers=%#v", cfg.ICEServers)
	}
	if cfg.ICEServers[1].Username != "user" {
		t.Fatalf("TURN username=%q", cfg.ICEServers[1].Username)
	}
}

func TestConfigFileErrors(t *testing.T) {
	unknown := writeConfigFile(t, `listen_adr = "typo"`)
	if _, err := load(noEnv, []string{"--config", unknown}); err == nil || !strings.Contains(err.Error(), "listen_adr") {
		t.Fatalf("expected unknown key error, got %v", err)
	}

	if _, err := load(noEnv, []string{"--config", filepath.Join(t.TempDir(), "missing.toml")}); err == nil {
		t.Fatalf("expected error for missing file")
	}

	badType := writeConfigFile(t, `allowed_origins = [1, 2]`)
	if _, err := load(noEnv, []string{"--config", badType}); err == nil {
		t.Fatalf("expected error for non-string list")
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		args []string
		want string
	}{
		{
			name: "require identity without secret",
			env:  map[string]string{envVarRequireIdentity: "true"},
			want: envVarJWTSecret,
		},
		{
			name: "ping not below idle",
			args: []string{"--signaling-ws-ping-interval", "60s", "--signaling-ws-idle-timeout", "60s"},
			want: "--signaling-ws-ping-interval must be <",
		},
		{
			name: "zero rate",
			env:  map[string]string{envVarMaxSignalingMessagesPerSecond: "0"},
			want: envVarMaxSignalingMessagesPerSecond + "/--max-signaling-messages-per-second must be > 0",
		},
		{
			name: "queue smaller than message",
			args: []string{"--signaling-send-queue-bytes", "1024"},
			want: "--signaling-send-queue-bytes must be >=",
		},
		{
			name: "negative max connections",
			args: []string{"--max-connections", "-1"},
			want: "--max-connections must be >= 0",
		},
		{
			name: "bad bool",
			env:  map[string]string{envVarAutoInit: "maybe"},
			want: envVarAutoInit,
		},
		{
			name: "bad duration",
			env:  map[string]string{envVarShutdownTimeout: "soon"},
			want: envVarShutdownTimeout,
		},
		{
			name: "bad origin",
			env:  map[string]string{envVarAllowedOrigins: "https://example.com/path"},
			want: "invalid origin",
		},
		{
			name: "bad mode",
			args: []string{"--mode", "staging"},
			want: "invalid mode",
		},
		{
			name: "zero reconnect capacity",
			args: []string{"--reconnect-capacity", "0"},
			want: "--reconnect-capacity must be > 0",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := tc.env
			if env == nil {
				env = map[string]string{}
			}
			_, err := load(lookupMap(env), tc.args)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%q, want substring %q", err, tc.want)
			}
		})
	}
}

func TestRequireIdentityWithSecret(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarRequireIdentity: "1",
		envVarJWTSecret:       "s3cret",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.RequireIdentity || cfg.JWTSecret != "s3cret" {
		t.Fatalf("unexpected identity config: %+v", cfg)
	}
}

func TestParseAllowedOrigins_NormalizesAndValidates(t *testing.T) {
	got, err := parseAllowedOrigins(" HTTPS://App.Example.com:443 , *, null")
	if err != nil {
		t.Fatalf("parseAllowedOrigins: %v", err)
	}
	want := []string{"https://app.example.com", "*", "null"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestICEConfigErrorDoesNotFailLoad(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envTurnURLs: "turn:turn.example.com:3478",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ICEConfigError() == nil {
		t.Fatalf("expected ICE config error for TURN without credentials")
	}
	if len(cfg.ICEServers) != 0 {
		t.Fatalf("ICEServers=%#v, want none", cfg.ICEServers)
	}
}

func TestTURNRESTAllowsTURNWithoutStaticCredentials(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envTurnURLs:                "turn:turn.example.com:3478",
		envVarTURNRESTSharedSecret: "secret",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.ICEConfigError(); err != nil {
		t.Fatalf("ICEConfigError=%v", err)
	}
	if !cfg.TURNREST.Enabled() || cfg.TURNREST.TTLSeconds != DefaultTURNRESTTTLSeconds {
		t.Fatalf("TURNREST=%+v", cfg.TURNREST)
	}
}

func TestConfigPathFromArgs(t *testing.T) {
	cases := []struct {
		args []string
		want string
		ok   bool
	}{
		{nil, "", false},
		{[]string{"-config", "a.toml"}, "a.toml", true},
		{[]string{"--config=b.toml"}, "b.toml", true},
		{[]string{"--mode", "prod", "--config", "c.toml"}, "c.toml", true},
		{[]string{"--", "--config", "d.toml"}, "", false},
		{[]string{"--configure", "x"}, "", false},
	}
	for _, tc := range cases {
		got, ok := configPathFromArgs(tc.args)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("configPathFromArgs(%q)=(%q,%v), want (%q,%v)", tc.args, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []LogFormat{LogFormatText, LogFormatJSON} {
		if _, err := NewLogger(Config{LogFormat: format}); err != nil {
			t.Fatalf("NewLogger(%q): %v", format, err)
		}
	}
	if _, err := NewLogger(Config{LogFormat: "xml"}); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}
