package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

func newTestGenerator(t *testing.T, now time.Time) *Generator {
	t.Helper()
	g, err := NewGenerator(GeneratorConfig{
		SharedSecret:   "shared-secret",
		TTLSeconds:     3600,
		UsernamePrefix: "swapy",
		Now:            func() time.Time { return now },
		NewID:          func() string { return "random-id" },
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g
}

func TestGenerate_DeterministicWithFixedTime(t *testing.T) {
	g := newTestGenerator(t, time.Unix(1_700_000_000, 0).UTC())

	creds, err := g.Generate("user123")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if creds.ExpiryUnix != 1_700_003_600 {
		t.Fatalf("ExpiryUnix: got %d, want %d", creds.ExpiryUnix, 1_700_003_600)
	}
	wantUsername := "1700003600:swapy:user123"
	if creds.Username != wantUsername {
		t.Fatalf("Username: got %q, want %q", creds.Username, wantUsername)
	}
	if want := expectedCredential([]byte("shared-secret"), wantUsername); creds.Credential != want {
		t.Fatalf("Credential: got %q, want %q", creds.Credential, want)
	}
}

func TestGenerate_CredentialIsBase64HMACSHA1(t *testing.T) {
	g := newTestGenerator(t, time.Unix(0, 0))

	creds, err := g.Generate("sid")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(creds.Credential)
	if err != nil {
		t.Fatalf("DecodeString: %v", err)
	}
	if len(decoded) != sha1.Size {
		t.Fatalf("decoded length: got %d, want %d", len(decoded), sha1.Size)
	}
}

func TestGenerateFor_FallsBackToRandomID(t *testing.T) {
	g := newTestGenerator(t, time.Unix(0, 0))

	for _, userID := range []string{"", "google:123"} {
		creds, err := g.GenerateFor(userID)
		if err != nil {
			t.Fatalf("GenerateFor(%q): %v", userID, err)
		}
		if !strings.HasSuffix(creds.Username, ":swapy:random-id") {
			t.Fatalf("GenerateFor(%q) username=%q, want random id", userID, creds.Username)
		}
	}

	creds, err := g.GenerateFor("u42")
	if err != nil {
		t.Fatalf("GenerateFor: %v", err)
	}
	if !strings.HasSuffix(creds.Username, ":swapy:u42") {
		t.Fatalf("username=%q, want user id", creds.Username)
	}
}

func TestNewGenerator_Validation(t *testing.T) {
	cases := []GeneratorConfig{
		{TTLSeconds: 1, UsernamePrefix: "p"},
		{SharedSecret: "s", UsernamePrefix: "p"},
		{SharedSecret: "s", TTLSeconds: 1},
		{SharedSecret: "s", TTLSeconds: 1, UsernamePrefix: "a:b"},
	}
	for i, cfg := range cases {
		if _, err := NewGenerator(cfg); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestInject(t *testing.T) {
	servers := []webrtc.ICEServer{
		{URLs: []string{"stun:stun.example.com:3478"}},
		{URLs: []string{"TURN:turn.example.com:3478"}},
	}
	out := Inject(servers, Credentials{Username: "u", Credential: "c"})

	if out[0].Username != "" || out[0].Credential != nil {
		t.Fatalf("stun server got creds: %#v", out[0])
	}
	if out[1].Username != "u" || out[1].Credential != "c" {
		t.Fatalf("turn server creds: %#v", out[1])
	}
	if servers[1].Username != "" {
		t.Fatalf("input mutated: %#v", servers[1])
	}
	if got := Inject([]webrtc.ICEServer{}, Credentials{}); got == nil {
		t.Fatalf("empty input should stay non-nil")
	}
}

func expectedCredential(secret []byte, username string) string {
	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
