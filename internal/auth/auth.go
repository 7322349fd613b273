package auth

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// SessionCookieName is the cookie carrying the signed identity token.
const SessionCookieName = "swapy_session"

// TokenFromRequest extracts an identity token from, in order, the
// Authorization bearer header, the session cookie and the `token` query
// parameter. Browsers cannot set headers on WebSocket upgrades, so the cookie
// and query forms are the ones used by the signaling endpoint.
func TokenFromRequest(r *http.Request) string {
	if token, ok := authorizationValue(r, "bearer"); ok {
		return token
	}
	if c, err := r.Cookie(SessionCookieName); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value)
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// APIKeyFromRequest extracts an operator API key from the X-API-Key header or
// an `Authorization: ApiKey <key>` header.
func APIKeyFromRequest(r *http.Request) (string, error) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, nil
	}
	if key, ok := authorizationValue(r, "apikey"); ok {
		return key, nil
	}
	return "", ErrMissingCredentials
}

func authorizationValue(r *http.Request, scheme string) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return "", false
	}
	gotScheme, value, ok := strings.Cut(raw, " ")
	if !ok || !strings.EqualFold(gotScheme, scheme) {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
