package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the verified user behind a request. The zero value is an
// anonymous visitor.
type Identity struct {
	UserID string `json:"id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

func (i Identity) Anonymous() bool {
	return i.UserID == ""
}

// IdentityProvider resolves the identity of an HTTP request (including
// WebSocket upgrades). It returns ErrMissingCredentials for anonymous
// requests and ErrInvalidCredentials for credentials that fail verification.
type IdentityProvider interface {
	Identify(r *http.Request) (Identity, error)
}

// AnonymousProvider treats every request as anonymous. It is used when no
// token secret is configured.
type AnonymousProvider struct{}

func (AnonymousProvider) Identify(*http.Request) (Identity, error) {
	return Identity{}, ErrMissingCredentials
}

// Claims are the JWT claims issued by the login flow. `sub` carries the user id.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTIdentityProvider verifies HS256 tokens signed with a shared secret.
type JWTIdentityProvider struct {
	secret []byte
	now    func() time.Time
}

func NewJWTIdentityProvider(secret string) *JWTIdentityProvider {
	return &JWTIdentityProvider{secret: []byte(secret), now: time.Now}
}

func (p *JWTIdentityProvider) Identify(r *http.Request) (Identity, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return Identity{}, ErrMissingCredentials
	}
	return p.Verify(token)
}

// Verify parses and validates a signed token.
func (p *JWTIdentityProvider) Verify(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	if !token.Valid {
		return Identity{}, ErrInvalidCredentials
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing sub claim", ErrInvalidCredentials)
	}
	return Identity{UserID: claims.Subject, Name: claims.Name, Email: claims.Email}, nil
}

// Issue signs a token for id that expires after ttl.
func (p *JWTIdentityProvider) Issue(id Identity, ttl time.Duration) (string, error) {
	if id.UserID == "" {
		return "", errors.New("identity has no user id")
	}
	now := p.now()
	claims := Claims{
		Name:  id.Name,
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Resolve returns the request's identity, treating missing credentials as an
// anonymous visitor. Only invalid credentials are reported as an error.
func Resolve(p IdentityProvider, r *http.Request) (Identity, error) {
	id, err := p.Identify(r)
	if errors.Is(err, ErrMissingCredentials) {
		return Identity{}, nil
	}
	if err != nil {
		return Identity{}, err
	}
	return id, nil
}
