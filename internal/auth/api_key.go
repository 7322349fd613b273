package auth

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyVerifier guards operator endpoints with a single shared key.
type APIKeyVerifier struct {
	Expected string
}

func (v APIKeyVerifier) Verify(apiKey string) error {
	if apiKey == "" || v.Expected == "" {
		return ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(v.Expected)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// VerifyRequest checks the API key presented on r.
func (v APIKeyVerifier) VerifyRequest(r *http.Request) error {
	key, err := APIKeyFromRequest(r)
	if err != nil {
		return err
	}
	return v.Verify(key)
}
