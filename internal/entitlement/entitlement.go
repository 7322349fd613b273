// Package entitlement stores premium status per user and answers whether a
// user is currently entitled to premium features.
package entitlement

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("entitlement record not found")

// Record is the premium status of one user. A nil PremiumUntil means the
// premium flag does not expire.
type Record struct {
	UserID       string     `json:"userId"`
	Email        string     `json:"email,omitempty"`
	IsPremium    bool       `json:"isPremium"`
	PremiumUntil *time.Time `json:"premiumUntil"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// EntitledAt reports whether the record grants premium access at now.
func (r Record) EntitledAt(now time.Time) bool {
	if !r.IsPremium {
		return false
	}
	return r.PremiumUntil == nil || r.PremiumUntil.After(now)
}

// Service answers entitlement checks.
type Service interface {
	IsEntitled(ctx context.Context, userID string) (bool, error)
}
