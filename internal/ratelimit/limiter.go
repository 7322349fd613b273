package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// Clock abstracts time so limiters can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// MessageLimiter enforces an inbound message budget for one connection.
//
// It refills at perSecond messages/sec and allows bursts of up to burst
// messages. It is not safe for concurrent use without external locking; each
// connection's read loop owns its limiter.
type MessageLimiter struct {
	clock Clock
	lim   *rate.Limiter
}

func NewMessageLimiter(clock Clock, perSecond, burst int) *MessageLimiter {
	if clock == nil {
		clock = RealClock{}
	}
	if perSecond < 0 {
		perSecond = 0
	}
	if burst <= 0 {
		burst = perSecond
	}
	return &MessageLimiter{
		clock: clock,
		lim:   rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Allow consumes one message from the budget if available.
func (l *MessageLimiter) Allow() bool {
	return l.AllowN(1)
}

// AllowN consumes n messages. n <= 0 always succeeds.
func (l *MessageLimiter) AllowN(n int) bool {
	if n <= 0 {
		return true
	}
	return l.lim.AllowN(l.clock.Now(), n)
}
