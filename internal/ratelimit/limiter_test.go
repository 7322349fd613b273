package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMessageLimiter_AllowAndRefill(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := NewMessageLimiter(clk, 5, 5)

	assert.True(t, l.AllowN(5), "initial burst")
	assert.False(t, l.Allow(), "bucket should be empty")

	clk.Advance(200 * time.Millisecond) // one message at 5/sec
	assert.True(t, l.Allow(), "refill after advance")
	assert.False(t, l.Allow())
}

func TestMessageLimiter_DoesNotExceedBurst(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := NewMessageLimiter(clk, 1, 1)

	assert.True(t, l.Allow())
	clk.Advance(10 * time.Second)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "capacity clamp")
}

func TestMessageLimiter_ZeroCost(t *testing.T) {
	l := NewMessageLimiter(nil, 0, 0)
	assert.True(t, l.AllowN(0))
	assert.False(t, l.Allow())
}

func TestMessageLimiter_ClockGoingBackwards(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := NewMessageLimiter(clk, 2, 2)

	assert.True(t, l.AllowN(2))
	clk.Advance(-time.Hour)
	assert.False(t, l.Allow(), "going back in time must not refill")
}
