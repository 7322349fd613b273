package pairing

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultTrackerCapacity = 100_000

// Tracker remembers each identified user's most recent partner. Only the
// latest edge is kept per user, and the least recently paired users are
// evicted once capacity is reached.
type Tracker struct {
	last *lru.Cache[string, string]
}

func NewTracker(capacity int) (*Tracker, error) {
	if capacity <= 0 {
		capacity = DefaultTrackerCapacity
	}
	cache, err := lru.New[string, string](capacity)
	if err != nil {
		return nil, err
	}
	return &Tracker{last: cache}, nil
}

// RecordPairing overwrites the last partner of both users. Anonymous sides and
// a user paired with their own second session are ignored.
func (t *Tracker) RecordPairing(userA, userB string) {
	if t == nil || userA == "" || userB == "" || userA == userB {
		return
	}
	t.last.Add(userA, userB)
	t.last.Add(userB, userA)
}

func (t *Tracker) LastPartner(userID string) (string, bool) {
	if t == nil || userID == "" {
		return "", false
	}
	return t.last.Get(userID)
}
