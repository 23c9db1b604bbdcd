package service

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MessageState is the per-message lifecycle position.
type MessageState string

const (
	StateUntouched  MessageState = "untouched"
	StateNoMedia    MessageState = "has-directive-no-media"
	StateGenerating MessageState = "generating"
	StateHasMedia   MessageState = "has-media"
)

// stateTracker keeps lifecycle states in an expiring cache; a missing entry reads as
// untouched.
type stateTracker struct {
	c *cache.Cache
}

func newStateTracker(ttl time.Duration) *stateTracker {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &stateTracker{c: cache.New(ttl, 10*time.Minute)}
}

func stateKey(sessionID, messageID string) string {
	return sessionID + "/" + messageID
}

func (t *stateTracker) set(sessionID, messageID string, st MessageState) {
	t.c.SetDefault(stateKey(sessionID, messageID), st)
}

func (t *stateTracker) get(sessionID, messageID string) MessageState {
	if v, ok := t.c.Get(stateKey(sessionID, messageID)); ok {
		return v.(MessageState)
	}
	return StateUntouched
}

// busySet holds the ids of records with a regeneration in flight.
type busySet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newBusySet() *busySet {
	return &busySet{ids: make(map[string]struct{})}
}

// acquire marks id busy and reports whether it was free.
func (b *busySet) acquire(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.ids[id]; ok {
		return false
	}
	b.ids[id] = struct{}{}
	return true
}

func (b *busySet) release(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.ids, id)
}

func (b *busySet) has(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.ids[id]
	return ok
}
