package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/phlockapp/backend/internal/models"
)

// membershipTTL bounds staleness for the follower/following/phlock caches.
// The cache only collapses bursts of repeated reads; every mutating call
// invalidates explicitly, so staleness within the window only affects reads
// racing a write from elsewhere.
const membershipTTL = 60 * time.Second

type cacheEntry struct {
	users   []models.User
	expires time.Time
}

// membershipCache is a per-user TTL cache of user lists, keyed by
// "<kind>:<userID>".
type membershipCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

func newMembershipCache(ttl time.Duration) *membershipCache {
	return &membershipCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func cacheKey(kind string, userID uint) string {
	return fmt.Sprintf("%s:%d", kind, userID)
}

func (c *membershipCache) get(kind string, userID uint) ([]models.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[cacheKey(kind, userID)]
	if !ok || c.now().After(entry.expires) {
		return nil, false
	}
	return entry.users, true
}

func (c *membershipCache) set(kind string, userID uint, users []models.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(kind, userID)] = cacheEntry{users: users, expires: c.now().Add(c.ttl)}
}

// invalidate drops every cached list for a user. Called on each write that
// could change the user's memberships, so staleness is bounded tighter than
// the expiry window when the writer is local.
func (c *membershipCache) invalidate(userID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, kind := range []string{"phlock", "following", "followers"} {
		delete(c.entries, cacheKey(kind, userID))
	}
}
