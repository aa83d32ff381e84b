package cache

import (
	"time"

	"github.com/Sternrassler/mindshare-rank/pkg/leaderboard"
)

const (
	// DefaultTTL is how long a fetched page stays fresh.
	DefaultTTL = 60 * time.Second
)

// Entry represents a cached leaderboard page.
type Entry struct {
	// Page is the decoded leaderboard page
	Page leaderboard.Page `json:"page"`

	// CachedAt is when we cached this page
	CachedAt time.Time `json:"cached_at"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`
}

// NewEntry creates an entry cached at now that expires after ttl.
func NewEntry(page leaderboard.Page, now time.Time, ttl time.Duration) *Entry {
	return &Entry{
		Page:     page,
		CachedAt: now,
		Expires:  now.Add(ttl),
	}
}

// IsExpired returns true if the entry's age exceeds its TTL at the given time.
func (e *Entry) IsExpired(now time.Time) bool {
	return now.After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL(now time.Time) time.Duration {
	ttl := e.Expires.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Age returns how long ago the entry was cached.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CachedAt)
}
