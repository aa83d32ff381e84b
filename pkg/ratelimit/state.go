// Package ratelimit gates outbound leaderboard requests. It combines a
// token bucket with a cooldown that is entered whenever the remote API
// answers 429 Too Many Requests, honoring Retry-After when present.
package ratelimit

import (
	"time"
)

// Cooldown bounds.
const (
	// DefaultCooldown is applied after a 429 without a usable Retry-After header.
	DefaultCooldown = 2 * time.Second

	// MaxCooldown caps both Retry-After values and the exponential cooldown.
	MaxCooldown = 30 * time.Second

	// ThrottledThreshold is the number of consecutive 429s after which the
	// state is reported as unhealthy.
	ThrottledThreshold = 3
)

// RateLimitState represents what the remote API has told us about our request rate.
type RateLimitState struct {
	// CooldownUntil is when requests may resume after a 429.
	// Zero when no cooldown is active.
	CooldownUntil time.Time `json:"cooldown_until"`

	// Consecutive429 counts 429 responses since the last successful response.
	Consecutive429 int `json:"consecutive_429"`

	// LastUpdate is when this state last changed.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is false once Consecutive429 reaches ThrottledThreshold.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state has not been updated within maxAge.
func (s *RateLimitState) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// InCooldown returns true if requests must wait before being sent.
func (s *RateLimitState) InCooldown(now time.Time) bool {
	return now.Before(s.CooldownUntil)
}

// TimeUntilResume returns the remaining cooldown.
// Returns 0 if no cooldown is active.
func (s *RateLimitState) TimeUntilResume(now time.Time) time.Duration {
	d := s.CooldownUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth updates the IsHealthy field based on Consecutive429.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.Consecutive429 < ThrottledThreshold
}

// backoffFor returns the cooldown for the n-th consecutive 429 (n >= 1)
// when the server gave no Retry-After.
func backoffFor(n int) time.Duration {
	d := DefaultCooldown
	for i := 1; i < n; i++ {
		d *= 2
		if d >= MaxCooldown {
			return MaxCooldown
		}
	}
	return d
}
