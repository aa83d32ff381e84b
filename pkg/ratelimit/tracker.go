package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitCooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mindshare_rate_limit_cooldowns_total",
		Help: "Total number of 429 responses that started a cooldown",
	})

	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mindshare_rate_limit_wait_seconds",
		Help:    "Time requests spent waiting on the rate limiter",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	rateLimitConsecutive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mindshare_rate_limit_consecutive_429",
		Help: "Consecutive 429 responses since the last success",
	})
)

// Tracker gates outbound requests with a token bucket and a 429 cooldown.
// It is safe for concurrent use.
type Tracker struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
	now     func() time.Time

	mu    sync.Mutex
	state RateLimitState
}

// NewTracker creates a tracker allowing rps requests per second with the given burst.
// rps <= 0 disables the token bucket; the 429 cooldown still applies.
func NewTracker(rps float64, burst int, logger zerolog.Logger) *Tracker {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}

	return &Tracker{
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
		now:     time.Now,
		state:   RateLimitState{IsHealthy: true},
	}
}

// GetState returns a copy of the current state.
func (t *Tracker) GetState() RateLimitState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Wait blocks until a request may be sent or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	start := t.now()
	defer func() {
		rateLimitWaitSeconds.Observe(t.now().Sub(start).Seconds())
	}()

	t.mu.Lock()
	wait := t.state.TimeUntilResume(t.now())
	t.mu.Unlock()

	if wait > 0 {
		t.logger.Debug().
			Dur("wait", wait).
			Msg("Rate limit cooldown active - delaying request")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit cooldown: %w", ctx.Err())
		case <-timer.C:
		}
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// UpdateFromResponse records the outcome of a request. A 429 starts a
// cooldown (Retry-After if given, exponential otherwise); any other
// non-5xx status clears the 429 streak.
func (t *Tracker) UpdateFromResponse(statusCode int, headers http.Header) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case statusCode == http.StatusTooManyRequests:
		t.state.Consecutive429++
		cooldown, ok := parseRetryAfter(headers.Get("Retry-After"), now)
		if !ok {
			cooldown = backoffFor(t.state.Consecutive429)
		}
		if cooldown > MaxCooldown {
			cooldown = MaxCooldown
		}
		if until := now.Add(cooldown); until.After(t.state.CooldownUntil) {
			t.state.CooldownUntil = until
		}
		rateLimitCooldownsTotal.Inc()

	case statusCode >= 500:
		// Server errors say nothing about our rate
		return

	default:
		if t.state.Consecutive429 == 0 {
			return
		}
		t.state.Consecutive429 = 0
	}

	t.state.LastUpdate = now
	t.state.UpdateHealth()
	rateLimitConsecutive.Set(float64(t.state.Consecutive429))

	logEvent := t.logger.Info()
	if !t.state.IsHealthy {
		logEvent = t.logger.Warn()
	}
	logEvent.
		Int("status_code", statusCode).
		Int("consecutive_429", t.state.Consecutive429).
		Time("cooldown_until", t.state.CooldownUntil).
		Bool("is_healthy", t.state.IsHealthy).
		Msg("Leaderboard rate limit state updated")
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}

	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	return 0, false
}
