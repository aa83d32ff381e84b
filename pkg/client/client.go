// Package client provides the paged leaderboard HTTP client with caching,
// rate limiting, retries, and normalization of failures into
// ErrPageUnavailable.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/mindshare-rank/pkg/cache"
	"github.com/Sternrassler/mindshare-rank/pkg/leaderboard"
	"github.com/Sternrassler/mindshare-rank/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for leaderboard client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindshare_requests_total",
		Help: "Total leaderboard page requests by timeframe and status",
	}, []string{"timeframe", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mindshare_request_duration_seconds",
		Help:    "Leaderboard page fetch duration in seconds by timeframe",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"timeframe"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindshare_errors_total",
		Help: "Total leaderboard page fetch errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the public mindshare leaderboard endpoint.
	DefaultBaseURL = "https://leaderboard-bice-mu.vercel.app/api/zama"

	// DefaultSortBy orders pages by mindshare score.
	DefaultSortBy = "mindshare"

	// DefaultRequestTimeout bounds a single HTTP attempt.
	DefaultRequestTimeout = 10 * time.Second

	// maxBodyBytes caps how much of a response is read.
	maxBodyBytes = 8 << 20
)

// Client fetches single leaderboard pages.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	rateLimiter *ratelimit.Tracker
	cache       cache.Store
	clock       cache.Clock
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the leaderboard API, without timeframe/page parameters
	BaseURL string

	// User-Agent header sent with every request
	UserAgent string

	// SortBy is passed through as the sortBy query parameter
	SortBy string

	// RequestTimeout bounds each HTTP attempt
	RequestTimeout time.Duration

	// Retry policy for server, rate limit and network failures
	Retry RetryConfig

	// Rate limiting (RateLimit <= 0 disables the token bucket)
	RateLimit float64
	RateBurst int

	// Caching
	Cache    cache.Store   // shared page cache; nil creates a private MemoryStore
	CacheTTL time.Duration // freshness of cached pages
	Clock    cache.Clock   // time source for cache entries; nil uses the wall clock

	// HTTPClient overrides the default HTTP client (for testing)
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		UserAgent:      "mindshare-rank/1.0",
		SortBy:         DefaultSortBy,
		RequestTimeout: DefaultRequestTimeout,
		Retry:          DefaultRetryConfig(),
		RateLimit:      10,
		RateBurst:      6,
		CacheTTL:       cache.DefaultTTL,
	}
}

// New creates a new leaderboard client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http(s) (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request_timeout must be > 0 (got %s)", cfg.RequestTimeout)
	}

	if cfg.SortBy == "" {
		cfg.SortBy = DefaultSortBy
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = cache.SystemClock
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemoryStore(cfg.Clock)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := log.With().Str("component", "leaderboard-client").Logger()

	return &Client{
		httpClient:  httpClient,
		baseURL:     baseURL,
		rateLimiter: ratelimit.NewTracker(cfg.RateLimit, cfg.RateBurst, logger),
		cache:       cfg.Cache,
		clock:       cfg.Clock,
		config:      cfg,
		logger:      logger,
	}, nil
}

// FetchPage returns one page of the leaderboard for a timeframe.
//
// A fresh cached page is returned without a network call. Every failure
// (network error, non-2xx status, unusable body) is returned as an error
// matching ErrPageUnavailable; callers scanning many pages should skip it.
// A 2xx answer without data additionally matches leaderboard.ErrNoData.
// A page with no entries is not an error: it marks the end of the leaderboard.
func (c *Client) FetchPage(ctx context.Context, tf leaderboard.Timeframe, page int) (leaderboard.Page, error) {
	if page < 1 {
		return leaderboard.Page{}, ErrInvalidPage
	}

	// Step 1: Check Cache
	key := cache.Key{Timeframe: tf, Page: page}
	entry, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		c.logger.Debug().
			Str("timeframe", string(tf)).
			Int("page", page).
			Dur("age", entry.Age(c.clock.Now())).
			Msg("Cache hit")
		return entry.Page, nil
	case !errors.Is(err, cache.ErrCacheMiss):
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
	}

	// Step 2: Fetch with retry
	startTime := time.Now()
	var result leaderboard.Page

	err = retryWithBackoff(ctx, c.config.Retry, c.logger, func(attempt int) (ErrorClass, error) {
		p, fetchErr := c.fetchOnce(ctx, tf, page)
		if fetchErr != nil {
			return fetchErr.ErrorClass, fetchErr
		}
		result = p
		return "", nil
	})

	requestDuration.WithLabelValues(string(tf)).Observe(time.Since(startTime).Seconds())

	if err != nil {
		if !errors.Is(err, ErrPageUnavailable) {
			err = &PageError{Timeframe: tf, Page: page, ErrorClass: ErrorClassNetwork, Err: err}
		}
		return leaderboard.Page{}, err
	}

	// Step 3: Update Cache on success (empty pages included)
	if err := c.cache.Set(ctx, key, cache.NewEntry(result, c.clock.Now(), c.config.CacheTTL)); err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache page")
	}

	c.logger.Debug().
		Str("timeframe", string(tf)).
		Int("page", page).
		Int("entries", len(result.Entries)).
		Dur("duration", time.Since(startTime)).
		Msg("Fetched leaderboard page")

	return result, nil
}

// fetchOnce performs a single HTTP attempt.
func (c *Client) fetchOnce(ctx context.Context, tf leaderboard.Timeframe, page int) (leaderboard.Page, *PageError) {
	fail := func(status int, class ErrorClass, err error) *PageError {
		errorsTotal.WithLabelValues(string(class)).Inc()
		return &PageError{Timeframe: tf, Page: page, StatusCode: status, ErrorClass: class, Err: err}
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		requestsTotal.WithLabelValues(string(tf), "rate_limited").Inc()
		return leaderboard.Page{}, fail(0, ErrorClassNetwork, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.PageURL(tf, page), nil)
	if err != nil {
		return leaderboard.Page{}, fail(0, ErrorClassClient, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(string(tf), "network_error").Inc()
		c.logger.Warn().Err(err).
			Str("timeframe", string(tf)).
			Int("page", page).
			Msg("HTTP request failed")
		return leaderboard.Page{}, fail(0, ErrorClassNetwork, err)
	}
	defer resp.Body.Close()

	c.rateLimiter.UpdateFromResponse(resp.StatusCode, resp.Header)
	requestsTotal.WithLabelValues(string(tf), strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return leaderboard.Page{}, fail(resp.StatusCode, ErrorClassNetwork, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		class := classifyStatus(resp.StatusCode)
		c.logger.Warn().
			Str("timeframe", string(tf)).
			Int("page", page).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Leaderboard API error")
		return leaderboard.Page{}, fail(resp.StatusCode, class, fmt.Errorf("unexpected status: %s", resp.Status))
	}

	decoded, err := leaderboard.DecodePage(tf, page, body)
	if err != nil {
		c.logger.Warn().Err(err).
			Str("timeframe", string(tf)).
			Int("page", page).
			Msg("Unusable leaderboard response")
		return leaderboard.Page{}, fail(resp.StatusCode, ErrorClassMalformed, err)
	}

	return decoded, nil
}

// PageURL builds the request URL for a timeframe and page.
func (c *Client) PageURL(tf leaderboard.Timeframe, page int) string {
	u := *c.baseURL
	q := u.Query()
	q.Set("timeframe", string(tf))
	q.Set("sortBy", c.config.SortBy)
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// Cache returns the page store the client reads through.
func (c *Client) Cache() cache.Store {
	return c.cache
}

// RateLimitState returns the current rate limit state.
func (c *Client) RateLimitState() ratelimit.RateLimitState {
	return c.rateLimiter.GetState()
}
