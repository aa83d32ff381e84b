package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/mindshare-rank/pkg/cache"
	"github.com/Sternrassler/mindshare-rank/pkg/leaderboard"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

const pageBody = `{"success":true,"data":[
	{"_id":"a1","username":"alice","displayName":"Alice","profilePicture":"https://img/alice","mindshare":"12.5","rank":1},
	{"_id":"b2","username":"bob","displayName":"Bob Builder","mindshare":3.25,"rank":2}
],"total":2,"page":1,"pages":1}`

func newTestClient(t *testing.T, serverURL string, clock cache.Clock) *Client {
	t.Helper()

	cfg := DefaultConfig()
	cfg.BaseURL = serverURL
	cfg.RateLimit = 0
	cfg.Retry = fastRetry(2)
	cfg.Clock = clock

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			mutate:      func(*Config) {},
			expectError: false,
		},
		{
			name:        "empty base url",
			mutate:      func(c *Config) { c.BaseURL = "" },
			expectError: true,
			errorMsg:    "base url is required",
		},
		{
			name:        "non-http base url",
			mutate:      func(c *Config) { c.BaseURL = "ftp://example.com" },
			expectError: true,
			errorMsg:    "must be http(s)",
		},
		{
			name:        "empty user agent",
			mutate:      func(c *Config) { c.UserAgent = "" },
			expectError: true,
			errorMsg:    "user-agent is required",
		},
		{
			name:        "zero request timeout",
			mutate:      func(c *Config) { c.RequestTimeout = 0 },
			expectError: true,
			errorMsg:    "request_timeout must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			c, err := New(cfg)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("error = %q, want it to contain %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.Cache() == nil {
				t.Error("client should create a default cache")
			}
		})
	}
}

func TestFetchPage_Success(t *testing.T) {
	var gotQuery, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, pageBody)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)

	page, err := c.FetchPage(context.Background(), leaderboard.Timeframe7d, 1)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	if gotQuery != "page=1&sortBy=mindshare&timeframe=7d" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotUA != "mindshare-rank/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if len(page.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(page.Entries))
	}
	if page.Entries[0].ID != "a1" || page.Entries[0].AvatarURL != "https://img/alice" || page.Entries[0].Mindshare != 12.5 {
		t.Errorf("first entry = %+v", page.Entries[0])
	}
	if page.Timeframe != leaderboard.Timeframe7d || page.Number != 1 {
		t.Errorf("page identity = %s/%d", page.Timeframe, page.Number)
	}
}

func TestFetchPage_CacheHitAndExpiry(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, pageBody)
	}))
	defer server.Close()

	clock := &testClock{now: time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestClient(t, server.URL, clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.FetchPage(ctx, leaderboard.Timeframe24h, 1); err != nil {
			t.Fatalf("FetchPage #%d failed: %v", i, err)
		}
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("requests within TTL = %d, want 1", got)
	}

	// another timeframe is a separate cache key
	if _, err := c.FetchPage(ctx, leaderboard.Timeframe30d, 1); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("requests after new key = %d, want 2", got)
	}

	clock.Advance(cache.DefaultTTL + time.Second)
	if _, err := c.FetchPage(ctx, leaderboard.Timeframe24h, 1); err != nil {
		t.Fatalf("FetchPage after expiry failed: %v", err)
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("requests after expiry = %d, want 3", got)
	}
}

func TestFetchPage_EmptyPageIsCached(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, `{"success":true,"data":[]}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)

	for i := 0; i < 2; i++ {
		page, err := c.FetchPage(context.Background(), leaderboard.Timeframe24h, 9)
		if err != nil {
			t.Fatalf("FetchPage failed: %v", err)
		}
		if !page.Exhausted() {
			t.Errorf("page should be exhausted, got %d entries", len(page.Entries))
		}
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestFetchPage_Failures(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantClass    ErrorClass
		wantRequests int32
		wantNoData   bool
	}{
		{
			name:         "server error is retried",
			status:       http.StatusInternalServerError,
			body:         `oops`,
			wantClass:    ErrorClassServer,
			wantRequests: 2,
		},
		{
			name:         "not found is not retried",
			status:       http.StatusNotFound,
			body:         `{}`,
			wantClass:    ErrorClassClient,
			wantRequests: 1,
		},
		{
			name:         "non-json body",
			status:       http.StatusOK,
			body:         `<html>maintenance</html>`,
			wantClass:    ErrorClassMalformed,
			wantRequests: 1,
		},
		{
			name:         "success false",
			status:       http.StatusOK,
			body:         `{"success":false,"data":[]}`,
			wantClass:    ErrorClassMalformed,
			wantRequests: 1,
			wantNoData:   true,
		},
		{
			name:         "data not an array",
			status:       http.StatusOK,
			body:         `{"success":true,"data":{"users":[]}}`,
			wantClass:    ErrorClassMalformed,
			wantRequests: 1,
			wantNoData:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requests atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests.Add(1)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, nil)

			_, err := c.FetchPage(context.Background(), leaderboard.Timeframe24h, 2)
			if !errors.Is(err, ErrPageUnavailable) {
				t.Fatalf("error = %v, want ErrPageUnavailable", err)
			}

			var pe *PageError
			if !errors.As(err, &pe) {
				t.Fatalf("error %v is not a PageError", err)
			}
			if pe.ErrorClass != tt.wantClass {
				t.Errorf("ErrorClass = %v, want %v", pe.ErrorClass, tt.wantClass)
			}
			if got := errors.Is(err, leaderboard.ErrNoData); got != tt.wantNoData {
				t.Errorf("errors.Is(err, ErrNoData) = %v, want %v", got, tt.wantNoData)
			}
			if got := requests.Load(); got != tt.wantRequests {
				t.Errorf("requests = %d, want %d", got, tt.wantRequests)
			}

			// failures are never cached
			if _, err := c.Cache().Get(context.Background(), cache.Key{Timeframe: leaderboard.Timeframe24h, Page: 2}); !errors.Is(err, cache.ErrCacheMiss) {
				t.Errorf("failed page should not be cached, got err=%v", err)
			}
		})
	}
}

func TestFetchPage_RecoversAfterServerError(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, pageBody)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)

	page, err := c.FetchPage(context.Background(), leaderboard.Timeframe24h, 1)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if len(page.Entries) != 2 {
		t.Errorf("entries = %d, want 2", len(page.Entries))
	}
}

func TestFetchPage_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := newTestClient(t, url, nil)

	_, err := c.FetchPage(context.Background(), leaderboard.Timeframe24h, 1)
	if !errors.Is(err, ErrPageUnavailable) {
		t.Fatalf("error = %v, want ErrPageUnavailable", err)
	}
	var pe *PageError
	if !errors.As(err, &pe) || pe.ErrorClass != ErrorClassNetwork {
		t.Errorf("error = %v, want network PageError", err)
	}
}

func TestFetchPage_RequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.RateLimit = 0
	cfg.Retry = fastRetry(1)
	cfg.RequestTimeout = 50 * time.Millisecond
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	start := time.Now()
	_, err = c.FetchPage(context.Background(), leaderboard.Timeframe24h, 1)
	if !errors.Is(err, ErrPageUnavailable) {
		t.Fatalf("error = %v, want ErrPageUnavailable", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout not enforced, took %v", elapsed)
	}
}

func TestFetchPage_InvalidPage(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", nil)

	_, err := c.FetchPage(context.Background(), leaderboard.Timeframe24h, 0)
	if !errors.Is(err, ErrInvalidPage) {
		t.Errorf("error = %v, want ErrInvalidPage", err)
	}
}

func TestPageURL_PreservesBaseQuery(t *testing.T) {
	c := newTestClient(t, "https://example.com/api/zama?project=zama", nil)

	got := c.PageURL(leaderboard.Season5, 3)
	want := "https://example.com/api/zama?page=3&project=zama&sortBy=mindshare&timeframe=season5"
	if got != want {
		t.Errorf("PageURL = %q, want %q", got, want)
	}
}
