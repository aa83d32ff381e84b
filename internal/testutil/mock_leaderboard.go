// Package testutil provides a mock mindshare leaderboard API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/mindshare-rank/pkg/leaderboard"
)

// MockResponse overrides the response for one page.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

type pageKey struct {
	timeframe leaderboard.Timeframe
	page      int
}

// MockLeaderboard is a configurable mock leaderboard server. Pages not set
// for a timeframe are served as empty (end of leaderboard).
type MockLeaderboard struct {
	server *httptest.Server

	mu        sync.RWMutex
	pages     map[leaderboard.Timeframe][][]leaderboard.Entry
	overrides map[pageKey]MockResponse
	delays    map[pageKey]time.Duration
	requests  map[pageKey]int

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
}

// NewMockLeaderboard starts a new mock leaderboard server.
func NewMockLeaderboard() *MockLeaderboard {
	mock := &MockLeaderboard{
		pages:     make(map[leaderboard.Timeframe][][]leaderboard.Entry),
		overrides: make(map[pageKey]MockResponse),
		delays:    make(map[pageKey]time.Duration),
		requests:  make(map[pageKey]int),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockLeaderboard) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockLeaderboard) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockLeaderboard) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.requests = make(map[pageKey]int)
}

// SetPages sets the pages served for a timeframe, page 1 first.
func (m *MockLeaderboard) SetPages(tf leaderboard.Timeframe, pages [][]leaderboard.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[tf] = pages
}

// SetResponse configures a fixed response for one page.
func (m *MockLeaderboard) SetResponse(tf leaderboard.Timeframe, page int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[pageKey{tf, page}] = resp
}

// ClearResponse removes a page override.
func (m *MockLeaderboard) ClearResponse(tf leaderboard.Timeframe, page int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, pageKey{tf, page})
}

// SetDelay delays the normal response of one page.
func (m *MockLeaderboard) SetDelay(tf leaderboard.Timeframe, page int, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[pageKey{tf, page}] = d
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockLeaderboard) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// PageRequests returns how often one page was requested.
func (m *MockLeaderboard) PageRequests(tf leaderboard.Timeframe, page int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[pageKey{tf, page}]
}

// RequestedPages returns the distinct pages requested for a timeframe, ascending.
func (m *MockLeaderboard) RequestedPages(tf leaderboard.Timeframe) []int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pages []int
	for key := range m.requests {
		if key.timeframe == tf {
			pages = append(pages, key.page)
		}
	}
	sort.Ints(pages)
	return pages
}

func (m *MockLeaderboard) handle(w http.ResponseWriter, r *http.Request) {
	tf := leaderboard.Timeframe(r.URL.Query().Get("timeframe"))
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	key := pageKey{tf, page}

	m.mu.Lock()
	m.RequestCount++
	m.LastRequestHeader = r.Header.Clone()
	m.requests[key]++
	override, hasOverride := m.overrides[key]
	delay := m.delays[key]
	pages := m.pages[tf]
	m.mu.Unlock()

	if hasOverride {
		writeOverride(w, r, override)
		return
	}

	if err != nil || page < 1 || tf == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"success":false,"error":"invalid parameters"}`)
		return
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	var entries []leaderboard.Entry
	if page <= len(pages) {
		entries = pages[page-1]
	}

	total := 0
	for _, p := range pages {
		total += len(p)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    upstreamEntries(entries),
		"total":   total,
		"page":    page,
		"pages":   len(pages),
	})
}

func writeOverride(w http.ResponseWriter, r *http.Request, resp MockResponse) {
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// upstreamEntries renders entries with the field names the real API uses.
func upstreamEntries(entries []leaderboard.Entry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"_id":            e.ID,
			"username":       e.Username,
			"displayName":    e.DisplayName,
			"profilePicture": e.AvatarURL,
			"mindshare":      e.Mindshare,
			"rank":           e.Rank,
		})
	}
	return out
}

// NewEntries builds n entries ranked from startRank, named prefix+rank.
func NewEntries(prefix string, startRank, n int) []leaderboard.Entry {
	entries := make([]leaderboard.Entry, 0, n)
	for i := 0; i < n; i++ {
		rank := startRank + i
		entries = append(entries, leaderboard.Entry{
			ID:          fmt.Sprintf("%s-%d", prefix, rank),
			Username:    fmt.Sprintf("%s%d", prefix, rank),
			DisplayName: fmt.Sprintf("%s #%d", prefix, rank),
			Mindshare:   float64(10000-rank) / 100,
			Rank:        rank,
		})
	}
	return entries
}

// NewRankedPages builds count pages of perPage entries with continuous ranks.
func NewRankedPages(prefix string, count, perPage int) [][]leaderboard.Entry {
	pages := make([][]leaderboard.Entry, 0, count)
	for p := 0; p < count; p++ {
		pages = append(pages, NewEntries(prefix, p*perPage+1, perPage))
	}
	return pages
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter time.Duration) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Too many requests"}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
			"Retry-After":  strconv.Itoa(int(retryAfter.Seconds())),
		},
	}
}

// NewMalformedResponse creates a 200 response whose body is not JSON.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `<html>An error occurred</html>`,
		Headers:    map[string]string{"Content-Type": "text/html"},
	}
}
