// Package browse pages through one season's leaderboard and verifies a
// user's placement in it.
package browse

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Sternrassler/mindshare-rank/pkg/leaderboard"
	"github.com/Sternrassler/mindshare-rank/pkg/scan"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PageFetcher fetches a single leaderboard page.
type PageFetcher interface {
	FetchPage(ctx context.Context, tf leaderboard.Timeframe, page int) (leaderboard.Page, error)
}

// Scanner searches a page range of one timeframe.
type Scanner interface {
	ScanPages(ctx context.Context, query string, tf leaderboard.Timeframe, maxPages int, onProgress scan.ProgressFunc) (scan.Result, error)
}

// Config holds browser configuration.
type Config struct {
	// PageLimit is the number of pages LoadMore will load per season
	PageLimit int
	// VerifyPages is the page range Verify scans
	VerifyPages int
}

// DefaultConfig returns the default configuration: 10 pages of browsing,
// 30 pages of verification.
func DefaultConfig() Config {
	return Config{PageLimit: 10, VerifyPages: 30}
}

// VerifyResult is the outcome of Verify.
type VerifyResult struct {
	Found bool               `json:"found"`
	Entry *leaderboard.Entry `json:"entry,omitempty"`
	// Local is set when the match came from already loaded entries
	Local bool `json:"local"`
	// Inconclusive is set when every scanned page failed
	Inconclusive bool `json:"inconclusive,omitempty"`
}

// Browser holds the state of one season list. It is safe for concurrent use.
type Browser struct {
	fetcher PageFetcher
	scanner Scanner
	config  Config
	logger  zerolog.Logger

	mu         sync.Mutex
	generation uint64
	season     leaderboard.Timeframe
	entries    []leaderboard.Entry
	nextPage   int
	hasMore    bool
	loading    bool
}

// New creates a browser positioned on the active season with nothing loaded.
func New(fetcher PageFetcher, scanner Scanner, cfg Config) *Browser {
	defaults := DefaultConfig()
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = defaults.PageLimit
	}
	if cfg.VerifyPages <= 0 {
		cfg.VerifyPages = defaults.VerifyPages
	}

	return &Browser{
		fetcher:  fetcher,
		scanner:  scanner,
		config:   cfg,
		logger:   log.With().Str("component", "browser").Logger(),
		season:   leaderboard.ActiveSeason(),
		nextPage: 1,
		hasMore:  true,
	}
}

// Select switches to a season, discards the loaded list, and loads page 1.
// Loads still in flight for the previous season are discarded when they land.
func (b *Browser) Select(ctx context.Context, season leaderboard.Timeframe) (int, error) {
	if _, err := leaderboard.ParseTimeframe(string(season)); err != nil {
		return 0, err
	}

	b.mu.Lock()
	b.generation++
	b.season = season
	b.entries = nil
	b.nextPage = 1
	b.hasMore = true
	b.loading = false
	b.mu.Unlock()

	return b.LoadMore(ctx)
}

// LoadMore loads the next page and returns the number of entries added.
// It does nothing while another load is running, after the end of the list,
// or once the page limit is reached. A failed page leaves the state as it was.
func (b *Browser) LoadMore(ctx context.Context) (int, error) {
	b.mu.Lock()
	if b.loading || !b.hasMore || b.nextPage > b.config.PageLimit {
		b.mu.Unlock()
		return 0, nil
	}
	b.loading = true
	gen, season, pageNum := b.generation, b.season, b.nextPage
	b.mu.Unlock()

	page, err := b.fetcher.FetchPage(ctx, season, pageNum)

	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.generation {
		b.logger.Debug().
			Str("timeframe", string(season)).
			Int("page", pageNum).
			Msg("Discarding page for previous season")
		return 0, nil
	}
	b.loading = false

	if err != nil && !errors.Is(err, leaderboard.ErrNoData) {
		return 0, fmt.Errorf("load %s page %d: %w", season, pageNum, err)
	}
	if err != nil || page.Exhausted() {
		b.hasMore = false
		return 0, nil
	}

	b.entries = append(b.entries, page.Entries...)
	b.nextPage = pageNum + 1
	return len(page.Entries), nil
}

// Verify looks the user up in the loaded entries first and otherwise scans
// the selected season.
func (b *Browser) Verify(ctx context.Context, query string) (VerifyResult, error) {
	q := leaderboard.NormalizeQuery(query)
	if q == "" {
		return VerifyResult{}, scan.ErrEmptyQuery
	}

	b.mu.Lock()
	season := b.season
	for _, e := range b.entries {
		if leaderboard.Matches(e, q) {
			entry := e
			b.mu.Unlock()
			return VerifyResult{Found: true, Entry: &entry, Local: true}, nil
		}
	}
	b.mu.Unlock()

	res, err := b.scanner.ScanPages(ctx, q, season, b.config.VerifyPages, nil)
	if err != nil {
		return VerifyResult{}, err
	}
	if !res.Found {
		return VerifyResult{Inconclusive: res.Inconclusive()}, nil
	}
	entry := res.Entry
	return VerifyResult{Found: true, Entry: &entry}, nil
}

// Season returns the selected season.
func (b *Browser) Season() leaderboard.Timeframe {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.season
}

// Entries returns a copy of the loaded entries in rank order.
func (b *Browser) Entries() []leaderboard.Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]leaderboard.Entry(nil), b.entries...)
}

// HasMore reports whether LoadMore can add entries.
func (b *Browser) HasMore() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasMore && b.nextPage <= b.config.PageLimit
}

// Loading reports whether a load is in flight.
func (b *Browser) Loading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loading
}
