package scan

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/Sternrassler/mindshare-rank/pkg/leaderboard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyQuery is returned when the query normalizes to an empty string.
var ErrEmptyQuery = errors.New("empty search query")

var (
	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindshare_scans_total",
		Help: "Total rank scans by timeframe and outcome",
	}, []string{"timeframe", "outcome"})

	scanPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindshare_scan_pages_total",
		Help: "Pages examined by rank scans by timeframe and result",
	}, []string{"timeframe", "result"})

	scanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mindshare_scan_duration_seconds",
		Help:    "Rank scan duration in seconds by timeframe",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"timeframe"})
)

// Config holds scanner configuration
type Config struct {
	// BatchSize is the number of pages fetched concurrently.
	// 3 keeps several parallel timeframe scans under the API's rate limit.
	BatchSize int
	// MaxPages is the last page a scan will request
	MaxPages int
	// BatchDelay is the pause between batches (never within one)
	BatchDelay time.Duration
	// PageTimeout bounds each page fetch
	PageTimeout time.Duration
}

// DefaultConfig returns the default scan configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:   3,
		MaxPages:    30,
		BatchDelay:  150 * time.Millisecond,
		PageTimeout: 10 * time.Second,
	}
}

// PageFetcher fetches a single leaderboard page. An error wrapping
// leaderboard.ErrNoData ends the scan; any other error means the page is
// unavailable and will be skipped.
type PageFetcher interface {
	FetchPage(ctx context.Context, tf leaderboard.Timeframe, page int) (leaderboard.Page, error)
}

// ProgressFunc receives scan progress as a percentage (0-100).
type ProgressFunc func(percent int)

// Result is the outcome of one scan.
type Result struct {
	Timeframe leaderboard.Timeframe
	Query     string

	Found bool
	Entry leaderboard.Entry
	// Page the match was found on
	Page int

	PagesScanned int
	PagesFailed  int
	// Exhausted is set when an empty or no-data page marked the end of the leaderboard
	Exhausted bool
}

// Inconclusive reports whether the scan found nothing only because every
// page it attempted failed.
func (r Result) Inconclusive() bool {
	return !r.Found && r.PagesScanned > 0 && r.PagesFailed == r.PagesScanned
}

// Scanner runs batched page scans.
type Scanner struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// New creates a new scanner
func New(fetcher PageFetcher, config Config) *Scanner {
	defaults := DefaultConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}
	if config.BatchDelay < 0 {
		config.BatchDelay = 0
	}
	if config.PageTimeout <= 0 {
		config.PageTimeout = defaults.PageTimeout
	}

	return &Scanner{
		fetcher: fetcher,
		config:  config,
		logger:  log.With().Str("component", "scanner").Logger(),
	}
}

// Config returns the effective configuration.
func (s *Scanner) Config() Config {
	return s.config
}

// Scan searches timeframe tf for query over the configured page range.
func (s *Scanner) Scan(ctx context.Context, query string, tf leaderboard.Timeframe, onProgress ProgressFunc) (Result, error) {
	return s.ScanPages(ctx, query, tf, s.config.MaxPages, onProgress)
}

// ScanPages searches pages 1..maxPages of timeframe tf for query.
//
// Page failures are never fatal. A match, an empty page, a page answered
// without data (leaderboard.ErrNoData) or reaching maxPages ends the scan.
// The returned error is non-nil only for an empty query or a cancelled
// context.
func (s *Scanner) ScanPages(ctx context.Context, query string, tf leaderboard.Timeframe, maxPages int, onProgress ProgressFunc) (Result, error) {
	q := leaderboard.NormalizeQuery(query)
	result := Result{Timeframe: tf, Query: q}
	if q == "" {
		return result, ErrEmptyQuery
	}
	if maxPages <= 0 {
		maxPages = s.config.MaxPages
	}

	start := time.Now()
	defer func() {
		scanDuration.WithLabelValues(string(tf)).Observe(time.Since(start).Seconds())
	}()

	logger := s.logger.With().Str("timeframe", string(tf)).Str("query", q).Logger()
	logger.Debug().Int("max_pages", maxPages).Msg("Starting scan")

	for first := 1; first <= maxPages; first += s.config.BatchSize {
		if first > 1 {
			if err := sleep(ctx, s.config.BatchDelay); err != nil {
				scansTotal.WithLabelValues(string(tf), "cancelled").Inc()
				return result, err
			}
		}

		last := min(first+s.config.BatchSize-1, maxPages)
		batch, err := s.fetchBatch(ctx, tf, first, last)
		if err != nil {
			scansTotal.WithLabelValues(string(tf), "cancelled").Inc()
			return result, err
		}

		// Results are inspected in page order regardless of completion order.
		for _, pr := range batch {
			result.PagesScanned++

			if errors.Is(pr.err, leaderboard.ErrNoData) {
				scanPagesTotal.WithLabelValues(string(tf), "no_data").Inc()
				logger.Debug().Err(pr.err).Int("page", pr.number).Msg("Page has no data, treating as end of list")
				result.Exhausted = true
				continue
			}
			if pr.err != nil {
				result.PagesFailed++
				scanPagesTotal.WithLabelValues(string(tf), "failed").Inc()
				logger.Warn().Err(pr.err).Int("page", pr.number).Msg("Page unavailable, skipping")
				continue
			}

			scanPagesTotal.WithLabelValues(string(tf), "ok").Inc()
			if pr.page.Exhausted() {
				result.Exhausted = true
				continue
			}

			if !result.Found {
				if entry, ok := pr.page.Find(q); ok {
					result.Found = true
					result.Entry = entry
					result.Page = pr.number
					if entry.Rank == 0 {
						logger.Debug().Int("page", pr.number).Str("username", entry.Username).Msg("Matched entry has no rank")
					}
				}
			}
		}

		if onProgress != nil {
			onProgress(progress(last, maxPages))
		}

		if result.Found {
			scansTotal.WithLabelValues(string(tf), "found").Inc()
			logger.Info().
				Int("page", result.Page).
				Int("rank", result.Entry.Rank).
				Int("pages_scanned", result.PagesScanned).
				Dur("duration", time.Since(start)).
				Msg("Scan found user")
			return result, nil
		}

		if result.Exhausted {
			logger.Debug().Int("last_page", last).Msg("Reached end of leaderboard")
			break
		}
	}

	outcome := "not_found"
	if result.Inconclusive() {
		outcome = "inconclusive"
	}
	scansTotal.WithLabelValues(string(tf), outcome).Inc()

	logger.Info().
		Str("outcome", outcome).
		Int("pages_scanned", result.PagesScanned).
		Int("pages_failed", result.PagesFailed).
		Bool("exhausted", result.Exhausted).
		Dur("duration", time.Since(start)).
		Msg("Scan complete")

	return result, nil
}

// pageResult represents the result of fetching a single page
type pageResult struct {
	number int
	page   leaderboard.Page
	err    error
}

// fetchBatch fetches pages first..last concurrently and returns the results
// indexed by page order once every fetch has returned. Page failures are
// kept in the results; the error is non-nil only when ctx was cancelled.
func (s *Scanner) fetchBatch(ctx context.Context, tf leaderboard.Timeframe, first, last int) ([]pageResult, error) {
	results := make([]pageResult, last-first+1)

	var g errgroup.Group
	for i := range results {
		pageNum := first + i
		g.Go(func() error {
			pageCtx, cancel := context.WithTimeout(ctx, s.config.PageTimeout)
			defer cancel()

			page, err := s.fetcher.FetchPage(pageCtx, tf, pageNum)
			results[i] = pageResult{number: pageNum, page: page, err: err}
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// progress returns round(min(page, maxPages) / maxPages * 100).
func progress(page, maxPages int) int {
	if maxPages <= 0 {
		return 100
	}
	page = min(page, maxPages)
	return int(math.Round(float64(page) / float64(maxPages) * 100))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
