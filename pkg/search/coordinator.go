// Package search runs a rank search across several leaderboard timeframes
// at once and keeps the per-timeframe results consistent while searches
// overlap.
//
// Every Search call starts a new generation. Work spawned for a generation
// is never cancelled when a newer search starts; instead every write it
// attempts is checked against the current generation under the coordinator
// lock and dropped if it is stale.
package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/mindshare-rank/pkg/achievements"
	"github.com/Sternrassler/mindshare-rank/pkg/leaderboard"
	"github.com/Sternrassler/mindshare-rank/pkg/scan"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyQuery is returned by Search for a blank username.
var ErrEmptyQuery = scan.ErrEmptyQuery

var (
	searchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mindshare_searches_total",
		Help: "Total searches started",
	})

	staleWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindshare_stale_writes_total",
		Help: "Writes dropped because their search was superseded, by update kind",
	}, []string{"kind"})

	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mindshare_search_outcomes_total",
		Help: "Committed timeframe outcomes by timeframe and status",
	}, []string{"timeframe", "status"})
)

// Scanner searches one timeframe.
type Scanner interface {
	Scan(ctx context.Context, query string, tf leaderboard.Timeframe, onProgress scan.ProgressFunc) (scan.Result, error)
}

// HistoricalMatcher looks a user up in past season awards.
type HistoricalMatcher interface {
	Match(username string) achievements.Result
}

// Config holds coordinator configuration.
type Config struct {
	// Timeframes scanned by each search
	Timeframes []leaderboard.Timeframe
	// Display lists timeframes reported in snapshots; those not scanned stay idle
	Display []leaderboard.Timeframe
}

// DefaultConfig scans the live timeframes and shows all-time as idle.
func DefaultConfig() Config {
	return Config{
		Timeframes: append([]leaderboard.Timeframe(nil), leaderboard.LiveTimeframes...),
		Display:    append(append([]leaderboard.Timeframe(nil), leaderboard.LiveTimeframes...), leaderboard.TimeframeAll),
	}
}

// Run identifies one started search.
type Run struct {
	Generation uint64
	Query      string
	done       chan struct{}
}

// Done is closed once every scan and the historical match have finished,
// whether or not their results were still current.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run is done or ctx ends.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type subscriber struct {
	ch   chan Update
	once sync.Once
}

// Coordinator runs multi-timeframe searches.
type Coordinator struct {
	scanner Scanner
	matcher HistoricalMatcher
	logger  zerolog.Logger

	mu          sync.Mutex
	generation  uint64
	active      []leaderboard.Timeframe
	display     []leaderboard.Timeframe
	state       Snapshot
	subscribers map[int]*subscriber
	nextSub     int
}

// New creates a coordinator. matcher may be nil.
func New(scanner Scanner, matcher HistoricalMatcher, cfg Config) (*Coordinator, error) {
	if scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}

	c := &Coordinator{
		scanner:     scanner,
		matcher:     matcher,
		logger:      log.With().Str("component", "coordinator").Logger(),
		subscribers: make(map[int]*subscriber),
	}

	if len(cfg.Timeframes) == 0 {
		cfg = DefaultConfig()
	}
	if err := c.configure(cfg.Timeframes, cfg.Display); err != nil {
		return nil, err
	}
	c.state = c.idleSnapshot()
	return c, nil
}

// SetTimeframes changes the timeframes scanned by subsequent searches.
// A search already running keeps its own set.
func (c *Coordinator) SetTimeframes(active []leaderboard.Timeframe) error {
	if len(active) == 0 {
		return fmt.Errorf("at least one timeframe is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configure(active, c.display)
}

// Timeframes returns the active timeframe set.
func (c *Coordinator) Timeframes() []leaderboard.Timeframe {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]leaderboard.Timeframe(nil), c.active...)
}

// configure validates and stores the timeframe sets. Active timeframes
// missing from display are appended to it.
func (c *Coordinator) configure(active, display []leaderboard.Timeframe) error {
	seen := make(map[leaderboard.Timeframe]bool, len(active))
	for _, tf := range active {
		if _, err := leaderboard.ParseTimeframe(string(tf)); err != nil {
			return err
		}
		if seen[tf] {
			return fmt.Errorf("duplicate timeframe %q", tf)
		}
		seen[tf] = true
	}

	merged := make([]leaderboard.Timeframe, 0, len(display)+len(active))
	shown := make(map[leaderboard.Timeframe]bool)
	for _, tf := range append(append([]leaderboard.Timeframe(nil), display...), active...) {
		if shown[tf] {
			continue
		}
		shown[tf] = true
		merged = append(merged, tf)
	}

	c.active = append([]leaderboard.Timeframe(nil), active...)
	c.display = merged
	return nil
}

func (c *Coordinator) idleSnapshot() Snapshot {
	s := Snapshot{
		Generation: c.generation,
		Outcomes:   make(map[leaderboard.Timeframe]Outcome, len(c.display)),
	}
	for _, tf := range c.display {
		s.Outcomes[tf] = Outcome{Status: StatusIdle}
	}
	return s
}

// Search supersedes any running search and starts scanning every active
// timeframe concurrently, together with the historical match. It returns
// as soon as the work is launched; progress is observable through
// Snapshot and Subscribe.
func (c *Coordinator) Search(ctx context.Context, username string) (*Run, error) {
	query := leaderboard.NormalizeQuery(username)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	c.mu.Lock()
	c.generation++
	gen := c.generation
	active := append([]leaderboard.Timeframe(nil), c.active...)

	state := c.idleSnapshot()
	state.Query = strings.TrimSpace(username)
	state.Searching = true
	for _, tf := range active {
		state.Outcomes[tf] = Outcome{Status: StatusLoading}
	}
	c.state = state
	c.publishLocked(UpdateReset, "")
	c.mu.Unlock()

	searchesTotal.Inc()
	c.logger.Info().
		Uint64("generation", gen).
		Str("query", query).
		Int("timeframes", len(active)).
		Msg("Search started")

	run := &Run{Generation: gen, Query: query, done: make(chan struct{})}
	go c.run(ctx, run, active)
	return run, nil
}

func (c *Coordinator) run(ctx context.Context, run *Run, active []leaderboard.Timeframe) {
	defer close(run.done)

	start := time.Now()
	gen, query := run.Generation, run.Query

	var historical achievements.Result
	var g errgroup.Group

	if c.matcher != nil {
		g.Go(func() error {
			historical = c.matcher.Match(query)
			return nil
		})
	}
	for _, tf := range active {
		g.Go(func() error {
			return c.runTimeframe(ctx, gen, query, tf)
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Debug().Err(err).Uint64("generation", gen).Msg("Search interrupted")
	}

	// Historical results are merged only after the live scans have finished.
	if len(historical.Achievements) > 0 {
		c.commit(gen, UpdateHistorical, "", func(s *Snapshot) {
			s.Achievements = historical.Achievements
			if s.User == nil && historical.User != nil {
				s.User = &UserMeta{
					Username:    historical.User.Username,
					DisplayName: historical.User.DisplayName,
					AvatarURL:   historical.User.AvatarURL,
				}
			}
		})
	}

	current := c.commit(gen, UpdateComplete, "", func(s *Snapshot) {
		s.Searching = false
	})

	c.logger.Info().
		Uint64("generation", gen).
		Str("query", query).
		Bool("current", current).
		Dur("duration", time.Since(start)).
		Msg("Search finished")
}

// runTimeframe scans one timeframe and commits its outcome. The scan error,
// if any, is committed as StatusError and returned.
func (c *Coordinator) runTimeframe(ctx context.Context, gen uint64, query string, tf leaderboard.Timeframe) error {
	result, err := c.scanner.Scan(ctx, query, tf, func(pct int) {
		c.commit(gen, UpdateProgress, tf, func(s *Snapshot) {
			o := s.Outcomes[tf]
			if pct > o.Progress {
				o.Progress = pct
			}
			s.Outcomes[tf] = o
		})
	})

	c.commit(gen, UpdateOutcome, tf, func(s *Snapshot) {
		o := s.Outcomes[tf]
		switch {
		case err != nil:
			o.Status = StatusError
			o.Error = err.Error()
		case result.Found:
			entry := result.Entry
			o.Status = StatusFound
			o.Entry = &entry
			if s.User == nil {
				s.User = userFromEntry(entry)
			}
		case result.Inconclusive():
			o.Status = StatusError
			o.Error = fmt.Sprintf("all %d pages unavailable", result.PagesFailed)
		default:
			o.Status = StatusNotFound
		}
		s.Outcomes[tf] = o
		outcomesTotal.WithLabelValues(string(tf), string(o.Status)).Inc()
	})
	return err
}

// commit applies fn to the state if gen is still the current generation,
// then publishes the result. The check and the write happen under one lock.
func (c *Coordinator) commit(gen uint64, kind UpdateKind, tf leaderboard.Timeframe, fn func(*Snapshot)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		staleWritesTotal.WithLabelValues(string(kind)).Inc()
		c.logger.Debug().
			Uint64("generation", gen).
			Uint64("current", c.generation).
			Str("kind", string(kind)).
			Str("timeframe", string(tf)).
			Msg("Dropping stale write")
		return false
	}

	fn(&c.state)
	c.publishLocked(kind, tf)
	return true
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Current returns the current generation.
func (c *Coordinator) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Subscribe returns a channel receiving every committed update and a
// function that unsubscribes and closes the channel. When the buffer is
// full the oldest pending update is dropped.
func (c *Coordinator) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer < 1 {
		buffer = 1
	}

	sub := &subscriber{ch: make(chan Update, buffer)}

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = sub
	c.mu.Unlock()

	return sub.ch, func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
		sub.once.Do(func() { close(sub.ch) })
	}
}

// publishLocked sends an update to every subscriber. c.mu must be held.
func (c *Coordinator) publishLocked(kind UpdateKind, tf leaderboard.Timeframe) {
	if len(c.subscribers) == 0 {
		return
	}

	u := Update{Kind: kind, Timeframe: tf, Snapshot: c.state.clone()}
	for _, sub := range c.subscribers {
		select {
		case sub.ch <- u:
			continue
		default:
		}
		// full: drop the oldest and retry once
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- u:
		default:
		}
	}
}
