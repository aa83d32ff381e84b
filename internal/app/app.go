// Package app wires the configured components together: page store,
// leaderboard client, scanner, award matcher and hackathon catalog.
package app

import (
	"context"
	"fmt"

	"github.com/Sternrassler/mindshare-rank/internal/config"
	"github.com/Sternrassler/mindshare-rank/pkg/achievements"
	"github.com/Sternrassler/mindshare-rank/pkg/browse"
	"github.com/Sternrassler/mindshare-rank/pkg/cache"
	"github.com/Sternrassler/mindshare-rank/pkg/client"
	"github.com/Sternrassler/mindshare-rank/pkg/hackathon"
	"github.com/Sternrassler/mindshare-rank/pkg/scan"
	"github.com/Sternrassler/mindshare-rank/pkg/search"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// App holds the long-lived components shared by every search.
type App struct {
	Config     *config.Config
	Client     *client.Client
	Scanner    *scan.Scanner
	Matcher    *achievements.Matcher
	Hackathons *hackathon.Catalog

	redis  *redis.Client
	logger zerolog.Logger
}

// New builds the application. With the redis backend the server is pinged
// once so a bad address fails at startup instead of on every page.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		Config: cfg,
		logger: log.With().Str("component", "app").Logger(),
	}

	store, err := a.newStore(ctx)
	if err != nil {
		return nil, err
	}

	clientCfg := client.DefaultConfig()
	clientCfg.BaseURL = cfg.API.BaseURL
	clientCfg.UserAgent = cfg.API.UserAgent
	clientCfg.RequestTimeout = cfg.API.RequestTimeout
	clientCfg.RateLimit = cfg.API.RateLimit
	clientCfg.RateBurst = cfg.API.RateBurst
	clientCfg.Retry.MaxAttempts = cfg.API.RetryAttempts
	clientCfg.Cache = store
	clientCfg.CacheTTL = cfg.Cache.TTL

	a.Client, err = client.New(clientCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create client: %w", err)
	}

	a.Scanner = scan.New(a.Client, scan.Config{
		BatchSize:   cfg.Scan.BatchSize,
		MaxPages:    cfg.Scan.MaxPages,
		BatchDelay:  cfg.Scan.BatchDelay,
		PageTimeout: cfg.Scan.PageTimeout,
	})

	seasons := achievements.DefaultSeasons()
	if cfg.Data.SeasonsFile != "" {
		seasons, err = achievements.LoadSeasonsFile(cfg.Data.SeasonsFile)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	a.Matcher = achievements.NewMatcher(seasons)

	a.Hackathons = hackathon.Default()
	if cfg.Data.HackathonsFile != "" {
		a.Hackathons, err = hackathon.LoadFile(cfg.Data.HackathonsFile)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.logger.Info().
		Str("base_url", cfg.API.BaseURL).
		Str("cache_backend", cfg.Cache.Backend).
		Int("max_pages", cfg.Scan.MaxPages).
		Int("award_seasons", len(seasons)).
		Msg("Application initialized")

	return a, nil
}

func (a *App) newStore(ctx context.Context) (cache.Store, error) {
	if a.Config.Cache.Backend != config.BackendRedis {
		return cache.NewMemoryStore(nil), nil
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.Config.Cache.RedisAddr,
		Password: a.Config.Cache.RedisPassword,
		DB:       a.Config.Cache.RedisDB,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		a.redis.Close()
		a.redis = nil
		return nil, fmt.Errorf("connect to redis at %s: %w", a.Config.Cache.RedisAddr, err)
	}
	a.logger.Info().Str("addr", a.Config.Cache.RedisAddr).Msg("Connected to Redis")

	return cache.NewRedisStore(a.redis, nil), nil
}

// NewCoordinator returns a coordinator scanning the configured timeframes.
// Each caller that needs its own search lifecycle gets its own coordinator;
// all of them share the client, its cache and its rate limiter.
func (a *App) NewCoordinator() (*search.Coordinator, error) {
	cfg := search.DefaultConfig()
	cfg.Timeframes = a.Config.Search.Timeframes
	return search.New(a.Scanner, a.Matcher, cfg)
}

// NewBrowser returns a season browser positioned on the active season.
func (a *App) NewBrowser() *browse.Browser {
	return browse.New(a.Client, a.Scanner, browse.Config{
		PageLimit:   a.Config.Browse.PageLimit,
		VerifyPages: a.Config.Browse.VerifyPages,
	})
}

// Close releases the Redis connection, if any.
func (a *App) Close() error {
	if a.redis == nil {
		return nil
	}
	err := a.redis.Close()
	a.redis = nil
	return err
}
