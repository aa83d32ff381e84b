// Package config loads the application configuration from defaults, an
// optional config file, environment variables, and command line flags.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/mindshare-rank/pkg/leaderboard"
	"github.com/Sternrassler/mindshare-rank/pkg/logging"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. PULSE_CACHE_BACKEND.
const EnvPrefix = "PULSE"

// Cache backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	API    APIConfig
	Cache  CacheConfig
	Scan   ScanConfig
	Search SearchConfig
	Browse BrowseConfig
	Server ServerConfig
	Log    LogConfig
	Data   DataConfig
}

// APIConfig holds remote leaderboard API settings.
type APIConfig struct {
	BaseURL        string
	UserAgent      string
	RequestTimeout time.Duration
	RateLimit      float64
	RateBurst      int
	RetryAttempts  int
}

// CacheConfig holds page cache settings.
type CacheConfig struct {
	Backend       string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// ScanConfig holds batch scanner settings.
type ScanConfig struct {
	BatchSize   int
	MaxPages    int
	BatchDelay  time.Duration
	PageTimeout time.Duration
}

// SearchConfig holds coordinator settings.
type SearchConfig struct {
	Timeframes []leaderboard.Timeframe
}

// BrowseConfig holds season browser settings.
type BrowseConfig struct {
	PageLimit   int
	VerifyPages int
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	SearchTimeout   time.Duration
	StreamBuffer    int
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  logging.LogLevel
	Pretty bool
}

// DataConfig points at optional data files replacing the bundled ones.
type DataConfig struct {
	SeasonsFile    string
	HackathonsFile string
}

// NewViper returns a viper instance with defaults and environment binding.
// Callers may bind command line flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load builds the configuration. path is an optional config file (any
// format viper understands); an empty path skips it.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	level, err := logging.ParseLevel(v.GetString("log.level"))
	if err != nil {
		return nil, err
	}

	timeframes, err := parseTimeframes(v.GetStringSlice("search.timeframes"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		API: APIConfig{
			BaseURL:        v.GetString("api.base_url"),
			UserAgent:      v.GetString("api.user_agent"),
			RequestTimeout: v.GetDuration("api.request_timeout"),
			RateLimit:      v.GetFloat64("api.rate_limit"),
			RateBurst:      v.GetInt("api.rate_burst"),
			RetryAttempts:  v.GetInt("api.retry_attempts"),
		},
		Cache: CacheConfig{
			Backend:       strings.ToLower(v.GetString("cache.backend")),
			TTL:           v.GetDuration("cache.ttl"),
			RedisAddr:     v.GetString("cache.redis_addr"),
			RedisPassword: v.GetString("cache.redis_password"),
			RedisDB:       v.GetInt("cache.redis_db"),
		},
		Scan: ScanConfig{
			BatchSize:   v.GetInt("scan.batch_size"),
			MaxPages:    v.GetInt("scan.max_pages"),
			BatchDelay:  v.GetDuration("scan.batch_delay"),
			PageTimeout: v.GetDuration("scan.page_timeout"),
		},
		Search: SearchConfig{
			Timeframes: timeframes,
		},
		Browse: BrowseConfig{
			PageLimit:   v.GetInt("browse.page_limit"),
			VerifyPages: v.GetInt("browse.verify_pages"),
		},
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			SearchTimeout:   v.GetDuration("server.search_timeout"),
			StreamBuffer:    v.GetInt("server.stream_buffer"),
		},
		Log: LogConfig{
			Level:  level,
			Pretty: v.GetBool("log.pretty"),
		},
		Data: DataConfig{
			SeasonsFile:    v.GetString("data.seasons_file"),
			HackathonsFile: v.GetString("data.hackathons_file"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.base_url", "https://leaderboard-bice-mu.vercel.app/api/zama")
	v.SetDefault("api.user_agent", "mindshare-rank/1.0")
	v.SetDefault("api.request_timeout", 10*time.Second)
	v.SetDefault("api.rate_limit", 10.0)
	v.SetDefault("api.rate_burst", 6)
	v.SetDefault("api.retry_attempts", 2)

	// Cache defaults
	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.ttl", 60*time.Second)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)

	// Scan defaults
	v.SetDefault("scan.batch_size", 3)
	v.SetDefault("scan.max_pages", 30)
	v.SetDefault("scan.batch_delay", 150*time.Millisecond)
	v.SetDefault("scan.page_timeout", 10*time.Second)

	// Search defaults
	v.SetDefault("search.timeframes", []string{"24h", "7d", "30d"})

	// Browse defaults
	v.SetDefault("browse.page_limit", 10)
	v.SetDefault("browse.verify_pages", 30)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.search_timeout", 2*time.Minute)
	v.SetDefault("server.stream_buffer", 32)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Data defaults (empty: bundled data)
	v.SetDefault("data.seasons_file", "")
	v.SetDefault("data.hackathons_file", "")
}

// parseTimeframes accepts list values as well as a single comma or space
// separated string, as delivered by environment variables.
func parseTimeframes(values []string) ([]leaderboard.Timeframe, error) {
	var out []leaderboard.Timeframe
	for _, value := range values {
		for _, field := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' }) {
			tf, err := leaderboard.ParseTimeframe(field)
			if err != nil {
				return nil, fmt.Errorf("search.timeframes: %w", err)
			}
			out = append(out, tf)
		}
	}
	return out, nil
}

// Validate checks the configuration for values the application cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute http(s) url (got %q)", c.API.BaseURL)
	}
	if c.API.UserAgent == "" {
		return fmt.Errorf("api.user_agent is required")
	}
	if c.API.RequestTimeout <= 0 {
		return fmt.Errorf("api.request_timeout must be > 0")
	}
	if c.API.RetryAttempts < 1 {
		return fmt.Errorf("api.retry_attempts must be >= 1")
	}

	switch c.Cache.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be %q or %q (got %q)", BackendMemory, BackendRedis, c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be > 0")
	}

	if c.Scan.BatchSize < 1 {
		return fmt.Errorf("scan.batch_size must be >= 1")
	}
	if c.Scan.MaxPages < 1 {
		return fmt.Errorf("scan.max_pages must be >= 1")
	}
	if c.Scan.BatchDelay < 0 {
		return fmt.Errorf("scan.batch_delay must be >= 0")
	}

	if len(c.Search.Timeframes) == 0 {
		return fmt.Errorf("search.timeframes must not be empty")
	}

	if c.Browse.PageLimit < 1 || c.Browse.VerifyPages < 1 {
		return fmt.Errorf("browse.page_limit and browse.verify_pages must be >= 1")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535 (got %d)", c.Server.Port)
	}

	return nil
}
