// Package cache provides a short-lived TTL cache for leaderboard pages.
//
// Pages are keyed by (timeframe, page) and live for DefaultTTL (60s). Expiry
// is lazy: an entry older than its TTL is reported as a miss on read and
// evicted then, nothing sweeps the cache in the background.
//
// # Backends
//
//   - MemoryStore: process-local map, the default
//   - RedisStore: shared between processes (CLI runs, server replicas)
//
// Both take a Clock so expiry can be driven by tests.
//
// # Basic Usage
//
//	store := cache.NewMemoryStore(nil)
//
//	key := cache.Key{Timeframe: leaderboard.Timeframe24h, Page: 1}
//
//	entry, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch the page, then
//		_ = store.Set(ctx, key, cache.NewEntry(page, time.Now(), cache.DefaultTTL))
//	}
//
// # Metrics
//
//   - mindshare_cache_hits_total{layer} - Cache hits
//   - mindshare_cache_misses_total{layer} - Cache misses (expired included)
//   - mindshare_cache_entries{layer} - Pages held in memory
//   - mindshare_cache_errors_total{layer,operation} - Cache operation errors
package cache
