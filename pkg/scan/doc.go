// Package scan locates a user inside a paginated leaderboard by fetching
// pages in small concurrent batches.
//
// The remote leaderboard gives no backpressure signal and no way to look a
// user up directly, so a scan walks pages 1..MaxPages. Each batch of pages
// is fetched concurrently and joined before any result is inspected; the
// joined results are then examined in ascending page order, so the match
// with the best rank always wins even when later pages answer first.
//
// Example usage:
//
//	scanner := scan.New(leaderboardClient, scan.DefaultConfig())
//	result, err := scanner.Scan(ctx, "@alice", leaderboard.Timeframe7d, func(pct int) {
//		fmt.Printf("%d%%\n", pct)
//	})
//
// The scanner:
//   - Normalizes the query and matches usernames exactly, display names by substring
//   - Fetches BatchSize pages at a time (default 3) with a per-page timeout
//   - Skips failed pages and keeps going
//   - Stops after the batch containing an empty page (end of leaderboard)
//   - Reports progress after every batch and pauses BatchDelay between batches
package scan
