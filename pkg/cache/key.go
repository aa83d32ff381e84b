package cache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Sternrassler/mindshare-rank/pkg/leaderboard"
)

// KeyPrefix namespaces every cache key.
const KeyPrefix = "mindshare"

// Key identifies one cached leaderboard page.
// Pages are keyed purely by (timeframe, page) so a page fetched for a rank
// search is reusable by the season browser and vice versa.
type Key struct {
	Timeframe leaderboard.Timeframe
	Page      int
}

// String generates a deterministic cache key string.
// Format: mindshare:{timeframe}:page={n}
//
// Example:
//
//	mindshare:24h:page=3
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:page=%d", KeyPrefix, strings.ToLower(string(k.Timeframe)), k.Page)
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] != KeyPrefix || !strings.HasPrefix(parts[2], "page=") {
		return Key{}, fmt.Errorf("malformed cache key %q", s)
	}

	page, err := strconv.Atoi(strings.TrimPrefix(parts[2], "page="))
	if err != nil {
		return Key{}, fmt.Errorf("malformed page in cache key %q: %w", s, err)
	}

	return Key{Timeframe: leaderboard.Timeframe(parts[1]), Page: page}, nil
}
