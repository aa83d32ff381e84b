package leaderboard

import "strings"

// NormalizeQuery lowercases a username query, trims whitespace and strips
// a leading "@".
func NormalizeQuery(q string) string {
	q = strings.TrimSpace(strings.ToLower(q))
	q = strings.TrimPrefix(q, "@")
	return strings.TrimSpace(q)
}

// Matches reports whether an entry matches an already normalized query.
// The username must match exactly; the display name only has to contain
// the query.
func Matches(e Entry, normalizedQuery string) bool {
	if normalizedQuery == "" {
		return false
	}
	if NormalizeQuery(e.Username) == normalizedQuery {
		return true
	}
	return strings.Contains(strings.ToLower(e.DisplayName), normalizedQuery)
}
