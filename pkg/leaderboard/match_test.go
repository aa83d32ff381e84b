package leaderboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeQuery(t *testing.T) {
	tests := map[string]string{
		"Alice":       "alice",
		"@Alice":      "alice",
		"  @alice  ":  "alice",
		"@ alice":     "alice",
		"":            "",
		"   ":         "",
		"bob@example": "bob@example",
	}

	for in, want := range tests {
		assert.Equal(t, want, NormalizeQuery(in), "NormalizeQuery(%q)", in)
	}
}

func TestMatches(t *testing.T) {
	alice := Entry{Username: "Alice", DisplayName: "Alice Wonder"}
	bob := Entry{Username: "bob_", DisplayName: "Not Alice"}

	tests := []struct {
		name  string
		entry Entry
		query string
		want  bool
	}{
		{"exact username", alice, "alice", true},
		{"username prefix does not match", Entry{Username: "alice2"}, "alice", false},
		{"display name contains", bob, "alice", true},
		{"display name substring", alice, "wonder", true},
		{"no match", bob, "carol", false},
		{"empty query", alice, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.entry, tt.query))
		})
	}
}

func TestPage_FindReturnsFirstInOrder(t *testing.T) {
	page := Page{Entries: []Entry{
		{Username: "x", DisplayName: "Alice fan", Rank: 3},
		{Username: "alice", DisplayName: "Alice", Rank: 4},
	}}

	e, ok := page.Find("alice")
	assert.True(t, ok)
	assert.Equal(t, 3, e.Rank)
}
