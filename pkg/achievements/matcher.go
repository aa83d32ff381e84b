// Package achievements matches a username against bundled award records of
// past creator seasons.
package achievements

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Sternrassler/mindshare-rank/pkg/leaderboard"
)

//go:embed seasons.toml
var defaultSeasons []byte

// RankedWinner is a placement on a past season's final leaderboard.
type RankedWinner struct {
	Rank  int    `toml:"rank"`
	Name  string `toml:"name"`
	URL   string `toml:"url"`
	Prize string `toml:"prize"`
}

// ChoiceAward is a creator choice award.
type ChoiceAward struct {
	Name     string `toml:"name"`
	Handle   string `toml:"handle"`
	Platform string `toml:"platform"`
	Prize    string `toml:"prize"`
	Link     string `toml:"link"`
}

// Season holds the awards of one past season.
type Season struct {
	ID     string         `toml:"id"`
	Label  string         `toml:"label"`
	Ranked []RankedWinner `toml:"ranked"`
	Choice []ChoiceAward  `toml:"choice"`
}

type seasonFile struct {
	Seasons []Season `toml:"season"`
}

// LoadSeasons decodes season award data from TOML.
func LoadSeasons(r io.Reader) ([]Season, error) {
	var f seasonFile
	if _, err := toml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode seasons: %w", err)
	}
	return f.Seasons, nil
}

// LoadSeasonsFile decodes season award data from a TOML file.
func LoadSeasonsFile(path string) ([]Season, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seasons: %w", err)
	}
	defer f.Close()
	return LoadSeasons(f)
}

// DefaultSeasons returns the bundled season data.
func DefaultSeasons() []Season {
	seasons, err := LoadSeasons(bytes.NewReader(defaultSeasons))
	if err != nil {
		panic(fmt.Sprintf("bundled seasons: %v", err))
	}
	return seasons
}

// Kind distinguishes ranked placements from choice awards.
type Kind string

const (
	KindRanked Kind = "Ranked"
	KindChoice Kind = "Creator Choice"
)

// Achievement is one award won by the matched user.
type Achievement struct {
	Season string `json:"season"`
	Kind   Kind   `json:"type"`
	// Rank is the placement, or "Winner" for choice awards
	Rank  string `json:"rank"`
	Prize string `json:"prize"`
}

// PrizeHeadline returns the prize without add-ons ("$500 + NFT" -> "$500").
func (a Achievement) PrizeHeadline() string {
	head, _, _ := strings.Cut(a.Prize, "+")
	return strings.TrimSpace(head)
}

// HasNFT reports whether the prize includes an NFT.
func (a Achievement) HasNFT() bool {
	return strings.Contains(a.Prize, "NFT")
}

// User is header data derived from the first matching award.
type User struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// Result is the outcome of a historical match.
type Result struct {
	Achievements []Achievement `json:"achievements"`
	User         *User         `json:"user,omitempty"`
}

// Matcher checks usernames against past season awards.
type Matcher struct {
	seasons []Season
}

// NewMatcher creates a matcher over the given seasons.
func NewMatcher(seasons []Season) *Matcher {
	return &Matcher{seasons: seasons}
}

// Match returns every award the user won, in season order. At most one
// ranked placement and one choice award are reported per season.
func (m *Matcher) Match(username string) Result {
	q := leaderboard.NormalizeQuery(username)
	var res Result
	if q == "" {
		return res
	}

	setUser := func(displayName string) {
		if res.User == nil {
			res.User = &User{
				Username:    q,
				DisplayName: displayName,
				AvatarURL:   AvatarURL(q),
			}
		}
	}

	for _, s := range m.seasons {
		for _, w := range s.Ranked {
			if strings.ToLower(HandleFromURL(w.URL)) != q {
				continue
			}
			res.Achievements = append(res.Achievements, Achievement{
				Season: s.Label,
				Kind:   KindRanked,
				Rank:   strconv.Itoa(w.Rank),
				Prize:  w.Prize,
			})
			setUser(w.Name)
			break
		}

		for _, c := range s.Choice {
			if strings.ToLower(strings.TrimSpace(c.Handle)) != q {
				continue
			}
			res.Achievements = append(res.Achievements, Achievement{
				Season: s.Label,
				Kind:   KindChoice,
				Rank:   "Winner",
				Prize:  c.Prize,
			})
			setUser(c.Name)
			break
		}
	}

	return res
}

// HandleFromURL extracts the handle from an x.com or twitter.com profile url.
func HandleFromURL(url string) string {
	for _, host := range []string{"x.com/", "twitter.com/"} {
		_, rest, ok := strings.Cut(url, host)
		if !ok {
			continue
		}
		if i := strings.IndexAny(rest, "/?"); i >= 0 {
			rest = rest[:i]
		}
		return rest
	}
	return ""
}

// AvatarURL returns the public avatar url for a handle.
func AvatarURL(handle string) string {
	return "https://unavatar.io/twitter/" + handle
}
