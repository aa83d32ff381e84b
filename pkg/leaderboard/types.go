// Package leaderboard defines the data model of the remote mindshare
// leaderboard: timeframes, ranked entries, pages, and the API envelope.
package leaderboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoData is returned by DecodePage when the API answers without a usable
// entry list (success=false or non-array data). It ends a scan like an
// empty page does.
var ErrNoData = errors.New("leaderboard returned no data")

// Timeframe is an aggregation window the remote leaderboard is sliced by.
type Timeframe string

const (
	Timeframe24h Timeframe = "24h"
	Timeframe7d  Timeframe = "7d"
	Timeframe30d Timeframe = "30d"
	TimeframeAll Timeframe = "all"

	Season1 Timeframe = "season1"
	Season2 Timeframe = "season2"
	Season3 Timeframe = "season3"
	Season4 Timeframe = "season4"
	Season5 Timeframe = "season5"
)

// LiveTimeframes are the rolling windows a rank search scans by default.
var LiveTimeframes = []Timeframe{Timeframe24h, Timeframe7d, Timeframe30d}

// SeasonInfo describes one creator season.
type SeasonInfo struct {
	ID     Timeframe `json:"id"`
	Label  string    `json:"label"`
	Active bool      `json:"active"`
}

// Seasons lists the creator seasons in chronological order.
var Seasons = []SeasonInfo{
	{ID: Season1, Label: "Season 1"},
	{ID: Season2, Label: "Season 2"},
	{ID: Season3, Label: "Season 3"},
	{ID: Season4, Label: "Season 4"},
	{ID: Season5, Label: "Season 5", Active: true},
}

// ActiveSeason returns the season currently running.
func ActiveSeason() Timeframe {
	for _, s := range Seasons {
		if s.Active {
			return s.ID
		}
	}
	return Seasons[len(Seasons)-1].ID
}

var knownTimeframes = map[Timeframe]string{
	Timeframe24h: "24 Hours",
	Timeframe7d:  "7 Days",
	Timeframe30d: "30 Days",
	TimeframeAll: "All Time",
	Season1:      "Season 1",
	Season2:      "Season 2",
	Season3:      "Season 3",
	Season4:      "Season 4",
	Season5:      "Season 5",
}

// ParseTimeframe validates a timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownTimeframes[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Label returns a human readable name for the timeframe.
func (t Timeframe) Label() string {
	if label, ok := knownTimeframes[t]; ok {
		return label
	}
	return string(t)
}

// Entry is one ranked creator on a leaderboard page.
// Rank and Mindshare are only meaningful for the timeframe the entry was fetched under.
type Entry struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"displayName"`
	AvatarURL   string  `json:"avatarUrl"`
	Mindshare   float64 `json:"mindshare"`
	// Rank is 1-based; 0 means the upstream entry carried no usable rank.
	Rank        int     `json:"rank"`
}

// rawEntry mirrors the upstream payload loosely. Fields are decoded as
// arbitrary JSON so a single malformed value cannot fail the whole page.
type rawEntry struct {
	UpstreamID     any `json:"_id"`
	ID             any `json:"id"`
	Username       any `json:"username"`
	DisplayName    any `json:"displayName"`
	ProfilePicture any `json:"profilePicture"`
	AvatarURL      any `json:"avatarUrl"`
	Mindshare      any `json:"mindshare"`
	Rank           any `json:"rank"`
}

// UnmarshalJSON accepts both the upstream field names (_id, profilePicture)
// and the names Entry marshals to, defaulting missing or malformed fields.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw rawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Entry{
		ID:          firstString(raw.UpstreamID, raw.ID),
		Username:    asString(raw.Username),
		DisplayName: asString(raw.DisplayName),
		AvatarURL:   firstString(raw.ProfilePicture, raw.AvatarURL),
		Mindshare:   asFloat(raw.Mindshare),
		Rank:        int(asFloat(raw.Rank)),
	}
	return nil
}

// MindshareString formats the score with two decimals.
func (e Entry) MindshareString() string {
	return strconv.FormatFloat(e.Mindshare, 'f', 2, 64)
}

// Page is one page of a leaderboard, entries in server rank order.
type Page struct {
	Timeframe Timeframe `json:"timeframe"`
	Number    int       `json:"page"`
	Entries   []Entry   `json:"entries"`
	Total     int       `json:"total,omitempty"`
	Pages     int       `json:"pages,omitempty"`
}

// Exhausted reports whether the page marks the end of the leaderboard.
func (p Page) Exhausted() bool {
	return len(p.Entries) == 0
}

// Find returns the first entry in page order matching the normalized query.
func (p Page) Find(normalizedQuery string) (Entry, bool) {
	for _, entry := range p.Entries {
		if Matches(entry, normalizedQuery) {
			return entry, true
		}
	}
	return Entry{}, false
}

// APIResponse is the envelope returned by the remote leaderboard API.
type APIResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Total   any             `json:"total"`
	Page    any             `json:"page"`
	Pages   any             `json:"pages"`
}

// DecodePage decodes an API response body into a Page. A body that is not
// JSON is an error; success=false or data that is not an array yields an
// error wrapping ErrNoData.
func DecodePage(tf Timeframe, number int, body []byte) (Page, error) {
	var resp APIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Page{}, fmt.Errorf("decode response: %w", err)
	}
	if !resp.Success {
		return Page{}, fmt.Errorf("%w: response reported success=false", ErrNoData)
	}

	trimmed := strings.TrimSpace(string(resp.Data))
	if !strings.HasPrefix(trimmed, "[") {
		return Page{}, fmt.Errorf("%w: response data is not an array", ErrNoData)
	}

	var entries []Entry
	if err := json.Unmarshal(resp.Data, &entries); err != nil {
		return Page{}, fmt.Errorf("decode entries: %w", err)
	}

	return Page{
		Timeframe: tf,
		Number:    number,
		Entries:   entries,
		Total:     int(asFloat(resp.Total)),
		Pages:     int(asFloat(resp.Pages)),
	}, nil
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func firstString(values ...any) string {
	for _, v := range values {
		if s := asString(v); s != "" {
			return s
		}
	}
	return ""
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
