package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/mindshare-rank/internal/app"
	"github.com/Sternrassler/mindshare-rank/internal/config"
	"github.com/Sternrassler/mindshare-rank/internal/testutil"
	"github.com/Sternrassler/mindshare-rank/pkg/browse"
	"github.com/Sternrassler/mindshare-rank/pkg/leaderboard"
	"github.com/Sternrassler/mindshare-rank/pkg/search"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeasons = `
[[season]]
id = "season3"
label = "Season 3"

[[season.choice]]
name = "Bob"
handle = "bob"
platform = "X"
prize = "$500 + NFT"
link = "https://x.com/bob/status/1"
`

func newTestServer(t *testing.T, mock *testutil.MockLeaderboard) *httptest.Server {
	t.Helper()

	seasonsFile := filepath.Join(t.TempDir(), "seasons.toml")
	require.NoError(t, os.WriteFile(seasonsFile, []byte(testSeasons), 0o600))

	v := config.NewViper()
	v.Set("api.base_url", mock.URL())
	v.Set("api.rate_limit", 0)
	v.Set("api.retry_attempts", 1)
	v.Set("scan.batch_delay", "0s")
	v.Set("scan.max_pages", 6)
	v.Set("data.seasons_file", seasonsFile)

	cfg, err := config.Load(v, "")
	require.NoError(t, err)

	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	srv := httptest.NewServer(New(a))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealth(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()
	srv := newTestServer(t, mock)

	resp, body := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestRequestID(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()
	srv := newTestServer(t, mock)

	resp, _ := get(t, srv.URL+"/health")
	_, err := uuid.Parse(resp.Header.Get(RequestIDHeader))
	assert.NoError(t, err, "generated request id should be a uuid")

	id := uuid.New().String()
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, id)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, id, resp.Header.Get(RequestIDHeader))
}

func TestMetrics(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()
	srv := newTestServer(t, mock)

	resp, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "mindshare_searches_total")
}

func TestSearch(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()

	pages := testutil.NewRankedPages("user", 2, 3)
	pages[1][0].Username = "alice"
	mock.SetPages(leaderboard.Timeframe7d, pages)

	srv := newTestServer(t, mock)

	resp, body := get(t, srv.URL+"/api/v1/search?user=@alice")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var snap search.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))

	assert.False(t, snap.Searching)
	assert.Equal(t, "@alice", snap.Query)

	found := snap.Outcomes[leaderboard.Timeframe7d]
	assert.Equal(t, search.StatusFound, found.Status)
	require.NotNil(t, found.Entry)
	assert.Equal(t, 4, found.Entry.Rank)

	assert.Equal(t, search.StatusNotFound, snap.Outcomes[leaderboard.Timeframe24h].Status)
	assert.Equal(t, search.StatusIdle, snap.Outcomes[leaderboard.TimeframeAll].Status)
	require.NotNil(t, snap.User)
	assert.Equal(t, "alice", snap.User.Username)
}

func TestSearch_Timeframes(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()
	srv := newTestServer(t, mock)

	resp, body := get(t, srv.URL+"/api/v1/search?user=alice&timeframes=season5")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var snap search.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Equal(t, search.StatusNotFound, snap.Outcomes[leaderboard.Season5].Status)
	assert.Equal(t, search.StatusIdle, snap.Outcomes[leaderboard.Timeframe7d].Status)
	assert.Empty(t, mock.RequestedPages(leaderboard.Timeframe7d))
}

func TestSearch_BadRequest(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()
	srv := newTestServer(t, mock)

	tests := []struct {
		name string
		path string
	}{
		{"missing user", "/api/v1/search"},
		{"blank user", "/api/v1/search?user=%20@%20"},
		{"unknown timeframe", "/api/v1/search?user=alice&timeframes=90d"},
		{"duplicate timeframe", "/api/v1/search?user=alice&timeframes=7d,7d"},
		{"stream without user", "/api/v1/search/stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, srv.URL+tt.path)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var e errorResponse
			require.NoError(t, json.Unmarshal(body, &e))
			assert.NotEmpty(t, e.Error)
			assert.NotEmpty(t, e.RequestID)
		})
	}
}

func TestSearchStream(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()
	mock.SetPages(leaderboard.Timeframe24h, [][]leaderboard.Entry{
		{{ID: "1", Username: "bob", DisplayName: "Bob", Rank: 1, Mindshare: 9.5}},
	})

	srv := newTestServer(t, mock)

	resp, err := http.Get(srv.URL + "/api/v1/search/stream?user=bob")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []string
	var last search.Update
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			events = append(events, strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &last))
		}
	}
	require.NoError(t, scanner.Err())

	require.NotEmpty(t, events)
	assert.Equal(t, string(search.UpdateReset), events[0])
	assert.Equal(t, string(search.UpdateComplete), events[len(events)-1])
	assert.Contains(t, events, string(search.UpdateHistorical))

	assert.False(t, last.Snapshot.Searching)
	assert.Equal(t, search.StatusFound, last.Snapshot.Outcomes[leaderboard.Timeframe24h].Status)
	require.Len(t, last.Snapshot.Achievements, 1)
	assert.Equal(t, "Season 3", last.Snapshot.Achievements[0].Season)
	// live entry wins over award data for the header
	assert.Equal(t, "Bob", last.Snapshot.User.DisplayName)
}

func TestLeaderboard(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()
	mock.SetPages(leaderboard.Season4, testutil.NewRankedPages("creator", 3, 5))

	srv := newTestServer(t, mock)

	resp, body := get(t, srv.URL+"/api/v1/leaderboard/season4?pages=2")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out leaderboardResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, leaderboard.Season4, out.Timeframe)
	assert.Equal(t, "Season 4", out.Label)
	require.Len(t, out.Entries, 10)
	assert.Equal(t, 1, out.Entries[0].Rank)
	assert.Equal(t, 10, out.Entries[9].Rank)
	assert.True(t, out.HasMore)
	assert.Equal(t, []int{1, 2}, mock.RequestedPages(leaderboard.Season4))
}

func TestLeaderboard_EmptySeason(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()
	srv := newTestServer(t, mock)

	resp, body := get(t, srv.URL+"/api/v1/leaderboard/season1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out leaderboardResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.NotNil(t, out.Entries)
	assert.Empty(t, out.Entries)
	assert.False(t, out.HasMore)
}

func TestLeaderboard_Errors(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()
	mock.SetResponse(leaderboard.Season2, 1, testutil.NewServerErrorResponse())

	srv := newTestServer(t, mock)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"unknown timeframe", "/api/v1/leaderboard/season9", http.StatusBadRequest},
		{"bad pages", "/api/v1/leaderboard/season4?pages=0", http.StatusBadRequest},
		{"upstream failure", "/api/v1/leaderboard/season2", http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := get(t, srv.URL+tt.path)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestVerify(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()

	pages := testutil.NewRankedPages("creator", 3, 2)
	pages[2][1].Username = "carol"
	mock.SetPages(leaderboard.Season5, pages)

	srv := newTestServer(t, mock)

	resp, body := get(t, srv.URL+"/api/v1/leaderboard/season5/verify?user=carol")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var res browse.VerifyResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.True(t, res.Found)
	assert.False(t, res.Local)
	require.NotNil(t, res.Entry)
	assert.Equal(t, 6, res.Entry.Rank)

	// a user on the first page is found in the loaded list
	resp, body = get(t, srv.URL+"/api/v1/leaderboard/season5/verify?user=creator1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &res))
	assert.True(t, res.Found)
	assert.True(t, res.Local)

	resp, _ = get(t, srv.URL+"/api/v1/leaderboard/season5/verify")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAchievements(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()
	srv := newTestServer(t, mock)

	resp, body := get(t, srv.URL+"/api/v1/achievements/Bob")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out achievementsResponse
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Achievements, 1)
	assert.Equal(t, "Season 3", out.Achievements[0].Season)
	assert.Equal(t, "$500", out.Achievements[0].Headline)
	assert.True(t, out.Achievements[0].NFT)
	require.NotNil(t, out.User)
	assert.Equal(t, "https://unavatar.io/twitter/bob", out.User.AvatarURL)

	resp, body = get(t, srv.URL+"/api/v1/achievements/nobody")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.NotNil(t, out.Achievements)
	assert.Empty(t, out.Achievements)
}

func TestHackathons(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()
	srv := newTestServer(t, mock)

	resp, body := get(t, srv.URL+"/api/v1/hackathons")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out hackathonsResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "nov_25", out.Season)
	assert.True(t, out.Upcoming)
	assert.Empty(t, out.Groups)
	assert.Equal(t, []string{"july_25", "aug_25", "sep_25", "oct_25", "nov_25"}, out.Seasons)

	resp, body = get(t, srv.URL+"/api/v1/hackathons?season=july_25&q=chenlike")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.False(t, out.Upcoming)
	require.Len(t, out.Groups, 1)
	require.Len(t, out.Groups[0].Projects, 1)
	assert.Equal(t, "chenlike", out.Groups[0].Projects[0].Username)
	assert.Equal(t, "https://github.com/chenlike.png", out.Groups[0].Projects[0].Avatar)

	resp, _ = get(t, srv.URL+"/api/v1/hackathons?season=dec_99")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTimeframes(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()
	srv := newTestServer(t, mock)

	resp, body := get(t, srv.URL+"/api/v1/timeframes")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []timeframeDTO
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out, 4+len(leaderboard.Seasons))
	assert.Equal(t, leaderboard.Timeframe24h, out[0].ID)
	assert.True(t, out[len(out)-1].Active)
}
