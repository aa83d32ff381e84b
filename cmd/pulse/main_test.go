package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/mindshare-rank/internal/testutil"
	"github.com/Sternrassler/mindshare-rank/pkg/leaderboard"
)

func setupEnv(t *testing.T, mock *testutil.MockLeaderboard) {
	t.Helper()
	t.Setenv("PULSE_API_BASE_URL", mock.URL())
	t.Setenv("PULSE_API_RATE_LIMIT", "0")
	t.Setenv("PULSE_API_RETRY_ATTEMPTS", "1")
	t.Setenv("PULSE_SCAN_BATCH_DELAY", "0s")
	t.Setenv("PULSE_SCAN_MAX_PAGES", "6")
	t.Setenv("PULSE_LOG_LEVEL", "disabled")
}

func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestSearchCmd(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()

	pages := testutil.NewRankedPages("user", 2, 3)
	pages[1][0].Username = "alice"
	pages[1][0].DisplayName = "Alice A."
	mock.SetPages(leaderboard.Timeframe7d, pages)
	setupEnv(t, mock)

	out, errOut, err := runCmd(t, "search", "@alice")
	require.NoError(t, err)

	assert.Contains(t, out, "Alice A.")
	assert.Contains(t, out, "7 Days")
	assert.Contains(t, out, "#4")
	assert.Contains(t, out, "not found")
	assert.Contains(t, out, "No past season awards")
	assert.Contains(t, errOut, "7 Days: found")
}

func TestSearchCmd_Timeframes(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()
	setupEnv(t, mock)

	_, _, err := runCmd(t, "search", "alice", "--quiet", "--timeframes", "season5")
	require.NoError(t, err)
	assert.Contains(t, mock.RequestedPages(leaderboard.Season5), 1)
	assert.Empty(t, mock.RequestedPages(leaderboard.Timeframe24h))

	_, _, err = runCmd(t, "search", "alice", "--timeframes", "90d")
	assert.Error(t, err)
}

func TestLeaderboardCmd(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()
	mock.SetPages(leaderboard.Season4, testutil.NewRankedPages("creator", 3, 5))
	setupEnv(t, mock)

	out, _, err := runCmd(t, "leaderboard", "season4", "--pages", "2")
	require.NoError(t, err)

	assert.Contains(t, out, "Season 4 leaderboard")
	assert.Contains(t, out, "@creator10")
	assert.NotContains(t, out, "@creator11")
	assert.Contains(t, out, "More entries available")

	_, _, err = runCmd(t, "leaderboard", "season42")
	assert.Error(t, err)
}

func TestVerifyCmd(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()

	pages := testutil.NewRankedPages("creator", 3, 2)
	pages[2][1].Username = "carol"
	pages[2][1].DisplayName = "Carol"
	mock.SetPages(leaderboard.Season5, pages)
	setupEnv(t, mock)

	out, _, err := runCmd(t, "verify", "season5", "carol")
	require.NoError(t, err)
	assert.Contains(t, out, "Carol is ranked #6 in Season 5")

	out, _, err = runCmd(t, "verify", "season5", "dave")
	require.NoError(t, err)
	assert.Contains(t, out, "dave is not in the top of Season 5")
}

func TestAchievementsCmd(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()
	setupEnv(t, mock)

	out, _, err := runCmd(t, "achievements", "nobody")
	require.NoError(t, err)
	assert.Contains(t, out, "No past season awards")
}

func TestHackathonsCmd(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()
	setupEnv(t, mock)

	out, _, err := runCmd(t, "hackathons", "--season", "july_25", "--query", "chenlike")
	require.NoError(t, err)
	assert.Contains(t, out, "July 2025")
	assert.Contains(t, out, "Hush")
	assert.NotContains(t, out, "Privacy Pad")

	out, _, err = runCmd(t, "hackathons")
	require.NoError(t, err)
	assert.Contains(t, out, "Results not published yet")

	_, _, err = runCmd(t, "hackathons", "--season", "dec_99")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "july_25")
}

func TestInvalidConfig(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()
	setupEnv(t, mock)
	t.Setenv("PULSE_CACHE_BACKEND", "bogus")

	_, _, err := runCmd(t, "achievements", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.backend")
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	mock := testutil.NewMockLeaderboard()
	defer mock.Close()
	setupEnv(t, mock)
	t.Setenv("PULSE_API_BASE_URL", "http://127.0.0.1:1")

	mock.SetPages(leaderboard.Season5, testutil.NewRankedPages("creator", 1, 2))

	out, _, err := runCmd(t, "leaderboard", "--base-url", mock.URL())
	require.NoError(t, err)
	assert.Contains(t, out, "@creator1")
}
