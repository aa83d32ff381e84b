package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Sternrassler/mindshare-rank/pkg/achievements"
	"github.com/Sternrassler/mindshare-rank/pkg/hackathon"
	"github.com/Sternrassler/mindshare-rank/pkg/leaderboard"
	"github.com/Sternrassler/mindshare-rank/pkg/search"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	foundStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	notFoundStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func statusText(o search.Outcome) string {
	switch o.Status {
	case search.StatusFound:
		return foundStyle.Render("found")
	case search.StatusNotFound:
		return notFoundStyle.Render("not found")
	case search.StatusError:
		return errorStyle.Render("error")
	case search.StatusLoading:
		return fmt.Sprintf("loading %d%%", o.Progress)
	default:
		return mutedStyle.Render("-")
	}
}

// renderSnapshot prints the outcome of every displayed timeframe in the
// order given, followed by the historical awards.
func renderSnapshot(w io.Writer, snap search.Snapshot, order []leaderboard.Timeframe) {
	header := fmt.Sprintf("Search: %s", snap.Query)
	if snap.User != nil {
		header = fmt.Sprintf("Search: %s (%s, @%s)", snap.Query, snap.User.DisplayName, snap.User.Username)
	}
	fmt.Fprintln(w, titleStyle.Render(header))

	t := newTable("Timeframe", "Status", "Rank", "Mindshare", "Note")
	for _, tf := range order {
		o, ok := snap.Outcome(tf)
		if !ok {
			continue
		}
		rank, score := "", ""
		if o.Entry != nil {
			rank = fmt.Sprintf("#%d", o.Entry.Rank)
			score = o.Entry.MindshareString()
		}
		t.Row(tf.Label(), statusText(o), rank, score, o.Error)
	}
	fmt.Fprintln(w, t)

	renderAchievements(w, snap.Achievements)
}

func renderAchievements(w io.Writer, list []achievements.Achievement) {
	if len(list) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No past season awards"))
		return
	}

	t := newTable("Season", "Award", "Rank", "Prize", "NFT")
	for _, a := range list {
		nft := ""
		if a.HasNFT() {
			nft = "yes"
		}
		t.Row(a.Season, string(a.Kind), a.Rank, a.PrizeHeadline(), nft)
	}
	fmt.Fprintln(w, titleStyle.Render("Past season awards"))
	fmt.Fprintln(w, t)
}

func renderEntries(w io.Writer, tf leaderboard.Timeframe, entries []leaderboard.Entry, hasMore bool) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s leaderboard", tf.Label())))
	if len(entries) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No entries"))
		return
	}

	t := newTable("Rank", "Creator", "Handle", "Mindshare")
	for _, e := range entries {
		t.Row(fmt.Sprintf("#%d", e.Rank), e.DisplayName, "@"+e.Username, e.MindshareString())
	}
	fmt.Fprintln(w, t)
	if hasMore {
		fmt.Fprintln(w, mutedStyle.Render("More entries available (--pages)"))
	}
}

func renderHackathon(w io.Writer, season hackathon.Season, groups []hackathon.Group) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Builder hackathon: %s", season.Label)))
	if season.Upcoming() {
		fmt.Fprintln(w, mutedStyle.Render("Results not published yet"))
		return
	}
	if len(groups) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No matching projects"))
		return
	}

	for _, g := range groups {
		if g.Category != "" {
			fmt.Fprintln(w, titleStyle.Render(strings.ToUpper(g.Category)))
		}
		t := newTable("Prize", "Project", "Builder", "Repository")
		for _, p := range g.Projects {
			t.Row(p.Prize, p.ProjectName, p.Username, p.RepoURL)
		}
		fmt.Fprintln(w, t)
	}
}
