package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Sternrassler/mindshare-rank/pkg/achievements"
	"github.com/Sternrassler/mindshare-rank/pkg/hackathon"
	"github.com/Sternrassler/mindshare-rank/pkg/leaderboard"
	"github.com/Sternrassler/mindshare-rank/pkg/search"
	"github.com/go-chi/chi/v5"
)

type timeframeDTO struct {
	ID     leaderboard.Timeframe `json:"id"`
	Label  string                `json:"label"`
	Season bool                  `json:"season"`
	Active bool                  `json:"active,omitempty"`
}

func (s *Server) handleTimeframes(w http.ResponseWriter, r *http.Request) {
	out := make([]timeframeDTO, 0, len(leaderboard.LiveTimeframes)+1+len(leaderboard.Seasons))
	for _, tf := range append(append([]leaderboard.Timeframe(nil), leaderboard.LiveTimeframes...), leaderboard.TimeframeAll) {
		out = append(out, timeframeDTO{ID: tf, Label: tf.Label()})
	}
	for _, season := range leaderboard.Seasons {
		out = append(out, timeframeDTO{ID: season.ID, Label: season.Label, Season: true, Active: season.Active})
	}
	writeJSON(w, http.StatusOK, out)
}

// newCoordinator builds a coordinator for one request, honoring an optional
// comma separated timeframes parameter.
func (s *Server) newCoordinator(r *http.Request) (*search.Coordinator, error) {
	coord, err := s.app.NewCoordinator()
	if err != nil {
		return nil, err
	}

	raw := r.URL.Query().Get("timeframes")
	if raw == "" {
		return coord, nil
	}

	var tfs []leaderboard.Timeframe
	for _, field := range strings.Split(raw, ",") {
		tf, err := leaderboard.ParseTimeframe(field)
		if err != nil {
			return nil, err
		}
		tfs = append(tfs, tf)
	}
	if err := coord.SetTimeframes(tfs); err != nil {
		return nil, err
	}
	return coord, nil
}

// handleSearch runs a search to completion and returns the final snapshot.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	coord, err := s.newCoordinator(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.app.Config.Server.SearchTimeout)
	defer cancel()

	run, err := coord.Search(ctx, r.URL.Query().Get("user"))
	if err != nil {
		if errors.Is(err, search.ErrEmptyQuery) {
			writeError(w, r, http.StatusBadRequest, "query parameter 'user' is required")
			return
		}
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	if err := run.Wait(ctx); err != nil {
		writeUpstreamError(w, r, fmt.Errorf("search %q: %w", run.Query, err))
		return
	}

	writeJSON(w, http.StatusOK, coord.Snapshot())
}

// handleSearchStream streams every committed update as a server-sent event
// named after its kind. The stream ends after the complete event.
func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	coord, err := s.newCoordinator(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	updates, unsubscribe := coord.Subscribe(s.app.Config.Server.StreamBuffer)
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(r.Context(), s.app.Config.Server.SearchTimeout)
	defer cancel()

	run, err := coord.Search(ctx, r.URL.Query().Get("user"))
	if err != nil {
		if errors.Is(err, search.ErrEmptyQuery) {
			writeError(w, r, http.StatusBadRequest, "query parameter 'user' is required")
			return
		}
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		s.logger.Error().Err(err).Msg("Streaming not supported")
		return
	}

	logger := s.logger.With().
		Str("request_id", getRequestID(r.Context())).
		Uint64("generation", run.Generation).
		Logger()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, rc, string(update.Kind), update); err != nil {
				logger.Info().Err(err).Msg("Client disconnected during send")
				return
			}
			if update.Kind == search.UpdateComplete {
				return
			}
		case <-ctx.Done():
			logger.Info().Err(ctx.Err()).Msg("Search stream ended")
			return
		}
	}
}

type leaderboardResponse struct {
	Timeframe leaderboard.Timeframe `json:"timeframe"`
	Label     string                `json:"label"`
	Entries   []leaderboard.Entry   `json:"entries"`
	HasMore   bool                  `json:"hasMore"`
}

// handleLeaderboard returns the first ?pages= pages (default 1) of a
// timeframe, bounded by the browse page limit.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	tf, err := leaderboard.ParseTimeframe(chi.URLParam(r, "timeframe"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pages := 1
	if raw := r.URL.Query().Get("pages"); raw != "" {
		pages, err = strconv.Atoi(raw)
		if err != nil || pages < 1 {
			writeError(w, r, http.StatusBadRequest, "pages must be a positive integer")
			return
		}
	}

	b := s.app.NewBrowser()
	if _, err := b.Select(r.Context(), tf); err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	for i := 1; i < pages && b.HasMore(); i++ {
		if _, err := b.LoadMore(r.Context()); err != nil {
			writeUpstreamError(w, r, err)
			return
		}
	}

	entries := b.Entries()
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{
		Timeframe: tf,
		Label:     tf.Label(),
		Entries:   entries,
		HasMore:   b.HasMore(),
	})
}

// handleVerify checks whether a user appears in a timeframe.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	tf, err := leaderboard.ParseTimeframe(chi.URLParam(r, "timeframe"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user := r.URL.Query().Get("user")
	if leaderboard.NormalizeQuery(user) == "" {
		writeError(w, r, http.StatusBadRequest, "query parameter 'user' is required")
		return
	}

	b := s.app.NewBrowser()
	if _, err := b.Select(r.Context(), tf); err != nil {
		// Verify scans the season on its own
		s.logger.Warn().Err(err).Str("timeframe", string(tf)).Msg("First page unavailable")
	}

	res, err := b.Verify(r.Context(), user)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type achievementDTO struct {
	Season   string            `json:"season"`
	Type     achievements.Kind `json:"type"`
	Rank     string            `json:"rank"`
	Prize    string            `json:"prize"`
	Headline string            `json:"headline"`
	NFT      bool              `json:"nft"`
}

type achievementsResponse struct {
	Achievements []achievementDTO   `json:"achievements"`
	User         *achievements.User `json:"user,omitempty"`
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	res := s.app.Matcher.Match(chi.URLParam(r, "username"))

	out := achievementsResponse{
		Achievements: make([]achievementDTO, 0, len(res.Achievements)),
		User:         res.User,
	}
	for _, a := range res.Achievements {
		out.Achievements = append(out.Achievements, achievementDTO{
			Season:   a.Season,
			Type:     a.Kind,
			Rank:     a.Rank,
			Prize:    a.Prize,
			Headline: a.PrizeHeadline(),
			NFT:      a.HasNFT(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type projectDTO struct {
	hackathon.Project
	Avatar string `json:"avatarUrl"`
}

type groupDTO struct {
	Category string       `json:"category"`
	Projects []projectDTO `json:"projects"`
}

type hackathonsResponse struct {
	Season   string     `json:"season"`
	Label    string     `json:"label"`
	Upcoming bool       `json:"upcoming"`
	Seasons  []string   `json:"seasons"`
	Groups   []groupDTO `json:"groups"`
}

// handleHackathons lists the projects of ?season= (default latest), grouped
// by category and filtered by ?q=.
func (s *Server) handleHackathons(w http.ResponseWriter, r *http.Request) {
	catalog := s.app.Hackathons

	season := catalog.Latest()
	if id := r.URL.Query().Get("season"); id != "" {
		var ok bool
		season, ok = catalog.Season(id)
		if !ok {
			writeError(w, r, http.StatusNotFound, fmt.Sprintf("unknown hackathon season %q", id))
			return
		}
	}

	out := hackathonsResponse{
		Season:   season.ID,
		Label:    season.Label,
		Upcoming: season.Upcoming(),
		Seasons:  make([]string, 0, len(catalog.Seasons)),
		Groups:   []groupDTO{},
	}
	for _, sn := range catalog.Seasons {
		out.Seasons = append(out.Seasons, sn.ID)
	}

	for _, g := range hackathon.GroupByCategory(hackathon.Filter(season.Projects, r.URL.Query().Get("q"))) {
		group := groupDTO{Category: g.Category, Projects: make([]projectDTO, 0, len(g.Projects))}
		for _, p := range g.Projects {
			group.Projects = append(group.Projects, projectDTO{Project: p, Avatar: p.AvatarURL()})
		}
		out.Groups = append(out.Groups, group)
	}

	writeJSON(w, http.StatusOK, out)
}
