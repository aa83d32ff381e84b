package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/mindshare-rank/internal/server"
	"github.com/Sternrassler/mindshare-rank/pkg/hackathon"
	"github.com/Sternrassler/mindshare-rank/pkg/leaderboard"
	"github.com/Sternrassler/mindshare-rank/pkg/search"
)

func newSearchCmd(o *options) *cobra.Command {
	var (
		timeframes []string
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "search <username>",
		Short: "Find a creator's rank in every timeframe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := o.app.NewCoordinator()
			if err != nil {
				return err
			}
			if len(timeframes) > 0 {
				tfs, err := parseTimeframes(timeframes)
				if err != nil {
					return err
				}
				if err := coord.SetTimeframes(tfs); err != nil {
					return err
				}
			}

			updates, unsubscribe := coord.Subscribe(o.app.Config.Server.StreamBuffer)
			defer unsubscribe()

			run, err := coord.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			errOut := cmd.ErrOrStderr()
		loop:
			for {
				select {
				case update := <-updates:
					if !quiet && update.Kind == search.UpdateOutcome {
						outcome, _ := update.Snapshot.Outcome(update.Timeframe)
						fmt.Fprintf(errOut, "%s: %s\n", update.Timeframe.Label(), outcome.Status)
					}
					if update.Kind == search.UpdateComplete {
						break loop
					}
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				}
			}

			if err := run.Wait(cmd.Context()); err != nil {
				return err
			}

			snap := coord.Snapshot()
			order := search.DefaultConfig().Display
			for _, tf := range coord.Timeframes() {
				if !containsTimeframe(order, tf) {
					order = append(order, tf)
				}
			}
			renderSnapshot(cmd.OutOrStdout(), snap, order)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&timeframes, "timeframes", "t", nil, "timeframes to scan (default from config)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not report outcomes as they arrive")
	return cmd
}

func newLeaderboardCmd(o *options) *cobra.Command {
	var pages int

	cmd := &cobra.Command{
		Use:   "leaderboard [timeframe]",
		Short: "Show the top of a leaderboard (default: active season)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tf := leaderboard.ActiveSeason()
			if len(args) == 1 {
				var err error
				if tf, err = leaderboard.ParseTimeframe(args[0]); err != nil {
					return err
				}
			}
			if pages < 1 {
				return fmt.Errorf("--pages must be >= 1")
			}

			b := o.app.NewBrowser()
			if _, err := b.Select(cmd.Context(), tf); err != nil {
				return err
			}
			for i := 1; i < pages && b.HasMore(); i++ {
				if _, err := b.LoadMore(cmd.Context()); err != nil {
					return err
				}
			}

			renderEntries(cmd.OutOrStdout(), tf, b.Entries(), b.HasMore())
			return nil
		},
	}

	cmd.Flags().IntVarP(&pages, "pages", "p", 1, "number of pages to load")
	return cmd
}

func newVerifyCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <timeframe> <username>",
		Short: "Check whether a creator appears in one timeframe",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tf, err := leaderboard.ParseTimeframe(args[0])
			if err != nil {
				return err
			}

			b := o.app.NewBrowser()
			if _, err := b.Select(cmd.Context(), tf); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "first page unavailable: %v\n", err)
			}

			res, err := b.Verify(cmd.Context(), args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case res.Found:
				fmt.Fprintf(out, "%s is ranked #%d in %s (mindshare %s)\n",
					res.Entry.DisplayName, res.Entry.Rank, tf.Label(), res.Entry.MindshareString())
			case res.Inconclusive:
				fmt.Fprintf(out, "%s could not be checked: no page of %s was available\n", args[1], tf.Label())
			default:
				fmt.Fprintf(out, "%s is not in the top of %s\n", args[1], tf.Label())
			}
			return nil
		},
	}
}

func newAchievementsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "achievements <username>",
		Short: "List a creator's past season awards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := o.app.Matcher.Match(args[0])
			if res.User != nil {
				fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render(fmt.Sprintf("%s (@%s)", res.User.DisplayName, res.User.Username)))
			}
			renderAchievements(cmd.OutOrStdout(), res.Achievements)
			return nil
		},
	}
}

func newHackathonsCmd(o *options) *cobra.Command {
	var season, query string

	cmd := &cobra.Command{
		Use:   "hackathons",
		Short: "Show builder hackathon winners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := o.app.Hackathons

			s := catalog.Latest()
			if season != "" {
				var ok bool
				if s, ok = catalog.Season(season); !ok {
					ids := make([]string, 0, len(catalog.Seasons))
					for _, c := range catalog.Seasons {
						ids = append(ids, c.ID)
					}
					return fmt.Errorf("unknown season %q (available: %s)", season, strings.Join(ids, ", "))
				}
			}

			groups := hackathon.GroupByCategory(hackathon.Filter(s.Projects, query))
			renderHackathon(cmd.OutOrStdout(), s, groups)
			return nil
		},
	}

	cmd.Flags().StringVarP(&season, "season", "s", "", "season id (default: latest)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "filter by builder or project name")
	return cmd
}

func newServeCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.New(o.app).ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().Int("port", 8080, "listen port")
	cmd.Flags().String("host", "0.0.0.0", "listen host")
	_ = o.v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	_ = o.v.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	return cmd
}

func parseTimeframes(values []string) ([]leaderboard.Timeframe, error) {
	out := make([]leaderboard.Timeframe, 0, len(values))
	for _, v := range values {
		tf, err := leaderboard.ParseTimeframe(v)
		if err != nil {
			return nil, err
		}
		out = append(out, tf)
	}
	return out, nil
}

func containsTimeframe(list []leaderboard.Timeframe, tf leaderboard.Timeframe) bool {
	for _, t := range list {
		if t == tf {
			return true
		}
	}
	return false
}
