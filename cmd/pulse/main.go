// Package main provides the pulse CLI: rank search, leaderboard browsing,
// award lookup and the HTTP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sternrassler/mindshare-rank/internal/app"
	"github.com/Sternrassler/mindshare-rank/internal/config"
	"github.com/Sternrassler/mindshare-rank/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// options is shared by every subcommand of one root command.
type options struct {
	configPath string
	v          *viper.Viper
	app        *app.App
}

func newRootCmd() *cobra.Command {
	o := &options{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:           "pulse",
		Short:         "Find creators on the mindshare leaderboard",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return o.close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&o.configPath, "config", "c", "", "config file (yaml, toml or json)")
	flags.String("log-level", "info", "log level (debug, info, warn, error, disabled)")
	flags.Bool("log-pretty", false, "human readable log output")
	flags.String("base-url", "", "leaderboard API base url")
	flags.String("cache", "", "page cache backend (memory, redis)")
	_ = o.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = o.v.BindPFlag("log.pretty", flags.Lookup("log-pretty"))
	_ = o.v.BindPFlag("api.base_url", flags.Lookup("base-url"))
	_ = o.v.BindPFlag("cache.backend", flags.Lookup("cache"))

	rootCmd.AddCommand(newSearchCmd(o))
	rootCmd.AddCommand(newLeaderboardCmd(o))
	rootCmd.AddCommand(newVerifyCmd(o))
	rootCmd.AddCommand(newAchievementsCmd(o))
	rootCmd.AddCommand(newHackathonsCmd(o))
	rootCmd.AddCommand(newServeCmd(o))

	return rootCmd
}

func (o *options) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.v, o.configPath)
	if err != nil {
		return err
	}

	logging.Setup(logging.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		Output: cmd.ErrOrStderr(),
	})

	o.app, err = app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	return nil
}

func (o *options) close() error {
	if o.app == nil {
		return nil
	}
	if err := o.app.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close application")
		return err
	}
	return nil
}
