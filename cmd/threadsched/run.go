package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"threadsched/internal/app"
)

const shutdownTimeout = 10 * time.Second

type runOptions struct {
	token     string
	tokenFile string
	envFile   string
}

func bindRunFlags(cmd *cobra.Command, opts *runOptions) {
	f := cmd.Flags()
	f.StringVarP(&opts.token, "token", "t", "", "bot token")
	f.StringVarP(&opts.tokenFile, "token-file", "f", "", "file containing the bot token")
	f.StringVar(&opts.envFile, "env-file", "", "dotenv file to read THREADSCHED_TOKEN from (default .env if present)")
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run [CONFIG_FILE]",
		Short: "Connect and run every configured task until interrupted",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduler(cmd, args, opts)
		},
	}
	bindRunFlags(cmd, &opts)
	return cmd
}

func runScheduler(cmd *cobra.Command, args []string, opts runOptions) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, app.Options{
		ConfigPath: configPath(args),
		Token:      opts.token,
		TokenFile:  opts.tokenFile,
		EnvFile:    opts.envFile,
	})
	if err != nil {
		return err
	}

	if err := a.Start(ctx); err != nil {
		stop(a, app.StopStartFailed)
		return err
	}

	werr := a.Wait(ctx)
	reason := app.StopSignal
	if werr != nil {
		reason = app.StopAllHalted
	}
	stop(a, reason)
	return werr
}

func stop(a *app.App, reason app.StopReason) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = a.Stop(ctx, reason)
}
