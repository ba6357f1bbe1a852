package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"threadsched/internal/app"
)

const defaultConfigPath = "config.json"

func newRootCmd() *cobra.Command {
	var opts runOptions
	root := &cobra.Command{
		Use:   "threadsched [CONFIG_FILE]",
		Short: "Post recurring, timezone-aware threads into chat channels",
		Long: `threadsched posts a message on a daily, weekly or monthly schedule, opens a
thread (or forum topic) on it and optionally pins it in place of the previous one.

Running without a subcommand is the same as "threadsched run".`,
		Args:          maxArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduler(cmd, args, opts)
		},
	}
	bindRunFlags(root, &opts)
	// Inherited by subcommands.
	root.SetFlagErrorFunc(usageError)

	root.AddCommand(newRunCmd(), newNextCmd(), newVersionCmd())
	return root
}

// usageError tags flag and argument errors so they exit with the usage code.
func usageError(_ *cobra.Command, err error) error {
	return fmt.Errorf("%w: %w", app.ErrUsage, err)
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return usageError(cmd, err)
		}
		return nil
	}
}

func configPath(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return defaultConfigPath
}
