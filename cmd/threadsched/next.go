package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"threadsched/internal/config"
	"threadsched/internal/recurrence"
	"threadsched/internal/scheduler"
	"threadsched/internal/title"
)

// now is replaced in tests.
var now = time.Now

func newNextCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "next [CONFIG_FILE]",
		Short: "Print upcoming occurrences and their titles without connecting",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return usageError(cmd, fmt.Errorf("-n must be at least 1, got %d", count))
			}
			cfg, err := config.Load(configPath(args))
			if err != nil {
				return err
			}
			tasks, err := scheduler.TasksFromConfig(cfg)
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return fmt.Errorf("%w: timezone: %w", config.ErrInvalidValue, err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CHANNEL\tTASK\tPERIOD\tOCCURRENCE\tTITLE")
			at := now()
			for _, t := range tasks {
				for _, occ := range recurrence.Upcoming(t.Period, loc, at, count) {
					local := occ.In(loc)
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						t.ChannelID, t.ID, t.Period.Describe(),
						local.Format("2006-01-02 15:04:05 MST"),
						title.Render(t.Title, local),
					)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 3, "occurrences to print per task")
	return cmd
}
