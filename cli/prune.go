package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/attempts/cron"
)

func newPruneCmd(a *app) *cobra.Command {
	var (
		maxAge time.Duration
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete failed jobs older than the retention age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.eng.Config().Retention
			if maxAge <= 0 {
				maxAge = cfg.MaxAge
			}
			schedule := cfg.Schedule
			if schedule == "" {
				schedule = "@daily"
			}
			p, err := cron.NewPruner(a.eng.FailedStore(), schedule, maxAge, a.logger)
			if err != nil {
				return err
			}

			ctx := ctxOf(cmd)
			if !watch {
				n, err := p.PruneOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "Pruned %d failed job(s) older than %s.\n", n, maxAge)
				return nil
			}

			if err := p.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Pruning failed jobs older than %s on %q; next run %s.\n",
				maxAge, schedule, p.Next().Format(time.RFC3339))
			<-ctx.Done()
			return p.Stop(ctx)
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Retention age (default from configuration)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and prune on the configured schedule")
	return cmd
}
