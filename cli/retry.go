package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/operator"
)

// summaryTableMax is the largest selection printed record by record.
const summaryTableMax = 10

func newRetryCmd(a *app) *cobra.Command {
	var q operator.RetryQuery

	cmd := &cobra.Command{
		Use:   "retry [uuid|id|all]...",
		Short: "Re-dispatch failed jobs and remove them from the failed store",
		Long: `Re-dispatch failed jobs onto their original queue.

Select jobs by UUID or numeric ID as arguments or with --id, by an
inclusive --range of numeric IDs, or retry every failed job ("all" or no
selector). --queue narrows a range or all-jobs selection.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.redispatchGuard(); err != nil {
				return err
			}
			for _, arg := range args {
				if arg != "all" {
					q.IDs = append(q.IDs, arg)
				}
			}
			w := out(cmd)
			q.Confirm = a.confirmer(cmd)
			q.OnSummary = func(s *operator.Summary) { writeSummary(w, s) }

			report, err := a.eng.Operator().Retry(ctxOf(cmd), q)
			switch {
			case errors.Is(err, attempts.ErrCancelled):
				fmt.Fprintln(w, "Cancelled.")
				return err
			case err != nil:
				return err
			case report.Selected == 0:
				fmt.Fprintln(w, "No failed jobs found matching criteria.")
				return nil
			}

			fmt.Fprintf(w, "Results (batch %s):\n", report.Batch)
			if report.Succeeded > 0 {
				fmt.Fprintf(w, "  Retried: %d job(s)\n", report.Succeeded)
			}
			if len(report.Failed) == 0 {
				return nil
			}
			fmt.Fprintf(w, "  Failed to retry: %d job(s)\n", len(report.Failed))
			for _, f := range report.Failed {
				fmt.Fprintf(w, "    - %s: %v\n", short(f.UUID), f.Err)
			}
			return fmt.Errorf("%w: %d of %d", ErrPartial, len(report.Failed), report.Selected)
		},
	}

	cmd.Flags().StringSliceVar(&q.IDs, "id", nil, "UUID or numeric ID to retry (repeatable)")
	cmd.Flags().StringVar(&q.Range, "range", "", `Inclusive range of numeric IDs, e.g. "1-5"`)
	cmd.Flags().StringVar(&q.Queue, "queue", "", "Only retry jobs from this queue")
	cmd.Flags().BoolVar(&q.ResetAttempts, "reset-attempts", false, "Reset attempt counters before re-dispatch")
	cmd.Flags().BoolVarP(&q.Force, "force", "f", false, "Skip confirmation")
	return cmd
}

func writeSummary(w io.Writer, s *operator.Summary) {
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  Total jobs: %d\n", len(s.Records))
	if s.Queue != "" {
		fmt.Fprintf(w, "  Queue filter: %s\n", s.Queue)
	}
	if s.ResetAttempts {
		fmt.Fprintln(w, "  Attempt counters will be RESET")
	}

	fmt.Fprintln(w, "  By queue:")
	for _, g := range s.ByQueue {
		fmt.Fprintf(w, "    - %s: %d job(s)\n", g.Name, g.Count)
	}
	fmt.Fprintln(w, "  By job type:")
	for _, g := range s.ByType {
		fmt.Fprintf(w, "    - %s: %d job(s)\n", g.Name, g.Count)
	}

	if len(s.Records) <= summaryTableMax {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "UUID\tJOB\tQUEUE\tFAILED")
		for _, r := range s.Records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s ago\n",
				short(r.UUID), r.TypeName, r.Queue, time.Since(r.FailedAt).Round(time.Second))
		}
		_ = tw.Flush()
	}
	fmt.Fprintln(w)
}

func short(uuid string) string {
	if len(uuid) <= 8 {
		return uuid
	}
	return uuid[:8] + "..."
}
