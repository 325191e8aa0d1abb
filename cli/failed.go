package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/failed"
	"github.com/xraph/attempts/operator"
)

func newListCmd(a *app) *cobra.Command {
	var (
		q    operator.ListQuery
		full bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List failed jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.eng.Operator().List(ctxOf(cmd), q)
			if err != nil {
				return err
			}
			w := out(cmd)

			if len(res.Records) == 0 {
				fmt.Fprintln(w, "No failed jobs found.")
				return nil
			}

			fmt.Fprintf(w, "Failed jobs (%d of %d)\n", len(res.Records), res.Total)
			if q.Queue != "" {
				fmt.Fprintf(w, "Queue: %s\n", q.Queue)
			}
			fmt.Fprintln(w)

			for _, r := range res.Records {
				writeRecord(w, r)
				if full {
					fmt.Fprintf(w, "Full exception:\n%s\n", r.Exception)
				}
				fmt.Fprintf(w, "Retry: attemptsctl failed retry %s\n\n", r.UUID)
			}

			if rest := res.Remaining(q.Offset); rest > 0 {
				fmt.Fprintf(w, "%d more job(s) not shown. Use --limit=%d to see all.\n", rest, res.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&q.Queue, "queue", "", "Only list jobs that failed on this queue")
	cmd.Flags().IntVar(&q.OlderThanHours, "older-than", 0, "Only list jobs that failed more than this many hours ago")
	cmd.Flags().IntVar(&q.Limit, "limit", 20, "Number of jobs to display")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "Number of jobs to skip")
	cmd.Flags().BoolVar(&full, "full", false, "Show the full exception of every job")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <uuid|id>",
		Short: "Show one failed job with its current attempt count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.eng.Operator().Show(ctxOf(cmd), failed.ParseSelector(args[0]))
			if err != nil {
				return err
			}
			w := out(cmd)
			writeRecord(w, d.Record)
			fmt.Fprintf(w, "Identity:   %s\n", d.Identity)
			fmt.Fprintf(w, "Counter:    %d\n", d.Attempts)
			fmt.Fprintf(w, "Payload:    %s\n", d.Record.Payload)
			fmt.Fprintf(w, "Full exception:\n%s\n", d.Record.Exception)
			return nil
		},
	}
}

func newForgetCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "forget <uuid|id>",
		Aliases: []string{"delete"},
		Short:   "Delete one failed job and clear its attempt counter",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.eng.Operator().Forget(ctxOf(cmd), failed.ParseSelector(args[0]), operator.ForgetOpts{
				Force:   force,
				Confirm: a.confirmer(cmd),
			})
			if errors.Is(err, attempts.ErrCancelled) {
				fmt.Fprintln(out(cmd), "Cancelled.")
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Failed job %s deleted.\n", rec.UUID)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation")
	return cmd
}

func newFlushCmd(a *app) *cobra.Command {
	var opts operator.FlushOpts

	cmd := &cobra.Command{
		Use:     "flush",
		Aliases: []string{"purge"},
		Short:   "Delete every failed job matching the filters",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.Confirm = a.confirmer(cmd)
			report, err := a.eng.Operator().Flush(ctxOf(cmd), opts)
			if errors.Is(err, attempts.ErrCancelled) {
				fmt.Fprintln(out(cmd), "Cancelled.")
				return err
			}
			if err != nil {
				return err
			}
			if report.Matched == 0 {
				fmt.Fprintln(out(cmd), "No failed jobs matched.")
				return nil
			}
			fmt.Fprintf(out(cmd), "Deleted %d failed job(s).\n", report.Deleted)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Queue, "queue", "", "Only delete jobs that failed on this queue")
	cmd.Flags().IntVar(&opts.OlderThanHours, "older-than", 0, "Only delete jobs that failed more than this many hours ago")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Skip confirmation")
	return cmd
}

func writeRecord(w io.Writer, r *failed.Record) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "UUID:\t%s\n", r.UUID)
	fmt.Fprintf(tw, "ID:\t%d\n", r.ID)
	fmt.Fprintf(tw, "Job:\t%s\n", r.TypeName)
	fmt.Fprintf(tw, "Queue:\t%s\n", r.Queue)
	fmt.Fprintf(tw, "Connection:\t%s\n", r.Connection)
	fmt.Fprintf(tw, "Failed At:\t%s\n", r.FailedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Attempts:\t%d\n", r.Attempts)
	fmt.Fprintf(tw, "Exception:\t%s\n", r.ExceptionSummary)
	_ = tw.Flush()
}
