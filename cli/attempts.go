package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAttemptsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "attempts <job-name> <payload-json>",
		Short: "Show the identity and current attempt count of a job payload",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, n, err := a.eng.Operator().Peek(ctxOf(cmd), args[0], []byte(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Identity: %s\nAttempts: %d\n", id, n)
			return nil
		},
	}
}
