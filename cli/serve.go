package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/attempts/api"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the failed-job API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := ctxOf(cmd)
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			apiOpts := []api.Option{api.WithLogger(a.logger)}
			if err := a.redispatchGuard(); err != nil {
				a.logger.Warn("failed-job retry disabled", "error", err.Error())
				apiOpts = append(apiOpts, api.WithRetryDisabled(err))
			}
			srv := &http.Server{
				Handler:           api.New(a.eng.Operator(), apiOpts...).Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Serve(ln) }()
			fmt.Fprintf(out(cmd), "Serving failed-job API on http://%s\n", ln.Addr())

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutCtx); err != nil {
				return err
			}
			if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Listen address")
	return cmd
}
