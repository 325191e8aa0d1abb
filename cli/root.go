// Package cli is the attemptsctl command tree. Applications embed it with
// WithSetup to register their job types, which enables payload validation
// on retry; the stock binary runs without them.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/engine"
)

// ErrPartial reports that a batch finished with some failed items.
var ErrPartial = errors.New("attemptsctl: some jobs could not be retried")

// Exit codes.
const (
	ExitOK        = 0
	ExitError     = 1
	ExitNotFound  = 2
	ExitCancelled = 3
	ExitPartial   = 4
)

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrPartial):
		return ExitPartial
	case errors.Is(err, attempts.ErrCancelled):
		return ExitCancelled
	case errors.Is(err, attempts.ErrFailedJobNotFound):
		return ExitNotFound
	default:
		return ExitError
	}
}

// Option configures the command tree.
type Option func(*app)

// WithEngine uses eng instead of opening one from configuration. The
// caller keeps ownership of eng.
func WithEngine(eng *engine.Engine) Option {
	return func(a *app) { a.eng = eng }
}

// WithEngineOptions adds options to the engine opened from configuration.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(a *app) { a.engineOpts = append(a.engineOpts, opts...) }
}

// WithSetup runs fn on the engine before any command, typically to
// register job types.
func WithSetup(fn func(*engine.Engine) error) Option {
	return func(a *app) { a.setup = fn }
}

type app struct {
	cfgPath string
	verbose bool

	eng        *engine.Engine
	owned      bool
	engineOpts []engine.Option
	setup      func(*engine.Engine) error

	logger *slog.Logger
	in     *bufio.Reader
}

// NewRootCmd builds the attemptsctl command tree.
func NewRootCmd(opts ...Option) *cobra.Command {
	return newApp(opts).rootCmd()
}

// Execute runs the command tree with os.Args, reports errors on stderr and
// returns the exit code. The engine is closed even when a command fails.
func Execute(ctx context.Context, opts ...Option) int {
	a := newApp(opts)
	cmd := a.rootCmd()

	err := cmd.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	code := ExitCode(err)
	if code == ExitError || code == ExitNotFound {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	}
	return code
}

func newApp(opts []Option) *app {
	a := &app{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "attemptsctl",
		Short:         "Inspect and retry failed jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return a.close()
		},
	}
	cmd.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "Path to the YAML configuration file")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	failedCmd := &cobra.Command{
		Use:   "failed",
		Short: "Manage failed jobs",
	}
	failedCmd.AddCommand(
		newListCmd(a),
		newShowCmd(a),
		newForgetCmd(a),
		newFlushCmd(a),
		newRetryCmd(a),
	)

	cmd.AddCommand(failedCmd, newAttemptsCmd(a), newPruneCmd(a), newServeCmd(a))
	return cmd
}

func (a *app) open(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	a.in = bufio.NewReader(cmd.InOrStdin())

	if a.eng != nil {
		return nil
	}

	cfg, err := attempts.LoadConfig(a.cfgPath)
	if err != nil {
		return err
	}
	opts := append([]engine.Option{engine.WithLogger(a.logger)}, a.engineOpts...)
	eng, err := engine.Open(ctxOf(cmd), cfg, opts...)
	if err != nil {
		return err
	}
	if a.setup != nil {
		if err := a.setup(eng); err != nil {
			_ = eng.Close()
			return err
		}
	}
	a.eng, a.owned = eng, true
	return nil
}

func (a *app) close() error {
	if !a.owned || a.eng == nil {
		return nil
	}
	err := a.eng.Close()
	a.eng, a.owned = nil, false
	return err
}

// redispatchGuard fails when this command built its own engine with an
// in-process queue but durable failed records: a re-dispatched job would
// vanish when the command exits while its failed record is deleted.
func (a *app) redispatchGuard() error {
	if !a.owned || a.eng == nil {
		return nil
	}
	cfg := a.eng.Config()
	inProcess := cfg.Queue.Driver == "" || cfg.Queue.Driver == "memory"
	if !inProcess || cfg.FailedStore.Driver == "" || cfg.FailedStore.Driver == "memory" {
		return nil
	}
	return fmt.Errorf("%w: queue.driver is memory, so jobs retried from attemptsctl would be lost on exit; configure a redis queue",
		attempts.ErrConfiguration)
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
