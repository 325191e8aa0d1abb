// Command attemptsctl inspects, deletes and retries failed jobs.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xraph/attempts/cli"
	"github.com/xraph/attempts/engine"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// Job types are not linked into this binary.
	code := cli.Execute(ctx, cli.WithEngineOptions(engine.WithPayloadValidation(false)))

	stop()
	os.Exit(code)
}
