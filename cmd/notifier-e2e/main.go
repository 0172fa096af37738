// Command notifier-e2e runs the notifier end-to-end browser suite.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kuitang/notifier-e2e/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], cli.DefaultEnv())
	stop()
	os.Exit(code)
}
