package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang-conciliation-service/cmd/conciliator/cmd"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(cmd.NewCLIErrorHandler().HandleError(err))
	}
}
