package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/graceworks/missionsync/internal/cli"
	"github.com/graceworks/missionsync/pkg/infra"
)

func main() {
	// Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer infra.CloseLogger()

	if err := cli.Execute(ctx); err != nil {
		stop()
		infra.CloseLogger()
		os.Exit(1)
	}
}
