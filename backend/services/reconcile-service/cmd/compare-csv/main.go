package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"expolis/backend/libs/logging"
	"expolis/backend/services/reconcile-service/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logging.NewLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return cli.ExitSetup
	}
	defer logger.Sync()

	if err := cli.New(logger).Execute(ctx, os.Args[1:]); err != nil {
		if !cli.Printed(err) {
			fmt.Fprintln(os.Stderr, err)
		}
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}
