package main

import (
	"context"
	"os"

	"finpulse/internal/cli"
	"finpulse/internal/log"
)

func main() {
	logger := log.New(log.Config{Component: log.ComponentApp, Output: os.Stderr})
	ctx, stop := cli.GracefulShutdown(context.Background(), logger)

	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
