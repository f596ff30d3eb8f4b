package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dataroom-service/cmd/dataroom/cli"
)

var (
	version = "0.1.0-dev"
	commit  = "main"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, env := cli.NewRootCommand(cli.VersionInfo{Version: version, Commit: commit})
	root.AddCommand(
		cli.NewServeCommand(env),
		cli.NewMigrateCommand(env),
		cli.NewSweepCommand(env),
		cli.NewVersionCommand(),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
