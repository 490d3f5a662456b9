package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"meteor-deploy-manager/internal/cli"
	"meteor-deploy-manager/internal/config"
	"meteor-deploy-manager/pkg/utils"
)

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd := cli.NewRootCommand(os.Stdout, config.LoadConfig())
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		// Deploy errors have already been logged with their context.
		var de *utils.DeployError
		if !errors.As(err, &de) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		var withExitCode interface{ ExitCode() int }
		if errors.As(err, &withExitCode) {
			os.Exit(withExitCode.ExitCode())
		}
		os.Exit(1)
	}
}
