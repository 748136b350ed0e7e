// novactl is the command-line client: sign in with a token, resolve and switch workspaces.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"nova-workspace/backend/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		if ctx.Err() == context.Canceled {
			fmt.Fprintln(os.Stderr, "\nOperation cancelled by user")
			os.Exit(130)
		}
		os.Exit(1)
	}
}
