// Command signdrop is the operator CLI: migrations, offline verification,
// bootstrap users and tokens, and the serve/worker processes in one binary.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "signdrop: %v\n", err)
		os.Exit(1)
	}
}
