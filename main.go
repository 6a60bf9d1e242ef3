// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/synthcheck-cli/cmd"
)

// main is the entry point for the synthcheck CLI. A signal-aware context
// lets an interrupt abort the browser automation cleanly mid-run.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}
