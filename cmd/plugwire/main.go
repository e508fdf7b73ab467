// Command plugwire loads plugins and calls their exports from the shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/plugwire/plugwire-go/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := newRootCommand().ExecuteContext(ctx)
	_ = log.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
