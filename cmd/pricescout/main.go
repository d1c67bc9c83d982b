package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pricescout/searchservice/cmd/pricescout/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	commands.ExecuteContext(ctx)
}
