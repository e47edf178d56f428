package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/realitylog/realitylog/pkg/realitylog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := realitylog.Main(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "realitylog:", err)
		stop()
		os.Exit(1)
	}
}
