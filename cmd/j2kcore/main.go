package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Raster-Lab/J2KSwift-sub002/cmd/j2kcore/cmd"
	"github.com/Raster-Lab/J2KSwift-sub002/internal/obslog"
)

var GitSHA string = "NA"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.SetDefault(obslog.Stderr(slog.LevelInfo))

	if err := cmd.NewRoot(ctx, GitSHA).ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
