package main

import (
	"log/slog"
	"os"
)

var programLevel = new(slog.LevelVar) // Info by default

func main() {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: programLevel})
	slog.SetDefault(slog.New(h))

	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
