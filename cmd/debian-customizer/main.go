package main

import (
	"log/slog"
	"os"

	"github.com/flintwinters/custom-debian-iso-builder/cmd/debian-customizer/commands"
)

func main() {
	// Initialize structured logger with text format for readability
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	commands.Execute()
}
