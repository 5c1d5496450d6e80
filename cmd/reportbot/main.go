package main

import (
	"log/slog"
	"os"

	"github.com/weeklyops/reportbot/internal/cli"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	root := cli.NewRootCommand(logger)
	if err := root.Execute(); err != nil {
		logger.Error("reportbot exited with error", "error", err)
		os.Exit(1)
	}
}
