package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/akuznecov/whisperkit/internal/cli"
	"github.com/akuznecov/whisperkit/internal/config"
	"github.com/akuznecov/whisperkit/internal/logging"
)

func main() {

	cfg := config.LoadConfig()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	app, err := cli.NewApp(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(context.Background())

}
