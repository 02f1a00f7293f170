package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"

	"github.com/trunov/assethub/internal/app"
	"github.com/trunov/assethub/internal/config"
	"github.com/trunov/assethub/internal/logging"
)

const file = "config.json"

var version = "dev"

func initSentry(cfg *config.SentryConfig, version string) error {
	return sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     version,
	})
}

func main() {
	cfg := config.NewConfig()
	err := cfg.Read(file)
	if err != nil {
		log.Fatal().Err(err).Msg("read config")
	}

	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	err = initSentry(&cfg.Sentry, version)
	if err != nil {
		log.Fatal().Err(err).Msg("sentry.Init")
	}

	// Flush buffered events before the program terminates.
	defer sentry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("build app")
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped")
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}
}
