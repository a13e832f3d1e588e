package main

import (
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ryan4259/r2-image-compressor/internal/app"
	"github.com/ryan4259/r2-image-compressor/internal/config"
)

const version = "v1"

func initSentry(cfg *config.SentryConfig, version string) error {
	return sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     version,
	})
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	if err := initSentry(&cfg.Sentry, version); err != nil {
		log.Fatal().Err(err).Msg("sentry init")
	}

	// Flush buffered events before the program terminates.
	defer sentry.Flush(2 * time.Second)

	a, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap")
	}

	if err := a.Run(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
