package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ryan4259/r2-image-compressor/cmd/migrate"
	"github.com/ryan4259/r2-image-compressor/internal/cache"
	"github.com/ryan4259/r2-image-compressor/internal/config"
	"github.com/ryan4259/r2-image-compressor/internal/janitor"
	"github.com/ryan4259/r2-image-compressor/internal/metrics"
	"github.com/ryan4259/r2-image-compressor/internal/pipeline"
	"github.com/ryan4259/r2-image-compressor/internal/r2"
	"github.com/ryan4259/r2-image-compressor/internal/redisholder"
	"github.com/ryan4259/r2-image-compressor/internal/repository/storage"
	"github.com/ryan4259/r2-image-compressor/internal/tokens"
	"github.com/ryan4259/r2-image-compressor/internal/transport/handler"
	"github.com/ryan4259/r2-image-compressor/internal/transport/router"
)

type App struct {
	httpServer *http.Server
	repo       interface{ Close() }
	holder     *redisholder.Holder

	// cancel stops the redis health loop and the janitor workers.
	cancel context.CancelFunc
}

func New(cfg *config.Config) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	metrics.Init()

	if err := migrate.Migrate(cfg.Database.DSN, migrate.Migrations); err != nil {
		cancel()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	repo, err := storage.New(ctx, cfg.Database.DSN)
	if err != nil {
		cancel()
		return nil, err
	}

	holder, err := redisholder.Build(ctx, cfg)
	if err != nil {
		cancel()
		return nil, err
	}
	rc := holder.Get()

	redisCache := cache.NewCache("imgc:objects", rc)

	objectStore, err := r2.NewStorage(ctx, &cfg.R2)
	if err != nil {
		cancel()
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithMaxUploadBytes(cfg.Upload.MaxUploadMB << 20),
	}
	if cfg.Janitor.Enabled {
		producer := janitor.Init(ctx, rc, cfg.Janitor, objectStore, redisCache)
		opts = append(opts, pipeline.WithOrphanSink(producer))
	}
	pipe := pipeline.New(objectStore, opts...)

	tokenManager := tokens.NewManager(cfg.Tokens.Secret, cfg.Tokens.TTL)

	h := handler.New(pipe, repo, objectStore, redisCache, tokenManager, cfg)
	r := router.NewRouter(h, cfg)

	s := &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &App{
		httpServer: s,
		repo:       repo,
		holder:     holder,
		cancel:     cancel,
	}, nil
}

// Run serves until a shutdown signal or a listener error, then drains
// in-flight requests before releasing the shared clients.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.httpServer.Addr).Msg("server listening")
		errCh <- a.httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		a.closeDeps()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := a.httpServer.Shutdown(shutdownCtx)
	a.closeDeps()
	return err
}

func (a *App) closeDeps() {
	// Canceling the lifecycle context stops the janitor workers and the
	// redis health loop before the clients go away underneath them.
	a.cancel()
	_ = a.holder.Close()
	a.repo.Close()
}
