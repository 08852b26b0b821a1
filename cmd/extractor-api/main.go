// Package main provides the component extractor API server entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tabletopforge/component-extractor/internal/cache"
	"github.com/tabletopforge/component-extractor/internal/config"
	"github.com/tabletopforge/component-extractor/internal/observability"
	"github.com/tabletopforge/component-extractor/pkg/pipeline"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("cache", cfg.Cache.Driver).
		Int("max_concurrent", cfg.Executor.MaxConcurrent).
		Msg("Starting component extractor API")

	cacheClient, err := newCacheClient(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("Cache driver unavailable, falling back to memory")
		cacheClient = cache.NewMemoryClient(cfg.Cache.MaxEntries)
	}
	defer cacheClient.Close()

	p := pipeline.New(cfg, logger, cacheClient)

	router := NewRouter(logger, cfg, p)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("Server error")
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
}

func newCacheClient(cfg *config.Config) (cache.Client, error) {
	if cfg.Cache.Driver == "redis" {
		return cache.NewRedisClient(cfg.Cache.Redis)
	}
	return cache.NewMemoryClient(cfg.Cache.MaxEntries), nil
}
