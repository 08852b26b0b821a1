// Package main provides the API router setup.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tabletopforge/component-extractor/cmd/extractor-api/handlers"
	"github.com/tabletopforge/component-extractor/cmd/extractor-api/middleware"
	"github.com/tabletopforge/component-extractor/internal/config"
	"github.com/tabletopforge/component-extractor/internal/observability"
	"github.com/tabletopforge/component-extractor/pkg/pipeline"
)

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, cfg *config.Config, p *pipeline.Pipeline) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(chimiddleware.Timeout(cfg.Server.ReadTimeout))

	// Health check (unauthenticated)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"component-extractor"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		exec := p.Executor()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ready","running":%d,"maxConcurrent":%d}`,
			exec.Running(), exec.MaxConcurrent())
	})

	extractHandler := handlers.NewExtractHandler(logger, p)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(authConfigFromEnv()))

		r.Post("/extract", extractHandler.Extract)
	})

	return r
}

// authConfigFromEnv reads API keys from the environment; auth stays off when
// none are configured, which is the development default.
func authConfigFromEnv() middleware.AuthConfig {
	raw := os.Getenv("CE_API_KEYS")
	if raw == "" {
		return middleware.AuthConfig{Enabled: false}
	}
	return middleware.AuthConfig{
		Enabled: true,
		APIKeys: strings.Split(raw, ","),
	}
}
