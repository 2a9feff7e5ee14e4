// Package main runs the claims API as a standalone HTTP server, for local
// development against SQLite or LocalStack and for container deployments.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kylejryan/claims-portal/internal/bootstrap"
	"github.com/kylejryan/claims-portal/internal/config"
	"github.com/kylejryan/claims-portal/internal/httpapi"
	"github.com/kylejryan/claims-portal/internal/logging"
	"github.com/kylejryan/claims-portal/internal/metrics"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatal().Err(err).Msg("failed to load .env")
	}
	env := config.MustLoad()
	logger := logging.New(env.LogLevel, env.LogFormat, "claims-server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	c, err := bootstrap.Build(ctx, env, logger, m)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer c.Close()

	srv := &http.Server{
		Addr: env.ListenAddr,
		Handler: httpapi.New(httpapi.Config{
			Service:        c.Service,
			Logger:         logger,
			Metrics:        m,
			MaxUploadBytes: env.MaxUploadBytes,
			RateLimitRPS:   env.RateLimitRPS,
			RateLimitBurst: env.RateLimitBurst,
			AllowedOrigins: env.CORSOrigins,
		}).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", env.ListenAddr).
			Str("backend", env.Backend).
			Bool("attachments", c.Blobs != nil).
			Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
		}
	}
}
