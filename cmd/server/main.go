// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opentrusty/ssoproxy/internal/app"
	"github.com/opentrusty/ssoproxy/internal/config"
	"github.com/opentrusty/ssoproxy/internal/observability/logger"
	"github.com/opentrusty/ssoproxy/internal/observability/metrics"
	"github.com/opentrusty/ssoproxy/internal/observability/tracing"
	transportHTTP "github.com/opentrusty/ssoproxy/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
		OTel:        cfg.Observability.OTELEnabled,
	})
	slog.Info("starting ssoproxy")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server failed", logger.Error(err))
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Endpoint:       cfg.Observability.OTLPEndpoint,
		SamplingRate:   cfg.Observability.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", logger.Error(err))
		}
	}()

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize meter: %w", err)
	}
	instruments, err := meter.NewInstruments()
	if err != nil {
		return err
	}

	services, err := app.Open(ctx, cfg, app.Options{
		Instruments: instruments,
		Tracer:      tracer.GetTracer(),
	})
	if err != nil {
		return err
	}
	defer services.Close()

	if cfg.Roles.File != "" && cfg.Roles.Watch {
		go func() {
			if err := services.Roles.Watch(ctx); err != nil {
				slog.Error("role snapshot watch stopped", logger.Component("roles"), logger.Error(err))
			}
		}()
	}

	var tokens *transportHTTP.AdminTokens
	if cfg.Admin.JWTSecret != "" {
		if tokens, err = transportHTTP.NewAdminTokens(cfg.Admin.JWTSecret, cfg.Admin.JWTIssuer, cfg.Admin.TokenTTL); err != nil {
			return err
		}
	} else {
		slog.Warn("ADMIN_JWT_SECRET not set, admin API disabled", logger.Component("server"))
	}

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Stop()

	handler := transportHTTP.NewHandler(transportHTTP.Services{
		Auth:        services.Auth,
		Directory:   services.Directory,
		Keys:        services.Keys,
		Revocations: services.Revocations,
		Audit:       services.Audit,
		Limiter:     services.Limiter,
	}, transportHTTP.Options{
		FoldRateLimit: cfg.Auth.FoldRateLimit,
		TrustProxy:    cfg.Server.TrustProxy,
		ServiceName:   cfg.Observability.ServiceName,
		Tokens:        tokens,
		AdminAudit:    logger.NewAdminAuditLogger(slog.Default()),
		Ready:         services.Ready,
		AuthDuration:  instruments.AuthDuration,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      transportHTTP.NewRouter(handler, rateLimiter),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting http server",
			logger.Component("server"),
			logger.Operation("listen"),
			slog.String("addr", addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}
